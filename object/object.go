// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package object is a minimal reference host object model: the
// translator and its helper table are written against this package so
// the rest of the repository has something concrete to compile and test
// against. The host's actual object layout is taken as given; a real
// embedding replaces this package's types but keeps the same
// Object/RefCounted contract the emitter assumes.
package object

import "fmt"

// Object is anything the translated code can push onto the value stack:
// a refcounted handle with a type tag used to select the operator table.
type Object interface {
	Type() *Type
}

// RefCounted is embedded by every concrete Object to provide the
// refcount primitives runtime.Incref/Decref operate on.
type RefCounted struct {
	refcount int64
}

// Refcount returns the current reference count, for tests.
func (r *RefCounted) Refcount() int64 { return r.refcount }

// Incref bumps the reference count by one. Exported so the runtime
// package's helper table can reach it on any concrete Object through the
// small Refcounted interface below, without object needing to depend on
// runtime.
func (r *RefCounted) Incref() { r.refcount++ }

// Decref decrements the count and reports whether it reached zero (the
// caller is then responsible for running the type's destructor, if any).
func (r *RefCounted) Decref() bool {
	r.refcount--
	if r.refcount < 0 {
		panic("object: refcount went negative")
	}
	return r.refcount == 0
}

// Refcounted is satisfied by every concrete Object through its embedded
// RefCounted field.
type Refcounted interface {
	Incref()
	Decref() bool
}

// Type is the per-type operator slot table dispatch indexes into. A nil
// slot means the type does not implement that operator; dispatch then
// falls through to the reflected-operator / TypeError path
// runtime.BinaryOp implements.
type Type struct {
	Name string

	Add, Sub, Mul, FloorDiv, TrueDiv, Mod, Pow BinaryFn
	Lshift, Rshift, And, Or, Xor               BinaryFn
	RAdd, RSub, RMul                           BinaryFn
	Compare                                     CompareFn
	Str                                          func(Object) string
	Destroy                                      func(Object)
}

// BinaryFn implements one binary operator slot; ok is false when the
// type declines to handle the given right-hand operand (NotImplemented
// in CPython terms), signaling the dispatcher to try the reflected slot.
type BinaryFn func(self, other Object) (result Object, ok bool)

// CompareFn implements rich comparison for CompareOp oparg values 0..5
// (<, <=, ==, !=, >, >=), mirroring CPython's PyObject_RichCompare oparg
// convention.
type CompareFn func(self, other Object, op int) (result Object, ok bool)

// Int is a boxed integer.
type Int struct {
	RefCounted
	Value int64
}

// NewInt allocates a boxed integer with refcount 1.
func NewInt(v int64) *Int {
	i := &Int{Value: v}
	i.Incref()
	return i
}

// Type implements Object.
func (i *Int) Type() *Type { return intType }

var intType = &Type{
	Name: "int",
	Add:  func(self, other Object) (Object, bool) { return binInt(self, other, func(a, b int64) int64 { return a + b }) },
	Sub:  func(self, other Object) (Object, bool) { return binInt(self, other, func(a, b int64) int64 { return a - b }) },
	Mul:  func(self, other Object) (Object, bool) { return binInt(self, other, func(a, b int64) int64 { return a * b }) },
	And:  func(self, other Object) (Object, bool) { return binInt(self, other, func(a, b int64) int64 { return a & b }) },
	Or:   func(self, other Object) (Object, bool) { return binInt(self, other, func(a, b int64) int64 { return a | b }) },
	Xor:  func(self, other Object) (Object, bool) { return binInt(self, other, func(a, b int64) int64 { return a ^ b }) },
	Compare: func(self, other Object, op int) (Object, bool) {
		a, ok := self.(*Int)
		b, ok2 := other.(*Int)
		if !ok || !ok2 {
			return nil, false
		}
		return NewBool(compareInts(a.Value, b.Value, op)), true
	},
	Str: func(o Object) string { return fmt.Sprintf("%d", o.(*Int).Value) },
}

func binInt(self, other Object, f func(a, b int64) int64) (Object, bool) {
	a, ok := self.(*Int)
	b, ok2 := other.(*Int)
	if !ok || !ok2 {
		return nil, false
	}
	return NewInt(f(a.Value, b.Value)), true
}

func compareInts(a, b int64, op int) bool {
	switch op {
	case 0:
		return a < b
	case 1:
		return a <= b
	case 2:
		return a == b
	case 3:
		return a != b
	case 4:
		return a > b
	case 5:
		return a >= b
	}
	return false
}

// Bool is a boxed boolean, distinct from Int the way CPython's bool
// subclasses int but keeps its own singleton instances.
type Bool struct {
	RefCounted
	Value bool
}

var (
	trueSingleton  = &Bool{Value: true}
	falseSingleton = &Bool{Value: false}
)

// NewBool returns the shared True/False singleton for v, increffed.
func NewBool(v bool) *Bool {
	b := falseSingleton
	if v {
		b = trueSingleton
	}
	b.Incref()
	return b
}

// Type implements Object.
func (b *Bool) Type() *Type { return boolType }

var boolType = &Type{Name: "bool", Str: func(o Object) string {
	if o.(*Bool).Value {
		return "True"
	}
	return "False"
}}

// Str is a boxed, immutable string.
type Str struct {
	RefCounted
	Value string
}

// NewStr allocates a boxed string with refcount 1.
func NewStr(v string) *Str {
	s := &Str{Value: v}
	s.Incref()
	return s
}

// Type implements Object.
func (s *Str) Type() *Type { return strType }

var strType = &Type{
	Name: "str",
	Add: func(self, other Object) (Object, bool) {
		a, ok := self.(*Str)
		b, ok2 := other.(*Str)
		if !ok || !ok2 {
			return nil, false
		}
		return NewStr(a.Value + b.Value), true
	},
	Str: func(o Object) string { return o.(*Str).Value },
}

// Tuple is a boxed, fixed-length immutable sequence.
type Tuple struct {
	RefCounted
	Items []Object
}

// NewTuple allocates a boxed tuple taking ownership of items (each item
// is assumed already increffed by the caller, matching CPython's
// PyTuple_Pack convention).
func NewTuple(items []Object) *Tuple {
	t := &Tuple{Items: items}
	t.Incref()
	return t
}

// Type implements Object.
func (t *Tuple) Type() *Type { return tupleType }

var tupleType = &Type{
	Name: "tuple",
	Str: func(o Object) string { return fmt.Sprintf("<tuple len=%d>", len(o.(*Tuple).Items)) },
}

// Exception is a boxed host exception: a type name plus a message, the
// object form of what runtime.RaiseException constructs. Handlers match
// it through Class(), by ExcType identity along the Parent chain
// (runtime.ExcMatch).
type Exception struct {
	RefCounted
	ExcType string
	Message string
}

// NewException allocates a boxed exception with refcount 1.
func NewException(excType, message string) *Exception {
	e := &Exception{ExcType: excType, Message: message}
	e.Incref()
	return e
}

// Type implements Object.
func (e *Exception) Type() *Type { return excType }

func (e *Exception) Error() string { return fmt.Sprintf("%s: %s", e.ExcType, e.Message) }

var excType = &Type{
	Name: "Exception",
	Str:  func(o Object) string { return o.(*Exception).Error() },
}
