// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package object

import (
	"fmt"
	"strings"
)

// NoneType is the type of the None singleton.
type NoneType struct {
	RefCounted
}

var noneSingleton = &NoneType{}

// Type implements Object.
func (n *NoneType) Type() *Type { return noneType }

var noneType = &Type{Name: "NoneType", Str: func(Object) string { return "None" }}

// NewNone returns the None singleton, increffed.
func NewNone() Object {
	noneSingleton.Incref()
	return noneSingleton
}

// IsNone reports whether o is the None singleton.
func IsNone(o Object) bool { return o == Object(noneSingleton) }

// NoneValue exposes the None singleton for identity comparison without
// touching its reference count.
func NoneValue() Object { return noneSingleton }

// Code boxes a code unit so it can sit in a constants tuple; the
// translator knows what Unit actually is.
type Code struct {
	RefCounted
	Unit interface{}
}

// NewCode allocates a code box with refcount 1.
func NewCode(unit interface{}) *Code {
	c := &Code{Unit: unit}
	c.Incref()
	return c
}

// Type implements Object.
func (c *Code) Type() *Type { return codeType }

var codeType = &Type{Name: "code"}

// TrueValue and FalseValue expose the canonical singletons the
// conditional-branch fast path compares against, without touching their
// reference counts.
func TrueValue() *Bool { return trueSingleton }

// FalseValue returns the canonical False singleton.
func FalseValue() *Bool { return falseSingleton }

// Cell is the boxed indirection slot closures capture variables through.
// Ref is nil while the cell is empty (an unbound free variable).
type Cell struct {
	RefCounted
	Ref Object
}

// NewCell allocates a cell holding v (which may be nil), taking
// ownership of v's reference.
func NewCell(v Object) *Cell {
	c := &Cell{Ref: v}
	c.Incref()
	return c
}

// Type implements Object.
func (c *Cell) Type() *Type { return cellType }

var cellType = &Type{Name: "cell"}

// List is a boxed mutable sequence.
type List struct {
	RefCounted
	Items []Object
}

// NewList allocates a list taking ownership of items.
func NewList(items []Object) *List {
	l := &List{Items: items}
	l.Incref()
	return l
}

// Type implements Object.
func (l *List) Type() *Type { return listType }

var listType = &Type{
	Name: "list",
	Add: func(self, other Object) (Object, bool) {
		a, ok := self.(*List)
		b, ok2 := other.(*List)
		if !ok || !ok2 {
			return nil, false
		}
		items := make([]Object, 0, len(a.Items)+len(b.Items))
		for _, v := range a.Items {
			v.(Refcounted).Incref()
			items = append(items, v)
		}
		for _, v := range b.Items {
			v.(Refcounted).Incref()
			items = append(items, v)
		}
		return NewList(items), true
	},
	Str: func(o Object) string { return fmt.Sprintf("<list len=%d>", len(o.(*List).Items)) },
}

// Append takes ownership of v's reference.
func (l *List) Append(v Object) { l.Items = append(l.Items, v) }

// dictKey is the comparable projection of a hashable Object.
type dictKey struct {
	kind byte
	i    int64
	s    string
}

func keyOf(o Object) (dictKey, bool) {
	switch v := o.(type) {
	case *Int:
		return dictKey{kind: 'i', i: v.Value}, true
	case *Bool:
		if v.Value {
			return dictKey{kind: 'i', i: 1}, true
		}
		return dictKey{kind: 'i', i: 0}, true
	case *Str:
		return dictKey{kind: 's', s: v.Value}, true
	case *NoneType:
		return dictKey{kind: 'n'}, true
	}
	return dictKey{}, false
}

type dictEntry struct {
	key   Object
	value Object
}

// Dict is a boxed insertion-ordered mapping with int/str/bool/None keys.
type Dict struct {
	RefCounted
	entries []dictEntry
	index   map[dictKey]int
}

// NewDict allocates an empty dict.
func NewDict() *Dict {
	d := &Dict{index: make(map[dictKey]int)}
	d.Incref()
	return d
}

// Type implements Object.
func (d *Dict) Type() *Type { return dictType }

var dictType = &Type{
	Name: "dict",
	Str:  func(o Object) string { return fmt.Sprintf("<dict len=%d>", o.(*Dict).Len()) },
}

// Len reports the number of entries.
func (d *Dict) Len() int { return len(d.entries) }

// SetItem stores value under key, taking ownership of both references
// and releasing the previous value's if the key was already present.
func (d *Dict) SetItem(key, value Object) error {
	k, ok := keyOf(key)
	if !ok {
		return NewException("TypeError", fmt.Sprintf("unhashable type: '%s'", key.Type().Name))
	}
	if i, present := d.index[k]; present {
		releaseRef(d.entries[i].value)
		d.entries[i].value = value
		// The entry keeps its original key object; release the caller's
		// reference on the equal incoming key.
		releaseRef(key)
		return nil
	}
	d.index[k] = len(d.entries)
	d.entries = append(d.entries, dictEntry{key: key, value: value})
	return nil
}

// GetItem returns the value stored under key without transferring a
// reference; ok is false if absent.
func (d *Dict) GetItem(key Object) (Object, bool, error) {
	k, ok := keyOf(key)
	if !ok {
		return nil, false, NewException("TypeError", fmt.Sprintf("unhashable type: '%s'", key.Type().Name))
	}
	i, present := d.index[k]
	if !present {
		return nil, false, nil
	}
	return d.entries[i].value, true, nil
}

// Contains reports key membership.
func (d *Dict) Contains(key Object) (bool, error) {
	_, present, err := d.GetItem(key)
	return present, err
}

// Each calls fn for every (key, value) pair in insertion order.
func (d *Dict) Each(fn func(key, value Object)) {
	for _, e := range d.entries {
		fn(e.key, e.value)
	}
}

// Set is a boxed insertion-ordered set with the same key domain as Dict.
type Set struct {
	RefCounted
	items []Object
	index map[dictKey]int
}

// NewSet allocates an empty set.
func NewSet() *Set {
	s := &Set{index: make(map[dictKey]int)}
	s.Incref()
	return s
}

// Type implements Object.
func (s *Set) Type() *Type { return setType }

var setType = &Type{
	Name: "set",
	Str:  func(o Object) string { return fmt.Sprintf("<set len=%d>", len(o.(*Set).items)) },
}

// Add inserts v, taking ownership; a duplicate releases the new
// reference instead.
func (s *Set) Add(v Object) error {
	k, ok := keyOf(v)
	if !ok {
		return NewException("TypeError", fmt.Sprintf("unhashable type: '%s'", v.Type().Name))
	}
	if _, present := s.index[k]; present {
		releaseRef(v)
		return nil
	}
	s.index[k] = len(s.items)
	s.items = append(s.items, v)
	return nil
}

// Contains reports membership.
func (s *Set) Contains(v Object) (bool, error) {
	k, ok := keyOf(v)
	if !ok {
		return false, NewException("TypeError", fmt.Sprintf("unhashable type: '%s'", v.Type().Name))
	}
	_, present := s.index[k]
	return present, nil
}

// Items exposes the backing slice for iteration helpers.
func (s *Set) Items() []Object { return s.items }

// releaseRef decrements without running destructors; container internals
// only, where the object model has no destructor slots in play.
func releaseRef(o Object) {
	if o == nil {
		return
	}
	if rc, ok := o.(Refcounted); ok {
		if rc.Decref() {
			if t := o.Type(); t != nil && t.Destroy != nil {
				t.Destroy(o)
			}
		}
	}
}

// ExcType is the class object an exception is an instance of. Instances
// are canonical per name so handler matching can walk an identity-based
// hierarchy.
type ExcType struct {
	RefCounted
	Name   string
	Parent *ExcType
}

var excTypeRegistry = map[string]*ExcType{}

var baseExcType = func() *ExcType {
	t := &ExcType{Name: "Exception"}
	t.Incref()
	excTypeRegistry["Exception"] = t
	return t
}()

// ExcTypeOf returns the canonical class object for name, creating it
// (parented to Exception) on first use.
func ExcTypeOf(name string) *ExcType {
	if t, ok := excTypeRegistry[name]; ok {
		return t
	}
	t := &ExcType{Name: name, Parent: baseExcType}
	t.Incref()
	excTypeRegistry[name] = t
	return t
}

// Type implements Object.
func (t *ExcType) Type() *Type { return excClassType }

var excClassType = &Type{
	Name: "type",
	Str:  func(o Object) string { return fmt.Sprintf("<class '%s'>", o.(*ExcType).Name) },
}

// Matches reports whether an exception of type t should be caught by a
// handler naming class c.
func (t *ExcType) Matches(c *ExcType) bool {
	for cur := t; cur != nil; cur = cur.Parent {
		if cur == c {
			return true
		}
	}
	return false
}

// Call instantiates the exception class, so `ValueError('x')` works
// through the ordinary call helper.
func (t *ExcType) Call(args []Object) (Object, error) {
	var msg []string
	for _, a := range args {
		msg = append(msg, StrOf(a))
	}
	return NewException(t.Name, strings.Join(msg, ", ")), nil
}

// Class returns the canonical class object for e's type name.
func (e *Exception) Class() *ExcType { return ExcTypeOf(e.ExcType) }

// Function is a host function object: a code unit bound to a globals
// mapping. Code is opaque here (the translator knows it is a
// *bytecode.Unit); Invoke is installed by whoever owns frame evaluation.
type Function struct {
	RefCounted
	Name     string
	Code     interface{}
	Globals  map[string]Object
	Defaults *Tuple
	Closure  []*Cell
	Invoke   func(fn *Function, args []Object) (Object, error)
}

// NewFunction allocates a function object with refcount 1.
func NewFunction(name string, code interface{}, globals map[string]Object) *Function {
	f := &Function{Name: name, Code: code, Globals: globals}
	f.Incref()
	return f
}

// Type implements Object.
func (f *Function) Type() *Type { return functionType }

var functionType = &Type{
	Name: "function",
	Str:  func(o Object) string { return fmt.Sprintf("<function %s>", o.(*Function).Name) },
}

// Call implements the callable contract the call helpers dispatch on.
func (f *Function) Call(args []Object) (Object, error) {
	if f.Invoke == nil {
		return nil, NewException("RuntimeError", fmt.Sprintf("function %s has no installed evaluator", f.Name))
	}
	return f.Invoke(f, args)
}

// Builtin is a callable implemented directly in the host.
type Builtin struct {
	RefCounted
	Name string
	Fn   func(args []Object) (Object, error)
}

// NewBuiltin allocates a builtin callable with refcount 1.
func NewBuiltin(name string, fn func(args []Object) (Object, error)) *Builtin {
	b := &Builtin{Name: name, Fn: fn}
	b.Incref()
	return b
}

// Type implements Object.
func (b *Builtin) Type() *Type { return builtinType }

var builtinType = &Type{
	Name: "builtin_function_or_method",
	Str:  func(o Object) string { return fmt.Sprintf("<built-in function %s>", o.(*Builtin).Name) },
}

// Call implements the callable contract.
func (b *Builtin) Call(args []Object) (Object, error) { return b.Fn(args) }

// Module is a loaded module: a named attribute namespace, the thing
// IMPORT_NAME produces and IMPORT_FROM reads from.
type Module struct {
	RefCounted
	Name  string
	Attrs map[string]Object
}

// NewModule allocates a module object with refcount 1.
func NewModule(name string, attrs map[string]Object) *Module {
	m := &Module{Name: name, Attrs: attrs}
	m.Incref()
	return m
}

// Type implements Object.
func (m *Module) Type() *Type { return moduleType }

var moduleType = &Type{
	Name: "module",
	Str:  func(o Object) string { return fmt.Sprintf("<module '%s'>", o.(*Module).Name) },
}

// StrOf renders o through its type's Str slot, with a generic fallback.
func StrOf(o Object) string {
	if o == nil {
		return "<null>"
	}
	if t := o.Type(); t != nil && t.Str != nil {
		return t.Str(o)
	}
	return fmt.Sprintf("<%s object>", o.Type().Name)
}
