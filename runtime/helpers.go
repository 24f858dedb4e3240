// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtime

import (
	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/frame"
	"github.com/frameeval/pyjit/object"
)

// Helpers is the fixed table of entry points compiled code reaches
// through its first argument. Field order is the table layout: the
// emitter names a field, the backend resolves the name against this
// struct, and both sides agree at build time. The zero value is not
// usable; construct with NewHelpers.
type Helpers struct {
	// Operator dispatch.
	BinaryOp func(op bytecode.Op, v, w object.Object) (object.Object, error)
	UnaryOp  func(op bytecode.Op, v object.Object) (object.Object, error)
	UnaryNot func(v object.Object) object.Object
	Compare  func(v, w object.Object, oparg int) (object.Object, error)
	Is       func(v, w object.Object, negate bool) object.Object
	In       func(needle, container object.Object, negate bool) (object.Object, error)
	Truthy   func(v object.Object) bool

	// Name lookup and stores.
	LoadGlobal   func(f *frame.Frame, name string) (object.Object, error)
	StoreGlobal  func(f *frame.Frame, name string, v object.Object)
	DeleteGlobal func(f *frame.Frame, name string) error
	LoadName     func(f *frame.Frame, name string) (object.Object, error)
	StoreName    func(f *frame.Frame, name string, v object.Object)
	DeleteName   func(f *frame.Frame, name string) error

	// Attribute and subscript access.
	LoadAttr     func(owner object.Object, name string) (object.Object, error)
	LoadMethod   func(owner object.Object, name string) (object.Object, error)
	StoreAttr    func(owner object.Object, name string, v object.Object) error
	DeleteAttr   func(owner object.Object, name string) error
	BinarySubscr func(container, sub object.Object) (object.Object, error)
	StoreSubscr  func(container, sub, v object.Object) error
	DeleteSubscr func(container, sub object.Object) error

	// Cells and closures.
	LoadDeref   func(f *frame.Frame, i int) (object.Object, error)
	StoreDeref  func(f *frame.Frame, i int, v object.Object)
	DeleteDeref func(f *frame.Frame, i int) error
	LoadClosure func(f *frame.Frame, i int) (object.Object, error)

	// Iteration.
	GetIter     func(v object.Object) (object.Object, error)
	ForIterNext func(it object.Object) (object.Object, error)

	// Calls.
	CallFunction   func(callee object.Object, args []object.Object) (object.Object, error)
	CallFunctionKw func(callee object.Object, args []object.Object, kwnames []string) (object.Object, error)
	CallFunctionEx func(callee, args, kwargs object.Object) (object.Object, error)
	CallMethod     func(callee, self object.Object, args []object.Object) (object.Object, error)
	MakeFunction   func(f *frame.Frame, code, qualname, defaults, closure object.Object) (object.Object, error)
	LoadBuildClass func(f *frame.Frame) (object.Object, error)

	// Container builders and mutators.
	BuildTuple       func(items []object.Object) object.Object
	BuildList        func(items []object.Object) object.Object
	BuildSet         func(items []object.Object) (object.Object, error)
	BuildMap         func(items []object.Object) (object.Object, error)
	BuildConstKeyMap func(values []object.Object, keys object.Object) (object.Object, error)
	BuildString      func(parts []object.Object) (object.Object, error)
	ListAppend       func(list, v object.Object) error
	SetAdd           func(set, v object.Object) error
	MapAdd           func(dict, key, value object.Object) error
	ListExtend       func(list, iterable object.Object) error
	SetUpdate        func(set, iterable object.Object) error
	DictUpdate       func(dict, src object.Object) error
	DictMerge        func(dict, src object.Object) error
	ListToTuple      func(list object.Object) (object.Object, error)
	UnpackSequence   func(f *frame.Frame, seq object.Object, base, n int) error
	UnpackEx         func(f *frame.Frame, seq object.Object, base, before, after int) error
	FormatValue      func(v, spec object.Object) (object.Object, error)

	// Imports.
	ImportName func(name string) (object.Object, error)
	ImportFrom func(module object.Object, name string) (object.Object, error)
	ImportStar func(f *frame.Frame, module object.Object) error

	// Exceptions and unwinding.
	RaiseException  func(f *frame.Frame) error
	RaiseVarargs    func(f *frame.Frame, args []object.Object) error
	Reraise         func(f *frame.Frame, excType, value, tb object.Object) error
	PopExcept       func(f *frame.Frame, prevType, prevValue, prevTb object.Object) error
	ExcMatch        func(excType, candidate object.Object) (bool, error)
	PushTryBlock    func(f *frame.Frame, vpc bytecode.VPC, offset int64, height int, kind frame.TryKind)
	PopBlock        func(f *frame.Frame) error
	WithExit        func(mgr object.Object) (object.Object, error)
	WithEnter       func(mgr object.Object) (object.Object, error)
	WithExceptStart func(exitFn, excType, value, tb object.Object) (object.Object, error)
	Unwind          func(f *frame.Frame) bool
	Unimplemented   func(f *frame.Frame) error
}

// NewHelpers builds the process-wide helper table. attrs may be nil (no
// attribute storage beyond modules); modules may be nil (imports fail
// with ModuleNotFoundError).
func NewHelpers(attrs AttrSource, modules map[string]object.Object) *Helpers {
	return &Helpers{
		BinaryOp: BinaryOp,
		UnaryOp:  UnaryOp,
		UnaryNot: UnaryNot,
		Compare:  CompareOp,
		Is:       IsOp,
		In:       Contains,
		Truthy:   Truthy,

		LoadGlobal:   LoadGlobal,
		StoreGlobal:  StoreGlobal,
		DeleteGlobal: DeleteGlobal,
		LoadName: func(f *frame.Frame, name string) (object.Object, error) {
			return LoadName(f, nil, name)
		},
		StoreName:  StoreName,
		DeleteName: DeleteName,

		LoadAttr: func(owner object.Object, name string) (object.Object, error) {
			return LoadAttr(owner, name, attrs)
		},
		LoadMethod: func(owner object.Object, name string) (object.Object, error) {
			return LoadMethod(owner, name, attrs)
		},
		StoreAttr: func(owner object.Object, name string, v object.Object) error {
			return StoreAttr(owner, name, v, attrs)
		},
		DeleteAttr: func(owner object.Object, name string) error {
			return StoreAttr(owner, name, nil, attrs)
		},
		BinarySubscr: BinarySubscr,
		StoreSubscr:  StoreSubscr,
		DeleteSubscr: DeleteSubscr,

		LoadDeref:   LoadDeref,
		StoreDeref:  StoreDeref,
		DeleteDeref: DeleteDeref,
		LoadClosure: LoadClosure,

		GetIter:     GetIter,
		ForIterNext: ForIterNext,

		CallFunction:   CallFunction,
		CallFunctionKw: CallFunctionKw,
		CallFunctionEx: CallFunctionEx,
		CallMethod:     CallMethod,
		MakeFunction:   MakeFunction,
		LoadBuildClass: LoadBuildClass,

		BuildTuple:       BuildTuple,
		BuildList:        BuildList,
		BuildSet:         BuildSet,
		BuildMap:         BuildMap,
		BuildConstKeyMap: BuildConstKeyMap,
		BuildString:      BuildString,
		ListAppend:       ListAppend,
		SetAdd:           SetAdd,
		MapAdd:           MapAdd,
		ListExtend:       ListExtend,
		SetUpdate:        SetUpdate,
		DictUpdate:       DictUpdate,
		DictMerge:        DictMerge,
		ListToTuple:      ListToTuple,
		UnpackSequence:   UnpackSequence,
		UnpackEx:         UnpackEx,
		FormatValue:      FormatValue,

		ImportName: func(name string) (object.Object, error) {
			return ImportName(modules, name)
		},
		ImportFrom: ImportFrom,
		ImportStar: ImportStar,

		RaiseException: RaiseException,
		RaiseVarargs:   RaiseVarargs,
		Reraise:        Reraise,
		PopExcept:      PopExcept,
		ExcMatch:       ExcMatch,
		PushTryBlock:   PushTryBlock,
		PopBlock:       PopBlock,
		WithExit: func(mgr object.Object) (object.Object, error) {
			return WithExit(mgr, attrs)
		},
		WithEnter: func(mgr object.Object) (object.Object, error) {
			return WithEnter(mgr, attrs)
		},
		WithExceptStart: WithExceptStart,
		Unwind:          Unwind,
		Unimplemented:   UnimplementedOpcode,
	}
}
