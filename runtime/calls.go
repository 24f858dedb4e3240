// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtime

import (
	"fmt"

	"github.com/frameeval/pyjit/frame"
	"github.com/frameeval/pyjit/object"
)

// Callable is satisfied by any object invocable via CALL_FUNCTION and
// its variants: a host function, a compiled function record, or a
// bound method. Call dispatch is vectorcall-style, over an argument
// array laid out contiguously; Callable is the minimal contract that
// lets this package stay agnostic of how a given embedder represents
// callables. Call borrows args for the duration of the call.
type Callable interface {
	object.Object
	Call(args []object.Object) (object.Object, error)
}

// CallFunction implements CALL_FUNCTION: args is the contiguous argument
// array already popped off the frame's value stack, deepest-first. The
// callee and every argument are consumed, decreffed after the call
// returns, successful or not, matching the "vectorcall decrefs its own
// argument array" contract; the emitter records the post-pop stack
// height for this vpc so an unwind never re-releases them.
func CallFunction(callee object.Object, args []object.Object) (object.Object, error) {
	defer func() {
		Decref(callee)
		for _, a := range args {
			Decref(a)
		}
	}()
	c, ok := callee.(Callable)
	if !ok {
		return nil, object.NewException("TypeError", fmt.Sprintf("'%s' object is not callable", callee.Type().Name))
	}
	return c.Call(args)
}

// CallFunctionKw implements CALL_FUNCTION_KW: kwnames holds the trailing
// keyword-argument names in the same order as their values at the tail
// of args.
func CallFunctionKw(callee object.Object, args []object.Object, kwnames []string) (object.Object, error) {
	if len(kwnames) > 0 {
		Decref(callee)
		for _, a := range args {
			Decref(a)
		}
		return nil, object.NewException("TypeError", fmt.Sprintf("%s() got unexpected keyword arguments", calleeName(callee)))
	}
	return CallFunction(callee, args)
}

// CallMethod implements CALL_METHOD: self is nil when LOAD_METHOD
// resolved to an unbound function (self was left on the stack as a
// regular positional argument instead).
func CallMethod(callee, self object.Object, args []object.Object) (object.Object, error) {
	if self != nil {
		full := make([]object.Object, 0, len(args)+1)
		full = append(full, self)
		full = append(full, args...)
		return CallFunction(callee, full)
	}
	return CallFunction(callee, args)
}

func calleeName(c object.Object) string {
	if c == nil {
		return "?"
	}
	return c.Type().Name
}

// CallFunctionEx implements CALL_FUNCTION_EX: args is a sequence,
// kwargs (optional) a mapping. Like the other call helpers it consumes
// everything it is handed.
func CallFunctionEx(callee, args, kwargs object.Object) (object.Object, error) {
	defer func() {
		Decref(args)
		Decref(kwargs)
	}()
	if kwargs != nil {
		if d, ok := kwargs.(*object.Dict); !ok || d.Len() > 0 {
			Decref(callee)
			return nil, object.NewException("TypeError", fmt.Sprintf(
				"%s() got unexpected keyword arguments", calleeName(callee)))
		}
	}
	var expanded []object.Object
	err := eachItem(args, func(v object.Object) error {
		Incref(v)
		expanded = append(expanded, v)
		return nil
	})
	if err != nil {
		Decref(callee)
		for _, v := range expanded {
			Decref(v)
		}
		return nil, err
	}
	return CallFunction(callee, expanded)
}

// FunctionInvoker is the frame evaluator MakeFunction installs on new
// function objects; the installation layer assigns it at module init so
// functions created by compiled code run through the same dispatcher as
// everything else.
var FunctionInvoker func(fn *object.Function, args []object.Object) (object.Object, error)

// MakeFunction implements MAKE_FUNCTION: code is the boxed code-object
// constant, qualname the name string, defaults and closure optional.
func MakeFunction(f *frame.Frame, code, qualname, defaults, closure object.Object) (object.Object, error) {
	box, ok := code.(*object.Code)
	if !ok {
		return nil, object.NewException("SystemError", "MAKE_FUNCTION code must be a code object")
	}
	name := "<anonymous>"
	if s, ok := qualname.(*object.Str); ok {
		name = s.Value
	}
	fn := object.NewFunction(name, box.Unit, f.Globals)
	fn.Invoke = FunctionInvoker
	if defaults != nil {
		t, ok := defaults.(*object.Tuple)
		if !ok {
			return nil, object.NewException("SystemError", "MAKE_FUNCTION defaults must be a tuple")
		}
		Incref(t)
		fn.Defaults = t
	}
	if closure != nil {
		t, ok := closure.(*object.Tuple)
		if !ok {
			return nil, object.NewException("SystemError", "MAKE_FUNCTION closure must be a tuple")
		}
		fn.Closure = make([]*object.Cell, len(t.Items))
		for i, c := range t.Items {
			cell, ok := c.(*object.Cell)
			if !ok {
				return nil, object.NewException("SystemError", "MAKE_FUNCTION closure item is not a cell")
			}
			Incref(cell)
			fn.Closure[i] = cell
		}
	}
	return fn, nil
}

// LoadBuildClass implements LOAD_BUILD_CLASS by resolving the
// __build_class__ builtin.
func LoadBuildClass(f *frame.Frame) (object.Object, error) {
	return LoadGlobal(f, "__build_class__")
}
