// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtime

import (
	"fmt"

	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/frame"
	"github.com/frameeval/pyjit/object"
)

// AsException coerces a helper error into the boxed exception the frame
// carries as its pending-error indicator.
func AsException(err error) *object.Exception {
	if e, ok := err.(*object.Exception); ok {
		return e
	}
	return object.NewException("SystemError", err.Error())
}

// RaiseException is the error-block entry for failures that originate
// in emitted IR rather than in a helper (a null local observed by
// LOAD_FAST, a null cell observed by LOAD_DEREF). It dispatches on the
// opcode at the frame's last-instruction index to pick the message the
// interpreter would have produced.
func RaiseException(f *frame.Frame) error {
	instr := f.Unit.At(f.LastInstr)
	switch instr.Op {
	case bytecode.OpLoadFast, bytecode.OpDeleteFast, bytecode.OpStoreFast:
		return object.NewException("UnboundLocalError", fmt.Sprintf(
			"local variable '%s' referenced before assignment", localName(f.Unit, int(instr.Arg))))
	case bytecode.OpLoadDeref, bytecode.OpLoadClassDeref, bytecode.OpDeleteDeref:
		return object.NewException("NameError", fmt.Sprintf(
			"free variable '%s' referenced before assignment in enclosing scope", cellName(f.Unit, int(instr.Arg))))
	}
	return object.NewException("SystemError", fmt.Sprintf(
		"error block reached with no raising opcode at vpc %d", f.LastInstr))
}

func localName(u *bytecode.Unit, i int) string {
	if i < len(u.Varnames) {
		return u.Varnames[i]
	}
	return fmt.Sprintf("#%d", i)
}

func cellName(u *bytecode.Unit, i int) string {
	if i < len(u.Cellnames) {
		return u.Cellnames[i]
	}
	return fmt.Sprintf("#%d", i)
}

// RaiseVarargs implements RAISE_VARARGS: argc 0 re-raises the exception
// a surrounding handler is processing, argc 1 raises args[0], argc 2
// raises args[0] from args[1]. The cause is released; chaining is not
// modeled beyond consuming it.
func RaiseVarargs(f *frame.Frame, args []object.Object) error {
	switch len(args) {
	case 0:
		if f.HandledExc == nil {
			return object.NewException("RuntimeError", "No active exception to re-raise")
		}
		Incref(f.HandledExc)
		return f.HandledExc
	case 2:
		Decref(args[1])
		fallthrough
	case 1:
		switch v := args[0].(type) {
		case *object.Exception:
			return v
		case *object.ExcType:
			r, err := v.Call(nil)
			Decref(v)
			if err != nil {
				return err
			}
			return r.(*object.Exception)
		default:
			Decref(args[0])
			return object.NewException("TypeError", "exceptions must derive from BaseException")
		}
	}
	return object.NewException("SystemError", fmt.Sprintf("bad RAISE_VARARGS oparg %d", len(args)))
}

// Reraise implements RERAISE: the three exception slots a handler pushed
// are popped by the emitter and handed here; the value is re-raised and
// the other two released.
func Reraise(f *frame.Frame, excType, value, tb object.Object) error {
	Decref(excType)
	Decref(tb)
	if e, ok := value.(*object.Exception); ok {
		return e
	}
	Decref(value)
	return object.NewException("RuntimeError", "No active exception to re-raise")
}

// PopExcept implements POP_EXCEPT: the handler is done, so pop its
// pseudo try-block entry and restore the previously-handled exception
// from the three popped slots.
func PopExcept(f *frame.Frame, prevType, prevValue, prevTb object.Object) error {
	if f.TryBlocks.Len() == 0 {
		return object.NewException("SystemError", "popped block stack too early")
	}
	b := f.TryBlocks.Pop()
	if b.Kind != frame.TryExceptActive {
		return object.NewException("SystemError", "popped a non-exception block with POP_EXCEPT")
	}
	if f.HandledExc != nil {
		Decref(f.HandledExc)
		f.HandledExc = nil
	}
	if e, ok := prevValue.(*object.Exception); ok {
		Incref(e)
		f.HandledExc = e
	}
	Decref(prevType)
	Decref(prevValue)
	Decref(prevTb)
	return nil
}

// ExcMatch implements JUMP_IF_NOT_EXC_MATCH's test: does the raised
// type (left) match the candidate class or class-tuple (right)?
func ExcMatch(excType, candidate object.Object) (bool, error) {
	left, ok := excType.(*object.ExcType)
	if !ok {
		if e, isExc := excType.(*object.Exception); isExc {
			left = e.Class()
		} else {
			return false, object.NewException("TypeError", "exception type must be a class")
		}
	}
	switch c := candidate.(type) {
	case *object.ExcType:
		return left.Matches(c), nil
	case *object.Tuple:
		for _, item := range c.Items {
			cls, ok := item.(*object.ExcType)
			if !ok {
				return false, object.NewException("TypeError",
					"catching classes that do not inherit from BaseException is not allowed")
			}
			if left.Matches(cls) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, object.NewException("TypeError",
		"catching classes that do not inherit from BaseException is not allowed")
}

// UnimplementedOpcode is the trap target for the generator/coroutine/
// async/pattern-match families. Installation refuses functions using
// them, so executing the trap means the translator emitted code it
// should not have.
func UnimplementedOpcode(f *frame.Frame) error {
	return object.NewException("SystemError", fmt.Sprintf(
		"opcode at vpc %d is not implemented by the translator", f.LastInstr))
}
