// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtime

import (
	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/frame"
	"github.com/frameeval/pyjit/object"
)

// PushTryBlock implements SETUP_FINALLY and SETUP_WITH: record the
// handler's vpc, its precomputed trampoline offset and the operand-stack
// depth to restore on unwind.
func PushTryBlock(f *frame.Frame, vpc bytecode.VPC, offset int64, height int, kind frame.TryKind) {
	f.TryBlocks.Push(frame.TryBlock{
		HandlerVPC:    vpc,
		HandlerOffset: offset,
		StackHeight:   height,
		Kind:          kind,
	})
}

// PopBlock implements POP_BLOCK: the protected range exited normally,
// discard its try-block entry.
func PopBlock(f *frame.Frame) error {
	if f.TryBlocks.Len() == 0 {
		return object.NewException("SystemError", "popped block stack too early")
	}
	f.TryBlocks.Pop()
	return nil
}

// Unwind is the central landing pad invoked from the error block of
// every compiled function. It reconciles the frame with the recorded
// stack height for the raising vpc, then walks the try-block stack:
// already-active handler entries are unwound (restoring the previously
// handled exception), and the first still-armed entry receives control:
// the current exception is normalized, the handler's six-value context
// is pushed, the handler offset is stored for the entry trampoline, and
// true is returned so the caller re-enters the function. With no armed
// entry left the operand stack is drained, the pending exception is left
// set, and false tells the caller to propagate.
func Unwind(f *frame.Frame) bool {
	if h := stackHeightAt(f.LastInstr); h >= 0 {
		f.SP = h
	}
	exc := f.Exc
	f.Exc = nil
	if exc == nil {
		exc = object.NewException("SystemError", "unwind with no pending exception")
	}

	for f.TryBlocks.Len() > 0 {
		b := f.TryBlocks.Pop()
		if b.Kind == frame.TryExceptActive {
			// Unwinding out of a handler that was itself interrupted:
			// discard its working slots and restore the previous
			// exception from the three context slots beneath them.
			for f.SP > b.StackHeight+3 {
				Decref(f.Pop())
			}
			prevType := f.Pop()
			prevValue := f.Pop()
			prevTb := f.Pop()
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
			continue
		}

		for f.SP > b.StackHeight {
			Decref(f.Pop())
		}

		// Push the six-value handler context: the previous exception
		// triple below the normalized current one, type on top.
		if f.HandledExc != nil {
			f.Push(object.NewNone())
			Incref(f.HandledExc)
			f.Push(f.HandledExc)
			cls := f.HandledExc.Class()
			Incref(cls)
			f.Push(cls)
			Decref(f.HandledExc)
		} else {
			f.Push(object.NewNone())
			f.Push(object.NewNone())
			f.Push(object.NewNone())
		}
		f.Push(object.NewNone())
		Incref(exc)
		f.Push(exc)
		cls := exc.Class()
		Incref(cls)
		f.Push(cls)

		f.HandledExc = exc
		f.TryBlocks.Push(frame.TryBlock{
			HandlerVPC:  b.HandlerVPC,
			StackHeight: b.StackHeight,
			Kind:        frame.TryExceptActive,
		})
		f.Resume = b.HandlerOffset
		return true
	}

	for f.SP > 0 {
		Decref(f.Pop())
	}
	f.Exc = exc
	return false
}
