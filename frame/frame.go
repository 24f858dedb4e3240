// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package frame models the frame layout the emitter generates code
// against: a fixed set of fields (locals, value stack, try-block stack,
// last-instruction index, globals/builtins) at predictable offsets,
// standing in for the host's real C frame struct.
package frame

import (
	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/object"
)

// TryBlock is one entry on a Frame's exception/with/finally unwind
// stack, recording where control resumes and how far the value stack
// must be unwound to reach the state at the matching SETUP_* instruction.
type TryBlock struct {
	// HandlerVPC is where the block's handler code begins.
	HandlerVPC bytecode.VPC
	// HandlerOffset is the handler block's precomputed address-difference
	// from the function's anchor block; runtime.Unwind stores it into
	// Frame.Resume so the entry trampoline can dispatch to the handler.
	HandlerOffset int64
	// StackHeight is the abstract value-stack depth to restore to before
	// jumping to HandlerVPC.
	StackHeight int
	// Kind distinguishes SETUP_FINALLY from SETUP_WITH handling in
	// runtime.Unwind (WITH additionally owns a context-manager exit call).
	Kind TryKind
}

// TryKind identifies what installed a TryBlock.
type TryKind int

const (
	TryFinally TryKind = iota
	TryWith
	// TryExceptActive marks a handler that runtime.Unwind has already
	// landed in; unwinding through it restores the previously-handled
	// exception instead of transferring control.
	TryExceptActive
)

// TryBlockStack is a frame's stack of active try/with blocks, innermost
// last, mirroring CPython's f_blockstack / PyTryBlock array.
type TryBlockStack struct {
	blocks []TryBlock
}

// Push installs a new try block.
func (s *TryBlockStack) Push(b TryBlock) { s.blocks = append(s.blocks, b) }

// Pop removes and returns the innermost try block. It panics if the
// stack is empty, a translation bug, since POP_BLOCK is only ever
// emitted for a SETUP_* this frame's compiled code already pushed.
func (s *TryBlockStack) Pop() TryBlock {
	n := len(s.blocks)
	b := s.blocks[n-1]
	s.blocks = s.blocks[:n-1]
	return b
}

// Len reports how many try blocks are active.
func (s *TryBlockStack) Len() int { return len(s.blocks) }

// Top returns the innermost try block without removing it, and whether
// the stack was non-empty.
func (s *TryBlockStack) Top() (TryBlock, bool) {
	if len(s.blocks) == 0 {
		return TryBlock{}, false
	}
	return s.blocks[len(s.blocks)-1], true
}

// Frame is the per-call activation record the translated code and the
// runtime helper table both operate on: a flat struct with fixed
// fields, read by constant offset with no indirection through a richer
// abstraction.
type Frame struct {
	Unit *bytecode.Unit

	Locals []object.Object
	Cells  []*object.Cell

	// Values is the frame's operand stack; emit.Emitter only ever
	// materializes onto it the slots the redundancy analysis could not
	// eliminate.
	Values []object.Object
	// SP is the number of live slots in Values (Values is pre-sized to
	// the unit's StackSize and reused across calls, matching the
	// fixed-stack-depth guarantee CPython's compiler already proves).
	SP int

	TryBlocks TryBlockStack

	LastInstr bytecode.VPC

	// Exc is the pending (raised, not yet handled) exception, the
	// thread-state error indicator scoped to this frame. HandledExc is
	// the exception a currently-active handler is processing, restored
	// by POP_EXCEPT.
	Exc        *object.Exception
	HandledExc *object.Exception

	// Resume is the handler address-offset the entry trampoline
	// dispatches through; zero means ordinary entry at the first block.
	Resume int64

	Globals  map[string]object.Object
	Builtins map[string]object.Object
}

// New allocates a Frame ready to run u with the given bound arguments
// (positional args already placed in locals[0:len(args)]), globals and
// builtins.
func New(u *bytecode.Unit, args []object.Object, globals, builtins map[string]object.Object) *Frame {
	f := &Frame{
		Unit:     u,
		Locals:   make([]object.Object, u.NLocals),
		Cells:    make([]*object.Cell, u.NCells+u.NFrees),
		Values:   make([]object.Object, u.StackSize),
		Globals:  globals,
		Builtins: builtins,
	}
	copy(f.Locals, args)
	for i := 0; i < u.NCells; i++ {
		f.Cells[i] = object.NewCell(nil)
	}
	return f
}

// Push places v on the frame's value stack.
func (f *Frame) Push(v object.Object) {
	f.Values[f.SP] = v
	f.SP++
}

// Pop removes and returns the top of the value stack.
func (f *Frame) Pop() object.Object {
	f.SP--
	v := f.Values[f.SP]
	f.Values[f.SP] = nil
	return v
}

// Peek returns the value n slots below the top (0 is the top itself)
// without removing it.
func (f *Frame) Peek(n int) object.Object { return f.Values[f.SP-1-n] }

// PopN removes and returns the top n values, in stack order (index 0 was
// deepest of the popped group).
func (f *Frame) PopN(n int) []object.Object {
	out := make([]object.Object, n)
	copy(out, f.Values[f.SP-n:f.SP])
	for i := f.SP - n; i < f.SP; i++ {
		f.Values[i] = nil
	}
	f.SP -= n
	return out
}
