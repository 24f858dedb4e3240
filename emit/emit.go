// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package emit drives the per-block translation of bytecode into ir
// operations. It maintains a compile-time model of the operand stack
// whose entries carry both the ir value occupying the slot and whether
// that slot's reference was actually materialized into the runtime
// frame. This deferred-materialization discipline is what lets the
// redundancy analysis elide incref/decref pairs.
package emit

import (
	"fmt"

	"github.com/frameeval/pyjit/analysis"
	"github.com/frameeval/pyjit/bitset"
	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/cfg"
	"github.com/frameeval/pyjit/ir"
)

// trampolineStride spaces the synthetic handler offsets stored in the
// try-block stack; any fixed nonzero stride works since the backend maps
// offsets back to blocks through Module.AnchorOffsets.
const trampolineStride = 16

// entry is one abstract operand-stack slot.
type entry struct {
	val    ir.Value
	really bool
}

// Emitter translates one analyzed code unit into an ir.Module.
type Emitter struct {
	unit *bytecode.Unit
	g    *cfg.Graph
	red  *analysis.Redundant

	mod     *ir.Module
	bodies  []*ir.Block
	exits   *ir.Block // the return-null block reached when unwinding fails
	cur     *ir.Block
	stack   []entry
	heights []int
	defined bitset.Bitset

	trampoline []*ir.Block // indirect-branch targets: body 0 first, handlers after
	offsets    map[int]int64
}

// Translate runs the emitter over u, whose graph g must already carry
// the redundancy analyzer's bitsets and the locals-definition inputs.
// It returns the finished module and the vpc→stack-height side table
// the unwind helper consumes.
func Translate(u *bytecode.Unit, g *cfg.Graph, red *analysis.Redundant) (*ir.Module, []int, error) {
	e := &Emitter{
		unit:    u,
		g:       g,
		red:     red,
		mod:     ir.NewModule(u.Name),
		heights: make([]int, u.Len()),
		defined: bitset.New(u.NLocals),
		offsets: map[int]int64{},
	}
	e.bodies = make([]*ir.Block, len(g.Blocks))
	for i, b := range g.Blocks {
		e.bodies[i] = e.mod.NewBlock(fmt.Sprintf("b%d", b.Start))
	}
	e.exits = e.mod.NewBlock("raise")
	e.exits.Emit(ir.Inst{Op: ir.OpReturn})
	e.trampoline = append(e.trampoline, e.bodies[0])

	if len(g.Blocks) > 0 {
		g.Blocks[0].EntryHeight = 0
	}
	for i := range g.Blocks {
		if err := e.emitBlock(i); err != nil {
			return nil, nil, err
		}
	}

	// Entry trampoline: ordinary entry dispatches to the first body
	// block, handler re-entry to the block selected by the offset the
	// unwind helper stored.
	e.mod.Entry.Emit(ir.Inst{Op: ir.OpIndirectBranch, Targets: e.trampoline})

	// Error block: reconcile the try-block stack; re-enter through the
	// trampoline if a handler accepted, otherwise return null with the
	// pending exception set.
	resume := e.mod.ErrorExit.EmitValue(e.mod, ir.Inst{Op: ir.OpCallHelper, Helper: "Unwind"})
	e.mod.ErrorExit.Emit(ir.Inst{Op: ir.OpCondBranch, Args: []ir.Value{resume}, Targets: []*ir.Block{e.mod.Entry, e.exits}})

	return e.mod, e.heights, nil
}

// handlerTarget registers block index idx as a trampoline destination
// and returns its stored offset.
func (e *Emitter) handlerTarget(idx int) int64 {
	if off, ok := e.offsets[idx]; ok {
		return off
	}
	off := int64(len(e.trampoline)) * trampolineStride
	e.offsets[idx] = off
	e.trampoline = append(e.trampoline, e.bodies[idx])
	e.mod.AnchorOffsets[e.bodies[idx]] = off
	e.g.Blocks[idx].IsHandler = true
	return off
}

// edge records height as the entry stack height of block idx, or fails
// if a different height was already recorded by another predecessor.
func (e *Emitter) edge(idx, height int) error {
	if idx >= len(e.g.Blocks) {
		return fmt.Errorf("emit: %s: branch past the last block", e.unit.Name)
	}
	b := e.g.Blocks[idx]
	if b.EntryHeight < 0 {
		b.EntryHeight = height
		return nil
	}
	if b.EntryHeight != height {
		return fmt.Errorf("emit: %s: block at vpc %d entered with stack heights %d and %d",
			e.unit.Name, b.Start, b.EntryHeight, height)
	}
	return nil
}

func (e *Emitter) push(v ir.Value, really bool) {
	slot := len(e.stack)
	if really {
		e.cur.Emit(ir.Inst{Op: ir.OpStackStore, Local: slot, Args: []ir.Value{v}})
	} else {
		// Clear the slot so an unwind drain across this height sees no
		// stale pointer where no reference was materialized.
		e.cur.Emit(ir.Inst{Op: ir.OpStackStore, Local: slot, Args: []ir.Value{ir.Const(0)}})
	}
	e.stack = append(e.stack, entry{val: v, really: really})
}

// pushLoaded appends a slot the runtime already wrote and increffed
// (helper side effects like UNPACK_SEQUENCE).
func (e *Emitter) pushLoaded(v ir.Value) {
	e.stack = append(e.stack, entry{val: v, really: true})
}

func (e *Emitter) pop() entry {
	n := len(e.stack) - 1
	s := e.stack[n]
	e.stack = e.stack[:n]
	return s
}

func (e *Emitter) popN(n int) []entry {
	out := make([]entry, n)
	copy(out, e.stack[len(e.stack)-n:])
	e.stack = e.stack[:len(e.stack)-n]
	return out
}

func (e *Emitter) peek(n int) *entry { return &e.stack[len(e.stack)-1-n] }

// noteHeight re-records vpc's side-table entry after an opcode's pops:
// reference-consuming helpers own the popped slots from here on, so an
// unwind at this vpc must not release them again.
func (e *Emitter) noteHeight(vpc bytecode.VPC) {
	e.heights[vpc] = len(e.stack)
}

func (e *Emitter) decrefIfOwned(s entry) {
	if s.really {
		e.cur.Emit(ir.Inst{Op: ir.OpDecref, Args: []ir.Value{s.val}})
	}
}

// takeRef gives the consumer an owned reference: slots whose incref was
// deferred acquire it here, at the point a reference-stealing consumer
// actually needs one.
func (e *Emitter) takeRef(s entry) {
	if !s.really {
		e.cur.Emit(ir.Inst{Op: ir.OpIncref, Args: []ir.Value{s.val}})
	}
}

// own materializes slot i in place: the reference is acquired and the
// frame slot written, after which the entry behaves like any other.
func (e *Emitter) own(i int) {
	s := &e.stack[i]
	if s.really {
		return
	}
	e.cur.Emit(ir.Inst{Op: ir.OpIncref, Args: []ir.Value{s.val}})
	e.cur.Emit(ir.Inst{Op: ir.OpStackStore, Local: i, Args: []ir.Value{s.val}})
	s.really = true
}

// flush materializes every live slot, required before control leaves
// the current block: successors and unwind handlers reload the operand
// stack from the frame with all slots presumed owned.
func (e *Emitter) flush() {
	for i := range e.stack {
		e.own(i)
	}
}

func (e *Emitter) call(helper string, sentinel ir.Sentinel, args ...ir.Value) ir.Value {
	return e.cur.EmitValue(e.mod, ir.Inst{Op: ir.OpCallHelper, Helper: helper, Sentinel: sentinel, Args: args})
}

func (e *Emitter) callVoid(helper string, sentinel ir.Sentinel, args ...ir.Value) {
	e.cur.Emit(ir.Inst{Op: ir.OpCallHelper, Helper: helper, Sentinel: sentinel, Args: args})
}

func (e *Emitter) branch(b *ir.Block) {
	e.cur.Emit(ir.Inst{Op: ir.OpBranch, Targets: []*ir.Block{b}})
}

// emitBlock translates cfg block i into its ir block.
func (e *Emitter) emitBlock(i int) error {
	b := e.g.Blocks[i]
	e.cur = e.bodies[i]

	if b.EntryHeight < 0 {
		// Never reached by any forward edge or handler registration:
		// either dead code or a shape the forward emission order cannot
		// height-assign. Trap rather than translate with a guessed
		// stack.
		e.cur.Emit(ir.Inst{Op: ir.OpTrap, VPC: b.Start})
		e.branch(e.mod.ErrorExit)
		return nil
	}

	e.stack = e.stack[:0]
	for j := 0; j < b.EntryHeight; j++ {
		t := e.cur.EmitValue(e.mod, ir.Inst{Op: ir.OpStackLoad, Local: j})
		e.stack = append(e.stack, entry{val: t, really: true})
	}
	e.defined.CopyFrom(b.LocalsInput)

	fall := true
	for vpc := b.Start; vpc < b.End; vpc++ {
		e.heights[vpc] = len(e.stack)
		e.cur.Emit(ir.Inst{Op: ir.OpSetLastInstr, VPC: vpc})
		done, err := e.emitOp(i, vpc)
		if err != nil {
			return err
		}
		if done {
			fall = false
			break
		}
	}

	if fall {
		e.flush()
		if err := e.edge(i+1, len(e.stack)); err != nil {
			return err
		}
		e.branch(e.bodies[i+1])
	}
	return nil
}
