// Copyright 2018 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"testing"

	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/cfg"
)

func build(t *testing.T, u *bytecode.Unit) *cfg.Graph {
	t.Helper()
	g, err := cfg.Build(u)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// def f(): return 1 + 2
// Neither LOAD_CONST is redundant: both are observed by BINARY_ADD.
func TestRedundantLoadConstsObserved(t *testing.T) {
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadConst},
			{Op: bytecode.OpLoadConst},
			{Op: bytecode.OpBinaryAdd},
			{Op: bytecode.OpReturnValue},
		},
		StackSize: 2,
	}
	g := build(t, u)
	r := AnalyzeRedundantLoads(u, g)
	for vpc := 0; vpc < 2; vpc++ {
		if r.RedundantLoads.Get(vpc) {
			t.Errorf("vpc %d marked redundant, want observed", vpc)
		}
	}
}

// def f(x): y = x; return y
// Both LOAD_FASTs are redundant: neither local is rewritten between the
// load and the point its value is consumed, so the local slot itself
// keeps the value alive and the incref can be elided.
func TestRedundantLoadFastFeedsReturn(t *testing.T) {
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadFast, Arg: 0},
			{Op: bytecode.OpStoreFast, Arg: 1},
			{Op: bytecode.OpLoadFast, Arg: 1},
			{Op: bytecode.OpReturnValue},
		},
		StackSize: 1,
		NLocals:   2,
		ArgCount:  1,
	}
	g := build(t, u)
	r := AnalyzeRedundantLoads(u, g)
	if !r.RedundantLoads.Get(2) {
		t.Error("LOAD_FAST y before RETURN_VALUE should be marked redundant: y is not rewritten afterward")
	}
	if !r.RedundantLoads.Get(0) {
		t.Error("LOAD_FAST x should be marked redundant: x is never rewritten")
	}
}

// A LOAD_FAST whose local is rewritten before the loaded value is
// consumed must keep its incref: the slot no longer holds the value when
// the consumer runs.
func TestLoadFastRewrittenBeforeUseNotRedundant(t *testing.T) {
	// 0: LOAD_FAST 0
	// 1: LOAD_CONST
	// 2: STORE_FAST 0   ; clobbers local 0 while its old value is live
	// 3: RETURN_VALUE   ; consumes the value loaded at vpc 0
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadFast, Arg: 0},
			{Op: bytecode.OpLoadConst},
			{Op: bytecode.OpStoreFast, Arg: 0},
			{Op: bytecode.OpReturnValue},
		},
		StackSize: 2,
		NLocals:   1,
		ArgCount:  1,
	}
	g := build(t, u)
	r := AnalyzeRedundantLoads(u, g)
	if r.RedundantLoads.Get(0) {
		t.Error("LOAD_FAST consumed after its local is rewritten must not be marked redundant")
	}
}

// After the backward pass, each block's bitsets are in the flipped form
// the definition analyzer combines: LocalsTouched holds the complement
// of the touched set and LocalsDeleted holds touched locals whose
// deletion did not survive to the block boundary.
func TestBlockBitsetsAreFlipped(t *testing.T) {
	// One block: STORE_FAST 0; DELETE_FAST 1 (survives); LOAD_FAST 2.
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadConst},
			{Op: bytecode.OpStoreFast, Arg: 0},
			{Op: bytecode.OpDeleteFast, Arg: 1},
			{Op: bytecode.OpLoadFast, Arg: 2},
			{Op: bytecode.OpReturnValue},
		},
		StackSize: 1,
		NLocals:   4,
	}
	g := build(t, u)
	AnalyzeRedundantLoads(u, g)
	b := g.Blocks[0]
	if b.LocalsTouched.Get(0) || b.LocalsTouched.Get(1) || b.LocalsTouched.Get(2) {
		t.Error("touched locals must be clear in the flipped LocalsTouched set")
	}
	if !b.LocalsTouched.Get(3) {
		t.Error("untouched local 3 must be set in the flipped LocalsTouched set")
	}
	if !b.LocalsDeleted.Get(0) || !b.LocalsDeleted.Get(2) {
		t.Error("locals written or read last must be set in LocalsDeleted (defined on exit)")
	}
	if b.LocalsDeleted.Get(1) {
		t.Error("a local whose last touch is DELETE_FAST must be clear in LocalsDeleted")
	}
}

// def f(): a = 1; del a; return a: DELETE_FAST marks locals_ever_deleted
// for local 0 even though the later LOAD_FAST in the same block means the
// deletion itself does not survive to the block boundary.
func TestDeleteFastMarksEverDeleted(t *testing.T) {
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadConst},
			{Op: bytecode.OpStoreFast, Arg: 0},
			{Op: bytecode.OpDeleteFast, Arg: 0},
			{Op: bytecode.OpLoadFast, Arg: 0},
			{Op: bytecode.OpReturnValue},
		},
		StackSize: 1,
		NLocals:   1,
	}
	g := build(t, u)
	AnalyzeRedundantLoads(u, g)
	if !g.Blocks[0].LocalsEverDel.Get(0) {
		t.Error("DELETE_FAST must mark locals_ever_deleted")
	}
}

// def f(xs): s = 0; for x in xs: s = s + x; return s
// Exercises the forward locals-definition fixed point across a loop
// back-edge: s and xs must be defined at every block's entry including
// the loop body re-entered via its own back edge.
func TestLocalsDefinitionAcrossLoop(t *testing.T) {
	// locals: 0=xs (arg), 1=s, 2=x
	// 0: LOAD_CONST              ; 0
	// 1: STORE_FAST 1            ; s = 0
	// 2: LOAD_FAST 0             ; xs
	// 3: GET_ITER
	// 4: FOR_ITER -> 11          ; loop header, branch target
	// 5: STORE_FAST 2            ; x = ...
	// 6: LOAD_FAST 1
	// 7: LOAD_FAST 2
	// 8: BINARY_ADD
	// 9: STORE_FAST 1            ; s = s + x
	// 10: JUMP_ABSOLUTE -> 4     ; loop back edge
	// 11: LOAD_FAST 1            ; loop exit target
	// 12: RETURN_VALUE
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadConst},
			{Op: bytecode.OpStoreFast, Arg: 1},
			{Op: bytecode.OpLoadFast, Arg: 0},
			{Op: bytecode.OpGetIter},
			{Op: bytecode.OpForIter, Arg: 11},
			{Op: bytecode.OpStoreFast, Arg: 2},
			{Op: bytecode.OpLoadFast, Arg: 1},
			{Op: bytecode.OpLoadFast, Arg: 2},
			{Op: bytecode.OpBinaryAdd},
			{Op: bytecode.OpStoreFast, Arg: 1},
			{Op: bytecode.OpJumpAbsolute, Arg: 4},
			{Op: bytecode.OpLoadFast, Arg: 1},
			{Op: bytecode.OpReturnValue},
		},
		StackSize: 3,
		NLocals:   3,
		ArgCount:  1,
	}

	g := build(t, u)
	r := AnalyzeRedundantLoads(u, g)
	_ = r
	AnalyzeLocalsDefinition(u, g)

	loopHeader := g.BlockAt(4)
	if loopHeader < 0 {
		t.Fatal("vpc 4 should start a block")
	}
	b := g.Blocks[loopHeader]
	if !b.LocalsInput.Get(0) {
		t.Error("xs (local 0) should be defined at the loop header")
	}
	if !b.LocalsInput.Get(1) {
		t.Error("s (local 1) should be defined at the loop header, including on the back edge")
	}
}
