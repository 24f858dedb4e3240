// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package emit

import (
	"testing"

	"github.com/frameeval/pyjit/analysis"
	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/cfg"
	"github.com/frameeval/pyjit/ir"
	"github.com/frameeval/pyjit/object"
)

func translate(t *testing.T, u *bytecode.Unit) (*ir.Module, []int, *cfg.Graph) {
	t.Helper()
	g, err := cfg.Build(u)
	if err != nil {
		t.Fatal(err)
	}
	red := analysis.AnalyzeRedundantLoads(u, g)
	analysis.AnalyzeLocalsDefinition(u, g)
	mod, heights, err := Translate(u, g, red)
	if err != nil {
		t.Fatal(err)
	}
	return mod, heights, g
}

func countHelper(mod *ir.Module, name string) int {
	n := 0
	for _, b := range mod.Blocks {
		for _, inst := range b.Insts {
			if (inst.Op == ir.OpCallHelper || inst.Op == ir.OpBinaryArith) && inst.Helper == name {
				n++
			}
		}
	}
	return n
}

// def f(): return 1 + 2: one operator dispatch, increfs on both consts
// kept.
func TestAddConstsEmitsOneDispatch(t *testing.T) {
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadConst, Arg: 0},
			{Op: bytecode.OpLoadConst, Arg: 1},
			{Op: bytecode.OpBinaryAdd},
			{Op: bytecode.OpReturnValue},
		},
		Consts:    []interface{}{object.NewInt(1), object.NewInt(2)},
		StackSize: 2,
	}
	mod, heights, _ := translate(t, u)
	if n := countHelper(mod, "BinaryOp"); n != 1 {
		t.Fatalf("BinaryOp dispatched %d times, want 1", n)
	}
	want := []int{0, 1, 2, 1}
	for vpc, h := range want {
		if heights[vpc] != h {
			t.Errorf("heights[%d] = %d, want %d", vpc, heights[vpc], h)
		}
	}
}

// A redundant LOAD_FAST must emit neither an incref nor a frame-slot
// write of the value; the slot is cleared instead.
func TestRedundantLoadElidesIncref(t *testing.T) {
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadFast, Arg: 0},
			{Op: bytecode.OpReturnValue},
		},
		StackSize: 1,
		NLocals:   1,
		ArgCount:  1,
	}
	mod, _, _ := translate(t, u)
	// The body block should contain exactly one incref: the one RETURN
	// emits for the returned reference.
	increfs := 0
	for _, b := range mod.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.OpIncref {
				increfs++
			}
		}
	}
	if increfs != 1 {
		t.Fatalf("got %d increfs, want only RETURN's", increfs)
	}
}

// An exception handler entered through the trampoline sees six operand
// stack slots above the protected region's depth.
func TestHandlerEntryHeight(t *testing.T) {
	u := scenario5Unit()
	_, _, g := translate(t, u)
	idx := g.BlockAt(5)
	if idx < 0 {
		t.Fatal("vpc 5 should start the handler block")
	}
	b := g.Blocks[idx]
	if !b.IsHandler {
		t.Fatal("handler block not flagged")
	}
	if b.EntryHeight != 6 {
		t.Fatalf("handler entry height = %d, want 6", b.EntryHeight)
	}
}

// Conditional jumps lower to the singleton fast paths plus one Truthy
// fallback.
func TestCondBranchThreeWay(t *testing.T) {
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadFast, Arg: 0},
			{Op: bytecode.OpPopJumpIfFalse, Arg: 4},
			{Op: bytecode.OpLoadConst, Arg: 0},
			{Op: bytecode.OpReturnValue},
			{Op: bytecode.OpLoadConst, Arg: 1},
			{Op: bytecode.OpReturnValue},
		},
		Consts:    []interface{}{object.NewInt(1), object.NewInt(2)},
		StackSize: 1,
		NLocals:   1,
		ArgCount:  1,
	}
	mod, _, _ := translate(t, u)
	ptrEqs := 0
	for _, b := range mod.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.OpPtrEq {
				ptrEqs++
			}
		}
	}
	if ptrEqs != 2 {
		t.Fatalf("got %d singleton compares, want 2", ptrEqs)
	}
	if n := countHelper(mod, "Truthy"); n != 1 {
		t.Fatalf("Truthy fallback emitted %d times, want 1", n)
	}
}

// Branching to a block from two paths with different stack heights is a
// translation error, not silently accepted.
func TestStackHeightMismatchRejected(t *testing.T) {
	// 0: LOAD_CONST
	// 1: POP_JUMP_IF_TRUE -> 3  ; branch edge enters 3 at height 0
	// 2: LOAD_CONST             ; fall-through edge enters 3 at height 1
	// 3: RETURN_VALUE
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadConst, Arg: 0},
			{Op: bytecode.OpPopJumpIfTrue, Arg: 3},
			{Op: bytecode.OpLoadConst, Arg: 0},
			{Op: bytecode.OpReturnValue},
		},
		Consts:    []interface{}{object.NewInt(1)},
		StackSize: 2,
	}
	g, err := cfg.Build(u)
	if err != nil {
		t.Fatal(err)
	}
	red := analysis.AnalyzeRedundantLoads(u, g)
	analysis.AnalyzeLocalsDefinition(u, g)
	if _, _, err := Translate(u, g, red); err == nil {
		t.Fatal("expected a stack-height determinism error")
	}
}

func scenario5Unit() *bytecode.Unit {
	// def f():
	//     try: raise ValueError('x')
	//     except ValueError as e: return 42
	return &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpSetupFinally, Arg: 5},
			{Op: bytecode.OpLoadGlobal, Arg: 0},
			{Op: bytecode.OpLoadConst, Arg: 0},
			{Op: bytecode.OpCallFunction, Arg: 1},
			{Op: bytecode.OpRaiseVarargs, Arg: 1},
			{Op: bytecode.OpDupTop},
			{Op: bytecode.OpLoadGlobal, Arg: 0},
			{Op: bytecode.OpJumpIfNotExcMatch, Arg: 14},
			{Op: bytecode.OpPopTop},
			{Op: bytecode.OpStoreFast, Arg: 0},
			{Op: bytecode.OpPopTop},
			{Op: bytecode.OpPopExcept},
			{Op: bytecode.OpLoadConst, Arg: 1},
			{Op: bytecode.OpReturnValue},
			{Op: bytecode.OpReraise},
		},
		Consts:    []interface{}{object.NewStr("x"), object.NewInt(42)},
		Names:     []string{"ValueError"},
		Varnames:  []string{"e"},
		StackSize: 8,
		NLocals:   1,
	}
}
