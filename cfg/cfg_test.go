// Copyright 2018 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cfg

import (
	"testing"

	"github.com/frameeval/pyjit/bytecode"
)

func unitFromOps(instrs ...bytecode.Instr) *bytecode.Unit {
	return &bytecode.Unit{Name: "t", Instrs: instrs, NLocals: 4}
}

func TestBuildStraightLine(t *testing.T) {
	u := unitFromOps(
		bytecode.Instr{Op: bytecode.OpLoadConst},
		bytecode.Instr{Op: bytecode.OpLoadConst},
		bytecode.Instr{Op: bytecode.OpBinaryAdd},
		bytecode.Instr{Op: bytecode.OpReturnValue},
	)
	g, err := Build(u)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(g.Blocks))
	}
	if g.Blocks[0].Start != 0 || g.Blocks[0].End != 4 {
		t.Fatalf("got block [%d,%d), want [0,4)", g.Blocks[0].Start, g.Blocks[0].End)
	}
	if g.Blocks[0].FallThrough {
		t.Fatal("block ending in RETURN_VALUE should not fall through")
	}
}

func TestBuildBranchSplitsBlocks(t *testing.T) {
	// 0: LOAD_FAST 0
	// 1: POP_JUMP_IF_FALSE -> 3
	// 2: JUMP_FORWARD -> 4
	// 3: LOAD_CONST
	// 4: RETURN_VALUE
	u := unitFromOps(
		bytecode.Instr{Op: bytecode.OpLoadFast},
		bytecode.Instr{Op: bytecode.OpPopJumpIfFalse, Arg: 3},
		bytecode.Instr{Op: bytecode.OpJumpForward, Arg: 4},
		bytecode.Instr{Op: bytecode.OpLoadConst},
		bytecode.Instr{Op: bytecode.OpReturnValue},
	)
	g, err := Build(u)
	if err != nil {
		t.Fatal(err)
	}
	// Boundaries at 0, 2, 3, 4, 5 -> four blocks.
	if len(g.Blocks) != 4 {
		t.Fatalf("got %d blocks, want 4: %+v", len(g.Blocks), g.Blocks)
	}
	if g.BlockAt(3) < 0 {
		t.Fatal("vpc 3 (branch target) must start a block")
	}
	if g.BlockAt(4) < 0 {
		t.Fatal("vpc 4 (branch target) must start a block")
	}
	for _, b := range g.Blocks {
		if b.Start >= b.End {
			t.Fatalf("empty block %+v", b)
		}
	}
}

func TestBuildRejectsEmptyUnit(t *testing.T) {
	u := &bytecode.Unit{Name: "empty"}
	if _, err := Build(u); err == nil {
		t.Fatal("expected error for empty code unit")
	}
}

func TestBlockContainingBinarySearch(t *testing.T) {
	u := unitFromOps(
		bytecode.Instr{Op: bytecode.OpLoadFast},
		bytecode.Instr{Op: bytecode.OpPopJumpIfFalse, Arg: 3},
		bytecode.Instr{Op: bytecode.OpJumpForward, Arg: 4},
		bytecode.Instr{Op: bytecode.OpLoadConst},
		bytecode.Instr{Op: bytecode.OpReturnValue},
	)
	g, err := Build(u)
	if err != nil {
		t.Fatal(err)
	}
	for vpc := bytecode.VPC(0); vpc < u.Len(); vpc++ {
		idx := g.BlockContaining(vpc)
		b := g.Blocks[idx]
		if vpc < b.Start || vpc >= b.End {
			t.Fatalf("vpc %d resolved to block [%d,%d)", vpc, b.Start, b.End)
		}
	}
}
