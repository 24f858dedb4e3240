// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cfg partitions a bytecode stream into basic blocks in a
// single forward pass over the instruction array.
package cfg

import (
	"fmt"
	"sort"

	"github.com/frameeval/pyjit/bitset"
	"github.com/frameeval/pyjit/bytecode"
)

// Block is a maximal contiguous vpc range containing no internal branch
// target, terminated either by the start of another block or by a
// terminating opcode (RETURN_VALUE, RERAISE, RAISE_VARARGS).
type Block struct {
	Start bytecode.VPC
	End   bytecode.VPC // exclusive

	EntryHeight int // -1 until assigned by the first predecessor to emit
	FallThrough bool
	Branch      int // index into Graph.Blocks, or -1
	IsHandler   bool

	// LocalsTouched/LocalsDeleted/LocalsEverDel are populated by
	// analysis.AnalyzeRedundantLoads; LocalsInput is populated by
	// analysis.AnalyzeLocalsDefinition. cfg only allocates them.
	LocalsTouched bitset.Bitset
	LocalsDeleted bitset.Bitset
	LocalsEverDel bitset.Bitset
	LocalsInput   bitset.Bitset

	// WorklistLinked is scratch state for analysis.AnalyzeLocalsDefinition's
	// worklist; it lives on the Block so that package has no need for a
	// parallel side-map keyed by block index.
	WorklistLinked bool
}

// Graph is the materialized block table for one code unit: ordered by
// End, every vpc belongs to exactly one block, and every branch target
// lands on a block start.
type Graph struct {
	Unit   *bytecode.Unit
	Blocks []*Block
	// blockAt maps the start vpc of every block to that block's index.
	blockAt map[bytecode.VPC]int
}

// branchTarget resolves the absolute vpc a branch instruction jumps to.
// Relative/iterator-exit/try-finally targets are all encoded as
// absolute vpcs by the time the CFG builder sees them: bytecode.Decode
// has already folded EXTENDED_ARG into the operand, and branch operands
// in a decoded unit are vpc-absolute.
func branchTarget(instr bytecode.Instr) (bytecode.VPC, bool) {
	switch instr.Op {
	case bytecode.OpJumpForward, bytecode.OpJumpAbsolute,
		bytecode.OpPopJumpIfTrue, bytecode.OpPopJumpIfFalse,
		bytecode.OpJumpIfTrueOrPop, bytecode.OpJumpIfFalseOrPop,
		bytecode.OpForIter, bytecode.OpSetupFinally, bytecode.OpSetupWith,
		bytecode.OpJumpIfNotExcMatch:
		return bytecode.VPC(instr.Arg), true
	}
	return 0, false
}

func terminates(op bytecode.Op) bool {
	switch op {
	case bytecode.OpReturnValue, bytecode.OpReraise, bytecode.OpRaiseVarargs:
		return true
	}
	return false
}

// Build scans u's instruction stream once, marking block boundaries at
// every branch target and every terminating instruction, and returns the
// materialized, End-sorted block table.
func Build(u *bytecode.Unit) (*Graph, error) {
	n := int(u.Len())
	if n == 0 {
		return nil, fmt.Errorf("cfg: empty code unit %q", u.Name)
	}
	// boundary[v] is true iff vpc v starts a new block. vpc 0 and vpc n
	// are forced boundaries (vpc n is the one-past-the-end sentinel).
	boundary := make([]bool, n+1)
	boundary[0] = true
	boundary[n] = true

	for vpc := 0; vpc < n; vpc++ {
		instr := u.Instrs[vpc]
		if target, ok := branchTarget(instr); ok {
			if int(target) < 0 || int(target) > n {
				return nil, fmt.Errorf("cfg: branch at vpc %d targets out-of-range vpc %d", vpc, target)
			}
			boundary[target] = true
			boundary[vpc+1] = true
		} else if terminates(instr.Op) {
			boundary[vpc+1] = true
		}
	}

	g := &Graph{Unit: u, blockAt: make(map[bytecode.VPC]int)}
	var start bytecode.VPC = -1
	for vpc := 0; vpc <= n; vpc++ {
		if !boundary[vpc] {
			continue
		}
		if start >= 0 {
			b := &Block{Start: start, End: bytecode.VPC(vpc), EntryHeight: -1, Branch: -1}
			g.blockAt[start] = len(g.Blocks)
			g.Blocks = append(g.Blocks, b)
		}
		start = bytecode.VPC(vpc)
	}

	for _, b := range g.Blocks {
		last := u.Instrs[b.End-1]
		if target, ok := branchTarget(last); ok {
			idx, known := g.blockAt[target]
			if !known {
				return nil, fmt.Errorf("cfg: branch target vpc %d does not start a block", target)
			}
			b.Branch = idx
		}
		switch last.Op {
		case bytecode.OpJumpForward, bytecode.OpJumpAbsolute:
			b.FallThrough = false
		case bytecode.OpReturnValue, bytecode.OpReraise, bytecode.OpRaiseVarargs:
			b.FallThrough = false
		default:
			b.FallThrough = true
		}
	}

	for _, b := range g.Blocks {
		b.LocalsTouched = bitset.New(u.NLocals)
		b.LocalsDeleted = bitset.New(u.NLocals)
		b.LocalsEverDel = bitset.New(u.NLocals)
		b.LocalsInput = bitset.New(u.NLocals)
	}

	if !g.sorted() {
		return nil, fmt.Errorf("cfg: internal error: block table not sorted by End")
	}
	return g, nil
}

func (g *Graph) sorted() bool {
	return sort.SliceIsSorted(g.Blocks, func(i, j int) bool { return g.Blocks[i].End < g.Blocks[j].End })
}

// BlockContaining returns the index of the block that vpc belongs to,
// using a binary search over the End-sorted block table.
func (g *Graph) BlockContaining(vpc bytecode.VPC) int {
	return sort.Search(len(g.Blocks), func(i int) bool { return g.Blocks[i].End > vpc })
}

// BlockAt returns the index of the block starting exactly at vpc, or -1
// if vpc is not a block start (a violation of the CFG invariant that
// every branch target lands on a block start).
func (g *Graph) BlockAt(vpc bytecode.VPC) int {
	idx, ok := g.blockAt[vpc]
	if !ok {
		return -1
	}
	return idx
}

// MarkHandler flags the block starting at vpc as an exception-handler
// entry point, reached only through the unwind helper's indirect-branch
// trampoline rather than a normal fall-through/branch edge.
func (g *Graph) MarkHandler(vpc bytecode.VPC) {
	if idx := g.BlockAt(vpc); idx >= 0 {
		g.Blocks[idx].IsHandler = true
	}
}
