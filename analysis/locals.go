// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"github.com/frameeval/pyjit/bitset"
	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/cfg"
)

// AnalyzeLocalsDefinition runs the forward definitely-defined fixed
// point: block 0's LocalsInput starts at exactly the argument-bound
// locals; every other block starts optimistic (all locals "maybe
// defined") and is narrowed by meet-over-predecessors (set
// intersection) until the worklist drains.
//
// Redundant must already have populated LocalsTouched/LocalsDeleted on
// every cfg.Block (see AnalyzeRedundantLoads); this pass only reads
// those fields.
func AnalyzeLocalsDefinition(u *bytecode.Unit, g *cfg.Graph) {
	if len(g.Blocks) == 0 {
		return
	}

	var worklist []int
	push := func(idx int) {
		if !g.Blocks[idx].WorklistLinked {
			g.Blocks[idx].WorklistLinked = true
			worklist = append(worklist, idx)
		}
	}
	pop := func() int {
		idx := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		g.Blocks[idx].WorklistLinked = false
		return idx
	}

	for i, b := range g.Blocks {
		if i == 0 {
			continue
		}
		b.LocalsInput.Fill(true)
		push(i)
	}
	g.Blocks[0].LocalsInput.Fill(false)
	for i := 0; i < u.ArgLocalCount(); i++ {
		g.Blocks[0].LocalsInput.Set(i)
	}
	push(0)

	blockOutput := bitset.New(u.NLocals)
	chunks := blockOutput.Chunks()

	updateSuccessor := func(idx int) {
		succ := g.Blocks[idx]
		changed := false
		for c := 0; c < chunks; c++ {
			old := succ.LocalsInput.Chunk(c)
			next := old & blockOutput.Chunk(c)
			if next != old {
				succ.LocalsInput.SetChunk(c, next)
				changed = true
			}
		}
		if changed {
			push(idx)
		}
	}

	for len(worklist) > 0 {
		idx := pop()
		b := g.Blocks[idx]
		for c := 0; c < chunks; c++ {
			// The bitsets arrive in their flipped block-boundary form:
			// LocalsTouched is the complement of the touched set and
			// LocalsDeleted holds touched locals still defined on exit,
			// so this computes "defined on exit given LocalsInput on
			// entry".
			blockOutput.SetChunk(c, (b.LocalsInput.Chunk(c)&b.LocalsTouched.Chunk(c))|b.LocalsDeleted.Chunk(c))
		}
		if b.FallThrough && idx+1 < len(g.Blocks) {
			updateSuccessor(idx + 1)
		}
		if b.Branch >= 0 {
			updateSuccessor(b.Branch)
		}
	}
}
