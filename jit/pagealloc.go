// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import (
	"fmt"

	"github.com/edsrzf/mmap-go"
)

const (
	// minAllocSize is the smallest mapping requested from the kernel;
	// small code objects share a block instead of burning a page table
	// entry each.
	minAllocSize = 65536
	// allocationAlignment keeps separate functions' entry points on
	// their own cache-line-aligned starts.
	allocationAlignment = 32
)

// MMapAllocator hands out aligned spans of executable memory, bump-
// allocating within mapped blocks and mapping a new block when the
// current one cannot fit a request.
type MMapAllocator struct {
	blocks []mmap.MMap
	last   *allocBlock
}

type allocBlock struct {
	mem       mmap.MMap
	consumed  uint32
	remaining uint32
}

// AllocateExec copies asm into executable memory and returns the mapped
// span.
func (a *MMapAllocator) AllocateExec(asm []byte) ([]byte, error) {
	need := align(uint32(len(asm)))
	if a.last == nil || a.last.remaining < need {
		size := minAllocSize
		if int(need) > size {
			size = int(need)
		}
		mem, err := mmap.MapRegion(nil, size, mmap.RDWR|mmap.EXEC, mmap.ANON, 0)
		if err != nil {
			return nil, fmt.Errorf("jit: mmap of %d bytes failed: %w", size, err)
		}
		a.blocks = append(a.blocks, mem)
		a.last = &allocBlock{mem: mem, remaining: uint32(size)}
	}
	b := a.last
	span := b.mem[b.consumed : b.consumed+uint32(len(asm))]
	copy(span, asm)
	b.consumed += need
	b.remaining -= need
	return span, nil
}

func align(n uint32) uint32 {
	if r := n % allocationAlignment; r != 0 {
		n += allocationAlignment - r
	}
	return n
}

// Close unmaps every block. Spans returned by AllocateExec are invalid
// afterwards.
func (a *MMapAllocator) Close() error {
	var first error
	for _, m := range a.blocks {
		if err := m.Unmap(); err != nil && first == nil {
			first = err
		}
	}
	a.blocks = nil
	a.last = nil
	return first
}
