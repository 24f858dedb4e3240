// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import (
	"bytes"
	"testing"
)

func TestMMapAllocator(t *testing.T) {
	a := &MMapAllocator{}
	defer a.Close()

	span, err := a.AllocateExec([]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(span, []byte{1, 2, 3, 4}) {
		t.Errorf("shortAlloc = %v, want [1 2 3 4]", span)
	}
	if want := uint32(allocationAlignment); a.last.consumed != want {
		t.Errorf("a.last.consumed = %d, want %d", a.last.consumed, want)
	}
	if want := uint32(minAllocSize - allocationAlignment); a.last.remaining != want {
		t.Errorf("a.last.remaining = %d, want %d", a.last.remaining, want)
	}

	second, err := a.AllocateExec([]byte{4, 3, 2, 1})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(second, []byte{4, 3, 2, 1}) {
		t.Errorf("second alloc = %v, want [4 3 2 1]", second)
	}
	if want := uint32(2 * allocationAlignment); a.last.consumed != want {
		t.Errorf("a.last.consumed = %d, want %d", a.last.consumed, want)
	}

	// A request larger than the block size gets its own fresh block.
	big := make([]byte, 72*1024)
	big[1] = 5
	bigSpan, err := a.AllocateExec(big)
	if err != nil {
		t.Fatal(err)
	}
	if bigSpan[1] != 5 {
		t.Errorf("bigAlloc[1] = %d, want 5", bigSpan[1])
	}
	if len(a.blocks) != 2 {
		t.Errorf("block count = %d, want 2", len(a.blocks))
	}
}

func TestCodeCacheInstall(t *testing.T) {
	c := NewCodeCache()
	defer c.Close()
	code := []byte{0xc3} // ret
	blk, err := c.Install(code)
	if err != nil {
		t.Fatal(err)
	}
	if blk.Code()[0] != 0xc3 {
		t.Fatal("installed code does not match the source bytes")
	}
}
