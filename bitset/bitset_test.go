// Copyright 2018 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitset

import "testing"

func TestSetGetClear(t *testing.T) {
	b := New(130)
	for _, i := range []int{0, 63, 64, 129} {
		if b.Get(i) {
			t.Fatalf("bit %d set in a fresh set", i)
		}
		b.Set(i)
		if !b.Get(i) {
			t.Fatalf("bit %d not set after Set", i)
		}
	}
	b.Clear(64)
	if b.Get(64) {
		t.Fatal("bit 64 still set after Clear")
	}
	if !b.Get(63) || !b.Get(129) {
		t.Fatal("Clear(64) touched neighboring bits")
	}
}

func TestFillRespectsLength(t *testing.T) {
	b := New(70)
	b.Fill(true)
	for i := 0; i < 70; i++ {
		if !b.Get(i) {
			t.Fatalf("bit %d clear after Fill(true)", i)
		}
	}
	// The tail bits of the final chunk must stay clear so chunk-wise
	// intersection with another 70-bit set is exact.
	if b.Chunk(1)>>6 != 0 {
		t.Fatalf("Fill(true) set bits past the length: chunk 1 = %#x", b.Chunk(1))
	}
}

func TestFlipAllMasksTail(t *testing.T) {
	b := New(70)
	b.Set(0)
	b.Set(69)
	b.FlipAll()
	if b.Get(0) || b.Get(69) {
		t.Fatal("FlipAll left set bits set")
	}
	if !b.Get(1) || !b.Get(68) {
		t.Fatal("FlipAll cleared bits that were clear")
	}
	if b.Chunk(1)>>6 != 0 {
		t.Fatalf("FlipAll set bits past the length: chunk 1 = %#x", b.Chunk(1))
	}
}

func TestAndOrCopyEqual(t *testing.T) {
	a := New(128)
	b := New(128)
	a.Set(1)
	a.Set(100)
	b.Set(100)
	b.Set(101)

	c := New(128)
	c.CopyFrom(a)
	c.AndWith(b)
	if c.Get(1) || !c.Get(100) || c.Get(101) {
		t.Fatal("AndWith computed the wrong intersection")
	}

	d := New(128)
	d.CopyFrom(a)
	d.OrWith(b)
	if !d.Get(1) || !d.Get(100) || !d.Get(101) {
		t.Fatal("OrWith computed the wrong union")
	}

	if c.Equal(d) {
		t.Fatal("distinct sets reported equal")
	}
	e := New(128)
	e.CopyFrom(c)
	if !e.Equal(c) {
		t.Fatal("copied set not equal to its source")
	}
}
