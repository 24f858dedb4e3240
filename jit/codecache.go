// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import "unsafe"

// CodeCache owns the executable mappings compiled functions live in;
// its lifetime matches the translator's, and closing it invalidates
// every installed function's native body at once.
type CodeCache struct {
	alloc MMapAllocator
}

// NewCodeCache returns an empty cache.
func NewCodeCache() *CodeCache {
	return &CodeCache{}
}

// Install copies assembled machine code into executable memory and
// returns the invocable block the compiled-function record points at.
func (c *CodeCache) Install(code []byte) (*NativeBlock, error) {
	span, err := c.alloc.AllocateExec(code)
	if err != nil {
		return nil, err
	}
	return &NativeBlock{mem: unsafe.Pointer(&span[0]), span: span}, nil
}

// Close unmaps everything the cache handed out.
func (c *CodeCache) Close() error {
	return c.alloc.Close()
}
