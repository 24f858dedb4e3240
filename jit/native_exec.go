// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import "unsafe"

// NativeBlock is an installed span of executable machine code. Kernels
// assembled by the narrow native backends operate on raw uint64 words,
// not boxed object handles, so invocation takes the two slice headers
// the kernel's register convention expects: the value stack and the
// locals array.
type NativeBlock struct {
	// mem points at the first instruction; the call thunk dereferences
	// it, so the block stays relocatable until the moment of the call.
	mem  unsafe.Pointer
	span []byte
}

// Invoke jumps into the installed code with stack and locals bound to
// the kernel's reserved registers and returns the kernel's result
// register. It fails on architectures without a call thunk.
func (b *NativeBlock) Invoke(stack, locals *[]uint64) (uint64, error) {
	return nativeInvoke(b, stack, locals)
}

// Code exposes the installed bytes, for tests and diagnostics.
func (b *NativeBlock) Code() []byte { return b.span }
