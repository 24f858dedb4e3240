// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import "unsafe"

func nativeInvoke(b *NativeBlock, stack, locals *[]uint64) (uint64, error) {
	return jitcall(unsafe.Pointer(&b.mem), stack, locals), nil
}

// jitcall is implemented in jitcall_amd64.s: it loads the code pointer
// out of *asm, binds the slice headers to the kernel's reserved
// registers and calls in.
func jitcall(asm unsafe.Pointer, stack, locals *[]uint64) uint64
