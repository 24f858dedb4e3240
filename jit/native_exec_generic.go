// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !amd64
// +build !amd64

package jit

import "errors"

func nativeInvoke(b *NativeBlock, stack, locals *[]uint64) (uint64, error) {
	return 0, errors.New("jit: no native call thunk for this architecture")
}
