// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtime

import "github.com/frameeval/pyjit/bytecode"

// ExtFrame is the per-invocation record bracketing every call into
// compiled code: the vpc→stack-height side table for the executing
// function plus the link to the caller's record. Nested compiled calls
// chain through the package-level current pointer the way the host
// threads its state; execution is single-threaded under the host's
// global lock, so a plain variable suffices.
type ExtFrame struct {
	Heights []int
	prev    *ExtFrame
}

var currentExt *ExtFrame

// PushExtFrame installs a record for a compiled call about to start.
func PushExtFrame(heights []int) *ExtFrame {
	ext := &ExtFrame{Heights: heights, prev: currentExt}
	currentExt = ext
	return ext
}

// PopExtFrame uninstalls the innermost record.
func PopExtFrame() {
	if currentExt != nil {
		currentExt = currentExt.prev
	}
}

// stackHeightAt resolves the operand-stack height recorded for vpc in
// the innermost compiled frame, or -1 if no record is installed.
func stackHeightAt(vpc bytecode.VPC) int {
	if currentExt == nil || int(vpc) >= len(currentExt.Heights) {
		return -1
	}
	return currentExt.Heights[vpc]
}
