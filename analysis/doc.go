// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package analysis runs the two per-function dataflow passes the emitter
// depends on: a backward redundant-load analysis and a forward
// locals-definition analysis, both over the block table cfg.Build
// produces.
package analysis
