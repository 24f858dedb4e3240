// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import (
	"github.com/frameeval/pyjit/frame"
	"github.com/frameeval/pyjit/ir"
	"github.com/frameeval/pyjit/object"
	"github.com/frameeval/pyjit/runtime"
)

// Option configures a Translator at construction.
type Option func(*Translator)

// WithBackend selects the native-code backend; the default interprets
// the ir directly.
func WithBackend(b ir.Backend) Option {
	return func(t *Translator) { t.backend = b }
}

// WithHelpers supplies a custom helper table (attribute storage, module
// registry).
func WithHelpers(h *runtime.Helpers) Option {
	return func(t *Translator) { t.helpers = h }
}

// WithBuiltins sets the builtins namespace frames are created with.
func WithBuiltins(b map[string]object.Object) Option {
	return func(t *Translator) { t.builtins = b }
}

// WithFallback installs the evaluator used for frames whose code object
// has no compiled body (translation refused or failed).
func WithFallback(fn func(f *frame.Frame) (object.Object, error)) Option {
	return func(t *Translator) { t.fallback = fn }
}
