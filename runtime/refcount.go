// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package runtime is the fixed table of helper entry points emitted code
// calls into: operator dispatch, name/attribute lookup, call dispatch,
// iteration, exception raising and the central unwind helper. The IR the
// emit package produces references these helpers by name; the Helpers
// struct collects them into a fixed struct of function values, resolved
// once at process start and threaded through every compiled function as
// its first argument.
package runtime

import "github.com/frameeval/pyjit/object"

// Incref bumps obj's reference count by one. obj may be nil (a slot the
// locals-definition analysis could not prove defined); Incref on nil is
// a no-op, mirroring Py_XINCREF rather than Py_INCREF; the emitter
// only emits the unconditional form where the analysis has already
// proven non-null.
func Incref(obj object.Object) {
	if obj == nil {
		return
	}
	obj.(object.Refcounted).Incref()
}

// Decref decrements obj's reference count, running its destructor slot
// if the count reached zero. A no-op on nil (Py_XDECREF).
func Decref(obj object.Object) {
	if obj == nil {
		return
	}
	rc := obj.(object.Refcounted)
	if rc.Decref() {
		if t := obj.Type(); t != nil && t.Destroy != nil {
			t.Destroy(obj)
		}
	}
}

// CondDecref implements OpCondDecref: decref obj only if it is non-nil.
// Identical to Decref; kept as a distinct name so emit/ir call sites read
// the same as the IR op they lower: the null-guarded decrement at sites
// the locals analysis could not resolve statically.
func CondDecref(obj object.Object) { Decref(obj) }
