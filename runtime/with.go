// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtime

import (
	"fmt"

	"github.com/frameeval/pyjit/object"
)

// WithExit resolves a context manager's __exit__ slot for SETUP_WITH.
func WithExit(mgr object.Object, attrs AttrSource) (object.Object, error) {
	v, err := LoadAttr(mgr, "__exit__", attrs)
	if err != nil {
		return nil, object.NewException("TypeError", fmt.Sprintf(
			"'%s' object does not support the context manager protocol", mgr.Type().Name))
	}
	return v, nil
}

// WithEnter invokes a context manager's __enter__ slot for SETUP_WITH.
func WithEnter(mgr object.Object, attrs AttrSource) (object.Object, error) {
	enter, err := LoadAttr(mgr, "__enter__", attrs)
	if err != nil {
		return nil, object.NewException("TypeError", fmt.Sprintf(
			"'%s' object does not support the context manager protocol", mgr.Type().Name))
	}
	defer Decref(enter)
	c, ok := enter.(Callable)
	if !ok {
		return nil, object.NewException("TypeError", fmt.Sprintf(
			"'%s' object is not callable", enter.Type().Name))
	}
	return c.Call(nil)
}

// WithExceptStart implements WITH_EXCEPT_START: call the saved __exit__
// with the active exception triple. All four inputs are borrowed.
func WithExceptStart(exitFn, excType, value, tb object.Object) (object.Object, error) {
	c, ok := exitFn.(Callable)
	if !ok {
		return nil, object.NewException("TypeError", fmt.Sprintf(
			"'%s' object is not callable", exitFn.Type().Name))
	}
	return c.Call([]object.Object{excType, value, tb})
}
