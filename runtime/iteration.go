// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtime

import (
	"fmt"

	"github.com/frameeval/pyjit/object"
)

// Iterator is satisfied by anything GET_ITER can produce and FOR_ITER
// can step. FOR_ITER reads the iterator type's next-slot directly;
// Iterator is that slot made concrete.
type Iterator interface {
	object.Object
	Next() (object.Object, bool)
}

// Iterable is satisfied by a container GET_ITER knows how to wrap.
type Iterable interface {
	object.Object
	Iter() Iterator
}

// GetIter implements GET_ITER. The returned iterator carries a new
// reference.
func GetIter(v object.Object) (object.Object, error) {
	switch c := v.(type) {
	case Iterable:
		return c.Iter(), nil
	case Iterator:
		Incref(c)
		return c, nil
	case *object.Tuple:
		return newSliceIterator(c.Items, c), nil
	case *object.List:
		return newSliceIterator(c.Items, c), nil
	case *object.Set:
		return newSliceIterator(c.Items(), c), nil
	case *object.Dict:
		keys := make([]object.Object, 0, c.Len())
		c.Each(func(k, _ object.Object) { keys = append(keys, k) })
		return newSliceIterator(keys, c), nil
	case *object.Str:
		runes := []rune(c.Value)
		chars := make([]object.Object, len(runes))
		for i, r := range runes {
			chars[i] = object.NewStr(string(r))
		}
		it := newSliceIterator(chars, c)
		it.(*sliceIterator).ownsItems = true
		return it, nil
	}
	return nil, object.NewException("TypeError", fmt.Sprintf("'%s' object is not iterable", v.Type().Name))
}

// ForIterNext implements FOR_ITER's non-branch half: advance it and
// return the next value with a new reference, or nil at exhaustion.
func ForIterNext(it object.Object) (object.Object, error) {
	i, ok := it.(Iterator)
	if !ok {
		return nil, object.NewException("TypeError", fmt.Sprintf("'%s' object is not an iterator", it.Type().Name))
	}
	v, ok := i.Next()
	if !ok {
		return nil, nil
	}
	Incref(v)
	return v, nil
}

// sliceIterator walks a snapshot of a container's item slice, pinning
// the container for the iterator's lifetime.
type sliceIterator struct {
	object.RefCounted
	items     []object.Object
	pos       int
	container object.Object
	// ownsItems marks items allocated by the iterator itself (string
	// iteration); they carry their own references released on Destroy.
	ownsItems bool
}

var sliceIterType = &object.Type{
	Name: "iterator",
	Destroy: func(o object.Object) {
		it := o.(*sliceIterator)
		if it.ownsItems {
			for i := it.pos; i < len(it.items); i++ {
				Decref(it.items[i])
			}
		}
		Decref(it.container)
	},
}

func (it *sliceIterator) Type() *object.Type { return sliceIterType }

func (it *sliceIterator) Next() (object.Object, bool) {
	if it.pos >= len(it.items) {
		return nil, false
	}
	v := it.items[it.pos]
	it.pos++
	if it.ownsItems {
		// Hand the caller the item's own reference; ForIterNext adds one
		// more on top, so drop ours.
		defer Decref(v)
	}
	return v, true
}

func newSliceIterator(items []object.Object, container object.Object) object.Object {
	Incref(container)
	it := &sliceIterator{items: items, container: container}
	it.Incref()
	return it
}
