// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtime

import (
	"fmt"
	"strings"

	"github.com/frameeval/pyjit/frame"
	"github.com/frameeval/pyjit/object"
)

// Container builders follow the shared helper convention: inputs are
// borrowed (the helper increfs whatever the new container retains) and
// the emitter releases its own popped references after the call.

// BuildTuple implements BUILD_TUPLE.
func BuildTuple(items []object.Object) object.Object {
	owned := make([]object.Object, len(items))
	for i, v := range items {
		Incref(v)
		owned[i] = v
	}
	return object.NewTuple(owned)
}

// BuildList implements BUILD_LIST.
func BuildList(items []object.Object) object.Object {
	owned := make([]object.Object, len(items))
	for i, v := range items {
		Incref(v)
		owned[i] = v
	}
	return object.NewList(owned)
}

// BuildSet implements BUILD_SET.
func BuildSet(items []object.Object) (object.Object, error) {
	s := object.NewSet()
	for _, v := range items {
		Incref(v)
		if err := s.Add(v); err != nil {
			Decref(s)
			return nil, err
		}
	}
	return s, nil
}

// BuildMap implements BUILD_MAP: items alternate key, value.
func BuildMap(items []object.Object) (object.Object, error) {
	d := object.NewDict()
	for i := 0; i+1 < len(items); i += 2 {
		k, v := items[i], items[i+1]
		Incref(k)
		Incref(v)
		if err := d.SetItem(k, v); err != nil {
			Decref(d)
			return nil, err
		}
	}
	return d, nil
}

// BuildConstKeyMap implements BUILD_CONST_KEY_MAP: values plus a keys
// tuple on top.
func BuildConstKeyMap(values []object.Object, keys object.Object) (object.Object, error) {
	kt, ok := keys.(*object.Tuple)
	if !ok || len(kt.Items) != len(values) {
		return nil, object.NewException("SystemError", "bad BUILD_CONST_KEY_MAP keys")
	}
	d := object.NewDict()
	for i, v := range values {
		k := kt.Items[i]
		Incref(k)
		Incref(v)
		if err := d.SetItem(k, v); err != nil {
			Decref(d)
			return nil, err
		}
	}
	return d, nil
}

// ListAppend implements LIST_APPEND.
func ListAppend(list, v object.Object) error {
	l, ok := list.(*object.List)
	if !ok {
		return object.NewException("TypeError", fmt.Sprintf("'%s' object is not a list", list.Type().Name))
	}
	Incref(v)
	l.Append(v)
	return nil
}

// SetAdd implements SET_ADD.
func SetAdd(set, v object.Object) error {
	s, ok := set.(*object.Set)
	if !ok {
		return object.NewException("TypeError", fmt.Sprintf("'%s' object is not a set", set.Type().Name))
	}
	Incref(v)
	return s.Add(v)
}

// MapAdd implements MAP_ADD.
func MapAdd(dict, key, value object.Object) error {
	d, ok := dict.(*object.Dict)
	if !ok {
		return object.NewException("TypeError", fmt.Sprintf("'%s' object is not a dict", dict.Type().Name))
	}
	Incref(key)
	Incref(value)
	return d.SetItem(key, value)
}

// ListExtend implements LIST_EXTEND.
func ListExtend(list, iterable object.Object) error {
	l, ok := list.(*object.List)
	if !ok {
		return object.NewException("TypeError", fmt.Sprintf("'%s' object is not a list", list.Type().Name))
	}
	return eachItem(iterable, func(v object.Object) error {
		Incref(v)
		l.Append(v)
		return nil
	})
}

// SetUpdate implements SET_UPDATE.
func SetUpdate(set, iterable object.Object) error {
	s, ok := set.(*object.Set)
	if !ok {
		return object.NewException("TypeError", fmt.Sprintf("'%s' object is not a set", set.Type().Name))
	}
	return eachItem(iterable, func(v object.Object) error {
		Incref(v)
		return s.Add(v)
	})
}

// DictUpdate implements DICT_UPDATE: later keys overwrite earlier ones,
// plain dict-literal semantics.
func DictUpdate(dict, src object.Object) error {
	d, sd, err := dictPair(dict, src)
	if err != nil {
		return err
	}
	sd.Each(func(k, v object.Object) {
		if err != nil {
			return
		}
		Incref(k)
		Incref(v)
		err = d.SetItem(k, v)
	})
	return err
}

// DictMerge implements DICT_MERGE, the double-star unpacking path of a
// call: a key already present means the same keyword argument was given
// twice, which raises instead of overwriting.
func DictMerge(dict, src object.Object) error {
	d, sd, err := dictPair(dict, src)
	if err != nil {
		return err
	}
	sd.Each(func(k, v object.Object) {
		if err != nil {
			return
		}
		present, cerr := d.Contains(k)
		if cerr != nil {
			err = cerr
			return
		}
		if present {
			err = object.NewException("TypeError", fmt.Sprintf(
				"got multiple values for keyword argument '%s'", object.StrOf(k)))
			return
		}
		Incref(k)
		Incref(v)
		err = d.SetItem(k, v)
	})
	return err
}

func dictPair(dict, src object.Object) (*object.Dict, *object.Dict, error) {
	d, ok := dict.(*object.Dict)
	if !ok {
		return nil, nil, object.NewException("TypeError", fmt.Sprintf("'%s' object is not a dict", dict.Type().Name))
	}
	sd, ok := src.(*object.Dict)
	if !ok {
		return nil, nil, object.NewException("TypeError", fmt.Sprintf("'%s' object is not a mapping", src.Type().Name))
	}
	return d, sd, nil
}

// ListToTuple implements LIST_TO_TUPLE.
func ListToTuple(list object.Object) (object.Object, error) {
	l, ok := list.(*object.List)
	if !ok {
		return nil, object.NewException("TypeError", fmt.Sprintf("'%s' object is not a list", list.Type().Name))
	}
	return BuildTuple(l.Items), nil
}

// Contains implements CONTAINS_OP: needle in container.
func Contains(needle, container object.Object, negate bool) (object.Object, error) {
	var found bool
	switch c := container.(type) {
	case *object.Dict:
		ok, err := c.Contains(needle)
		if err != nil {
			return nil, err
		}
		found = ok
	case *object.Set:
		ok, err := c.Contains(needle)
		if err != nil {
			return nil, err
		}
		found = ok
	case *object.Str:
		n, ok := needle.(*object.Str)
		if !ok {
			return nil, object.NewException("TypeError", fmt.Sprintf(
				"'in <string>' requires string as left operand, not %s", needle.Type().Name))
		}
		found = strings.Contains(c.Value, n.Value)
	default:
		err := eachItem(container, func(v object.Object) error {
			if !found {
				found = equalObjects(needle, v)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if negate {
		found = !found
	}
	return object.NewBool(found), nil
}

func equalObjects(a, b object.Object) bool {
	if a == b {
		return true
	}
	if t := a.Type(); t != nil && t.Compare != nil {
		if r, ok := t.Compare(a, b, 2); ok {
			eq := Truthy(r)
			Decref(r)
			return eq
		}
	}
	return false
}

// eachItem iterates container without transferring item references to
// the callback.
func eachItem(container object.Object, fn func(object.Object) error) error {
	switch c := container.(type) {
	case *object.Tuple:
		for _, v := range c.Items {
			if err := fn(v); err != nil {
				return err
			}
		}
		return nil
	case *object.List:
		for _, v := range c.Items {
			if err := fn(v); err != nil {
				return err
			}
		}
		return nil
	case *object.Set:
		for _, v := range c.Items() {
			if err := fn(v); err != nil {
				return err
			}
		}
		return nil
	}
	it, err := GetIter(container)
	if err != nil {
		return err
	}
	defer Decref(it)
	for {
		v, err := ForIterNext(it)
		if err != nil {
			return err
		}
		if v == nil {
			return nil
		}
		err = fn(v)
		Decref(v)
		if err != nil {
			return err
		}
	}
}

// UnpackSequence implements UNPACK_SEQUENCE: write seq's n items into
// frame value-stack slots [base, base+n), each with a new reference,
// ordered so the first item lands on top of the stack.
func UnpackSequence(f *frame.Frame, seq object.Object, base, n int) error {
	items, err := sequenceItems(seq)
	if err != nil {
		return err
	}
	if len(items) != n {
		if len(items) < n {
			return object.NewException("ValueError", fmt.Sprintf(
				"not enough values to unpack (expected %d, got %d)", n, len(items)))
		}
		return object.NewException("ValueError", fmt.Sprintf(
			"too many values to unpack (expected %d)", n))
	}
	for i, v := range items {
		Incref(v)
		f.Values[base+n-1-i] = v
	}
	return nil
}

// UnpackEx implements UNPACK_EX: before mandatory items, a list of the
// middle, then after mandatory items, first item on top.
func UnpackEx(f *frame.Frame, seq object.Object, base, before, after int) error {
	items, err := sequenceItems(seq)
	if err != nil {
		return err
	}
	if len(items) < before+after {
		return object.NewException("ValueError", fmt.Sprintf(
			"not enough values to unpack (expected at least %d, got %d)", before+after, len(items)))
	}
	total := before + 1 + after
	slot := base + total - 1
	for i := 0; i < before; i++ {
		Incref(items[i])
		f.Values[slot] = items[i]
		slot--
	}
	f.Values[slot] = BuildList(items[before : len(items)-after])
	slot--
	for i := len(items) - after; i < len(items); i++ {
		Incref(items[i])
		f.Values[slot] = items[i]
		slot--
	}
	return nil
}

func sequenceItems(seq object.Object) ([]object.Object, error) {
	var items []object.Object
	err := eachItem(seq, func(v object.Object) error {
		items = append(items, v)
		return nil
	})
	return items, err
}

// FormatValue implements FORMAT_VALUE. The low two flag bits select the
// conversion; this object model renders str, repr and ascii identically
// through the type's Str slot. spec is nil when the opcode carried no
// format spec.
func FormatValue(v, spec object.Object) (object.Object, error) {
	if spec != nil {
		if _, ok := spec.(*object.Str); !ok {
			return nil, object.NewException("TypeError", "format spec must be a string")
		}
	}
	return object.NewStr(object.StrOf(v)), nil
}

// BuildString implements BUILD_STRING.
func BuildString(parts []object.Object) (object.Object, error) {
	var sb strings.Builder
	for _, p := range parts {
		s, ok := p.(*object.Str)
		if !ok {
			return nil, object.NewException("TypeError", fmt.Sprintf(
				"sequence item: expected str instance, %s found", p.Type().Name))
		}
		sb.WriteString(s.Value)
	}
	return object.NewStr(sb.String()), nil
}

// ImportName implements IMPORT_NAME against a process-wide module
// registry the embedder fills in.
func ImportName(modules map[string]object.Object, name string) (object.Object, error) {
	m, ok := modules[name]
	if !ok {
		return nil, object.NewException("ModuleNotFoundError", fmt.Sprintf("No module named '%s'", name))
	}
	Incref(m)
	return m, nil
}

// ImportFrom implements IMPORT_FROM.
func ImportFrom(module object.Object, name string) (object.Object, error) {
	m, ok := module.(*object.Module)
	if !ok {
		return nil, object.NewException("TypeError", "IMPORT_FROM on a non-module")
	}
	v, ok := m.Attrs[name]
	if !ok {
		return nil, object.NewException("ImportError", fmt.Sprintf(
			"cannot import name '%s' from '%s'", name, m.Name))
	}
	Incref(v)
	return v, nil
}

// ImportStar implements IMPORT_STAR: copy the module's public names
// into the frame's globals.
func ImportStar(f *frame.Frame, module object.Object) error {
	m, ok := module.(*object.Module)
	if !ok {
		return object.NewException("TypeError", "IMPORT_STAR on a non-module")
	}
	for name, v := range m.Attrs {
		if strings.HasPrefix(name, "_") {
			continue
		}
		Incref(v)
		StoreGlobal(f, name, v)
	}
	return nil
}
