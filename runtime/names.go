// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtime

import (
	"fmt"

	"github.com/frameeval/pyjit/frame"
	"github.com/frameeval/pyjit/object"
)

// LoadGlobal probes f's globals then builtins, grounded on
// shared_subroutines.cpp's loadGlobalOrBuiltin / handle_LOAD_GLOBAL.
func LoadGlobal(f *frame.Frame, name string) (object.Object, error) {
	if v, ok := f.Globals[name]; ok {
		Incref(v)
		return v, nil
	}
	if v, ok := f.Builtins[name]; ok {
		Incref(v)
		return v, nil
	}
	return nil, object.NewException("NameError", fmt.Sprintf("name '%s' is not defined", name))
}

// StoreGlobal writes v into f's globals, decrefing whatever it replaces.
func StoreGlobal(f *frame.Frame, name string, v object.Object) {
	if old, ok := f.Globals[name]; ok {
		Decref(old)
	}
	f.Globals[name] = v
}

// DeleteGlobal removes name from f's globals.
func DeleteGlobal(f *frame.Frame, name string) error {
	old, ok := f.Globals[name]
	if !ok {
		return object.NewException("NameError", fmt.Sprintf("name '%s' is not defined", name))
	}
	Decref(old)
	delete(f.Globals, name)
	return nil
}

// LoadName probes locals (by name, for functions compiled with a name-
// based rather than slot-based locals map, i.e. module and class bodies),
// then globals, then builtins, per handle_LOAD_NAME.
func LoadName(f *frame.Frame, localsByName map[string]object.Object, name string) (object.Object, error) {
	if localsByName != nil {
		if v, ok := localsByName[name]; ok {
			Incref(v)
			return v, nil
		}
	}
	return LoadGlobal(f, name)
}

// LoadAttr looks up name on owner. Modules resolve through their own
// attribute namespace; everything else goes through the embedder's
// AttrSource, since this reference object model has no per-instance
// attribute dict. Unresolved names raise AttributeError.
func LoadAttr(owner object.Object, name string, attrs AttrSource) (object.Object, error) {
	if m, ok := owner.(*object.Module); ok {
		if v, ok := m.Attrs[name]; ok {
			Incref(v)
			return v, nil
		}
	}
	if attrs != nil {
		if v, ok := attrs.GetAttr(owner, name); ok {
			Incref(v)
			return v, nil
		}
	}
	return nil, object.NewException("AttributeError", fmt.Sprintf("'%s' object has no attribute '%s'", owner.Type().Name, name))
}

// LoadMethod implements LOAD_METHOD's lookup half; the bound receiver
// stays on the operand stack as the call's first argument, so lookup is
// the same as LoadAttr here.
func LoadMethod(owner object.Object, name string, attrs AttrSource) (object.Object, error) {
	return LoadAttr(owner, name, attrs)
}

// AttrSource lets an embedder plug attribute storage into LoadAttr/
// StoreAttr without this package depending on a concrete attribute-dict
// implementation; the host object layout is taken as given.
type AttrSource interface {
	GetAttr(owner object.Object, name string) (object.Object, bool)
	SetAttr(owner object.Object, name string, value object.Object) error
}

// StoreAttr stores value under name on owner via attrs.
func StoreAttr(owner object.Object, name string, value object.Object, attrs AttrSource) error {
	if attrs == nil {
		return object.NewException("AttributeError", fmt.Sprintf("'%s' object has no attribute '%s'", owner.Type().Name, name))
	}
	return attrs.SetAttr(owner, name, value)
}

// BinarySubscr implements container[sub] for tuples, lists, strings and
// dicts; any other container type raises TypeError.
func BinarySubscr(container, sub object.Object) (object.Object, error) {
	switch c := container.(type) {
	case *object.Tuple:
		return seqItem(c.Items, sub, "tuple")
	case *object.List:
		return seqItem(c.Items, sub, "list")
	case *object.Str:
		i, err := seqIndex(sub, len(c.Value), "string")
		if err != nil {
			return nil, err
		}
		return object.NewStr(c.Value[i : i+1]), nil
	case *object.Dict:
		v, ok, err := c.GetItem(sub)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, object.NewException("KeyError", object.StrOf(sub))
		}
		Incref(v)
		return v, nil
	}
	return nil, object.NewException("TypeError", fmt.Sprintf("'%s' object is not subscriptable", container.Type().Name))
}

func seqItem(items []object.Object, sub object.Object, kind string) (object.Object, error) {
	i, err := seqIndex(sub, len(items), kind)
	if err != nil {
		return nil, err
	}
	v := items[i]
	Incref(v)
	return v, nil
}

func seqIndex(sub object.Object, n int, kind string) (int, error) {
	i, ok := sub.(*object.Int)
	if !ok {
		return 0, object.NewException("TypeError", fmt.Sprintf("%s indices must be integers", kind))
	}
	idx := int(i.Value)
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return 0, object.NewException("IndexError", fmt.Sprintf("%s index out of range", kind))
	}
	return idx, nil
}

// StoreSubscr implements container[sub] = v for lists and dicts. The
// helper increfs what the container retains; inputs stay with the
// caller.
func StoreSubscr(container, sub, v object.Object) error {
	switch c := container.(type) {
	case *object.List:
		i, err := seqIndex(sub, len(c.Items), "list")
		if err != nil {
			return err
		}
		Incref(v)
		Decref(c.Items[i])
		c.Items[i] = v
		return nil
	case *object.Dict:
		Incref(sub)
		Incref(v)
		return c.SetItem(sub, v)
	}
	return object.NewException("TypeError", fmt.Sprintf(
		"'%s' object does not support item assignment", container.Type().Name))
}

// DeleteSubscr implements del container[sub] for lists.
func DeleteSubscr(container, sub object.Object) error {
	c, ok := container.(*object.List)
	if !ok {
		return object.NewException("TypeError", fmt.Sprintf(
			"'%s' object does not support item deletion", container.Type().Name))
	}
	i, err := seqIndex(sub, len(c.Items), "list")
	if err != nil {
		return err
	}
	Decref(c.Items[i])
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return nil
}

// StoreName and DeleteName exist for functions compiled with name-based
// locals (module and class bodies); with no separate locals mapping on
// this frame shape they resolve to the globals.
func StoreName(f *frame.Frame, name string, v object.Object) { StoreGlobal(f, name, v) }

// DeleteName removes name from the frame's globals.
func DeleteName(f *frame.Frame, name string) error { return DeleteGlobal(f, name) }

// LoadDeref implements LOAD_DEREF: read through cell i, raising the
// unbound-free-variable error when the cell is empty.
func LoadDeref(f *frame.Frame, i int) (object.Object, error) {
	c := f.Cells[i]
	if c == nil || c.Ref == nil {
		return nil, object.NewException("NameError", fmt.Sprintf(
			"free variable '%s' referenced before assignment in enclosing scope", cellName(f.Unit, i)))
	}
	Incref(c.Ref)
	return c.Ref, nil
}

// StoreDeref implements STORE_DEREF.
func StoreDeref(f *frame.Frame, i int, v object.Object) {
	c := f.Cells[i]
	if c == nil {
		c = object.NewCell(nil)
		f.Cells[i] = c
	}
	Incref(v)
	if c.Ref != nil {
		Decref(c.Ref)
	}
	c.Ref = v
}

// DeleteDeref implements DELETE_DEREF.
func DeleteDeref(f *frame.Frame, i int) error {
	c := f.Cells[i]
	if c == nil || c.Ref == nil {
		return object.NewException("NameError", fmt.Sprintf(
			"free variable '%s' referenced before assignment in enclosing scope", cellName(f.Unit, i)))
	}
	Decref(c.Ref)
	c.Ref = nil
	return nil
}

// LoadClosure implements LOAD_CLOSURE: push the cell object itself.
func LoadClosure(f *frame.Frame, i int) (object.Object, error) {
	c := f.Cells[i]
	if c == nil {
		c = object.NewCell(nil)
		f.Cells[i] = c
	}
	Incref(c)
	return c, nil
}
