// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package object

import "testing"

func TestBoolSingletons(t *testing.T) {
	a := NewBool(true)
	b := NewBool(true)
	if a != b {
		t.Fatal("NewBool(true) must return the shared singleton")
	}
	if a != Object(TrueValue()) {
		t.Fatal("TrueValue must expose the same singleton NewBool hands out")
	}
	if NewBool(false) == Object(TrueValue()) {
		t.Fatal("True and False must be distinct")
	}
}

func TestRefcountLifecycle(t *testing.T) {
	i := NewInt(1)
	if i.Refcount() != 1 {
		t.Fatalf("fresh refcount = %d, want 1", i.Refcount())
	}
	i.Incref()
	if i.Decref() {
		t.Fatal("Decref from 2 should not report zero")
	}
	if !i.Decref() {
		t.Fatal("Decref from 1 should report zero")
	}
}

func TestIntOperatorSlots(t *testing.T) {
	a, b := NewInt(6), NewInt(3)
	r, ok := a.Type().Add(a, b)
	if !ok || r.(*Int).Value != 9 {
		t.Fatal("int add slot broken")
	}
	r, ok = a.Type().Xor(a, b)
	if !ok || r.(*Int).Value != 5 {
		t.Fatal("int xor slot broken")
	}
	if _, ok := a.Type().Add(a, NewStr("x")); ok {
		t.Fatal("int add must decline a non-int right operand")
	}
}

func TestDictSetGetReplace(t *testing.T) {
	d := NewDict()
	k := NewStr("k")
	v1 := NewInt(1)
	if err := d.SetItem(k, v1); err != nil {
		t.Fatal(err)
	}
	got, ok, err := d.GetItem(NewStr("k"))
	if err != nil || !ok || got.(*Int).Value != 1 {
		t.Fatalf("lookup after insert: got=%v ok=%v err=%v", got, ok, err)
	}
	v2 := NewInt(2)
	if err := d.SetItem(NewStr("k"), v2); err != nil {
		t.Fatal(err)
	}
	if d.Len() != 1 {
		t.Fatalf("len = %d after replace, want 1", d.Len())
	}
	if v1.Refcount() != 0 {
		t.Fatalf("replaced value refcount = %d, want 0", v1.Refcount())
	}
	if err := d.SetItem(NewTuple(nil), NewInt(3)); err == nil {
		t.Fatal("tuple keys must be rejected as unhashable")
	}
}

func TestSetDeduplicates(t *testing.T) {
	s := NewSet()
	if err := s.Add(NewInt(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(NewInt(1)); err != nil {
		t.Fatal(err)
	}
	if len(s.Items()) != 1 {
		t.Fatalf("set holds %d items, want 1", len(s.Items()))
	}
	ok, err := s.Contains(NewInt(1))
	if err != nil || !ok {
		t.Fatal("membership after Add failed")
	}
}

func TestExcTypeCanonicalAndMatches(t *testing.T) {
	a := ExcTypeOf("ValueError")
	b := ExcTypeOf("ValueError")
	if a != b {
		t.Fatal("exception classes must be canonical per name")
	}
	if !a.Matches(ExcTypeOf("Exception")) {
		t.Fatal("every class matches the Exception base")
	}
	if a.Matches(ExcTypeOf("TypeError")) {
		t.Fatal("sibling classes must not match")
	}
	exc := NewException("ValueError", "x")
	if exc.Class() != a {
		t.Fatal("an exception's class must be the canonical instance")
	}
}

func TestExcTypeCall(t *testing.T) {
	r, err := ExcTypeOf("ValueError").Call([]Object{NewStr("nope")})
	if err != nil {
		t.Fatal(err)
	}
	exc := r.(*Exception)
	if exc.ExcType != "ValueError" || exc.Message != "nope" {
		t.Fatalf("constructed %s(%q)", exc.ExcType, exc.Message)
	}
}

func TestCellHoldsReference(t *testing.T) {
	v := NewInt(5)
	c := NewCell(v)
	if c.Ref != Object(v) {
		t.Fatal("cell should hold the stored value")
	}
	empty := NewCell(nil)
	if empty.Ref != nil {
		t.Fatal("empty cell should read as unbound")
	}
}

func TestStrOfFallsBackToTypeName(t *testing.T) {
	c := NewCell(nil)
	if got := StrOf(c); got != "<cell object>" {
		t.Fatalf("StrOf(cell) = %q", got)
	}
	if got := StrOf(NewInt(3)); got != "3" {
		t.Fatalf("StrOf(int) = %q", got)
	}
}
