// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import (
	"strings"
	"testing"

	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/frame"
	"github.com/frameeval/pyjit/object"
	"github.com/frameeval/pyjit/runtime"
)

func builtins() map[string]object.Object {
	return map[string]object.Object{
		"ValueError": object.ExcTypeOf("ValueError"),
		"TypeError":  object.ExcTypeOf("TypeError"),
	}
}

func fnFor(u *bytecode.Unit) *object.Function {
	return object.NewFunction(u.Name, u, map[string]object.Object{})
}

func wantInt(t *testing.T, got object.Object, err error, want int64) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
	i, ok := got.(*object.Int)
	if !ok {
		t.Fatalf("result is %T, want *object.Int", got)
	}
	if i.Value != want {
		t.Fatalf("result = %d, want %d", i.Value, want)
	}
}

// def f(): return 1 + 2
func TestReturnAddConsts(t *testing.T) {
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadConst, Arg: 0},
			{Op: bytecode.OpLoadConst, Arg: 1},
			{Op: bytecode.OpBinaryAdd},
			{Op: bytecode.OpReturnValue},
		},
		Consts:    []interface{}{object.NewInt(1), object.NewInt(2)},
		StackSize: 2,
	}
	tr := New(WithBuiltins(builtins()))
	ret, err := tr.Call(fnFor(u))
	wantInt(t, ret, err, 3)

	// The shared constants' counts are unchanged after the call: the
	// incref each load emitted is paired with the operand decref after
	// the dispatch.
	for i, c := range u.Consts {
		if rc := c.(*object.Int).Refcount(); rc != 1 {
			t.Errorf("const %d refcount = %d after call, want 1", i, rc)
		}
	}
}

// def f(x): y = x; return y
func TestLocalRoundTrip(t *testing.T) {
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadFast, Arg: 0},
			{Op: bytecode.OpStoreFast, Arg: 1},
			{Op: bytecode.OpLoadFast, Arg: 1},
			{Op: bytecode.OpReturnValue},
		},
		Varnames:  []string{"x", "y"},
		StackSize: 1,
		NLocals:   2,
		ArgCount:  1,
	}
	tr := New(WithBuiltins(builtins()))
	x := object.NewInt(5)
	ret, err := tr.Call(fnFor(u), x)
	wantInt(t, ret, err, 5)
	if ret != object.Object(x) {
		t.Fatal("result should be the argument object itself")
	}
	// One reference held by the caller, one carried by the return.
	if rc := x.Refcount(); rc != 2 {
		t.Fatalf("x refcount = %d after call, want 2", rc)
	}
	runtime.Decref(ret)
	if rc := x.Refcount(); rc != 1 {
		t.Fatalf("x refcount = %d after releasing the result, want 1", rc)
	}
}

// def f(): a = 1; del a; return a
func TestUnboundLocal(t *testing.T) {
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadConst, Arg: 0},
			{Op: bytecode.OpStoreFast, Arg: 0},
			{Op: bytecode.OpDeleteFast, Arg: 0},
			{Op: bytecode.OpLoadFast, Arg: 0},
			{Op: bytecode.OpReturnValue},
		},
		Consts:    []interface{}{object.NewInt(1)},
		Varnames:  []string{"a"},
		StackSize: 1,
		NLocals:   1,
	}
	tr := New(WithBuiltins(builtins()))
	_, err := tr.Call(fnFor(u))
	if err == nil {
		t.Fatal("expected UnboundLocalError")
	}
	exc, ok := err.(*object.Exception)
	if !ok {
		t.Fatalf("error is %T, want *object.Exception", err)
	}
	if exc.ExcType != "UnboundLocalError" {
		t.Fatalf("exception type = %s, want UnboundLocalError", exc.ExcType)
	}
	if !strings.Contains(exc.Message, "'a'") {
		t.Fatalf("message %q does not name the local", exc.Message)
	}
}

// def f(xs): s = 0; for x in xs: s = s + x; return s
func TestLoopSum(t *testing.T) {
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadConst, Arg: 0},
			{Op: bytecode.OpStoreFast, Arg: 1},
			{Op: bytecode.OpLoadFast, Arg: 0},
			{Op: bytecode.OpGetIter},
			{Op: bytecode.OpForIter, Arg: 11},
			{Op: bytecode.OpStoreFast, Arg: 2},
			{Op: bytecode.OpLoadFast, Arg: 1},
			{Op: bytecode.OpLoadFast, Arg: 2},
			{Op: bytecode.OpBinaryAdd},
			{Op: bytecode.OpStoreFast, Arg: 1},
			{Op: bytecode.OpJumpAbsolute, Arg: 4},
			{Op: bytecode.OpLoadFast, Arg: 1},
			{Op: bytecode.OpReturnValue},
		},
		Consts:    []interface{}{object.NewInt(0)},
		Varnames:  []string{"xs", "s", "x"},
		StackSize: 3,
		NLocals:   3,
		ArgCount:  1,
	}
	items := []object.Object{object.NewInt(1), object.NewInt(2), object.NewInt(3), object.NewInt(4)}
	xs := object.NewTuple(items)

	tr := New(WithBuiltins(builtins()))
	ret, err := tr.Call(fnFor(u), xs)
	wantInt(t, ret, err, 10)

	// The iterator pinned xs once and the exit path released it: the
	// caller's reference is the only one left.
	if rc := xs.Refcount(); rc != 1 {
		t.Fatalf("xs refcount = %d after loop, want 1", rc)
	}
	for i, it := range items {
		if rc := it.(*object.Int).Refcount(); rc != 1 {
			t.Errorf("item %d refcount = %d after loop, want 1", i, rc)
		}
	}
}

// def f():
//     try: raise ValueError('x')
//     except ValueError as e: return 42
func TestTryExceptHandler(t *testing.T) {
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpSetupFinally, Arg: 5},
			{Op: bytecode.OpLoadGlobal, Arg: 0},
			{Op: bytecode.OpLoadConst, Arg: 0},
			{Op: bytecode.OpCallFunction, Arg: 1},
			{Op: bytecode.OpRaiseVarargs, Arg: 1},
			{Op: bytecode.OpDupTop},
			{Op: bytecode.OpLoadGlobal, Arg: 0},
			{Op: bytecode.OpJumpIfNotExcMatch, Arg: 14},
			{Op: bytecode.OpPopTop},
			{Op: bytecode.OpStoreFast, Arg: 0},
			{Op: bytecode.OpPopTop},
			{Op: bytecode.OpPopExcept},
			{Op: bytecode.OpLoadConst, Arg: 1},
			{Op: bytecode.OpReturnValue},
			{Op: bytecode.OpReraise},
		},
		Consts:    []interface{}{object.NewStr("x"), object.NewInt(42)},
		Names:     []string{"ValueError"},
		Varnames:  []string{"e"},
		StackSize: 8,
		NLocals:   1,
	}
	tr := New(WithBuiltins(builtins()))
	ret, err := tr.Call(fnFor(u))
	wantInt(t, ret, err, 42)
}

// An unmatched handler re-raises and the exception propagates out.
func TestTryExceptNoMatchPropagates(t *testing.T) {
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpSetupFinally, Arg: 5},
			{Op: bytecode.OpLoadGlobal, Arg: 0},
			{Op: bytecode.OpLoadConst, Arg: 0},
			{Op: bytecode.OpCallFunction, Arg: 1},
			{Op: bytecode.OpRaiseVarargs, Arg: 1},
			{Op: bytecode.OpDupTop},
			{Op: bytecode.OpLoadGlobal, Arg: 1},
			{Op: bytecode.OpJumpIfNotExcMatch, Arg: 14},
			{Op: bytecode.OpPopTop},
			{Op: bytecode.OpStoreFast, Arg: 0},
			{Op: bytecode.OpPopTop},
			{Op: bytecode.OpPopExcept},
			{Op: bytecode.OpLoadConst, Arg: 1},
			{Op: bytecode.OpReturnValue},
			{Op: bytecode.OpReraise},
		},
		Consts:    []interface{}{object.NewStr("boom"), object.NewInt(42)},
		Names:     []string{"ValueError", "TypeError"},
		Varnames:  []string{"e"},
		StackSize: 8,
		NLocals:   1,
	}
	tr := New(WithBuiltins(builtins()))
	_, err := tr.Call(fnFor(u))
	exc, ok := err.(*object.Exception)
	if !ok {
		t.Fatalf("error is %T, want *object.Exception", err)
	}
	if exc.ExcType != "ValueError" || exc.Message != "boom" {
		t.Fatalf("propagated %s(%q), want ValueError(\"boom\")", exc.ExcType, exc.Message)
	}
}

// def f(a, b): return a * b + a * b: three operator dispatches total.
func TestMulAddDispatchCount(t *testing.T) {
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadFast, Arg: 0},
			{Op: bytecode.OpLoadFast, Arg: 1},
			{Op: bytecode.OpBinaryMultiply},
			{Op: bytecode.OpLoadFast, Arg: 0},
			{Op: bytecode.OpLoadFast, Arg: 1},
			{Op: bytecode.OpBinaryMultiply},
			{Op: bytecode.OpBinaryAdd},
			{Op: bytecode.OpReturnValue},
		},
		Varnames:  []string{"a", "b"},
		StackSize: 4,
		NLocals:   2,
		ArgCount:  2,
	}
	h := runtime.NewHelpers(nil, nil)
	var muls, adds int
	orig := h.BinaryOp
	h.BinaryOp = func(op bytecode.Op, v, w object.Object) (object.Object, error) {
		switch op {
		case bytecode.OpBinaryMultiply:
			muls++
		case bytecode.OpBinaryAdd:
			adds++
		}
		return orig(op, v, w)
	}
	tr := New(WithHelpers(h), WithBuiltins(builtins()))
	ret, err := tr.Call(fnFor(u), object.NewInt(3), object.NewInt(4))
	wantInt(t, ret, err, 24)
	if muls != 2 || adds != 1 {
		t.Fatalf("dispatches: %d mul, %d add; want 2 and 1", muls, adds)
	}
}

// Conditional branches: the singleton fast paths and the truthiness
// fallback both reach the right arm.
func TestConditionalBranches(t *testing.T) {
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadFast, Arg: 0},
			{Op: bytecode.OpPopJumpIfFalse, Arg: 4},
			{Op: bytecode.OpLoadConst, Arg: 0},
			{Op: bytecode.OpReturnValue},
			{Op: bytecode.OpLoadConst, Arg: 1},
			{Op: bytecode.OpReturnValue},
		},
		Consts:    []interface{}{object.NewInt(1), object.NewInt(2)},
		Varnames:  []string{"x"},
		StackSize: 1,
		NLocals:   1,
		ArgCount:  1,
	}
	tr := New(WithBuiltins(builtins()))
	fn := fnFor(u)

	ret, err := tr.Call(fn, object.NewBool(true))
	wantInt(t, ret, err, 1)
	ret, err = tr.Call(fn, object.NewBool(false))
	wantInt(t, ret, err, 2)
	// Non-singleton operands take the Truthy fallback.
	ret, err = tr.Call(fn, object.NewInt(7))
	wantInt(t, ret, err, 1)
	ret, err = tr.Call(fn, object.NewInt(0))
	wantInt(t, ret, err, 2)
}

// analyze → emit → execute a no-op function: the expected constant
// comes back and the operand stack ends empty.
func TestRoundTripNoop(t *testing.T) {
	u := &bytecode.Unit{
		Name: "noop",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpNop},
			{Op: bytecode.OpLoadConst, Arg: 0},
			{Op: bytecode.OpReturnValue},
		},
		Consts:    []interface{}{object.NewInt(7)},
		StackSize: 1,
	}
	tr := New(WithBuiltins(builtins()))
	fn := fnFor(u)
	if _, err := tr.Apply(fn); err != nil {
		t.Fatal(err)
	}
	ret, err := tr.Call(fn)
	wantInt(t, ret, err, 7)
}

// Applying twice is observationally the same as applying once.
func TestApplyIdempotent(t *testing.T) {
	u := &bytecode.Unit{
		Name: "f",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadConst, Arg: 0},
			{Op: bytecode.OpReturnValue},
		},
		Consts:    []interface{}{object.NewInt(9)},
		StackSize: 1,
	}
	tr := New(WithBuiltins(builtins()))
	fn := fnFor(u)
	if _, err := tr.Apply(fn); err != nil {
		t.Fatal(err)
	}
	rec := tr.extra[u]
	if rec == nil {
		t.Fatal("extra slot empty after Apply")
	}
	if _, err := tr.Apply(fn); err != nil {
		t.Fatal(err)
	}
	if tr.extra[u] != rec {
		t.Fatal("second Apply replaced the compiled record")
	}
	ret, err := tr.Call(fn)
	wantInt(t, ret, err, 9)
}

// Generator-shaped code objects are refused at installation time and
// the extra slot stays empty.
func TestApplyRefusesGenerator(t *testing.T) {
	u := &bytecode.Unit{
		Name: "g",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadConst, Arg: 0},
			{Op: bytecode.OpReturnValue},
		},
		Consts:    []interface{}{object.NewInt(0)},
		StackSize: 1,
		Flags:     bytecode.FlagGenerator,
	}
	tr := New(WithBuiltins(builtins()))
	if _, err := tr.Apply(fnFor(u)); err == nil {
		t.Fatal("expected Apply to refuse a generator")
	}
	if _, ok := tr.extra[u]; ok {
		t.Fatal("extra slot filled for a refused function")
	}
}

// Functions using unimplemented opcode families are likewise refused.
func TestApplyRefusesUnimplementedOpcodes(t *testing.T) {
	u := &bytecode.Unit{
		Name: "y",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadConst, Arg: 0},
			{Op: bytecode.OpYieldValue},
			{Op: bytecode.OpReturnValue},
		},
		Consts:    []interface{}{object.NewInt(0)},
		StackSize: 1,
	}
	tr := New(WithBuiltins(builtins()))
	if _, err := tr.Apply(fnFor(u)); err == nil {
		t.Fatal("expected Apply to refuse YIELD_VALUE")
	}
}

// A refused function runs through the fallback evaluator instead.
func TestFallbackEvaluator(t *testing.T) {
	u := &bytecode.Unit{
		Name: "g",
		Instrs: []bytecode.Instr{
			{Op: bytecode.OpLoadConst, Arg: 0},
			{Op: bytecode.OpReturnValue},
		},
		Consts:    []interface{}{object.NewInt(0)},
		StackSize: 1,
		Flags:     bytecode.FlagGenerator,
	}
	called := false
	tr := New(WithBuiltins(builtins()), WithFallback(func(f *frame.Frame) (object.Object, error) {
		called = true
		return object.NewInt(11), nil
	}))
	ret, err := tr.Call(fnFor(u))
	wantInt(t, ret, err, 11)
	if !called {
		t.Fatal("fallback evaluator not invoked")
	}
}
