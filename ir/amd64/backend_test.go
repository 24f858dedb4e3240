// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package amd64

import (
	"bytes"
	"strings"
	"testing"

	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/ir"
)

// arithKernel builds the straight-line shape this backend accepts:
// load a local, add an immediate, store the result.
func arithKernel() *ir.Module {
	m := ir.NewModule("kernel")
	a := m.Entry.EmitValue(m, ir.Inst{Op: ir.OpConst, Args: []ir.Value{ir.Const(0x0BADF00D)}})
	b := m.Entry.EmitValue(m, ir.Inst{Op: ir.OpLoadLocal, Local: 0})
	sum := m.Entry.EmitValue(m, ir.Inst{Op: ir.OpBinaryArith, PyOp: bytecode.OpBinaryAdd, Args: []ir.Value{a, b}})
	m.Entry.Emit(ir.Inst{Op: ir.OpStoreLocal, Local: 1, Args: []ir.Value{sum}})
	return m
}

func TestCompileAssemblesArithKernel(t *testing.T) {
	var b Backend
	unit, err := b.Compile(arithKernel())
	if err != nil {
		t.Fatal(err)
	}
	raw, ok := unit.(interface{ Code() []byte })
	if !ok {
		t.Fatal("compiled unit does not expose its assembled bytes")
	}
	code := raw.Code()
	if len(code) < 8 {
		t.Fatalf("assembled %d bytes, too short for const+load+add+store+ret", len(code))
	}
	if code[len(code)-1] != 0xc3 {
		t.Fatalf("assembled code ends with %#x, want RET", code[len(code)-1])
	}
	// The immediate must appear little-endian in the MOVQ encoding.
	if !bytes.Contains(code, []byte{0x0d, 0xf0, 0xad, 0x0b}) {
		t.Fatalf("assembled code %x does not carry the constant's immediate bytes", code)
	}
}

func TestCompileRejectsControlFlow(t *testing.T) {
	m := ir.NewModule("branchy")
	extra := m.NewBlock("b0")
	m.Entry.Emit(ir.Inst{Op: ir.OpBranch, Targets: []*ir.Block{extra}})
	var b Backend
	if _, err := b.Compile(m); err == nil {
		t.Fatal("expected Compile to reject a module with extra blocks")
	}
}

func TestCompileRejectsHelperCalls(t *testing.T) {
	m := ir.NewModule("helpery")
	m.Entry.EmitValue(m, ir.Inst{Op: ir.OpCallHelper, Helper: "LoadGlobal", Args: []ir.Value{ir.Const(0)}})
	var b Backend
	if _, err := b.Compile(m); err == nil {
		t.Fatal("expected Compile to reject a helper call")
	}
}

// The backend's frame contract is compile-only: kernels run on raw
// words through the installer's native block, never through Invoke.
func TestInvokeIsCompileOnly(t *testing.T) {
	var b Backend
	unit, err := b.Compile(arithKernel())
	if err != nil {
		t.Fatal(err)
	}
	_, err = unit.Invoke(nil, nil)
	if err == nil {
		t.Fatal("Invoke on the compile-only backend must fail")
	}
	if !strings.Contains(err.Error(), "compile-only") {
		t.Fatalf("error %q should state the compile-only contract", err)
	}
}
