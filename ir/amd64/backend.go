// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package amd64 assembles straight-line ir kernels, built entirely from
// integer constants, local loads/stores and simple binary arithmetic,
// to x86-64 machine code via golang-asm.
//
// It is a kernel assembler, not a frame evaluator: the host object
// model keeps frame slots as boxed handles, so assembled kernels
// operate on raw uint64 words and execute through jit.CodeCache /
// jit.NativeBlock.Invoke. The ir.CodeUnit frame contract is therefore
// compile-only here; Invoke always returns an error saying so. Any
// module containing control flow, helper calls or refcount ops is
// rejected by Compile; those require the ir/interp backend instead.
package amd64

import (
	"fmt"

	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/frame"
	"github.com/frameeval/pyjit/ir"
	"github.com/frameeval/pyjit/object"
	"github.com/frameeval/pyjit/runtime"
	asm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// Reserved registers, mirroring backend_amd64.go's convention:
//  - R10 - pointer to the frame's locals slice header
//  - R11 - pointer to the frame's value-stack slice header on entry;
//    emitLocalsStore overwrites it with the locals backing pointer
// Scratch: AX, R9.

// Backend is the native compiler backend for x86-64 hosts.
type Backend struct{}

// Compile lowers m to native code. m must contain only its Entry and
// ErrorExit blocks; Entry's straight-line body is lowered and a RET is
// appended. Any other block, and any instruction other than a constant,
// a local load/store or simple binary arithmetic (OpReturn and helper
// calls included), is rejected.
func (b *Backend) Compile(m *ir.Module) (ir.CodeUnit, error) {
	if len(m.Blocks) != 2 {
		return nil, fmt.Errorf("amd64: cannot lower %q: needs control flow (%d blocks)", m.Name, len(m.Blocks))
	}
	builder, err := asm.NewBuilder("amd64", 64)
	if err != nil {
		return nil, err
	}

	temps := make(map[int]int16, m.NumTemps())
	for _, inst := range m.Entry.Insts {
		if err := b.lower(builder, temps, inst); err != nil {
			return nil, fmt.Errorf("amd64: %s: %w", m.Name, err)
		}
	}

	ret := builder.NewProg()
	ret.As = obj.ARET
	builder.AddInstruction(ret)

	return &codeUnit{code: builder.Assemble()}, nil
}

func (b *Backend) lower(builder *asm.Builder, temps map[int]int16, inst ir.Inst) error {
	switch inst.Op {
	case ir.OpConst:
		reg := b.scratchFor(inst)
		b.emitLoadConst(builder, reg, inst.Args[0].Const)
		temps[inst.Dst.Temp] = reg
	case ir.OpLoadLocal:
		reg := b.scratchFor(inst)
		b.emitLocalsLoad(builder, reg, uint64(inst.Local))
		temps[inst.Dst.Temp] = reg
	case ir.OpStoreLocal:
		reg, err := b.regFor(temps, inst.Args[0])
		if err != nil {
			return err
		}
		b.emitLocalsStore(builder, reg, uint64(inst.Local))
	case ir.OpBinaryArith:
		lhs, err := b.regFor(temps, inst.Args[0])
		if err != nil {
			return err
		}
		rhs, err := b.regFor(temps, inst.Args[1])
		if err != nil {
			return err
		}
		if err := b.emitBinary(builder, lhs, rhs, inst.PyOp); err != nil {
			return err
		}
		temps[inst.Dst.Temp] = lhs
	default:
		return fmt.Errorf("cannot lower op %d (opcode %v) natively", inst.Op, inst.PyOp)
	}
	return nil
}

// scratchFor picks the destination register by temp parity: AX for
// even-numbered temps (and for an instruction with no Dst), R9 for odd
// ones. There is no liveness tracking: two consecutive temps land in
// distinct registers, and emitBinary leaves its result in the left
// operand's register.
func (b *Backend) scratchFor(inst ir.Inst) int16 {
	if inst.Dst == nil {
		return x86.REG_AX
	}
	if inst.Dst.Temp%2 == 0 {
		return x86.REG_AX
	}
	return x86.REG_R9
}

func (b *Backend) regFor(temps map[int]int16, v ir.Value) (int16, error) {
	if v.Kind != ir.ValueTemp {
		return 0, fmt.Errorf("amd64: operand is not a materialized temp")
	}
	reg, ok := temps[v.Temp]
	if !ok {
		return 0, fmt.Errorf("amd64: temp %%%d used before lowered", v.Temp)
	}
	return reg, nil
}

func (b *Backend) emitLoadConst(builder *asm.Builder, reg int16, c uint64) {
	prog := builder.NewProg()
	prog.As = x86.AMOVQ
	prog.From.Type = obj.TYPE_CONST
	prog.From.Offset = int64(c)
	prog.To.Type = obj.TYPE_REG
	prog.To.Reg = reg
	builder.AddInstruction(prog)
}

// emitLocalsLoad reads locals[index] into reg: the backing-array
// pointer comes out of the slice header R10 points at, and the index is
// a translation-time constant, so the element load is a single
// constant-displacement access.
func (b *Backend) emitLocalsLoad(builder *asm.Builder, reg int16, index uint64) {
	base := builder.NewProg()
	base.As = x86.AMOVQ
	base.To.Type = obj.TYPE_REG
	base.To.Reg = x86.REG_R9
	base.From.Type = obj.TYPE_MEM
	base.From.Reg = x86.REG_R10
	builder.AddInstruction(base)

	load := builder.NewProg()
	load.As = x86.AMOVQ
	load.From.Type = obj.TYPE_MEM
	load.From.Reg = x86.REG_R9
	load.From.Offset = int64(index) * 8
	load.To.Type = obj.TYPE_REG
	load.To.Reg = reg
	builder.AddInstruction(load)
}

func (b *Backend) emitLocalsStore(builder *asm.Builder, reg int16, index uint64) {
	base := builder.NewProg()
	base.As = x86.AMOVQ
	base.To.Type = obj.TYPE_REG
	base.To.Reg = x86.REG_R11
	base.From.Type = obj.TYPE_MEM
	base.From.Reg = x86.REG_R10
	builder.AddInstruction(base)

	store := builder.NewProg()
	store.As = x86.AMOVQ
	store.To.Type = obj.TYPE_MEM
	store.To.Reg = x86.REG_R11
	store.To.Offset = int64(index) * 8
	store.From.Type = obj.TYPE_REG
	store.From.Reg = reg
	builder.AddInstruction(store)
}

func (b *Backend) emitBinary(builder *asm.Builder, lhs, rhs int16, op bytecode.Op) error {
	prog := builder.NewProg()
	prog.From.Type = obj.TYPE_REG
	prog.From.Reg = rhs
	prog.To.Type = obj.TYPE_REG
	prog.To.Reg = lhs
	switch op {
	case bytecode.OpBinaryAdd, bytecode.OpInplaceAdd:
		prog.As = x86.AADDQ
	case bytecode.OpBinarySubtract, bytecode.OpInplaceSubtract:
		prog.As = x86.ASUBQ
	case bytecode.OpBinaryAnd, bytecode.OpInplaceAnd:
		prog.As = x86.AANDQ
	case bytecode.OpBinaryOr, bytecode.OpInplaceOr:
		prog.As = x86.AORQ
	case bytecode.OpBinaryMultiply, bytecode.OpInplaceMultiply:
		prog.As = x86.AMULQ
		prog.From.Reg = rhs
		prog.To.Type = obj.TYPE_NONE
	default:
		return fmt.Errorf("amd64: no native lowering for opcode %d", op)
	}
	builder.AddInstruction(prog)
	return nil
}

type codeUnit struct {
	code []byte
}

// Invoke always fails: this backend is compile-only against the frame
// contract. Kernels it assembles run on raw words, installed through
// jit.CodeCache and entered through jit.NativeBlock.Invoke.
func (c *codeUnit) Invoke(h *runtime.Helpers, f *frame.Frame) (object.Object, error) {
	return nil, fmt.Errorf("amd64: compile-only backend: execute installed kernels through jit.NativeBlock.Invoke")
}

func (c *codeUnit) Free() error { return nil }

// Code returns the assembled machine code, for jit.CodeCache to copy into
// an executable mapping.
func (c *codeUnit) Code() []byte { return c.code }
