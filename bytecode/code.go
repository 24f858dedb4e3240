// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bytecode models the input to the translator: an immutable code
// unit (the host's stack-based bytecode plus the metadata needed to
// interpret it) and the virtual program counter that every later stage
// indexes by.
package bytecode

import "fmt"

// VPC is an index into a Unit's instruction array. All inter-stage
// references use VPC, never a byte offset.
type VPC int

// Flag bits describing a code unit's calling-convention shape.
type Flag uint8

const (
	FlagVarargs Flag = 1 << iota
	FlagVarkw
	FlagGenerator
	FlagCoroutine
)

// Instr is one fixed-width (opcode, operand) pair.
type Instr struct {
	Op    Op
	Arg   uint32
	atVPC VPC
}

// Unit is the immutable code unit the translator consumes: the raw
// instruction sequence plus counts of arguments/locals/cells/frees, the
// maximum operand-stack depth, and the calling-convention flags.
type Unit struct {
	Name string

	Instrs []Instr

	Consts []interface{}
	Names  []string
	// Varnames names the locals slots and Cellnames the cell+free slots;
	// both are optional and only consulted when composing error messages.
	Varnames  []string
	Cellnames []string

	ArgCount   int
	KwOnlyArgs int
	NLocals    int
	NCells     int
	NFrees     int
	StackSize  int
	Flags      Flag
}

// Decode parses a raw (opcode-byte, operand-byte) stream into a Unit's
// Instrs, folding EXTENDED_ARG prefixes into the operand of the opcode
// they precede. Each raw instruction is a fixed-width 2-byte pair.
func Decode(raw []byte) ([]Instr, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("bytecode: odd-length instruction stream (%d bytes)", len(raw))
	}
	var instrs []Instr
	var ext uint32
	for i := 0; i < len(raw); i += 2 {
		op := Op(raw[i])
		arg := uint32(raw[i+1]) | ext
		if op == OpExtendedArg {
			ext = arg << 8
			continue
		}
		ext = 0
		instrs = append(instrs, Instr{Op: op, Arg: arg, atVPC: VPC(len(instrs))})
	}
	return instrs, nil
}

// NewUnit decodes raw and assembles a Unit around it.
func NewUnit(name string, raw []byte, consts []interface{}, names []string, argCount, kwOnlyArgs, nlocals, ncells, nfrees, stackSize int, flags Flag) (*Unit, error) {
	instrs, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return &Unit{
		Name:       name,
		Instrs:     instrs,
		Consts:     consts,
		Names:      names,
		ArgCount:   argCount,
		KwOnlyArgs: kwOnlyArgs,
		NLocals:    nlocals,
		NCells:     ncells,
		NFrees:     nfrees,
		StackSize:  stackSize,
		Flags:      flags,
	}, nil
}

// Len returns the number of decoded instructions.
func (u *Unit) Len() VPC { return VPC(len(u.Instrs)) }

// At returns the instruction at vpc.
func (u *Unit) At(vpc VPC) Instr { return u.Instrs[vpc] }

// ArgLocalCount returns the number of locals slots bound on entry by the
// calling convention: positional args, a varargs tuple slot if present,
// keyword-only args, and a varkw dict slot if present.
func (u *Unit) ArgLocalCount() int {
	n := u.ArgCount + u.KwOnlyArgs
	if u.Flags&FlagVarargs != 0 {
		n++
	}
	if u.Flags&FlagVarkw != 0 {
		n++
	}
	return n
}

// StackEffect returns the net change in operand-stack height executing
// instr causes. The backward redundancy analyzer simulates the reverse
// of each effect; StackEffect is the un-reversed ground truth the tests
// check heights against.
func StackEffect(instr Instr) int {
	switch instr.Op {
	case OpNop, OpSetupFinally, OpPopBlock, OpJumpForward, OpJumpAbsolute,
		OpJumpIfTrueOrPop, OpJumpIfFalseOrPop,
		OpDeleteDeref, OpDeleteGlobal, OpDeleteName, OpGenStart,
		OpSetupAsyncWith, OpBeforeAsyncWith, OpUnaryNot,
		OpUnaryPositive, OpUnaryNegative, OpUnaryInvert, OpListToTuple,
		OpGetIter:
		return 0
	case OpPopTop, OpStoreFast, OpStoreDeref, OpStoreGlobal, OpStoreName,
		OpDeleteAttr, OpPopJumpIfTrue, OpPopJumpIfFalse, OpListAppend,
		OpSetAdd, OpListExtend, OpSetUpdate, OpDictUpdate, OpDictMerge,
		OpImportStar, OpReturnValue, OpImportName, OpYieldValue:
		return -1
	case OpDupTop, OpLoadConst, OpLoadFast, OpLoadDeref, OpLoadClassDeref,
		OpLoadGlobal, OpLoadName, OpLoadBuildClass, OpGetYieldFromIter,
		OpGetAwaitable, OpGetAiter, OpForIter, OpImportFrom, OpLoadClosure:
		return +1
	case OpDupTopTwo:
		return +2
	case OpRotTwo, OpRotThree, OpRotFour, OpRotN:
		return 0
	case OpDeleteFast:
		return 0
	case OpLoadAttr:
		return 0
	case OpLoadMethod:
		return +1
	case OpStoreAttr, OpMapAdd, OpJumpIfNotExcMatch:
		return -2
	case OpBinarySubscr:
		return -1
	case OpStoreSubscr:
		return -3
	case OpDeleteSubscr:
		return -2
	case OpBinaryAdd, OpInplaceAdd, OpBinarySubtract, OpInplaceSubtract,
		OpBinaryMultiply, OpInplaceMultiply, OpBinaryFloorDivide,
		OpInplaceFloorDivide, OpBinaryTrueDivide, OpInplaceTrueDivide,
		OpBinaryModulo, OpInplaceModulo, OpBinaryPower, OpInplacePower,
		OpBinaryLshift, OpInplaceLshift, OpBinaryRshift, OpInplaceRshift,
		OpBinaryAnd, OpInplaceAnd, OpBinaryOr, OpInplaceOr, OpBinaryXor,
		OpInplaceXor, OpCompareOp, OpIsOp, OpContainsOp:
		return -1
	case OpCallFunction:
		return -int(instr.Arg)
	case OpCallFunctionKw:
		return -int(instr.Arg) - 1
	case OpCallFunctionEx:
		n := -1
		if instr.Arg&1 != 0 {
			n--
		}
		return n
	case OpCallMethod:
		return -int(instr.Arg) - 1
	case OpMakeFunction:
		n := -1
		if instr.Arg&1 != 0 {
			n--
		}
		if instr.Arg&2 != 0 {
			n--
		}
		if instr.Arg&4 != 0 {
			n--
		}
		if instr.Arg&8 != 0 {
			n--
		}
		return n
	case OpBuildTuple, OpBuildList, OpBuildSet:
		return 1 - int(instr.Arg)
	case OpBuildMap:
		return 1 - 2*int(instr.Arg)
	case OpBuildConstKeyMap:
		return -int(instr.Arg)
	case OpBuildString:
		return 1 - int(instr.Arg)
	case OpFormatValue:
		n := 0
		if instr.Arg&fvsMask == fvsHaveSpec {
			n--
		}
		return n
	case OpUnpackSequence:
		return int(instr.Arg) - 1
	case OpUnpackEx:
		return int(instr.Arg&0xff) + 1 + int(instr.Arg>>8) - 1
	case OpSetupWith:
		return +1
	case OpRaiseVarargs:
		return -int(instr.Arg)
	case OpReraise, OpPopExcept:
		return -3
	case OpWithExceptStart:
		return +1
	default:
		return 0
	}
}

const (
	fvsMask     = 0x4
	fvsHaveSpec = 0x4
)
