// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"math"

	"github.com/frameeval/pyjit/bitset"
	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/cfg"
)

// untilFinally denotes "never observed within this block": the value a
// reversed-stack slot is reset to and the value deposited for operands
// a call will consume wholesale.
const untilFinally = math.MaxUint32

// untilAnytime denotes "observed by any later operation, however
// trivial", the timestamp POP_TOP deposits.
const untilAnytime = 0

// reversedStack is a fixed-size array of timestamps, one per abstract
// stack slot, indexed from the top: peek/poke the top few slots for
// rotations and duplication, push/pop to simulate the *reverse* of an
// instruction's stack effect during the backward walk.
type reversedStack struct {
	slots []uint32
	sp    int // index one past the top live slot
	now   uint32
}

// newReversedStack allocates room for the height to move up to size
// slots either way from a block's exit height.
func newReversedStack(size int) *reversedStack {
	return &reversedStack{slots: make([]uint32, 2*size)}
}

// reset starts a block at its exit height: sp sits mid-array, so reverse
// pushes of values still live at block end read untilFinally from the
// slots below it.
func (s *reversedStack) reset() {
	for i := range s.slots {
		s.slots[i] = untilFinally
	}
	s.sp = len(s.slots) / 2
}

func (s *reversedStack) setTimestamp(t uint32) { s.now = t }

// peek returns the timestamp i slots from the top (1-indexed, matching
// set_peak's 1-based "i"); poke overwrites it.
func (s *reversedStack) peek(i int) uint32     { return s.slots[s.sp-i] }
func (s *reversedStack) poke(i int, v uint32)  { s.slots[s.sp-i] = v }

// pop simulates the reverse of a forward "pop": in forward execution a
// consumer popped this slot at s.now, so popping it here (moving
// backward) deposits that consumption timestamp into a newly-live slot.
func (s *reversedStack) pop(timestamp uint32) {
	s.slots[s.sp] = timestamp
	s.sp++
}

func (s *reversedStack) popDefault() { s.pop(s.now) }

func (s *reversedStack) popN(n int, timestamp uint32) {
	for i := 0; i < n; i++ {
		s.pop(timestamp)
	}
}

// push simulates the reverse of a forward "push": the value's next
// consumption timestamp (forward-time) is whatever this slot currently
// holds; the slot is retired.
func (s *reversedStack) push() uint32 {
	s.sp--
	return s.slots[s.sp]
}

// Redundant holds the result of the backward redundancy analysis: one
// bit per vpc in RedundantLoads, plus the locals_touched/locals_deleted/
// locals_ever_deleted bitsets attached to each cfg.Block.
type Redundant struct {
	RedundantLoads bitset.Bitset
}

// AnalyzeRedundantLoads runs the backward redundancy pass, processing
// blocks in reverse index order and resetting the reversed stack at
// every block boundary.
func AnalyzeRedundantLoads(u *bytecode.Unit, g *cfg.Graph) *Redundant {
	r := &Redundant{RedundantLoads: bitset.New(int(u.Len()))}
	if len(g.Blocks) == 0 {
		return r
	}

	stack := newReversedStack(u.StackSize + 1)
	locals := make([]uint32, u.NLocals)
	for i := range locals {
		locals[i] = untilFinally
	}

	for bi := len(g.Blocks) - 1; bi >= 0; bi-- {
		b := g.Blocks[bi]
		stack.reset()
		touched := b.LocalsTouched
		deleted := b.LocalsDeleted
		everDel := b.LocalsEverDel

		for vpc := b.End - 1; vpc >= b.Start; vpc-- {
			stack.setTimestamp(uint32(vpc))
			instr := u.Instrs[vpc]

			switch instr.Op {
			case bytecode.OpExtendedArg, bytecode.OpNop:

			case bytecode.OpRotTwo:
				top := stack.peek(2)
				stack.poke(2, stack.peek(1))
				stack.poke(1, top)
			case bytecode.OpRotThree:
				top := stack.peek(3)
				stack.poke(3, stack.peek(2))
				stack.poke(2, stack.peek(1))
				stack.poke(1, top)
			case bytecode.OpRotFour:
				top := stack.peek(4)
				stack.poke(4, stack.peek(3))
				stack.poke(3, stack.peek(2))
				stack.poke(2, stack.peek(1))
				stack.poke(1, top)
			case bytecode.OpRotN:
				n := int(instr.Arg)
				top := stack.peek(n)
				for n > 1 {
					stack.poke(n, stack.peek(n-1))
					n--
				}
				stack.poke(1, top)

			case bytecode.OpDupTop:
				t1 := stack.push()
				t2 := stack.push()
				stack.pop(max32(t1, t2))
			case bytecode.OpDupTopTwo:
				t1 := stack.push()
				t2 := stack.push()
				t3 := stack.push()
				t4 := stack.push()
				stack.pop(max32(t2, t4))
				stack.pop(max32(t1, t3))

			case bytecode.OpPopTop:
				stack.pop(untilAnytime)

			case bytecode.OpLoadConst:
				r.RedundantLoads.SetIf(int(vpc), stack.push() == untilFinally)

			case bytecode.OpLoadFast:
				local := int(instr.Arg)
				r.RedundantLoads.SetIf(int(vpc), locals[local] > stack.push())
				touched.Set(local)

			case bytecode.OpStoreFast:
				local := int(instr.Arg)
				locals[local] = uint32(vpc)
				stack.popDefault()
				touched.Set(local)

			case bytecode.OpDeleteFast:
				local := int(instr.Arg)
				deleted.Set(local)
				if touched.Get(local) {
					deleted.Clear(local)
				}
				everDel.Set(local)
				touched.Set(local)

			case bytecode.OpLoadDeref, bytecode.OpLoadClassDeref, bytecode.OpLoadClosure,
				bytecode.OpLoadGlobal, bytecode.OpLoadName, bytecode.OpLoadBuildClass,
				bytecode.OpForIter:
				stack.push()
			case bytecode.OpStoreDeref, bytecode.OpStoreGlobal, bytecode.OpStoreName:
				stack.popDefault()
			case bytecode.OpDeleteDeref, bytecode.OpDeleteGlobal, bytecode.OpDeleteName:

			case bytecode.OpLoadAttr:
				stack.push()
				stack.popDefault()
			case bytecode.OpLoadMethod:
				stack.push()
				stack.push()
				stack.popDefault()
			case bytecode.OpStoreAttr:
				stack.popDefault()
				stack.popDefault()
			case bytecode.OpDeleteAttr:
				stack.popDefault()

			case bytecode.OpBinarySubscr:
				stack.push()
				stack.popDefault()
				stack.popDefault()
			case bytecode.OpStoreSubscr:
				stack.popDefault()
				stack.popDefault()
				stack.popDefault()
			case bytecode.OpDeleteSubscr:
				stack.popDefault()
				stack.popDefault()

			case bytecode.OpUnaryNot, bytecode.OpUnaryPositive, bytecode.OpUnaryNegative, bytecode.OpUnaryInvert:
				stack.push()
				stack.popDefault()

			case bytecode.OpBinaryAdd, bytecode.OpInplaceAdd, bytecode.OpBinarySubtract,
				bytecode.OpInplaceSubtract, bytecode.OpBinaryMultiply, bytecode.OpInplaceMultiply,
				bytecode.OpBinaryFloorDivide, bytecode.OpInplaceFloorDivide, bytecode.OpBinaryTrueDivide,
				bytecode.OpInplaceTrueDivide, bytecode.OpBinaryModulo, bytecode.OpInplaceModulo,
				bytecode.OpBinaryPower, bytecode.OpInplacePower, bytecode.OpBinaryLshift,
				bytecode.OpInplaceLshift, bytecode.OpBinaryRshift, bytecode.OpInplaceRshift,
				bytecode.OpBinaryAnd, bytecode.OpInplaceAnd, bytecode.OpBinaryOr, bytecode.OpInplaceOr,
				bytecode.OpBinaryXor, bytecode.OpInplaceXor, bytecode.OpCompareOp, bytecode.OpIsOp,
				bytecode.OpContainsOp:
				stack.push()
				stack.popDefault()
				stack.popDefault()

			case bytecode.OpReturnValue:
				stack.popDefault()

			case bytecode.OpCallFunction:
				stack.push()
				stack.popN(1+int(instr.Arg), untilFinally)
			case bytecode.OpCallFunctionKw:
				stack.push()
				stack.popN(2+int(instr.Arg), untilFinally)
			case bytecode.OpCallFunctionEx:
				stack.push()
				stack.popDefault()
				stack.popDefault()
				if instr.Arg&1 != 0 {
					stack.popDefault()
				}
			case bytecode.OpCallMethod:
				stack.push()
				stack.popN(2+int(instr.Arg), untilFinally)

			case bytecode.OpMakeFunction:
				stack.push()
				n := 2
				if instr.Arg&1 != 0 {
					n++
				}
				if instr.Arg&2 != 0 {
					n++
				}
				if instr.Arg&4 != 0 {
					n++
				}
				if instr.Arg&8 != 0 {
					n++
				}
				stack.popN(n, untilFinally)

			case bytecode.OpImportName:
				stack.push()
				stack.popDefault()
				stack.popDefault()
			case bytecode.OpImportFrom:
				stack.push()
			case bytecode.OpImportStar:
				stack.popDefault()

			case bytecode.OpJumpForward, bytecode.OpJumpAbsolute:
			case bytecode.OpPopJumpIfTrue, bytecode.OpPopJumpIfFalse:
				stack.popDefault()
			case bytecode.OpJumpIfTrueOrPop, bytecode.OpJumpIfFalseOrPop:

			case bytecode.OpGetIter:
				stack.push()
				stack.popDefault()

			case bytecode.OpBuildTuple, bytecode.OpBuildList, bytecode.OpBuildSet:
				stack.push()
				stack.popN(int(instr.Arg), untilFinally)
			case bytecode.OpBuildMap:
				stack.push()
				stack.popN(2*int(instr.Arg), untilFinally)
			case bytecode.OpBuildConstKeyMap:
				stack.push()
				stack.popN(1+int(instr.Arg), untilFinally)
			case bytecode.OpListAppend, bytecode.OpSetAdd:
				stack.popDefault()
			case bytecode.OpMapAdd:
				stack.popDefault()
				stack.popDefault()
			case bytecode.OpListExtend, bytecode.OpSetUpdate, bytecode.OpDictUpdate, bytecode.OpDictMerge:
				stack.popDefault()
			case bytecode.OpListToTuple:
				stack.push()
				stack.popDefault()

			case bytecode.OpFormatValue:
				stack.push()
				stack.popDefault()
				if instr.Arg&0x4 == 0x4 {
					stack.popDefault()
				}
			case bytecode.OpBuildString:
				stack.push()
				stack.popN(int(instr.Arg), untilFinally)

			case bytecode.OpUnpackSequence:
				for n := int(instr.Arg); n > 0; n-- {
					stack.push()
				}
				stack.popDefault()
			case bytecode.OpUnpackEx:
				n := int(instr.Arg&0xff) + 1 + int(instr.Arg>>8)
				for ; n > 0; n-- {
					stack.push()
				}
				stack.popDefault()

			case bytecode.OpJumpIfNotExcMatch:
				stack.popDefault()
				stack.popDefault()
			case bytecode.OpSetupWith:
				stack.push()
				stack.push()
				stack.popDefault()
			case bytecode.OpWithExceptStart:
				stack.push()

			// Exception/pattern-match/generator/async opcodes, plus
			// SETUP_FINALLY/POP_BLOCK/POP_EXCEPT: no-op stack effect.
			// The pass produces a smaller redundancy map than optimal on
			// functions using these opcodes, never an unsound one.
			default:
			}
		}

		// Block-boundary bit flips: after this, LocalsDeleted holds
		// "touched locals whose deletion did not survive the block" and
		// LocalsTouched holds "locals the block never touches", the form
		// the locals-definition combinator consumes.
		deleted.FlipAll()
		deleted.AndWith(touched)
		touched.FlipAll()
	}

	return r
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
