// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytecode

// Op identifies one host bytecode instruction. The numeric values follow
// no particular external encoding; they only need to be stable within a
// single process so the opcode table below can be indexed by them.
type Op byte

// The opcode set the translator understands, grouped by family: stack
// shuffles, constant/local loads, local stores/deletes, closure/cell
// access, global/name lookup, attribute and subscript access,
// unary/binary arithmetic, comparison, iteration, calls, container
// builds, string formatting, imports, try/with/except, and control
// flow.
const (
	OpNop Op = iota
	OpExtendedArg

	OpPopTop
	OpRotTwo
	OpRotThree
	OpRotFour
	OpRotN
	OpDupTop
	OpDupTopTwo

	OpLoadConst
	OpLoadFast
	OpStoreFast
	OpDeleteFast

	OpLoadClosure
	OpLoadDeref
	OpLoadClassDeref
	OpStoreDeref
	OpDeleteDeref

	OpLoadGlobal
	OpStoreGlobal
	OpDeleteGlobal
	OpLoadName
	OpStoreName
	OpDeleteName

	OpLoadAttr
	OpLoadMethod
	OpStoreAttr
	OpDeleteAttr
	OpBinarySubscr
	OpStoreSubscr
	OpDeleteSubscr

	OpUnaryNot
	OpUnaryPositive
	OpUnaryNegative
	OpUnaryInvert

	OpBinaryAdd
	OpInplaceAdd
	OpBinarySubtract
	OpInplaceSubtract
	OpBinaryMultiply
	OpInplaceMultiply
	OpBinaryFloorDivide
	OpInplaceFloorDivide
	OpBinaryTrueDivide
	OpInplaceTrueDivide
	OpBinaryModulo
	OpInplaceModulo
	OpBinaryPower
	OpInplacePower
	OpBinaryLshift
	OpInplaceLshift
	OpBinaryRshift
	OpInplaceRshift
	OpBinaryAnd
	OpInplaceAnd
	OpBinaryOr
	OpInplaceOr
	OpBinaryXor
	OpInplaceXor
	OpCompareOp
	OpIsOp
	OpContainsOp

	OpGetIter
	OpForIter

	OpCallFunction
	OpCallFunctionKw
	OpCallFunctionEx
	OpCallMethod
	OpMakeFunction
	OpLoadBuildClass

	OpBuildTuple
	OpBuildList
	OpBuildSet
	OpBuildMap
	OpBuildConstKeyMap
	OpBuildString
	OpListAppend
	OpSetAdd
	OpMapAdd
	OpListExtend
	OpSetUpdate
	OpDictUpdate
	OpDictMerge
	OpListToTuple
	OpUnpackSequence
	OpUnpackEx

	OpFormatValue

	OpImportName
	OpImportFrom
	OpImportStar

	OpJumpForward
	OpJumpAbsolute
	OpPopJumpIfTrue
	OpPopJumpIfFalse
	OpJumpIfTrueOrPop
	OpJumpIfFalseOrPop

	OpSetupFinally
	OpSetupWith
	OpPopBlock
	OpPopExcept
	OpRaiseVarargs
	OpReraise
	OpJumpIfNotExcMatch
	OpWithExceptStart

	OpReturnValue

	// Unimplemented opcode families: generator/coroutine/async/pattern-match.
	// These never appear in a function the installer hands to the
	// translator (see jit.Apply); reaching the trap is a translation bug,
	// not a runtime condition a correct caller can trigger.
	OpGenStart
	OpYieldValue
	OpYieldFrom
	OpGetYieldFromIter
	OpGetAwaitable
	OpGetAiter
	OpGetAnext
	OpEndAsyncFor
	OpSetupAsyncWith
	OpBeforeAsyncWith
	OpGetLen
	OpMatchMapping
	OpMatchSequence
	OpMatchKeys
	OpMatchClass
	OpCopyDictWithoutKeys

	opCount
)

// Unimplemented reports whether op belongs to the generator/coroutine/
// async/pattern-match family the translator leaves untranslated; the
// installer refuses functions containing any of these.
func (op Op) Unimplemented() bool {
	switch op {
	case OpGenStart, OpYieldValue, OpYieldFrom, OpGetYieldFromIter,
		OpGetAwaitable, OpGetAiter, OpGetAnext, OpEndAsyncFor,
		OpSetupAsyncWith, OpBeforeAsyncWith, OpGetLen, OpMatchMapping,
		OpMatchSequence, OpMatchKeys, OpMatchClass, OpCopyDictWithoutKeys:
		return true
	}
	return false
}

// hasOparg reports whether op carries an immediate operand byte (before
// EXTENDED_ARG folding is taken into account).
func (op Op) hasOparg() bool {
	switch op {
	case OpNop, OpPopTop, OpDupTop, OpDupTopTwo, OpUnaryNot, OpUnaryPositive,
		OpUnaryNegative, OpUnaryInvert, OpBinaryAdd, OpInplaceAdd,
		OpBinarySubtract, OpInplaceSubtract, OpBinaryMultiply, OpInplaceMultiply,
		OpBinaryFloorDivide, OpInplaceFloorDivide, OpBinaryTrueDivide,
		OpInplaceTrueDivide, OpBinaryModulo, OpInplaceModulo, OpBinaryPower,
		OpInplacePower, OpBinaryLshift, OpInplaceLshift, OpBinaryRshift,
		OpInplaceRshift, OpBinaryAnd, OpInplaceAnd, OpBinaryOr, OpInplaceOr,
		OpBinaryXor, OpInplaceXor, OpGetIter, OpLoadBuildClass,
		OpListToTuple, OpImportStar, OpReturnValue, OpPopBlock, OpPopExcept,
		OpWithExceptStart, OpBinarySubscr, OpStoreSubscr, OpDeleteSubscr,
		OpGetYieldFromIter, OpGetAwaitable, OpGetAiter, OpGetAnext,
		OpEndAsyncFor, OpBeforeAsyncWith, OpGetLen, OpMatchMapping,
		OpMatchSequence, OpMatchKeys, OpCopyDictWithoutKeys, OpYieldValue:
		return false
	}
	return true
}
