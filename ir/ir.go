// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ir defines the abstract IR the emitter produces and the
// Backend interface a native-code compiler/linker plugs into. The
// optimizer and instruction-selector behind a concrete Backend are
// external collaborators; this package only describes the shape they
// consume and the contract they must honor.
package ir

import (
	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/frame"
	"github.com/frameeval/pyjit/object"
	"github.com/frameeval/pyjit/runtime"
)

// Op identifies one abstract IR operation.
type Op int

const (
	// OpConst materializes an immediate uint64 (a boxed-value bit
	// pattern or a raw integer, depending on context) into Dst.
	OpConst Op = iota
	// OpLoadLocal reads frame.Locals[Local] into Dst.
	OpLoadLocal
	// OpStoreLocal writes Args[0] into frame.Locals[Local].
	OpStoreLocal
	// OpNullCheck traps to the error block if Args[0] is null; a no-op
	// the emitter omits entirely when the locals-definition analysis
	// proves the slot defined.
	OpNullCheck
	// OpIncref/OpDecref/OpCondDecref are the refcount primitives the
	// emitter inlines directly rather than routing through the helper
	// table, since they dominate hot paths. OpCondDecref only decrements if Args[0]
	// is provably non-null at a site the locals analysis could not
	// resolve statically (a runtime null check guards the decrement).
	OpIncref
	OpDecref
	OpCondDecref
	// OpCallHelper invokes helpers table entry Helper with Args,
	// producing Dst (nil if the helper returns no IR value). Sentinel
	// is the raising-convention the caller should branch to the error
	// block on: SentinelNull (result handle is nil/zero) or
	// SentinelNegative (result is a negative int).
	OpCallHelper
	// OpBranch is an unconditional jump to Targets[0].
	OpBranch
	// OpCondBranch tests Args[0] and jumps to Targets[0] if true,
	// Targets[1] otherwise.
	OpCondBranch
	// OpIndirectBranch jumps through the handler re-entry trampoline:
	// the frame's stored offset selects among Targets, with offset zero
	// meaning ordinary entry at Targets[0].
	OpIndirectBranch
	// OpReturn returns Args[0] (a peek of top-of-stack, already
	// increffed by the emitter) from the compiled function.
	OpReturn
	// OpTrap unconditionally branches to the error block, raising the
	// "unimplemented opcode" exception. Reachable only for opcodes in
	// the generator/coroutine/async/pattern-match family; reaching it
	// at runtime is a translation bug.
	OpTrap
	// OpMove copies Args[0] into Dst with no refcount effect. The emitter
	// does not produce it; a deferred abstract-stack slot is materialized
	// with OpIncref plus OpStackStore instead.
	OpMove
	// OpBinaryArith records a dispatch opcode (PyOp, the
	// bytecode.Op that selects which runtime helper family to use) for
	// the backend or the CallHelper lowering to pick the right helper;
	// these are convenience wrappers that always lower to OpCallHelper
	// in the default interpreter backend, but a narrow backend may lower
	// a fixed sub-set (integer add/sub/mul/and/or) to native
	// instructions directly.
	OpBinaryArith
	// OpLoadConstObject reads the code unit's constant at index Local
	// into Dst.
	OpLoadConstObject
	// OpStackLoad reads frame value-stack slot Local into Dst; used to
	// seed a block's abstract stack up to its entry height.
	OpStackLoad
	// OpStackStore writes Args[0] into frame value-stack slot Local. A
	// null-constant argument clears the slot, which the emitter does for
	// abstract entries whose reference was never materialized so the
	// unwind drain sees no stale pointer there.
	OpStackStore
	// OpSetLastInstr writes VPC into the frame's last-instruction field,
	// emitted before every opcode whose lowering can raise.
	OpSetLastInstr
	// OpSingleton materializes a canonical singleton into Dst: Local 0 is
	// False, 1 is True, 2 is None. No reference is acquired.
	OpSingleton
	// OpPtrEq compares Args[0] and Args[1] by identity into Dst, the
	// conditional-branch fast path against the True/False singletons.
	OpPtrEq
	// OpBranchNull jumps to Targets[0] if Args[0] is null, Targets[1]
	// otherwise; the FOR_ITER exhaustion test.
	OpBranchNull
)

// Sentinel describes how a helper call signals failure.
type Sentinel int

const (
	SentinelNone Sentinel = iota
	SentinelNull
	SentinelNegative
)

// ValueKind distinguishes where a Value's bits live.
type ValueKind int

const (
	// ValueTemp is an IR-level temporary, numbered within its Module.
	ValueTemp ValueKind = iota
	// ValueConst is an immediate baked into the instruction itself.
	ValueConst
	// ValueLocal names a frame locals-array slot directly (used as an
	// operand to OpStoreLocal/OpNullCheck without a separate OpLoadLocal
	// when the value is only read once).
	ValueLocal
)

// Value is an IR operand: either a previously-defined temporary, an
// immediate, or (for a few ops) a bare local index.
type Value struct {
	Kind  ValueKind
	Temp  int
	Const uint64
	Local int
}

// Const builds an immediate Value.
func Const(bits uint64) Value { return Value{Kind: ValueConst, Const: bits} }

// Inst is one IR instruction within a Block.
type Inst struct {
	Op       Op
	Args     []Value
	Dst      *Value // set by Block.EmitValue when the op produces a result
	Helper   string
	Sentinel Sentinel
	PyOp     bytecode.Op
	Local    int
	Targets  []*Block
	VPC      bytecode.VPC
}

// Block is a straight-line sequence of Insts with at most one branch at
// its end (mirroring cfg.Block: the IR block graph has the same shape as
// the CFG the emitter walked to build it).
type Block struct {
	Name  string
	Insts []Inst
}

// Module is one function's complete translated IR: every cfg.Block
// becomes exactly one body ir.Block, in the same order, alongside the
// entry trampoline block, a designated error block every
// OpNullCheck/OpCallHelper failure branches to, and the small edge
// blocks the emitter adds for conditional branches and FOR_ITER.
type Module struct {
	Name      string
	Blocks    []*Block
	Entry     *Block
	ErrorExit *Block
	numTemps  int

	// AnchorOffsets records, for each handler Block, the integer offset
	// from Entry's address the indirect-branch trampoline should store
	// in the frame's try-block stack when a SETUP_FINALLY/SETUP_WITH
	// targeting it executes. Populated by the emitter, consumed by the
	// backend when lowering OpIndirectBranch.
	AnchorOffsets map[*Block]int64
}

// NewModule allocates an empty Module with an entry block and an error
// exit block already created.
func NewModule(name string) *Module {
	m := &Module{Name: name, AnchorOffsets: map[*Block]int64{}}
	m.Entry = m.NewBlock("entry")
	m.ErrorExit = m.NewBlock("error")
	return m
}

// NewBlock appends a fresh, empty Block to the module.
func (m *Module) NewBlock(name string) *Block {
	b := &Block{Name: name}
	m.Blocks = append(m.Blocks, b)
	return b
}

// NewTemp allocates a fresh IR temporary.
func (m *Module) NewTemp() Value {
	v := Value{Kind: ValueTemp, Temp: m.numTemps}
	m.numTemps++
	return v
}

// NumTemps reports how many temporaries the module has allocated.
func (m *Module) NumTemps() int { return m.numTemps }

// Emit appends inst to b as given and returns it unchanged. It does not
// allocate or set Dst; instructions whose result later instructions
// reference go through EmitValue.
func (b *Block) Emit(inst Inst) Inst {
	b.Insts = append(b.Insts, inst)
	return inst
}

// EmitValue is a convenience wrapper for instructions that produce a
// result: it allocates a temp on m, sets inst.Dst, appends inst to b, and
// returns the temp.
func (b *Block) EmitValue(m *Module, inst Inst) Value {
	dst := m.NewTemp()
	inst.Dst = &dst
	b.Insts = append(b.Insts, inst)
	return dst
}

// CodeUnit is the executable result of compiling a Module: a callable
// entry point plus a release hook for whatever memory backs it.
type CodeUnit interface {
	// Invoke calls the compiled function with the helpers table and the
	// host frame, the two-argument compiled-function signature. A nil
	// result means the frame's pending exception is set; err then carries
	// it for the dispatcher.
	Invoke(h *runtime.Helpers, f *frame.Frame) (object.Object, error)
	// Free releases resources (mapped pages, builder state) backing the
	// compiled code. Safe to call once.
	Free() error
}

// Backend wraps a native-code compiler/linker: it takes a finished IR
// Module and returns an executable code unit, or an error if some part
// of the module is outside what this backend can lower.
type Backend interface {
	Compile(m *Module) (CodeUnit, error)
}
