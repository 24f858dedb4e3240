// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package emit

import (
	"fmt"

	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/frame"
	"github.com/frameeval/pyjit/ir"
)

// emitOp lowers the opcode at vpc inside cfg block i. The returned done
// flag is true when the opcode terminated the block (branch, return,
// raise, trap); the caller then skips the fall-through edge.
func (e *Emitter) emitOp(i int, vpc bytecode.VPC) (bool, error) {
	instr := e.unit.At(vpc)
	arg := int(instr.Arg)
	b := e.g.Blocks[i]

	switch instr.Op {
	case bytecode.OpNop, bytecode.OpExtendedArg:

	case bytecode.OpPopTop:
		e.decrefIfOwned(e.pop())

	case bytecode.OpRotTwo:
		e.rotate(2)
	case bytecode.OpRotThree:
		e.rotate(3)
	case bytecode.OpRotFour:
		e.rotate(4)
	case bytecode.OpRotN:
		e.rotate(arg)

	case bytecode.OpDupTop:
		s := *e.peek(0)
		if s.really {
			e.cur.Emit(ir.Inst{Op: ir.OpIncref, Args: []ir.Value{s.val}})
		}
		e.push(s.val, s.really)
	case bytecode.OpDupTopTwo:
		s1, s0 := *e.peek(1), *e.peek(0)
		if s1.really {
			e.cur.Emit(ir.Inst{Op: ir.OpIncref, Args: []ir.Value{s1.val}})
		}
		e.push(s1.val, s1.really)
		if s0.really {
			e.cur.Emit(ir.Inst{Op: ir.OpIncref, Args: []ir.Value{s0.val}})
		}
		e.push(s0.val, s0.really)

	case bytecode.OpLoadConst:
		t := e.cur.EmitValue(e.mod, ir.Inst{Op: ir.OpLoadConstObject, Local: arg})
		if e.red.RedundantLoads.Get(int(vpc)) {
			e.push(t, false)
		} else {
			e.cur.Emit(ir.Inst{Op: ir.OpIncref, Args: []ir.Value{t}})
			e.push(t, true)
		}

	case bytecode.OpLoadFast:
		t := e.cur.EmitValue(e.mod, ir.Inst{Op: ir.OpLoadLocal, Local: arg})
		if !e.defined.Get(arg) {
			e.cur.Emit(ir.Inst{Op: ir.OpNullCheck, Args: []ir.Value{t}, VPC: vpc})
			e.defined.Set(arg)
		}
		if e.red.RedundantLoads.Get(int(vpc)) {
			e.push(t, false)
		} else {
			e.cur.Emit(ir.Inst{Op: ir.OpIncref, Args: []ir.Value{t}})
			e.push(t, true)
		}

	case bytecode.OpStoreFast:
		s := e.pop()
		e.takeRef(s)
		old := e.cur.EmitValue(e.mod, ir.Inst{Op: ir.OpLoadLocal, Local: arg})
		e.cur.Emit(ir.Inst{Op: ir.OpStoreLocal, Local: arg, Args: []ir.Value{s.val}})
		if e.defined.Get(arg) {
			e.cur.Emit(ir.Inst{Op: ir.OpDecref, Args: []ir.Value{old}})
		} else {
			e.cur.Emit(ir.Inst{Op: ir.OpCondDecref, Args: []ir.Value{old}})
		}
		e.defined.Set(arg)

	case bytecode.OpDeleteFast:
		old := e.cur.EmitValue(e.mod, ir.Inst{Op: ir.OpLoadLocal, Local: arg})
		if !e.defined.Get(arg) {
			e.cur.Emit(ir.Inst{Op: ir.OpNullCheck, Args: []ir.Value{old}, VPC: vpc})
		}
		e.cur.Emit(ir.Inst{Op: ir.OpStoreLocal, Local: arg, Args: []ir.Value{ir.Const(0)}})
		e.cur.Emit(ir.Inst{Op: ir.OpDecref, Args: []ir.Value{old}})
		e.defined.Clear(arg)

	case bytecode.OpLoadDeref, bytecode.OpLoadClassDeref:
		e.push(e.call("LoadDeref", ir.SentinelNull, ir.Const(uint64(arg))), true)
	case bytecode.OpStoreDeref:
		s := e.pop()
		e.callVoid("StoreDeref", ir.SentinelNone, ir.Const(uint64(arg)), s.val)
		e.decrefIfOwned(s)
	case bytecode.OpDeleteDeref:
		e.callVoid("DeleteDeref", ir.SentinelNegative, ir.Const(uint64(arg)))
	case bytecode.OpLoadClosure:
		e.push(e.call("LoadClosure", ir.SentinelNull, ir.Const(uint64(arg))), true)

	case bytecode.OpLoadGlobal:
		e.push(e.call("LoadGlobal", ir.SentinelNull, ir.Const(uint64(arg))), true)
	case bytecode.OpStoreGlobal:
		s := e.pop()
		e.takeRef(s)
		e.callVoid("StoreGlobal", ir.SentinelNone, ir.Const(uint64(arg)), s.val)
	case bytecode.OpDeleteGlobal:
		e.callVoid("DeleteGlobal", ir.SentinelNegative, ir.Const(uint64(arg)))
	case bytecode.OpLoadName:
		e.push(e.call("LoadName", ir.SentinelNull, ir.Const(uint64(arg))), true)
	case bytecode.OpStoreName:
		s := e.pop()
		e.takeRef(s)
		e.callVoid("StoreName", ir.SentinelNone, ir.Const(uint64(arg)), s.val)
	case bytecode.OpDeleteName:
		e.callVoid("DeleteName", ir.SentinelNegative, ir.Const(uint64(arg)))

	case bytecode.OpLoadAttr:
		owner := e.pop()
		t := e.call("LoadAttr", ir.SentinelNull, owner.val, ir.Const(uint64(arg)))
		e.decrefIfOwned(owner)
		e.push(t, true)
	case bytecode.OpLoadMethod:
		owner := e.pop()
		meth := e.call("LoadMethod", ir.SentinelNull, owner.val, ir.Const(uint64(arg)))
		e.push(meth, true)
		// The receiver stays on the stack as the implicit first
		// argument; its reference transfers to the self slot.
		e.takeRef(owner)
		e.push(owner.val, true)
	case bytecode.OpStoreAttr:
		owner := e.pop()
		val := e.pop()
		e.callVoid("StoreAttr", ir.SentinelNegative, owner.val, ir.Const(uint64(arg)), val.val)
		e.decrefIfOwned(owner)
		e.decrefIfOwned(val)
	case bytecode.OpDeleteAttr:
		owner := e.pop()
		e.callVoid("DeleteAttr", ir.SentinelNegative, owner.val, ir.Const(uint64(arg)))
		e.decrefIfOwned(owner)

	case bytecode.OpBinarySubscr:
		sub := e.pop()
		cont := e.pop()
		t := e.call("BinarySubscr", ir.SentinelNull, cont.val, sub.val)
		e.decrefIfOwned(cont)
		e.decrefIfOwned(sub)
		e.push(t, true)
	case bytecode.OpStoreSubscr:
		sub := e.pop()
		cont := e.pop()
		val := e.pop()
		e.callVoid("StoreSubscr", ir.SentinelNegative, cont.val, sub.val, val.val)
		e.decrefIfOwned(cont)
		e.decrefIfOwned(sub)
		e.decrefIfOwned(val)
	case bytecode.OpDeleteSubscr:
		sub := e.pop()
		cont := e.pop()
		e.callVoid("DeleteSubscr", ir.SentinelNegative, cont.val, sub.val)
		e.decrefIfOwned(cont)
		e.decrefIfOwned(sub)

	case bytecode.OpUnaryNot:
		s := e.pop()
		t := e.call("UnaryNot", ir.SentinelNone, s.val)
		e.decrefIfOwned(s)
		e.push(t, true)
	case bytecode.OpUnaryPositive, bytecode.OpUnaryNegative, bytecode.OpUnaryInvert:
		s := e.pop()
		t := e.cur.EmitValue(e.mod, ir.Inst{Op: ir.OpCallHelper, Helper: "UnaryOp", Sentinel: ir.SentinelNull, PyOp: instr.Op, Args: []ir.Value{s.val}})
		e.decrefIfOwned(s)
		e.push(t, true)

	case bytecode.OpBinaryAdd, bytecode.OpInplaceAdd, bytecode.OpBinarySubtract,
		bytecode.OpInplaceSubtract, bytecode.OpBinaryMultiply, bytecode.OpInplaceMultiply,
		bytecode.OpBinaryFloorDivide, bytecode.OpInplaceFloorDivide, bytecode.OpBinaryTrueDivide,
		bytecode.OpInplaceTrueDivide, bytecode.OpBinaryModulo, bytecode.OpInplaceModulo,
		bytecode.OpBinaryPower, bytecode.OpInplacePower, bytecode.OpBinaryLshift,
		bytecode.OpInplaceLshift, bytecode.OpBinaryRshift, bytecode.OpInplaceRshift,
		bytecode.OpBinaryAnd, bytecode.OpInplaceAnd, bytecode.OpBinaryOr, bytecode.OpInplaceOr,
		bytecode.OpBinaryXor, bytecode.OpInplaceXor:
		w := e.pop()
		v := e.pop()
		t := e.cur.EmitValue(e.mod, ir.Inst{Op: ir.OpBinaryArith, Helper: "BinaryOp", Sentinel: ir.SentinelNull, PyOp: instr.Op, Args: []ir.Value{v.val, w.val}})
		e.decrefIfOwned(v)
		e.decrefIfOwned(w)
		e.push(t, true)

	case bytecode.OpCompareOp:
		w := e.pop()
		v := e.pop()
		t := e.call("Compare", ir.SentinelNull, v.val, w.val, ir.Const(uint64(arg)))
		e.decrefIfOwned(v)
		e.decrefIfOwned(w)
		e.push(t, true)
	case bytecode.OpIsOp:
		w := e.pop()
		v := e.pop()
		t := e.call("Is", ir.SentinelNone, v.val, w.val, ir.Const(uint64(arg)))
		e.decrefIfOwned(v)
		e.decrefIfOwned(w)
		e.push(t, true)
	case bytecode.OpContainsOp:
		w := e.pop()
		v := e.pop()
		t := e.call("In", ir.SentinelNull, v.val, w.val, ir.Const(uint64(arg)))
		e.decrefIfOwned(v)
		e.decrefIfOwned(w)
		e.push(t, true)

	case bytecode.OpGetIter:
		s := e.pop()
		t := e.call("GetIter", ir.SentinelNull, s.val)
		e.decrefIfOwned(s)
		e.push(t, true)

	case bytecode.OpForIter:
		return true, e.emitForIter(i)

	case bytecode.OpCallFunction:
		args := e.popN(arg)
		callee := e.pop()
		e.noteHeight(vpc)
		e.takeRef(callee)
		callArgs := []ir.Value{callee.val}
		for _, a := range args {
			e.takeRef(a)
			callArgs = append(callArgs, a.val)
		}
		t := e.call("CallFunction", ir.SentinelNull, callArgs...)
		e.push(t, true)
	case bytecode.OpCallFunctionKw:
		kwnames := e.pop()
		args := e.popN(arg)
		callee := e.pop()
		e.noteHeight(vpc)
		e.takeRef(callee)
		callArgs := []ir.Value{callee.val}
		for _, a := range args {
			e.takeRef(a)
			callArgs = append(callArgs, a.val)
		}
		callArgs = append(callArgs, kwnames.val)
		t := e.call("CallFunctionKw", ir.SentinelNull, callArgs...)
		e.decrefIfOwned(kwnames)
		e.push(t, true)
	case bytecode.OpCallFunctionEx:
		var kwargs entry
		hasKw := arg&1 != 0
		if hasKw {
			kwargs = e.pop()
		}
		args := e.pop()
		callee := e.pop()
		e.noteHeight(vpc)
		e.takeRef(callee)
		e.takeRef(args)
		kwVal := ir.Const(0)
		if hasKw {
			e.takeRef(kwargs)
			kwVal = kwargs.val
		}
		t := e.call("CallFunctionEx", ir.SentinelNull, callee.val, args.val, kwVal)
		e.push(t, true)
	case bytecode.OpCallMethod:
		args := e.popN(arg)
		self := e.pop()
		meth := e.pop()
		e.noteHeight(vpc)
		e.takeRef(meth)
		e.takeRef(self)
		callArgs := []ir.Value{meth.val, self.val}
		for _, a := range args {
			e.takeRef(a)
			callArgs = append(callArgs, a.val)
		}
		t := e.call("CallMethod", ir.SentinelNull, callArgs...)
		e.push(t, true)

	case bytecode.OpMakeFunction:
		qualname := e.pop()
		code := e.pop()
		defaultsVal, closureVal := ir.Const(0), ir.Const(0)
		var extras []entry
		if arg&8 != 0 {
			c := e.pop()
			closureVal = c.val
			extras = append(extras, c)
		}
		if arg&4 != 0 {
			extras = append(extras, e.pop())
		}
		if arg&2 != 0 {
			extras = append(extras, e.pop())
		}
		if arg&1 != 0 {
			d := e.pop()
			defaultsVal = d.val
			extras = append(extras, d)
		}
		t := e.call("MakeFunction", ir.SentinelNull, code.val, qualname.val, defaultsVal, closureVal)
		e.decrefIfOwned(code)
		e.decrefIfOwned(qualname)
		for _, x := range extras {
			e.decrefIfOwned(x)
		}
		e.push(t, true)
	case bytecode.OpLoadBuildClass:
		e.push(e.call("LoadBuildClass", ir.SentinelNull), true)

	case bytecode.OpBuildTuple, bytecode.OpBuildList, bytecode.OpBuildSet, bytecode.OpBuildString:
		helper := map[bytecode.Op]string{
			bytecode.OpBuildTuple:  "BuildTuple",
			bytecode.OpBuildList:   "BuildList",
			bytecode.OpBuildSet:    "BuildSet",
			bytecode.OpBuildString: "BuildString",
		}[instr.Op]
		items := e.popN(arg)
		vals := make([]ir.Value, len(items))
		for j, it := range items {
			vals[j] = it.val
		}
		t := e.call(helper, ir.SentinelNull, vals...)
		for _, it := range items {
			e.decrefIfOwned(it)
		}
		e.push(t, true)
	case bytecode.OpBuildMap:
		items := e.popN(2 * arg)
		vals := make([]ir.Value, len(items))
		for j, it := range items {
			vals[j] = it.val
		}
		t := e.call("BuildMap", ir.SentinelNull, vals...)
		for _, it := range items {
			e.decrefIfOwned(it)
		}
		e.push(t, true)
	case bytecode.OpBuildConstKeyMap:
		keys := e.pop()
		values := e.popN(arg)
		vals := make([]ir.Value, 0, len(values)+1)
		for _, it := range values {
			vals = append(vals, it.val)
		}
		vals = append(vals, keys.val)
		t := e.call("BuildConstKeyMap", ir.SentinelNull, vals...)
		for _, it := range values {
			e.decrefIfOwned(it)
		}
		e.decrefIfOwned(keys)
		e.push(t, true)

	case bytecode.OpListAppend, bytecode.OpSetAdd:
		helper := "ListAppend"
		if instr.Op == bytecode.OpSetAdd {
			helper = "SetAdd"
		}
		v := e.pop()
		cont := e.peek(arg - 1)
		e.callVoid(helper, ir.SentinelNegative, cont.val, v.val)
		e.decrefIfOwned(v)
	case bytecode.OpMapAdd:
		value := e.pop()
		key := e.pop()
		cont := e.peek(arg - 1)
		e.callVoid("MapAdd", ir.SentinelNegative, cont.val, key.val, value.val)
		e.decrefIfOwned(key)
		e.decrefIfOwned(value)
	case bytecode.OpListExtend, bytecode.OpSetUpdate, bytecode.OpDictUpdate, bytecode.OpDictMerge:
		helper := map[bytecode.Op]string{
			bytecode.OpListExtend: "ListExtend",
			bytecode.OpSetUpdate:  "SetUpdate",
			bytecode.OpDictUpdate: "DictUpdate",
			bytecode.OpDictMerge:  "DictMerge",
		}[instr.Op]
		src := e.pop()
		dst := e.peek(arg - 1)
		e.callVoid(helper, ir.SentinelNegative, dst.val, src.val)
		e.decrefIfOwned(src)
	case bytecode.OpListToTuple:
		s := e.pop()
		t := e.call("ListToTuple", ir.SentinelNull, s.val)
		e.decrefIfOwned(s)
		e.push(t, true)

	case bytecode.OpUnpackSequence:
		seq := e.pop()
		base := len(e.stack)
		e.callVoid("UnpackSequence", ir.SentinelNegative, seq.val, ir.Const(uint64(base)), ir.Const(uint64(arg)))
		e.decrefIfOwned(seq)
		for j := 0; j < arg; j++ {
			e.pushLoaded(e.cur.EmitValue(e.mod, ir.Inst{Op: ir.OpStackLoad, Local: base + j}))
		}
	case bytecode.OpUnpackEx:
		seq := e.pop()
		base := len(e.stack)
		before := arg & 0xff
		after := arg >> 8
		e.callVoid("UnpackEx", ir.SentinelNegative, seq.val, ir.Const(uint64(base)), ir.Const(uint64(before)), ir.Const(uint64(after)))
		e.decrefIfOwned(seq)
		for j := 0; j < before+1+after; j++ {
			e.pushLoaded(e.cur.EmitValue(e.mod, ir.Inst{Op: ir.OpStackLoad, Local: base + j}))
		}

	case bytecode.OpFormatValue:
		var spec entry
		hasSpec := arg&0x4 != 0
		if hasSpec {
			spec = e.pop()
		}
		v := e.pop()
		specVal := ir.Const(0)
		if hasSpec {
			specVal = spec.val
		}
		t := e.call("FormatValue", ir.SentinelNull, v.val, specVal)
		e.decrefIfOwned(v)
		if hasSpec {
			e.decrefIfOwned(spec)
		}
		e.push(t, true)

	case bytecode.OpImportName:
		fromlist := e.pop()
		level := e.pop()
		t := e.call("ImportName", ir.SentinelNull, ir.Const(uint64(arg)))
		e.decrefIfOwned(fromlist)
		e.decrefIfOwned(level)
		e.push(t, true)
	case bytecode.OpImportFrom:
		m := e.peek(0)
		e.push(e.call("ImportFrom", ir.SentinelNull, m.val, ir.Const(uint64(arg))), true)
	case bytecode.OpImportStar:
		m := e.pop()
		e.callVoid("ImportStar", ir.SentinelNegative, m.val)
		e.decrefIfOwned(m)

	case bytecode.OpJumpForward, bytecode.OpJumpAbsolute:
		e.flush()
		if err := e.edge(b.Branch, len(e.stack)); err != nil {
			return true, err
		}
		e.branch(e.bodies[b.Branch])
		return true, nil

	case bytecode.OpPopJumpIfTrue, bytecode.OpPopJumpIfFalse:
		return true, e.emitPopJump(i, instr.Op == bytecode.OpPopJumpIfTrue)

	case bytecode.OpJumpIfTrueOrPop, bytecode.OpJumpIfFalseOrPop:
		return true, e.emitJumpOrPop(i, instr.Op == bytecode.OpJumpIfTrueOrPop)

	case bytecode.OpSetupFinally:
		e.flush()
		off := e.handlerTarget(b.Branch)
		if err := e.edge(b.Branch, len(e.stack)+6); err != nil {
			return true, err
		}
		e.callVoid("PushTryBlock", ir.SentinelNone,
			ir.Const(uint64(instr.Arg)), ir.Const(uint64(off)),
			ir.Const(uint64(len(e.stack))), ir.Const(uint64(frame.TryFinally)))

	case bytecode.OpSetupWith:
		mgr := e.pop()
		e.flush()
		exitFn := e.call("WithExit", ir.SentinelNull, mgr.val)
		e.push(exitFn, true)
		off := e.handlerTarget(b.Branch)
		if err := e.edge(b.Branch, len(e.stack)+6); err != nil {
			return true, err
		}
		e.callVoid("PushTryBlock", ir.SentinelNone,
			ir.Const(uint64(instr.Arg)), ir.Const(uint64(off)),
			ir.Const(uint64(len(e.stack))), ir.Const(uint64(frame.TryWith)))
		enter := e.call("WithEnter", ir.SentinelNull, mgr.val)
		e.decrefIfOwned(mgr)
		e.push(enter, true)

	case bytecode.OpPopBlock:
		e.callVoid("PopBlock", ir.SentinelNegative)

	case bytecode.OpPopExcept:
		typ := e.pop()
		val := e.pop()
		tb := e.pop()
		e.noteHeight(vpc)
		e.takeRef(typ)
		e.takeRef(val)
		e.takeRef(tb)
		e.callVoid("PopExcept", ir.SentinelNegative, typ.val, val.val, tb.val)

	case bytecode.OpJumpIfNotExcMatch:
		cand := e.pop()
		excT := e.pop()
		t := e.call("ExcMatch", ir.SentinelNone, excT.val, cand.val)
		e.decrefIfOwned(cand)
		e.decrefIfOwned(excT)
		e.flush()
		if err := e.edge(b.Branch, len(e.stack)); err != nil {
			return true, err
		}
		if err := e.edge(i+1, len(e.stack)); err != nil {
			return true, err
		}
		e.cur.Emit(ir.Inst{Op: ir.OpCondBranch, Args: []ir.Value{t},
			Targets: []*ir.Block{e.bodies[i+1], e.bodies[b.Branch]}})
		return true, nil

	case bytecode.OpWithExceptStart:
		exitFn := e.peek(6)
		typ := e.peek(0)
		val := e.peek(1)
		tb := e.peek(2)
		t := e.call("WithExceptStart", ir.SentinelNull, exitFn.val, typ.val, val.val, tb.val)
		e.push(t, true)

	case bytecode.OpRaiseVarargs:
		args := e.popN(arg)
		e.noteHeight(vpc)
		vals := make([]ir.Value, len(args))
		for j, a := range args {
			e.takeRef(a)
			vals[j] = a.val
		}
		e.callVoid("RaiseVarargs", ir.SentinelNegative, vals...)
		e.branch(e.mod.ErrorExit)
		return true, nil

	case bytecode.OpReraise:
		typ := e.pop()
		val := e.pop()
		tb := e.pop()
		e.noteHeight(vpc)
		e.takeRef(typ)
		e.takeRef(val)
		e.takeRef(tb)
		e.callVoid("Reraise", ir.SentinelNegative, typ.val, val.val, tb.val)
		e.branch(e.mod.ErrorExit)
		return true, nil

	case bytecode.OpReturnValue:
		s := e.peek(0)
		e.cur.Emit(ir.Inst{Op: ir.OpIncref, Args: []ir.Value{s.val}})
		e.cur.Emit(ir.Inst{Op: ir.OpReturn, Args: []ir.Value{s.val}})
		return true, nil

	default:
		if !instr.Op.Unimplemented() {
			return true, fmt.Errorf("emit: %s: unknown opcode %d at vpc %d", e.unit.Name, instr.Op, vpc)
		}
		e.cur.Emit(ir.Inst{Op: ir.OpTrap, VPC: vpc})
		e.branch(e.mod.ErrorExit)
		return true, nil
	}
	return false, nil
}

// rotate moves the top slot n positions down, shifting the n-1 slots
// beneath it up by one, then rewrites the affected frame slots; this is the
// short unrolled lowering; n is bounded by the code unit's stack size.
func (e *Emitter) rotate(n int) {
	l := len(e.stack)
	top := e.stack[l-1]
	copy(e.stack[l-n+1:], e.stack[l-n:l-1])
	e.stack[l-n] = top
	for k := l - n; k < l; k++ {
		s := e.stack[k]
		if s.really {
			e.cur.Emit(ir.Inst{Op: ir.OpStackStore, Local: k, Args: []ir.Value{s.val}})
		} else {
			e.cur.Emit(ir.Inst{Op: ir.OpStackStore, Local: k, Args: []ir.Value{ir.Const(0)}})
		}
	}
}

// emitForIter lowers FOR_ITER, the last opcode of block i: step the
// iterator, branch to the loop-exit block on exhaustion (releasing the
// iterator), fall through with the produced value pushed.
func (e *Emitter) emitForIter(i int) error {
	b := e.g.Blocks[i]
	e.own(len(e.stack) - 1)
	e.flush()
	it := e.peek(0)
	next := e.call("ForIterNext", ir.SentinelNone, it.val)

	exitEdge := e.mod.NewBlock(fmt.Sprintf("b%d.exit", b.Start))
	contEdge := e.mod.NewBlock(fmt.Sprintf("b%d.next", b.Start))
	e.cur.Emit(ir.Inst{Op: ir.OpBranchNull, Args: []ir.Value{next},
		Targets: []*ir.Block{exitEdge, contEdge}})

	h := len(e.stack)
	if err := e.edge(b.Branch, h-1); err != nil {
		return err
	}
	exitEdge.Emit(ir.Inst{Op: ir.OpDecref, Args: []ir.Value{it.val}})
	exitEdge.Emit(ir.Inst{Op: ir.OpBranch, Targets: []*ir.Block{e.bodies[b.Branch]}})

	if err := e.edge(i+1, h+1); err != nil {
		return err
	}
	contEdge.Emit(ir.Inst{Op: ir.OpStackStore, Local: h, Args: []ir.Value{next}})
	contEdge.Emit(ir.Inst{Op: ir.OpBranch, Targets: []*ir.Block{e.bodies[i+1]}})
	return nil
}

// emitPopJump lowers POP_JUMP_IF_TRUE/FALSE: identity compare against
// the canonical singletons first, the truthiness helper only when
// neither fast path matched.
func (e *Emitter) emitPopJump(i int, jumpIfTrue bool) error {
	b := e.g.Blocks[i]
	s := e.pop()
	e.flush()
	h := len(e.stack)
	if err := e.edge(b.Branch, h); err != nil {
		return err
	}
	if err := e.edge(i+1, h); err != nil {
		return err
	}

	taken := e.newDecrefEdge(b.Start, "taken", s, e.bodies[b.Branch])
	fall := e.newDecrefEdge(b.Start, "fall", s, e.bodies[i+1])
	onTrue, onFalse := taken, fall
	if !jumpIfTrue {
		onTrue, onFalse = fall, taken
	}
	e.emitTruthDispatch(b.Start, s.val, onTrue, onFalse)
	return nil
}

// emitJumpOrPop lowers JUMP_IF_TRUE/FALSE_OR_POP: the jump edge keeps
// the tested value on the stack, the fall-through edge pops it.
func (e *Emitter) emitJumpOrPop(i int, jumpIfTrue bool) error {
	b := e.g.Blocks[i]
	e.flush()
	s := *e.peek(0)
	h := len(e.stack)
	if err := e.edge(b.Branch, h); err != nil {
		return err
	}
	if err := e.edge(i+1, h-1); err != nil {
		return err
	}

	keep := e.mod.NewBlock(fmt.Sprintf("b%d.keep", b.Start))
	keep.Emit(ir.Inst{Op: ir.OpBranch, Targets: []*ir.Block{e.bodies[b.Branch]}})
	popEdge := e.newDecrefEdge(b.Start, "pop", s, e.bodies[i+1])

	onTrue, onFalse := keep, popEdge
	if !jumpIfTrue {
		onTrue, onFalse = popEdge, keep
	}
	e.emitTruthDispatch(b.Start, s.val, onTrue, onFalse)
	return nil
}

// newDecrefEdge builds a one-instruction edge block releasing s (if its
// reference was materialized) before branching to dest.
func (e *Emitter) newDecrefEdge(start bytecode.VPC, tag string, s entry, dest *ir.Block) *ir.Block {
	blk := e.mod.NewBlock(fmt.Sprintf("b%d.%s", start, tag))
	if s.really {
		blk.Emit(ir.Inst{Op: ir.OpDecref, Args: []ir.Value{s.val}})
	}
	blk.Emit(ir.Inst{Op: ir.OpBranch, Targets: []*ir.Block{dest}})
	return blk
}

// emitTruthDispatch emits the three-way truth test on v ending the
// current block: pointer-compare against True, then False, then the
// Truthy helper.
func (e *Emitter) emitTruthDispatch(start bytecode.VPC, v ir.Value, onTrue, onFalse *ir.Block) {
	notTrue := e.mod.NewBlock(fmt.Sprintf("b%d.nt", start))
	slow := e.mod.NewBlock(fmt.Sprintf("b%d.slow", start))

	tTrue := e.cur.EmitValue(e.mod, ir.Inst{Op: ir.OpSingleton, Local: 1})
	isTrue := e.cur.EmitValue(e.mod, ir.Inst{Op: ir.OpPtrEq, Args: []ir.Value{v, tTrue}})
	e.cur.Emit(ir.Inst{Op: ir.OpCondBranch, Args: []ir.Value{isTrue}, Targets: []*ir.Block{onTrue, notTrue}})

	tFalse := notTrue.EmitValue(e.mod, ir.Inst{Op: ir.OpSingleton, Local: 0})
	isFalse := notTrue.EmitValue(e.mod, ir.Inst{Op: ir.OpPtrEq, Args: []ir.Value{v, tFalse}})
	notTrue.Emit(ir.Inst{Op: ir.OpCondBranch, Args: []ir.Value{isFalse}, Targets: []*ir.Block{onFalse, slow}})

	truthy := slow.EmitValue(e.mod, ir.Inst{Op: ir.OpCallHelper, Helper: "Truthy", Sentinel: ir.SentinelNone, Args: []ir.Value{v}})
	slow.Emit(ir.Inst{Op: ir.OpCondBranch, Args: []ir.Value{truthy}, Targets: []*ir.Block{onTrue, onFalse}})
}
