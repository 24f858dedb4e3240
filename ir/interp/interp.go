// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package interp is the portable backend for the ir package: it walks a
// module's blocks directly instead of lowering them to machine code, so
// every architecture gets a working compiled-function implementation and
// the native backends only need to cover the subsets they can improve.
// It is also where the emitter/runtime calling convention is pinned
// down: the helper-name switch below is the table both sides agree on
// at build time.
package interp

import (
	"fmt"

	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/frame"
	"github.com/frameeval/pyjit/ir"
	"github.com/frameeval/pyjit/object"
	"github.com/frameeval/pyjit/runtime"
)

// Backend implements ir.Backend by interpretation.
type Backend struct{}

// Compile validates the module shape and wraps it as a callable unit.
func (Backend) Compile(m *ir.Module) (ir.CodeUnit, error) {
	if m.Entry == nil || m.ErrorExit == nil {
		return nil, fmt.Errorf("interp: module %q has no entry or error block", m.Name)
	}
	for _, b := range m.Blocks {
		if len(b.Insts) == 0 {
			return nil, fmt.Errorf("interp: module %q: block %q is empty", m.Name, b.Name)
		}
	}
	return &codeUnit{m: m}, nil
}

type codeUnit struct {
	m *ir.Module
}

// Free implements ir.CodeUnit; nothing to release for an interpreted
// module.
func (c *codeUnit) Free() error { return nil }

// Invoke executes the module against f with helper table h.
func (c *codeUnit) Invoke(h *runtime.Helpers, f *frame.Frame) (object.Object, error) {
	x := &exec{m: c.m, h: h, f: f, temps: make([]interface{}, c.m.NumTemps())}
	return x.run()
}

type exec struct {
	m     *ir.Module
	h     *runtime.Helpers
	f     *frame.Frame
	temps []interface{}
}

func (x *exec) run() (object.Object, error) {
	blk := x.m.Entry
	for {
		next, ret, done, err := x.runBlock(blk)
		if err != nil {
			return nil, err
		}
		if done {
			return ret, x.pendingOnNil(ret)
		}
		blk = next
	}
}

// pendingOnNil turns a null return into the frame's pending exception.
func (x *exec) pendingOnNil(ret object.Object) error {
	if ret != nil {
		return nil
	}
	exc := x.f.Exc
	x.f.Exc = nil
	if exc == nil {
		exc = object.NewException("SystemError", "compiled function returned null with no pending exception")
	}
	return exc
}

// runBlock executes one block; exactly one of next, (ret, done) or err
// is meaningful.
func (x *exec) runBlock(blk *ir.Block) (next *ir.Block, ret object.Object, done bool, err error) {
	for _, inst := range blk.Insts {
		switch inst.Op {
		case ir.OpConst:
			x.set(inst, inst.Args[0].Const)
		case ir.OpMove:
			x.set(inst, x.raw(inst.Args[0]))

		case ir.OpLoadConstObject:
			cv := x.f.Unit.Consts[inst.Local]
			o, ok := cv.(object.Object)
			if !ok {
				return nil, nil, false, fmt.Errorf("interp: %s: constant %d is not an object", x.m.Name, inst.Local)
			}
			x.set(inst, o)
		case ir.OpLoadLocal:
			x.set(inst, x.f.Locals[inst.Local])
		case ir.OpStoreLocal:
			x.f.Locals[inst.Local] = x.obj(inst.Args[0])
		case ir.OpStackLoad:
			x.set(inst, x.f.Values[inst.Local])
		case ir.OpStackStore:
			x.f.Values[inst.Local] = x.obj(inst.Args[0])
		case ir.OpSetLastInstr:
			x.f.LastInstr = inst.VPC

		case ir.OpNullCheck:
			if x.obj(inst.Args[0]) == nil {
				x.f.Exc = runtime.AsException(x.h.RaiseException(x.f))
				return x.m.ErrorExit, nil, false, nil
			}
		case ir.OpIncref:
			runtime.Incref(x.obj(inst.Args[0]))
		case ir.OpDecref, ir.OpCondDecref:
			runtime.Decref(x.obj(inst.Args[0]))

		case ir.OpSingleton:
			switch inst.Local {
			case 0:
				x.set(inst, object.Object(object.FalseValue()))
			case 1:
				x.set(inst, object.Object(object.TrueValue()))
			default:
				x.set(inst, object.NoneValue())
			}
		case ir.OpPtrEq:
			x.set(inst, x.obj(inst.Args[0]) == x.obj(inst.Args[1]))

		case ir.OpCallHelper, ir.OpBinaryArith:
			if herr := x.callHelper(inst); herr != nil {
				x.f.Exc = runtime.AsException(herr)
				return x.m.ErrorExit, nil, false, nil
			}

		case ir.OpBranch:
			return inst.Targets[0], nil, false, nil
		case ir.OpCondBranch:
			cond, ok := x.raw(inst.Args[0]).(bool)
			if !ok {
				return nil, nil, false, fmt.Errorf("interp: %s: conditional on a non-boolean temp", x.m.Name)
			}
			if cond {
				return inst.Targets[0], nil, false, nil
			}
			return inst.Targets[1], nil, false, nil
		case ir.OpBranchNull:
			if x.obj(inst.Args[0]) == nil {
				return inst.Targets[0], nil, false, nil
			}
			return inst.Targets[1], nil, false, nil
		case ir.OpIndirectBranch:
			off := x.f.Resume
			x.f.Resume = 0
			if off == 0 {
				return inst.Targets[0], nil, false, nil
			}
			for _, t := range inst.Targets {
				if x.m.AnchorOffsets[t] == off {
					return t, nil, false, nil
				}
			}
			return nil, nil, false, fmt.Errorf("interp: %s: no trampoline target at offset %d", x.m.Name, off)

		case ir.OpReturn:
			if len(inst.Args) == 1 {
				return nil, x.obj(inst.Args[0]), true, nil
			}
			return nil, nil, true, nil
		case ir.OpTrap:
			x.f.Exc = runtime.AsException(x.h.Unimplemented(x.f))
			return x.m.ErrorExit, nil, false, nil

		default:
			return nil, nil, false, fmt.Errorf("interp: %s: unknown ir op %d", x.m.Name, inst.Op)
		}
	}
	return nil, nil, false, fmt.Errorf("interp: %s: block %q has no terminator", x.m.Name, blk.Name)
}

func (x *exec) set(inst ir.Inst, v interface{}) {
	if inst.Dst != nil {
		x.temps[inst.Dst.Temp] = v
	}
}

// raw resolves an operand without interpretation.
func (x *exec) raw(v ir.Value) interface{} {
	switch v.Kind {
	case ir.ValueTemp:
		return x.temps[v.Temp]
	case ir.ValueConst:
		return v.Const
	}
	return nil
}

// obj resolves an operand as an object handle; the zero immediate is
// the null handle.
func (x *exec) obj(v ir.Value) object.Object {
	switch r := x.raw(v).(type) {
	case nil:
		return nil
	case object.Object:
		return r
	case uint64:
		if r == 0 {
			return nil
		}
	}
	panic(fmt.Sprintf("interp: operand is not an object handle (temp %d)", v.Temp))
}

func (x *exec) num(v ir.Value) int {
	u, ok := x.raw(v).(uint64)
	if !ok {
		panic("interp: operand is not an immediate")
	}
	return int(u)
}

func (x *exec) name(v ir.Value) string {
	return x.f.Unit.Names[x.num(v)]
}

func (x *exec) objs(vs []ir.Value) []object.Object {
	out := make([]object.Object, len(vs))
	for i, v := range vs {
		out[i] = x.obj(v)
	}
	return out
}

// callHelper is the fixed emitter/runtime agreement: for each helper
// name, how the instruction's operands map onto the helper's prototype
// and what the result slot receives.
func (x *exec) callHelper(inst ir.Inst) error {
	h, f, a := x.h, x.f, inst.Args
	switch inst.Helper {
	case "BinaryOp":
		return x.produce(inst)(h.BinaryOp(inst.PyOp, x.obj(a[0]), x.obj(a[1])))
	case "UnaryOp":
		return x.produce(inst)(h.UnaryOp(inst.PyOp, x.obj(a[0])))
	case "UnaryNot":
		x.set(inst, h.UnaryNot(x.obj(a[0])))
	case "Compare":
		return x.produce(inst)(h.Compare(x.obj(a[0]), x.obj(a[1]), x.num(a[2])))
	case "Is":
		x.set(inst, h.Is(x.obj(a[0]), x.obj(a[1]), x.num(a[2]) != 0))
	case "In":
		return x.produce(inst)(h.In(x.obj(a[0]), x.obj(a[1]), x.num(a[2]) != 0))
	case "Truthy":
		x.set(inst, h.Truthy(x.obj(a[0])))

	case "LoadGlobal":
		return x.produce(inst)(h.LoadGlobal(f, x.name(a[0])))
	case "StoreGlobal":
		h.StoreGlobal(f, x.name(a[0]), x.obj(a[1]))
	case "DeleteGlobal":
		return h.DeleteGlobal(f, x.name(a[0]))
	case "LoadName":
		return x.produce(inst)(h.LoadName(f, x.name(a[0])))
	case "StoreName":
		h.StoreName(f, x.name(a[0]), x.obj(a[1]))
	case "DeleteName":
		return h.DeleteName(f, x.name(a[0]))

	case "LoadAttr":
		return x.produce(inst)(h.LoadAttr(x.obj(a[0]), x.name(a[1])))
	case "LoadMethod":
		return x.produce(inst)(h.LoadMethod(x.obj(a[0]), x.name(a[1])))
	case "StoreAttr":
		return h.StoreAttr(x.obj(a[0]), x.name(a[1]), x.obj(a[2]))
	case "DeleteAttr":
		return h.DeleteAttr(x.obj(a[0]), x.name(a[1]))
	case "BinarySubscr":
		return x.produce(inst)(h.BinarySubscr(x.obj(a[0]), x.obj(a[1])))
	case "StoreSubscr":
		return h.StoreSubscr(x.obj(a[0]), x.obj(a[1]), x.obj(a[2]))
	case "DeleteSubscr":
		return h.DeleteSubscr(x.obj(a[0]), x.obj(a[1]))

	case "LoadDeref":
		return x.produce(inst)(h.LoadDeref(f, x.num(a[0])))
	case "StoreDeref":
		h.StoreDeref(f, x.num(a[0]), x.obj(a[1]))
	case "DeleteDeref":
		return h.DeleteDeref(f, x.num(a[0]))
	case "LoadClosure":
		return x.produce(inst)(h.LoadClosure(f, x.num(a[0])))

	case "GetIter":
		return x.produce(inst)(h.GetIter(x.obj(a[0])))
	case "ForIterNext":
		v, err := h.ForIterNext(x.obj(a[0]))
		if err != nil {
			return err
		}
		x.set(inst, v)

	case "CallFunction":
		return x.produce(inst)(h.CallFunction(x.obj(a[0]), x.objs(a[1:])))
	case "CallFunctionKw":
		kwt, ok := x.obj(a[len(a)-1]).(*object.Tuple)
		if !ok {
			return object.NewException("SystemError", "CALL_FUNCTION_KW names must be a tuple")
		}
		kwnames := make([]string, len(kwt.Items))
		for i, kv := range kwt.Items {
			s, ok := kv.(*object.Str)
			if !ok {
				return object.NewException("SystemError", "CALL_FUNCTION_KW names must be strings")
			}
			kwnames[i] = s.Value
		}
		return x.produce(inst)(h.CallFunctionKw(x.obj(a[0]), x.objs(a[1:len(a)-1]), kwnames))
	case "CallFunctionEx":
		return x.produce(inst)(h.CallFunctionEx(x.obj(a[0]), x.obj(a[1]), x.obj(a[2])))
	case "CallMethod":
		return x.produce(inst)(h.CallMethod(x.obj(a[0]), x.obj(a[1]), x.objs(a[2:])))
	case "MakeFunction":
		return x.produce(inst)(h.MakeFunction(f, x.obj(a[0]), x.obj(a[1]), x.obj(a[2]), x.obj(a[3])))
	case "LoadBuildClass":
		return x.produce(inst)(h.LoadBuildClass(f))

	case "BuildTuple":
		x.set(inst, h.BuildTuple(x.objs(a)))
	case "BuildList":
		x.set(inst, h.BuildList(x.objs(a)))
	case "BuildSet":
		return x.produce(inst)(h.BuildSet(x.objs(a)))
	case "BuildMap":
		return x.produce(inst)(h.BuildMap(x.objs(a)))
	case "BuildConstKeyMap":
		return x.produce(inst)(h.BuildConstKeyMap(x.objs(a[:len(a)-1]), x.obj(a[len(a)-1])))
	case "BuildString":
		return x.produce(inst)(h.BuildString(x.objs(a)))
	case "ListAppend":
		return h.ListAppend(x.obj(a[0]), x.obj(a[1]))
	case "SetAdd":
		return h.SetAdd(x.obj(a[0]), x.obj(a[1]))
	case "MapAdd":
		return h.MapAdd(x.obj(a[0]), x.obj(a[1]), x.obj(a[2]))
	case "ListExtend":
		return h.ListExtend(x.obj(a[0]), x.obj(a[1]))
	case "SetUpdate":
		return h.SetUpdate(x.obj(a[0]), x.obj(a[1]))
	case "DictUpdate":
		return h.DictUpdate(x.obj(a[0]), x.obj(a[1]))
	case "DictMerge":
		return h.DictMerge(x.obj(a[0]), x.obj(a[1]))
	case "ListToTuple":
		return x.produce(inst)(h.ListToTuple(x.obj(a[0])))
	case "UnpackSequence":
		return h.UnpackSequence(f, x.obj(a[0]), x.num(a[1]), x.num(a[2]))
	case "UnpackEx":
		return h.UnpackEx(f, x.obj(a[0]), x.num(a[1]), x.num(a[2]), x.num(a[3]))
	case "FormatValue":
		return x.produce(inst)(h.FormatValue(x.obj(a[0]), x.obj(a[1])))

	case "ImportName":
		return x.produce(inst)(h.ImportName(x.name(a[0])))
	case "ImportFrom":
		return x.produce(inst)(h.ImportFrom(x.obj(a[0]), x.name(a[1])))
	case "ImportStar":
		return h.ImportStar(f, x.obj(a[0]))

	case "RaiseVarargs":
		return h.RaiseVarargs(f, x.objs(a))
	case "Reraise":
		return h.Reraise(f, x.obj(a[0]), x.obj(a[1]), x.obj(a[2]))
	case "PopExcept":
		return h.PopExcept(f, x.obj(a[0]), x.obj(a[1]), x.obj(a[2]))
	case "ExcMatch":
		ok, err := h.ExcMatch(x.obj(a[0]), x.obj(a[1]))
		if err != nil {
			return err
		}
		x.set(inst, ok)
	case "PushTryBlock":
		h.PushTryBlock(f, bytecode.VPC(x.num(a[0])), int64(x.num(a[1])), x.num(a[2]), frame.TryKind(x.num(a[3])))
	case "PopBlock":
		return h.PopBlock(f)
	case "WithExit":
		return x.produce(inst)(h.WithExit(x.obj(a[0])))
	case "WithEnter":
		return x.produce(inst)(h.WithEnter(x.obj(a[0])))
	case "WithExceptStart":
		return x.produce(inst)(h.WithExceptStart(x.obj(a[0]), x.obj(a[1]), x.obj(a[2]), x.obj(a[3])))
	case "Unwind":
		x.set(inst, h.Unwind(f))

	default:
		return fmt.Errorf("interp: %s: unknown helper %q", x.m.Name, inst.Helper)
	}
	return nil
}

// produce stores a (value, error) helper result into the instruction's
// destination temp.
func (x *exec) produce(inst ir.Inst) func(object.Object, error) error {
	return func(v object.Object, err error) error {
		if err != nil {
			return err
		}
		x.set(inst, v)
		return nil
	}
}
