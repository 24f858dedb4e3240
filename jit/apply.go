// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jit is the installation layer: it runs the translation
// pipeline (cfg → analyses → emit → backend) over a function's code
// unit on first request, stores the compiled record in the code
// object's extra slot, and dispatches frame evaluation either into the
// compiled body or to the fallback evaluator.
package jit

import (
	"fmt"

	"github.com/frameeval/pyjit/analysis"
	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/cfg"
	"github.com/frameeval/pyjit/emit"
	"github.com/frameeval/pyjit/frame"
	"github.com/frameeval/pyjit/ir"
	"github.com/frameeval/pyjit/ir/interp"
	"github.com/frameeval/pyjit/object"
	"github.com/frameeval/pyjit/runtime"
)

// CompiledFunction is a code object's extra-slot record: the executable
// body plus the vpc→stack-height side table the unwind helper reads.
type CompiledFunction struct {
	Unit    *bytecode.Unit
	Code    ir.CodeUnit
	Heights []int
	// Native holds the installed machine code when the backend
	// assembles bytes; nil for interpreted backends. Kernels execute on
	// raw words through NativeBlock.Invoke, not through the frame
	// contract.
	Native *NativeBlock
}

// Translator owns the pipeline, the helper table threaded into every
// compiled call, and the extra-slot records keyed by code unit, the
// process-wide state the host's extra-index API would hold.
type Translator struct {
	backend  ir.Backend
	helpers  *runtime.Helpers
	builtins map[string]object.Object
	fallback func(f *frame.Frame) (object.Object, error)
	cache    *CodeCache
	extra    map[*bytecode.Unit]*CompiledFunction
	failed   map[*bytecode.Unit]bool
}

// New builds a Translator and installs its frame evaluator as the
// invoker for function objects created by compiled code.
func New(opts ...Option) *Translator {
	t := &Translator{
		backend: interp.Backend{},
		cache:   NewCodeCache(),
		extra:   map[*bytecode.Unit]*CompiledFunction{},
		failed:  map[*bytecode.Unit]bool{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.helpers == nil {
		t.helpers = runtime.NewHelpers(nil, nil)
	}
	runtime.FunctionInvoker = t.invoke
	return t
}

// Close releases the executable mappings the translator owns.
func (t *Translator) Close() error {
	for _, rec := range t.extra {
		rec.Code.Free()
	}
	return t.cache.Close()
}

// Apply translates fn's code unit (once; applying twice is a no-op),
// installs the record in the extra slot and returns fn unchanged. On
// failure the slot stays empty and subsequent calls run the fallback
// evaluator.
func (t *Translator) Apply(fn *object.Function) (*object.Function, error) {
	unit, ok := fn.Code.(*bytecode.Unit)
	if !ok {
		return nil, fmt.Errorf("jit: function %s carries no code unit", fn.Name)
	}
	fn.Invoke = t.invoke
	if _, done := t.extra[unit]; done {
		return fn, nil
	}
	rec, err := t.Translate(unit)
	if err != nil {
		t.failed[unit] = true
		return nil, err
	}
	t.extra[unit] = rec
	return fn, nil
}

// Translate runs the pipeline over one code unit.
func (t *Translator) Translate(u *bytecode.Unit) (*CompiledFunction, error) {
	if u.Flags&(bytecode.FlagGenerator|bytecode.FlagCoroutine) != 0 {
		return nil, fmt.Errorf("jit: %s: generator and coroutine functions are not translated", u.Name)
	}
	for vpc, instr := range u.Instrs {
		if instr.Op.Unimplemented() {
			return nil, fmt.Errorf("jit: %s: opcode %d at vpc %d is not translated", u.Name, instr.Op, vpc)
		}
	}

	g, err := cfg.Build(u)
	if err != nil {
		return nil, err
	}
	red := analysis.AnalyzeRedundantLoads(u, g)
	analysis.AnalyzeLocalsDefinition(u, g)

	mod, heights, err := emit.Translate(u, g, red)
	if err != nil {
		return nil, err
	}
	code, err := t.backend.Compile(mod)
	if err != nil {
		return nil, fmt.Errorf("jit: %s: backend: %w", u.Name, err)
	}
	rec := &CompiledFunction{Unit: u, Code: code, Heights: heights}
	if raw, ok := code.(interface{ Code() []byte }); ok {
		blk, err := t.cache.Install(raw.Code())
		if err != nil {
			code.Free()
			return nil, err
		}
		rec.Native = blk
	}
	logger.Printf("jit: translated %s: %d blocks, %d instrs", u.Name, len(g.Blocks), len(u.Instrs))
	if PrintDebugInfo {
		logger.Print(mod.String())
	}
	return rec, nil
}

// EvalFrame is the frame-evaluation hook: compiled body if the extra
// slot is filled, fallback evaluator otherwise.
func (t *Translator) EvalFrame(f *frame.Frame) (object.Object, error) {
	rec, ok := t.extra[f.Unit]
	if !ok {
		if t.fallback != nil {
			return t.fallback(f)
		}
		return nil, fmt.Errorf("jit: %s: no compiled body and no fallback evaluator", f.Unit.Name)
	}
	runtime.PushExtFrame(rec.Heights)
	defer runtime.PopExtFrame()
	ret, err := rec.Code.Invoke(t.helpers, f)
	if err == nil {
		// Compiled code does not drain the operand stack on return; the
		// frame owns those slots, released here using the height
		// recorded for the returning vpc.
		if li := int(f.LastInstr); li < len(rec.Heights) {
			for i := 0; i < rec.Heights[li]; i++ {
				if v := f.Values[i]; v != nil {
					runtime.Decref(v)
					f.Values[i] = nil
				}
			}
		}
	}
	return ret, err
}

// invoke binds args into a fresh frame for fn and evaluates it,
// translating the code unit on first request.
func (t *Translator) invoke(fn *object.Function, args []object.Object) (object.Object, error) {
	unit, ok := fn.Code.(*bytecode.Unit)
	if !ok {
		return nil, object.NewException("TypeError", fmt.Sprintf("function %s carries no code unit", fn.Name))
	}
	if _, done := t.extra[unit]; !done && !t.failed[unit] {
		rec, err := t.Translate(unit)
		if err != nil {
			t.failed[unit] = true
			logger.Printf("jit: %s: demoted to fallback: %v", unit.Name, err)
		} else {
			t.extra[unit] = rec
		}
	}

	if len(args) < unit.ArgCount && fn.Defaults != nil {
		missing := unit.ArgCount - len(args)
		d := fn.Defaults.Items
		if missing <= len(d) {
			args = append(append([]object.Object{}, args...), d[len(d)-missing:]...)
		}
	}
	if len(args) != unit.ArgCount {
		return nil, object.NewException("TypeError", fmt.Sprintf(
			"%s() takes %d positional arguments but %d were given", fn.Name, unit.ArgCount, len(args)))
	}

	f := frame.New(unit, nil, fn.Globals, t.builtins)
	for i, a := range args {
		runtime.Incref(a)
		f.Locals[i] = a
	}
	for i, c := range fn.Closure {
		if unit.NCells+i < len(f.Cells) {
			f.Cells[unit.NCells+i] = c
		}
	}
	ret, err := t.EvalFrame(f)
	t.releaseFrame(f)
	return ret, err
}

// releaseFrame drops the references the frame owns once evaluation is
// over: locals, cells created for this call, and the handled-exception
// slot. The operand stack is empty on any successful return and drained
// by the unwind helper on the error path.
func (t *Translator) releaseFrame(f *frame.Frame) {
	for i, v := range f.Locals {
		if v != nil {
			runtime.Decref(v)
			f.Locals[i] = nil
		}
	}
	for i := 0; i < f.Unit.NCells && i < len(f.Cells); i++ {
		if c := f.Cells[i]; c != nil {
			if c.Ref != nil {
				runtime.Decref(c.Ref)
				c.Ref = nil
			}
			runtime.Decref(c)
		}
	}
	if f.HandledExc != nil {
		runtime.Decref(f.HandledExc)
		f.HandledExc = nil
	}
}

// Call invokes fn the way compiled code would: args are borrowed from
// the caller for the duration of the call.
func (t *Translator) Call(fn *object.Function, args ...object.Object) (object.Object, error) {
	return t.invoke(fn, args)
}
