// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import (
	"fmt"
	"strings"
)

var opNames = map[Op]string{
	OpConst:           "const",
	OpLoadLocal:       "load.local",
	OpStoreLocal:      "store.local",
	OpNullCheck:       "nullcheck",
	OpIncref:          "incref",
	OpDecref:          "decref",
	OpCondDecref:      "decref.cond",
	OpCallHelper:      "call",
	OpBranch:          "br",
	OpCondBranch:      "br.cond",
	OpIndirectBranch:  "br.indirect",
	OpReturn:          "ret",
	OpTrap:            "trap",
	OpMove:            "mov",
	OpBinaryArith:     "arith",
	OpLoadConstObject: "load.const",
	OpStackLoad:       "stack.load",
	OpStackStore:      "stack.store",
	OpSetLastInstr:    "set.lasti",
	OpSingleton:       "singleton",
	OpPtrEq:           "ptr.eq",
	OpBranchNull:      "br.null",
}

// String renders the module in a line-per-instruction text form, the
// payload of the debug-dump sink.
func (m *Module) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "module %s (%d temps)\n", m.Name, m.numTemps)
	for _, b := range m.Blocks {
		fmt.Fprintf(&sb, "%s:\n", b.Name)
		for _, inst := range b.Insts {
			sb.WriteString("\t")
			sb.WriteString(inst.String())
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// String renders one instruction.
func (i Inst) String() string {
	var sb strings.Builder
	if i.Dst != nil {
		fmt.Fprintf(&sb, "%%%d = ", i.Dst.Temp)
	}
	name := opNames[i.Op]
	if name == "" {
		name = fmt.Sprintf("op%d", i.Op)
	}
	sb.WriteString(name)
	if i.Helper != "" {
		fmt.Fprintf(&sb, " %s", i.Helper)
	}
	if i.Op == OpBinaryArith || (i.Op == OpCallHelper && i.PyOp != 0) {
		fmt.Fprintf(&sb, " [op %d]", i.PyOp)
	}
	switch i.Op {
	case OpLoadLocal, OpStoreLocal, OpLoadConstObject, OpStackLoad, OpStackStore, OpSingleton:
		fmt.Fprintf(&sb, " #%d", i.Local)
	case OpSetLastInstr, OpNullCheck:
		fmt.Fprintf(&sb, " @%d", i.VPC)
	}
	for _, a := range i.Args {
		sb.WriteString(" ")
		sb.WriteString(a.String())
	}
	for _, t := range i.Targets {
		fmt.Fprintf(&sb, " ->%s", t.Name)
	}
	return sb.String()
}

// String renders one operand.
func (v Value) String() string {
	switch v.Kind {
	case ValueTemp:
		return fmt.Sprintf("%%%d", v.Temp)
	case ValueConst:
		return fmt.Sprintf("$%d", v.Const)
	case ValueLocal:
		return fmt.Sprintf("#%d", v.Local)
	}
	return "?"
}
