// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytecode

import "testing"

func TestDecodeFoldsExtendedArg(t *testing.T) {
	raw := []byte{
		byte(OpExtendedArg), 0x01,
		byte(OpExtendedArg), 0x02,
		byte(OpLoadConst), 0x03,
		byte(OpReturnValue), 0x00,
	}
	instrs, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(instrs) != 2 {
		t.Fatalf("got %d instructions, want 2 (EXTENDED_ARG folded away)", len(instrs))
	}
	if instrs[0].Op != OpLoadConst {
		t.Fatalf("instr 0 is %d, want LOAD_CONST", instrs[0].Op)
	}
	if want := uint32(0x01<<16 | 0x02<<8 | 0x03); instrs[0].Arg != want {
		t.Fatalf("folded oparg = %#x, want %#x", instrs[0].Arg, want)
	}
	if instrs[1].Arg != 0 {
		t.Fatal("EXTENDED_ARG accumulator leaked into the following instruction")
	}
}

func TestDecodeRejectsOddLength(t *testing.T) {
	if _, err := Decode([]byte{byte(OpNop), 0, byte(OpNop)}); err == nil {
		t.Fatal("expected error for odd-length stream")
	}
}

func TestStackEffect(t *testing.T) {
	cases := []struct {
		instr Instr
		want  int
	}{
		{Instr{Op: OpLoadConst}, 1},
		{Instr{Op: OpBinaryAdd}, -1},
		{Instr{Op: OpCallFunction, Arg: 3}, -3},
		{Instr{Op: OpCallMethod, Arg: 2}, -3},
		{Instr{Op: OpBuildMap, Arg: 2}, -3},
		{Instr{Op: OpUnpackSequence, Arg: 4}, 3},
		{Instr{Op: OpSetupWith}, 1},
		{Instr{Op: OpPopExcept}, -3},
		{Instr{Op: OpReraise}, -3},
		{Instr{Op: OpWithExceptStart}, 1},
		{Instr{Op: OpDupTopTwo}, 2},
		{Instr{Op: OpRotN, Arg: 5}, 0},
	}
	for _, c := range cases {
		if got := StackEffect(c.instr); got != c.want {
			t.Errorf("StackEffect(%d, arg=%d) = %d, want %d", c.instr.Op, c.instr.Arg, got, c.want)
		}
	}
}

func TestArgLocalCount(t *testing.T) {
	u := &Unit{ArgCount: 2, KwOnlyArgs: 1, Flags: FlagVarargs | FlagVarkw}
	if got := u.ArgLocalCount(); got != 5 {
		t.Fatalf("ArgLocalCount = %d, want 5", got)
	}
}

func TestOpargPresence(t *testing.T) {
	if (OpBinaryAdd).hasOparg() {
		t.Fatal("BINARY_ADD should not carry an operand")
	}
	if !(OpLoadFast).hasOparg() {
		t.Fatal("LOAD_FAST should carry an operand")
	}
}

func TestUnimplementedFamily(t *testing.T) {
	for _, op := range []Op{OpYieldValue, OpGetAwaitable, OpMatchClass} {
		if !op.Unimplemented() {
			t.Errorf("opcode %d should be in the unimplemented family", op)
		}
	}
	if OpLoadFast.Unimplemented() {
		t.Fatal("LOAD_FAST is implemented")
	}
}
