// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtime

import (
	"fmt"

	"github.com/frameeval/pyjit/bytecode"
	"github.com/frameeval/pyjit/object"
)

// BinaryOp dispatches one arithmetic/bitwise opcode, grounded on
// shared_subroutines.cpp's handleBinary: try the left operand's slot,
// then the right operand's reflected slot. object.Type has no separate
// in-place slots, so an in-place opcode uses the same slots as its
// binary form. The first slot that returns ok=true wins; if none do, a TypeError-shaped
// *object.Exception naming both operand types and the operator sign is
// returned.
func BinaryOp(op bytecode.Op, v, w object.Object) (object.Object, error) {
	sign, slot, rslot, inplace := opSlots(op)

	if inplace {
		if iv, ok := slot(v); ok {
			if r, ok2 := iv(v, w); ok2 {
				return r, nil
			}
		}
	}
	if fwd, ok := slot(v); ok {
		if r, ok2 := fwd(v, w); ok2 {
			return r, nil
		}
	}
	if rslot != nil {
		if rev, ok := rslot(w); ok {
			if r, ok2 := rev(w, v); ok2 {
				return r, nil
			}
		}
	}
	return nil, typeError(sign, v, w)
}

// slotFn extracts the operator function from a Type, or (nil, false) if
// the type does not implement it.
type slotFn func(object.Object) (object.BinaryFn, bool)

func opSlots(op bytecode.Op) (sign string, forward, reflected slotFn, inplace bool) {
	field := func(f func(*object.Type) object.BinaryFn) slotFn {
		return func(o object.Object) (object.BinaryFn, bool) {
			t := o.Type()
			if t == nil {
				return nil, false
			}
			fn := f(t)
			return fn, fn != nil
		}
	}
	switch op {
	case bytecode.OpBinaryAdd:
		return "+", field(func(t *object.Type) object.BinaryFn { return t.Add }), field(func(t *object.Type) object.BinaryFn { return t.RAdd }), false
	case bytecode.OpInplaceAdd:
		return "+=", field(func(t *object.Type) object.BinaryFn { return t.Add }), field(func(t *object.Type) object.BinaryFn { return t.RAdd }), true
	case bytecode.OpBinarySubtract:
		return "-", field(func(t *object.Type) object.BinaryFn { return t.Sub }), field(func(t *object.Type) object.BinaryFn { return t.RSub }), false
	case bytecode.OpInplaceSubtract:
		return "-=", field(func(t *object.Type) object.BinaryFn { return t.Sub }), field(func(t *object.Type) object.BinaryFn { return t.RSub }), true
	case bytecode.OpBinaryMultiply:
		return "*", field(func(t *object.Type) object.BinaryFn { return t.Mul }), field(func(t *object.Type) object.BinaryFn { return t.RMul }), false
	case bytecode.OpInplaceMultiply:
		return "*=", field(func(t *object.Type) object.BinaryFn { return t.Mul }), field(func(t *object.Type) object.BinaryFn { return t.RMul }), true
	case bytecode.OpBinaryFloorDivide:
		return "//", field(func(t *object.Type) object.BinaryFn { return t.FloorDiv }), nil, false
	case bytecode.OpInplaceFloorDivide:
		return "//=", field(func(t *object.Type) object.BinaryFn { return t.FloorDiv }), nil, true
	case bytecode.OpBinaryTrueDivide:
		return "/", field(func(t *object.Type) object.BinaryFn { return t.TrueDiv }), nil, false
	case bytecode.OpInplaceTrueDivide:
		return "/=", field(func(t *object.Type) object.BinaryFn { return t.TrueDiv }), nil, true
	case bytecode.OpBinaryModulo:
		return "%", field(func(t *object.Type) object.BinaryFn { return t.Mod }), nil, false
	case bytecode.OpInplaceModulo:
		return "%=", field(func(t *object.Type) object.BinaryFn { return t.Mod }), nil, true
	case bytecode.OpBinaryPower:
		return "**", field(func(t *object.Type) object.BinaryFn { return t.Pow }), nil, false
	case bytecode.OpInplacePower:
		return "**=", field(func(t *object.Type) object.BinaryFn { return t.Pow }), nil, true
	case bytecode.OpBinaryLshift:
		return "<<", field(func(t *object.Type) object.BinaryFn { return t.Lshift }), nil, false
	case bytecode.OpInplaceLshift:
		return "<<=", field(func(t *object.Type) object.BinaryFn { return t.Lshift }), nil, true
	case bytecode.OpBinaryRshift:
		return ">>", field(func(t *object.Type) object.BinaryFn { return t.Rshift }), nil, false
	case bytecode.OpInplaceRshift:
		return ">>=", field(func(t *object.Type) object.BinaryFn { return t.Rshift }), nil, true
	case bytecode.OpBinaryAnd:
		return "&", field(func(t *object.Type) object.BinaryFn { return t.And }), nil, false
	case bytecode.OpInplaceAnd:
		return "&=", field(func(t *object.Type) object.BinaryFn { return t.And }), nil, true
	case bytecode.OpBinaryOr:
		return "|", field(func(t *object.Type) object.BinaryFn { return t.Or }), nil, false
	case bytecode.OpInplaceOr:
		return "|=", field(func(t *object.Type) object.BinaryFn { return t.Or }), nil, true
	case bytecode.OpBinaryXor:
		return "^", field(func(t *object.Type) object.BinaryFn { return t.Xor }), nil, false
	case bytecode.OpInplaceXor:
		return "^=", field(func(t *object.Type) object.BinaryFn { return t.Xor }), nil, true
	}
	return "?", func(object.Object) (object.BinaryFn, bool) { return nil, false }, nil, false
}

func typeError(sign string, v, w object.Object) error {
	return object.NewException("TypeError", fmt.Sprintf(
		"unsupported operand type(s) for %s: '%s' and '%s'", sign, v.Type().Name, w.Type().Name))
}

// CompareOp dispatches COMPARE_OP. oparg follows CPython's
// PyObject_RichCompare convention (0=<,1=<=,2===,3=!=,4=>,5=>=); IS_OP
// and CONTAINS_OP are handled separately (IsOp, Contains) since they
// never consult the type's operator table.
func CompareOp(v, w object.Object, oparg int) (object.Object, error) {
	t := v.Type()
	if t == nil || t.Compare == nil {
		return nil, typeError(compareSign(oparg), v, w)
	}
	r, ok := t.Compare(v, w, oparg)
	if !ok {
		return nil, typeError(compareSign(oparg), v, w)
	}
	return r, nil
}

func compareSign(op int) string {
	switch op {
	case 0:
		return "<"
	case 1:
		return "<="
	case 2:
		return "=="
	case 3:
		return "!="
	case 4:
		return ">"
	case 5:
		return ">="
	}
	return "?"
}

// IsOp implements IS_OP: identity comparison, never dispatching through
// the type table.
func IsOp(v, w object.Object, negate bool) object.Object {
	same := v == w
	if negate {
		same = !same
	}
	return object.NewBool(same)
}

// UnaryOp dispatches UNARY_POSITIVE/NEGATIVE/INVERT; UNARY_NOT is handled
// by the caller via Truthy since it never consults the type table either.
func UnaryOp(op bytecode.Op, v object.Object) (object.Object, error) {
	switch op {
	case bytecode.OpUnaryPositive:
		if i, ok := v.(*object.Int); ok {
			return object.NewInt(i.Value), nil
		}
	case bytecode.OpUnaryNegative:
		if i, ok := v.(*object.Int); ok {
			return object.NewInt(-i.Value), nil
		}
	case bytecode.OpUnaryInvert:
		if i, ok := v.(*object.Int); ok {
			return object.NewInt(^i.Value), nil
		}
	}
	return nil, object.NewException("TypeError", fmt.Sprintf("bad operand type for unary op: '%s'", v.Type().Name))
}

// UnaryNot implements UNARY_NOT: truthiness negation, never consulting
// the type's operator table.
func UnaryNot(v object.Object) object.Object {
	return object.NewBool(!Truthy(v))
}

// Truthy implements UNARY_NOT's and the control-flow fast path's notion
// of truthiness.
func Truthy(v object.Object) bool {
	switch o := v.(type) {
	case *object.Bool:
		return o.Value
	case *object.NoneType:
		return false
	case *object.Int:
		return o.Value != 0
	case *object.Str:
		return o.Value != ""
	case *object.Tuple:
		return len(o.Items) != 0
	case *object.List:
		return len(o.Items) != 0
	case *object.Dict:
		return o.Len() != 0
	case *object.Set:
		return len(o.Items()) != 0
	}
	return v != nil
}
