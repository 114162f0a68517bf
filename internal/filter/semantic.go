/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import (
	"fmt"
	"strings"

	"github.com/grafana/regexp"
	"go.uber.org/multierr"
)

// typeError marks an operand whose resolution already failed.
const typeError Type = 0xff

type resolver struct {
	reg  Registry
	errs error
}

// Resolve binds the field references of a parsed tree, converts literals
// to the types they are compared with and checks the operand types. The
// tree is modified in place. All problems found are returned together.
func Resolve(tree Node, reg Registry) (Node, []*Diagnostic) {
	r := &resolver{reg: reg}
	n := r.test(tree)
	if r.errs == nil {
		return n, nil
	}

	var diags []*Diagnostic
	for _, err := range multierr.Errors(r.errs) {
		if d, ok := err.(*Diagnostic); ok {
			diags = append(diags, d)
		}
	}
	return nil, diags
}

func (r *resolver) errorf(n Node, format string, args ...any) {
	pos, length := Span(n)
	r.errs = multierr.Append(r.errs, diagf(StageSemantic, pos, length, format, args...))
}

// test resolves n where a boolean is expected.
func (r *resolver) test(n Node) Node {
	switch x := n.(type) {
	case *TestNode:
		switch {
		case x.Op == OpNot:
			x.Left = r.test(x.Left)
			return x
		case x.Op.logical():
			x.Left = r.test(x.Left)
			x.Right = r.test(x.Right)
			return x
		case x.Op.comparison():
			r.compare(x)
			return x
		case x.Op == OpMatches:
			r.matches(x)
			return x
		case x.Op == OpIn:
			r.membership(x)
			return x
		case x.Op == OpExists || x.Op == OpNonZero:
			return x
		case x.Op == OpBitAnd:
			v, t, _ := r.operand(x)
			if t == typeError {
				return v
			}
			return NewTest(OpNonZero, v, nil)
		}
		r.errorf(x, "%s is not a test, compare it with a value", Format(x))
		return x
	case *ValueNode:
		if x.Type == TypeBool {
			return x
		}
	case *UnparsedNode:
		if f, ok := r.reg.Lookup(x.Text); ok {
			return r.presence(r.bind(x, f))
		}
		switch strings.ToLower(x.Text) {
		case "true":
			return NewValue(Bool(true), TypeBool, x)
		case "false":
			return NewValue(Bool(false), TypeBool, x)
		}
		if isIdent(x.Text) {
			r.errorf(x, "no such field %q", x.Text)
		} else {
			r.errorf(x, "%q is neither a field nor a test", x.Text)
		}
		return x
	case *FieldNode, *SliceNode:
		v, t, _ := r.operand(x)
		if t == typeError {
			return v
		}
		return r.presence(v)
	case *FunctionNode:
		v, t, _ := r.operand(x)
		if t != typeError {
			r.errorf(x, "%s() returns %s, not a boolean", x.Name, t.indefinite())
		}
		return v
	}
	r.errorf(n, "%s is not a test", Format(n))
	return n
}

// presence turns a bare field into a test. Boolean fields test for true,
// all others for existence.
func (r *resolver) presence(n Node) Node {
	if f, ok := n.(*FieldNode); ok && f.Field.Type == TypeBool {
		pos, length := Span(f)
		v := &ValueNode{nodeBase: at(pos, length), Value: Bool(true), Type: TypeBool}
		return NewTest(OpEq, f, v)
	}
	return NewTest(OpExists, n, nil)
}

func (r *resolver) bind(u *UnparsedNode, f *FieldInfo) *FieldNode {
	n := &FieldNode{nodeBase: u.nodeBase, Name: u.Text, Field: f}
	if f.Deprecated != "" {
		n.Deprecated = fmt.Sprintf("%s is deprecated, use %s", f.Name, f.Deprecated)
	}
	return n
}

func (r *resolver) field(n *FieldNode) bool {
	if n.Field != nil {
		return true
	}
	f, ok := r.reg.Lookup(n.Name)
	if !ok {
		r.errorf(n, "no such field %q", n.Name)
		return false
	}
	n.Field = f
	if f.Deprecated != "" {
		n.Deprecated = fmt.Sprintf("%s is deprecated, use %s", f.Name, f.Deprecated)
	}
	return true
}

// operand resolves n where a value is expected. It returns the resolved
// node, its type and, for fields, the integer width. Literals are left
// untouched and reported as TypeNone.
func (r *resolver) operand(n Node) (Node, Type, int) {
	switch x := n.(type) {
	case *UnparsedNode:
		if f, ok := r.reg.Lookup(x.Text); ok {
			return r.bind(x, f), f.Type, f.Width()
		}
		return x, TypeNone, 0
	case *StringNode, *IntegerNode, *CharNode:
		return x, TypeNone, 0
	case *ValueNode:
		return x, x.Type, 0
	case *FieldNode:
		if !r.field(x) {
			return x, typeError, 0
		}
		return x, x.Field.Type, x.Field.Width()
	case *SliceNode:
		f, ok := x.Entity.(*FieldNode)
		if !ok {
			r.errorf(x, "only fields can be sliced")
			return x, typeError, 0
		}
		if !r.field(f) {
			return x, typeError, 0
		}
		return x, TypeBytes, 0
	case *FunctionNode:
		return r.call(x)
	case *TestNode:
		if x.Op.arithmetic() {
			return r.arithmetic(x)
		}
		r.errorf(x, "%s is a test, not a value", Format(x))
		return x, typeError, 0
	case *SetNode:
		r.errorf(x, "sets are only allowed after 'in'")
		return x, typeError, 0
	}
	r.errorf(n, "unexpected %s", n.Kind())
	return n, typeError, 0
}

// coerce converts a literal to a value of type t.
func (r *resolver) coerce(lit Node, t Type, bits int) (Node, bool) {
	if bits <= 0 {
		bits = 64
	}

	var (
		v   Value
		dep string
		err error
	)
	switch x := lit.(type) {
	case *IntegerNode:
		v, err = parseInteger(x.Text, t, bits)
	case *StringNode:
		v, err = parseString(x.Value, t)
	case *CharNode:
		v, err = parseChar(x.Value, t, bits)
	case *UnparsedNode:
		v, dep, err = parseUnparsed(x.Text, t, bits)
		if err != nil && isIdent(x.Text) && strings.Contains(x.Text, ".") {
			err = fmt.Errorf("%q is neither a field nor a valid %s", x.Text, t)
		}
	default:
		return lit, true
	}
	if err != nil {
		r.errorf(lit, "%v", err)
		return lit, false
	}

	vn := NewValue(v, t, lit)
	vn.Deprecated = dep
	return vn, true
}

func (r *resolver) compare(x *TestNode) {
	l, lt, lbits := r.operand(x.Left)
	rn, rt, rbits := r.operand(x.Right)
	x.Left, x.Right = l, rn
	if lt == typeError || rt == typeError {
		return
	}

	ok := true
	switch {
	case lt == TypeNone && rt == TypeNone:
		for _, side := range []Node{l, rn} {
			if u, isUnparsed := side.(*UnparsedNode); isUnparsed && isIdent(u.Text) && naturalType(u) == TypeNone {
				r.errorf(u, "no such field %q", u.Text)
				return
			}
		}
		lt = naturalType(l)
		if lt == TypeNone {
			r.errorf(l, "cannot infer the type of %s", Format(l))
			return
		}
		rt = lt
		var lok, rok bool
		x.Left, lok = r.coerce(l, lt, 0)
		x.Right, rok = r.coerce(rn, rt, 0)
		ok = lok && rok
	case lt == TypeNone:
		lt = rt
		x.Left, ok = r.coerce(l, lt, rbits)
	case rt == TypeNone:
		rt = lt
		x.Right, ok = r.coerce(rn, rt, lbits)
	}
	if !ok {
		return
	}

	if !compatible(lt, rt) {
		r.errorf(x, "cannot compare %s with %s", lt.indefinite(), rt.indefinite())
		return
	}
	switch x.Op {
	case OpLt, OpLe, OpGt, OpGe:
		if !lt.ordered() {
			r.errorf(x, "%s values cannot be ordered", lt)
		}
	case OpContains:
		if !lt.bytesLike() || !rt.bytesLike() {
			r.errorf(x, "contains requires strings or byte sequences, got %s", lt.indefinite())
		}
	}
}

func (r *resolver) matches(x *TestNode) {
	l, lt, _ := r.operand(x.Left)
	x.Left = l
	switch {
	case lt == typeError:
		return
	case lt == TypeNone:
		r.errorf(l, "the left side of matches must be a field or expression")
		return
	case !lt.bytesLike():
		r.errorf(l, "matches requires a string or byte sequence, got %s", lt.indefinite())
		return
	}

	s, ok := x.Right.(*StringNode)
	if !ok {
		r.errorf(x.Right, "matches requires a quoted regular expression")
		return
	}
	re, err := regexp.Compile("(?i)" + s.Value)
	if err != nil {
		r.errorf(s, "invalid regular expression: %v", err)
		return
	}
	x.Right = &RegexNode{nodeBase: s.nodeBase, Pattern: s.Value, Re: re}
}

func (r *resolver) membership(x *TestNode) {
	l, lt, bits := r.operand(x.Left)
	x.Left = l
	if lt == typeError {
		return
	}
	if lt == TypeNone {
		r.errorf(l, "the left side of 'in' must be a field or expression")
		return
	}

	set := x.Right.(*SetNode)
	for i := range set.Elems {
		e := &set.Elems[i]
		e.Low = r.element(e.Low, lt, bits)
		if e.High == nil {
			continue
		}
		if !lt.ordered() {
			r.errorf(e.High, "ranges require ordered values, %s is not ordered", lt.indefinite())
			continue
		}
		e.High = r.element(e.High, lt, bits)
	}
}

func (r *resolver) element(n Node, t Type, bits int) Node {
	switch x := n.(type) {
	case *UnparsedNode:
		if _, ok := r.reg.Lookup(x.Text); ok {
			r.errorf(x, "set elements must be constant values")
			return n
		}
	case *ValueNode:
		if !compatible(t, x.Type) {
			r.errorf(x, "cannot compare %s with %s", t.indefinite(), x.Type.indefinite())
		}
		return n
	case *StringNode, *IntegerNode, *CharNode:
	default:
		r.errorf(n, "set elements must be constant values")
		return n
	}
	v, _ := r.coerce(n, t, bits)
	return v
}

func (r *resolver) arithmetic(x *TestNode) (Node, Type, int) {
	if x.Op == OpNeg {
		v, t, _ := r.operand(x.Left)
		x.Left = v
		switch {
		case t == typeError:
			return x, typeError, 0
		case t == TypeNone:
			var ok bool
			if x.Left, ok = r.coerce(v, TypeInt, 0); !ok {
				return x, typeError, 0
			}
			t = TypeInt
		case !t.numeric() && t != TypeDuration:
			r.errorf(x, "cannot negate %s", t.indefinite())
			return x, typeError, 0
		}
		if t == TypeUint {
			t = TypeInt
		}
		return x, t, 0
	}

	l, lt, _ := r.operand(x.Left)
	rn, rt, _ := r.operand(x.Right)
	x.Left, x.Right = l, rn
	if lt == typeError || rt == typeError {
		return x, typeError, 0
	}

	ok := true
	switch {
	case lt == TypeNone && rt == TypeNone:
		lt, rt = TypeInt, TypeInt
		var lok, rok bool
		x.Left, lok = r.coerce(l, lt, 0)
		x.Right, rok = r.coerce(rn, rt, 0)
		ok = lok && rok
	case lt == TypeNone:
		lt = rt
		x.Left, ok = r.coerce(l, lt, 0)
	case rt == TypeNone:
		rt = lt
		x.Right, ok = r.coerce(rn, rt, 0)
	}
	if !ok {
		return x, typeError, 0
	}

	switch {
	case lt == TypeDuration || rt == TypeDuration:
		if lt != rt || (x.Op != OpAdd && x.Op != OpSub) {
			r.errorf(x, "cannot apply %s to %s and %s", x.Op, lt.indefinite(), rt.indefinite())
			return x, typeError, 0
		}
		return x, TypeDuration, 0
	case !lt.numeric() || !rt.numeric():
		r.errorf(x, "cannot apply %s to %s and %s", x.Op, lt.indefinite(), rt.indefinite())
		return x, typeError, 0
	case lt == TypeInt || rt == TypeInt:
		return x, TypeInt, 0
	}
	return x, TypeUint, 0
}

func (r *resolver) call(x *FunctionNode) (Node, Type, int) {
	fn, ok := functions[strings.ToLower(x.Name)]
	if !ok {
		r.errorf(x, "no such function %s()", x.Name)
		return x, typeError, 0
	}
	x.fn = fn

	n := len(x.Args)
	if n < fn.minArgs || (fn.maxArgs >= 0 && n > fn.maxArgs) {
		r.errorf(x, "%s() expects %s, got %d", fn.name, arity(fn), n)
		return x, typeError, 0
	}

	types := make([]Type, n)
	first := TypeNone
	failed := false
	for i, arg := range x.Args {
		v, t, _ := r.operand(arg)
		x.Args[i] = v
		switch {
		case t == typeError:
			failed = true
			continue
		case fn.field:
			if _, isField := v.(*FieldNode); !isField {
				r.errorf(v, "%s() requires a field", fn.name)
				failed = true
				continue
			}
		}
		types[i] = t
		if first == TypeNone {
			first = t
		}
	}
	if failed {
		return x, typeError, 0
	}

	for i, t := range types {
		if t != TypeNone {
			continue
		}
		if !fn.literals || first == TypeNone {
			r.errorf(x.Args[i], "argument %d of %s() must be a field or expression", i+1, fn.name)
			return x, typeError, 0
		}
		if x.Args[i], ok = r.coerce(x.Args[i], first, 0); !ok {
			return x, typeError, 0
		}
		types[i] = first
	}

	t, err := fn.result(types)
	if err != nil {
		r.errorf(x, "%s(): %v", fn.name, err)
		return x, typeError, 0
	}
	return x, t, 0
}

func arity(fn *function) string {
	switch {
	case fn.maxArgs < 0:
		return fmt.Sprintf("at least %d argument(s)", fn.minArgs)
	case fn.minArgs == fn.maxArgs:
		return fmt.Sprintf("%d argument(s)", fn.minArgs)
	}
	return fmt.Sprintf("%d to %d arguments", fn.minArgs, fn.maxArgs)
}
