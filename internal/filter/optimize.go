/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import (
	"slices"
)

// Optimize simplifies a resolved tree: constant comparisons, arithmetic and
// boolean operators are folded, double negations removed and sets sorted
// for binary search. The result evaluates identically to its input.
func Optimize(n Node) Node {
	switch x := n.(type) {
	case *TestNode:
		x.Left = Optimize(x.Left)
		if x.Right != nil {
			x.Right = Optimize(x.Right)
		}
		return fold(x)
	case *FunctionNode:
		for i, arg := range x.Args {
			x.Args[i] = Optimize(arg)
		}
	case *SetNode:
		sortSet(x)
	}
	return n
}

func fold(x *TestNode) Node {
	switch x.Op {
	case OpNot:
		if inner, ok := x.Left.(*TestNode); ok && inner.Op == OpNot {
			return inner.Left
		}
		if b, ok := boolConst(x.Left); ok {
			return boolValue(!b, x)
		}
	case OpAnd:
		if b, ok := boolConst(x.Left); ok {
			if !b {
				return boolValue(false, x)
			}
			return x.Right
		}
		if b, ok := boolConst(x.Right); ok {
			if !b {
				return boolValue(false, x)
			}
			return x.Left
		}
	case OpOr:
		if b, ok := boolConst(x.Left); ok {
			if b {
				return boolValue(true, x)
			}
			return x.Right
		}
		if b, ok := boolConst(x.Right); ok {
			if b {
				return boolValue(true, x)
			}
			return x.Left
		}
	case OpXor:
		lb, lok := boolConst(x.Left)
		rb, rok := boolConst(x.Right)
		switch {
		case lok && rok:
			return boolValue(lb != rb, x)
		case lok:
			return negateIf(lb, x.Right)
		case rok:
			return negateIf(rb, x.Left)
		}
	case OpIn:
		if l, ok := x.Left.(*ValueNode); ok {
			if s := newSet(x.Right.(*SetNode)); s != nil {
				return boolValue(s.contains(l.Value), x)
			}
		}
	case OpMatches:
		if l, ok := x.Left.(*ValueNode); ok {
			return boolValue(match(x.Right.(*RegexNode).Re, l.Value), x)
		}
	case OpNonZero:
		if l, ok := x.Left.(*ValueNode); ok {
			return boolValue(nonZero(l.Value), x)
		}
	case OpNeg:
		if l, ok := x.Left.(*ValueNode); ok {
			if v, ok := negate(l.Value); ok {
				return NewValue(v, v.Type(), x)
			}
		}
	default:
		l, lok := x.Left.(*ValueNode)
		r, rok := x.Right.(*ValueNode)
		if !lok || !rok {
			break
		}
		if x.Op.comparison() {
			return boolValue(compareValues(x.Op, l.Value, r.Value), x)
		}
		if x.Op.arithmetic() {
			if v, ok := arith(x.Op, l.Value, r.Value); ok {
				return NewValue(v, v.Type(), x)
			}
		}
	}
	return x
}

func boolConst(n Node) (bool, bool) {
	v, ok := n.(*ValueNode)
	if !ok {
		return false, false
	}
	b, ok := v.Value.(Bool)
	return bool(b), ok
}

func boolValue(b bool, n Node) *ValueNode {
	pos, length := Span(n)
	return &ValueNode{nodeBase: nodeBase{Pos: pos, Len: length}, Value: Bool(b), Type: TypeBool}
}

func negateIf(neg bool, n Node) Node {
	if !neg {
		return n
	}
	if inner, ok := n.(*TestNode); ok && inner.Op == OpNot {
		return inner.Left
	}
	return NewTest(OpNot, n, nil)
}

// sortSet orders and de-duplicates the single values of a set when all of
// them are exact and ordered. Ranges keep their order after the values.
func sortSet(s *SetNode) {
	var singles, ranges []SetElem
	for _, e := range s.Elems {
		if e.High != nil {
			ranges = append(ranges, e)
			continue
		}
		v, ok := e.Low.(*ValueNode)
		if !ok || !sortable(v.Value) {
			return
		}
		singles = append(singles, e)
	}

	value := func(e SetElem) Value { return e.Low.(*ValueNode).Value }
	slices.SortStableFunc(singles, func(a, b SetElem) int {
		c, _ := order(value(a), value(b))
		return c
	})
	singles = slices.CompactFunc(singles, func(a, b SetElem) bool {
		return equal(value(a), value(b))
	})

	s.Elems = append(singles, ranges...)
	s.Sorted = true
}

func sortable(v Value) bool {
	switch x := v.(type) {
	case Bool:
		return false
	case Addr:
		return x.exact()
	}
	return true
}
