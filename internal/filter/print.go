/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import (
	"strconv"
	"strings"
)

const (
	precOr = iota + 1
	precXor
	precAnd
	precNot
	precRelation
	precAdditive
	precMultiplicative
	precUnary
	precPrimary
)

func precedence(n Node) int {
	t, ok := n.(*TestNode)
	if !ok {
		return precPrimary
	}
	switch t.Op {
	case OpOr:
		return precOr
	case OpXor:
		return precXor
	case OpAnd:
		return precAnd
	case OpNot:
		return precNot
	case OpAdd, OpSub:
		return precAdditive
	case OpMul, OpDiv, OpMod, OpBitAnd:
		return precMultiplicative
	case OpNeg:
		return precUnary
	case OpExists, OpNonZero:
		return precedence(t.Left)
	}
	return precRelation
}

// Format renders n as filter text that parses back into an equivalent tree.
func Format(n Node) string {
	var sb strings.Builder
	write(&sb, n, 0)
	return sb.String()
}

// write renders n, adding parentheses when n binds weaker than want.
func write(sb *strings.Builder, n Node, want int) {
	paren := n.base().Paren || precedence(n) < want
	if paren {
		sb.WriteByte('(')
	}

	switch x := n.(type) {
	case *TestNode:
		writeTest(sb, x)
	case *UnparsedNode:
		sb.WriteString(x.Text)
	case *StringNode:
		if x.Raw && !strings.Contains(x.Value, `"`) {
			sb.WriteString(`r"` + x.Value + `"`)
		} else {
			sb.WriteString(quote(x.Value))
		}
	case *CharNode:
		writeChar(sb, x.Value)
	case *IntegerNode:
		sb.WriteString(x.Text)
	case *FieldNode:
		sb.WriteString(x.Name)
		if x.Layer != 0 {
			sb.WriteString("#" + strconv.Itoa(x.Layer))
		}
	case *ValueNode:
		sb.WriteString(literal(x.Value))
	case *SliceNode:
		write(sb, x.Entity, precPrimary)
		sb.WriteByte('[')
		for i, r := range x.Ranges {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(r.String())
		}
		sb.WriteByte(']')
	case *FunctionNode:
		sb.WriteString(x.Name + "(")
		for i, arg := range x.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			write(sb, arg, precAdditive)
		}
		sb.WriteByte(')')
	case *SetNode:
		sb.WriteByte('{')
		for i, e := range x.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			write(sb, e.Low, precAdditive)
			if e.High != nil {
				sb.WriteString("..")
				write(sb, e.High, precAdditive)
			}
		}
		sb.WriteByte('}')
	case *RegexNode:
		sb.WriteString(quote(x.Pattern))
	}

	if paren {
		sb.WriteByte(')')
	}
}

func writeTest(sb *strings.Builder, t *TestNode) {
	switch t.Op {
	case OpExists, OpNonZero:
		write(sb, t.Left, 0)
	case OpNot:
		sb.WriteString("not ")
		write(sb, t.Left, precNot)
	case OpNeg:
		sb.WriteString("-")
		write(sb, t.Left, precUnary)
	default:
		prec := precedence(t)
		left, right := prec, prec+1
		if prec == precRelation {
			left = precAdditive
			right = precAdditive
		}
		write(sb, t.Left, left)
		sb.WriteString(" " + t.Op.String() + " ")
		write(sb, t.Right, right)
	}
}

func writeChar(sb *strings.Builder, r rune) {
	switch r {
	case '\'':
		sb.WriteString(`'\''`)
	case '\\':
		sb.WriteString(`'\\'`)
	case '\n':
		sb.WriteString(`'\n'`)
	case '\t':
		sb.WriteString(`'\t'`)
	case '\r':
		sb.WriteString(`'\r'`)
	default:
		if r < 0x20 || r == 0x7f {
			sb.WriteString(`'\x` + strconv.FormatInt(int64(r)|0x100, 16)[1:] + `'`)
			return
		}
		sb.WriteString("'" + string(r) + "'")
	}
}
