/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import (
	"slices"
	"strconv"

	"github.com/grafana/regexp"
)

// Kind tags the variants of a syntax tree node.
type Kind uint8

const (
	KindTest Kind = iota
	KindUnparsed
	KindString
	KindChar
	KindField
	KindValue
	KindInteger
	KindSlice
	KindFunction
	KindSet
	KindRegex
)

var kindNames = [...]string{
	KindTest:     "Test",
	KindUnparsed: "Unparsed",
	KindString:   "StringLiteral",
	KindChar:     "CharConst",
	KindField:    "FieldRef",
	KindValue:    "TypedValue",
	KindInteger:  "IntegerLiteral",
	KindSlice:    "RangeSlice",
	KindFunction: "FunctionCall",
	KindSet:      "Set",
	KindRegex:    "RegexLiteral",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Node is a syntax tree node. The set of implementations is closed.
type Node interface {
	Kind() Kind
	base() *nodeBase
}

type nodeBase struct {
	Pos int
	Len int
	// Paren records explicit grouping in the source, it only affects printing.
	Paren bool
	// Deprecated holds a notice for syntax that is still accepted.
	Deprecated string
}

func (b *nodeBase) base() *nodeBase { return b }

// Span returns the source offset and length of n.
func Span(n Node) (int, int) {
	b := n.base()
	return b.Pos, b.Len
}

// TestOp is the operator of a Test node.
type TestOp uint8

const (
	OpExists TestOp = iota
	OpNonZero
	OpNot
	OpAnd
	OpOr
	OpXor
	OpEq
	OpNe
	OpAllEq
	OpAllNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpContains
	OpMatches
	OpIn
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpBitAnd
	OpNeg
)

var opSymbols = [...]string{
	OpExists:   "exists",
	OpNonZero:  "nonzero",
	OpNot:      "not",
	OpAnd:      "and",
	OpOr:       "or",
	OpXor:      "xor",
	OpEq:       "==",
	OpNe:       "!=",
	OpAllEq:    "===",
	OpAllNe:    "!==",
	OpLt:       "<",
	OpLe:       "<=",
	OpGt:       ">",
	OpGe:       ">=",
	OpContains: "contains",
	OpMatches:  "matches",
	OpIn:       "in",
	OpAdd:      "+",
	OpSub:      "-",
	OpMul:      "*",
	OpDiv:      "/",
	OpMod:      "%",
	OpBitAnd:   "&",
	OpNeg:      "-",
}

func (op TestOp) String() string {
	if int(op) < len(opSymbols) {
		return opSymbols[op]
	}
	return "op(" + strconv.Itoa(int(op)) + ")"
}

func (op TestOp) unary() bool {
	return op == OpExists || op == OpNonZero || op == OpNot || op == OpNeg
}

func (op TestOp) logical() bool {
	return op == OpAnd || op == OpOr || op == OpXor || op == OpNot
}

func (op TestOp) comparison() bool {
	return op >= OpEq && op <= OpContains
}

func (op TestOp) arithmetic() bool {
	return op >= OpAdd && op <= OpNeg
}

// TestNode is an operator applied to one or two operands. Right is nil
// for unary operators.
type TestNode struct {
	nodeBase
	Op    TestOp
	Left  Node
	Right Node
}

// UnparsedNode is a word that is either a field name or a literal; the
// resolver decides which.
type UnparsedNode struct {
	nodeBase
	Text string
}

type StringNode struct {
	nodeBase
	Value string
	Raw   bool
}

type CharNode struct {
	nodeBase
	Value rune
}

type IntegerNode struct {
	nodeBase
	Text string
}

// FieldNode references a protocol field. Field is nil until resolved.
// Layer selects a single protocol layer, 1 is the outermost and -1 the
// innermost, 0 means any.
type FieldNode struct {
	nodeBase
	Name  string
	Field *FieldInfo
	Layer int
}

// ValueNode is a literal converted to the type it is compared with.
type ValueNode struct {
	nodeBase
	Value Value
	Type  Type
}

type RangeMode uint8

const (
	// RangeSingle selects the byte at Start.
	RangeSingle RangeMode = iota
	// RangeLength selects End bytes beginning at Start.
	RangeLength
	// RangeEnd selects the bytes from Start to End inclusive.
	RangeEnd
	// RangeToEnd selects the bytes from Start to the end.
	RangeToEnd
)

// Range is one byte range of a slice. Negative offsets count from the end.
type Range struct {
	Start int
	End   int
	Mode  RangeMode
}

// bounds returns the half-open interval selected from n bytes.
func (r Range) bounds(n int) (int, int, bool) {
	lo := r.Start
	if lo < 0 {
		lo += n
	}
	if lo < 0 || lo > n {
		return 0, 0, false
	}

	var hi int
	switch r.Mode {
	case RangeSingle:
		hi = lo + 1
	case RangeLength:
		hi = lo + r.End
	case RangeEnd:
		hi = r.End
		if hi < 0 {
			hi += n
		}
		hi++
	case RangeToEnd:
		hi = n
	}
	if hi < lo || hi > n {
		return 0, 0, false
	}
	return lo, hi, true
}

func (r Range) String() string {
	start := strconv.Itoa(r.Start)
	switch r.Mode {
	case RangeLength:
		return start + ":" + strconv.Itoa(r.End)
	case RangeEnd:
		return start + "-" + strconv.Itoa(r.End)
	case RangeToEnd:
		return start + ":"
	}
	return start
}

// SliceNode selects byte ranges of its entity, the results are concatenated.
type SliceNode struct {
	nodeBase
	Entity Node
	Ranges []Range
}

type FunctionNode struct {
	nodeBase
	Name string
	Args []Node
	fn   *function
}

// SetElem is a single value or, when High is set, an inclusive range.
type SetElem struct {
	Low  Node
	High Node
}

type SetNode struct {
	nodeBase
	Elems []SetElem
	// Sorted is set when the single values are ordered and unique.
	Sorted bool
}

type RegexNode struct {
	nodeBase
	Pattern string
	Re      *regexp.Regexp
}

func (*TestNode) Kind() Kind     { return KindTest }
func (*UnparsedNode) Kind() Kind { return KindUnparsed }
func (*StringNode) Kind() Kind   { return KindString }
func (*CharNode) Kind() Kind     { return KindChar }
func (*IntegerNode) Kind() Kind  { return KindInteger }
func (*FieldNode) Kind() Kind    { return KindField }
func (*ValueNode) Kind() Kind    { return KindValue }
func (*SliceNode) Kind() Kind    { return KindSlice }
func (*FunctionNode) Kind() Kind { return KindFunction }
func (*SetNode) Kind() Kind      { return KindSet }
func (*RegexNode) Kind() Kind    { return KindRegex }

func at(pos, length int) nodeBase {
	return nodeBase{Pos: pos, Len: length}
}

func NewTest(op TestOp, left, right Node) *TestNode {
	n := &TestNode{Op: op, Left: left, Right: right}
	pos, length := Span(left)
	if right != nil {
		rpos, rlen := Span(right)
		length = max(rpos+rlen-pos, length)
	}
	n.nodeBase = at(pos, length)
	return n
}

func NewUnparsed(text string, pos int) *UnparsedNode {
	return &UnparsedNode{nodeBase: at(pos, len(text)), Text: text}
}

func NewInteger(text string, pos int) *IntegerNode {
	return &IntegerNode{nodeBase: at(pos, len(text)), Text: text}
}

func NewField(name string, layer int, pos, length int) *FieldNode {
	return &FieldNode{nodeBase: at(pos, length), Name: name, Layer: layer}
}

// NewValue returns a typed value taking the place of n.
func NewValue(v Value, t Type, n Node) *ValueNode {
	vn := &ValueNode{Value: v, Type: t}
	if n != nil {
		vn.nodeBase = *n.base()
	}
	return vn
}

// Clone returns a deep copy of n. Compiled regular expressions and field
// descriptions are shared, both are immutable.
func Clone(n Node) Node {
	if n == nil {
		return nil
	}
	switch x := n.(type) {
	case *TestNode:
		c := *x
		c.Left = Clone(x.Left)
		c.Right = Clone(x.Right)
		return &c
	case *UnparsedNode:
		c := *x
		return &c
	case *StringNode:
		c := *x
		return &c
	case *CharNode:
		c := *x
		return &c
	case *IntegerNode:
		c := *x
		return &c
	case *FieldNode:
		c := *x
		return &c
	case *ValueNode:
		c := *x
		return &c
	case *SliceNode:
		c := *x
		c.Entity = Clone(x.Entity)
		c.Ranges = slices.Clone(x.Ranges)
		return &c
	case *FunctionNode:
		c := *x
		c.Args = make([]Node, len(x.Args))
		for i, arg := range x.Args {
			c.Args[i] = Clone(arg)
		}
		return &c
	case *SetNode:
		c := *x
		c.Elems = make([]SetElem, len(x.Elems))
		for i, e := range x.Elems {
			c.Elems[i] = SetElem{Low: Clone(e.Low), High: Clone(e.High)}
		}
		return &c
	case *RegexNode:
		c := *x
		return &c
	}
	panic("filter: clone of unknown node type")
}

// Walk calls fn for n and its descendants in depth-first order until fn
// returns false.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch x := n.(type) {
	case *TestNode:
		Walk(x.Left, fn)
		Walk(x.Right, fn)
	case *SliceNode:
		Walk(x.Entity, fn)
	case *FunctionNode:
		for _, arg := range x.Args {
			Walk(arg, fn)
		}
	case *SetNode:
		for _, e := range x.Elems {
			Walk(e.Low, fn)
			Walk(e.High, fn)
		}
	}
}
