/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/grafana/regexp"
)

type opcode uint8

const (
	opPushConst opcode = iota
	opLoadField
	opSlice
	opCall
	opAdd
	opSub
	opMul
	opDiv
	opMod
	opBitAnd
	opNeg
	opEq
	opNe
	opAllEq
	opAllNe
	opLt
	opLe
	opGt
	opGe
	opContains
	opMatches
	opInSet
	opExists
	opNonZero
	opNot
	opXor
	opJumpFalse
	opJumpTrue
	opReturn
)

var opcodeNames = [...]string{
	opPushConst: "PUSH_CONST",
	opLoadField: "LOAD_FIELD",
	opSlice:     "SLICE",
	opCall:      "CALL",
	opAdd:       "ADD",
	opSub:       "SUB",
	opMul:       "MUL",
	opDiv:       "DIV",
	opMod:       "MOD",
	opBitAnd:    "BITAND",
	opNeg:       "NEG",
	opEq:        "EQ",
	opNe:        "NE",
	opAllEq:     "ALL_EQ",
	opAllNe:     "ALL_NE",
	opLt:        "LT",
	opLe:        "LE",
	opGt:        "GT",
	opGe:        "GE",
	opContains:  "CONTAINS",
	opMatches:   "MATCHES",
	opInSet:     "IN_SET",
	opExists:    "EXISTS",
	opNonZero:   "NONZERO",
	opNot:       "NOT",
	opXor:       "XOR",
	opJumpFalse: "JUMP_FALSE",
	opJumpTrue:  "JUMP_TRUE",
	opReturn:    "RETURN",
}

func (op opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Operators of the opcodes that map one to one onto a TestOp.
var (
	testOpcodes = map[TestOp]opcode{
		OpAdd:      opAdd,
		OpSub:      opSub,
		OpMul:      opMul,
		OpDiv:      opDiv,
		OpMod:      opMod,
		OpBitAnd:   opBitAnd,
		OpEq:       opEq,
		OpNe:       opNe,
		OpAllEq:    opAllEq,
		OpAllNe:    opAllNe,
		OpLt:       opLt,
		OpLe:       opLe,
		OpGt:       opGt,
		OpGe:       opGe,
		OpContains: opContains,
	}
	opcodeTests [opReturn + 1]TestOp
)

func init() {
	for op, code := range testOpcodes {
		opcodeTests[code] = op
	}
}

type instr struct {
	op opcode
	a  int
	b  int
}

// callSite binds a function to the integer widths of its arguments.
type callSite struct {
	fn   *function
	bits []int
}

// set is the run time form of a set literal.
type set struct {
	values []Value
	ranges [][2]Value
	sorted bool
}

// newSet returns nil unless every element of n is a typed value.
func newSet(n *SetNode) *set {
	s := &set{sorted: n.Sorted}
	for _, e := range n.Elems {
		lo, ok := e.Low.(*ValueNode)
		if !ok {
			return nil
		}
		if e.High == nil {
			s.values = append(s.values, lo.Value)
			continue
		}
		hi, ok := e.High.(*ValueNode)
		if !ok {
			return nil
		}
		s.ranges = append(s.ranges, [2]Value{lo.Value, hi.Value})
	}
	return s
}

func (s *set) contains(v Value) bool {
	if s.sorted && searchable(v) && len(s.values) > 0 {
		if _, ok := order(s.values[0], v); ok {
			i := sort.Search(len(s.values), func(i int) bool {
				c, _ := order(s.values[i], v)
				return c >= 0
			})
			if i < len(s.values) && equal(s.values[i], v) {
				return true
			}
			return s.inRange(v)
		}
	}

	for _, e := range s.values {
		if equal(v, e) {
			return true
		}
	}
	return s.inRange(v)
}

func (s *set) inRange(v Value) bool {
	for _, r := range s.ranges {
		lo, lok := order(r[0], v)
		hi, hok := order(v, r[1])
		if lok && hok && lo <= 0 && hi <= 0 {
			return true
		}
	}
	return false
}

func searchable(v Value) bool {
	if a, ok := v.(Addr); ok {
		return a.exact()
	}
	return true
}

func (s *set) String() string {
	parts := make([]string, 0, len(s.values)+len(s.ranges))
	for _, v := range s.values {
		parts = append(parts, literal(v))
	}
	for _, r := range s.ranges {
		parts = append(parts, literal(r[0])+".."+literal(r[1]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// program is compiled filter code with its constant pools.
type program struct {
	code    []instr
	consts  [][]item
	fields  []*FieldInfo
	ranges  [][]Range
	regexes []*regexp.Regexp
	sets    []*set
	calls   []*callSite
	// depth is the maximum operand stack depth.
	depth int
}

// Disassemble renders the program one instruction per line.
func (p *program) Disassemble() string {
	var sb strings.Builder
	for pc, in := range p.code {
		line := fmt.Sprintf("%04d %-10s %s", pc, in.op, p.operand(in))
		sb.WriteString(strings.TrimRight(line, " "))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (p *program) operand(in instr) string {
	switch in.op {
	case opPushConst:
		return literal(p.consts[in.a][0].v)
	case opLoadField:
		name := p.fields[in.a].Name
		if in.b != 0 {
			name += fmt.Sprintf("#%d", in.b)
		}
		return name
	case opSlice:
		parts := make([]string, len(p.ranges[in.a]))
		for i, r := range p.ranges[in.a] {
			parts[i] = r.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case opCall:
		return fmt.Sprintf("%s/%d", p.calls[in.a].fn.name, in.b)
	case opMatches:
		return quote(p.regexes[in.a].String())
	case opInSet:
		return p.sets[in.a].String()
	case opJumpFalse, opJumpTrue:
		return fmt.Sprintf("%04d", in.a)
	}
	return ""
}
