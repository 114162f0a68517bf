/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import (
	"fmt"
)

type compiler struct {
	prog   *program
	consts map[string]int
	fields map[FieldKey]int
	depth  int
}

// generate compiles a resolved tree. Pools are filled in traversal order so
// equal trees yield identical programs.
func generate(tree Node) *program {
	c := &compiler{
		prog:   &program{},
		consts: make(map[string]int),
		fields: make(map[FieldKey]int),
	}
	c.test(tree)
	c.emit(opReturn, 0, 0, -1)
	return c.prog
}

// emit appends an instruction that changes the stack depth by delta and
// returns its position.
func (c *compiler) emit(op opcode, a, b, delta int) int {
	c.prog.code = append(c.prog.code, instr{op: op, a: a, b: b})
	c.depth += delta
	c.prog.depth = max(c.prog.depth, c.depth)
	return len(c.prog.code) - 1
}

// patch points the jump at pos to the next instruction.
func (c *compiler) patch(pos int) {
	c.prog.code[pos].a = len(c.prog.code)
}

func (c *compiler) test(n Node) {
	switch x := n.(type) {
	case *ValueNode:
		c.constant(x.Value)
		return
	case *TestNode:
		switch x.Op {
		case OpAnd, OpOr:
			c.test(x.Left)
			jump := opJumpFalse
			if x.Op == OpOr {
				jump = opJumpTrue
			}
			pos := c.emit(jump, 0, 0, -1)
			c.test(x.Right)
			c.patch(pos)
		case OpXor:
			c.test(x.Left)
			c.test(x.Right)
			c.emit(opXor, 0, 0, -1)
		case OpNot:
			c.test(x.Left)
			c.emit(opNot, 0, 0, 0)
		case OpExists:
			c.value(x.Left)
			c.emit(opExists, 0, 0, 0)
		case OpNonZero:
			c.value(x.Left)
			c.emit(opNonZero, 0, 0, 0)
		case OpIn:
			c.value(x.Left)
			s := newSet(x.Right.(*SetNode))
			if s == nil {
				panic("filter: set with unresolved elements")
			}
			c.prog.sets = append(c.prog.sets, s)
			c.emit(opInSet, len(c.prog.sets)-1, 0, 0)
		case OpMatches:
			c.value(x.Left)
			c.prog.regexes = append(c.prog.regexes, x.Right.(*RegexNode).Re)
			c.emit(opMatches, len(c.prog.regexes)-1, 0, 0)
		default:
			if !x.Op.comparison() {
				panic(fmt.Sprintf("filter: %s is not a test", x.Op))
			}
			c.value(x.Left)
			c.value(x.Right)
			c.emit(testOpcodes[x.Op], 0, 0, -1)
		}
		return
	}
	panic(fmt.Sprintf("filter: cannot compile %s as a test", n.Kind()))
}

func (c *compiler) value(n Node) {
	switch x := n.(type) {
	case *ValueNode:
		c.constant(x.Value)
	case *FieldNode:
		c.emit(opLoadField, c.field(x.Field), x.Layer, 1)
	case *SliceNode:
		c.value(x.Entity)
		c.prog.ranges = append(c.prog.ranges, x.Ranges)
		c.emit(opSlice, len(c.prog.ranges)-1, width(x.Entity), 0)
	case *FunctionNode:
		bits := make([]int, len(x.Args))
		for i, arg := range x.Args {
			c.value(arg)
			bits[i] = width(arg)
		}
		c.prog.calls = append(c.prog.calls, &callSite{fn: x.fn, bits: bits})
		c.emit(opCall, len(c.prog.calls)-1, len(x.Args), 1-len(x.Args))
	case *TestNode:
		if x.Op == OpNeg {
			c.value(x.Left)
			c.emit(opNeg, 0, 0, 0)
			return
		}
		code, ok := testOpcodes[x.Op]
		if !ok || !x.Op.arithmetic() {
			panic(fmt.Sprintf("filter: %s is not a value", x.Op))
		}
		c.value(x.Left)
		c.value(x.Right)
		c.emit(code, 0, 0, -1)
	default:
		panic(fmt.Sprintf("filter: cannot compile %s as a value", n.Kind()))
	}
}

func (c *compiler) constant(v Value) {
	key := poolKey(v)
	idx, ok := c.consts[key]
	if !ok {
		c.prog.consts = append(c.prog.consts, []item{{v: v}})
		idx = len(c.prog.consts) - 1
		c.consts[key] = idx
	}
	c.emit(opPushConst, idx, 0, 1)
}

// poolKey identifies a constant by type and exact value. Durations print
// in rounded seconds so they are keyed by nanoseconds.
func poolKey(v Value) string {
	if d, ok := v.(Duration); ok {
		return fmt.Sprintf("%d:%dns", v.Type(), int64(d))
	}
	return fmt.Sprintf("%d:%s", v.Type(), literal(v))
}

func (c *compiler) field(f *FieldInfo) int {
	idx, ok := c.fields[f.Key]
	if !ok {
		c.prog.fields = append(c.prog.fields, f)
		idx = len(c.prog.fields) - 1
		c.fields[f.Key] = idx
	}
	return idx
}

// width returns the integer width of n when it is a field reference.
func width(n Node) int {
	if f, ok := n.(*FieldNode); ok {
		return f.Field.Width()
	}
	return 0
}
