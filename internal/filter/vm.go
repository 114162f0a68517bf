/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/grafana/regexp"
)

// item is a value on the operand stack together with its origin.
type item struct {
	v   Value
	raw []byte
	loc Location
	// src is set when loc refers to packet data.
	src bool
}

// bytes returns the bytes of the item, encoding integers with the given
// width when the packet bytes are unknown.
func (it item) bytes(bits int) []byte {
	if it.raw != nil {
		return it.raw
	}
	return encode(it.v, bits)
}

// operand is a stack entry, either a list of values or a boolean. Tests
// record in from the number of locations collected before them.
type operand struct {
	items []item
	ok    bool
	from  int
}

// branch is the right operand of an and/or still being evaluated. Once
// pc reaches end the left operand's locations are merged into it.
type branch struct {
	end  int
	from int
}

type machine struct {
	prog     *program
	d        Dissection
	stack    []operand
	track    bool
	locs     []Location
	branches []branch
}

// run evaluates the program against d. With track set the packet regions
// of satisfied comparisons are collected.
func (p *program) run(d Dissection, track bool) (bool, []Location) {
	m := &machine{
		prog:  p,
		d:     d,
		stack: make([]operand, 0, p.depth),
		track: track,
	}

	for pc := 0; pc < len(p.code); pc++ {
		m.join(pc)
		in := p.code[pc]
		switch in.op {
		case opPushConst:
			items := p.consts[in.a]
			m.push(operand{items: items, ok: truth(items), from: len(m.locs)})
		case opLoadField:
			m.push(operand{items: m.load(in)})
		case opSlice:
			top := m.top()
			top.items = slice(top.items, p.ranges[in.a], in.b)
		case opCall:
			site := p.calls[in.a]
			args := make([][]item, in.b)
			for i := in.b - 1; i >= 0; i-- {
				args[i] = m.pop().items
			}
			m.push(operand{items: site.fn.call(args, site.bits)})
		case opAdd, opSub, opMul, opDiv, opMod, opBitAnd:
			r := m.pop()
			l := m.top()
			l.items = combine(opcodeTests[in.op], l.items, r.items)
		case opNeg:
			top := m.top()
			top.items = mapItems(top.items, func(it item) (Value, bool) {
				return negate(it.v)
			})
		case opEq, opNe, opAllEq, opAllNe, opLt, opLe, opGt, opGe, opContains:
			r := m.pop()
			l := m.pop()
			from := len(m.locs)
			m.push(operand{ok: m.compare(opcodeTests[in.op], l.items, r.items), from: from})
		case opMatches:
			re := p.regexes[in.a]
			top := m.pop()
			from := len(m.locs)
			m.push(operand{ok: m.some(top.items, func(v Value) bool {
				return match(re, v)
			}), from: from})
		case opInSet:
			s := p.sets[in.a]
			top := m.pop()
			from := len(m.locs)
			m.push(operand{ok: m.some(top.items, s.contains), from: from})
		case opExists:
			top := m.pop()
			from := len(m.locs)
			m.push(operand{ok: m.some(top.items, func(Value) bool { return true }), from: from})
		case opNonZero:
			top := m.pop()
			from := len(m.locs)
			m.push(operand{ok: m.some(top.items, nonZero), from: from})
		case opNot:
			// A negated test never points at packet data.
			top := m.top()
			top.ok = !top.ok
			m.drop(top.from)
		case opXor:
			r := m.pop()
			l := m.top()
			l.ok = l.ok != r.ok
			if !l.ok {
				m.drop(l.from)
			}
		case opJumpFalse, opJumpTrue:
			top := m.top()
			if top.ok == (in.op == opJumpTrue) {
				pc = in.a - 1
				continue
			}
			if m.track {
				m.branches = append(m.branches, branch{end: in.a, from: top.from})
			}
			m.pop()
		case opReturn:
			top := m.pop()
			if !top.ok {
				return false, nil
			}
			return true, m.locations()
		default:
			panic(fmt.Sprintf("filter: invalid opcode %s at %04d", in.op, pc))
		}
	}
	panic("filter: program ends without RETURN")
}

// join completes the and/or branches ending at pc. The right operand
// decides the verdict; when it fails the left operand's locations go too.
func (m *machine) join(pc int) {
	for n := len(m.branches); n > 0 && m.branches[n-1].end == pc; n-- {
		b := m.branches[n-1]
		m.branches = m.branches[:n-1]
		top := m.top()
		if !top.ok {
			m.drop(b.from)
		}
		top.from = b.from
	}
}

// drop forgets the locations collected since from.
func (m *machine) drop(from int) {
	if from < len(m.locs) {
		m.locs = m.locs[:from]
	}
}

// truth reports whether a constant is the boolean true.
func truth(items []item) bool {
	if len(items) != 1 {
		return false
	}
	b, ok := items[0].v.(Bool)
	return ok && bool(b)
}

func (m *machine) push(o operand) {
	m.stack = append(m.stack, o)
}

func (m *machine) pop() operand {
	n := len(m.stack) - 1
	o := m.stack[n]
	m.stack = m.stack[:n]
	return o
}

func (m *machine) top() *operand {
	return &m.stack[len(m.stack)-1]
}

func (m *machine) load(in instr) []item {
	f := m.prog.fields[in.a]
	occs := m.d.Occurrences(f.Key)
	if len(occs) == 0 {
		return nil
	}

	layer := in.b
	if layer < 0 {
		layer += m.d.LayerCount(f.Key) + 1
		if layer <= 0 {
			return nil
		}
	}

	items := make([]item, 0, len(occs))
	for i := range occs {
		o := &occs[i]
		if layer != 0 && o.Layer != layer {
			continue
		}
		items = append(items, item{
			v:   o.Value,
			raw: o.Raw,
			loc: Location{Field: f.Key, Layer: o.Layer, Offset: o.Offset, Length: o.Length},
			src: true,
		})
	}
	return items
}

// slice applies byte ranges to every item. Items too short for any of the
// ranges are dropped.
func slice(items []item, ranges []Range, bits int) []item {
	out := make([]item, 0, len(items))
next:
	for _, it := range items {
		raw := it.bytes(bits)
		loc := it.loc

		var b []byte
		for _, r := range ranges {
			lo, hi, ok := r.bounds(len(raw))
			if !ok {
				continue next
			}
			if len(ranges) == 1 {
				b = raw[lo:hi:hi]
				if it.src && loc.Length == len(raw) {
					loc.Offset += lo
					loc.Length = hi - lo
				}
				break
			}
			b = append(b, raw[lo:hi]...)
		}
		if b == nil {
			b = []byte{}
		}
		out = append(out, item{v: Bytes(b), raw: b, loc: loc, src: it.src})
	}
	return out
}

// combine applies an arithmetic operator to every pair of items. Pairs the
// operator is undefined for are dropped.
func combine(op TestOp, ls, rs []item) []item {
	out := make([]item, 0, len(ls)*len(rs))
	for _, l := range ls {
		for _, r := range rs {
			if v, ok := arith(op, l.v, r.v); ok {
				out = append(out, item{v: v})
			}
		}
	}
	return out
}

// compare reports whether any pair of items satisfies op. The all-equal
// and all-different operators require every pair to be equal or different.
func (m *machine) compare(op TestOp, ls, rs []item) bool {
	if len(ls) == 0 || len(rs) == 0 {
		return false
	}

	if op == OpAllEq || op == OpAllNe {
		for _, l := range ls {
			for _, r := range rs {
				if !compareValues(op, l.v, r.v) {
					return false
				}
			}
		}
		if m.track {
			m.markAll(ls)
			m.markAll(rs)
		}
		return true
	}

	found := false
	for i := range ls {
		for j := range rs {
			if !compareValues(op, ls[i].v, rs[j].v) {
				continue
			}
			if !m.track {
				return true
			}
			found = true
			m.mark(ls[i])
			m.mark(rs[j])
		}
	}
	return found
}

func (m *machine) some(items []item, pred func(Value) bool) bool {
	found := false
	for i := range items {
		if !pred(items[i].v) {
			continue
		}
		if !m.track {
			return true
		}
		found = true
		m.mark(items[i])
	}
	return found
}

func (m *machine) mark(it item) {
	if it.src {
		m.locs = append(m.locs, it.loc)
	}
}

func (m *machine) markAll(items []item) {
	for _, it := range items {
		m.mark(it)
	}
}

func (m *machine) locations() []Location {
	if len(m.locs) == 0 {
		return nil
	}
	slices.SortFunc(m.locs, func(a, b Location) int {
		return cmp.Or(
			cmp.Compare(a.Offset, b.Offset),
			cmp.Compare(a.Length, b.Length),
			cmp.Compare(a.Field, b.Field),
			cmp.Compare(a.Layer, b.Layer),
		)
	})
	return slices.Compact(m.locs)
}

func match(re *regexp.Regexp, v Value) bool {
	if s, ok := v.(String); ok {
		return re.MatchString(string(s))
	}
	if b, ok := bytesOf(v); ok {
		return re.Match(b)
	}
	return false
}
