/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// Value is a typed value carried by a field occurrence or a literal.
type Value interface {
	Type() Type
	String() string
}

type (
	Bool     bool
	Uint     uint64
	Int      int64
	String   string
	Bytes    []byte
	Ether    []byte
	Duration time.Duration
	// Addr is an IP address or, when the prefix is shorter than the
	// address, a network.
	Addr netip.Prefix
)

func (Bool) Type() Type     { return TypeBool }
func (Uint) Type() Type     { return TypeUint }
func (Int) Type() Type      { return TypeInt }
func (String) Type() Type   { return TypeString }
func (Bytes) Type() Type    { return TypeBytes }
func (Ether) Type() Type    { return TypeEther }
func (Duration) Type() Type { return TypeDuration }

func (a Addr) Type() Type {
	if netip.Prefix(a).Addr().Is4() {
		return TypeIPv4
	}
	return TypeIPv6
}

func (b Bool) String() string   { return strconv.FormatBool(bool(b)) }
func (u Uint) String() string   { return strconv.FormatUint(uint64(u), 10) }
func (i Int) String() string    { return strconv.FormatInt(int64(i), 10) }
func (s String) String() string { return string(s) }
func (e Ether) String() string  { return net.HardwareAddr(e).String() }

func (b Bytes) String() string {
	if len(b) == 0 {
		return ""
	}
	return "0x" + hex.EncodeToString(b)
}

func (d Duration) String() string {
	return strconv.FormatFloat(time.Duration(d).Seconds(), 'f', -1, 64)
}

func (a Addr) String() string {
	if a.exact() {
		return netip.Prefix(a).Addr().String()
	}
	return netip.Prefix(a).String()
}

// NewAddr returns the Addr holding the single address a.
func NewAddr(a netip.Addr) Addr {
	return Addr(netip.PrefixFrom(a, a.BitLen()))
}

func (a Addr) exact() bool {
	p := netip.Prefix(a)
	return p.Bits() == p.Addr().BitLen()
}

func bytesOf(v Value) ([]byte, bool) {
	switch x := v.(type) {
	case Bytes:
		return x, true
	case Ether:
		return x, true
	case String:
		return []byte(x), true
	}
	return nil, false
}

// encode returns the network byte order representation of v. Integers
// are written with the given width in bits.
func encode(v Value, bits int) []byte {
	width := (bits + 7) / 8
	if width <= 0 || width > 8 {
		width = 8
	}
	switch x := v.(type) {
	case Uint, Int:
		var u uint64
		if i, ok := x.(Int); ok {
			u = uint64(i)
		} else {
			u = uint64(x.(Uint))
		}
		buf := binary.BigEndian.AppendUint64(nil, u)
		return buf[8-width:]
	case Bool:
		if x {
			return []byte{1}
		}
		return []byte{0}
	case Duration:
		return binary.BigEndian.AppendUint64(nil, uint64(x))
	case Addr:
		return netip.Prefix(x).Addr().AsSlice()
	}
	b, _ := bytesOf(v)
	return b
}

func equal(a, b Value) bool {
	switch x := a.(type) {
	case Uint:
		switch y := b.(type) {
		case Uint:
			return x == y
		case Int:
			return y >= 0 && uint64(y) == uint64(x)
		}
		return false
	case Int:
		switch y := b.(type) {
		case Int:
			return x == y
		case Uint:
			return x >= 0 && uint64(x) == uint64(y)
		}
		return false
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Duration:
		y, ok := b.(Duration)
		return ok && x == y
	case Addr:
		y, ok := b.(Addr)
		return ok && addrEqual(x, y)
	case String:
		if y, ok := b.(String); ok {
			return x == y
		}
	}
	ab, ok := bytesOf(a)
	if !ok {
		return false
	}
	bb, ok := bytesOf(b)
	return ok && bytes.Equal(ab, bb)
}

// addrEqual treats a network as equal to every address it contains.
func addrEqual(x, y Addr) bool {
	px, py := netip.Prefix(x), netip.Prefix(y)
	if px.Addr().Is4() != py.Addr().Is4() {
		return false
	}
	switch {
	case x.exact() && y.exact():
		return px.Addr() == py.Addr()
	case y.exact():
		return px.Contains(py.Addr())
	case x.exact():
		return py.Contains(px.Addr())
	}
	return px.Masked() == py.Masked()
}

// order compares a and b. The second result is false when the values are
// not ordered relative to each other.
func order(a, b Value) (int, bool) {
	switch x := a.(type) {
	case Uint:
		switch y := b.(type) {
		case Uint:
			return cmpOrdered(x, y), true
		case Int:
			if y < 0 {
				return 1, true
			}
			return cmpOrdered(uint64(x), uint64(y)), true
		}
		return 0, false
	case Int:
		switch y := b.(type) {
		case Int:
			return cmpOrdered(x, y), true
		case Uint:
			if x < 0 {
				return -1, true
			}
			return cmpOrdered(uint64(x), uint64(y)), true
		}
		return 0, false
	case Duration:
		y, ok := b.(Duration)
		return cmpOrdered(x, y), ok
	case Addr:
		y, ok := b.(Addr)
		if !ok || x.Type() != y.Type() {
			return 0, false
		}
		return netip.Prefix(x).Masked().Addr().Compare(netip.Prefix(y).Masked().Addr()), true
	case String:
		if y, ok := b.(String); ok {
			return strings.Compare(string(x), string(y)), true
		}
	case Bool:
		return 0, false
	}
	ab, ok := bytesOf(a)
	if !ok {
		return 0, false
	}
	bb, ok := bytesOf(b)
	if !ok {
		return 0, false
	}
	return bytes.Compare(ab, bb), true
}

func cmpOrdered[T ~int64 | ~uint64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func contains(a, b Value) bool {
	if x, ok := a.(String); ok {
		if y, ok := b.(String); ok {
			return strings.Contains(string(x), string(y))
		}
	}
	ab, ok := bytesOf(a)
	if !ok {
		return false
	}
	bb, ok := bytesOf(b)
	return ok && bytes.Contains(ab, bb)
}

// compareValues applies a comparison operator to a single pair of values.
func compareValues(op TestOp, a, b Value) bool {
	switch op {
	case OpEq, OpAllEq:
		return equal(a, b)
	case OpNe, OpAllNe:
		return !equal(a, b)
	case OpContains:
		return contains(a, b)
	}
	c, ok := order(a, b)
	if !ok {
		return false
	}
	switch op {
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	}
	return false
}

// arith applies an arithmetic operator. The second result is false when
// the operation is undefined for the operands, such as a division by zero.
func arith(op TestOp, a, b Value) (Value, bool) {
	if x, ok := a.(Duration); ok {
		y, ok := b.(Duration)
		if !ok {
			return nil, false
		}
		switch op {
		case OpAdd:
			return x + y, true
		case OpSub:
			return x - y, true
		}
		return nil, false
	}

	x, y := a, b
	if _, ok := x.(Int); ok {
		y = asInt(y)
	} else if _, ok := y.(Int); ok {
		x = asInt(x)
	}

	switch l := x.(type) {
	case Uint:
		r, ok := y.(Uint)
		if !ok {
			return nil, false
		}
		switch op {
		case OpAdd:
			return l + r, true
		case OpSub:
			return l - r, true
		case OpMul:
			return l * r, true
		case OpDiv:
			if r == 0 {
				return nil, false
			}
			return l / r, true
		case OpMod:
			if r == 0 {
				return nil, false
			}
			return l % r, true
		case OpBitAnd:
			return l & r, true
		}
	case Int:
		r, ok := y.(Int)
		if !ok {
			return nil, false
		}
		switch op {
		case OpAdd:
			return l + r, true
		case OpSub:
			return l - r, true
		case OpMul:
			return l * r, true
		case OpDiv:
			if r == 0 {
				return nil, false
			}
			return l / r, true
		case OpMod:
			if r == 0 {
				return nil, false
			}
			return l % r, true
		case OpBitAnd:
			return l & r, true
		}
	}
	return nil, false
}

func asInt(v Value) Value {
	if u, ok := v.(Uint); ok {
		return Int(u)
	}
	return v
}

func negate(v Value) (Value, bool) {
	switch x := v.(type) {
	case Int:
		return -x, true
	case Uint:
		return Int(-int64(x)), true
	case Duration:
		return -x, true
	}
	return nil, false
}

func nonZero(v Value) bool {
	switch x := v.(type) {
	case Uint:
		return x != 0
	case Int:
		return x != 0
	case Bool:
		return bool(x)
	case Duration:
		return x != 0
	}
	b, ok := bytesOf(v)
	if !ok {
		return false
	}
	for _, c := range b {
		if c != 0 {
			return true
		}
	}
	return false
}

// quote renders s as a string literal the lexer reads back unchanged.
func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			if c < 0x20 || c == 0x7f {
				sb.WriteString(`\x`)
				sb.WriteString(hex.EncodeToString([]byte{c}))
				continue
			}
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// literal renders v as filter text.
func literal(v Value) string {
	switch x := v.(type) {
	case String:
		return quote(string(x))
	case Bytes:
		if len(x) == 0 {
			return `""`
		}
	}
	return v.String()
}
