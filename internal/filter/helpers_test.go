/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import (
	"fmt"
	"strings"
	"sync"
)

type testRegistry map[string]*FieldInfo

func (r testRegistry) Lookup(name string) (*FieldInfo, bool) {
	f, ok := r[name]
	return f, ok
}

var testFields = []FieldInfo{
	{Name: "frame.len", Type: TypeUint, Bits: 32},
	{Name: "frame.time_delta", Type: TypeDuration},
	{Name: "eth.src", Type: TypeEther},
	{Name: "eth.addr", Type: TypeEther, Multiple: true},
	{Name: "ip", Type: TypeProtocol},
	{Name: "ip.src", Type: TypeIPv4},
	{Name: "ip.addr", Type: TypeIPv4, Multiple: true},
	{Name: "ip.ttl", Type: TypeUint, Bits: 8},
	{Name: "ip.proto", Type: TypeUint, Bits: 8},
	{Name: "ipv6.addr", Type: TypeIPv6, Multiple: true},
	{Name: "tcp", Type: TypeProtocol},
	{Name: "tcp.port", Type: TypeUint, Bits: 16, Multiple: true},
	{Name: "tcp.len", Type: TypeUint, Bits: 32},
	{Name: "tcp.offset", Type: TypeInt, Bits: 32},
	{Name: "tcp.flags", Type: TypeUint, Bits: 8},
	{Name: "tcp.flags.syn", Type: TypeBool},
	{Name: "tcp.flags.ack", Type: TypeBool},
	{Name: "tcp.flags.reset", Type: TypeBool},
	{Name: "tcp.flags.rst", Type: TypeBool, Deprecated: "tcp.flags.reset"},
	{Name: "tcp.payload", Type: TypeBytes},
	{Name: "udp", Type: TypeProtocol},
	{Name: "udp.port", Type: TypeUint, Bits: 16, Multiple: true},
	{Name: "http.host", Type: TypeString},
	{Name: "http.user_agent", Type: TypeString},
	{Name: "vlan.id", Type: TypeUint, Bits: 12},
}

var registry = func() testRegistry {
	reg := make(testRegistry, len(testFields))
	for i := range testFields {
		f := testFields[i]
		f.Key = FieldKey(i + 1)
		reg[f.Name] = &f
	}
	return reg
}()

// testPacket is a Dissection assembled field by field. Occurrences are laid
// out back to back so every one has its own packet region.
type testPacket struct {
	occs map[FieldKey][]Occurrence
	next int

	mu    sync.Mutex
	reads map[FieldKey]int
}

func packet() *testPacket {
	return &testPacket{
		occs:  make(map[FieldKey][]Occurrence),
		reads: make(map[FieldKey]int),
	}
}

func (p *testPacket) Occurrences(key FieldKey) []Occurrence {
	p.mu.Lock()
	p.reads[key]++
	p.mu.Unlock()
	return p.occs[key]
}

func (p *testPacket) LayerCount(key FieldKey) int {
	n := 0
	for _, o := range p.occs[key] {
		n = max(n, o.Layer)
	}
	return n
}

func (p *testPacket) with(name string, values ...Value) *testPacket {
	return p.withLayer(name, 1, values...)
}

func (p *testPacket) withLayer(name string, layer int, values ...Value) *testPacket {
	f, ok := registry.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("unknown test field %q", name))
	}
	for _, v := range values {
		raw := encode(v, f.Width())
		if _, ok := bytesOf(v); !ok && f.Type != TypeUint {
			raw = nil
		}
		o := Occurrence{Layer: layer, Offset: p.next, Length: len(encode(v, f.Width())), Value: v, Raw: raw}
		p.occs[f.Key] = append(p.occs[f.Key], o)
		p.next += o.Length
	}
	return p
}

// read reports how often the field was loaded.
func (p *testPacket) read(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads[registry[name].Key]
}

func ip(s string) Value {
	v, err := parseAddr(s, TypeIPv4)
	if err != nil {
		v, err = parseAddr(s, TypeIPv6)
	}
	if err != nil {
		panic(err)
	}
	return v
}

func mac(s string) Value {
	v, err := parseEther(s)
	if err != nil {
		panic(err)
	}
	return v
}

func mustCompile(text string, opts ...Option) *Filter {
	f, err := Compile(text, registry, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// sexpr renders a tree with explicit grouping.
func sexpr(n Node) string {
	switch x := n.(type) {
	case *TestNode:
		if x.Right == nil {
			return "(" + x.Op.String() + " " + sexpr(x.Left) + ")"
		}
		return "(" + x.Op.String() + " " + sexpr(x.Left) + " " + sexpr(x.Right) + ")"
	case *FunctionNode:
		args := make([]string, len(x.Args))
		for i, arg := range x.Args {
			args[i] = sexpr(arg)
		}
		return x.Name + "(" + strings.Join(args, " ") + ")"
	}
	return Format(n)
}
