/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import (
	"errors"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolve(t *testing.T, input string) Node {
	t.Helper()
	tree, err := Parse(input)
	require.NoError(t, err)
	resolved, diags := Resolve(tree, registry)
	require.Empty(t, diags)
	return resolved
}

// firstValue returns the first typed value found in n.
func firstValue(n Node) *ValueNode {
	var v *ValueNode
	Walk(n, func(n Node) bool {
		if x, ok := n.(*ValueNode); ok && v == nil {
			v = x
		}
		return v == nil
	})
	return v
}

func TestResolve_Coercion(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Value
	}{
		{"integer to unsigned", "tcp.port == 80", Uint(80)},
		{"hex integer", "tcp.port == 0x50", Uint(80)},
		{"octal integer", "tcp.port == 0120", Uint(80)},
		{"char to unsigned", "ip.proto == 'a'", Uint(97)},
		{"integer to signed", "tcp.offset == -5", Int(-5)},
		{"integer to boolean", "tcp.flags.syn == 1", Bool(true)},
		{"word to boolean", "tcp.flags.syn == false", Bool(false)},
		{"string", `http.host == "example.com"`, String("example.com")},
		{"char to string", "http.host == 'x'", String("x")},
		{"string to bytes", `tcp.payload == "GET"`, Bytes("GET")},
		{"hex to bytes", "tcp.payload == 0x474554", Bytes("GET")},
		{"decimal to byte", "tcp.payload == 71", Bytes{71}},
		{"colon separated bytes", "tcp.payload == 47:45:54", Bytes("GET")},
		{"dot separated bytes", "tcp.payload == 47.45.54", Bytes("GET")},
		{"plain hex bytes", "tcp.payload == ab", Bytes{0xab}},
		{"ethernet", "eth.src == aa:bb:cc:dd:ee:ff", mac("aa:bb:cc:dd:ee:ff")},
		{"ethernet string", `eth.src == "aa-bb-cc-dd-ee-ff"`, mac("aa:bb:cc:dd:ee:ff")},
		{"ipv4", "ip.src == 10.0.0.1", NewAddr(netip.MustParseAddr("10.0.0.1"))},
		{"ipv4 network", "ip.src == 10.0.0.0/8", Addr(netip.MustParsePrefix("10.0.0.0/8"))},
		{"ipv4 network with host bits", "ip.src == 10.1.2.3/8", Addr(netip.MustParsePrefix("10.0.0.0/8"))},
		{"ipv4 string", `ip.src == "192.168.0.1"`, NewAddr(netip.MustParseAddr("192.168.0.1"))},
		{"ipv6", "ipv6.addr == 2001:db8::1", NewAddr(netip.MustParseAddr("2001:db8::1"))},
		{"fractional seconds", "frame.time_delta > 1.5", Duration(1500 * time.Millisecond)},
		{"duration with unit", "frame.time_delta > 150ms", Duration(150 * time.Millisecond)},
		{"integer seconds", "frame.time_delta > 2", Duration(2 * time.Second)},
		{"value on the left", "80 == tcp.port", Uint(80)},
		{"set element", "tcp.port in {443}", Uint(443)},
		{"arithmetic operand", "tcp.port + 1 == 81", Uint(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := firstValue(resolve(t, tt.input))
			require.NotNil(t, v)
			assert.Equal(t, tt.expected.Type(), v.Type)
			assert.Equal(t, tt.expected.Type(), v.Value.Type())
			assert.Equal(t, literal(tt.expected), literal(v.Value))
		})
	}
}

func TestResolve_Presence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"protocol", "tcp", "(exists tcp)"},
		{"field", "ip.src", "(exists ip.src)"},
		{"boolean field", "tcp.flags.syn", "(== tcp.flags.syn true)"},
		{"slice", "tcp.payload[0]", "(exists tcp.payload[0])"},
		{"layer", "ip.src#2", "(exists ip.src#2)"},
		{"bitwise and", "tcp.flags & 0x02", "(nonzero (& tcp.flags 2))"},
		{"boolean literal", "true", "true"},
		{"negated", "not tcp", "(not (exists tcp))"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sexpr(resolve(t, tt.input)))
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
	}{
		{"unknown field", "nosuch.field == 1", `no such field "nosuch.field"`},
		{"unknown bare field", "nosuch", `no such field "nosuch"`},
		{"unknown sliced field", "nosuch[0] == 1", `no such field "nosuch"`},
		{"unknown field with layer", "nosuch#1", `no such field "nosuch"`},
		{"two literals", "foo == bar", `no such field "foo"`},
		{"integer for string", "http.host == 80", "cannot be compared with a character string"},
		{"out of range", "ip.ttl == 256", "out of range for a 8-bit"},
		{"negative unsigned", "tcp.port == -1", "is negative"},
		{"invalid boolean", "tcp.flags.syn == 2", "not a valid boolean"},
		{"invalid address", "ip.src == 10.0.0.256", "not a valid IPv4 address"},
		{"address family", "ip.src == ::1", "not a valid IPv4 address"},
		{"invalid ethernet", "eth.src == aa:bb", "not a valid Ethernet address"},
		{"incompatible fields", "ip.src == tcp.port", "cannot compare an IPv4 address with an unsigned integer"},
		{"integer for ethernet", "eth.src == 1", "integer 1 cannot be compared with an Ethernet address"},
		{"address with ethernet", "ip.src == eth.src", "cannot compare an IPv4 address with an Ethernet address"},
		{"ordering booleans", "tcp.flags.syn > 0", "cannot be ordered"},
		{"contains on integers", "tcp.port contains 80", "contains requires"},
		{"invalid regular expression", `http.host matches "("`, "invalid regular expression"},
		{"matches on integers", `tcp.port matches "8"`, "matches requires"},
		{"matches without string", "http.host matches foo", "quoted regular expression"},
		{"unknown function", "foo(tcp.port) == 1", "no such function foo()"},
		{"wrong arity", "len(tcp.port, ip.src) == 1", "len() expects 1 argument(s), got 2"},
		{"count of literal", "count(80) == 1", "count() requires a field"},
		{"upper of integer", `upper(tcp.port) == "A"`, "expected a character string"},
		{"function as test", "len(http.host)", "not a boolean"},
		{"arithmetic as test", "tcp.port + 1", "is not a test"},
		{"field in set", "tcp.port in {ip.ttl}", "set elements must be constant values"},
		{"range of booleans", "tcp.flags.syn in {0..1}", "ranges require ordered values"},
		{"duration product", "frame.time_delta * 2 > 1", "cannot apply *"},
		{"negated address", "-ip.src == 1", "cannot negate an IPv4 address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.input, registry)
			require.Error(t, err)

			var ferr *Error
			require.ErrorAs(t, err, &ferr)
			assert.Equal(t, tt.input, ferr.Text)

			var diag *Diagnostic
			require.ErrorAs(t, err, &diag)
			assert.Equal(t, StageSemantic, diag.Stage)
			assert.Contains(t, diag.Msg, tt.msg)
		})
	}
}

func TestResolve_CollectsAllErrors(t *testing.T) {
	_, err := Compile("nosuch.a == 1 and nosuch.b == 2 or tcp.port == x", registry)
	require.Error(t, err)

	var ferr *Error
	require.True(t, errors.As(err, &ferr))
	require.Len(t, ferr.Diagnostics, 3)
	assert.Equal(t, 0, ferr.Diagnostics[0].Pos)
	assert.Equal(t, 18, ferr.Diagnostics[1].Pos)
	assert.Equal(t, 47, ferr.Diagnostics[2].Pos)
	assert.Contains(t, err.Error(), `no such field "nosuch.b"`)
}

func TestResolve_Deprecations(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
	}{
		{"field alias", "tcp.flags.rst", "tcp.flags.rst is deprecated, use tcp.flags.reset"},
		{"unquoted string", "http.host == example.com", `unquoted string "example.com"`},
		{"whitespace separated set", "tcp.port in {80 443}", "separated by whitespace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.input, registry)
			require.NoError(t, err)

			warnings := f.Warnings()
			require.Len(t, warnings, 1)
			assert.Contains(t, warnings[0].Msg, tt.msg)
		})
	}

	f := mustCompile("tcp.port == 80")
	assert.Empty(t, f.Warnings())
}

func TestDiagnostic_Underline(t *testing.T) {
	_, err := Compile("tcp.port == 80 and nosuch", registry)
	require.Error(t, err)

	var diag *Diagnostic
	require.ErrorAs(t, err, &diag)
	text := "tcp.port == 80 and nosuch"
	assert.Equal(t, text+"\n"+strings.Repeat(" ", 19)+"^^^^^^", diag.Underline(text))
	assert.Equal(t, `semantic error at position 19: no such field "nosuch"`, diag.Error())
}
