/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_Precedence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"and binds tighter than or", "a or b and c", "(or a (and b c))"},
		{"and before or", "a and b or c", "(or (and a b) c)"},
		{"and binds tighter than xor", "a xor b and c", "(xor a (and b c))"},
		{"xor binds tighter than or", "a or b xor c", "(or a (xor b c))"},
		{"left associative", "a and b and c", "(and (and a b) c)"},
		{"not applies to the relation", "not a == 1", "(not (== a 1))"},
		{"not binds tighter than and", "not a and b", "(and (not a) b)"},
		{"bang", "!a", "(not a)"},
		{"double negation", "not not a", "(not (not a))"},
		{"arithmetic", "a == 1 + 2 * 3", "(== a (+ 1 (* 2 3)))"},
		{"subtraction is left associative", "a - 1 - 2", "(- (- a 1) 2)"},
		{"bitwise and", "a & 4 == 4", "(== (& a 4) 4)"},
		{"negation", "-a + 1", "(+ (- a) 1)"},
		{"negative literal", "a == -1", "(== a -1)"},
		{"grouping", "(a or b) and c", "(and (or a b) c)"},
		{"membership", "a in {1..3, 5}", "(in a {1..3, 5})"},
		{"negated membership", "a not in {1, 2}", "(not (in a {1, 2}))"},
		{"function", "len(a) > 2", "(> len(a) 2)"},
		{"function arguments", "max(a, b + 1) == 3", "(== max(a (+ b 1)) 3)"},
		{"layer", "a#2 == 1", "(== a#2 1)"},
		{"slice", "a[0:2] == 01:02", "(== a[0:2] 01:02)"},
		{"matches", `a matches "x"`, `(matches a "x")`},
		{"contains", `a contains "x"`, `(contains a "x")`},
		{"char constant", "a == 'x'", "(== a 'x')"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sexpr(tree))
		})
	}
}

func TestParser_Slices(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Range
	}{
		{"single byte", "f[1]", []Range{{Start: 1, Mode: RangeSingle}}},
		{"length", "f[1:2]", []Range{{Start: 1, End: 2, Mode: RangeLength}}},
		{"inclusive end", "f[1-2]", []Range{{Start: 1, End: 2, Mode: RangeEnd}}},
		{"to end", "f[1:]", []Range{{Start: 1, Mode: RangeToEnd}}},
		{"prefix", "f[:2]", []Range{{Start: 0, End: 2, Mode: RangeLength}}},
		{"negative offset", "f[-2:2]", []Range{{Start: -2, End: 2, Mode: RangeLength}}},
		{"list", "f[0, 2:1]", []Range{{Start: 0, Mode: RangeSingle}, {Start: 2, End: 1, Mode: RangeLength}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := Parse(tt.input)
			require.NoError(t, err)

			slice, ok := tree.(*SliceNode)
			require.True(t, ok, "expected SliceNode")
			assert.Equal(t, tt.expected, slice.Ranges)
			assert.Equal(t, len(tt.input), slice.Len)
		})
	}
}

func TestParser_Layers(t *testing.T) {
	tests := []struct {
		input string
		layer int
	}{
		{"ip.src#1", 1},
		{"ip.src#3", 3},
		{"ip.src#-1", -1},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tree, err := Parse(tt.input)
			require.NoError(t, err)

			field, ok := tree.(*FieldNode)
			require.True(t, ok, "expected FieldNode")
			assert.Equal(t, "ip.src", field.Name)
			assert.Equal(t, tt.layer, field.Layer)
			assert.Equal(t, len(tt.input), field.Len)
		})
	}
}

func TestParser_Sets(t *testing.T) {
	tree, err := Parse("tcp.port in {80, 443, 8000..8080}")
	require.NoError(t, err)

	test, ok := tree.(*TestNode)
	require.True(t, ok, "expected TestNode")
	set, ok := test.Right.(*SetNode)
	require.True(t, ok, "expected SetNode")
	require.Len(t, set.Elems, 3)
	assert.Nil(t, set.Elems[0].High)
	assert.Nil(t, set.Elems[1].High)
	assert.Equal(t, "8000", Format(set.Elems[2].Low))
	assert.Equal(t, "8080", Format(set.Elems[2].High))
	assert.Empty(t, set.Deprecated)

	tree, err = Parse("tcp.port in {80 443}")
	require.NoError(t, err)
	set = tree.(*TestNode).Right.(*SetNode)
	assert.Len(t, set.Elems, 2)
	assert.NotEmpty(t, set.Deprecated)
}

func TestParser_Spans(t *testing.T) {
	input := `not tcp.port == 80 and http.host contains "x"`
	tree, err := Parse(input)
	require.NoError(t, err)

	and := tree.(*TestNode)
	assert.Equal(t, 0, and.Pos)
	assert.Equal(t, len(input), and.Len)

	not := and.Left.(*TestNode)
	assert.Equal(t, OpNot, not.Op)
	assert.Equal(t, 0, not.Pos)
	assert.Equal(t, len("not tcp.port == 80"), not.Len)

	contains := and.Right.(*TestNode)
	assert.Equal(t, 23, contains.Pos)
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
	}{
		{"empty", "", "expected a field or value, got end of input"},
		{"unclosed paren", "(a == 1", "expected ')', got end of input"},
		{"trailing tokens", "a == 1 b", "expected end of input, got 'b'"},
		{"missing operand", "a ==", "expected a field or value"},
		{"dangling and", "a and", "expected a field or value"},
		{"empty set", "a in {}", "empty set"},
		{"set outside in", "{1, 2}", "sets are only allowed after 'in'"},
		{"in without set", "a in 1", "expected '{'"},
		{"zero layer", "a#0", "layer numbers start at 1"},
		{"zero length slice", "a[1:0]", "slice length must be positive"},
		{"reversed slice", "a[3-1]", "lies before start"},
		{"unclosed slice", "a[1", "expected ']'"},
		{"trailing comma in set", "a in {1,}", "expected a set element"},
		{"unclosed set", "a in {1", "expected '}'"},
		{"unclosed call", "len(a", "expected ','"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)

			var diag *Diagnostic
			require.ErrorAs(t, err, &diag)
			assert.Equal(t, StageParse, diag.Stage)
			assert.Contains(t, diag.Msg, tt.msg)
		})
	}
}

func TestParser_RoundTrip(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"tcp.port == 80 and (ip.addr == 10.0.0.1 or not udp)", "tcp.port == 80 and (ip.addr == 10.0.0.1 or not udp)"},
		{`http.host matches "a\\.b"`, `http.host matches "a\\.b"`},
		{`http.host matches r"a\.b"`, `http.host matches r"a\.b"`},
		{"eth.src[0:3, -1] == aa:bb:cc:dd", "eth.src[0:3, -1] == aa:bb:cc:dd"},
		{"len(http.host) > 3", "len(http.host) > 3"},
		{"tcp.port in {80, 443, 8000..8080}", "tcp.port in {80, 443, 8000..8080}"},
		{"ip.addr not in {10.0.0.1}", "not ip.addr in {10.0.0.1}"},
		{"a - (b - c) == 1", "a - (b - c) == 1"},
		{"-tcp.port + 1 == 0", "-tcp.port + 1 == 0"},
		{"a && b || c", "a and b or c"},
		{"ip.src#-1 eq 10.0.0.1", "ip.src#-1 == 10.0.0.1"},
		{`a == '\n'`, `a == '\n'`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tree, err := Parse(tt.input)
			require.NoError(t, err)
			text := Format(tree)
			assert.Equal(t, tt.expected, text)

			again, err := Parse(text)
			require.NoError(t, err)
			assert.Equal(t, sexpr(tree), sexpr(again))
		})
	}
}
