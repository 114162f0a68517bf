/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import (
	"fmt"
	"strings"
)

// function is a built-in display filter function.
type function struct {
	name    string
	minArgs int
	// maxArgs is negative for variadic functions.
	maxArgs int
	// field requires the arguments to be plain field references.
	field bool
	// literals allows literal arguments, typed like the first field.
	literals bool
	result   func(args []Type) (Type, error)
	call     func(args [][]item, bits []int) []item
}

var functions = map[string]*function{
	"len": {
		name: "len", minArgs: 1, maxArgs: 1,
		result: func(args []Type) (Type, error) {
			return TypeUint, nil
		},
		call: func(args [][]item, bits []int) []item {
			return mapItems(args[0], func(it item) (Value, bool) {
				if s, ok := it.v.(String); ok {
					return Uint(len(s)), true
				}
				return Uint(len(it.bytes(bits[0]))), true
			})
		},
	},
	"count": {
		name: "count", minArgs: 1, maxArgs: 1, field: true,
		result: func(args []Type) (Type, error) {
			return TypeUint, nil
		},
		call: func(args [][]item, bits []int) []item {
			return []item{{v: Uint(len(args[0]))}}
		},
	},
	"upper": {
		name: "upper", minArgs: 1, maxArgs: 1,
		result: stringResult,
		call: func(args [][]item, bits []int) []item {
			return mapItems(args[0], func(it item) (Value, bool) {
				s, ok := it.v.(String)
				return String(strings.ToUpper(string(s))), ok
			})
		},
	},
	"lower": {
		name: "lower", minArgs: 1, maxArgs: 1,
		result: stringResult,
		call: func(args [][]item, bits []int) []item {
			return mapItems(args[0], func(it item) (Value, bool) {
				s, ok := it.v.(String)
				return String(strings.ToLower(string(s))), ok
			})
		},
	},
	"string": {
		name: "string", minArgs: 1, maxArgs: 1,
		result: func(args []Type) (Type, error) {
			if args[0] == TypeProtocol {
				return TypeNone, fmt.Errorf("protocols cannot be converted to strings")
			}
			return TypeString, nil
		},
		call: func(args [][]item, bits []int) []item {
			return mapItems(args[0], func(it item) (Value, bool) {
				return String(display(it.v)), true
			})
		},
	},
	"abs": {
		name: "abs", minArgs: 1, maxArgs: 1,
		result: func(args []Type) (Type, error) {
			if !args[0].numeric() && args[0] != TypeDuration {
				return TypeNone, fmt.Errorf("expected a number, got %s", args[0])
			}
			return args[0], nil
		},
		call: func(args [][]item, bits []int) []item {
			return mapItems(args[0], func(it item) (Value, bool) {
				switch x := it.v.(type) {
				case Int:
					return max(x, -x), true
				case Duration:
					return max(x, -x), true
				}
				return it.v, true
			})
		},
	},
	"max": {
		name: "max", minArgs: 1, maxArgs: -1, literals: true,
		result: orderedResult,
		call: func(args [][]item, bits []int) []item {
			return extreme(args, 1)
		},
	},
	"min": {
		name: "min", minArgs: 1, maxArgs: -1, literals: true,
		result: orderedResult,
		call: func(args [][]item, bits []int) []item {
			return extreme(args, -1)
		},
	},
}

func stringResult(args []Type) (Type, error) {
	if args[0] != TypeString {
		return TypeNone, fmt.Errorf("expected %s, got %s", TypeString.indefinite(), args[0].indefinite())
	}
	return TypeString, nil
}

func orderedResult(args []Type) (Type, error) {
	for _, t := range args {
		if !t.ordered() || !compatible(args[0], t) {
			return TypeNone, fmt.Errorf("cannot compare %s with %s", args[0], t)
		}
	}
	return args[0], nil
}

func mapItems(items []item, fn func(item) (Value, bool)) []item {
	out := make([]item, 0, len(items))
	for _, it := range items {
		if v, ok := fn(it); ok {
			out = append(out, item{v: v})
		}
	}
	return out
}

// extreme returns the greatest value of all arguments for sign 1 and the
// least for sign -1.
func extreme(args [][]item, sign int) []item {
	var best *item
	for _, arg := range args {
		for i := range arg {
			if best == nil {
				best = &arg[i]
				continue
			}
			if c, ok := order(arg[i].v, best.v); ok && c*sign > 0 {
				best = &arg[i]
			}
		}
	}
	if best == nil {
		return nil
	}
	return []item{*best}
}

// display renders a value the way it is shown to users.
func display(v Value) string {
	switch x := v.(type) {
	case Bytes:
		parts := make([]string, len(x))
		for i, b := range x {
			parts[i] = fmt.Sprintf("%02x", b)
		}
		return strings.Join(parts, ":")
	case Duration:
		return x.String() + "s"
	}
	return v.String()
}
