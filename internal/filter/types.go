/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import "strings"

// Type is the declared type of a protocol field or a typed value.
type Type uint8

const (
	TypeNone Type = iota
	TypeProtocol
	TypeBool
	TypeUint
	TypeInt
	TypeString
	TypeBytes
	TypeEther
	TypeIPv4
	TypeIPv6
	TypeDuration
)

var typeNames = [...]string{
	TypeNone:     "none",
	TypeProtocol: "protocol",
	TypeBool:     "boolean",
	TypeUint:     "unsigned integer",
	TypeInt:      "signed integer",
	TypeString:   "character string",
	TypeBytes:    "byte sequence",
	TypeEther:    "Ethernet address",
	TypeIPv4:     "IPv4 address",
	TypeIPv6:     "IPv6 address",
	TypeDuration: "time offset",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// indefinite returns the type name preceded by "a" or "an".
func (t Type) indefinite() string {
	name := t.String()
	if strings.ContainsRune("aeiouAEIOU", rune(name[0])) {
		return "an " + name
	}
	return "a " + name
}

func (t Type) numeric() bool {
	return t == TypeUint || t == TypeInt
}

func (t Type) bytesLike() bool {
	return t == TypeBytes || t == TypeProtocol || t == TypeEther || t == TypeString
}

func (t Type) address() bool {
	return t == TypeIPv4 || t == TypeIPv6
}

// ordered reports whether values of t support < and >.
func (t Type) ordered() bool {
	return t != TypeBool && t != TypeNone
}

// compatible reports whether values of a and b can be compared.
func compatible(a, b Type) bool {
	switch {
	case a == b:
		return true
	case a.numeric() && b.numeric():
		return true
	case a.bytesLike() && b.bytesLike():
		return true
	}
	return false
}

// FieldKey identifies a field within a registry and a dissection.
type FieldKey int

// FieldInfo describes a protocol field known to a registry.
type FieldInfo struct {
	Key         FieldKey
	Name        string
	Description string
	Type        Type
	// Bits is the width of integer fields, zero means 64.
	Bits int
	// Multiple is set when the field may occur more than once per layer.
	Multiple bool
	// Deprecated names the replacement of an alias kept for old filters.
	Deprecated string
}

// Width returns the integer width of the field in bits.
func (f *FieldInfo) Width() int {
	if f.Bits <= 0 || f.Bits > 64 {
		return 64
	}
	return f.Bits
}

// Registry resolves field names to field descriptions.
type Registry interface {
	Lookup(name string) (*FieldInfo, bool)
}
