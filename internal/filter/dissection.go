/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

// Occurrence is one instance of a field within a dissected packet.
type Occurrence struct {
	// Layer numbers the protocol layers holding the field, starting at 1
	// for the outermost.
	Layer  int
	Offset int
	Length int
	Value  Value
	// Raw holds the packet bytes the value was decoded from. It may be nil
	// for values that do not come from packet data.
	Raw []byte
}

// Dissection is the per-packet result of protocol dissection.
type Dissection interface {
	// Occurrences returns the occurrences of a field in packet order. The
	// returned slice must not be modified by the caller.
	Occurrences(key FieldKey) []Occurrence
	// LayerCount returns the number of protocol layers holding the field.
	LayerCount(key FieldKey) int
}

// Location is a region of the packet that contributed to a match.
type Location struct {
	Field  FieldKey
	Layer  int
	Offset int
	Length int
}
