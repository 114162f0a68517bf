/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/

// Package filter implements display filters: boolean expressions over
// protocol fields such as
//
//	tcp.port == 80 and ip.addr in {10.0.0.1, 10.0.0.2}
//
// Filter text is parsed, resolved against a field Registry, optimized and
// compiled to bytecode. The resulting Filter is immutable and may be used
// from multiple goroutines to evaluate Dissections.
//
//	f, err := filter.Compile(`http.host matches r"example\.(com|org)"`, registry)
//	if err != nil {
//		return err
//	}
//	if f.Match(packet) {
//		...
//	}
//
// A field may occur several times in a packet. Comparisons hold when any
// pair of occurrences satisfies them, so "ip.addr != 10.0.0.1" selects
// packets with at least one address other than 10.0.0.1. Use
// "not ip.addr == 10.0.0.1" or "ip.addr !== 10.0.0.1" to exclude it.
package filter

import (
	"log/slog"
	"slices"
)

// Filter is a compiled display filter.
type Filter struct {
	text     string
	tree     Node
	prog     *program
	warnings []*Diagnostic
}

type options struct {
	optimize bool
}

type Option func(*options)

// WithoutOptimizer compiles the resolved tree as is.
func WithoutOptimizer() Option {
	return func(o *options) {
		o.optimize = false
	}
}

// Compile turns filter text into a Filter. Rejected text yields an *Error
// listing every problem found.
func Compile(text string, reg Registry, opts ...Option) (*Filter, error) {
	o := options{optimize: true}
	for _, opt := range opts {
		opt(&o)
	}

	tree, err := Parse(text)
	if err != nil {
		if d, ok := err.(*Diagnostic); ok {
			return nil, &Error{Text: text, Diagnostics: []*Diagnostic{d}}
		}
		return nil, err
	}

	tree, diags := Resolve(tree, reg)
	if len(diags) > 0 {
		return nil, &Error{Text: text, Diagnostics: diags}
	}
	warnings := deprecations(tree)
	if o.optimize {
		tree = Optimize(tree)
	}

	f := &Filter{
		text:     text,
		tree:     tree,
		prog:     generate(tree),
		warnings: warnings,
	}
	slog.Debug("Compiled display filter.",
		"filter", text,
		"instructions", len(f.prog.code),
		"optimized", o.optimize,
	)
	return f, nil
}

func deprecations(tree Node) []*Diagnostic {
	var warnings []*Diagnostic
	Walk(tree, func(n Node) bool {
		b := n.base()
		if b.Deprecated != "" {
			warnings = append(warnings, diagf(StageSemantic, b.Pos, b.Len, "%s", b.Deprecated))
		}
		return true
	})
	slices.SortStableFunc(warnings, func(a, b *Diagnostic) int {
		return a.Pos - b.Pos
	})
	return warnings
}

// String returns the filter text.
func (f *Filter) String() string {
	return f.text
}

// Tree returns a copy of the tree the filter was compiled from.
func (f *Filter) Tree() Node {
	return Clone(f.tree)
}

// Warnings returns deprecation notices for accepted but outdated syntax.
func (f *Filter) Warnings() []*Diagnostic {
	return slices.Clone(f.warnings)
}

// Fields returns the fields the filter reads in order of first use.
func (f *Filter) Fields() []*FieldInfo {
	return slices.Clone(f.prog.fields)
}

// Disassemble returns a listing of the compiled bytecode.
func (f *Filter) Disassemble() string {
	return f.prog.Disassemble()
}

// Match reports whether d satisfies the filter.
func (f *Filter) Match(d Dissection) bool {
	ok, _ := f.prog.run(d, false)
	return ok
}

// MatchLocations reports whether d satisfies the filter along with the
// packet regions of the field occurrences that satisfied a comparison.
func (f *Filter) MatchLocations(d Dissection) (bool, []Location) {
	return f.prog.run(d, true)
}
