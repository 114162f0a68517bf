/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import (
	"fmt"
	"strings"
)

// Stage names the compilation stage that produced a diagnostic.
type Stage uint8

const (
	StageLex Stage = iota
	StageParse
	StageSemantic
)

func (s Stage) String() string {
	switch s {
	case StageLex:
		return "lex"
	case StageParse:
		return "parse"
	}
	return "semantic"
}

// Diagnostic reports a problem with filter text and where it occurred.
type Diagnostic struct {
	Stage Stage
	Msg   string
	Pos   int
	Len   int
}

func diagf(stage Stage, pos, length int, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Stage: stage,
		Msg:   fmt.Sprintf(format, args...),
		Pos:   pos,
		Len:   length,
	}
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s error at position %d: %s", d.Stage, d.Pos, d.Msg)
}

// Underline renders text with carets below the span of the diagnostic.
func (d *Diagnostic) Underline(text string) string {
	pos := min(max(d.Pos, 0), len(text))
	n := max(d.Len, 1)
	return text + "\n" + strings.Repeat(" ", pos) + strings.Repeat("^", n)
}

// Error is returned by Compile when filter text is rejected.
type Error struct {
	Text        string
	Diagnostics []*Diagnostic
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = d.Error()
	}
	return fmt.Sprintf("invalid filter %q: %s", e.Text, strings.Join(msgs, "; "))
}

func (e *Error) Unwrap() []error {
	errs := make([]error, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		errs[i] = d
	}
	return errs
}
