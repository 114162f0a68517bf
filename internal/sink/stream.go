/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package sink

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// StreamWriters are the named writers. Any other writer must be a
// file:// URL, records are appended to that file.
var StreamWriters = []string{"stdout", "stderr", "discard"}

type Stream struct {
	Enable bool
	Writer string
	file   *os.File
}

func (s *Stream) TargetStream(options *slog.HandlerOptions) (slog.Handler, error) {
	slog.Debug("Initializing stream sink.", "writer", s.Writer)

	var w io.Writer
	switch s.Writer {
	case "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	case "discard":
		w = io.Discard
	default:
		path, ok := strings.CutPrefix(s.Writer, "file://")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid stream writer specified: %q", s.Writer)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, err
		}
		s.file = f
		w = f
	}

	return slog.NewJSONHandler(w, options), nil
}
