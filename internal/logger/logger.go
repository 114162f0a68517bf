/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
)

type Logger struct {
	Logger *slog.Logger
	Level  slog.Level
	Format string
}

var (
	Levels  = []string{"debug", "info", "warn", "error"}
	Formats = []string{"json", "text"}
	level   slog.Level
)

// NewLogger returns a logger writing to stderr.
func NewLogger(levelStr, format string) (*Logger, error) {
	return newLogger(os.Stderr, levelStr, format)
}

func newLogger(w io.Writer, levelStr, format string) (*Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(levelStr)); err != nil {
		return nil, fmt.Errorf("unknown log level: %q", levelStr)
	}
	if format == "" {
		format = "json"
	}
	if !slices.Contains(Formats, format) {
		return nil, fmt.Errorf("unknown log format: %q", format)
	}
	level = l

	o := &slog.HandlerOptions{Level: level}
	if level == slog.LevelDebug {
		o.AddSource = true
	}

	var h slog.Handler = slog.NewJSONHandler(w, o)
	if format == "text" {
		h = slog.NewTextHandler(w, o)
	}

	return &Logger{
		Logger: slog.New(h),
		Level:  level,
		Format: format,
	}, nil
}

// Level returns the level of the most recently created logger.
func Level() slog.Level {
	return level
}
