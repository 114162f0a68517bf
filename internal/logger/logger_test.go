/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReturnsLoggerForValidConfig(t *testing.T) {
	for _, format := range Formats {
		for _, lvl := range Levels {
			l, err := NewLogger(lvl, format)
			assert.NoError(t, err, "%s/%s", format, lvl)
			assert.NotNil(t, l)
			assert.Equal(t, format, l.Format)
		}
	}
}

func newDefaultsToJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "info", "")
	require.NoError(t, err)
	assert.Equal(t, "json", l.Format)

	l.Logger.Info("Compiled display filter.", "instructions", 3)
	assert.Contains(t, buf.String(), `"msg":"Compiled display filter."`)
	assert.Contains(t, buf.String(), `"instructions":3`)
}

func newWritesText(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "warn", "text")
	require.NoError(t, err)

	l.Logger.Info("dropped")
	l.Logger.Warn("kept", "field", "tcp.port")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept field=tcp.port")
}

func newReturnsErrorForInvalidConfig(t *testing.T) {
	_, err := NewLogger("verbose", "json")
	assert.EqualError(t, err, `unknown log level: "verbose"`)

	_, err = NewLogger("info", "xml")
	assert.EqualError(t, err, `unknown log format: "xml"`)
}

func levelReturnsLastLevel(t *testing.T) {
	_, err := NewLogger("debug", "text")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, Level())

	_, err = NewLogger("error", "json")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, Level())
}

func TestLogger(t *testing.T) {
	t.Run("logger.NewLogger returns logger for valid config", newReturnsLoggerForValidConfig)
	t.Run("logger.NewLogger defaults to json", newDefaultsToJSON)
	t.Run("logger.NewLogger writes text", newWritesText)
	t.Run("logger.NewLogger returns error for invalid config", newReturnsErrorForInvalidConfig)
	t.Run("logger.Level returns level of last logger", levelReturnsLastLevel)
}
