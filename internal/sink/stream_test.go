/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package sink

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func targetStream_WriterValid(t *testing.T) {
	for _, writer := range StreamWriters {
		stream := &Stream{
			Enable: true,
			Writer: writer,
		}
		handler, err := stream.TargetStream(&slog.HandlerOptions{})
		assert.Nil(t, err)
		assert.NotNil(t, handler)
		assert.IsType(t, &slog.JSONHandler{}, handler)
	}
}

func targetStream_WriterInvalid(t *testing.T) {
	stream := &Stream{
		Enable: true,
		Writer: "invalid-writer",
	}
	handler, err := stream.TargetStream(&slog.HandlerOptions{})
	assert.NotNil(t, err)
	assert.Nil(t, handler)
	assert.EqualError(t, err, "invalid stream writer specified: \"invalid-writer\"")
}

func targetStream_WriterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matches.json")
	stream := &Stream{
		Enable: true,
		Writer: "file://" + path,
	}
	handler, err := stream.TargetStream(&slog.HandlerOptions{})
	require.NoError(t, err)
	defer func() {
		_ = stream.file.Close()
	}()
	assert.IsType(t, &slog.JSONHandler{}, handler)
	assert.FileExists(t, path)

	stream = &Stream{Enable: true, Writer: "file:///nonexistent/dir/matches.json"}
	_, err = stream.TargetStream(&slog.HandlerOptions{})
	assert.Error(t, err)

	stream = &Stream{Enable: true, Writer: "file://"}
	_, err = stream.TargetStream(&slog.HandlerOptions{})
	assert.EqualError(t, err, "invalid stream writer specified: \"file://\"")
}

func TestSinkTargetStream(t *testing.T) {
	t.Run("TargetStream returns valid handler if writer valid", targetStream_WriterValid)
	t.Run("TargetStream returns error if writer invalid", targetStream_WriterInvalid)
	t.Run("TargetStream appends to file writer", targetStream_WriterFile)
}
