package utils

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerPrefixAndArgs(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, slog.LevelDebug)
	ctx := WithDefaultArgs(context.Background(), "doc", "abc")
	log.InfoCtx(ctx, "commit", "changes", 3)
	out := buf.String()
	assert.Contains(t, out, "[yrb] commit")
	assert.Contains(t, out, "changes=3")
	assert.Contains(t, out, "doc=abc")

	buf.Reset()
	log.Debug("plain")
	assert.Contains(t, buf.String(), "[yrb] plain")
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, ParseLevel("warn"))
	log.Info("hidden")
	assert.Equal(t, 0, buf.Len())
	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
