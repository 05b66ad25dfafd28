package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentAndLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "warn", true)
	t.Cleanup(func() { Init("info", false) })

	Info("hidden")
	Component("scheduler").Warn("tick failed", "error", "boom")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "tick failed", rec["msg"])
	assert.Equal(t, "scheduler", rec["component"])
	assert.Equal(t, "boom", rec["error"])
}

func TestWithContext(t *testing.T) {
	l := With("request_id", "abc")
	ctx := NewContext(context.Background(), l)
	assert.Same(t, l, WithContext(ctx))
	assert.Same(t, Get(), WithContext(context.Background()))
}
