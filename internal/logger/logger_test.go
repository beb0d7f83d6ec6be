package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function to restore original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()

	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		reconfigure()
	}

	return buf, cleanup
}

// ============================================================================
// Level Filtering Tests
// ============================================================================

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		output := buf.String()
		assert.Contains(t, output, "debug message")
		assert.Contains(t, output, "info message")
		assert.Contains(t, output, "warn message")
		assert.Contains(t, output, "error message")
	})

	t.Run("InfoLevelFiltersDebug", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")

		Debug("debug message")
		Info("info message")

		output := buf.String()
		assert.NotContains(t, output, "debug message")
		assert.Contains(t, output, "info message")
	})

	t.Run("ErrorLevelShowsOnlyErrors", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("ERROR")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		output := buf.String()
		assert.NotContains(t, output, "debug message")
		assert.NotContains(t, output, "info message")
		assert.NotContains(t, output, "warn message")
		assert.Contains(t, output, "error message")
	})
}

// ============================================================================
// SetLevel / SetFormat Tests
// ============================================================================

func TestSetLevel(t *testing.T) {
	t.Run("SetLevelIsCaseInsensitive", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("debug")
		Debug("test message")
		assert.Contains(t, buf.String(), "test message")
	})

	t.Run("SetLevelIgnoresInvalidValues", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetLevel("INVALID")

		Debug("debug message")
		Info("info message")

		output := buf.String()
		assert.NotContains(t, output, "debug message")
		assert.Contains(t, output, "info message")
	})
}

func TestJSONFormat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("json")
	defer SetFormat("text")

	Info("json line", KeyAgent, "alice", KeyQueue, "support")

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	assert.Equal(t, "json line", decoded["msg"])
	assert.Equal(t, "alice", decoded[KeyAgent])
	assert.Equal(t, "support", decoded[KeyQueue])
}

// ============================================================================
// Structured Field Tests
// ============================================================================

func TestStructuredFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")

	Info("agent state change", KeyAgent, "bob", KeyFromState, "ringing", KeyToState, "oncall")

	output := buf.String()
	assert.Contains(t, output, "agent=bob")
	assert.Contains(t, output, "from_state=ringing")
	assert.Contains(t, output, "to_state=oncall")
}

func TestContextFields(t *testing.T) {
	t.Run("PrependsLogContextFields", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")

		lc := NewLogContext("10.0.0.7").WithFunction("poll").WithSession("abc123").WithAgent("alice")
		ctx := WithContext(context.Background(), lc)

		InfoCtx(ctx, "poll delivered", KeyCount, 2)

		output := buf.String()
		assert.Contains(t, output, "function=poll")
		assert.Contains(t, output, "session_id=abc123")
		assert.Contains(t, output, "agent=alice")
		assert.Contains(t, output, "client_ip=10.0.0.7")
		assert.Contains(t, output, "count=2")
	})

	t.Run("NoContextIsHarmless", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		InfoCtx(context.Background(), "bare message")
		assert.Contains(t, buf.String(), "bare message")
	})

	t.Run("CloneDoesNotAliasOriginal", func(t *testing.T) {
		lc := NewLogContext("10.0.0.7")
		clone := lc.WithAgent("alice")
		assert.Empty(t, lc.Agent)
		assert.Equal(t, "alice", clone.Agent)
	})
}

func TestWith(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")

	l := With(KeyNode, "cpx1")
	l.Info("cluster joined")

	assert.Contains(t, buf.String(), "node=cpx1")
}

// ============================================================================
// Helper Tests
// ============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		ms   float64
		want string
	}{
		{"microseconds", 0.25, "250µs"},
		{"milliseconds", 12.3, "12.3ms"},
		{"seconds", 2500, "2.50s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.ms))
		})
	}
}
