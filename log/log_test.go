package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]struct {
		lvl interface{}
		ok  bool
	}{
		"trace": {LevelTrace, true},
		"DEBUG": {LevelDebug, true},
		"Info":  {LevelInfo, true},
		"warn":  {LevelWarn, true},
		"error": {LevelError, true},
		"crit":  {LevelCrit, true},
		"loud":  {nil, false},
	}
	for in, want := range cases {
		lvl, err := ParseLevel(in)
		if !want.ok {
			assert.Error(t, err, in)
			continue
		}
		require.NoError(t, err, in)
		assert.Equal(t, want.lvl, lvl, in)
	}
}

func TestTerminalHandlerOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(NewTerminalHandler(&buf, LevelTrace))

	l.Trace("compiled block", "rip", 0x1000, "bytes", 91)
	out := buf.String()
	assert.Contains(t, out, "level=TRACE")
	assert.Contains(t, out, `msg="compiled block"`)
	assert.Contains(t, out, "rip=4096")
	assert.Contains(t, out, "bytes=91")
}

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(NewTerminalHandler(&buf, LevelInfo))

	assert.False(t, l.Enabled(context.Background(), LevelDebug))
	assert.True(t, l.Enabled(context.Background(), LevelError))

	l.Debug("dropped")
	l.Trace("dropped")
	assert.Zero(t, buf.Len())
	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(NewTerminalHandler(&buf, LevelInfo)).With("component", "tier1")
	l.Info("hello")
	assert.Contains(t, buf.String(), "component=tier1")
}

func TestRootReplacement(t *testing.T) {
	old := Root()
	defer SetDefault(old)

	var buf bytes.Buffer
	SetDefault(NewLogger(NewTerminalHandler(&buf, LevelTrace)))
	Info("through the root", "n", 1)
	assert.Contains(t, buf.String(), "through the root")
	assert.Contains(t, buf.String(), "n=1")
}
