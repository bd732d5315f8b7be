package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message
	w.Status("🔍", "Loading index...")

	// Then: output contains icon and message
	assert.Equal(t, "🔍 Loading index...\n", buf.String())
}

func TestWriter_Status_NoIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Status("", "detail")
	assert.Equal(t, "   detail\n", buf.String())
}

func TestNew_BufferIsNotColored(t *testing.T) {
	// Given: a non-terminal writer
	buf := &bytes.Buffer{}

	// When: creating a writer
	w := New(buf)

	// Then: color is disabled and output is plain
	assert.False(t, w.UseColor())
	w.Success("Loaded 10 passages")
	w.Warning("Telemetry disabled")
	w.Error("Index missing")
	assert.Equal(t, "✓ Loaded 10 passages\n! Telemetry disabled\n✗ Index missing\n", buf.String())
}

func TestWriter_Formatted(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.Successf("%d passages", 3)
	w.Warningf("%s missing", "section")
	w.Errorf("code %s", "ERR_304")

	assert.Contains(t, buf.String(), "3 passages")
	assert.Contains(t, buf.String(), "section missing")
	assert.Contains(t, buf.String(), "code ERR_304")
}

func TestWriter_KeyValue_Aligns(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.KeyValue("Documents", 10)

	assert.Equal(t, "  Documents:       10\n", buf.String())
}

func TestWriter_Code_IndentsLines(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.Code("a\nb")

	assert.Equal(t, "\n  a\n  b\n\n", buf.String())
}

func TestWriter_Level_PlainPadsAndUppercases(t *testing.T) {
	w := NewWithColor(&bytes.Buffer{}, false)

	assert.Equal(t, "INFO ", w.Level("info"))
	assert.Equal(t, "WARN ", w.Level("warn"))
	assert.Equal(t, "ERROR", w.Level("ERROR"))
}

func TestDetectColor_NoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.False(t, DetectColor(&bytes.Buffer{}))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut", "hello world", 8, "hello..."},
		{"collapses whitespace", "a\n\n b", 10, "a b"},
		{"tiny limit", "hello", 2, "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.in, tt.n))
		})
	}
}
