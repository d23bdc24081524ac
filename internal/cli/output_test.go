package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestOutput(t *testing.T) {
	t.Run("colorized output", func(t *testing.T) {
		buf := &bytes.Buffer{}
		o := NewOutput(buf, true)

		o.Success("test message")
		output := buf.String()

		if !strings.Contains(output, colorGreen) {
			t.Error("expected green color code in output")
		}
		if !strings.Contains(output, "✓") {
			t.Error("expected checkmark in output")
		}
		if !strings.Contains(output, "test message") {
			t.Error("expected message in output")
		}
	})

	t.Run("non-colorized output", func(t *testing.T) {
		buf := &bytes.Buffer{}
		o := NewOutput(buf, false)

		o.Success("test message")
		output := buf.String()

		if strings.Contains(output, colorGreen) {
			t.Error("unexpected color code in non-colorized output")
		}
		if !strings.Contains(output, "✓") {
			t.Error("expected checkmark in output")
		}
	})

	t.Run("error output", func(t *testing.T) {
		buf := &bytes.Buffer{}
		o := NewOutput(buf, true)

		o.Error("error message")
		output := buf.String()

		if !strings.Contains(output, colorRed) {
			t.Error("expected red color code in output")
		}
		if !strings.Contains(output, "✗") {
			t.Error("expected X mark in output")
		}
	})

	t.Run("warn output", func(t *testing.T) {
		buf := &bytes.Buffer{}
		o := NewOutput(buf, true)

		o.Warn("warn message")
		output := buf.String()

		if !strings.Contains(output, colorYellow) {
			t.Error("expected yellow color code in output")
		}
		if !strings.Contains(output, "!") {
			t.Error("expected exclamation in output")
		}
	})

	t.Run("printf has no prefix", func(t *testing.T) {
		buf := &bytes.Buffer{}
		o := NewOutput(buf, true)

		o.Printf("count: %d\n", 3)
		if buf.String() != "count: 3\n" {
			t.Errorf("unexpected output %q", buf.String())
		}
	})
}
