// Package cli provides colored console output for the taskmine commands.
package cli

import (
	"fmt"
	"io"
	"os"
)

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

// Output provides colored console output.
type Output struct {
	w         io.Writer
	colorized bool
}

// NewOutput creates an Output that writes to w.
func NewOutput(w io.Writer, colorized bool) *Output {
	return &Output{w: w, colorized: colorized}
}

// DefaultOutput creates an Output for stdout with auto-detected color
// support.
func DefaultOutput() *Output {
	colorized := isTerminal() && os.Getenv("NO_COLOR") == ""
	return NewOutput(os.Stdout, colorized)
}

func isTerminal() bool {
	stat, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

func (o *Output) colorize(color, text string) string {
	if o.colorized {
		return color + text + colorReset
	}
	return text
}

// Success prints a message with a green checkmark.
func (o *Output) Success(msg string) {
	fmt.Fprintf(o.w, "%s %s\n", o.colorize(colorGreen, "✓"), msg)
}

// Error prints a message with a red X.
func (o *Output) Error(msg string) {
	fmt.Fprintf(o.w, "%s %s\n", o.colorize(colorRed, "✗"), msg)
}

// Warn prints a message with a yellow exclamation.
func (o *Output) Warn(msg string) {
	fmt.Fprintf(o.w, "%s %s\n", o.colorize(colorYellow, "!"), msg)
}

// Info prints a message with a dim arrow.
func (o *Output) Info(msg string) {
	fmt.Fprintf(o.w, "%s %s\n", o.colorize(colorDim, "→"), msg)
}

// Printf prints a formatted message without any prefix.
func (o *Output) Printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}
