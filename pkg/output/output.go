// Package output implements the line-oriented sink that every shell level
// writes through. It logs each line, optionally captures it, and counts
// errors per turn (the interval between two prompts).
package output

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/psaab/gwcli/pkg/logging"
)

// Severity of a captured line.
type Severity string

const (
	Debug Severity = "debug"
	Info  Severity = "info"
	Good  Severity = "good"
	Error Severity = "error"
	Fatal Severity = "fatal"
)

// Line is one captured output line.
type Line struct {
	Severity Severity
	Text     string
}

// Output is the shell output sink. It is shared by all shell levels and is
// only ever used from the goroutine running the shell.
type Output struct {
	log      *slog.Logger
	promptW  io.Writer
	captured []Line
	capture  bool
	pending  string
	errors   int
	fatals   int
}

// New creates an Output logging through log. Prompt text left over in the
// line buffer is written to promptW when a turn ends.
func New(log *slog.Logger, promptW io.Writer) *Output {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if promptW == nil {
		promptW = io.Discard
	}
	return &Output{log: log, promptW: promptW}
}

// SetCapture turns line capturing on or off. Turning it on starts with an
// empty capture buffer.
func (o *Output) SetCapture(capture bool) {
	o.capture = capture
	o.captured = nil
}

// Captured returns the lines recorded since the last turn began.
func (o *Output) Captured() []Line {
	return o.captured
}

// CapturedText returns the captured lines of the given severity.
func (o *Output) CapturedText(sev Severity) []string {
	var lines []string
	for _, l := range o.captured {
		if l.Severity == sev {
			lines = append(lines, l.Text)
		}
	}
	return lines
}

// ErrorCount returns the number of errors recorded in the current turn.
func (o *Output) ErrorCount() int { return o.errors }

// FatalCount returns the number of fatal errors recorded in the current turn.
func (o *Output) FatalCount() int { return o.fatals }

// Logger returns the logger lines are written to.
func (o *Output) Logger() *slog.Logger { return o.log }

func (o *Output) Debug(format string, args ...any) {
	o.emit(Debug, slog.LevelDebug, format, args)
}

func (o *Output) Info(format string, args ...any) {
	o.emit(Info, slog.LevelInfo, format, args)
}

// Good records a success line, rendered green on colour terminals.
func (o *Output) Good(format string, args ...any) {
	o.emit(Good, logging.LevelGood, format, args)
}

func (o *Output) Error(format string, args ...any) {
	o.errors++
	o.emit(Error, slog.LevelError, format, args)
}

func (o *Output) Fatal(format string, args ...any) {
	o.fatals++
	o.emit(Fatal, logging.LevelFatal, format, args)
}

func (o *Output) emit(sev Severity, level slog.Level, format string, args []any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	if o.capture {
		o.captured = append(o.captured, Line{Severity: sev, Text: msg})
	}
	o.log.Log(context.Background(), level, msg)
}

// Write buffers text until a newline is seen and emits every complete line
// at info severity. Output therefore satisfies io.Writer.
func (o *Output) Write(p []byte) (int, error) {
	s := o.pending + string(p)
	o.pending = ""
	for {
		idx := strings.IndexByte(s, '\n')
		if idx < 0 {
			o.pending = s
			return len(p), nil
		}
		o.Info("%s", s[:idx])
		s = s[idx+1:]
	}
}

// Flush is called just before a prompt is displayed. Any unterminated text
// is treated as prompt text and written out, then the capture buffer and
// the per-turn counters are reset.
func (o *Output) Flush() {
	prompt := o.pending
	o.pending = ""
	o.writePrompt(prompt)
}

func (o *Output) writePrompt(prompt string) {
	if prompt != "" {
		io.WriteString(o.promptW, prompt)
	}
	if o.capture {
		o.captured = nil
	}
	o.errors = 0
	o.fatals = 0
}
