// Package shell implements the nested command interpreter. A Runtime owns
// the stack of active shells, the quitting flag and the output sink; each
// Shell is one level of the hierarchy with its own command table and
// prompt fragment.
package shell

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/chzyer/readline"

	"github.com/psaab/gwcli/pkg/cmdtree"
	"github.com/psaab/gwcli/pkg/output"
)

// LineReader is the input side of the terminal. *readline.Instance
// satisfies it; ScriptReader serves files and pipes.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
	ReadPassword(prompt string) ([]byte, error)
}

// Options configures a Runtime.
type Options struct {
	Output *output.Output
	Input  LineReader
	// Interactive is true when input comes from a terminal. Prompts are
	// suppressed otherwise.
	Interactive bool
	// Filename names the command file driving the run. Any dispatch error
	// is fatal when it is set.
	Filename string
	// Width reports the terminal width; nil means cmdtree.DefaultWidth.
	Width func() int
}

// Runtime is the state shared by every shell level of one run.
type Runtime struct {
	out         *output.Output
	in          LineReader
	interactive bool
	filename    string
	width       func() int

	stack       []*Shell
	quitting    bool
	failed      bool
	loops       int
	lines       int
	interrupted atomic.Bool
	completing  atomic.Bool
}

// NewRuntime creates a runtime with an empty shell stack.
func NewRuntime(opts Options) *Runtime {
	rt := &Runtime{
		out:         opts.Output,
		in:          opts.Input,
		interactive: opts.Interactive,
		filename:    opts.Filename,
		width:       opts.Width,
	}
	if rt.out == nil {
		rt.out = output.New(nil, nil)
	}
	if rt.in == nil {
		rt.in = NewScriptReader(strings.NewReader(""))
	}
	return rt
}

// Out returns the shared output sink.
func (rt *Runtime) Out() *output.Output { return rt.out }

// Interactive reports whether input comes from a terminal.
func (rt *Runtime) Interactive() bool { return rt.interactive }

// Filename returns the command file name, or "" when not file driven.
func (rt *Runtime) Filename() string { return rt.filename }

// Quitting reports whether a quit has been requested.
func (rt *Runtime) Quitting() bool { return rt.quitting }

// Quit requests that every shell level stop.
func (rt *Runtime) Quit() { rt.quitting = true }

// Failed reports whether a file-driven run was aborted by an error.
func (rt *Runtime) Failed() bool { return rt.failed }

// Interrupt records a keyboard interrupt. It is safe to call from a signal
// handler goroutine; the shell observes it once the running command
// returns.
func (rt *Runtime) Interrupt() { rt.interrupted.Store(true) }

// Depth returns the number of shells on the stack.
func (rt *Runtime) Depth() int { return len(rt.stack) }

// Current returns the shell on top of the stack, or nil.
func (rt *Runtime) Current() *Shell {
	if len(rt.stack) == 0 {
		return nil
	}
	return rt.stack[len(rt.stack)-1]
}

// Width returns the terminal width used for column output.
func (rt *Runtime) Width() int {
	if rt.width != nil {
		if w := rt.width(); w > 0 {
			return w
		}
	}
	return cmdtree.DefaultWidth
}

// Prompt composes the prompt from the prompt fragment of every shell on
// the stack. It is empty when input is not interactive.
func (rt *Runtime) Prompt() string {
	if !rt.interactive {
		return ""
	}
	parts := make([]string, 0, len(rt.stack))
	for _, s := range rt.stack {
		parts = append(parts, s.prompt)
	}
	return strings.Join(parts, " ") + "> "
}

func (rt *Runtime) push(s *Shell) { rt.stack = append(rt.stack, s) }

func (rt *Runtime) pop() {
	if len(rt.stack) > 0 {
		rt.stack = rt.stack[:len(rt.stack)-1]
	}
}

// checkInterrupt turns a pending interrupt into a quit.
func (rt *Runtime) checkInterrupt() bool {
	if rt.interrupted.Swap(false) {
		rt.out.Info("")
		rt.quitting = true
	}
	return rt.quitting
}

// readLine reads the next command line. End of input is returned as the
// EOF sentinel.
func (rt *Runtime) readLine() (string, error) {
	rt.in.SetPrompt(rt.Prompt())
	line, err := rt.in.Readline()
	switch {
	case err == nil:
		rt.lines++
		return line, nil
	case errors.Is(err, io.EOF):
		return EOF, nil
	default:
		return "", err
	}
}

// ReadLine prompts for a single line of input outside the command loop.
// It satisfies gateway.Prompter.
func (rt *Runtime) ReadLine(prompt string) (string, error) {
	if err := rt.canPrompt(); err != nil {
		return "", err
	}
	rt.in.SetPrompt(prompt)
	defer rt.in.SetPrompt(rt.Prompt())
	line, err := rt.in.Readline()
	if err != nil {
		return "", rt.promptErr(err)
	}
	rt.lines++
	return line, nil
}

// ReadPassword prompts for a secret without echoing it.
func (rt *Runtime) ReadPassword(prompt string) ([]byte, error) {
	if err := rt.canPrompt(); err != nil {
		return nil, err
	}
	defer rt.in.SetPrompt(rt.Prompt())
	pw, err := rt.in.ReadPassword(prompt)
	if err != nil {
		return nil, rt.promptErr(err)
	}
	rt.lines++
	return pw, nil
}

// canPrompt refuses prompts that would read script lines or re-enter the
// line editor from its completion callback.
func (rt *Runtime) canPrompt() error {
	switch {
	case rt.completing.Load():
		return fmt.Errorf("%w: completion in progress", ErrPromptUnavailable)
	case !rt.interactive:
		return fmt.Errorf("%w: input is not a terminal", ErrPromptUnavailable)
	}
	return nil
}

// promptErr maps an interrupt at a prompt to end of input and schedules
// the quit.
func (rt *Runtime) promptErr(err error) error {
	if errors.Is(err, readline.ErrInterrupt) {
		rt.Interrupt()
		return fmt.Errorf("%w: interrupted", io.EOF)
	}
	return err
}
