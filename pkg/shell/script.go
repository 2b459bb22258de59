package shell

import (
	"bufio"
	"io"
	"strings"
)

// ScriptReader is a LineReader over a file or pipe. Prompts are ignored and
// passwords are read as plain lines.
type ScriptReader struct {
	sc *bufio.Scanner
}

// NewScriptReader reads lines from r.
func NewScriptReader(r io.Reader) *ScriptReader {
	return &ScriptReader{sc: bufio.NewScanner(r)}
}

// Readline returns the next line without its terminator, or io.EOF.
func (r *ScriptReader) Readline() (string, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(r.sc.Text(), "\r"), nil
}

// SetPrompt is a no-op.
func (r *ScriptReader) SetPrompt(string) {}

// ReadPassword returns the next line.
func (r *ScriptReader) ReadPassword(string) ([]byte, error) {
	line, err := r.Readline()
	if err != nil {
		return nil, err
	}
	return []byte(line), nil
}
