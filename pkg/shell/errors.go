package shell

import (
	"errors"
	"fmt"
)

var (
	// ErrUsage marks a command invoked with malformed arguments.
	ErrUsage = errors.New("bad arguments")
	// ErrUnrecognized is returned for a command name no handler claims.
	ErrUnrecognized = errors.New("unrecognized command")
	// ErrPromptUnavailable is returned by ReadLine and ReadPassword when
	// the user cannot be asked: input is a script or a pipe, or a
	// completion is in progress.
	ErrPromptUnavailable = errors.New("cannot prompt for input")
)

// usageError carries the user-facing message of an ErrUsage failure.
type usageError struct {
	msg string
}

func (e *usageError) Error() string        { return e.msg }
func (e *usageError) Is(target error) bool { return target == ErrUsage }

// Usagef returns an ErrUsage error with a formatted message.
func Usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// ExpectArgs checks that args holds exactly n words.
func ExpectArgs(args []string, n int) error {
	if len(args) == n {
		return nil
	}
	noun := "arguments"
	if n == 1 {
		noun = "argument"
	}
	return Usagef("Expecting %d %s, found %d", n, noun, len(args))
}
