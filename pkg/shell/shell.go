package shell

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// EOF is the line the command loop dispatches when input ends.
const EOF = "EOF"

// Command is one entry in a shell's command table.
type Command struct {
	// Name as typed by the user. Dashes and underscores are
	// interchangeable when looking it up.
	Name string
	// Doc is shown by "help NAME". The first line is a usage line; the
	// first line of the following paragraph is the summary shown by a bare
	// "help". {command} is replaced by the command name.
	Doc string
	// Run executes the command with the rest of the line. Returning true
	// stops this shell's loop.
	Run func(ctx context.Context, args string) (bool, error)
	// Complete returns the argument values starting with prefix.
	Complete func(ctx context.Context, prefix string) []string
}

// Shell is one level of the command hierarchy.
type Shell struct {
	rt       *Runtime
	prompt   string
	commands map[string]*Command
	lineNum  int
	command  string
}

// NewShell creates a shell with the given prompt fragment. help (also "?")
// and quit are added to every command table.
func (rt *Runtime) NewShell(prompt string, commands ...*Command) *Shell {
	s := &Shell{
		rt:       rt,
		prompt:   prompt,
		commands: make(map[string]*Command, len(commands)+2),
	}
	s.Add(&Command{
		Name: "help",
		Doc: `help [command]

		List available commands with "help" or detailed help with
		"help command".`,
		Run:      s.help,
		Complete: s.completeCommand,
	})
	s.Add(&Command{
		Name: "quit",
		Doc: `quit

		Exits from the program.`,
		Run: func(context.Context, string) (bool, error) {
			rt.quitting = true
			return true, nil
		},
	})
	for _, c := range commands {
		s.Add(c)
	}
	return s
}

// Add registers c, replacing any command with the same name.
func (s *Shell) Add(c *Command) {
	s.commands[canonical(c.Name)] = c
}

// Runtime returns the runtime the shell belongs to.
func (s *Shell) Runtime() *Runtime { return s.rt }

// Prompt returns the shell's prompt fragment.
func (s *Shell) Prompt() string { return s.prompt }

// LineNum returns the number of lines dispatched by this shell.
func (s *Shell) LineNum() int { return s.lineNum }

// LastCommand returns the command name of the most recent dispatch.
func (s *Shell) LastCommand() string { return s.command }

func (s *Shell) lookup(name string) (*Command, bool) {
	c, ok := s.commands[canonical(name)]
	return c, ok
}

// names returns the user-facing command names, sorted.
func (s *Shell) names() []string {
	names := make([]string, 0, len(s.commands))
	for _, c := range s.commands {
		names = append(names, displayName(c.Name))
	}
	sort.Strings(names)
	return names
}

// AutoLoop runs the shell with an optional initial command line. An empty
// line starts the interactive loop. Otherwise the line is executed, and
// the loop is entered afterwards only if a nested shell prompted for input
// while it ran. The shell is on the stack for the duration of the call.
// It returns true when the whole stack should unwind.
func (s *Shell) AutoLoop(ctx context.Context, line string) bool {
	s.rt.push(s)
	defer s.rt.pop()

	if line == "" {
		s.cmdLoop(ctx)
		return s.rt.quitting
	}
	loops := s.rt.loops
	s.OneCmd(ctx, line)
	if !s.rt.checkInterrupt() && s.rt.loops > loops {
		s.cmdLoop(ctx)
	}
	return s.rt.quitting
}

// cmdLoop reads and dispatches lines until a command stops the loop, input
// ends or a quit is requested.
func (s *Shell) cmdLoop(ctx context.Context) {
	s.rt.loops++
	for !s.rt.checkInterrupt() {
		s.rt.out.Flush()
		line, err := s.rt.readLine()
		if err != nil {
			// readline reports ^C at the prompt as ErrInterrupt.
			s.rt.out.Info("")
			s.rt.quitting = true
			return
		}
		if s.OneCmd(ctx, line) {
			return
		}
	}
}

// OneCmd dispatches a single input line and reports whether the shell's
// loop should stop. Errors are reported through the output sink; in a
// file-driven run the first one is fatal and stops every level.
func (s *Shell) OneCmd(ctx context.Context, line string) bool {
	s.lineNum++
	if line == EOF {
		return true
	}
	line = stripComment(line)
	if line == "" {
		return false
	}

	name, args := splitCommand(line)
	if name == "?" {
		name = "help"
	}
	s.command = name

	c, ok := s.lookup(name)
	if !ok {
		return s.handleError(fmt.Errorf("%w: '%s'", ErrUnrecognized, line))
	}
	stop, err := c.Run(ctx, args)
	if err != nil {
		return s.handleError(err)
	}
	return stop
}

func (s *Shell) handleError(err error) bool {
	if s.rt.filename != "" {
		s.rt.out.Fatal("File: %s Line: %d Error: %s", s.rt.filename, s.rt.lines, capitalize(err.Error()))
		s.rt.quitting = true
		s.rt.failed = true
		return true
	}
	s.rt.out.Error("Error: %s", capitalize(err.Error()))
	return false
}

// stripComment removes everything from the first unescaped '#' and trims
// the result. "\#" yields a literal '#'.
func stripComment(line string) string {
	if !strings.Contains(line, "#") {
		return strings.TrimSpace(line)
	}
	var b strings.Builder
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\' && i+1 < len(line) && line[i+1] == '#':
			b.WriteByte('#')
			i++
		case line[i] == '#':
			return strings.TrimSpace(b.String())
		default:
			b.WriteByte(line[i])
		}
	}
	return strings.TrimSpace(b.String())
}

func splitCommand(line string) (string, string) {
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i:])
}

func canonical(name string) string { return strings.ReplaceAll(name, "-", "_") }

func displayName(name string) string { return strings.ReplaceAll(name, "_", "-") }

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
