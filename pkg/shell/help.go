package shell

import (
	"context"
	"fmt"
	"strings"

	"github.com/psaab/gwcli/pkg/cmdtree"
)

func (s *Shell) help(_ context.Context, arg string) (bool, error) {
	out := s.rt.out
	if arg == "" {
		candidates := make([]cmdtree.Candidate, 0, len(s.commands))
		for _, c := range s.commands {
			candidates = append(candidates, cmdtree.Candidate{
				Name: displayName(c.Name),
				Desc: summary(c.Doc),
			})
		}
		cmdtree.WriteHelp(out, "Documented commands (type help <topic>):", candidates)
		return false, nil
	}

	name := strings.Fields(arg)[0]
	c, ok := s.lookup(name)
	if !ok || c.Doc == "" {
		out.Info("*** No help on %s", name)
		return false, nil
	}
	doc := strings.ReplaceAll(c.Doc, "{command}", displayName(c.Name))
	fmt.Fprintln(out, TrimDoc(doc))
	return false, nil
}

// TrimDoc normalises the indentation of a help text. Tabs are expanded,
// the smallest indentation of every line but the first is removed, and
// leading and trailing blank lines are dropped.
func TrimDoc(doc string) string {
	if doc == "" {
		return ""
	}
	lines := strings.Split(expandTabs(doc), "\n")
	indent := -1
	for _, line := range lines[1:] {
		stripped := strings.TrimLeft(line, " ")
		if stripped == "" {
			continue
		}
		if n := len(line) - len(stripped); indent < 0 || n < indent {
			indent = n
		}
	}

	trimmed := []string{strings.TrimSpace(lines[0])}
	for _, line := range lines[1:] {
		if indent > 0 && len(line) >= indent {
			line = line[indent:]
		} else if indent > 0 {
			line = strings.TrimLeft(line, " ")
		}
		trimmed = append(trimmed, strings.TrimRight(line, " "))
	}
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == "" {
		trimmed = trimmed[:len(trimmed)-1]
	}
	for len(trimmed) > 0 && trimmed[0] == "" {
		trimmed = trimmed[1:]
	}
	return strings.Join(trimmed, "\n")
}

// summary returns the first line of the paragraph following the usage
// line, or the usage line when there is none.
func summary(doc string) string {
	lines := strings.Split(TrimDoc(doc), "\n")
	for i := 1; i < len(lines)-1; i++ {
		if lines[i] == "" && lines[i+1] != "" {
			return lines[i+1]
		}
	}
	return lines[0]
}

func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		switch r {
		case '\t':
			n := 8 - col%8
			b.WriteString(strings.Repeat(" ", n))
			col += n
		case '\n':
			b.WriteRune(r)
			col = 0
		default:
			b.WriteRune(r)
			col++
		}
	}
	return b.String()
}
