package shell

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/psaab/gwcli/pkg/cmdtree"
)

// completeTimeout bounds name lookups made while completing.
const completeTimeout = 5 * time.Second

// Completer returns a readline completer that completes against whichever
// shell is on top of the stack.
func (rt *Runtime) Completer() readline.AutoCompleter {
	return &completer{rt: rt}
}

type completer struct {
	rt *Runtime
}

// Do returns the completion suffixes for the text before pos and the
// length of the word being completed.
func (c *completer) Do(line []rune, pos int) ([][]rune, int) {
	s := c.rt.Current()
	if s == nil {
		return nil, 0
	}
	text := string(line[:pos])

	c.rt.completing.Store(true)
	defer c.rt.completing.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
	defer cancel()
	candidates, partial := s.Complete(ctx, text)
	if len(candidates) == 0 {
		return nil, 0
	}

	// readline counts in runes.
	n := len([]rune(partial))
	if len(candidates) == 1 {
		return [][]rune{append([]rune(candidates[0])[n:], ' ')}, n
	}
	out := make([][]rune, len(candidates))
	for i, cand := range candidates {
		out[i] = []rune(cand)[n:]
	}
	return out, n
}

// Complete returns the sorted candidates for the last word of text along
// with that partial word. The first word completes command names; the
// second is handed to the command's own completion function.
func (s *Shell) Complete(ctx context.Context, text string) ([]string, string) {
	words := strings.Fields(text)
	trailingSpace := strings.HasSuffix(text, " ")
	var partial string
	if !trailingSpace && len(words) > 0 {
		partial = words[len(words)-1]
		words = words[:len(words)-1]
	}

	var candidates []string
	switch len(words) {
	case 0:
		candidates = s.completeCommand(ctx, partial)
	case 1:
		c, ok := s.lookup(words[0])
		if !ok || c.Complete == nil {
			return nil, partial
		}
		candidates = cmdtree.FilterPrefix(c.Complete(ctx, partial), partial)
	default:
		return nil, partial
	}
	sort.Strings(candidates)
	return candidates, partial
}

// completeCommand matches display names, treating '-' and '_' alike as
// dispatch does.
func (s *Shell) completeCommand(_ context.Context, prefix string) []string {
	want := canonical(prefix)
	var names []string
	for _, name := range s.names() {
		if strings.HasPrefix(canonical(name), want) {
			names = append(names, name)
		}
	}
	return names
}
