// Package cmdtree holds the helpers shared by every shell level for
// completing names and laying them out on screen.
package cmdtree

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 80

// Candidate holds a name and its description for display.
type Candidate struct {
	Name string
	Desc string
}

// FilterPrefix returns only items that start with the given prefix.
func FilterPrefix(items []string, prefix string) []string {
	if prefix == "" {
		return items
	}
	var result []string
	for _, item := range items {
		if strings.HasPrefix(item, prefix) {
			result = append(result, item)
		}
	}
	return result
}

// Columns lays words out column-major in as many columns as fit in
// termWidth. Every word is padded to the width of the widest one; colour
// escape sequences do not count towards the width.
func Columns(words []string, termWidth int) []string {
	if len(words) == 0 {
		return nil
	}
	if termWidth <= 0 {
		termWidth = DefaultWidth
	}
	width := 0
	for _, w := range words {
		width = max(width, ansi.StringWidth(w))
	}
	ncols := max(1, (termWidth+1)/(width+1))
	nrows := (len(words) + ncols - 1) / ncols

	lines := make([]string, 0, nrows)
	for row := 0; row < nrows; row++ {
		var b strings.Builder
		for i := row; i < len(words); i += nrows {
			if i > row {
				b.WriteByte(' ')
			}
			b.WriteString(words[i])
			b.WriteString(strings.Repeat(" ", width-ansi.StringWidth(words[i])))
		}
		lines = append(lines, strings.TrimRight(b.String(), " "))
	}
	return lines
}

// WriteHelp prints aligned name/description pairs to w, sorted by name.
func WriteHelp(w io.Writer, header string, candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	maxWidth := 20
	for _, c := range candidates {
		if len(c.Name)+2 > maxWidth {
			maxWidth = len(c.Name) + 2
		}
	}
	var sb strings.Builder
	if header != "" {
		sb.WriteString(header + "\n")
	}
	for _, c := range candidates {
		if c.Desc != "" {
			fmt.Fprintf(&sb, "  %-*s %s\n", maxWidth, c.Name, c.Desc)
		} else {
			fmt.Fprintf(&sb, "  %s\n", c.Name)
		}
	}
	io.WriteString(w, sb.String())
}
