package script

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// palette formats output fragments, with or without color.
type palette struct {
	header func(format string, a ...any) string
	name   func(format string, a ...any) string
	add    func(format string, a ...any) string
	del    func(format string, a ...any) string
	fail   func(format string, a ...any) string
}

func newPalette(colored bool) palette {
	if !colored {
		return palette{header: fmt.Sprintf, name: fmt.Sprintf, add: fmt.Sprintf, del: fmt.Sprintf, fail: fmt.Sprintf}
	}
	return palette{
		header: color.New(color.Bold).SprintfFunc(),
		name:   color.CyanString,
		add:    color.GreenString,
		del:    color.RedString,
		fail:   color.RGB(255, 0, 96).SprintfFunc(),
	}
}

// Diff returns a line diff of two values rendered as indented JSON. Lines
// are prefixed "+ ", "- " or "  "; unchanged runs are cut to one line of
// context on each side of a change. Equal values give "".
func Diff(before, after any, colored bool) string {
	a, b := pretty(before), pretty(after)
	if a == b {
		return ""
	}
	return renderDiff(lineDiff(a, b), newPalette(colored))
}

func pretty(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func lineDiff(a, b string) []diffpatch.Diff {
	dmp := diffpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffMain(ca, cb, false)
	return dmp.DiffCharsToLines(diffs, lines)
}

func renderDiff(diffs []diffpatch.Diff, p palette) string {
	var b strings.Builder
	for i, d := range diffs {
		lines := splitLines(d.Text)
		switch d.Type {
		case diffpatch.DiffInsert:
			for _, l := range lines {
				b.WriteString(p.add("+ %s", l))
				b.WriteByte('\n')
			}
		case diffpatch.DiffDelete:
			for _, l := range lines {
				b.WriteString(p.del("- %s", l))
				b.WriteByte('\n')
			}
		case diffpatch.DiffEqual:
			for _, l := range contextLines(lines, i > 0, i < len(diffs)-1) {
				b.WriteString("  ")
				b.WriteString(l)
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

// contextLines keeps the first line of an unchanged run when it follows a change
// and the last line when it precedes one.
func contextLines(lines []string, head, tail bool) []string {
	n := len(lines)
	switch {
	case n == 0 || (!head && !tail):
		return nil
	case head && tail:
		if n <= 2 {
			return lines
		}
		return []string{lines[0], "...", lines[n-1]}
	case head:
		if n == 1 {
			return lines
		}
		return []string{lines[0], "..."}
	default:
		if n == 1 {
			return lines
		}
		return []string{"...", lines[n-1]}
	}
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
