// Package diagnostic renders compile-time and runtime errors for the host
// CLI, grounded on the teacher's feedback.Message colorized rendering
// (github.com/fatih/color) but scaled down to the one-line forms spec.md
// §6 mandates: "compilation error: <location>: <description>" and
// "runtime error: <location>: <description>", each optionally preceded by
// a stack trace with the innermost frame last.
package diagnostic

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/kjpearse/lumen/source"
)

// Kind distinguishes the two error classes spec.md §7 names.
type Kind int

const (
	CompileError Kind = iota
	RuntimeError
)

func (k Kind) label() string {
	if k == CompileError {
		return "compilation error"
	}
	return "runtime error"
}

// Report is a fully formed diagnostic ready for rendering: a kind, the
// failing location and description, and (for runtime errors reached
// through a running script) the call-stack that was active.
type Report struct {
	Kind        Kind
	Description string
	StackTrace  []source.Span // innermost frame last
}

// Print writes the report to w, innermost-frame-last stack trace first
// (when present) followed by the classification line, matching
// spec.md §6's "Error output" contract.
func Print(w io.Writer, r Report) {
	header := color.New(color.FgRed, color.Bold)

	if len(r.StackTrace) > 0 {
		fmt.Fprintln(w, "stack trace:")
		for _, span := range r.StackTrace {
			fmt.Fprintf(w, "\t%s\n", span)
		}
	}

	fmt.Fprintln(w, header.Sprintf("%s: %s", r.Kind.label(), r.Description))
}

// SetColor toggles fatih/color's global color output, wired to the CLI's
// --no-color flag the same way the teacher's errorNoColor flag does.
func SetColor(enabled bool) {
	color.NoColor = !enabled
}

// Sprint renders a report to a string, used by the REPL.
func Sprint(r Report) string {
	var sb strings.Builder
	Print(&sb, r)
	return sb.String()
}
