// Package printer formats human-facing CLI output.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/dyluth/wikibot/internal/fault"
)

func init() {
	// Actions logs are not a TTY; NO_COLOR still disables colors.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Printer writes to an output and an error stream.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// New returns a Printer on out and errOut.
func New(out, errOut io.Writer) *Printer {
	return &Printer{Out: out, Err: errOut}
}

// Success prints a green message with a checkmark prefix
func (p *Printer) Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(p.Out, msg)
}

// Info prints in the default color.
func (p *Printer) Info(format string, a ...any) {
	fmt.Fprintf(p.Out, format, a...)
}

// Warning prints a yellow message with a warning prefix
func (p *Printer) Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(p.Out, msg)
}

// Step prints one step of a multi-step operation.
func (p *Printer) Step(format string, a ...any) {
	cyan.Fprintf(p.Out, "→ %s", fmt.Sprintf(format, a...))
}

// ErrorWithContext prints title, explanation, sorted context details and
// suggestions to the error stream. The returned error carries only the title
// so cobra (with SilenceErrors) does not print it twice.
func (p *Printer) ErrorWithContext(title, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(p.Err, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(p.Err, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintf(p.Err, "\n")
		for _, k := range keys {
			fmt.Fprintf(p.Err, "  %s: %s\n", k, context[k])
		}
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(p.Err, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(p.Err, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(p.Err, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(p.Err, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	return fmt.Errorf("%s", title)
}

// Error is ErrorWithContext without context.
func (p *Printer) Error(title, explanation string, suggestions []string) error {
	return p.ErrorWithContext(title, explanation, nil, suggestions)
}

// Fault prints a failed bot run, titled by the error's kind.
func (p *Printer) Fault(err error) {
	kind := fault.KindOf(err)
	title := "Run failed"
	var suggestions []string
	switch kind {
	case fault.KindInput:
		title = "Invalid input"
		suggestions = []string{"Fix the issue body or event payload and reopen the issue."}
	case fault.KindIO:
		title = "Hosting or repository operation failed"
		suggestions = []string{"The lock may still be held; check it with 'wikibot lock status'."}
	case fault.KindLock:
		title = "Could not acquire the contribution lock"
		suggestions = []string{"Inspect the holder with 'wikibot lock status' or raise lock.max_attempts / lock.deadline."}
	}
	p.ErrorWithContext(title, err.Error(), map[string]string{"Kind": kind.String()}, suggestions)
}
