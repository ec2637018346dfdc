// Package gate turns a decision into diagnostics and a process exit code.
// It is the only package allowed to terminate the process.
package gate

import (
	"fmt"
	"io"
	"os"

	"deployguard/internal/decision"
)

// Exit codes returned by deployguard.
const (
	// ExitProceed lets the deploy pipeline continue.
	ExitProceed = 0

	// ExitBlocked halts the deploy pipeline before upload.
	ExitBlocked = 1

	// ExitUsage indicates invalid flags or a malformed config file.
	ExitUsage = 2
)

// Format selects how a decision is printed.
type Format string

const (
	FormatText Format = "text"
	FormatCI   Format = "ci"
	FormatJSON Format = "json"
)

// Gate writes decisions to the configured streams.
type Gate struct {
	Stdout io.Writer
	Stderr io.Writer
	Format Format
}

// Apply prints d and returns the exit code for it. Proceeding decisions are
// printed to Stdout, blocked ones to Stderr.
func (g Gate) Apply(d decision.Decision) int {
	out, code := g.Stdout, ExitProceed
	if !d.Verdict.Proceed() {
		out, code = g.Stderr, ExitBlocked
	}

	switch g.Format {
	case FormatJSON:
		text, err := decision.FormatJSON(d)
		if err != nil {
			fmt.Fprintf(g.Stderr, "Error: cannot format decision: %v\n", err)
			return ExitBlocked
		}
		fmt.Fprintln(out, text)
	case FormatCI:
		fmt.Fprint(out, decision.FormatCI(d))
	default:
		fmt.Fprint(out, decision.FormatCLI(d))
	}

	return code
}

// Exit terminates the process with code.
func Exit(code int) {
	os.Exit(code)
}
