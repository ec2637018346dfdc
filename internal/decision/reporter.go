package decision

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatCLI formats a decision for terminal output.
func FormatCLI(d Decision) string {
	var sb strings.Builder

	switch d.Verdict {
	case Allow:
		sb.WriteString(fmt.Sprintf("✓ %s\n", d.Message))
	case Warn:
		sb.WriteString(fmt.Sprintf("⚠️  %s\n", d.Message))
	default:
		sb.WriteString(fmt.Sprintf("❌ %s\n", d.Message))
	}

	if d.ProjectID != "" {
		sb.WriteString(fmt.Sprintf("  Target: %s (%s, via %s)\n", d.ProjectID, d.TargetClass, d.Source))
	}
	if d.BuildClass != "" {
		sb.WriteString(fmt.Sprintf("  Build: %s\n", d.BuildClass))
	}
	for _, detail := range d.Details {
		sb.WriteString(fmt.Sprintf("  %s\n", detail))
	}
	if d.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  To deploy this %s build, run: %s\n", d.BuildClass, d.Suggestion))
	}

	if d.Verdict == Block {
		sb.WriteString("\nDeploy blocked.\n")
	}
	return sb.String()
}

// FormatCI formats a decision as a GitHub Actions annotation.
// Allowed decisions produce a plain notice line.
func FormatCI(d Decision) string {
	var level string
	switch d.Verdict {
	case Block:
		level = "error"
	case Warn:
		level = "warning"
	default:
		level = "notice"
	}

	msg := d.Message
	if len(d.Details) > 0 {
		msg += " " + strings.Join(d.Details, " ")
	}
	if d.Suggestion != "" {
		msg += fmt.Sprintf(" To deploy this %s build, run: %s", d.BuildClass, d.Suggestion)
	}
	return fmt.Sprintf("::%s title=deployguard::%s\n", level, msg)
}

// FormatJSON formats a decision as JSON.
func FormatJSON(d Decision) (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
