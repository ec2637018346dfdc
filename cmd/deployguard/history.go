package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"deployguard/internal/audit"
	"deployguard/internal/gate"

	"github.com/spf13/cobra"
)

var errNoAuditDir = errors.New("no audit directory: pass --audit-dir or set DEPLOYGUARD_AUDIT_DIR")

// newHistoryCmd lists stored decision records.
func newHistoryCmd(opts *options, environ []string, stdout io.Writer, code *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded deploy decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := auditDir(opts, environ)
			if dir == "" {
				*code = gate.ExitUsage
				return errNoAuditDir
			}

			summaries, err := audit.NewStore(dir).List()
			if err != nil {
				*code = gate.ExitBlocked
				return fmt.Errorf("cannot list audit records: %w", err)
			}

			if opts.jsonOutput {
				return writeJSON(stdout, summaries, code)
			}

			if len(summaries) == 0 {
				fmt.Fprintln(stdout, "No decisions recorded")
				return nil
			}
			for _, s := range summaries {
				project := s.ProjectID
				if project == "" {
					project = "-"
				}
				fmt.Fprintf(stdout, "%s  %-5s  %s  %s  %s\n",
					s.Timestamp.Format(time.RFC3339), s.Verdict, project, s.RunID, s.Message)
			}
			return nil
		},
	}
	cmd.AddCommand(newHistoryShowCmd(opts, environ, stdout, code))
	return cmd
}

// newHistoryShowCmd prints one stored record in full.
func newHistoryShowCmd(opts *options, environ []string, stdout io.Writer, code *int) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded deploy decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := auditDir(opts, environ)
			if dir == "" {
				*code = gate.ExitUsage
				return errNoAuditDir
			}

			rec, err := audit.NewStore(dir).Load(args[0])
			if err != nil {
				if errors.Is(err, audit.ErrRecordNotFound) {
					*code = gate.ExitUsage
					return fmt.Errorf("%w: %s", err, args[0])
				}
				*code = gate.ExitBlocked
				return fmt.Errorf("cannot load audit record: %w", err)
			}

			if opts.jsonOutput {
				return writeJSON(stdout, rec, code)
			}

			fmt.Fprintf(stdout, "Run:       %s\n", rec.RunID)
			fmt.Fprintf(stdout, "Decision:  %s\n", rec.DecisionID)
			fmt.Fprintf(stdout, "Time:      %s\n", rec.Timestamp.Format(time.RFC3339))
			fmt.Fprintf(stdout, "Verdict:   %s (%s)\n", rec.Verdict, rec.Reason)
			fmt.Fprintf(stdout, "Message:   %s\n", rec.Message)
			if rec.ProjectID != "" {
				fmt.Fprintf(stdout, "Target:    %s (%s)\n", rec.ProjectID, rec.TargetClass)
			}
			if rec.BuildClass != "" {
				fmt.Fprintf(stdout, "Build:     %s\n", rec.BuildClass)
			}
			for _, m := range rec.Matches {
				fmt.Fprintf(stdout, "Match:     %s in %s\n", m.ProjectID, m.Asset)
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v interface{}, code *int) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		*code = gate.ExitBlocked
		return fmt.Errorf("cannot serialize audit records: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// auditDir resolves the audit directory relative to --dir.
func auditDir(opts *options, environ []string) string {
	dir := audit.ResolveDir(opts.auditDir, environ)
	if dir == "" {
		return ""
	}
	return joinDir(opts.dir, dir)
}
