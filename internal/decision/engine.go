// Package decision reconciles the resolved deploy target with the scanned
// build and decides whether the deploy may proceed.
package decision

import (
	"errors"
	"fmt"
	"strings"

	"deployguard/internal/registry"
	"deployguard/internal/scanner"
)

// Evaluate applies the rules in order:
//  1. target unresolved or unregistered: block
//  2. no build (or the build could not be scanned): block
//  3. fingerprint inconclusive or ambiguous: warn and allow
//  4. classes equal: allow
//  5. otherwise: block and suggest the matching deploy command
func Evaluate(in Input, opts Options) Decision {
	t := in.Target
	d := Decision{
		ProjectID:   t.ProjectID,
		TargetClass: t.Class,
		Source:      t.Source,
	}

	if !t.Resolved() {
		d.Verdict = Block
		d.Reason = ReasonUnresolvedTarget
		d.Message = "Cannot determine deploy target."
		d.Details = []string{
			"The deployment CLI did not report an active project and no default project is configured.",
			"Select one with 'firebase use <project>' before deploying.",
		}
		return d
	}

	if t.Class == registry.Unknown {
		d.Verdict = Block
		d.Reason = ReasonUnresolvedTarget
		d.Message = fmt.Sprintf("Cannot determine deploy target: project '%s' is not registered.", t.ProjectID)
		return d
	}

	if in.BuildErr != nil {
		d.Verdict = Block
		if errors.Is(in.BuildErr, scanner.ErrNoBuild) {
			d.Reason = ReasonNoBuild
			d.Message = "No build found."
			d.Details = []string{in.BuildErr.Error(), "Run the build before deploying."}
		} else {
			d.Reason = ReasonScanFailed
			d.Message = "Cannot scan build."
			d.Details = []string{in.BuildErr.Error()}
		}
		return d
	}

	fp := in.Fingerprint
	if !fp.Conclusive() {
		d.Verdict = Warn
		d.Reason = ReasonInconclusive
		d.Message = fmt.Sprintf("Could not detect build target... proceeding with caution (deploying to %s).", t.Class)
		if fp.Ambiguous() {
			d.Details = []string{fmt.Sprintf("Build assets reference several environments: %s.", joinClasses(fp.Conflicting))}
		}
		return d
	}

	d.BuildClass = fp.Class

	if fp.Class == t.Class {
		d.Verdict = Allow
		d.Reason = ReasonVerified
		d.Message = fmt.Sprintf("Environment verified: %s.", t.Class)
		return d
	}

	d.Verdict = Block
	d.Reason = ReasonMismatch
	d.Message = fmt.Sprintf("Environment mismatch: %s build, %s target.", fp.Class, t.Class)
	d.Suggestion = opts.DeployCommands[fp.Class]
	d.Details = []string{fmt.Sprintf("Rebuild for %s before deploying to '%s'.", t.Class, t.ProjectID)}
	if opts.Registry != nil {
		if ids := opts.Registry.ProjectsFor(fp.Class); len(ids) > 0 {
			d.Details = append(d.Details, fmt.Sprintf("This build belongs to: %s.", strings.Join(ids, ", ")))
		}
	}
	return d
}

func joinClasses(classes []registry.Class) string {
	names := make([]string, len(classes))
	for i, c := range classes {
		names[i] = c.String()
	}
	return strings.Join(names, ", ")
}
