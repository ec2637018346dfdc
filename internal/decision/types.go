package decision

import (
	"errors"

	"deployguard/internal/registry"
	"deployguard/internal/scanner"
	"deployguard/internal/target"
)

// Verdict is the outcome of the guard.
type Verdict string

const (
	Allow Verdict = "allow"
	Warn  Verdict = "warn" // Allowed, with a warning
	Block Verdict = "block"
)

// Proceed reports whether the deploy may continue.
func (v Verdict) Proceed() bool {
	return v == Allow || v == Warn
}

// Reason identifies the rule that produced a Decision.
type Reason string

const (
	ReasonUnresolvedTarget Reason = "unresolved-target"
	ReasonNoBuild          Reason = "no-build"
	ReasonScanFailed       Reason = "scan-failed"
	ReasonInconclusive     Reason = "inconclusive"
	ReasonVerified         Reason = "verified"
	ReasonMismatch         Reason = "mismatch"
)

// Failure classes. Only ErrInconclusive lets a deploy proceed.
var (
	ErrResolution   = errors.New("cannot determine deploy target")
	ErrMissingBuild = errors.New("no build found")
	ErrInconclusive = errors.New("could not detect build target")
	ErrMismatch     = errors.New("build and deploy target environments differ")
)

// Input is everything the engine needs; it is gathered by the resolver and scanner.
type Input struct {
	Target      target.ActiveTarget
	Fingerprint scanner.Fingerprint
	BuildErr    error // Error returned by the scanner, if any
}

// Options tune the messages a Decision carries.
type Options struct {
	DeployCommands map[registry.Class]string // Suggested per build class on mismatch
	Registry       *registry.Registry        // Names the build class's projects on mismatch; optional
}

// Decision is the engine's result.
type Decision struct {
	Verdict     Verdict        `json:"verdict"`
	Reason      Reason         `json:"reason"`
	Message     string         `json:"message"`
	ProjectID   string         `json:"projectId,omitempty"`
	TargetClass registry.Class `json:"targetEnvironment,omitempty"`
	BuildClass  registry.Class `json:"buildEnvironment,omitempty"`
	Source      target.Source  `json:"targetSource,omitempty"`
	Suggestion  string         `json:"suggestion,omitempty"`
	Details     []string       `json:"details,omitempty"`
}

// Err maps the decision onto the failure taxonomy. Allowed decisions return nil.
func (d Decision) Err() error {
	switch d.Reason {
	case ReasonUnresolvedTarget:
		return ErrResolution
	case ReasonNoBuild, ReasonScanFailed:
		return ErrMissingBuild
	case ReasonInconclusive:
		return ErrInconclusive
	case ReasonMismatch:
		return ErrMismatch
	}
	return nil
}
