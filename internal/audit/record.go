// Package audit keeps an opt-in trail of guard decisions.
// Records are written after the decision is made and are never read back
// by the guard itself, so they cannot influence later runs.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"deployguard/internal/decision"
	"deployguard/internal/registry"
	"deployguard/internal/scanner"

	"github.com/google/uuid"
)

// Record is one persisted decision.
type Record struct {
	RunID       string            `json:"runId"`      // Unique per invocation
	DecisionID  string            `json:"decisionId"` // Identical for identical inputs
	Timestamp   time.Time         `json:"timestamp"`
	Verdict     decision.Verdict  `json:"verdict"`
	Reason      decision.Reason   `json:"reason"`
	Message     string            `json:"message"`
	ProjectID   string            `json:"projectId,omitempty"`
	TargetClass registry.Class    `json:"targetEnvironment,omitempty"`
	BuildClass  registry.Class    `json:"buildEnvironment,omitempty"`
	Matches     []scanner.Match   `json:"matches,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"` // e.g., CI commit sha
}

// Summary is a lightweight view for listing records.
type Summary struct {
	RunID     string           `json:"runId"`
	Verdict   decision.Verdict `json:"verdict"`
	ProjectID string           `json:"projectId,omitempty"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewRecord builds a record for d with a fresh run id.
func NewRecord(d decision.Decision, fp scanner.Fingerprint, now time.Time) Record {
	return Record{
		RunID:       uuid.NewString(),
		DecisionID:  ComputeDecisionID(d, fp),
		Timestamp:   now.UTC(),
		Verdict:     d.Verdict,
		Reason:      d.Reason,
		Message:     d.Message,
		ProjectID:   d.ProjectID,
		TargetClass: d.TargetClass,
		BuildClass:  d.BuildClass,
		Matches:     fp.Matches,
	}
}

// decisionInput is the canonical form hashed into a decision id.
type decisionInput struct {
	Verdict     decision.Verdict `json:"verdict"`
	Reason      decision.Reason  `json:"reason"`
	ProjectID   string           `json:"projectId"`
	TargetClass registry.Class   `json:"targetEnvironment"`
	BuildClass  registry.Class   `json:"buildEnvironment"`
	Matches     []string         `json:"matches"`
}

// ComputeDecisionID hashes the decision and the evidence behind it.
// Match order does not affect the result.
func ComputeDecisionID(d decision.Decision, fp scanner.Fingerprint) string {
	matches := make([]string, 0, len(fp.Matches))
	for _, m := range fp.Matches {
		matches = append(matches, m.ProjectID+"\x00"+m.Asset)
	}
	sort.Strings(matches)

	data, _ := json.Marshal(decisionInput{
		Verdict:     d.Verdict,
		Reason:      d.Reason,
		ProjectID:   d.ProjectID,
		TargetClass: d.TargetClass,
		BuildClass:  d.BuildClass,
		Matches:     matches,
	})
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}
