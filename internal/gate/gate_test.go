package gate

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"deployguard/internal/decision"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func apply(format Format, d decision.Decision) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Gate{Stdout: &stdout, Stderr: &stderr, Format: format}.Apply(d)
	return code, stdout.String(), stderr.String()
}

func TestApply_AllowPrintsToStdout(t *testing.T) {
	code, stdout, stderr := apply(FormatText, decision.Decision{
		Verdict: decision.Allow,
		Message: "Environment verified: development.",
	})

	assert.Equal(t, ExitProceed, code)
	assert.Contains(t, stdout, "Environment verified: development.")
	assert.Empty(t, stderr)
}

func TestApply_WarnProceeds(t *testing.T) {
	code, stdout, stderr := apply(FormatText, decision.Decision{
		Verdict: decision.Warn,
		Message: "Could not detect build target... proceeding with caution.",
	})

	assert.Equal(t, ExitProceed, code)
	assert.Contains(t, stdout, "proceeding with caution")
	assert.Empty(t, stderr)
}

func TestApply_BlockPrintsToStderr(t *testing.T) {
	code, stdout, stderr := apply(FormatText, decision.Decision{
		Verdict: decision.Block,
		Message: "No build found.",
	})

	assert.Equal(t, ExitBlocked, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "No build found.")
}

func TestApply_CIAndJSONFormats(t *testing.T) {
	d := decision.Decision{Verdict: decision.Block, Reason: decision.ReasonMismatch, Message: "mismatch"}

	_, _, stderr := apply(FormatCI, d)
	assert.True(t, strings.HasPrefix(stderr, "::error "))

	_, _, stderr = apply(FormatJSON, d)
	var decoded map[string]interface{}
	assert.NoError(t, json.Unmarshal([]byte(stderr), &decoded))
	assert.Equal(t, "block", decoded["verdict"])
}

// For any verdict, the exit code SHALL be zero exactly when the verdict proceeds.
func TestApply_ExitCode_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("exit code follows verdict", prop.ForAll(
		func(v decision.Verdict, msg string, f Format) bool {
			code, _, _ := apply(f, decision.Decision{Verdict: v, Message: msg})
			if v == decision.Block {
				return code == ExitBlocked
			}
			return code == ExitProceed
		},
		gen.OneConstOf(decision.Allow, decision.Warn, decision.Block),
		gen.AlphaString(),
		gen.OneConstOf(FormatText, FormatCI, FormatJSON),
	))

	properties.TestingRun(t)
}
