package target

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// ErrNoMatch is returned when a source ran but named no active project.
var ErrNoMatch = errors.New("no active project found")

// ProjectSource names the project the operator is about to deploy to.
type ProjectSource interface {
	ActiveProject(ctx context.Context) (string, error)
}

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// waitDelay bounds how long output pipes are drained after the CLI is killed.
const waitDelay = 500 * time.Millisecond

// ExecRunner runs the command as a subprocess in its own process group.
// When ctx ends the whole group is killed. Standard error is folded into
// the returned error so failures carry the CLI's own explanation.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	configureProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

const defaultTimeout = 5 * time.Second

// CLISource introspects the deployment CLI and parses its text output.
type CLISource struct {
	Command []string      // argv, e.g., ["firebase", "use"]
	Timeout time.Duration // Zero means 5s
	Run     Runner        // Nil means ExecRunner
}

// ActiveProject runs the CLI once; no retries.
func (s CLISource) ActiveProject(ctx context.Context) (string, error) {
	out, err := runCLI(ctx, s.Command, s.Timeout, s.Run)
	if err != nil {
		return "", err
	}
	id, ok := ParseText(string(out))
	if !ok {
		return "", ErrNoMatch
	}
	return id, nil
}

// JSONCLISource introspects the deployment CLI in its JSON output mode.
type JSONCLISource struct {
	Command []string // argv, e.g., ["firebase", "use", "--json"]
	Timeout time.Duration
	Run     Runner
}

// ActiveProject runs the CLI once and decodes its JSON envelope.
func (s JSONCLISource) ActiveProject(ctx context.Context) (string, error) {
	out, err := runCLI(ctx, s.Command, s.Timeout, s.Run)
	if err != nil {
		return "", err
	}
	id, ok := ParseJSON(out)
	if !ok {
		return "", ErrNoMatch
	}
	return id, nil
}

func runCLI(ctx context.Context, command []string, timeout time.Duration, run Runner) ([]byte, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("no CLI command configured")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if run == nil {
		run = ExecRunner
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := run(ctx, command[0], command[1:]...)
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%s: timed out after %s", strings.Join(command, " "), timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strings.Join(command, " "), err)
	}
	return out, nil
}

var (
	ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

	// Matches "Active Project: <id>", "Active Project: <alias> (<id>)" and
	// "Now using project <id>" / "Now using alias <alias> (<id>)".
	activeProjectRe = regexp.MustCompile(`(?im)(?:active project\s*:|now using (?:project|alias))\s*([a-z0-9_.-]+)(?:\s*\(([a-z0-9_.-]+)\))?`)
)

// ParseText extracts the active project id from the CLI's human-readable
// output. Unexpected text yields false rather than an error.
func ParseText(output string) (string, bool) {
	clean := ansiRe.ReplaceAllString(output, "")
	m := activeProjectRe.FindStringSubmatch(clean)
	if m == nil {
		return "", false
	}
	id := m[1]
	if m[2] != "" {
		id = m[2]
	}
	if strings.EqualFold(id, "none") {
		return "", false
	}
	return id, true
}

// cliEnvelope is the JSON shape printed by the CLI's --json mode.
type cliEnvelope struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

// ParseJSON extracts the active project id from the CLI's JSON output.
func ParseJSON(output []byte) (string, bool) {
	var env cliEnvelope
	if err := json.Unmarshal(bytes.TrimSpace(output), &env); err != nil {
		return "", false
	}
	if env.Status != "success" {
		return "", false
	}
	var id string
	if err := json.Unmarshal(env.Result, &id); err != nil {
		return "", false
	}
	id = strings.TrimSpace(id)
	return id, id != ""
}

// FileSource reads the default project from a local .firebaserc file.
type FileSource struct {
	Path string
}

// firebaserc is the persisted CLI project configuration.
type firebaserc struct {
	Projects map[string]string `json:"projects"`
}

// ActiveProject returns projects.default from the file.
func (s FileSource) ActiveProject(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", s.Path, err)
	}

	var rc firebaserc
	if err := json.Unmarshal(data, &rc); err != nil {
		return "", fmt.Errorf("parse %s: %w", s.Path, err)
	}

	id := strings.TrimSpace(rc.Projects["default"])
	if id == "" {
		return "", fmt.Errorf("%s: %w", s.Path, ErrNoMatch)
	}
	return id, nil
}
