package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deployguard/internal/audit"
	"deployguard/internal/config"
	"deployguard/internal/decision"
	"deployguard/internal/gate"
	"deployguard/internal/scanner"
	"deployguard/internal/target"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	gate.Exit(run(os.Args[1:], os.Environ(), os.Stdout, os.Stderr))
}

// options holds the parsed command line.
type options struct {
	configPath string
	dir        string
	ciMode     bool
	jsonOutput bool
	verbose    bool
	auditDir   string
}

// run builds the command tree, executes it and returns the exit code.
// It is separated from main() to enable testing.
func run(args []string, environ []string, stdout, stderr io.Writer) int {
	code := gate.ExitProceed
	opts := &options{}

	root := &cobra.Command{
		Use:   "deployguard",
		Short: "Block deploys of a build to the wrong environment",
		Long: `deployguard compares the environment a build was compiled for with the
project the deployment CLI is pointed at. Run it as a pre-deploy hook:
it exits 0 to proceed and 1 to abort the deploy.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := runCheck(cmd.Context(), opts, environ, stdout, stderr)
			code = c
			return err
		},
	}
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default: deployguard.yaml, or $DEPLOYGUARD_CONFIG)")
	flags.StringVar(&opts.dir, "dir", ".", "project root containing the build and CLI config")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print the result as JSON")
	flags.StringVar(&opts.auditDir, "audit-dir", "", "directory for decision records (default: $DEPLOYGUARD_AUDIT_DIR)")
	root.Flags().BoolVar(&opts.ciMode, "ci", false, "print GitHub Actions annotations (default when CI=true)")
	root.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log resolution and scan details to stderr")

	root.AddCommand(newHistoryCmd(opts, environ, stdout, &code))

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		if code == gate.ExitProceed {
			code = gate.ExitUsage
		}
	}
	return code
}

// runCheck performs one guard evaluation and returns the exit code.
func runCheck(ctx context.Context, opts *options, environ []string, stdout, stderr io.Writer) (int, error) {
	cfg, cfgPath, err := config.Load(opts.configPath, environ, opts.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return gate.ExitUsage, fmt.Errorf("config file not found: %s", cfgPath)
		}
		return gate.ExitUsage, fmt.Errorf("failed to parse config: %w", err)
	}

	logger := newLogger(opts.verbose, stderr)
	defer func() { _ = logger.Sync() }()
	if cfgPath != "" {
		logger.Info("config loaded", zap.String("path", cfgPath))
	}

	resolver := target.Resolver{
		Primary:  primarySource(cfg.CLI),
		Fallback: target.FileSource{Path: joinDir(opts.dir, cfg.CLI.Fallback)},
		Registry: cfg.Registry,
		Logger:   logger.Named("target"),
	}
	active := resolver.Resolve(ctx)

	layout := scanner.Layout{
		Dir:        joinDir(opts.dir, cfg.Build.Dir),
		Entry:      cfg.Build.Entry,
		Assets:     cfg.Build.Assets,
		Extensions: cfg.Build.Extensions,
	}
	fp, buildErr := scanner.Scanner{Registry: cfg.Registry, Layout: layout, Logger: logger.Named("scanner")}.Scan()

	d := decision.Evaluate(decision.Input{
		Target:      active,
		Fingerprint: fp,
		BuildErr:    buildErr,
	}, decision.Options{DeployCommands: cfg.DeployCommands, Registry: cfg.Registry})

	logger.Info("deploy decision",
		zap.String("verdict", string(d.Verdict)),
		zap.String("reason", string(d.Reason)),
		zap.String("project", d.ProjectID),
		zap.String("target", d.TargetClass.String()),
		zap.String("build", d.BuildClass.String()))

	if dir := auditDir(opts, environ); dir != "" {
		rec := audit.NewRecord(d, fp, time.Now())
		rec.Labels = ciLabels(environ)
		if path, err := audit.NewStore(dir).Save(rec); err != nil {
			logger.Error("cannot save audit record", zap.String("dir", dir), zap.Error(err))
		} else {
			logger.Info("audit record saved", zap.String("path", path), zap.String("decisionId", rec.DecisionID))
		}
	}

	g := gate.Gate{Stdout: stdout, Stderr: stderr, Format: outputFormat(opts, environ)}
	return g.Apply(d), nil
}

// primarySource picks the text or JSON introspection strategy.
func primarySource(s config.CLISettings) target.ProjectSource {
	if s.JSON {
		return target.JSONCLISource{Command: s.Command, Timeout: s.Timeout}
	}
	return target.CLISource{Command: s.Command, Timeout: s.Timeout}
}

// newLogger writes JSON logs to w. Only errors are logged unless verbose.
func newLogger(verbose bool, w io.Writer) *zap.Logger {
	level := zapcore.ErrorLevel
	if verbose {
		level = zapcore.InfoLevel
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(w), zap.NewAtomicLevelAt(level))
	return zap.New(core).Named("deployguard")
}

func outputFormat(opts *options, environ []string) gate.Format {
	switch {
	case opts.jsonOutput:
		return gate.FormatJSON
	case opts.ciMode || getEnvBool(environ, "DEPLOYGUARD_CI") || getEnvBool(environ, "CI"):
		return gate.FormatCI
	}
	return gate.FormatText
}

// ciLabels collects CI metadata worth keeping in an audit record.
func ciLabels(environ []string) map[string]string {
	wanted := map[string]string{
		"GITHUB_SHA":        "commit",
		"GITHUB_REF_NAME":   "ref",
		"GITHUB_RUN_ID":     "ciRun",
		"GITHUB_ACTOR":      "actor",
		"GITHUB_REPOSITORY": "repository",
	}
	var labels map[string]string
	for _, env := range environ {
		idx := strings.Index(env, "=")
		if idx == -1 {
			continue
		}
		if label, ok := wanted[env[:idx]]; ok && env[idx+1:] != "" {
			if labels == nil {
				labels = make(map[string]string)
			}
			labels[label] = env[idx+1:]
		}
	}
	return labels
}

func joinDir(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// getEnvBool checks if an environment variable is set to a truthy value
func getEnvBool(environ []string, name string) bool {
	prefix := name + "="
	for _, env := range environ {
		if strings.HasPrefix(env, prefix) {
			val := strings.ToLower(strings.TrimPrefix(env, prefix))
			return val == "true" || val == "1" || val == "yes"
		}
	}
	return false
}
