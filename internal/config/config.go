package config

import (
	"time"

	"deployguard/internal/registry"
)

// FileName is the config file looked up in the project root.
const FileName = "deployguard.yaml"

// BuildLayout describes where the external build system writes its output.
type BuildLayout struct {
	Dir        string   // Build output directory, e.g., "dist"
	Entry      string   // Canonical entry file inside Dir, e.g., "index.html"
	Assets     string   // Generated asset directory inside Dir, e.g., "assets"
	Extensions []string // Asset extensions to scan; empty scans every file
}

// CLISettings controls how the deployment CLI is introspected.
type CLISettings struct {
	Command  []string      // argv, e.g., ["firebase", "use"]
	JSON     bool          // Parse the output as JSON instead of text
	Timeout  time.Duration // Upper bound on the introspection call
	Fallback string        // Local config file read when the CLI fails
}

// Config is the fully resolved guard configuration.
type Config struct {
	Registry       *registry.Registry
	DeployCommands map[registry.Class]string
	Build          BuildLayout
	CLI            CLISettings
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	return Config{
		Registry: registry.Default(),
		DeployCommands: map[registry.Class]string{
			registry.Development: "npm run deploy:dev",
			registry.Staging:     "npm run deploy:staging",
			registry.Production:  "npm run deploy:prod",
		},
		Build: BuildLayout{
			Dir:        "dist",
			Entry:      "index.html",
			Assets:     "assets",
			Extensions: []string{".js"},
		},
		CLI: CLISettings{
			Command:  []string{"firebase", "use"},
			Timeout:  5 * time.Second,
			Fallback: ".firebaserc",
		},
	}
}
