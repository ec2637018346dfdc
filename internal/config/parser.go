package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"deployguard/internal/registry"

	"gopkg.in/yaml.v3"
)

// configFile represents the YAML file structure
type configFile struct {
	Projects []projectEntry   `yaml:"projects,omitempty"`
	Deploy   map[string]string `yaml:"deploy,omitempty"`
	Build    *buildEntry       `yaml:"build,omitempty"`
	CLI      *cliEntry         `yaml:"cli,omitempty"`
}

// projectEntry represents a single registered project in YAML
type projectEntry struct {
	ID          string `yaml:"id"`
	Environment string `yaml:"environment"`
	Legacy      bool   `yaml:"legacy,omitempty"`
}

type buildEntry struct {
	Dir        string   `yaml:"dir,omitempty"`
	Entry      string   `yaml:"entry,omitempty"`
	Assets     string   `yaml:"assets,omitempty"`
	Extensions []string `yaml:"extensions,omitempty"`
}

type cliEntry struct {
	Command  []string `yaml:"command,omitempty"`
	JSON     bool     `yaml:"json,omitempty"`
	Timeout  string   `yaml:"timeout,omitempty"`
	Fallback string   `yaml:"fallback,omitempty"`
}

// ParseConfig parses YAML content into a Config.
// Sections that are absent keep their Default values.
func ParseConfig(content []byte) (Config, error) {
	var cf configFile
	if err := yaml.Unmarshal(content, &cf); err != nil {
		return Config{}, fmt.Errorf("invalid YAML: %w", err)
	}

	cfg := Default()

	if len(cf.Projects) > 0 {
		projects := make([]registry.Project, 0, len(cf.Projects))
		for i, entry := range cf.Projects {
			if entry.Environment == "" {
				return Config{}, fmt.Errorf("project at index %d: missing required field 'environment'", i)
			}
			class, err := registry.ParseClass(entry.Environment)
			if err != nil {
				return Config{}, fmt.Errorf("project '%s': %w", entry.ID, err)
			}
			projects = append(projects, registry.Project{
				ID:     entry.ID,
				Class:  class,
				Legacy: entry.Legacy,
			})
		}

		reg, err := registry.New(projects...)
		if err != nil {
			return Config{}, err
		}
		cfg.Registry = reg
	}

	names := make([]string, 0, len(cf.Deploy))
	for name := range cf.Deploy {
		names = append(names, name)
	}
	sort.Strings(names)

	setBy := make(map[registry.Class]string, len(names))
	for _, name := range names {
		command := cf.Deploy[name]
		class, err := registry.ParseClass(name)
		if err != nil {
			return Config{}, fmt.Errorf("deploy command: %w", err)
		}
		if prev, ok := setBy[class]; ok {
			return Config{}, fmt.Errorf("deploy command for '%s' is set twice ('%s' and '%s')", class, prev, name)
		}
		setBy[class] = name
		if strings.TrimSpace(command) == "" {
			return Config{}, fmt.Errorf("deploy command for '%s' is empty", class)
		}
		cfg.DeployCommands[class] = command
	}

	if b := cf.Build; b != nil {
		if b.Dir != "" {
			cfg.Build.Dir = b.Dir
		}
		if b.Entry != "" {
			cfg.Build.Entry = b.Entry
		}
		if b.Assets != "" {
			cfg.Build.Assets = b.Assets
		}
		if b.Extensions != nil {
			cfg.Build.Extensions = normalizeExtensions(b.Extensions)
		}
	}

	if c := cf.CLI; c != nil {
		if len(c.Command) > 0 {
			cfg.CLI.Command = c.Command
		} else if c.JSON {
			cfg.CLI.Command = []string{"firebase", "use", "--json"}
		}
		cfg.CLI.JSON = c.JSON
		if c.Timeout != "" {
			d, err := time.ParseDuration(c.Timeout)
			if err != nil {
				return Config{}, fmt.Errorf("cli timeout: %w", err)
			}
			if d <= 0 {
				return Config{}, fmt.Errorf("cli timeout must be positive, got %s", c.Timeout)
			}
			cfg.CLI.Timeout = d
		}
		if c.Fallback != "" {
			cfg.CLI.Fallback = c.Fallback
		}
	}

	return cfg, nil
}

// ToYAML serializes a Config back to YAML bytes
func (c Config) ToYAML() ([]byte, error) {
	cf := configFile{
		Deploy: make(map[string]string, len(c.DeployCommands)),
		Build: &buildEntry{
			Dir:        c.Build.Dir,
			Entry:      c.Build.Entry,
			Assets:     c.Build.Assets,
			Extensions: c.Build.Extensions,
		},
		CLI: &cliEntry{
			Command:  c.CLI.Command,
			JSON:     c.CLI.JSON,
			Timeout:  c.CLI.Timeout.String(),
			Fallback: c.CLI.Fallback,
		},
	}

	if c.Registry != nil {
		for _, p := range c.Registry.Projects() {
			cf.Projects = append(cf.Projects, projectEntry{
				ID:          p.ID,
				Environment: string(p.Class),
				Legacy:      p.Legacy,
			})
		}
	}

	for class, command := range c.DeployCommands {
		cf.Deploy[string(class)] = command
	}

	return yaml.Marshal(&cf)
}

// LoadFromPath reads and parses a config file from the given path
func LoadFromPath(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, err
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	return ParseConfig(content)
}

// Load resolves the config path and loads it. A missing file at the
// default location yields Default; a missing explicitly named file is an error.
func Load(flagValue string, environ []string, dir string) (Config, string, error) {
	path, explicit := ResolvePath(flagValue, environ, dir)

	cfg, err := LoadFromPath(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), "", nil
		}
		return Config{}, path, err
	}
	return cfg, path, nil
}

// ResolvePath determines the config path from flag, env var, or default.
// The second result reports whether the path was named explicitly.
func ResolvePath(flagValue string, environ []string, dir string) (string, bool) {
	// Flag takes precedence
	if flagValue != "" {
		return joinRelative(dir, flagValue), true
	}

	// Check DEPLOYGUARD_CONFIG env var
	for _, env := range environ {
		if strings.HasPrefix(env, "DEPLOYGUARD_CONFIG=") {
			path := strings.TrimPrefix(env, "DEPLOYGUARD_CONFIG=")
			if path != "" {
				return joinRelative(dir, path), true
			}
		}
	}

	return filepath.Join(dir, FileName), false
}

func joinRelative(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// normalizeExtensions lower-cases extensions and adds a leading dot.
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
