// Package scanner infers which environment a compiled build was produced for
// by searching its generated assets for registered project ids.
//
// Builds carry no provenance metadata, so this is a heuristic: a false
// positive blocks a deploy, and a miss only downgrades the check to a warning.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"deployguard/internal/registry"

	"go.uber.org/zap"
)

// ErrNoBuild is returned when the build entry file does not exist.
var ErrNoBuild = errors.New("no build found")

// Layout locates a build on disk.
type Layout struct {
	Dir        string   // Build output directory
	Entry      string   // Entry file, relative to Dir
	Assets     string   // Asset directory, relative to Dir
	Extensions []string // Extensions to scan (lower-case, with dot); empty scans all
}

// Match is a registered id found inside an asset.
type Match struct {
	ProjectID string         `json:"projectId"`
	Class     registry.Class `json:"environment"`
	Asset     string         `json:"asset"` // Path relative to the asset dir
}

// Fingerprint is the evidence gathered from one scan.
type Fingerprint struct {
	Class         registry.Class   `json:"environment,omitempty"` // Unknown when inconclusive
	Matches       []Match          `json:"matches"`
	Conflicting   []registry.Class `json:"conflicting,omitempty"` // Set when Ambiguous
	AssetsScanned int              `json:"assetsScanned"`
	AssetsSkipped int              `json:"assetsSkipped"`
}

// Conclusive reports whether the scan identified exactly one class.
func (f Fingerprint) Conclusive() bool {
	return f.Class != registry.Unknown
}

// Ambiguous reports whether ids of more than one class were found.
func (f Fingerprint) Ambiguous() bool {
	return len(f.Conflicting) > 1
}

// Scanner scans a build for the ids in Registry.
type Scanner struct {
	Registry *registry.Registry
	Layout   Layout
	Logger   *zap.Logger
}

// Scan checks the entry file and then every asset. It returns ErrNoBuild
// when the entry file is missing; a build without any recognized id is an
// inconclusive Fingerprint, not an error.
func (s Scanner) Scan() (Fingerprint, error) {
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	entry := filepath.Join(s.Layout.Dir, s.Layout.Entry)
	info, err := os.Stat(entry)
	if err != nil {
		if os.IsNotExist(err) {
			return Fingerprint{}, fmt.Errorf("%w: %s", ErrNoBuild, entry)
		}
		return Fingerprint{}, fmt.Errorf("stat build entry: %w", err)
	}
	if info.IsDir() {
		return Fingerprint{}, fmt.Errorf("%w: %s is a directory", ErrNoBuild, entry)
	}

	assetDir := filepath.Join(s.Layout.Dir, s.Layout.Assets)
	assets, err := s.listAssets(assetDir)
	if err != nil {
		return Fingerprint{}, err
	}

	fp := Fingerprint{Matches: []Match{}}
	projects := s.Registry.Projects()

	for _, rel := range assets {
		content, err := os.ReadFile(filepath.Join(assetDir, rel))
		if err != nil {
			fp.AssetsSkipped++
			log.Info("skipping unreadable asset", zap.String("asset", rel), zap.Error(err))
			continue
		}
		fp.AssetsScanned++

		// One match per asset: the first id in declaration order.
		text := string(content)
		for _, p := range projects {
			if strings.Contains(text, p.ID) {
				fp.Matches = append(fp.Matches, Match{ProjectID: p.ID, Class: p.Class, Asset: rel})
				break
			}
		}
	}

	fp.Class, fp.Conflicting = classify(projects, fp.Matches)

	log.Info("build scanned",
		zap.String("environment", fp.Class.String()),
		zap.Int("matches", len(fp.Matches)),
		zap.Int("scanned", fp.AssetsScanned),
		zap.Int("skipped", fp.AssetsSkipped))

	return fp, nil
}

// classify returns the class shared by all per-asset matches. When matches
// from different assets span several classes the result is Unknown along
// with the conflicting classes in declaration order.
func classify(projects []registry.Project, matches []Match) (registry.Class, []registry.Class) {
	found := make(map[string]bool, len(matches))
	for _, m := range matches {
		found[m.ProjectID] = true
	}

	var classes []registry.Class
	seen := make(map[registry.Class]bool)
	for _, p := range projects {
		if found[p.ID] && !seen[p.Class] {
			seen[p.Class] = true
			classes = append(classes, p.Class)
		}
	}

	switch len(classes) {
	case 0:
		return registry.Unknown, nil
	case 1:
		return classes[0], nil
	default:
		return registry.Unknown, classes
	}
}

// listAssets returns asset paths relative to dir in lexical order.
// A missing asset directory yields no assets.
func (s Scanner) listAssets(dir string) ([]string, error) {
	var assets []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && os.IsNotExist(err) {
				return fs.SkipDir
			}
			// Unreadable subtree; best effort.
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			if path == dir {
				return err
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !s.wantExtension(path) {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return nil
		}
		assets = append(assets, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}

	sort.Strings(assets)
	return assets, nil
}

func (s Scanner) wantExtension(path string) bool {
	if len(s.Layout.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range s.Layout.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}
