package audit

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrRecordNotFound is returned when a record doesn't exist.
var ErrRecordNotFound = errors.New("audit record not found")

// Store manages record persistence.
type Store struct {
	Dir string // Base directory for records
}

// NewStore creates a store with the given directory.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// ResolveDir returns the audit directory from the flag or DEPLOYGUARD_AUDIT_DIR.
// An empty result means auditing is disabled.
func ResolveDir(flagValue string, environ []string) string {
	if flagValue != "" {
		return flagValue
	}
	for _, env := range environ {
		if strings.HasPrefix(env, "DEPLOYGUARD_AUDIT_DIR=") {
			return strings.TrimPrefix(env, "DEPLOYGUARD_AUDIT_DIR=")
		}
	}
	return ""
}

// Save stores a record, returns the file path.
func (s *Store) Save(r Record) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", err
	}

	path := s.Path(r.RunID)

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}

	return path, nil
}

// Load retrieves a record by run id.
func (s *Store) Load(runID string) (Record, error) {
	data, err := os.ReadFile(s.Path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, err
	}

	return r, nil
}

// List returns all stored records as summaries, oldest first.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Summary{}, nil
		}
		return nil, err
	}

	summaries := []Summary{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			continue // Skip unreadable files
		}

		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			continue // Skip invalid JSON
		}

		summaries = append(summaries, Summary{
			RunID:     r.RunID,
			Verdict:   r.Verdict,
			ProjectID: r.ProjectID,
			Message:   r.Message,
			Timestamp: r.Timestamp,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Timestamp.Before(summaries[j].Timestamp)
	})

	return summaries, nil
}

// Path returns the file path for a run id.
func (s *Store) Path(runID string) string {
	safe := strings.ReplaceAll(runID, "/", "_")
	safe = strings.ReplaceAll(safe, "\\", "_")
	return filepath.Join(s.Dir, safe+".json")
}
