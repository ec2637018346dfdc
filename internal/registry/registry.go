// Package registry maps infrastructure project ids to the environment class
// they were provisioned for.
package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Class represents an environment class
type Class string

const (
	Development Class = "development"
	Staging     Class = "staging"
	Production  Class = "production"

	// Unknown is returned for ids that are not registered.
	Unknown Class = ""
)

// Classes lists the supported environment classes in promotion order.
var Classes = []Class{Development, Staging, Production}

// ErrUnknownClass is returned when a class name is not one of Classes
var ErrUnknownClass = errors.New("unknown environment class")

// ParseClass converts a class name (case-insensitive) into a Class.
// "dev" and "prod" are accepted as short forms.
func ParseClass(name string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "development", "dev":
		return Development, nil
	case "staging":
		return Staging, nil
	case "production", "prod":
		return Production, nil
	}
	return Unknown, fmt.Errorf("%w: '%s', must be one of: development, staging, production", ErrUnknownClass, name)
}

// String returns the class name, or "unknown" for Unknown.
func (c Class) String() string {
	if c == Unknown {
		return "unknown"
	}
	return string(c)
}

// Valid reports whether c is one of the supported classes.
func (c Class) Valid() bool {
	for _, known := range Classes {
		if c == known {
			return true
		}
	}
	return false
}

// Project is a single registered infrastructure project.
type Project struct {
	ID     string // e.g., "passcpa-dev"
	Class  Class
	Legacy bool // Legacy alias kept for older deploy targets
}

// Registry is a read-only, ordered set of project registrations.
// Several ids may resolve to the same class.
type Registry struct {
	projects []Project
	byID     map[string]Class
}

// New builds a registry from projects in declaration order.
// Declaration order is the order the scanner checks ids in.
func New(projects ...Project) (*Registry, error) {
	r := &Registry{
		projects: make([]Project, 0, len(projects)),
		byID:     make(map[string]Class, len(projects)),
	}

	for i, p := range projects {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("project at index %d: missing id", i)
		}
		if !p.Class.Valid() {
			return nil, fmt.Errorf("project '%s': %w: '%s'", id, ErrUnknownClass, p.Class)
		}
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("duplicate project id: '%s'", id)
		}
		p.ID = id
		r.projects = append(r.projects, p)
		r.byID[id] = p.Class
	}

	if len(r.projects) == 0 {
		return nil, errors.New("registry has no projects")
	}

	return r, nil
}

// Default returns the built-in registry used when no config file declares projects.
func Default() *Registry {
	r, err := New(
		Project{ID: "passcpa-dev", Class: Development},
		Project{ID: "passcpa-staging", Class: Staging},
		Project{ID: "voraprep-prod", Class: Production},
		Project{ID: "passcpa-prod", Class: Production, Legacy: true},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// ClassOf returns the class registered for projectID, or Unknown.
func (r *Registry) ClassOf(projectID string) Class {
	return r.byID[strings.TrimSpace(projectID)]
}

// Projects returns the registrations in declaration order.
func (r *Registry) Projects() []Project {
	out := make([]Project, len(r.projects))
	copy(out, r.projects)
	return out
}

// ProjectsFor returns the ids registered for class, current ids before legacy ones.
func (r *Registry) ProjectsFor(class Class) []string {
	var current, legacy []string
	for _, p := range r.projects {
		if p.Class != class {
			continue
		}
		if p.Legacy {
			legacy = append(legacy, p.ID)
		} else {
			current = append(current, p.ID)
		}
	}
	return append(current, legacy...)
}
