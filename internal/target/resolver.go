// Package target resolves the infrastructure project a deploy is pointed at.
// The deployment CLI is asked first; its persisted config file is the fallback.
package target

import (
	"context"

	"deployguard/internal/registry"

	"go.uber.org/zap"
)

// Source records which strategy produced an ActiveTarget.
type Source string

const (
	SourceCLI    Source = "cli"
	SourceConfig Source = "config"
)

// ActiveTarget is the project a deploy currently points at.
type ActiveTarget struct {
	ProjectID string         `json:"projectId,omitempty"` // Empty when unresolved
	Class     registry.Class `json:"environment,omitempty"`
	Source    Source         `json:"source,omitempty"`
}

// Resolved reports whether a project id was found by any source.
func (t ActiveTarget) Resolved() bool {
	return t.ProjectID != ""
}

// Resolver combines a primary and fallback ProjectSource.
type Resolver struct {
	Primary  ProjectSource
	Fallback ProjectSource
	Registry *registry.Registry
	Logger   *zap.Logger
}

// Resolve returns the active target. When both sources fail the result is
// unresolved; it never guesses.
func (r Resolver) Resolve(ctx context.Context) ActiveTarget {
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if r.Primary != nil {
		id, err := r.Primary.ActiveProject(ctx)
		if err == nil && id != "" {
			return r.target(log, id, SourceCLI)
		}
		log.Info("CLI introspection did not name a project, trying fallback", zap.Error(err))
	}

	if r.Fallback != nil {
		id, err := r.Fallback.ActiveProject(ctx)
		if err == nil && id != "" {
			return r.target(log, id, SourceConfig)
		}
		log.Info("fallback config did not name a project", zap.Error(err))
	}

	log.Warn("active project unresolved")
	return ActiveTarget{}
}

func (r Resolver) target(log *zap.Logger, id string, src Source) ActiveTarget {
	t := ActiveTarget{ProjectID: id, Source: src}
	if r.Registry != nil {
		t.Class = r.Registry.ClassOf(id)
	}
	log.Info("active project resolved",
		zap.String("project", id),
		zap.String("environment", t.Class.String()),
		zap.String("source", string(src)))
	return t
}
