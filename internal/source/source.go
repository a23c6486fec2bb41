// Package source implements package sources: the strategies that acquire a
// resolved component version onto disk. Each source handles one variant of
// component.Source and walks the version's candidates in priority order.
package source

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/component"
	"github.com/bianoble/componentmgr/internal/fetch"
	"github.com/bianoble/componentmgr/internal/filesystem"
	"github.com/bianoble/componentmgr/internal/process"
)

// PackageSource acquires resolved versions.
type PackageSource interface {
	// ID is the type name manifests use in "packageSource".
	ID() string
	Name() string
	// Obtain places the component's files under tempDir and returns the
	// directory holding the plugin root. When resolved is already pinned,
	// only the pinned artifact is attempted; otherwise the first successful
	// candidate pins it.
	Obtain(ctx context.Context, tempDir string, timeout time.Duration, resolved *component.ResolvedVersion,
		fs filesystem.FS, logger logr.Logger) (string, error)
}

// Env carries the collaborators sources are constructed with.
type Env struct {
	Fetch  *fetch.Client
	Runner process.Runner
}

// Registry maps source type strings to PackageSource implementations.
type Registry struct {
	sources map[string]PackageSource
}

// NewRegistry creates a new empty source registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]PackageSource)}
}

// Builtin returns the registry of the supported source types.
func Builtin(env Env) *Registry {
	r := NewRegistry()
	r.Register(&Directory{})
	r.Register(&Git{Runner: env.Runner})
	r.Register(&Zip{Client: env.Fetch})
	return r
}

// Register adds a source under its ID.
func (r *Registry) Register(s PackageSource) {
	r.sources[s.ID()] = s
}

// Get returns the source for the given type.
func (r *Registry) Get(sourceType string) (PackageSource, error) {
	s, ok := r.sources[sourceType]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindUnknownType, "",
			"unknown package source '%s', supported types: %s", sourceType, strings.Join(r.Types(), ", "))
	}
	return s, nil
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.sources))
	for t := range r.sources {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func skipCandidate(logger logr.Logger, want string, s component.Source) {
	logger.V(1).Info("skipping candidate source", "want", want, "type", s.SourceType())
}

func noSource(resolved *component.ResolvedVersion, format string, args ...any) *apperrors.Error {
	return apperrors.Newf(apperrors.KindNoSourceAvailable, resolved.Specification.Name, format, args...)
}
