// Package repository implements package repositories: the metadata backends
// that turn a component specification into a component with candidate
// versions.
package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/cache"
	"github.com/bianoble/componentmgr/internal/component"
	"github.com/bianoble/componentmgr/internal/config"
	"github.com/bianoble/componentmgr/internal/fetch"
	"github.com/bianoble/componentmgr/internal/settings"
)

// Repository resolves specifications against one metadata backend.
type Repository interface {
	// ID is the name the manifest declared the repository under.
	ID() string
	// Name is a human-readable description of the backend.
	Name() string
	// Resolve fails with MissingComponent when the backend has no entry.
	Resolve(ctx context.Context, spec component.Specification) (*component.Component, error)
	Satisfies(spec component.Specification, version *component.Version) bool
}

// Caching is implemented by repositories that serve metadata from a local
// snapshot. The snapshot is only ever updated by an explicit Refresh.
type Caching interface {
	Repository
	// LastRefreshed returns false when no snapshot exists.
	LastRefreshed() (time.Time, bool)
	Refresh(ctx context.Context, logger logr.Logger) error
}

// Env carries the collaborators repositories are constructed with.
type Env struct {
	Cache      *cache.Cache
	Fetch      *fetch.Client
	ProjectDir string
	Settings   settings.Settings
}

// Constructor builds a repository from its manifest declaration.
type Constructor func(decl config.Repository, env Env) (Repository, error)

// Registry maps repository type strings to constructors.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry creates a new empty repository registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Builtin returns the registry of the supported repository types.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(TypeFilesystem, newFilesystem)
	r.Register(TypeGit, newGit)
	r.Register(TypeGitHub, newGitHub)
	r.Register(TypeMoodle, newMoodle)
	return r
}

// Register adds a constructor for the given repository type.
func (r *Registry) Register(repoType string, c Constructor) {
	r.constructors[repoType] = c
}

// New constructs the repository a declaration describes.
func (r *Registry) New(decl config.Repository, env Env) (Repository, error) {
	c, ok := r.constructors[decl.Type]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindUnknownType, "",
			"package repository '%s' has unknown type '%s', supported types: %s",
			decl.Name, decl.Type, strings.Join(r.Types(), ", "))
	}
	return c(decl, env)
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.constructors))
	for t := range r.constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Set holds the repositories a project declares, in declaration order.
type Set struct {
	byID  map[string]Repository
	order []Repository
}

// Open constructs every repository the project declares.
func Open(p *config.Project, reg *Registry, env Env) (*Set, error) {
	if env.ProjectDir == "" {
		env.ProjectDir = p.Dir
	}
	s := &Set{byID: make(map[string]Repository)}
	for _, decl := range p.PackageRepositories {
		repo, err := reg.New(decl, env)
		if err != nil {
			return nil, err
		}
		s.Add(repo)
	}
	return s, nil
}

// Add appends a repository, replacing any with the same id.
func (s *Set) Add(repo Repository) {
	if s.byID == nil {
		s.byID = make(map[string]Repository)
	}
	if _, ok := s.byID[repo.ID()]; ok {
		for i, r := range s.order {
			if r.ID() == repo.ID() {
				s.order[i] = repo
			}
		}
	} else {
		s.order = append(s.order, repo)
	}
	s.byID[repo.ID()] = repo
}

// Get returns the repository declared under id.
func (s *Set) Get(id string) (Repository, error) {
	repo, ok := s.byID[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindMissingPackageRepository, "",
			"package repository '%s' is not declared", id)
	}
	return repo, nil
}

// All returns the repositories in declaration order.
func (s *Set) All() []Repository {
	return s.order
}

// Caching returns the repositories that serve from a local snapshot.
func (s *Set) Caching() []Caching {
	var out []Caching
	for _, r := range s.order {
		if c, ok := r.(Caching); ok {
			out = append(out, c)
		}
	}
	return out
}

func missingComponent(spec component.Specification, format string, args ...any) error {
	return apperrors.Newf(apperrors.KindMissingComponent, spec.Name, format, args...)
}

// String helps log lines identify a repository.
func String(r Repository) string {
	return fmt.Sprintf("%s (%s)", r.ID(), r.Name())
}
