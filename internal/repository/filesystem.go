package repository

import (
	"context"
	"path/filepath"

	"github.com/bianoble/componentmgr/internal/component"
	"github.com/bianoble/componentmgr/internal/config"
)

// Repository type names.
const (
	TypeFilesystem = "filesystem"
	TypeGit        = "git"
	TypeGitHub     = "github"
	TypeMoodle     = "moodle"
)

// Filesystem serves components from local directories named by each
// specification's "path". Relative paths are taken from the project
// directory.
type Filesystem struct {
	id         string
	projectDir string
}

func newFilesystem(decl config.Repository, env Env) (Repository, error) {
	return &Filesystem{id: decl.Name, projectDir: env.ProjectDir}, nil
}

func (f *Filesystem) ID() string   { return f.id }
func (f *Filesystem) Name() string { return "Filesystem" }

// Resolve returns a single unversioned version with one directory source.
func (f *Filesystem) Resolve(_ context.Context, spec component.Specification) (*component.Component, error) {
	path := spec.ExtraString("path")
	if path == "" {
		return nil, missingComponent(spec, "no 'path' declared for filesystem repository '%s'", f.id)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.projectDir, path)
	}
	return &component.Component{
		Name:         spec.Name,
		RepositoryID: f.id,
		Versions: []*component.Version{{
			Sources: []component.Source{component.DirectorySource{Path: filepath.Clean(path)}},
		}},
	}, nil
}

// Satisfies always holds: the directory is whatever version it contains.
func (f *Filesystem) Satisfies(component.Specification, *component.Version) bool {
	return true
}
