package repository

import (
	"context"

	"github.com/bianoble/componentmgr/internal/component"
	"github.com/bianoble/componentmgr/internal/config"
)

// Git serves components from bare Git remotes. The specification's version
// is the ref to check out.
type Git struct {
	id         string
	defaultURI string
}

func newGit(decl config.Repository, _ Env) (Repository, error) {
	return &Git{id: decl.Name, defaultURI: decl.OptionString("uri")}, nil
}

func (g *Git) ID() string   { return g.id }
func (g *Git) Name() string { return "Git" }

// Resolve returns one version for the declared ref. The remote comes from
// the specification's "uri", falling back to the repository's own "uri".
func (g *Git) Resolve(_ context.Context, spec component.Specification) (*component.Component, error) {
	uri := spec.ExtraString("uri")
	if uri == "" {
		uri = g.defaultURI
	}
	if uri == "" {
		return nil, missingComponent(spec, "no 'uri' declared for git repository '%s'", g.id)
	}
	if spec.Version == "" {
		return nil, missingComponent(spec, "no ref declared in 'version' for git repository '%s'", g.id)
	}
	return &component.Component{
		Name:         spec.Name,
		RepositoryID: g.id,
		Versions: []*component.Version{{
			Release: spec.Version,
			Sources: []component.Source{component.GitSource{RepositoryURI: uri, Ref: spec.Version}},
		}},
	}, nil
}

// Satisfies always holds: the specification is the ref.
func (g *Git) Satisfies(component.Specification, *component.Version) bool {
	return true
}
