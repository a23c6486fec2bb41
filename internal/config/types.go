package config

import (
	"github.com/bianoble/componentmgr/internal/component"
)

// FileName is the default project manifest name.
const FileName = "componentmgr.json"

// Project is the parsed componentmgr.json manifest.
type Project struct {
	// PluginTypes overrides or extends the plugin type -> directory map.
	PluginTypes map[string]string
	Moodle      Moodle
	// Dir is the absolute directory containing the manifest.
	Dir string
	// PackageRepositories and Components keep manifest declaration order.
	PackageRepositories []Repository
	Components          []component.Specification
}

// Moodle declares the host product version used by the package workflow.
type Moodle struct {
	Version string `yaml:"version"`
}

// Repository is a package repository declaration.
type Repository struct {
	// Options holds the type-specific fields, e.g. "url" or "apiUrl".
	Options map[string]any
	Name    string
	Type    string
}

// OptionString returns a string option, or "" if absent or not a string.
func (r Repository) OptionString(key string) string {
	v, ok := r.Options[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Repository returns the declaration named name.
func (p *Project) Repository(name string) (Repository, bool) {
	for _, r := range p.PackageRepositories {
		if r.Name == name {
			return r, true
		}
	}
	return Repository{}, false
}
