package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/component"
)

// rawProject mirrors the manifest. JSON is a subset of YAML, so yaml.v3
// decodes it and the mapping nodes keep declaration order.
type rawProject struct {
	Moodle              Moodle            `yaml:"moodle"`
	PackageRepositories yaml.Node         `yaml:"packageRepositories"`
	Components          yaml.Node         `yaml:"components"`
	PluginTypes         map[string]string `yaml:"pluginTypes,omitempty"`
}

type rawRepository struct {
	Options map[string]any `yaml:",inline"`
	Type    string         `yaml:"type"`
}

type rawComponent struct {
	Extra             map[string]any `yaml:",inline"`
	Version           string         `yaml:"version"`
	PackageRepository string         `yaml:"packageRepository"`
	PackageSource     string         `yaml:"packageSource"`
}

// Load reads and validates a componentmgr.json manifest.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidationFailed, "", "parsing manifest "+path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving manifest path: %w", err)
	}
	p.Dir = filepath.Dir(abs)

	if errs := Validate(p); len(errs) > 0 {
		return nil, apperrors.Wrap(apperrors.KindValidationFailed, "", "manifest "+path, &ValidationError{Errors: errs})
	}
	return p, nil
}

// Parse decodes manifest bytes without validating them.
func Parse(data []byte) (*Project, error) {
	var raw rawProject
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	p := &Project{Moodle: raw.Moodle, PluginTypes: raw.PluginTypes}

	err := eachEntry(&raw.PackageRepositories, "packageRepositories", func(name string, value *yaml.Node) error {
		var r rawRepository
		if err := value.Decode(&r); err != nil {
			return fmt.Errorf("package repository '%s': %w", name, err)
		}
		p.PackageRepositories = append(p.PackageRepositories, Repository{Name: name, Type: r.Type, Options: r.Options})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachEntry(&raw.Components, "components", func(name string, value *yaml.Node) error {
		var c rawComponent
		if err := value.Decode(&c); err != nil {
			return fmt.Errorf("component '%s': %w", name, err)
		}
		p.Components = append(p.Components, component.Specification{
			Name:              name,
			Version:           c.Version,
			PackageRepository: c.PackageRepository,
			PackageSource:     c.PackageSource,
			Extra:             c.Extra,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// eachEntry walks a mapping node in document order.
func eachEntry(node *yaml.Node, field string, fn func(key string, value *yaml.Node) error) error {
	if node.Kind == 0 {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("'%s' must be an object", field)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if err := fn(node.Content[i].Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("manifest validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks a Project for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func Validate(p *Project) []string {
	var errs []string

	repoNames := make(map[string]bool)
	for i, r := range p.PackageRepositories {
		prefix := fmt.Sprintf("packageRepositories[%d]", i)
		if r.Name != "" {
			prefix = fmt.Sprintf("package repository '%s'", r.Name)
		}

		if r.Name == "" {
			errs = append(errs, fmt.Sprintf("%s: name must not be empty", prefix))
		} else if repoNames[r.Name] {
			errs = append(errs, fmt.Sprintf("%s: duplicate package repository name '%s'", prefix, r.Name))
		} else {
			repoNames[r.Name] = true
		}
		if r.Type == "" {
			errs = append(errs, fmt.Sprintf("%s: 'type' is required", prefix))
		}
	}

	componentNames := make(map[string]bool)
	for i, c := range p.Components {
		prefix := fmt.Sprintf("components[%d]", i)
		if c.Name != "" {
			prefix = fmt.Sprintf("component '%s'", c.Name)
		}

		typ, plugin := component.SplitName(c.Name)
		switch {
		case c.Name == "":
			errs = append(errs, fmt.Sprintf("%s: name must not be empty", prefix))
		case componentNames[c.Name]:
			errs = append(errs, fmt.Sprintf("%s: duplicate component name '%s'", prefix, c.Name))
		case typ == "" || plugin == "":
			errs = append(errs, fmt.Sprintf("%s: name must have the form 'type_pluginname'", prefix))
		}
		componentNames[c.Name] = true

		if c.PackageRepository == "" {
			errs = append(errs, fmt.Sprintf("%s: 'packageRepository' is required", prefix))
		} else if !repoNames[c.PackageRepository] {
			errs = append(errs, fmt.Sprintf("%s: references undefined package repository '%s'", prefix, c.PackageRepository))
		}
		if c.PackageSource == "" {
			errs = append(errs, fmt.Sprintf("%s: 'packageSource' is required (directory, git or zip)", prefix))
		}
	}

	for typ, dir := range p.PluginTypes {
		if strings.TrimSpace(dir) == "" {
			errs = append(errs, fmt.Sprintf("plugin type '%s': directory must not be empty", typ))
		}
		if filepath.IsAbs(dir) {
			errs = append(errs, fmt.Sprintf("plugin type '%s': directory '%s' must be relative to the Moodle root", typ, dir))
		}
	}

	return errs
}
