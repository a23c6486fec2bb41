// Package component holds the data model shared by repositories, sources
// and the install pipeline.
package component

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Specification is a component as declared in the project manifest.
type Specification struct {
	// Extra holds backend-specific fields such as "path", "uri" or "repository".
	Extra             map[string]any
	Name              string
	Version           string
	PackageRepository string
	PackageSource     string
}

// ExtraString returns a string extra field, or "" if absent or not a string.
func (s Specification) ExtraString(key string) string {
	v, ok := s.Extra[key]
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// Component is a named plugin with the versions a repository offers for it.
type Component struct {
	Name string
	// RepositoryID names the repository that produced this component. The
	// component does not own the repository; it is looked up by id.
	RepositoryID string
	Versions     []*Version
}

// PluginType returns the "type" part of a "type_pluginname" name.
func (c *Component) PluginType() string {
	t, _ := SplitName(c.Name)
	return t
}

// PluginName returns the "pluginname" part of a "type_pluginname" name.
func (c *Component) PluginName() string {
	_, n := SplitName(c.Name)
	return n
}

// SplitName splits a "type_pluginname" name at the first underscore.
func SplitName(name string) (pluginType, pluginName string) {
	t, n, ok := strings.Cut(name, "_")
	if !ok {
		return "", name
	}
	return t, n
}

// Version is one installable version of a component.
type Version struct {
	// Number is the numeric version; nil for unversioned sources.
	Number   *int64
	Release  string
	Sources  []Source // in priority order
	Maturity Maturity
}

// NumberString returns the numeric version as a string, or "" if unset.
func (v *Version) NumberString() string {
	if v.Number == nil {
		return ""
	}
	return strconv.FormatInt(*v.Number, 10)
}

func (v *Version) String() string {
	switch {
	case v.Number != nil && v.Release != "":
		return fmt.Sprintf("%s (%d)", v.Release, *v.Number)
	case v.Number != nil:
		return strconv.FormatInt(*v.Number, 10)
	case v.Release != "":
		return v.Release
	}
	return "(unversioned)"
}

// Maturity is Moodle's release-quality ordinal.
type Maturity int

const (
	MaturityUnknown Maturity = 0
	MaturityAlpha   Maturity = 50
	MaturityBeta    Maturity = 100
	MaturityRC      Maturity = 150
	MaturityStable  Maturity = 200
)

func (m Maturity) String() string {
	switch m {
	case MaturityAlpha:
		return "alpha"
	case MaturityBeta:
		return "beta"
	case MaturityRC:
		return "rc"
	case MaturityStable:
		return "stable"
	}
	return "unknown"
}

// ParseMaturity parses a maturity name or its numeric ordinal.
func ParseMaturity(s string) (Maturity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "alpha", "50":
		return MaturityAlpha, nil
	case "beta", "100":
		return MaturityBeta, nil
	case "rc", "150":
		return MaturityRC, nil
	case "stable", "200":
		return MaturityStable, nil
	}
	return MaturityUnknown, fmt.Errorf("unknown maturity '%s', must be one of: alpha, beta, rc, stable", s)
}

// UnmarshalJSON accepts the numeric ordinal Moodle's APIs send as well as
// a maturity name.
func (m *Maturity) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseMaturity(s)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("invalid maturity %s: %w", data, err)
	}
	*m = Maturity(n)
	return nil
}

// Source type names, shared with the package source registry.
const (
	SourceTypeDirectory = "directory"
	SourceTypeGit       = "git"
	SourceTypeZip       = "zip"
)

// Source is a candidate location for a version's files. Exactly one package
// source implementation handles each variant.
type Source interface {
	SourceType() string
}

// DirectorySource is a local directory.
type DirectorySource struct {
	Path string
}

// GitSource is a ref within a Git repository.
type GitSource struct {
	RepositoryURI string
	Ref           string
}

// ZipSource is a downloadable archive with its expected MD5 checksum.
type ZipSource struct {
	ArchiveURI  string
	MD5Checksum string
}

func (DirectorySource) SourceType() string { return SourceTypeDirectory }
func (GitSource) SourceType() string       { return SourceTypeGit }
func (ZipSource) SourceType() string       { return SourceTypeZip }
