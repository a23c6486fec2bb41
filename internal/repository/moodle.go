package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-logr/logr"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/cache"
	"github.com/bianoble/componentmgr/internal/component"
	"github.com/bianoble/componentmgr/internal/config"
	"github.com/bianoble/componentmgr/internal/fetch"
)

// Moodle serves components from the moodle.org plugin directory. Metadata
// comes from a local snapshot of the plugin list, keyed by component name,
// which only Refresh rewrites.
type Moodle struct {
	cache   *cache.Cache
	client  *fetch.Client
	index   map[string]pluginEntry
	id      string
	url     string
	timeout time.Duration
	loaded  bool
}

// pluglist is the upstream plugin list payload.
type pluglist struct {
	Plugins []pluginEntry `json:"plugins"`
}

type pluginEntry struct {
	Component string          `json:"component"`
	Name      string          `json:"name,omitempty"`
	Versions  []pluginVersion `json:"versions"`
}

type pluginVersion struct {
	Version          json.Number        `json:"version"`
	Release          string             `json:"release"`
	Maturity         component.Maturity `json:"maturity"`
	DownloadURL      string             `json:"downloadurl,omitempty"`
	DownloadMD5      string             `json:"downloadmd5,omitempty"`
	VCSSystem        string             `json:"vcssystem,omitempty"`
	VCSRepositoryURL string             `json:"vcsrepositoryurl,omitempty"`
	VCSBranch        string             `json:"vcsbranch,omitempty"`
	VCSTag           string             `json:"vcstag,omitempty"`
}

func newMoodle(decl config.Repository, env Env) (Repository, error) {
	if env.Cache == nil {
		return nil, fmt.Errorf("package repository '%s': moodle repositories need a metadata cache", decl.Name)
	}
	m := &Moodle{
		cache:   env.Cache,
		client:  env.Fetch,
		id:      decl.Name,
		url:     decl.OptionString("url"),
		timeout: env.Settings.Timeout,
	}
	if m.url == "" {
		m.url = env.Settings.Moodle.PluginListURL
	}
	return m, nil
}

func (m *Moodle) ID() string   { return m.id }
func (m *Moodle) Name() string { return "Moodle plugin directory" }

// LastRefreshed is the modification time of the snapshot.
func (m *Moodle) LastRefreshed() (time.Time, bool) {
	return m.cache.ModTime(m.id)
}

// Refresh downloads the plugin list and atomically replaces the snapshot.
func (m *Moodle) Refresh(ctx context.Context, logger logr.Logger) error {
	logger.Info("refreshing plugin list", "repository", m.id, "url", m.url)

	var payload pluglist
	if err := m.client.GetJSON(ctx, fetch.Request{URL: m.url, Timeout: m.timeout}, &payload); err != nil {
		return apperrors.Wrap(apperrors.KindSourceUnavailable, "", "fetching plugin list for repository '"+m.id+"'", err)
	}

	index := make(map[string]pluginEntry, len(payload.Plugins))
	for _, p := range payload.Plugins {
		if p.Component == "" {
			continue
		}
		index[p.Component] = p
	}
	data, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("encoding plugin list: %w", err)
	}
	if err := m.cache.Put(m.id, data); err != nil {
		return err
	}

	m.index, m.loaded = index, true
	logger.V(1).Info("plugin list cached", "repository", m.id, "components", len(index))
	return nil
}

func (m *Moodle) load() (map[string]pluginEntry, error) {
	if m.loaded {
		return m.index, nil
	}
	data, ok, err := m.cache.Get(m.id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Newf(apperrors.KindStaleCache, "",
			"package repository '%s' has never been refreshed, run 'componentmgr refresh'", m.id)
	}
	var index map[string]pluginEntry
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parsing cached plugin list for repository '%s': %w", m.id, err)
	}
	m.index, m.loaded = index, true
	return index, nil
}

// Resolve builds one version per upstream release, carrying a zip source
// when a download is published and a git source when a repository is.
func (m *Moodle) Resolve(_ context.Context, spec component.Specification) (*component.Component, error) {
	index, err := m.load()
	if err != nil {
		return nil, err
	}
	entry, ok := index[spec.Name]
	if !ok {
		return nil, missingComponent(spec, "not found in plugin directory '%s'", m.id)
	}

	c := &component.Component{Name: spec.Name, RepositoryID: m.id}
	for _, pv := range entry.Versions {
		c.Versions = append(c.Versions, pv.toVersion())
	}
	return c, nil
}

// Satisfies matches the numeric version or the release name.
func (m *Moodle) Satisfies(spec component.Specification, v *component.Version) bool {
	if spec.Version == "" {
		return false
	}
	return spec.Version == v.NumberString() || spec.Version == v.Release
}

func (pv pluginVersion) toVersion() *component.Version {
	v := &component.Version{
		Release:  pv.Release,
		Maturity: pv.Maturity,
	}
	if n, err := strconv.ParseInt(pv.Version.String(), 10, 64); err == nil {
		v.Number = &n
	}
	if pv.DownloadURL != "" {
		v.Sources = append(v.Sources, component.ZipSource{ArchiveURI: pv.DownloadURL, MD5Checksum: pv.DownloadMD5})
	}
	if pv.VCSSystem == "git" && pv.VCSRepositoryURL != "" {
		ref := pv.VCSTag
		if ref == "" {
			ref = pv.VCSBranch
		}
		if ref != "" {
			v.Sources = append(v.Sources, component.GitSource{RepositoryURI: pv.VCSRepositoryURL, Ref: ref})
		}
	}
	return v
}
