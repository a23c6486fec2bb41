// Package componentmgr provides the public Go library API for componentmgr.
//
// componentmgr installs the Moodle plugins a componentmgr.json manifest
// declares, recording the exact artifacts used in componentmgr.lock.json so
// later installs are reproducible.
//
// # Basic Usage
//
//	client, err := componentmgr.New(componentmgr.Options{
//	    ConfigPath: "/path/to/project/componentmgr.json",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Download metadata for caching repositories
//	err = client.Refresh(ctx)
//
//	// Install every component into the project directory
//	result, err := client.Install(ctx)
//
//	// Build a complete Moodle tree and package it
//	result, err = client.Package(ctx, componentmgr.PackageOptions{Format: "zip", Output: "moodle.zip"})
package componentmgr

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/cache"
	"github.com/bianoble/componentmgr/internal/config"
	"github.com/bianoble/componentmgr/internal/engine"
	"github.com/bianoble/componentmgr/internal/fetch"
	"github.com/bianoble/componentmgr/internal/filesystem"
	"github.com/bianoble/componentmgr/internal/lock"
	"github.com/bianoble/componentmgr/internal/moodle"
	"github.com/bianoble/componentmgr/internal/packager"
	"github.com/bianoble/componentmgr/internal/process"
	"github.com/bianoble/componentmgr/internal/repository"
	"github.com/bianoble/componentmgr/internal/settings"
	"github.com/bianoble/componentmgr/internal/source"
	"github.com/bianoble/componentmgr/internal/target"
)

// Options configures a componentmgr client.
type Options struct {
	// ConfigPath is the path to the manifest. Default: "componentmgr.json".
	ConfigPath string

	// LockfilePath is the path to the lock file. Default:
	// componentmgr.lock.json next to the manifest.
	LockfilePath string

	// MoodleDir is the Moodle root components install into. Default: the
	// manifest's directory.
	MoodleDir string

	// Settings are the tool settings. Nil means settings.Default().
	Settings *settings.Settings

	// Logger receives progress output. The zero value discards it.
	Logger logr.Logger

	// Runner runs git and build scripts. Nil means the os/exec runner.
	Runner process.Runner
}

// PackageOptions configures a package operation.
type PackageOptions struct {
	// Format is a packaging format: "zip" or "directory".
	Format string
	// Output is the artifact path. It must not exist.
	Output string
}

// Result describes what a task installed.
type Result struct {
	// Host is the Moodle release packaged, nil for installs.
	Host       *moodle.Version
	MoodleDir  string
	Components []InstalledComponent
}

// InstalledComponent is one installed component.
type InstalledComponent struct {
	Name           string
	RepositoryID   string
	RepositoryType string
	Version        string
	Path           string
	// FinalVersion is the locked artifact, "" when unpinned.
	FinalVersion string
}

// Client is the main entry point for the componentmgr library.
type Client struct {
	project      *config.Project
	repositories *repository.Set
	sources      *source.Registry
	fetch        *fetch.Client
	runner       process.Runner
	logger       logr.Logger
	settings     settings.Settings
	lockfilePath string
	moodleDir    string
}

// New loads the manifest and constructs its repositories. Unknown
// repository and source types fail here, before any work starts.
func New(opts Options) (*Client, error) {
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.FileName
	}
	s := settings.Default()
	if opts.Settings != nil {
		s = *opts.Settings
	}
	runner := opts.Runner
	if runner == nil {
		runner = process.ExecRunner{}
	}

	project, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	client := fetch.New()
	sources := source.Builtin(source.Env{Fetch: client, Runner: runner})
	for _, spec := range project.Components {
		if _, err := sources.Get(spec.PackageSource); err != nil {
			return nil, apperrors.Wrap(apperrors.KindMissingPackageSource, spec.Name, "invalid 'packageSource'", err)
		}
	}

	c, err := cache.New(s.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("initializing cache: %w", err)
	}
	repos, err := repository.Open(project, repository.Builtin(), repository.Env{
		Cache:    c,
		Fetch:    client,
		Settings: s,
	})
	if err != nil {
		return nil, err
	}

	lockfilePath := opts.LockfilePath
	if lockfilePath == "" {
		lockfilePath = filepath.Join(project.Dir, lock.FileName)
	}
	moodleDir := opts.MoodleDir
	if moodleDir == "" {
		moodleDir = project.Dir
	}

	return &Client{
		project:      project,
		repositories: repos,
		sources:      sources,
		fetch:        client,
		runner:       runner,
		logger:       opts.Logger,
		settings:     s,
		lockfilePath: lockfilePath,
		moodleDir:    moodleDir,
	}, nil
}

// Project returns the loaded manifest.
func (c *Client) Project() *config.Project {
	return c.project
}

// Repositories returns the repositories the manifest declares.
func (c *Client) Repositories() []repository.Repository {
	return c.repositories.All()
}

func (c *Client) env() engine.Env {
	return engine.Env{
		Project:      c.project,
		Repositories: c.repositories,
		Sources:      c.sources,
		Formats:      packager.Builtin(),
		PluginTypes:  target.NewPluginTypes(c.project.PluginTypes),
		Catalog: &moodle.Catalog{
			Client:  c.fetch,
			URL:     c.settings.Moodle.VersionsURL,
			Timeout: c.settings.Timeout,
		},
		Fetch:         c.fetch,
		Runner:        c.runner,
		FS:            filesystem.OSFS{},
		MoodleDir:     c.moodleDir,
		LockPath:      c.lockfilePath,
		TempDir:       c.settings.TempDir,
		Timeout:       c.settings.Timeout,
		RequirePinned: c.settings.RequirePinned,
	}
}

func (c *Client) run(ctx context.Context, env engine.Env, steps []engine.Step) (*Result, error) {
	task, err := engine.NewTask(env, steps)
	if err != nil {
		return nil, err
	}
	if err := task.Run(ctx, c.logger); err != nil {
		return nil, err
	}

	out := &Result{Host: task.State.Host, MoodleDir: task.State.MoodleDir}
	for _, r := range task.State.Resolved {
		ic := InstalledComponent{
			Name:         r.Specification.Name,
			RepositoryID: r.RepositoryID,
			Path:         task.State.Installed[r.Specification.Name],
			FinalVersion: r.FinalVersion().String(),
		}
		if r.Version != nil {
			ic.Version = r.Version.String()
		}
		if decl, ok := c.project.Repository(r.RepositoryID); ok {
			ic.RepositoryType = decl.Type
		}
		out.Components = append(out.Components, ic)
	}
	return out, nil
}

// Install resolves and installs every component, then rewrites the lock
// file. Caching repositories must have been refreshed.
func (c *Client) Install(ctx context.Context) (*Result, error) {
	return c.run(ctx, c.env(), engine.InstallSteps())
}

// Package installs every component into a fresh copy of the Moodle release
// the manifest names, runs component builds and packages the tree.
func (c *Client) Package(ctx context.Context, opts PackageOptions) (*Result, error) {
	if opts.Output == "" {
		return nil, fmt.Errorf("package output path is required")
	}
	if opts.Format == "" {
		opts.Format = "zip"
	}
	if _, err := packager.Builtin().Get(opts.Format); err != nil {
		return nil, err
	}
	output, err := filepath.Abs(opts.Output)
	if err != nil {
		return nil, fmt.Errorf("resolving output path: %w", err)
	}

	env := c.env()
	env.MoodleDir = ""
	env.PackageFormat = opts.Format
	env.PackageDest = output
	return c.run(ctx, env, engine.PackageSteps())
}

// Refresh downloads fresh metadata for every caching repository.
func (c *Client) Refresh(ctx context.Context) error {
	env := c.env()
	env.LockPath = ""
	_, err := c.run(ctx, env, engine.RefreshSteps())
	return err
}
