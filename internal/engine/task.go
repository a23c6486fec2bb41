// Package engine sequences resolution, acquisition, installation and
// packaging as an ordered list of steps sharing one task state.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/component"
	"github.com/bianoble/componentmgr/internal/config"
	"github.com/bianoble/componentmgr/internal/fetch"
	"github.com/bianoble/componentmgr/internal/filesystem"
	"github.com/bianoble/componentmgr/internal/lock"
	"github.com/bianoble/componentmgr/internal/moodle"
	"github.com/bianoble/componentmgr/internal/packager"
	"github.com/bianoble/componentmgr/internal/process"
	"github.com/bianoble/componentmgr/internal/repository"
	"github.com/bianoble/componentmgr/internal/source"
	"github.com/bianoble/componentmgr/internal/target"
)

// Step is one stage of a task. A failing step aborts the task; steps that
// allocate scratch space clean it up on their own failure paths.
type Step interface {
	Name() string
	Execute(ctx context.Context, task *Task, logger logr.Logger) error
}

// HostCatalog lists the host releases ResolveHostVersion chooses from.
type HostCatalog interface {
	Versions(ctx context.Context) ([]moodle.Version, error)
}

// Env holds the collaborators and options a task runs with. It is not
// modified by steps.
type Env struct {
	Project      *config.Project
	Repositories *repository.Set
	Sources      *source.Registry
	Formats      *packager.Registry
	PluginTypes  *target.PluginTypes
	Catalog      HostCatalog
	Fetch        *fetch.Client
	Runner       process.Runner
	FS           filesystem.FS

	// MoodleDir is the install root for the install workflow. The package
	// workflow replaces it with the extracted host source.
	MoodleDir string
	// LockPath is the lock file read at task start and written on commit.
	LockPath string
	// TempDir is the parent of the per-task scratch directory.
	TempDir string
	Timeout time.Duration
	// RequirePinned fails installs whose source recorded no exact artifact.
	RequirePinned bool

	PackageFormat string
	PackageDest   string
}

// State is the mutable context threaded through the steps of one task.
type State struct {
	Host *moodle.Version
	// Previous is the lock file as it was when the task started.
	Previous *lock.Lockfile
	// Lock accumulates the entries CommitLockFile writes.
	Lock *lock.Lockfile
	// Installed maps component names to their installed directories.
	Installed map[string]string
	MoodleDir string
	// Resolved keeps manifest order.
	Resolved []*component.ResolvedVersion
}

// Task is an ordered list of steps and the state they share.
type Task struct {
	State   *State
	Env     Env
	Steps   []Step
	scratch string
}

// NewTask reads the lock file and prepares the state for steps.
func NewTask(env Env, steps []Step) (*Task, error) {
	if env.FS == nil {
		env.FS = filesystem.OSFS{}
	}
	previous := lock.New()
	if env.LockPath != "" {
		lf, err := lock.Load(env.LockPath)
		if err != nil {
			return nil, err
		}
		previous = lf
	}
	return &Task{
		Env:   env,
		Steps: steps,
		State: &State{
			Previous:  previous,
			Lock:      lock.New(),
			Installed: make(map[string]string),
			MoodleDir: env.MoodleDir,
		},
	}, nil
}

// Run executes the steps in order and stops at the first failure. The
// scratch directory is removed when Run returns.
func (t *Task) Run(ctx context.Context, logger logr.Logger) error {
	defer t.sweep(logger)

	for _, step := range t.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.V(1).Info("running step", "step", step.Name())
		if err := step.Execute(ctx, t, logger.WithName(step.Name())); err != nil {
			return fmt.Errorf("%s: %w", step.Name(), err)
		}
	}
	return nil
}

// ScratchDir returns a directory under the task's scratch root, creating
// the root on first use.
func (t *Task) ScratchDir(elem ...string) (string, error) {
	if t.scratch == "" {
		if t.Env.TempDir != "" {
			if err := t.Env.FS.MkdirAll(t.Env.TempDir, 0755); err != nil {
				return "", apperrors.Wrap(apperrors.KindTempDirUnavailable, "", "creating "+t.Env.TempDir, err)
			}
		}
		dir, err := os.MkdirTemp(t.Env.TempDir, "task-")
		if err != nil {
			return "", apperrors.Wrap(apperrors.KindTempDirUnavailable, "", "creating scratch directory", err)
		}
		t.scratch = dir
	}
	return filepath.Join(append([]string{t.scratch}, elem...)...), nil
}

func (t *Task) sweep(logger logr.Logger) {
	if t.scratch == "" {
		return
	}
	if err := t.Env.FS.RemoveAll(t.scratch); err != nil {
		logger.Info("could not remove scratch directory", "warning", err.Error(), "path", t.scratch)
	}
	t.scratch = ""
}

// InstallSteps is the install workflow.
func InstallSteps() []Step {
	return []Step{
		VerifyRepositoriesCached{},
		ResolveComponentVersions{},
		InstallComponents{},
		CommitLockFile{},
	}
}

// PackageSteps is the package workflow: install into a fresh host tree,
// build, then package it.
func PackageSteps() []Step {
	return []Step{
		VerifyRepositoriesCached{},
		ResolveHostVersion{},
		ResolveComponentVersions{},
		ObtainHostSource{},
		InstallComponents{},
		BuildComponents{},
		CommitLockFile{},
		Package{},
	}
}

// RefreshSteps updates every caching repository's snapshot.
func RefreshSteps() []Step {
	return []Step{RefreshRepositories{}}
}
