package engine

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/component"
	"github.com/bianoble/componentmgr/internal/moodle"
)

// VerifyRepositoriesCached fails the task unless every caching repository
// has a local snapshot.
type VerifyRepositoriesCached struct{}

func (VerifyRepositoriesCached) Name() string { return "verify-repositories-cached" }

func (VerifyRepositoriesCached) Execute(_ context.Context, t *Task, logger logr.Logger) error {
	for _, repo := range t.Env.Repositories.Caching() {
		refreshed, ok := repo.LastRefreshed()
		if !ok {
			return apperrors.Newf(apperrors.KindStaleCache, "",
				"package repository '%s' has never been refreshed, run 'componentmgr refresh'", repo.ID())
		}
		logger.V(1).Info("repository cached", "repository", repo.ID(), "refreshed", refreshed)
	}
	return nil
}

// ResolveHostVersion picks the host release matching the manifest's
// moodle.version.
type ResolveHostVersion struct{}

func (ResolveHostVersion) Name() string { return "resolve-host-version" }

func (ResolveHostVersion) Execute(ctx context.Context, t *Task, logger logr.Logger) error {
	spec := t.Env.Project.Moodle.Version
	if spec == "" {
		return apperrors.New(apperrors.KindValidationFailed, "moodle", "'moodle.version' is required to package")
	}
	if t.Env.Catalog == nil {
		return apperrors.New(apperrors.KindSourceUnavailable, "moodle", "no release catalog configured")
	}

	candidates, err := t.Env.Catalog.Versions(ctx)
	if err != nil {
		return err
	}
	host, err := moodle.Resolve(spec, candidates)
	if err != nil {
		return err
	}
	logger.Info("resolved host version", "spec", spec, "release", host.Release, "build", host.Build)
	t.State.Host = host
	return nil
}

// ResolveComponentVersions resolves every declared component to a version,
// in manifest order, and applies pins from the previous lock file.
type ResolveComponentVersions struct{}

func (ResolveComponentVersions) Name() string { return "resolve-component-versions" }

func (ResolveComponentVersions) Execute(ctx context.Context, t *Task, logger logr.Logger) error {
	for _, spec := range t.Env.Project.Components {
		repo, err := t.Env.Repositories.Get(spec.PackageRepository)
		if err != nil {
			return err
		}
		c, err := repo.Resolve(ctx, spec)
		if err != nil {
			return err
		}
		v, err := c.Resolve(spec, repo)
		if err != nil {
			return err
		}

		resolved := component.NewResolvedVersion(spec, repo.ID(), c, v)
		if entry, ok := t.State.Previous.Lookup(spec.Name, repo.ID()); ok && !entry.FinalVersion.IsZero() {
			if err := resolved.Pin(entry.FinalVersion); err != nil {
				return err
			}
			logger.V(1).Info("pinned from lock file", "component", spec.Name, "finalVersion", entry.FinalVersion.String())
		}
		logger.Info("resolved component", "component", spec.Name, "repository", repo.ID(), "version", v.String())
		t.State.Resolved = append(t.State.Resolved, resolved)
	}
	return nil
}

// RefreshRepositories rewrites the snapshot of every caching repository.
type RefreshRepositories struct{}

func (RefreshRepositories) Name() string { return "refresh-repositories" }

func (RefreshRepositories) Execute(ctx context.Context, t *Task, logger logr.Logger) error {
	for _, repo := range t.Env.Repositories.Caching() {
		logger.Info("refreshing repository", "repository", repo.ID())
		if err := repo.Refresh(ctx, logger.WithValues("repository", repo.ID())); err != nil {
			return err
		}
	}
	return nil
}
