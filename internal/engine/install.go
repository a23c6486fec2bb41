package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/component"
	"github.com/bianoble/componentmgr/internal/lock"
	"github.com/bianoble/componentmgr/internal/source"
)

// hostRoot is the top-level directory of a Moodle release archive.
const hostRoot = "moodle"

// ObtainHostSource downloads and extracts the resolved host release. The
// extracted tree becomes the install root.
type ObtainHostSource struct{}

func (ObtainHostSource) Name() string { return "obtain-host-source" }

func (ObtainHostSource) Execute(ctx context.Context, t *Task, logger logr.Logger) error {
	host := t.State.Host
	if host == nil {
		return fmt.Errorf("no host version resolved")
	}
	if host.DownloadURI == "" {
		return apperrors.Newf(apperrors.KindNoSourceAvailable, "moodle", "release %s has no download", host.Release)
	}

	dest, err := t.ScratchDir("host")
	if err != nil {
		return err
	}
	_, err = source.FetchArchive(ctx, t.Env.Fetch, source.ArchiveRequest{
		Name:    "moodle",
		Archive: component.ZipSource{ArchiveURI: host.DownloadURI, MD5Checksum: host.MD5Checksum},
		Dest:    dest,
		Timeout: t.Env.Timeout,
	}, t.Env.FS, logger)
	if err != nil {
		_ = t.Env.FS.RemoveAll(dest)
		return err
	}

	root := filepath.Join(dest, hostRoot)
	if !t.Env.FS.IsDir(root) {
		_ = t.Env.FS.RemoveAll(dest)
		return apperrors.Newf(apperrors.KindMissingExpectedRoot, "moodle",
			"archive %s has no top-level '%s/' directory", host.DownloadURI, hostRoot)
	}
	logger.Info("obtained host source", "release", host.Release, "path", root)
	t.State.MoodleDir = root
	return nil
}

// InstallComponents acquires every resolved version and replaces its
// plugin directory under the install root.
type InstallComponents struct{}

func (InstallComponents) Name() string { return "install-components" }

func (InstallComponents) Execute(ctx context.Context, t *Task, logger logr.Logger) error {
	if t.State.MoodleDir == "" {
		return fmt.Errorf("no install root")
	}
	if err := t.Env.FS.MkdirAll(t.State.MoodleDir, 0755); err != nil {
		return fmt.Errorf("creating install root: %w", err)
	}

	for i, resolved := range t.State.Resolved {
		if err := t.install(ctx, i, resolved, logger.WithValues("component", resolved.Specification.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Task) install(ctx context.Context, i int, resolved *component.ResolvedVersion, logger logr.Logger) error {
	spec := resolved.Specification

	src, err := t.Env.Sources.Get(spec.PackageSource)
	if err != nil {
		return err
	}
	scratch, err := t.ScratchDir("components", fmt.Sprintf("%d-%s", i, spec.Name))
	if err != nil {
		return err
	}
	if err := t.Env.FS.MkdirAll(scratch, 0755); err != nil {
		return apperrors.Wrap(apperrors.KindTempDirUnavailable, spec.Name, "creating scratch directory", err)
	}
	defer func() {
		if err := t.Env.FS.RemoveAll(scratch); err != nil {
			logger.Info("could not clean scratch directory", "warning", err.Error(), "path", scratch)
		}
	}()

	logger.Info("obtaining component", "source", src.Name())
	obtained, err := src.Obtain(ctx, scratch, t.Env.Timeout, resolved, t.Env.FS, logger)
	if err != nil {
		return err
	}

	if err := t.ensurePinned(resolved, logger); err != nil {
		return err
	}

	dest, err := t.Env.PluginTypes.InstallPath(t.State.MoodleDir, spec.Name)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidationFailed, spec.Name, "locating install directory", err)
	}
	if samePath(obtained, dest) {
		logger.V(1).Info("source is already installed in place", "path", dest)
	} else {
		if t.Env.FS.Exists(dest) {
			if err := t.Env.FS.RemoveAll(dest); err != nil {
				return fmt.Errorf("removing %s: %w", dest, err)
			}
		}
		if err := t.Env.FS.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
		}
		if err := t.Env.FS.Mirror(obtained, dest); err != nil {
			return fmt.Errorf("installing %s: %w", spec.Name, err)
		}
	}

	logger.Info("installed component", "path", dest, "finalVersion", resolved.FinalVersion().String())
	t.State.Installed[spec.Name] = dest
	t.State.Lock.Record(resolved)
	return nil
}

// ensurePinned applies the declared version when the source recorded no
// exact artifact, or fails when pins are required.
func (t *Task) ensurePinned(resolved *component.ResolvedVersion, logger logr.Logger) error {
	if resolved.IsPinned() {
		return nil
	}
	spec := resolved.Specification
	if t.Env.RequirePinned {
		return apperrors.Newf(apperrors.KindNoSourceAvailable, spec.Name,
			"package source '%s' recorded no exact artifact", spec.PackageSource)
	}
	if spec.Version == "" {
		logger.Info("leaving component unpinned", "warning", "source recorded no exact artifact and no version is declared")
		return nil
	}
	logger.Info("pinning declared version", "warning", "source recorded no exact artifact", "version", spec.Version)
	return resolved.Pin(component.FinalVersion{Ref: spec.Version})
}

// samePath reports whether a and b name the same existing directory,
// however either was reached.
func samePath(a, b string) bool {
	infoA, err := os.Stat(a)
	if err != nil {
		return false
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(infoA, infoB)
}

// CommitLockFile overwrites the lock file with the entries of this run.
type CommitLockFile struct{}

func (CommitLockFile) Name() string { return "commit-lock-file" }

func (CommitLockFile) Execute(_ context.Context, t *Task, logger logr.Logger) error {
	if t.Env.LockPath == "" {
		return fmt.Errorf("no lock file path")
	}
	if err := lock.Save(t.Env.LockPath, t.State.Lock); err != nil {
		return err
	}
	logger.Info("wrote lock file", "path", t.Env.LockPath, "components", len(t.State.Lock.ComponentVersions))
	return nil
}

// Package serializes the install root in the configured format.
type Package struct{}

func (Package) Name() string { return "package" }

func (Package) Execute(ctx context.Context, t *Task, logger logr.Logger) error {
	if t.Env.PackageDest == "" {
		return fmt.Errorf("no package destination")
	}
	format, err := t.Env.Formats.Get(t.Env.PackageFormat)
	if err != nil {
		return err
	}
	if err := format.Package(ctx, t.State.MoodleDir, t.Env.PackageDest, logger); err != nil {
		return err
	}
	logger.Info("packaged", "format", format.ID(), "path", t.Env.PackageDest)
	return nil
}
