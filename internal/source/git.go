package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/component"
	"github.com/bianoble/componentmgr/internal/filesystem"
	"github.com/bianoble/componentmgr/internal/process"
)

// Git acquires components by fetching a remote into a scratch repository
// and exporting the checked-out tree without VCS metadata.
type Git struct {
	Runner process.Runner
}

func (*Git) ID() string   { return component.SourceTypeGit }
func (*Git) Name() string { return "Git" }

// Obtain tries each git candidate in order. A failed git command removes
// the attempt's scratch directories and moves on to the next candidate.
// Cancellation and scratch failures end the acquisition immediately.
func (g *Git) Obtain(ctx context.Context, tempDir string, timeout time.Duration, resolved *component.ResolvedVersion,
	fs filesystem.FS, logger logr.Logger) (string, error) {
	name := resolved.Specification.Name
	if _, err := g.Runner.LookPath("git"); err != nil {
		return "", apperrors.Wrap(apperrors.KindMissingExecutable, name, "git is required for git package sources", err)
	}

	candidates, err := g.candidates(resolved, logger)
	if err != nil {
		return "", err
	}

	var attemptErrs []error
	for i, c := range candidates {
		attemptDir := filepath.Join(tempDir, fmt.Sprintf("git-%d", i))
		log := logger.WithValues("uri", c.RepositoryURI, "ref", c.Ref)

		exportDir, commit, err := g.attempt(ctx, attemptDir, c, timeout, fs)
		if err == nil {
			if err := resolved.Pin(component.FinalVersion{Ref: commit}); err != nil {
				return "", err
			}
			log.V(1).Info("checked out", "commit", commit)
			return exportDir, nil
		}

		if rmErr := fs.RemoveAll(attemptDir); rmErr != nil {
			log.Info("could not remove scratch directory", "path", attemptDir, "error", rmErr.Error())
		}
		if !apperrors.IsRetryable(err) {
			return "", err
		}
		var retry *apperrors.RetryableError
		errors.As(err, &retry)
		log.Info("git candidate failed, trying next", "error", retry.Error())
		attemptErrs = append(attemptErrs, fmt.Errorf("%s: %w", retry.Source, retry.Cause))
	}

	return "", apperrors.Wrap(apperrors.KindNoSourceAvailable, name,
		fmt.Sprintf("all %d git candidates failed", len(candidates)), errors.Join(attemptErrs...))
}

// candidates returns the pinned commit on the first git remote, or every
// git candidate when nothing is pinned.
func (g *Git) candidates(resolved *component.ResolvedVersion, logger logr.Logger) ([]component.GitSource, error) {
	var all []component.GitSource
	for _, s := range resolved.Version.Sources {
		gs, ok := s.(component.GitSource)
		if !ok {
			skipCandidate(logger, component.SourceTypeGit, s)
			continue
		}
		all = append(all, gs)
	}
	if len(all) == 0 {
		return nil, noSource(resolved, "no git candidate among %d sources", len(resolved.Version.Sources))
	}

	if !resolved.IsPinned() {
		return all, nil
	}
	fv := resolved.FinalVersion()
	if fv.IsArchive() {
		return nil, noSource(resolved, "pinned to archive %s, which a git source cannot fetch", fv.ArchiveURI)
	}
	return []component.GitSource{{RepositoryURI: all[0].RepositoryURI, Ref: fv.Ref}}, nil
}

func (g *Git) attempt(ctx context.Context, dir string, c component.GitSource, timeout time.Duration,
	fs filesystem.FS) (string, string, error) {
	repoDir := filepath.Join(dir, "repo")
	exportDir := filepath.Join(dir, "export")
	for _, d := range []string{repoDir, exportDir} {
		if err := fs.MkdirAll(d, 0755); err != nil {
			return "", "", apperrors.Wrap(apperrors.KindTempDirUnavailable, "", "creating "+d, err)
		}
	}

	steps := [][]string{
		{"init", "--quiet"},
		{"remote", "add", "origin", c.RepositoryURI},
		{"fetch", "--quiet", "--tags", "origin"},
		{"-c", "advice.detachedHead=false", "checkout", "--quiet", c.Ref},
		{"checkout-index", "-a", "-f", "--prefix=" + exportDir + string(filepath.Separator)},
	}
	label := c.RepositoryURI + "@" + c.Ref
	for _, args := range steps {
		if _, err := g.git(ctx, label, repoDir, timeout, args...); err != nil {
			return "", "", err
		}
	}

	res, err := g.git(ctx, label, repoDir, timeout, "rev-parse", "HEAD")
	if err != nil {
		return "", "", err
	}
	commit := strings.TrimSpace(res.Stdout)
	if commit == "" {
		return "", "", apperrors.Retryable(label, errors.New("git rev-parse HEAD returned nothing"))
	}
	return exportDir, commit, nil
}

// git runs one git command. Non-zero exits and per-command timeouts are
// retryable; cancellation of ctx and failures to start git are not.
func (g *Git) git(ctx context.Context, label, dir string, timeout time.Duration, args ...string) (process.Result, error) {
	res, err := process.RunChecked(ctx, g.Runner, process.Command{
		Name:    "git",
		Args:    args,
		Dir:     dir,
		Env:     []string{"GIT_TERMINAL_PROMPT=0"},
		Timeout: timeout,
	})
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	var exitErr *process.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, context.DeadlineExceeded) {
		return res, apperrors.Retryable(label, err)
	}
	return res, err
}
