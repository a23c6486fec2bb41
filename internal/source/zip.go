package source

import (
	"archive/zip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/component"
	"github.com/bianoble/componentmgr/internal/fetch"
	"github.com/bianoble/componentmgr/internal/filesystem"
)

// Zip acquires components from zip archives whose top-level directory is
// the plugin name.
type Zip struct {
	Client *fetch.Client
}

func (*Zip) ID() string   { return component.SourceTypeZip }
func (*Zip) Name() string { return "Zip archive" }

// Obtain downloads, verifies and extracts the first zip candidate. Every
// zip failure is terminal for the component.
func (z *Zip) Obtain(ctx context.Context, tempDir string, timeout time.Duration, resolved *component.ResolvedVersion,
	fs filesystem.FS, logger logr.Logger) (string, error) {
	name := resolved.Specification.Name

	archive, err := z.candidate(resolved, logger)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(tempDir, "zip")
	checksum, err := FetchArchive(ctx, z.Client, ArchiveRequest{
		Name:    name,
		Archive: archive,
		Dest:    dest,
		Timeout: timeout,
	}, fs, logger)
	if err != nil {
		return "", err
	}

	_, pluginName := component.SplitName(name)
	root := filepath.Join(dest, pluginName)
	if !fs.IsDir(root) {
		return "", apperrors.Newf(apperrors.KindMissingExpectedRoot, name,
			"archive %s has no top-level '%s/' directory", archive.ArchiveURI, pluginName)
	}

	if err := resolved.Pin(component.FinalVersion{ArchiveURI: archive.ArchiveURI, MD5Checksum: checksum}); err != nil {
		return "", err
	}
	return root, nil
}

func (z *Zip) candidate(resolved *component.ResolvedVersion, logger logr.Logger) (component.ZipSource, error) {
	if resolved.IsPinned() {
		fv := resolved.FinalVersion()
		if !fv.IsArchive() {
			return component.ZipSource{}, noSource(resolved, "pinned to ref '%s', which a zip source cannot fetch", fv.Ref)
		}
		return component.ZipSource{ArchiveURI: fv.ArchiveURI, MD5Checksum: fv.MD5Checksum}, nil
	}
	for _, s := range resolved.Version.Sources {
		if zs, ok := s.(component.ZipSource); ok {
			return zs, nil
		}
		skipCandidate(logger, component.SourceTypeZip, s)
	}
	return component.ZipSource{}, noSource(resolved, "no zip candidate among %d sources", len(resolved.Version.Sources))
}

// ArchiveRequest describes one archive to fetch.
type ArchiveRequest struct {
	// Name identifies what is being fetched in errors.
	Name    string
	Archive component.ZipSource
	// Dest is the directory the archive is extracted into.
	Dest    string
	Timeout time.Duration
}

// FetchArchive downloads an archive next to Dest, verifies its MD5 checksum
// and extracts it into Dest. It returns the checksum the archive is pinned
// by: the declared one, or the computed one when none was declared. A
// checksum mismatch leaves Dest untouched.
func FetchArchive(ctx context.Context, client *fetch.Client, r ArchiveRequest, fs filesystem.FS, logger logr.Logger) (string, error) {
	parent := filepath.Dir(r.Dest)
	if err := fs.MkdirAll(parent, 0755); err != nil {
		return "", apperrors.Wrap(apperrors.KindTempDirUnavailable, r.Name, "creating "+parent, err)
	}
	tmp, err := os.CreateTemp(parent, "download-*.zip")
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindTempDirUnavailable, r.Name, "creating download file", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	logger.V(1).Info("downloading archive", "uri", r.Archive.ArchiveURI)
	h := md5.New()
	n, err := client.Download(ctx, fetch.Request{URL: r.Archive.ArchiveURI, Timeout: r.Timeout}, io.MultiWriter(tmp, h))
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindSourceUnavailable, r.Name, "downloading "+r.Archive.ArchiveURI, err)
	}
	actual := hex.EncodeToString(h.Sum(nil))

	checksum := r.Archive.MD5Checksum
	if checksum == "" {
		logger.Info("pinning downloaded checksum", "warning", "archive declares no checksum",
			"uri", r.Archive.ArchiveURI, "md5", actual)
		checksum = actual
	} else if !strings.EqualFold(checksum, actual) {
		return "", apperrors.Newf(apperrors.KindInvalidChecksum, r.Name,
			"archive %s has md5 %s, expected %s", r.Archive.ArchiveURI, actual, checksum)
	}

	if err := extractZip(tmp, n, r.Dest, fs); err != nil {
		return "", apperrors.Wrap(apperrors.KindExtractionFailed, r.Name, "extracting "+r.Archive.ArchiveURI, err)
	}
	return checksum, nil
}

func extractZip(ra io.ReaderAt, size int64, dest string, fs filesystem.FS) error {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(dest, 0755); err != nil {
		return err
	}

	for _, f := range zr.File {
		target, err := filesystem.ValidatePath(dest, f.Name)
		if err != nil {
			return err
		}
		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := fs.MkdirAll(target, 0755); err != nil {
				return err
			}
		case mode&os.ModeSymlink != 0:
			// Links could point outside the tree once followed; plugins
			// do not ship them.
			continue
		default:
			if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := extractFile(f, target, mode.Perm()); err != nil {
				return err
			}
		}
	}
	return nil
}

func extractFile(f *zip.File, target string, perm os.FileMode) error {
	if perm == 0 {
		perm = 0644
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("writing %s: %w", f.Name, err)
	}
	return out.Close()
}
