// Package packager serializes an installed Moodle tree into a distributable
// artifact.
package packager

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/filesystem"
)

// Format packages the tree at src into dest.
type Format interface {
	ID() string
	Package(ctx context.Context, src, dest string, logger logr.Logger) error
}

// Registry maps format names to implementations.
type Registry struct {
	formats map[string]Format
}

// Builtin returns the registry of the supported formats.
func Builtin() *Registry {
	r := &Registry{formats: make(map[string]Format)}
	r.Register(Directory{})
	r.Register(Zip{})
	return r
}

// Register adds a format under its ID.
func (r *Registry) Register(f Format) {
	r.formats[f.ID()] = f
}

// Get returns the format with the given name.
func (r *Registry) Get(name string) (Format, error) {
	f, ok := r.formats[name]
	if !ok {
		names := make([]string, 0, len(r.formats))
		for n := range r.formats {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, apperrors.Newf(apperrors.KindUnknownType, "",
			"unknown package format '%s', supported formats: %s", name, strings.Join(names, ", "))
	}
	return f, nil
}

// Directory copies the tree to a new directory.
type Directory struct{}

func (Directory) ID() string { return "directory" }

func (Directory) Package(_ context.Context, src, dest string, logger logr.Logger) error {
	logger.V(1).Info("copying tree", "from", src, "to", dest)
	if err := filesystem.Mirror(src, dest); err != nil {
		return fmt.Errorf("packaging %s: %w", dest, err)
	}
	return nil
}

// Zip writes the tree to a zip archive with a single top-level "moodle/"
// directory, the layout Moodle's own downloads use.
type Zip struct{}

func (Zip) ID() string { return "zip" }

func (Zip) Package(ctx context.Context, src, dest string, logger logr.Logger) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".componentmgr-*.zip")
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	zw := zip.NewWriter(tmp)
	files := 0
	err = filepath.Walk(src, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		name := "moodle"
		if rel != "." {
			name += "/" + filepath.ToSlash(rel)
		}

		switch {
		case fi.IsDir():
			_, err := zw.Create(name + "/")
			return err
		case fi.Mode().IsRegular():
			files++
			return addFile(zw, path, name, fi)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("packaging %s: %w", dest, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("renaming archive to %s: %w", dest, err)
	}
	success = true

	logger.V(1).Info("wrote archive", "path", dest, "files", files)
	return nil
}

func addFile(zw *zip.Writer, path, name string, fi os.FileInfo) error {
	hdr, err := zip.FileInfoHeader(fi)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
