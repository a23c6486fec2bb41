// Package filesystem is the filesystem collaborator used by sources and
// install steps: existence checks, directory creation, tree mirroring,
// removal and atomic file dumps.
package filesystem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FS abstracts filesystem operations for testing.
type FS interface {
	Exists(path string) bool
	// IsDir reports whether path is a directory, following symlinks.
	IsDir(path string) bool
	MkdirAll(path string, perm os.FileMode) error
	// Mirror copies the tree at src to dst. dst must not exist.
	Mirror(src, dst string) error
	RemoveAll(path string) error
	// DumpFile writes content to path atomically.
	DumpFile(path string, content []byte, perm os.FileMode) error
}

// OSFS implements FS using the real operating system filesystem.
type OSFS struct{}

func (OSFS) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func (OSFS) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (OSFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (OSFS) RemoveAll(path string) error                  { return os.RemoveAll(path) }

func (OSFS) DumpFile(path string, content []byte, perm os.FileMode) error {
	return DumpFile(path, content, perm)
}

func (OSFS) Mirror(src, dst string) error {
	return Mirror(src, dst)
}

// DumpFile atomically writes content to path via a temp file in the same
// directory and a rename. Parent directories are created.
func DumpFile(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".componentmgr-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}

	success = true
	return nil
}

// Mirror copies the directory tree rooted at src to dst, preserving file
// modes and recreating symlinks as links.
func Mirror(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mirror source %s is not a directory", src)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("mirror target %s already exists", dst)
	}

	return filepath.Walk(src, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case fi.IsDir():
			return os.MkdirAll(target, fi.Mode().Perm()|0700)
		case fi.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("reading link %s: %w", path, err)
			}
			return os.Symlink(link, target)
		case fi.Mode().IsRegular():
			return copyFile(path, target, fi.Mode().Perm())
		}
		// Sockets, devices and pipes are not part of a plugin tree.
		return nil
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
