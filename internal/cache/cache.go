package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/bianoble/componentmgr/internal/filesystem"
)

// Cache stores one metadata snapshot per caching repository. Snapshots are
// rewritten wholesale on refresh; the file's modification time is the
// refresh time.
type Cache struct {
	dir string
}

// New creates a Cache at the given directory.
// The directory is created if it does not exist.
func New(dir string) (*Cache, error) {
	snapDir := filepath.Join(dir, "repositories")
	if err := os.MkdirAll(snapDir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", snapDir, err)
	}
	return &Cache{dir: dir}, nil
}

// DefaultDir returns the default cache directory.
// Uses XDG_CACHE_HOME if set, otherwise ~/.cache/componentmgr.
func DefaultDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "componentmgr")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		if runtime.GOOS == "windows" {
			return filepath.Join(os.TempDir(), "componentmgr-cache")
		}
		return filepath.Join("/tmp", "componentmgr-cache")
	}
	return filepath.Join(home, ".cache", "componentmgr")
}

// Get returns the snapshot stored under key.
// Returns nil, false if nothing has been stored yet.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	path, err := c.snapshotPath(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry %s: %w", key, err)
	}
	return data, true, nil
}

// Put atomically replaces the snapshot stored under key.
func (c *Cache) Put(key string, content []byte) error {
	path, err := c.snapshotPath(key)
	if err != nil {
		return err
	}
	if err := filesystem.DumpFile(path, content, 0644); err != nil {
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	return nil
}

// ModTime returns when the snapshot under key was last written.
func (c *Cache) ModTime(key string) (time.Time, bool) {
	path, err := c.snapshotPath(key)
	if err != nil {
		return time.Time{}, false
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// Size returns the total size of the cache in bytes.
func (c *Cache) Size() (int64, error) {
	var total int64
	err := filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// Path returns the cache directory path.
func (c *Cache) Path() string {
	return c.dir
}

func (c *Cache) snapshotPath(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid cache key '%s'", key)
	}
	return filepath.Join(c.dir, "repositories", key+".json"), nil
}
