package packager

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bianoble/componentmgr/internal/apperrors"
)

func tree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "mod", "attendance"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "version.php"), []byte("<?php\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "mod", "attendance", "lib.php"), []byte("<?php // lib\n"), 0644))
	return root
}

func TestRegistry(t *testing.T) {
	reg := Builtin()
	f, err := reg.Get("zip")
	require.NoError(t, err)
	assert.Equal(t, "zip", f.ID())

	_, err = reg.Get("webdeploy")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownType))
}

func TestDirectoryPackage(t *testing.T) {
	src := tree(t)
	dest := filepath.Join(t.TempDir(), "out")

	require.NoError(t, Directory{}.Package(context.Background(), src, dest, testr.New(t)))
	content, err := os.ReadFile(filepath.Join(dest, "mod", "attendance", "lib.php"))
	require.NoError(t, err)
	assert.Equal(t, "<?php // lib\n", string(content))

	err = Directory{}.Package(context.Background(), src, dest, testr.New(t))
	assert.Error(t, err, "existing destination is not overwritten")
}

func TestZipPackage(t *testing.T) {
	src := tree(t)
	dest := filepath.Join(t.TempDir(), "dist", "moodle.zip")

	require.NoError(t, Zip{}.Package(context.Background(), src, dest, testr.New(t)))

	zr, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"moodle/",
		"moodle/mod/",
		"moodle/mod/attendance/",
		"moodle/mod/attendance/lib.php",
		"moodle/version.php",
	}, names)

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp archive left behind")
}

func TestZipPackageCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "moodle.zip")
	err := Zip{}.Package(ctx, tree(t), dest, testr.New(t))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.NoFileExists(t, dest)
}
