package settings

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolated points the system and user layers at files that do not exist.
func isolated(t *testing.T) DiscoverOptions {
	t.Helper()
	dir := t.TempDir()
	return DiscoverOptions{
		SystemPath: filepath.Join(dir, "system", fileName),
		UserPath:   filepath.Join(dir, "user", fileName),
	}
}

func writeSettings(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadDefaults(t *testing.T) {
	s, layers, err := Load(LoadOptions{Discover: isolated(t)})
	require.NoError(t, err)

	assert.Equal(t, Default(), *s)
	for _, l := range layers {
		assert.False(t, l.Loaded)
	}
}

func TestLoadLayersUserOverridesSystem(t *testing.T) {
	opts := isolated(t)
	writeSettings(t, opts.SystemPath, "cache_dir: /sys/cache\ntimeout: 30s\n")
	writeSettings(t, opts.UserPath, "cache_dir: /user/cache\nmoodle:\n  plugin_list_url: http://mirror/pluglist\n")

	s, layers, err := Load(LoadOptions{Discover: opts})
	require.NoError(t, err)

	assert.Equal(t, "/user/cache", s.CacheDir)
	assert.Equal(t, 30*time.Second, s.Timeout)
	assert.Equal(t, "http://mirror/pluglist", s.Moodle.PluginListURL)
	assert.Equal(t, DefaultMoodleVersionsURL, s.Moodle.VersionsURL)
	require.Len(t, layers, 2)
	assert.True(t, layers[0].Loaded)
	assert.True(t, layers[1].Loaded)
}

func TestLoadExplicitMustExist(t *testing.T) {
	opts := isolated(t)
	opts.ExplicitPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, layers, err := Load(LoadOptions{Discover: opts})
	require.Error(t, err)
	require.Len(t, layers, 3)
	assert.Error(t, layers[2].Err)
}

func TestLoadInvalidFile(t *testing.T) {
	opts := isolated(t)
	writeSettings(t, opts.UserPath, "cache_dir: [unterminated\n")

	_, _, err := Load(LoadOptions{Discover: opts})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading settings")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	opts := isolated(t)
	writeSettings(t, opts.UserPath, "cache_dir: /user/cache\n")
	t.Setenv("COMPONENTMGR_CACHE_DIR", "/env/cache")
	t.Setenv("COMPONENTMGR_GITHUB_TOKEN", "secret")
	t.Setenv("COMPONENTMGR_REQUIRE_PINNED", "true")

	s, _, err := Load(LoadOptions{Discover: opts})
	require.NoError(t, err)
	assert.Equal(t, "/env/cache", s.CacheDir)
	assert.Equal(t, "secret", s.GitHub.Token)
	assert.True(t, s.RequirePinned)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("COMPONENTMGR_TIMEOUT", "10s")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Duration("timeout", 0, "")
	flags.String("cache-dir", "", "")
	require.NoError(t, flags.Parse([]string{"--timeout=2m"}))

	s, _, err := Load(LoadOptions{Discover: isolated(t), Flags: flags})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, s.Timeout)
	// An unset flag does not shadow the default.
	assert.Equal(t, Default().CacheDir, s.CacheDir)
}

func TestLoadRejectsNonPositiveTimeout(t *testing.T) {
	opts := isolated(t)
	writeSettings(t, opts.UserPath, "timeout: 0s\n")

	_, _, err := Load(LoadOptions{Discover: opts})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout must be positive")
}

func TestDiscoverPathsAllLevels(t *testing.T) {
	layers := DiscoverPaths(DiscoverOptions{
		ExplicitPath: "./settings.yaml",
		ProjectDir:   "/srv/site",
		SystemPath:   "/etc/componentmgr/settings.yaml",
		UserPath:     "/home/user/.config/componentmgr/settings.yaml",
	})

	require.Len(t, layers, 4)
	assert.Equal(t, LevelSystem, layers[0].Level)
	assert.Equal(t, LevelUser, layers[1].Level)
	assert.Equal(t, LevelProject, layers[2].Level)
	assert.Equal(t, filepath.Join("/srv/site", ProjectFileName), layers[2].Path)
	assert.Equal(t, LevelExplicit, layers[3].Level)
}

func TestLoadProjectLayerOverridesUser(t *testing.T) {
	opts := isolated(t)
	opts.ProjectDir = t.TempDir()
	writeSettings(t, opts.UserPath, "cache_dir: /user/cache\ntimeout: 30s\n")
	writeSettings(t, filepath.Join(opts.ProjectDir, ProjectFileName), "cache_dir: /site/cache\nrequire_pinned: true\n")

	s, layers, err := Load(LoadOptions{Discover: opts})
	require.NoError(t, err)

	assert.Equal(t, "/site/cache", s.CacheDir)
	assert.Equal(t, 30*time.Second, s.Timeout)
	assert.True(t, s.RequirePinned)
	require.Len(t, layers, 3)
	assert.Equal(t, LevelProject, layers[2].Level)
	assert.True(t, layers[2].Loaded)
}

func TestLoadProjectLayerIsOptional(t *testing.T) {
	opts := isolated(t)
	opts.ProjectDir = t.TempDir()

	_, layers, err := Load(LoadOptions{Discover: opts})
	require.NoError(t, err)
	require.Len(t, layers, 3)
	assert.False(t, layers[2].Loaded)
}

func TestDiscoverPathsDeduplication(t *testing.T) {
	samePath, err := filepath.Abs("./settings.yaml")
	require.NoError(t, err)

	layers := DiscoverPaths(DiscoverOptions{
		ExplicitPath: samePath,
		SystemPath:   samePath,
		UserPath:     "/other/path/settings.yaml",
	})

	require.Len(t, layers, 2)
	assert.Equal(t, LevelSystem, layers[0].Level)
	assert.Equal(t, LevelUser, layers[1].Level)
}

func TestDefaultSystemPath(t *testing.T) {
	p := defaultSystemPath()
	switch runtime.GOOS {
	case "linux", "darwin":
		assert.Equal(t, "/etc/componentmgr/settings.yaml", p)
	case "windows":
		assert.True(t, filepath.IsAbs(p))
	}
}
