// Package settings resolves tool settings (as opposed to the project
// manifest) from defaults, settings.yaml layers, COMPONENTMGR_* environment
// variables and command-line flags, in increasing precedence.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bianoble/componentmgr/internal/cache"
)

// EnvPrefix prefixes every environment override, e.g. COMPONENTMGR_CACHE_DIR.
const EnvPrefix = "COMPONENTMGR"

const (
	DefaultTimeout             = 5 * time.Minute
	DefaultGitHubAPIURL        = "https://api.github.com"
	DefaultMoodlePluginListURL = "https://download.moodle.org/api/1.3/pluglist.php"
	DefaultMoodleVersionsURL   = "https://download.moodle.org/api/1.0/versions.php"
)

// Settings are the resolved tool settings.
type Settings struct {
	GitHub GitHub `mapstructure:"github"`
	Moodle Moodle `mapstructure:"moodle"`
	// CacheDir holds repository metadata snapshots.
	CacheDir string `mapstructure:"cache_dir"`
	// TempDir is the parent of per-task scratch directories.
	TempDir string `mapstructure:"temp_dir"`
	// Timeout bounds each acquisition and build command.
	Timeout time.Duration `mapstructure:"timeout"`
	// RequirePinned fails installs whose source did not record an artifact.
	RequirePinned bool `mapstructure:"require_pinned"`
}

// GitHub configures the hosted forge repository type.
type GitHub struct {
	APIURL string `mapstructure:"api_url"`
	Token  string `mapstructure:"token"`
}

// Moodle configures the plugin directory and host version catalog.
type Moodle struct {
	PluginListURL string `mapstructure:"plugin_list_url"`
	VersionsURL   string `mapstructure:"versions_url"`
}

// Default returns the settings used when nothing overrides them.
func Default() Settings {
	return Settings{
		CacheDir: cache.DefaultDir(),
		TempDir:  filepath.Join(os.TempDir(), "componentmgr"),
		Timeout:  DefaultTimeout,
		GitHub:   GitHub{APIURL: DefaultGitHubAPIURL},
		Moodle: Moodle{
			PluginListURL: DefaultMoodlePluginListURL,
			VersionsURL:   DefaultMoodleVersionsURL,
		},
	}
}

// flagKeys maps command-line flag names to settings keys.
var flagKeys = map[string]string{
	"cache-dir":      "cache_dir",
	"temp-dir":       "temp_dir",
	"timeout":        "timeout",
	"require-pinned": "require_pinned",
	"github-token":   "github.token",
}

// LoadOptions controls Load.
type LoadOptions struct {
	Discover DiscoverOptions
	// Flags are bound when they define any of the known flag names.
	Flags *pflag.FlagSet
}

// Load resolves the settings. Missing settings files are skipped; a file
// that exists but fails to parse is an error.
func Load(opts LoadOptions) (*Settings, []LayerInfo, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("temp_dir", d.TempDir)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("require_pinned", d.RequirePinned)
	v.SetDefault("github.api_url", d.GitHub.APIURL)
	v.SetDefault("github.token", d.GitHub.Token)
	v.SetDefault("moodle.plugin_list_url", d.Moodle.PluginListURL)
	v.SetDefault("moodle.versions_url", d.Moodle.VersionsURL)

	layers := DiscoverPaths(opts.Discover)
	for i := range layers {
		layer := &layers[i]
		if _, err := os.Stat(layer.Path); err != nil {
			if layer.Level == LevelExplicit {
				layer.Err = err
				return nil, layers, fmt.Errorf("settings file %s: %w", layer.Path, err)
			}
			continue
		}
		v.SetConfigFile(layer.Path)
		v.SetConfigType("yaml")
		if err := v.MergeInConfig(); err != nil {
			layer.Err = err
			return nil, layers, fmt.Errorf("loading settings %s: %w", layer.Path, err)
		}
		layer.Loaded = true
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for flagName, key := range flagKeys {
			f := opts.Flags.Lookup(flagName)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, layers, fmt.Errorf("binding flag --%s: %w", flagName, err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, layers, fmt.Errorf("parsing settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, layers, err
	}
	return &s, layers, nil
}

// Validate checks the resolved values.
func (s *Settings) Validate() error {
	var errs []error
	if s.CacheDir == "" {
		errs = append(errs, errors.New("cache_dir must not be empty"))
	}
	if s.TempDir == "" {
		errs = append(errs, errors.New("temp_dir must not be empty"))
	}
	if s.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", s.Timeout))
	}
	return errors.Join(errs...)
}
