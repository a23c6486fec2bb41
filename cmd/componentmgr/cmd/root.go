package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	configPath   string
	lockfilePath string
	moodleDir    string
	settingsPath string
	verbose      bool
	quiet        bool
	noColor      bool
)

var rootCmd = &cobra.Command{
	Use:   "componentmgr",
	Short: "Reproducible Moodle plugin installs",
	Long: `componentmgr installs the Moodle plugins declared in componentmgr.json from
package repositories (the moodle.org plugin directory, GitHub, bare Git
remotes, local directories), verifies what it downloads and pins the exact
artifacts in componentmgr.lock.json so every later install is identical.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("componentmgr %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "componentmgr.json", "path to the project manifest")
	pf.StringVar(&lockfilePath, "lockfile", "", "path to the lock file (default: next to the manifest)")
	pf.StringVar(&moodleDir, "moodle-dir", "", "Moodle root to install into (default: the manifest's directory)")
	pf.StringVar(&settingsPath, "settings", "", "settings file, in addition to the system and user ones")
	pf.BoolVar(&verbose, "verbose", false, "detailed output")
	pf.BoolVar(&quiet, "quiet", false, "minimal output (errors only)")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")

	// Bound to settings keys; unset flags leave settings files and
	// COMPONENTMGR_* variables in effect.
	pf.String("cache-dir", "", "metadata cache directory")
	pf.String("temp-dir", "", "parent directory for scratch space")
	pf.Duration("timeout", 0, "timeout for each download, git and build command")
	pf.Bool("require-pinned", false, "fail when a package source records no exact artifact")
	pf.String("github-token", "", "token for GitHub API requests")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		return err
	}
	return nil
}
