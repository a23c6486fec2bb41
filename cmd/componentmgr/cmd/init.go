package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initForce bool

const initTemplate = `{
    "moodle": {
        "version": "4.1+"
    },
    "packageRepositories": {
        "moodle": {
            "type": "moodle"
        },
        "github": {
            "type": "github"
        },
        "local": {
            "type": "filesystem"
        }
    },
    "components": {
        "mod_attendance": {
            "version": "2023020107",
            "packageRepository": "moodle",
            "packageSource": "zip"
        },
        "block_example": {
            "version": "main",
            "packageRepository": "github",
            "packageSource": "git",
            "repository": "example/moodle-block_example"
        },
        "local_example": {
            "packageRepository": "local",
            "packageSource": "directory",
            "path": "plugins/local_example"
        }
    }
}
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter componentmgr.json manifest",
	Long: `Creates a componentmgr.json file with one example component for each kind of
package repository: the moodle.org plugin directory, GitHub and a local
directory.

Use --force to overwrite an existing manifest.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath := configPath
		if !filepath.IsAbs(outPath) {
			abs, err := filepath.Abs(outPath)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			outPath = abs
		}

		if !initForce {
			if _, err := os.Stat(outPath); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", outPath)
			}
		}

		if err := os.WriteFile(outPath, []byte(initTemplate), 0644); err != nil {
			return fmt.Errorf("writing manifest: %w", err)
		}

		info("Created %s", outPath)
		info("")
		info("Next steps:")
		info("  1. Edit the file to declare your components")
		info("  2. Run 'componentmgr refresh' to download plugin metadata")
		info("  3. Run 'componentmgr install' to install and lock them")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing manifest")
	rootCmd.AddCommand(initCmd)
}
