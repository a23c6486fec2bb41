package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bianoble/componentmgr/pkg/componentmgr"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the components declared in componentmgr.json",
	Long: `Resolves every component against its package repository, acquires it
through its package source and replaces its plugin directory under the Moodle
root. Components already pinned in the lock file are fetched at exactly the
pinned artifact. The lock file is rewritten when every component installed.

Caching repositories must have been refreshed with 'componentmgr refresh'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		result, err := client.Install(cmd.Context())
		if err != nil {
			return err
		}
		printComponents(result)
		info("")
		info("Install complete: %d component(s).", len(result.Components))
		return nil
	},
}

func printComponents(result *componentmgr.Result) {
	for _, c := range result.Components {
		info("  %s  %s  %s", styled(successStyle, "installed"), c.Name, shortVersion(c.FinalVersion))
		detail("  repository: %s (%s)", c.RepositoryID, c.RepositoryType)
		detail("  path:       %s", c.Path)
		if c.FinalVersion == "" {
			warnf("%s is not pinned to an exact artifact", c.Name)
		}
	}
}

func init() {
	rootCmd.AddCommand(installCmd)
}
