package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bianoble/componentmgr/internal/repository"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Download fresh metadata for caching repositories",
	Long: `Fetches the plugin list of every caching package repository the manifest
declares and replaces its local snapshot. Install and package never refresh
implicitly; they fail until a snapshot exists.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		if err := client.Refresh(cmd.Context()); err != nil {
			return err
		}

		n := 0
		for _, r := range client.Repositories() {
			if _, ok := r.(repository.Caching); ok {
				info("  %s  %s", styled(successStyle, "refreshed"), repository.String(r))
				n++
			}
		}
		if n == 0 {
			info("No caching repositories to refresh.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
