package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bianoble/componentmgr/pkg/componentmgr"
)

var (
	packageFormat string
	packageOutput string
)

var packageCmd = &cobra.Command{
	Use:   "package",
	Short: "Build a Moodle distribution with every component installed",
	Long: `Downloads the Moodle release matching moodle.version in componentmgr.json,
installs every component into it, runs component build scripts and writes the
result in the chosen format:

  zip        a zip archive with a top-level moodle/ directory
  directory  a plain copy of the tree`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		result, err := client.Package(cmd.Context(), componentmgr.PackageOptions{
			Format: packageFormat,
			Output: packageOutput,
		})
		if err != nil {
			return err
		}
		if result.Host != nil {
			info("Moodle %s", result.Host.String())
		}
		printComponents(result)
		info("")
		info("Package written to %s.", packageOutput)
		return nil
	},
}

func init() {
	packageCmd.Flags().StringVar(&packageFormat, "format", "zip", "package format: zip or directory")
	packageCmd.Flags().StringVarP(&packageOutput, "output", "o", "", "path to write the package to")
	_ = packageCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(packageCmd)
}
