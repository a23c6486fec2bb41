package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bianoble/componentmgr/internal/cache"
	"github.com/bianoble/componentmgr/internal/repository"
	"github.com/bianoble/componentmgr/internal/target"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show settings, cache and repository status",
	Long: `Displays the componentmgr version, the settings files consulted, the cache
directory and size, and, when the manifest loads, each package repository with
the time its metadata was last refreshed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, layers, err := loadSettings(cmd)
		if err != nil {
			return err
		}

		fmt.Printf("componentmgr %s\n", version)
		fmt.Println("  settings:")
		for _, l := range layers {
			status := "not found"
			if l.Loaded {
				status = "loaded"
			}
			fmt.Printf("    %-10s %s (%s)\n", string(l.Level)+":", l.Path, status)
		}
		fmt.Printf("  manifest:      %s\n", configPath)
		fmt.Printf("  cache dir:     %s\n", s.CacheDir)
		if c, err := cache.New(s.CacheDir); err == nil {
			if size, err := c.Size(); err == nil {
				fmt.Printf("  cache size:    %s\n", humanSize(size))
			}
		}
		fmt.Printf("  temp dir:      %s\n", s.TempDir)
		fmt.Printf("  timeout:       %s\n", s.Timeout)

		client, err := newClient(cmd)
		if err != nil {
			fmt.Printf("\n%s %v\n", styled(warningStyle, "manifest not loaded:"), err)
			return nil
		}

		fmt.Println("\nPackage repositories:")
		for _, r := range client.Repositories() {
			refreshed := ""
			if c, ok := r.(repository.Caching); ok {
				refreshed = "  never refreshed"
				if t, ok := c.LastRefreshed(); ok {
					refreshed = "  refreshed " + t.Format(time.RFC3339)
				}
			}
			fmt.Printf("  %-15s %s%s\n", r.ID(), r.Name(), refreshed)
		}

		project := client.Project()
		if len(project.PluginTypes) > 0 {
			pt := target.NewPluginTypes(project.PluginTypes)
			fmt.Println("\nPlugin type overrides:")
			for _, name := range pt.Types() {
				if !pt.IsOverride(name) {
					continue
				}
				dir, _ := pt.Dir(name)
				fmt.Printf("  %-15s → %s\n", name, dir)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
