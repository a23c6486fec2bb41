package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/spf13/cobra"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/settings"
	"github.com/bianoble/componentmgr/pkg/componentmgr"
)

// loadSettings resolves settings from files, the environment and the
// command's flags. The manifest's directory contributes the project layer.
func loadSettings(cmd *cobra.Command) (*settings.Settings, []settings.LayerInfo, error) {
	return settings.Load(settings.LoadOptions{
		Discover: settings.DiscoverOptions{
			ExplicitPath: settingsPath,
			ProjectDir:   filepath.Dir(configPath),
		},
		Flags: cmd.Flags(),
	})
}

// newLogger builds the logger steps report progress through. Quiet mode
// discards it; verbose mode enables V(1) lines.
func newLogger(out io.Writer) logr.Logger {
	if quiet {
		return logr.Discard()
	}
	verbosity := 0
	if verbose {
		verbosity = 1
	}
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintln(out, styled(mutedStyle, prefix), args)
			return
		}
		fmt.Fprintln(out, args)
	}, funcr.Options{Verbosity: verbosity})
}

// newClient loads the manifest and settings into a library client.
func newClient(cmd *cobra.Command) (*componentmgr.Client, error) {
	s, _, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	return componentmgr.New(componentmgr.Options{
		ConfigPath:   configPath,
		LockfilePath: lockfilePath,
		MoodleDir:    moodleDir,
		Settings:     s,
		Logger:       newLogger(cmd.ErrOrStderr()),
	})
}

var commitRef = regexp.MustCompile(`^[0-9a-f]{40}$`)

// shortVersion abbreviates commit ids for display.
func shortVersion(finalVersion string) string {
	switch {
	case finalVersion == "":
		return "(unpinned)"
	case commitRef.MatchString(finalVersion):
		return finalVersion[:8]
	}
	return finalVersion
}

// renderError formats a failure for the terminal. Typed failures show
// their stable code and family.
func renderError(err error) string {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		return styled(errorStyle, "error:") + " " + err.Error()
	}
	var sb strings.Builder
	sb.WriteString(styled(errorStyle, "error"))
	sb.WriteString(" " + styled(codeStyle, appErr.Kind.String()))
	if family := appErr.Kind.Family(); family != "" {
		sb.WriteString(" " + styled(mutedStyle, "("+string(family)+")"))
	}
	sb.WriteString("\n  " + err.Error())
	if errors.Is(err, apperrors.ErrStaleCache) {
		sb.WriteString("\n  " + styled(warningStyle, "hint:") + " run 'componentmgr refresh' first")
	}
	return sb.String()
}

// info prints a line unless quiet mode is active.
func info(format string, args ...any) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// detail prints a line only in verbose mode.
func detail(format string, args ...any) {
	if verbose {
		fmt.Printf("  "+format+"\n", args...)
	}
}

// warnf prints a warning to stderr.
func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, styled(warningStyle, "warning:")+" "+format+"\n", args...)
}

func humanSize(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB"}
	size := float64(bytes)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", bytes)
	}
	return fmt.Sprintf("%.1f %s", size, units[i])
}
