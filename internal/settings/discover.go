package settings

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	fileName = "settings.yaml"
	dirName  = "componentmgr"

	// ProjectFileName is the settings file read from the manifest's
	// directory, so a checkout can carry its own mirrors and timeouts.
	ProjectFileName = "componentmgr.settings.yaml"
)

// Level names the layer a settings file was found at. Later levels
// override earlier ones.
type Level string

const (
	LevelSystem   Level = "system"
	LevelUser     Level = "user"
	LevelProject  Level = "project"
	LevelExplicit Level = "explicit"
)

// LayerInfo describes a discovered settings file and its load status.
type LayerInfo struct {
	Err    error // set when the file exists but could not be read
	Path   string
	Level  Level
	Loaded bool
}

// DiscoverOptions locates the settings layers.
type DiscoverOptions struct {
	// ExplicitPath is a settings file named on the command line. It must
	// exist.
	ExplicitPath string

	// ProjectDir is the directory holding componentmgr.json. Empty skips
	// the project layer.
	ProjectDir string

	// SystemPath and UserPath replace the OS defaults. Point them at a
	// missing file to skip the layer.
	SystemPath string
	UserPath   string
}

// DiscoverPaths lists the settings files to consult, lowest precedence
// first: system, user, project, explicit. A file reachable from more than
// one layer is only consulted at the lowest of them.
func DiscoverPaths(opts DiscoverOptions) []LayerInfo {
	systemPath := opts.SystemPath
	if systemPath == "" {
		systemPath = defaultSystemPath()
	}
	userPath := opts.UserPath
	if userPath == "" {
		userPath = defaultUserPath()
	}
	var projectPath string
	if opts.ProjectDir != "" {
		projectPath = filepath.Join(opts.ProjectDir, ProjectFileName)
	}

	candidates := []LayerInfo{
		{Level: LevelSystem, Path: systemPath},
		{Level: LevelUser, Path: userPath},
		{Level: LevelProject, Path: projectPath},
		{Level: LevelExplicit, Path: opts.ExplicitPath},
	}

	layers := make([]LayerInfo, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c.Path == "" {
			continue
		}
		key := c.Path
		if abs, err := filepath.Abs(c.Path); err == nil {
			key = abs
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		layers = append(layers, c)
	}
	return layers
}

func defaultSystemPath() string {
	if runtime.GOOS != "windows" {
		return filepath.Join("/etc", dirName, fileName)
	}
	programData := os.Getenv("ProgramData")
	if programData == "" {
		programData = `C:\ProgramData`
	}
	return filepath.Join(programData, dirName, fileName)
}

func defaultUserPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, dirName, fileName)
}
