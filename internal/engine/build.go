package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/process"
	"github.com/bianoble/componentmgr/internal/transform"
)

// ComponentManifestName is the per-component manifest a plugin may ship.
const ComponentManifestName = "componentmgr.component.json"

// ComponentManifest is the embedded manifest of an installed component.
type ComponentManifest struct {
	Scripts struct {
		Build string `yaml:"build"`
	} `yaml:"scripts"`
}

// ReadComponentManifest parses dir's component manifest. It returns nil
// when the component ships none.
func ReadComponentManifest(dir string) (*ComponentManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ComponentManifestName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m ComponentManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ComponentManifestName, err)
	}
	return &m, nil
}

// BuildComponents runs the build script of each installed component that
// declares one, in its installed directory.
type BuildComponents struct{}

func (BuildComponents) Name() string { return "build-components" }

func (BuildComponents) Execute(ctx context.Context, t *Task, logger logr.Logger) error {
	for _, resolved := range t.State.Resolved {
		name := resolved.Specification.Name
		dir, ok := t.State.Installed[name]
		if !ok {
			continue
		}
		if err := t.build(ctx, name, dir, logger.WithValues("component", name)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Task) build(ctx context.Context, name, dir string, logger logr.Logger) error {
	m, err := ReadComponentManifest(dir)
	if err != nil {
		return apperrors.Wrap(apperrors.KindBuildFailed, name, "reading component manifest", err)
	}
	if m == nil || strings.TrimSpace(m.Scripts.Build) == "" {
		logger.V(1).Info("no build script")
		return nil
	}

	script, err := transform.Expand(m.Scripts.Build, transform.BuildVars(name, dir, t.State.MoodleDir))
	if err != nil {
		return apperrors.Wrap(apperrors.KindBuildFailed, name, "expanding build script", err)
	}

	cmd := shellCommand(script)
	cmd.Dir = dir
	cmd.Timeout = t.Env.Timeout
	logger.Info("building component", "script", script)

	res, err := process.RunChecked(ctx, t.Env.Runner, cmd)
	if err != nil {
		return apperrors.Wrap(apperrors.KindBuildFailed, name, "running build script", err)
	}
	if out := strings.TrimSpace(res.Stdout); out != "" {
		logger.V(1).Info("build output", "stdout", out)
	}
	return nil
}

func shellCommand(script string) process.Command {
	if runtime.GOOS == "windows" {
		return process.Command{Name: "cmd", Args: []string{"/C", script}}
	}
	return process.Command{Name: "sh", Args: []string{"-c", script}}
}
