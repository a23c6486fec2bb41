package source

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/bianoble/componentmgr/internal/component"
	"github.com/bianoble/componentmgr/internal/filesystem"
)

// Directory uses a component straight from a local directory. It copies
// nothing and pins nothing.
type Directory struct{}

func (*Directory) ID() string   { return component.SourceTypeDirectory }
func (*Directory) Name() string { return "Directory" }

// Obtain returns the first directory candidate that exists.
func (*Directory) Obtain(_ context.Context, _ string, _ time.Duration, resolved *component.ResolvedVersion,
	fs filesystem.FS, logger logr.Logger) (string, error) {
	for _, s := range resolved.Version.Sources {
		d, ok := s.(component.DirectorySource)
		if !ok {
			skipCandidate(logger, component.SourceTypeDirectory, s)
			continue
		}
		if fs.Exists(d.Path) {
			return d.Path, nil
		}
		logger.V(1).Info("directory candidate does not exist", "path", d.Path)
	}
	return "", noSource(resolved, "no existing directory among %d candidate sources", len(resolved.Version.Sources))
}
