package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bianoble/componentmgr/internal/filesystem"
)

// Load reads and validates a lock file. A missing file yields an empty
// lock file, as on a project's first install.
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading lockfile %s: %w", path, err)
	}

	lf := New()
	if err := json.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing lockfile %s: %w", path, err)
	}
	if lf.ComponentVersions == nil {
		lf.ComponentVersions = map[string]Entry{}
	}

	if errs := Validate(lf); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	return lf, nil
}

// Save overwrites the lock file atomically with pretty-printed JSON.
func Save(path string, lf *Lockfile) error {
	out := lf
	if out.ComponentVersions == nil {
		out = New()
	}
	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling lockfile: %w", err)
	}
	data = append(data, '\n')

	if err := filesystem.DumpFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing lockfile %s: %w", path, err)
	}
	return nil
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("lockfile validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks a Lockfile for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func Validate(lf *Lockfile) []string {
	var errs []string

	for _, key := range lf.Names() {
		e := lf.ComponentVersions[key]
		prefix := fmt.Sprintf("component '%s'", key)

		if e.ComponentName == "" {
			errs = append(errs, fmt.Sprintf("%s: 'componentName' is required", prefix))
		} else if e.ComponentName != key {
			errs = append(errs, fmt.Sprintf("%s: 'componentName' is '%s', expected the key", prefix, e.ComponentName))
		}
		if e.PackageRepositoryID == "" {
			errs = append(errs, fmt.Sprintf("%s: 'packageRepositoryId' is required", prefix))
		}
		if e.FinalVersion.IsArchive() && e.FinalVersion.MD5Checksum == "" {
			errs = append(errs, fmt.Sprintf("%s: archive final version requires 'md5Checksum'", prefix))
		}
	}

	return errs
}
