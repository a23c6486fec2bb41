package lock

import (
	"sort"

	"github.com/bianoble/componentmgr/internal/component"
)

// FileName is the lock file written next to the manifest.
const FileName = "componentmgr.lock.json"

// Lockfile represents the componentmgr.lock.json file.
type Lockfile struct {
	ComponentVersions map[string]Entry `json:"componentVersions"`
}

// Entry records the exact artifact installed for one component.
type Entry struct {
	ComponentName       string                 `json:"componentName"`
	PackageRepositoryID string                 `json:"packageRepositoryId"`
	FinalVersion        component.FinalVersion `json:"finalVersion"`
}

// New returns an empty lock file.
func New() *Lockfile {
	return &Lockfile{ComponentVersions: map[string]Entry{}}
}

// FromResolved builds the entry persisted for a resolved version.
func FromResolved(r *component.ResolvedVersion) Entry {
	return Entry{
		ComponentName:       r.Specification.Name,
		PackageRepositoryID: r.RepositoryID,
		FinalVersion:        r.FinalVersion(),
	}
}

// Record adds or replaces the entry for a resolved version.
func (lf *Lockfile) Record(r *component.ResolvedVersion) {
	if lf.ComponentVersions == nil {
		lf.ComponentVersions = map[string]Entry{}
	}
	e := FromResolved(r)
	lf.ComponentVersions[e.ComponentName] = e
}

// Lookup returns the entry for a component when it was recorded against
// the same package repository. An entry from another repository is stale.
func (lf *Lockfile) Lookup(componentName, repositoryID string) (Entry, bool) {
	if lf == nil {
		return Entry{}, false
	}
	e, ok := lf.ComponentVersions[componentName]
	if !ok || e.PackageRepositoryID != repositoryID {
		return Entry{}, false
	}
	return e, true
}

// Names returns the locked component names, sorted.
func (lf *Lockfile) Names() []string {
	names := make([]string, 0, len(lf.ComponentVersions))
	for name := range lf.ComponentVersions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
