package component

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FinalVersion is the exact artifact a package source acquired: either a
// ref (usually a commit hash) or an archive URI with its checksum.
type FinalVersion struct {
	Ref         string
	ArchiveURI  string
	MD5Checksum string
}

// IsZero reports whether no artifact is recorded.
func (f FinalVersion) IsZero() bool {
	return f.Ref == "" && f.ArchiveURI == "" && f.MD5Checksum == ""
}

// IsArchive reports whether f identifies an archive rather than a ref.
func (f FinalVersion) IsArchive() bool {
	return f.ArchiveURI != ""
}

func (f FinalVersion) String() string {
	if f.IsArchive() {
		return fmt.Sprintf("%s (md5:%s)", f.ArchiveURI, f.MD5Checksum)
	}
	return f.Ref
}

type archiveJSON struct {
	ArchiveURI  string `json:"archiveUri"`
	MD5Checksum string `json:"md5Checksum"`
}

// MarshalJSON encodes a ref as a string and an archive as
// {"archiveUri", "md5Checksum"}.
func (f FinalVersion) MarshalJSON() ([]byte, error) {
	if f.IsArchive() {
		return json.Marshal(archiveJSON{ArchiveURI: f.ArchiveURI, MD5Checksum: f.MD5Checksum})
	}
	if f.Ref == "" {
		return []byte("null"), nil
	}
	return json.Marshal(f.Ref)
}

// UnmarshalJSON accepts either form written by MarshalJSON.
func (f *FinalVersion) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = FinalVersion{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var ref string
		if err := json.Unmarshal(data, &ref); err != nil {
			return err
		}
		*f = FinalVersion{Ref: ref}
		return nil
	case len(data) > 0 && data[0] == '{':
		var a archiveJSON
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		if a.ArchiveURI == "" {
			return fmt.Errorf("final version object requires 'archiveUri'")
		}
		*f = FinalVersion{ArchiveURI: a.ArchiveURI, MD5Checksum: a.MD5Checksum}
		return nil
	}
	return fmt.Errorf("final version must be a string or an object, got %s", data)
}

// ResolvedVersion binds a specification to the version chosen for it.
type ResolvedVersion struct {
	Component     *Component
	Version       *Version
	final         FinalVersion
	RepositoryID  string
	Specification Specification
}

// NewResolvedVersion creates an unpinned resolved version.
func NewResolvedVersion(spec Specification, repositoryID string, c *Component, v *Version) *ResolvedVersion {
	return &ResolvedVersion{
		Specification: spec,
		RepositoryID:  repositoryID,
		Component:     c,
		Version:       v,
	}
}

// FinalVersion returns the pinned artifact, zero if unpinned.
func (r *ResolvedVersion) FinalVersion() FinalVersion {
	return r.final
}

// IsPinned reports whether an artifact has been recorded.
func (r *ResolvedVersion) IsPinned() bool {
	return !r.final.IsZero()
}

// Pin records the exact artifact. A pin is set once per run: pinning the
// same value again is a no-op, pinning a different one fails.
func (r *ResolvedVersion) Pin(fv FinalVersion) error {
	if fv.IsZero() {
		return fmt.Errorf("%s: cannot pin an empty final version", r.Specification.Name)
	}
	if r.IsPinned() {
		if r.final == fv {
			return nil
		}
		return fmt.Errorf("%s: already pinned to %s, refusing to re-pin to %s", r.Specification.Name, r.final, fv)
	}
	r.final = fv
	return nil
}
