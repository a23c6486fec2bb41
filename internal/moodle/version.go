// Package moodle models host product (Moodle) releases and selects the one a
// manifest's "moodle.version" asks for.
package moodle

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/component"
)

// Match scores.
const (
	ScoreNone    = 0
	ScorePartial = 50
	ScoreFull    = 100
)

var branchSpec = regexp.MustCompile(`^(\d+)\.(\d+)(\+)?$`)

// Version is one downloadable Moodle release.
type Version struct {
	// Build is the version.php number, e.g. "2017051502.06". A fractional
	// part marks a weekly fixes build.
	Build       string             `json:"build"`
	Release     string             `json:"release"`
	Branch      string             `json:"branch,omitempty"`
	DownloadURI string             `json:"downloadurl"`
	MD5Checksum string             `json:"downloadmd5"`
	Maturity    component.Maturity `json:"maturity"`
}

func (v Version) String() string {
	return fmt.Sprintf("%s (build %s)", v.Release, v.Build)
}

// HasFixes reports whether the build number has a non-zero fractional part.
func (v Version) HasFixes() bool {
	_, frac, ok := strings.Cut(v.Build, ".")
	return ok && strings.Trim(frac, "0") != ""
}

// BranchName returns the "major.minor" branch, derived from the release when
// the catalog did not state it.
func (v Version) BranchName() string {
	if v.Branch != "" {
		return v.Branch
	}
	release, _, _ := strings.Cut(strings.TrimSpace(v.Release), " ")
	release = strings.TrimRight(release, "+")
	sv, err := semver.NewVersion(release)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d.%d", sv.Major(), sv.Minor())
}

// Satisfies scores how well v matches spec: an exact build number is a full
// match; a branch spec "S.M" or "S.M+" matches same-branch releases, fully
// when the fixes flag agrees with the trailing "+" and partially otherwise.
func (v Version) Satisfies(spec string) int {
	spec = strings.TrimSpace(spec)
	if spec == v.Build {
		return ScoreFull
	}

	m := branchSpec.FindStringSubmatch(spec)
	if m == nil {
		return ScoreNone
	}
	if m[1]+"."+m[2] != v.BranchName() {
		return ScoreNone
	}
	if v.HasFixes() == (m[3] == "+") {
		return ScoreFull
	}
	return ScorePartial
}

// Resolve picks the best-scoring candidate. On a tie the candidate that
// appears later in the list wins.
func Resolve(spec string, candidates []Version) (*Version, error) {
	var best *Version
	bestScore := ScoreNone
	for i := range candidates {
		score := candidates[i].Satisfies(spec)
		if score > ScoreNone && score >= bestScore {
			best = &candidates[i]
			bestScore = score
		}
	}
	if best == nil {
		return nil, apperrors.Newf(apperrors.KindUnsatisfiedVersion, "moodle",
			"no Moodle release satisfies '%s' (%d candidates)", spec, len(candidates))
	}
	return best, nil
}
