package component

import (
	"github.com/bianoble/componentmgr/internal/apperrors"
)

// Satisfier decides whether a version satisfies a specification. Package
// repositories implement it.
type Satisfier interface {
	Satisfies(spec Specification, version *Version) bool
}

// Resolve returns the first version, in declared order, that sat accepts
// for spec. Order is priority: there is no sorting or scoring here.
func (c *Component) Resolve(spec Specification, sat Satisfier) (*Version, error) {
	for _, v := range c.Versions {
		if sat.Satisfies(spec, v) {
			return v, nil
		}
	}
	return nil, apperrors.Newf(apperrors.KindUnsatisfiedVersion, c.Name,
		"no version satisfies '%s' (%d candidates)", spec.Version, len(c.Versions))
}
