// Package apperrors defines the failure taxonomy shared by resolution,
// acquisition, build and platform code. Every failure carries a stable
// numeric code and a name so operator output renders uniformly.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Family groups kinds by the stage that raises them.
type Family string

const (
	FamilyInvalidManifest    Family = "InvalidManifest"
	FamilyResolution         Family = "Resolution"
	FamilyAcquisitionFailure Family = "AcquisitionFailure"
	FamilyBuildFailure       Family = "BuildFailure"
	FamilyPlatformFailure    Family = "PlatformFailure"
)

// Kind identifies one failure with a stable code.
type Kind int

const (
	KindUnknown Kind = 0

	KindMissingPackageRepository Kind = 1
	KindMissingPackageSource     Kind = 2
	KindValidationFailed         Kind = 3
	KindMissingComponent         Kind = 4
	KindStaleCache               Kind = 5
	KindUnknownType              Kind = 6

	KindUnsatisfiedVersion Kind = 7

	KindSourceUnavailable   Kind = 10
	KindInvalidChecksum     Kind = 11
	KindExtractionFailed    Kind = 12
	KindMissingExpectedRoot Kind = 13
	KindNoSourceAvailable   Kind = 14
	KindRetryable           Kind = 15

	KindBuildFailed Kind = 20

	KindMissingExecutable   Kind = 30
	KindUnsupportedPlatform Kind = 31
	KindTempDirUnavailable  Kind = 32
)

var kindNames = map[Kind]string{
	KindUnknown:                  "Unknown",
	KindMissingPackageRepository: "MissingPackageRepository",
	KindMissingPackageSource:     "MissingPackageSource",
	KindValidationFailed:         "ValidationFailed",
	KindMissingComponent:         "MissingComponent",
	KindStaleCache:               "StaleCache",
	KindUnknownType:              "UnknownType",
	KindUnsatisfiedVersion:       "UnsatisfiedVersion",
	KindSourceUnavailable:        "SourceUnavailable",
	KindInvalidChecksum:          "InvalidChecksum",
	KindExtractionFailed:         "ExtractionFailed",
	KindMissingExpectedRoot:      "MissingExpectedRoot",
	KindNoSourceAvailable:        "NoSourceAvailable",
	KindRetryable:                "RetryableSourceFailure",
	KindBuildFailed:              "BuildFailed",
	KindMissingExecutable:        "MissingExecutable",
	KindUnsupportedPlatform:      "UnsupportedPlatform",
	KindTempDirUnavailable:       "TempDirUnavailable",
}

// Code returns the stable numeric code.
func (k Kind) Code() int { return int(k) }

// Name returns the stable human-readable name.
func (k Kind) Name() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return kindNames[KindUnknown]
}

// Family returns the family the kind belongs to.
func (k Kind) Family() Family {
	switch {
	case k >= 1 && k <= 6:
		return FamilyInvalidManifest
	case k == KindUnsatisfiedVersion:
		return FamilyResolution
	case k >= 10 && k < 20:
		return FamilyAcquisitionFailure
	case k >= 20 && k < 30:
		return FamilyBuildFailure
	case k >= 30 && k < 40:
		return FamilyPlatformFailure
	}
	return ""
}

// String renders the kind as "CM0011 InvalidChecksum".
func (k Kind) String() string {
	return fmt.Sprintf("CM%04d %s", k.Code(), k.Name())
}

// Error is a failure with a stable kind.
type Error struct {
	Cause     error
	Component string
	Message   string
	Kind      Kind
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s]", e.Kind)
	if e.Component != "" {
		sb.WriteString(" " + e.Component + ":")
	}
	if e.Message != "" {
		sb.WriteString(" " + e.Message)
	}
	if e.Cause != nil {
		sb.WriteString(": " + e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so the package-level sentinels
// work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Component == "" && t.Message == "" && t.Cause == nil
}

// New creates an Error of the given kind.
func New(kind Kind, component, message string) *Error {
	return &Error{Kind: kind, Component: component, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, component, format string, args ...any) *Error {
	return &Error{Kind: kind, Component: component, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind wrapping cause.
func Wrap(kind Kind, component, message string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Message: message, Cause: cause}
}

// Sentinels for errors.Is.
var (
	ErrMissingPackageRepository = &Error{Kind: KindMissingPackageRepository}
	ErrMissingPackageSource     = &Error{Kind: KindMissingPackageSource}
	ErrValidationFailed         = &Error{Kind: KindValidationFailed}
	ErrMissingComponent         = &Error{Kind: KindMissingComponent}
	ErrStaleCache               = &Error{Kind: KindStaleCache}
	ErrUnknownType              = &Error{Kind: KindUnknownType}
	ErrUnsatisfiedVersion       = &Error{Kind: KindUnsatisfiedVersion}
	ErrSourceUnavailable        = &Error{Kind: KindSourceUnavailable}
	ErrInvalidChecksum          = &Error{Kind: KindInvalidChecksum}
	ErrExtractionFailed         = &Error{Kind: KindExtractionFailed}
	ErrMissingExpectedRoot      = &Error{Kind: KindMissingExpectedRoot}
	ErrNoSourceAvailable        = &Error{Kind: KindNoSourceAvailable}
	ErrBuildFailed              = &Error{Kind: KindBuildFailed}
	ErrMissingExecutable        = &Error{Kind: KindMissingExecutable}
	ErrUnsupportedPlatform      = &Error{Kind: KindUnsupportedPlatform}
	ErrTempDirUnavailable       = &Error{Kind: KindTempDirUnavailable}
)

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindUnknown, false
}

// RetryableError marks a failed attempt for one candidate source. Package
// sources catch it and advance to the next candidate; it never escapes a
// source.
type RetryableError struct {
	Cause  error
	Source string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("[%s] attempt with %s failed: %v", KindRetryable, e.Source, e.Cause)
}

func (e *RetryableError) Unwrap() error {
	return e.Cause
}

// Retryable wraps cause as a retryable attempt failure.
func Retryable(source string, cause error) *RetryableError {
	return &RetryableError{Source: source, Cause: cause}
}

// IsRetryable reports whether err marks a retryable attempt failure.
func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}
