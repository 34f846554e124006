package pyresolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/albertocavalcante/go-pyresolve/requirement"
	"github.com/albertocavalcante/go-pyresolve/selection"
)

// Sentinel errors for resolution failures.
var (
	// ErrMalformedRequirement indicates a requirement string could not be
	// parsed. It is never retried.
	ErrMalformedRequirement = requirement.ErrMalformed

	// ErrPackageNotFound indicates no configured index lists the package.
	ErrPackageNotFound = errors.New("package not found")

	// ErrNoCompatibleArtifact indicates releases exist but none has an
	// artifact the runtime can install.
	ErrNoCompatibleArtifact = selection.ErrNoCompatibleArtifact

	// ErrVersionConflict indicates two requirements on one package cannot
	// both be satisfied.
	ErrVersionConflict = errors.New("version conflict")

	// ErrInvalidConstraint marks a constraint dropped during
	// normalization. It never fails a resolution.
	ErrInvalidConstraint = errors.New("invalid constraint")
)

// PackageNotFoundError reports that every index failed for a package.
// Causes holds the per-index failures, which match index.ErrNotFound,
// index.ErrRestricted or index.ErrUnavailable.
type PackageNotFoundError struct {
	Name    string
	Indexes []string
	Causes  []error
}

func (e *PackageNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "can't find package %q", e.Name)
	if len(e.Indexes) > 0 {
		fmt.Fprintf(&b, " in %s", strings.Join(e.Indexes, ", "))
	}
	for _, c := range e.Causes {
		fmt.Fprintf(&b, "\n  - %v", c)
	}
	return b.String()
}

func (e *PackageNotFoundError) Unwrap() []error {
	return append([]error{ErrPackageNotFound}, e.Causes...)
}

// VersionConflictError reports that the requirements on a package
// disagree with each other or with the version already chosen.
type VersionConflictError struct {
	Name string
	// Chosen is the version or source already in the plan, empty when the
	// conflict was found before anything was chosen.
	Chosen string
	// Requirements lists every contributing edge, in the order seen.
	Requirements []Edge
}

func (e *VersionConflictError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cannot satisfy requirements on %s", e.Name)
	if e.Chosen != "" {
		fmt.Fprintf(&b, " (already chose %s)", e.Chosen)
	}
	b.WriteString(":")
	for _, r := range e.Requirements {
		fmt.Fprintf(&b, "\n  - %s", r)
	}
	return b.String()
}

// Is lets errors.Is match ErrVersionConflict.
func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

// InvalidConstraintError describes a constraint dropped during
// normalization.
type InvalidConstraintError struct {
	Constraint string
	Reason     string
	Err        error
}

func (e *InvalidConstraintError) Error() string {
	msg := fmt.Sprintf("invalid constraint %q: %s", e.Constraint, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidConstraintError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidConstraint, e.Err}
	}
	return []error{ErrInvalidConstraint}
}

// RequirementFailure is the first failure attributed to one top-level
// requirement.
type RequirementFailure struct {
	Requirement string
	Err         error
}

func (f RequirementFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Requirement, f.Err)
}

func (f RequirementFailure) Unwrap() error {
	return f.Err
}

// ResolutionErrors aggregates the failures of a resolution run with
// WithCollectAllFailures.
type ResolutionErrors struct {
	Failures []RequirementFailure
}

func (e *ResolutionErrors) Error() string {
	if len(e.Failures) == 1 {
		return e.Failures[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d requirements failed:", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n  - %s", strings.ReplaceAll(f.Error(), "\n", "\n    "))
	}
	return b.String()
}

// Unwrap returns the individual failures for errors.Is and errors.As.
func (e *ResolutionErrors) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// add records err for req unless it already has a failure.
func (e *ResolutionErrors) add(req string, err error) {
	for _, f := range e.Failures {
		if f.Requirement == req {
			return
		}
	}
	e.Failures = append(e.Failures, RequirementFailure{Requirement: req, Err: err})
}

// ToError returns nil if no failures were recorded, otherwise e.
func (e *ResolutionErrors) ToError() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e
}
