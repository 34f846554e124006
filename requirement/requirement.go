// Package requirement provides strongly-typed, validated dependency
// requirements.
//
// A requirement string names a project, optionally with extras, and then
// either a version specifier set or a direct source, optionally followed by
// an environment marker:
//
//	requests[security,socks]>=2.8.1,<3 ; python_version >= "3.8"
//	pkg[extra] @ https://example.com/pkg-1.0-py3-none-any.whl
//	https://example.com/pkg-1.0-py3-none-any.whl
//	./dist/pkg-1.0-py3-none-any.whl
//
// The last two forms name a wheel directly; the project name comes from
// the wheel file name.
//
// Reference: https://packaging.python.org/en/latest/specifications/dependency-specifiers/
package requirement

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/albertocavalcante/go-pyresolve/selection/version"
	"github.com/albertocavalcante/go-pyresolve/wheel"
)

// ErrMalformed is matched by every requirement parse failure.
var ErrMalformed = errors.New("malformed requirement")

// ParseError describes why a requirement string could not be parsed.
type ParseError struct {
	Input   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("malformed requirement %q: %s", e.Input, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes ErrMalformed and the underlying cause, if any.
func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformed, e.Err}
	}
	return []error{ErrMalformed}
}

// SourceKind classifies a direct source.
type SourceKind int

const (
	// SourceNone means the requirement is resolved through an index.
	SourceNone SourceKind = iota
	// SourceURL is a remote artifact URL.
	SourceURL
	// SourcePath is a local file path or file:// URL.
	SourcePath
)

func (k SourceKind) String() string {
	switch k {
	case SourceURL:
		return "url"
	case SourcePath:
		return "path"
	default:
		return "index"
	}
}

// Requirement is a parsed requirement.
//
// Invariant: DirectSource and Specifier are never both set.
type Requirement struct {
	// Name is the normalized project name.
	Name string
	// Extras is the sorted, normalized, de-duplicated set of extras.
	Extras []string
	// Specifier is the conjunction of version clauses; empty means any version.
	Specifier version.SpecifierSet
	// DirectSource is an absolute URL or local path pinning one artifact.
	DirectSource string
	// Marker restricts the environments the requirement applies to.
	Marker *Marker
}

var leadingName = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?`)

var schemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)

// Parse parses a requirement string.
func Parse(s string) (Requirement, error) {
	input := s
	s = strings.TrimSpace(s)
	if s == "" {
		return Requirement{}, &ParseError{Input: input, Message: "empty requirement"}
	}

	if isBareWheel(s) {
		return parseBareWheel(input, s)
	}

	loc := leadingName.FindStringIndex(s)
	if loc == nil {
		return Requirement{}, &ParseError{Input: input, Message: "missing project name"}
	}
	req := Requirement{Name: Normalize(s[:loc[1]])}
	rest := strings.TrimLeft(s[loc[1]:], " \t")

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Requirement{}, &ParseError{Input: input, Message: "unterminated extras list"}
		}
		extras, err := parseExtras(rest[1:end])
		if err != nil {
			return Requirement{}, &ParseError{Input: input, Message: err.Error()}
		}
		req.Extras = extras
		rest = strings.TrimLeft(rest[end+1:], " \t")
	}

	var markerText string
	if after, ok := strings.CutPrefix(rest, "@"); ok {
		after = strings.TrimLeft(after, " \t")
		source, tail, _ := strings.Cut(after, " ")
		source, tail = splitTab(source, tail)
		if source == "" {
			return Requirement{}, &ParseError{Input: input, Message: "missing URL after @"}
		}
		if err := validateSource(source); err != nil {
			return Requirement{}, &ParseError{Input: input, Message: "invalid direct source", Err: err}
		}
		req.DirectSource = source
		tail = strings.TrimSpace(tail)
		if tail != "" {
			m, ok := strings.CutPrefix(tail, ";")
			if !ok {
				return Requirement{}, &ParseError{Input: input, Message: "unexpected text after URL: " + tail}
			}
			markerText = m
		}
	} else {
		specText, m, hasMarker := strings.Cut(rest, ";")
		if hasMarker {
			markerText = m
		}
		specText = strings.TrimSpace(specText)
		if strings.Contains(specText, "@") {
			return Requirement{}, &ParseError{Input: input, Message: "a requirement cannot have both a version specifier and a direct source"}
		}
		if strings.HasPrefix(specText, "(") && strings.HasSuffix(specText, ")") {
			specText = specText[1 : len(specText)-1]
		}
		spec, err := version.ParseSpecifierSet(specText)
		if err != nil {
			return Requirement{}, &ParseError{Input: input, Message: "invalid version specifier", Err: err}
		}
		req.Specifier = spec
		if hasMarker && strings.TrimSpace(markerText) == "" {
			return Requirement{}, &ParseError{Input: input, Message: "empty marker after ;"}
		}
	}

	if strings.TrimSpace(markerText) != "" {
		m, err := ParseMarker(markerText)
		if err != nil {
			return Requirement{}, &ParseError{Input: input, Message: "invalid marker", Err: err}
		}
		req.Marker = m
	}

	return req, nil
}

// MustParse is like Parse but panics on error. Use only for constants/tests.
func MustParse(s string) Requirement {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

func splitTab(source, tail string) (string, string) {
	if i := strings.IndexByte(source, '\t'); i >= 0 {
		return source[:i], source[i+1:] + " " + tail
	}
	return source, tail
}

func parseExtras(s string) ([]string, error) {
	var extras []string
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if !ValidName(part) {
			return nil, fmt.Errorf("invalid extra name %q", part)
		}
		extras = append(extras, Normalize(part))
	}
	slices.Sort(extras)
	return slices.Compact(extras), nil
}

// isBareWheel reports whether s is a wheel URL or path with no name prefix.
func isBareWheel(s string) bool {
	head, _, _ := strings.Cut(s, " ;")
	head = strings.TrimSpace(head)
	if strings.ContainsAny(head, " \t") {
		return false
	}
	if schemePattern.MatchString(head) {
		u, err := url.Parse(head)
		return err == nil && wheel.IsWheel(u.Path)
	}
	return !strings.Contains(head, "@") && wheel.IsWheel(head)
}

func parseBareWheel(input, s string) (Requirement, error) {
	source, markerText, _ := strings.Cut(s, " ;")
	source = strings.TrimSpace(source)

	p := source
	if u, err := url.Parse(source); err == nil && u.Scheme != "" {
		p = u.Path
	}
	fn, err := wheel.ParseFilename(p)
	if err != nil {
		return Requirement{}, &ParseError{Input: input, Message: "invalid wheel location", Err: err}
	}

	req := Requirement{Name: Normalize(fn.Name), DirectSource: source}
	if strings.TrimSpace(markerText) != "" {
		m, err := ParseMarker(markerText)
		if err != nil {
			return Requirement{}, &ParseError{Input: input, Message: "invalid marker", Err: err}
		}
		req.Marker = m
	}
	return req, nil
}

func validateSource(source string) error {
	if !schemePattern.MatchString(source) {
		return nil
	}
	u, err := url.Parse(source)
	if err != nil {
		return err
	}
	if u.Scheme != "file" && u.Host == "" {
		return fmt.Errorf("URL %q has no host", source)
	}
	return nil
}

// SourceKind classifies the requirement's direct source.
func (r Requirement) SourceKind() SourceKind {
	switch {
	case r.DirectSource == "":
		return SourceNone
	case strings.HasPrefix(strings.ToLower(r.DirectSource), "file:"):
		return SourcePath
	case schemePattern.MatchString(r.DirectSource):
		return SourceURL
	default:
		return SourcePath
	}
}

// HasExtra reports whether extra (in any spelling) is requested.
func (r Requirement) HasExtra(extra string) bool {
	_, found := slices.BinarySearch(r.Extras, Normalize(extra))
	return found
}

// String returns the canonical requirement text. Parsing the result
// yields an equal requirement.
func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		b.WriteByte('[')
		b.WriteString(strings.Join(r.Extras, ","))
		b.WriteByte(']')
	}
	if r.DirectSource != "" {
		b.WriteString(" @ ")
		b.WriteString(r.DirectSource)
		if r.Marker != nil {
			b.WriteString(" ; ")
			b.WriteString(r.Marker.String())
		}
		return b.String()
	}
	b.WriteString(r.Specifier.String())
	if r.Marker != nil {
		b.WriteString("; ")
		b.WriteString(r.Marker.String())
	}
	return b.String()
}

// ExactPin reports the version pinned by a single == clause.
func (r Requirement) ExactPin() (version.Version, bool) {
	return r.Specifier.ExactPin()
}
