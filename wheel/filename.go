// Package wheel parses built-distribution file names and models the
// compatibility tags a runtime accepts.
//
// A wheel file name has the form
//
//	{name}-{version}(-{build})?-{python}-{abi}-{platform}.whl
//
// where each of the three tag fields may be a "."-separated compressed set
// that expands to the cartesian product of its parts.
//
// Reference: https://packaging.python.org/en/latest/specifications/binary-distribution-format/
package wheel

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/albertocavalcante/go-pyresolve/selection/version"
)

// Extension is the file extension of built distributions.
const Extension = ".whl"

// sourceExtensions are the archive formats of source-only distributions.
var sourceExtensions = []string{".tar.gz", ".zip", ".tar.bz2", ".tar.xz", ".tgz", ".tar"}

// Tag is a single interpreter-abi-platform compatibility tag.
type Tag struct {
	Interpreter string
	ABI         string
	Platform    string
}

// String returns the tag as "interpreter-abi-platform".
func (t Tag) String() string {
	return t.Interpreter + "-" + t.ABI + "-" + t.Platform
}

// ParseTag parses a single "interpreter-abi-platform" tag.
func ParseTag(s string) (Tag, error) {
	parts := strings.Split(strings.ToLower(s), "-")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Tag{}, fmt.Errorf("invalid tag %q: want interpreter-abi-platform", s)
	}
	return Tag{Interpreter: parts[0], ABI: parts[1], Platform: parts[2]}, nil
}

// Filename is a parsed wheel file name.
type Filename struct {
	// Name is the distribution name as written in the file name. Callers
	// normalize it before comparing.
	Name    string
	Version string
	Build   string
	Tags    []Tag
}

// FilenameError reports a file name that is not a valid wheel name.
type FilenameError struct {
	Filename string
	Message  string
}

func (e *FilenameError) Error() string {
	return fmt.Sprintf("invalid wheel filename %q: %s", e.Filename, e.Message)
}

// IsWheel reports whether filename names a built distribution.
func IsWheel(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), Extension)
}

// IsSource reports whether filename names a source-only distribution.
func IsSource(filename string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// ParseFilename parses a wheel file name. Leading directories and URL
// paths are ignored, so a full download URL path is accepted too.
func ParseFilename(filename string) (Filename, error) {
	base := path.Base(filename)
	stem, ok := strings.CutSuffix(base, Extension)
	if !ok {
		return Filename{}, &FilenameError{Filename: base, Message: "missing " + Extension + " extension"}
	}

	parts := strings.Split(stem, "-")
	if len(parts) != 5 && len(parts) != 6 {
		return Filename{}, &FilenameError{Filename: base, Message: fmt.Sprintf("expected 5 or 6 dash-separated parts, got %d", len(parts))}
	}
	if parts[0] == "" {
		return Filename{}, &FilenameError{Filename: base, Message: "empty distribution name"}
	}

	v, err := version.Parse(parts[1])
	if err != nil {
		return Filename{}, &FilenameError{Filename: base, Message: err.Error()}
	}

	fn := Filename{Name: parts[0], Version: v.String()}
	tagParts := parts[2:]
	if len(parts) == 6 {
		fn.Build = parts[2]
		if fn.Build == "" || !unicode.IsDigit(rune(fn.Build[0])) {
			return Filename{}, &FilenameError{Filename: base, Message: "build tag must start with a digit"}
		}
		tagParts = parts[3:]
	}

	fn.Tags = ExpandTags(tagParts[0], tagParts[1], tagParts[2])
	return fn, nil
}

// ExpandTags expands compressed tag sets ("py2.py3", "manylinux1_x86_64.manylinux2010_x86_64")
// into individual tags, in file-name order.
func ExpandTags(interpreters, abis, platforms string) []Tag {
	var tags []Tag
	for _, i := range strings.Split(strings.ToLower(interpreters), ".") {
		for _, a := range strings.Split(strings.ToLower(abis), ".") {
			for _, p := range strings.Split(strings.ToLower(platforms), ".") {
				tags = append(tags, Tag{Interpreter: i, ABI: a, Platform: p})
			}
		}
	}
	return tags
}

// SourceName extracts the distribution name and version from a source
// archive name such as "pkg-1.0.tar.gz". The split happens at the last "-".
func SourceName(filename string) (name, ver string, ok bool) {
	base := path.Base(filename)
	lower := strings.ToLower(base)
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(lower, ext) {
			stem := base[:len(base)-len(ext)]
			i := strings.LastIndex(stem, "-")
			if i <= 0 || i == len(stem)-1 {
				return "", "", false
			}
			return stem[:i], stem[i+1:], true
		}
	}
	return "", "", false
}
