package requirement

import (
	"regexp"
	"strings"
)

// namePattern is the project/extra name grammar: ASCII letters and digits,
// with ".", "-" and "_" allowed between them.
var namePattern = regexp.MustCompile(`(?i)^([a-z0-9]|[a-z0-9][a-z0-9._-]*[a-z0-9])$`)

var separatorRun = regexp.MustCompile(`[-_.]+`)

// Normalize returns the canonical form of a project or extra name: lower
// case, with every run of "-", "_" and "." collapsed to a single "-".
//
// Every comparison, lookup and uniqueness check in the module goes
// through Normalize, so "Foo.Bar", "foo_bar" and "FOO--bar" are one name.
func Normalize(name string) string {
	return separatorRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// ValidName reports whether name is a syntactically valid project name.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}
