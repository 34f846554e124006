// Package version implements Python package version parsing and comparison.
//
// Versions follow the public version scheme plus local labels:
//
//	[N!]N(.N)*[{a|b|rc}N][.postN][.devN][+local]
//
// Reference: https://packaging.python.org/en/latest/specifications/version-specifiers/
//
// Alternate spellings accepted on input (alpha, beta, c, pre, preview, rev, r,
// implicit post releases, "-"/"_" separators, a leading "v") are normalized, so
// String always returns the canonical form.
package version

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// versionPattern is the canonical pattern from the version specifiers
// specification, anchored and case-insensitive.
var versionPattern = regexp.MustCompile(`(?i)^\s*v?` +
	`(?:(?P<epoch>[0-9]+)!)?` +
	`(?P<release>[0-9]+(?:\.[0-9]+)*)` +
	`(?P<pre>[-_.]?(?P<pre_l>alpha|beta|preview|pre|rc|a|b|c)[-_.]?(?P<pre_n>[0-9]+)?)?` +
	`(?P<post>(?:-(?P<post_n1>[0-9]+))|(?:[-_.]?(?P<post_l>post|rev|r)[-_.]?(?P<post_n2>[0-9]+)?))?` +
	`(?P<dev>[-_.]?(?P<dev_l>dev)[-_.]?(?P<dev_n>[0-9]+)?)?` +
	`(?:\+(?P<local>[a-z0-9]+(?:[-_.][a-z0-9]+)*))?\s*$`)

// none marks an absent post or dev segment.
const none = -1

// Identifier is one dot-separated segment of a local version label.
// Numeric segments compare numerically and sort after alphanumeric ones.
type Identifier struct {
	IsDigitsOnly bool
	AsNumber     uint64 // Only valid if IsDigitsOnly
	AsString     string
}

// ParseIdentifier creates an Identifier from a local label segment.
func ParseIdentifier(s string) Identifier {
	s = strings.ToLower(s)
	if s != "" && strings.Trim(s, "0123456789") == "" {
		if num, err := strconv.ParseUint(s, 10, 64); err == nil {
			return Identifier{IsDigitsOnly: true, AsNumber: num, AsString: strconv.FormatUint(num, 10)}
		}
	}
	return Identifier{AsString: s}
}

// CompareIdentifiers orders local segments: alphanumeric before numeric,
// numbers numerically, strings lexicographically.
func CompareIdentifiers(a, b Identifier) int {
	if a.IsDigitsOnly != b.IsDigitsOnly {
		if a.IsDigitsOnly {
			return 1
		}
		return -1
	}
	if a.IsDigitsOnly {
		return cmp.Compare(a.AsNumber, b.AsNumber)
	}
	return strings.Compare(a.AsString, b.AsString)
}

// Pre is a pre-release segment. An empty Label means no pre-release.
type Pre struct {
	Label  string // "a", "b" or "rc"
	Number int
}

// Version is a parsed version.
type Version struct {
	Epoch   int
	Release []int
	Pre     Pre
	Post    int // -1 when absent
	Dev     int // -1 when absent
	Local   []Identifier

	// Original is the string the version was parsed from.
	Original string
}

// ParseError represents a version parsing error.
type ParseError struct {
	Version string
	Message string
}

func (e *ParseError) Error() string {
	return "invalid version " + strconv.Quote(e.Version) + ": " + e.Message
}

// Parse parses a version string into its components.
func Parse(s string) (Version, error) {
	match := versionPattern.FindStringSubmatch(s)
	if match == nil {
		return Version{}, &ParseError{Version: s, Message: "does not match version pattern"}
	}
	group := func(name string) string { return match[versionPattern.SubexpIndex(name)] }

	v := Version{Post: none, Dev: none, Original: s}
	var err error

	if e := group("epoch"); e != "" {
		if v.Epoch, err = atoi(s, e); err != nil {
			return Version{}, err
		}
	}

	for part := range strings.SplitSeq(group("release"), ".") {
		n, err := atoi(s, part)
		if err != nil {
			return Version{}, err
		}
		v.Release = append(v.Release, n)
	}

	if group("pre") != "" {
		v.Pre.Label = normalizePreLabel(group("pre_l"))
		if v.Pre.Number, err = optionalNumber(s, group("pre_n")); err != nil {
			return Version{}, err
		}
	}

	if group("post") != "" {
		n := group("post_n1")
		if n == "" {
			n = group("post_n2")
		}
		if v.Post, err = optionalNumber(s, n); err != nil {
			return Version{}, err
		}
	}

	if group("dev") != "" {
		if v.Dev, err = optionalNumber(s, group("dev_n")); err != nil {
			return Version{}, err
		}
	}

	if local := group("local"); local != "" {
		for _, part := range strings.FieldsFunc(local, isLocalSeparator) {
			v.Local = append(v.Local, ParseIdentifier(part))
		}
	}

	return v, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constant tables.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func atoi(version, s string) (int, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &ParseError{Version: version, Message: "numeric segment " + s + " out of range"}
	}
	return int(n), nil
}

func optionalNumber(version, s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return atoi(version, s)
}

func normalizePreLabel(l string) string {
	switch strings.ToLower(l) {
	case "a", "alpha":
		return "a"
	case "b", "beta":
		return "b"
	default:
		return "rc"
	}
}

func isLocalSeparator(r rune) bool {
	return r == '.' || r == '-' || r == '_'
}

// IsPrerelease reports whether v is a pre-release or a development release.
func (v Version) IsPrerelease() bool {
	return v.Pre.Label != "" || v.Dev != none
}

// IsPostrelease reports whether v carries a post-release segment.
func (v Version) IsPostrelease() bool {
	return v.Post != none
}

// IsDevrelease reports whether v carries a development segment.
func (v Version) IsDevrelease() bool {
	return v.Dev != none
}

// String returns the canonical form of v.
func (v Version) String() string {
	var b strings.Builder
	b.WriteString(v.Public())
	if len(v.Local) > 0 {
		b.WriteByte('+')
		b.WriteString(v.localString())
	}
	return b.String()
}

// Public returns the canonical form of v without its local label.
func (v Version) Public() string {
	var b strings.Builder
	b.WriteString(v.BaseVersion())
	if v.Pre.Label != "" {
		b.WriteString(v.Pre.Label)
		b.WriteString(strconv.Itoa(v.Pre.Number))
	}
	if v.Post != none {
		b.WriteString(".post")
		b.WriteString(strconv.Itoa(v.Post))
	}
	if v.Dev != none {
		b.WriteString(".dev")
		b.WriteString(strconv.Itoa(v.Dev))
	}
	return b.String()
}

// BaseVersion returns the epoch and release segments only.
func (v Version) BaseVersion() string {
	var b strings.Builder
	if v.Epoch != 0 {
		b.WriteString(strconv.Itoa(v.Epoch))
		b.WriteByte('!')
	}
	for i, n := range v.Release {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

func (v Version) localString() string {
	parts := make([]string, len(v.Local))
	for i, id := range v.Local {
		parts[i] = id.AsString
	}
	return strings.Join(parts, ".")
}

// withoutLocal returns a copy of v with the local label dropped.
func (v Version) withoutLocal() Version {
	v.Local = nil
	return v
}

// Compare orders v against o. Returns -1 if v < o, 0 if equal, 1 if v > o.
//
// Ordering: epoch, release (trailing zeros ignored), then pre-release, post
// release, development release and finally the local label.
func (v Version) Compare(o Version) int {
	if c := cmp.Compare(v.Epoch, o.Epoch); c != 0 {
		return c
	}
	if c := compareRelease(v.Release, o.Release); c != 0 {
		return c
	}
	if c := cmp.Compare(v.preKey(), o.preKey()); c != 0 {
		return c
	}
	if v.Pre.Label != "" && o.Pre.Label != "" {
		if c := cmp.Compare(v.Pre.Number, o.Pre.Number); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(v.Post, o.Post); c != 0 {
		return c
	}
	if c := cmp.Compare(v.devKey(), o.devKey()); c != 0 {
		return c
	}
	return compareLocal(v.Local, o.Local)
}

// Equal reports whether v and o denote the same version.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

// preKey ranks the pre-release segment. A bare dev release sorts before
// any pre-release of the same release, a final release after all of them.
func (v Version) preKey() int {
	switch {
	case v.Pre.Label == "" && v.Post == none && v.Dev != none:
		return 0
	case v.Pre.Label == "a":
		return 1
	case v.Pre.Label == "b":
		return 2
	case v.Pre.Label == "rc":
		return 3
	default:
		return 4
	}
}

func (v Version) devKey() int {
	if v.Dev == none {
		return int(^uint(0) >> 1)
	}
	return v.Dev
}

func compareRelease(a, b []int) int {
	a = trimZeros(a)
	b = trimZeros(b)
	return slices.Compare(a, b)
}

func trimZeros(r []int) []int {
	i := len(r)
	for i > 0 && r[i-1] == 0 {
		i--
	}
	return r[:i]
}

// compareLocal orders local labels. A version without a local label sorts
// before any version with one.
func compareLocal(a, b []Identifier) int {
	minLen := min(len(a), len(b))
	for i := range minLen {
		if c := CompareIdentifiers(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

// Compare compares two version strings.
// Returns -1 if a < b, 0 if a == b, 1 if a > b. Unparsable versions sort
// before every valid one and lexicographically among themselves.
func Compare(a, b string) int {
	va, errA := Parse(a)
	vb, errB := Parse(b)

	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}

// Sort sorts a slice of version strings in ascending order.
func Sort(versions []string) {
	slices.SortFunc(versions, Compare)
}

// Max returns the higher of two versions.
func Max(a, b string) string {
	if Compare(a, b) >= 0 {
		return a
	}
	return b
}

// Canonical returns the canonical form of s, or s unchanged if it does not
// parse.
func Canonical(s string) string {
	v, err := Parse(s)
	if err != nil {
		return s
	}
	return v.String()
}
