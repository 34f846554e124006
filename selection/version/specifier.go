package version

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Operator is a specifier comparison operator.
type Operator string

const (
	OpCompatible   Operator = "~="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpLessEqual    Operator = "<="
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpGreater      Operator = ">"
	OpArbitrary    Operator = "==="
)

// operators is ordered so that longer operators match first.
var operators = []Operator{
	OpArbitrary, OpCompatible, OpEqual, OpNotEqual,
	OpLessEqual, OpGreaterEqual, OpLess, OpGreater,
}

// Specifier is a single operator/version clause such as ">=1.2".
type Specifier struct {
	Op Operator
	// Version is the canonical version text, possibly ending in ".*" for
	// the == and != prefix forms. For === it is kept verbatim.
	Version string

	parsed   Version
	wildcard bool
}

// SpecifierError reports an invalid specifier clause.
type SpecifierError struct {
	Specifier string
	Message   string
}

func (e *SpecifierError) Error() string {
	return "invalid specifier " + strconv.Quote(e.Specifier) + ": " + e.Message
}

var arbitraryPattern = regexp.MustCompile(`^[^\s;)]+$`)

// ParseSpecifier parses one clause, e.g. "~=1.4.2" or "== 1.*".
func ParseSpecifier(s string) (Specifier, error) {
	raw := strings.TrimSpace(s)
	var op Operator
	for _, candidate := range operators {
		if strings.HasPrefix(raw, string(candidate)) {
			op = candidate
			break
		}
	}
	if op == "" {
		return Specifier{}, &SpecifierError{Specifier: s, Message: "missing comparison operator"}
	}
	text := strings.TrimSpace(raw[len(op):])
	if text == "" {
		return Specifier{}, &SpecifierError{Specifier: s, Message: "missing version"}
	}

	if op == OpArbitrary {
		if !arbitraryPattern.MatchString(text) {
			return Specifier{}, &SpecifierError{Specifier: s, Message: "invalid arbitrary version"}
		}
		return Specifier{Op: op, Version: text}, nil
	}

	spec := Specifier{Op: op}
	if prefix, ok := strings.CutSuffix(text, ".*"); ok {
		if op != OpEqual && op != OpNotEqual {
			return Specifier{}, &SpecifierError{Specifier: s, Message: "prefix match is only allowed with == and !="}
		}
		spec.wildcard = true
		text = prefix
	}

	v, err := Parse(text)
	if err != nil {
		return Specifier{}, &SpecifierError{Specifier: s, Message: err.Error()}
	}
	if spec.wildcard && (len(v.Local) > 0 || v.IsDevrelease()) {
		return Specifier{}, &SpecifierError{Specifier: s, Message: "prefix match cannot carry local or dev segments"}
	}
	if len(v.Local) > 0 && op != OpEqual && op != OpNotEqual {
		return Specifier{}, &SpecifierError{Specifier: s, Message: "local versions are only allowed with == and !="}
	}
	if op == OpCompatible && len(v.Release) < 2 {
		return Specifier{}, &SpecifierError{Specifier: s, Message: "~= requires at least two release segments"}
	}

	spec.parsed = v
	spec.Version = v.String()
	if spec.wildcard {
		spec.Version += ".*"
	}
	return spec, nil
}

// String returns the canonical text of the clause.
func (s Specifier) String() string {
	return string(s.Op) + s.Version
}

// IsPrerelease reports whether the clause names a pre-release explicitly,
// which opts a requirement into pre-release candidates.
func (s Specifier) IsPrerelease() bool {
	switch s.Op {
	case OpNotEqual:
		return false
	case OpArbitrary:
		v, err := Parse(s.Version)
		return err == nil && v.IsPrerelease()
	default:
		return s.parsed.IsPrerelease()
	}
}

// Contains reports whether v satisfies the clause, ignoring pre-release
// policy (see SpecifierSet.Contains).
func (s Specifier) Contains(v Version) bool {
	switch s.Op {
	case OpArbitrary:
		return strings.EqualFold(strings.TrimSpace(v.Original), s.Version) ||
			strings.EqualFold(v.String(), s.Version)
	case OpEqual:
		return s.equal(v)
	case OpNotEqual:
		return !s.equal(v)
	case OpLessEqual:
		return v.withoutLocal().Compare(s.parsed) <= 0
	case OpGreaterEqual:
		return v.withoutLocal().Compare(s.parsed) >= 0
	case OpLess:
		if v.withoutLocal().Compare(s.parsed) >= 0 {
			return false
		}
		// <1.0 excludes 1.0rc1 unless the clause itself is a pre-release.
		if !s.parsed.IsPrerelease() && v.IsPrerelease() && v.BaseVersion() == s.parsed.BaseVersion() {
			return false
		}
		return true
	case OpGreater:
		if v.Compare(s.parsed) <= 0 {
			return false
		}
		if !s.parsed.IsPostrelease() && v.IsPostrelease() && v.BaseVersion() == s.parsed.BaseVersion() {
			return false
		}
		if len(v.Local) > 0 && v.withoutLocal().Compare(s.parsed) == 0 {
			return false
		}
		return true
	case OpCompatible:
		if v.withoutLocal().Compare(s.parsed) < 0 {
			return false
		}
		prefix := Version{Epoch: s.parsed.Epoch, Release: s.parsed.Release[:len(s.parsed.Release)-1], Post: none, Dev: none}
		return prefixMatch(prefix, v)
	}
	return false
}

func (s Specifier) equal(v Version) bool {
	if s.wildcard {
		return prefixMatch(s.parsed, v)
	}
	if len(s.parsed.Local) == 0 {
		return v.withoutLocal().Compare(s.parsed) == 0
	}
	return v.Compare(s.parsed) == 0
}

// prefixMatch implements "==prefix.*": the candidate's public version,
// split into segments and zero-padded, must start with the prefix segments.
func prefixMatch(prefix, v Version) bool {
	want := splitSegments(prefix)
	got := splitSegments(v.withoutLocal())

	// Pad the candidate release with zeros so 1.* matches 1 and 1.0.* matches 1.
	wantRelease := countRelease(want)
	gotRelease := countRelease(got)
	if gotRelease < wantRelease {
		padded := slices.Clone(got[:gotRelease])
		for range wantRelease - gotRelease {
			padded = append(padded, "0")
		}
		got = append(padded, got[gotRelease:]...)
	}
	if len(got) < len(want) {
		return false
	}
	return slices.Equal(got[:len(want)], want)
}

// splitSegments renders v as [epoch, release..., suffixes...].
func splitSegments(v Version) []string {
	segs := []string{strconv.Itoa(v.Epoch)}
	for _, n := range v.Release {
		segs = append(segs, strconv.Itoa(n))
	}
	if v.Pre.Label != "" {
		segs = append(segs, v.Pre.Label+strconv.Itoa(v.Pre.Number))
	}
	if v.Post != none {
		segs = append(segs, "post"+strconv.Itoa(v.Post))
	}
	if v.Dev != none {
		segs = append(segs, "dev"+strconv.Itoa(v.Dev))
	}
	return segs
}

// countRelease returns the number of leading numeric segments, epoch included.
func countRelease(segs []string) int {
	n := 0
	for _, s := range segs {
		if strings.Trim(s, "0123456789") != "" {
			break
		}
		n++
	}
	return n
}

// SpecifierSet is a conjunction of clauses. The zero value matches every
// version.
type SpecifierSet []Specifier

// ParseSpecifierSet parses a comma-separated list of clauses. An empty or
// blank string yields an empty set.
func ParseSpecifierSet(s string) (SpecifierSet, error) {
	var set SpecifierSet
	if strings.TrimSpace(s) == "" {
		return set, nil
	}
	for part := range strings.SplitSeq(s, ",") {
		spec, err := ParseSpecifier(part)
		if err != nil {
			return nil, err
		}
		set = set.add(spec)
	}
	return set, nil
}

// MustParseSpecifierSet is like ParseSpecifierSet but panics on error.
func MustParseSpecifierSet(s string) SpecifierSet {
	set, err := ParseSpecifierSet(s)
	if err != nil {
		panic(err)
	}
	return set
}

func (s SpecifierSet) add(spec Specifier) SpecifierSet {
	text := spec.String()
	if slices.ContainsFunc(s, func(e Specifier) bool { return e.String() == text }) {
		return s
	}
	return append(s, spec)
}

// Intersect returns the conjunction of s and o, keeping s's clauses first
// and dropping exact duplicates.
func (s SpecifierSet) Intersect(o SpecifierSet) SpecifierSet {
	out := slices.Clone(s)
	for _, spec := range o {
		out = out.add(spec)
	}
	return out
}

// String joins the clauses with commas in declaration order.
func (s SpecifierSet) String() string {
	parts := make([]string, len(s))
	for i, spec := range s {
		parts[i] = spec.String()
	}
	return strings.Join(parts, ",")
}

// Empty reports whether the set has no clauses.
func (s SpecifierSet) Empty() bool {
	return len(s) == 0
}

// Prereleases reports whether any clause names a pre-release.
func (s SpecifierSet) Prereleases() bool {
	return slices.ContainsFunc(s, Specifier.IsPrerelease)
}

// Contains reports whether v satisfies every clause. Pre-releases are
// rejected unless allowPre is set or a clause names a pre-release itself.
func (s SpecifierSet) Contains(v Version, allowPre bool) bool {
	if v.IsPrerelease() && !allowPre && !s.Prereleases() {
		return false
	}
	for _, spec := range s {
		if !spec.Contains(v) {
			return false
		}
	}
	return true
}

// ContainsString parses v and checks it against the set. Unparsable
// versions never match.
func (s SpecifierSet) ContainsString(v string, allowPre bool) bool {
	parsed, err := Parse(v)
	if err != nil {
		return false
	}
	return s.Contains(parsed, allowPre)
}

// Filter returns the versions that satisfy the set, preserving order.
// When pre-releases are not allowed but nothing else matches, matching
// pre-releases are returned instead.
func (s SpecifierSet) Filter(versions []Version, allowPre bool) []Version {
	var finals, pres []Version
	for _, v := range versions {
		if !s.Contains(v, true) {
			continue
		}
		if v.IsPrerelease() && !allowPre && !s.Prereleases() {
			pres = append(pres, v)
			continue
		}
		finals = append(finals, v)
	}
	if len(finals) == 0 {
		return pres
	}
	return finals
}

// ExactPin returns the version named by a single non-wildcard == clause.
// Such requirements may select yanked releases.
func (s SpecifierSet) ExactPin() (Version, bool) {
	for _, spec := range s {
		switch {
		case spec.Op == OpEqual && !spec.wildcard:
			return spec.parsed, true
		case spec.Op == OpArbitrary:
			if v, err := Parse(spec.Version); err == nil {
				return v, true
			}
		}
	}
	return Version{}, false
}
