package pyresolve

import (
	"slices"
	"sync"

	"github.com/albertocavalcante/go-pyresolve/requirement"
	"github.com/albertocavalcante/go-pyresolve/selection/version"
)

// Constraint narrows the versions or the source of a package if, and
// only if, something else requests it.
type Constraint struct {
	Name string
	// Exactly one of Specifier and DirectSource is set.
	Specifier    version.SpecifierSet
	DirectSource string
	Marker       *requirement.Marker
	// Text is the constraint as given.
	Text string
}

// ConstraintTable holds a session's default constraints. It is safe for
// concurrent use.
type ConstraintTable struct {
	mu  sync.RWMutex
	raw []string
}

// Set replaces the default constraints wholesale.
func (t *ConstraintTable) Set(raw []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.raw = slices.Clone(raw)
}

// Snapshot returns a copy of the default constraints.
func (t *ConstraintTable) Snapshot() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.raw)
}

// NormalizeConstraints parses raw constraints. Entries that do not parse,
// carry extras, or name neither a specifier nor a direct source are
// dropped and reported as *InvalidConstraintError values. Specifiers on
// the same name are intersected. A direct source wins over specifiers; a
// second, different direct source for a name is dropped.
func NormalizeConstraints(raw []string) (map[string]Constraint, []error) {
	out := make(map[string]Constraint, len(raw))
	var dropped []error

	for _, text := range raw {
		req, err := requirement.Parse(text)
		if err != nil {
			dropped = append(dropped, &InvalidConstraintError{Constraint: text, Reason: "unparsable", Err: err})
			continue
		}
		switch {
		case len(req.Extras) > 0:
			dropped = append(dropped, &InvalidConstraintError{Constraint: text, Reason: "constraints cannot have extras"})
			continue
		case req.DirectSource == "" && req.Specifier.Empty():
			dropped = append(dropped, &InvalidConstraintError{Constraint: text, Reason: "no version specifier or URL"})
			continue
		}

		c := Constraint{
			Name:         req.Name,
			Specifier:    req.Specifier,
			DirectSource: req.DirectSource,
			Marker:       req.Marker,
			Text:         text,
		}
		prev, ok := out[c.Name]
		if !ok {
			out[c.Name] = c
			continue
		}
		switch {
		case prev.DirectSource != "" && c.DirectSource != "" && prev.DirectSource != c.DirectSource:
			dropped = append(dropped, &InvalidConstraintError{Constraint: text, Reason: "conflicts with " + prev.Text})
		case prev.DirectSource != "":
			// A specifier never overrides a direct source.
		case c.DirectSource != "":
			out[c.Name] = c
		default:
			prev.Specifier = prev.Specifier.Intersect(c.Specifier)
			prev.Text = prev.Text + ", " + text
			out[c.Name] = prev
		}
	}
	return out, dropped
}
