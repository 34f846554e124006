package selection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/albertocavalcante/go-pyresolve/index"
)

// ErrNoCompatibleArtifact is matched by every *NoCompatibleArtifactError.
var ErrNoCompatibleArtifact = errors.New("no compatible artifact")

// Options tune a single selection.
type Options struct {
	// ExactPin admits yanked releases and artifacts. Set it when the
	// requirement pins exactly the version being selected.
	ExactPin bool
	// AllowPrereleases admits pre-releases for open specifiers.
	AllowPrereleases bool
	// IgnoreRequiresPython skips the Requires-Python check.
	IgnoreRequiresPython bool
}

// Rejection records why an artifact was not a candidate.
type Rejection struct {
	Filename string
	Reason   string
}

// Candidate is an artifact that passed filtering, with its rank.
type Candidate struct {
	Artifact *index.Artifact
	// Rank is the best position of any of the artifact's tags in the
	// runtime's tag list.
	Rank int
}

// Choice is the outcome of Best.
type Choice struct {
	Release  *index.Release
	Artifact *index.Artifact
	// Yanked is true when a yanked release or artifact was chosen because
	// of an exact pin.
	Yanked bool
}

// NoCompatibleArtifactError reports that artifacts exist but none can be
// installed on the runtime.
type NoCompatibleArtifactError struct {
	Name string
	// Version is empty when no single release was singled out, for
	// example when the specifier matched no published version.
	Version   string
	Specifier string
	// Tags are the runtime tags that were tried, most specific first.
	Tags       []string
	Rejections []Rejection
}

func (e *NoCompatibleArtifactError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "can't find a compatible wheel for %s%s", e.Name, e.Specifier)
	if e.Version != "" {
		fmt.Fprintf(&b, " (latest candidate %s)", e.Version)
	}
	if len(e.Rejections) > 0 {
		b.WriteString(":")
		for _, r := range e.Rejections {
			fmt.Fprintf(&b, "\n  - %s: %s", r.Filename, r.Reason)
		}
	}
	if len(e.Tags) > 0 {
		n := min(len(e.Tags), 5)
		fmt.Fprintf(&b, "\n  accepted tags: %s", strings.Join(e.Tags[:n], ", "))
		if n < len(e.Tags) {
			fmt.Fprintf(&b, " (+%d more)", len(e.Tags)-n)
		}
	}
	return b.String()
}

// Is lets errors.Is match ErrNoCompatibleArtifact.
func (e *NoCompatibleArtifactError) Is(target error) bool {
	return target == ErrNoCompatibleArtifact
}
