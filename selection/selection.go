package selection

import (
	"cmp"
	"slices"

	"github.com/albertocavalcante/go-pyresolve/index"
	"github.com/albertocavalcante/go-pyresolve/selection/version"
	"github.com/albertocavalcante/go-pyresolve/wheel"
)

// Candidates filters a release's artifacts for the runtime and returns the
// survivors in preference order, along with why the others were dropped.
func Candidates(r *index.Release, rt wheel.Runtime, opts Options) ([]Candidate, []Rejection) {
	var (
		out      []Candidate
		rejected []Rejection
	)
	reject := func(a *index.Artifact, reason string) {
		rejected = append(rejected, Rejection{Filename: a.Filename, Reason: reason})
	}

	python, pyErr := version.Parse(rt.PythonVersion)

	for _, a := range r.Artifacts {
		if !a.IsWheel {
			reject(a, "not a pre-built wheel")
			continue
		}
		if (r.Yanked || a.Yanked) && !opts.ExactPin {
			reject(a, yankReason(r, a))
			continue
		}
		rank, ok := rt.BestIndex(a.Tags)
		if !ok {
			reject(a, "no tag accepted by the runtime")
			continue
		}
		if !opts.IgnoreRequiresPython && a.RequiresPython != "" && pyErr == nil {
			if spec, err := version.ParseSpecifierSet(a.RequiresPython); err == nil && !spec.Contains(python, true) {
				reject(a, "requires Python "+a.RequiresPython)
				continue
			}
		}
		out = append(out, Candidate{Artifact: a, Rank: rank})
	}

	slices.SortStableFunc(out, func(x, y Candidate) int {
		return cmp.Or(
			cmp.Compare(x.Rank, y.Rank),
			cmp.Compare(formatRank(x.Artifact), formatRank(y.Artifact)),
			cmp.Compare(x.Artifact.Filename, y.Artifact.Filename),
		)
	})
	return out, rejected
}

// formatRank orders artifact formats, lower is preferred.
func formatRank(a *index.Artifact) int {
	if a.IsWheel {
		return 0
	}
	return 1
}

func yankReason(r *index.Release, a *index.Artifact) string {
	reason := a.YankedReason
	if reason == "" {
		reason = r.YankedReason
	}
	if reason == "" {
		return "yanked"
	}
	return "yanked: " + reason
}

// Select returns the best artifact of a release for the runtime.
func Select(r *index.Release, rt wheel.Runtime, opts Options) (*index.Artifact, error) {
	candidates, rejected := Candidates(r, rt, opts)
	if len(candidates) == 0 {
		return nil, &NoCompatibleArtifactError{
			Name:       r.Name,
			Version:    r.VersionString(),
			Tags:       rt.TagStrings(),
			Rejections: rejected,
		}
	}
	return candidates[0].Artifact, nil
}

// Best walks the releases matching spec from newest to oldest and returns
// the first one with a usable artifact. A release that spec pins exactly
// may be yanked; any other yanked release is skipped.
func Best(name string, releases []*index.Release, spec version.SpecifierSet, rt wheel.Runtime, opts Options) (Choice, error) {
	pin, pinned := spec.ExactPin()

	versions := make([]version.Version, len(releases))
	byVersion := make(map[string]*index.Release, len(releases))
	for i, r := range releases {
		versions[i] = r.Version
		byVersion[r.Version.String()] = r
	}
	slices.SortFunc(versions, version.Version.Compare)
	matching := spec.Filter(versions, opts.AllowPrereleases)

	noMatch := &NoCompatibleArtifactError{
		Name:      name,
		Specifier: spec.String(),
		Tags:      rt.TagStrings(),
	}

	for i := len(matching) - 1; i >= 0; i-- {
		r := byVersion[matching[i].String()]
		exact := opts.ExactPin || (pinned && r.Version.Equal(pin))

		if r.Yanked && !exact {
			if noMatch.Version == "" {
				noMatch.Version = r.VersionString()
				noMatch.Rejections = append(noMatch.Rejections, Rejection{Filename: name + "==" + r.VersionString(), Reason: yankReason(r, &index.Artifact{})})
			}
			continue
		}

		releaseOpts := opts
		releaseOpts.ExactPin = exact
		candidates, rejected := Candidates(r, rt, releaseOpts)
		if len(candidates) > 0 {
			a := candidates[0].Artifact
			return Choice{Release: r, Artifact: a, Yanked: r.Yanked || a.Yanked}, nil
		}
		if noMatch.Version == "" {
			noMatch.Version = r.VersionString()
			noMatch.Rejections = rejected
		}
	}
	return Choice{}, noMatch
}
