// Package selection picks the artifact to install for a requirement.
//
// Selection works on the releases an index published for one project and
// the Runtime the plan targets. It never builds anything: only pre-built
// wheels are candidates.
//
// # Artifact Filtering
//
// For a single release, Select drops:
//
//   - source-only artifacts (sdists, zips); they would need a build step
//   - wheels whose tags intersect none of the runtime's accepted tags
//   - wheels whose Requires-Python excludes the runtime interpreter
//   - yanked artifacts, and every artifact of a yanked release, unless the
//     requirement pins that exact version
//
// # Ranking
//
// The runtime lists its tags from most to least specific. A wheel's rank
// is the best (lowest) position any of its tags reaches in that list.
// Candidates are ordered by:
//
//  1. rank, lower first
//  2. format, wheels before anything else
//  3. filename, for a deterministic result
//
// Given a runtime accepting [C, A] and a release with artifacts tagged
// {A, B} and {C}, the {C} artifact wins because C is at position 0.
//
// # Version Walk
//
// Best applies a specifier set to a project's releases and walks the
// matching versions from newest to oldest, returning the first release
// for which Select succeeds. Pre-releases are only considered when the
// specifier names one, when Options.AllowPrereleases is set, or when no
// final release matches at all.
//
// When nothing qualifies the error is a *NoCompatibleArtifactError, which
// carries the attempted tag list so the caller can see why each wheel
// was rejected.
package selection
