package index

import (
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/albertocavalcante/go-pyresolve/requirement"
	"github.com/albertocavalcante/go-pyresolve/selection/version"
	"github.com/albertocavalcante/go-pyresolve/wheel"
)

// Project is everything one index publishes for a project name.
type Project struct {
	// Name is the normalized project name.
	Name string `json:"name"`
	// Index identifies the index the project was read from.
	Index string `json:"index"`
	// Releases are sorted by ascending version.
	Releases []*Release `json:"releases"`
}

// Release groups the artifacts published for one version.
type Release struct {
	Name    string          `json:"name"`
	Version version.Version `json:"-"`
	// Artifacts keep the order the index listed them in.
	Artifacts []*Artifact `json:"artifacts"`

	// Yanked is set when every artifact of the release is yanked, or when
	// the provider marks the whole release withdrawn.
	Yanked       bool   `json:"yanked,omitempty"`
	YankedReason string `json:"yanked_reason,omitempty"`
}

// VersionString returns the canonical version text.
func (r *Release) VersionString() string {
	return r.Version.String()
}

// Artifact is one downloadable file of a release.
type Artifact struct {
	Filename string `json:"filename"`
	// URL is absolute, resolved against the index page it was listed on.
	URL string `json:"url"`
	// Tags is empty for source distributions.
	Tags []wheel.Tag `json:"-"`
	// IsWheel is false for source-only formats.
	IsWheel bool `json:"is_wheel"`

	Digest digest.Digest `json:"digest,omitempty"`
	// Size is the file size in bytes, 0 when unknown.
	Size           int64  `json:"size,omitempty"`
	RequiresPython string `json:"requires_python,omitempty"`

	Yanked       bool   `json:"yanked,omitempty"`
	YankedReason string `json:"yanked_reason,omitempty"`

	// MetadataAvailable means the core metadata is published next to the
	// artifact at URL + ".metadata", so dependencies can be read without
	// downloading the artifact body.
	MetadataAvailable bool          `json:"metadata_available,omitempty"`
	MetadataDigest    digest.Digest `json:"metadata_digest,omitempty"`

	// Index identifies the provider that listed the artifact.
	Index string `json:"index,omitempty"`

	// Dependencies, when non-nil, are requirement strings declared by the
	// provider itself. Such artifacts need no metadata fetch.
	Dependencies []string `json:"dependencies,omitempty"`
}

// File is a single file entry as listed by any index format, before it is
// grouped into releases.
type File struct {
	Filename       string
	URL            string
	Hashes         map[string]string
	RequiresPython string
	Yanked         bool
	YankedReason   string

	MetadataAvailable bool
	MetadataHashes    map[string]string
	Size              int64
}

// supportedAlgorithms are tried in order when picking a digest.
var supportedAlgorithms = []digest.Algorithm{digest.SHA256, digest.SHA512, digest.SHA384}

// pickDigest returns the strongest-supported valid digest in hashes.
func pickDigest(hashes map[string]string) digest.Digest {
	for _, alg := range supportedAlgorithms {
		hex, ok := hashes[string(alg)]
		if !ok {
			continue
		}
		d := digest.NewDigestFromEncoded(alg, strings.ToLower(hex))
		if d.Validate() == nil {
			return d
		}
	}
	return ""
}

// NewProject groups files into releases. Files whose name does not
// parse, or belongs to another project, are skipped. Versions listed
// without files still produce (empty) releases.
func NewProject(name, indexName string, files []File, versions []string) *Project {
	normalized := requirement.Normalize(name)
	byVersion := map[string]*Release{}

	release := func(v version.Version) *Release {
		key := v.String()
		r, ok := byVersion[key]
		if !ok {
			r = &Release{Name: normalized, Version: v}
			byVersion[key] = r
		}
		return r
	}

	for _, raw := range versions {
		v, err := version.Parse(raw)
		if err != nil || v.String() != raw {
			continue
		}
		release(v)
	}

	for _, f := range files {
		a, ver, ok := toArtifact(normalized, f)
		if !ok {
			continue
		}
		a.Index = indexName
		r := release(ver)
		r.Artifacts = append(r.Artifacts, a)
	}

	p := &Project{Name: normalized, Index: indexName}
	for _, r := range byVersion {
		r.Yanked, r.YankedReason = allYanked(r.Artifacts)
		p.Releases = append(p.Releases, r)
	}
	slices.SortFunc(p.Releases, func(a, b *Release) int { return a.Version.Compare(b.Version) })
	return p
}

func toArtifact(project string, f File) (*Artifact, version.Version, bool) {
	a := &Artifact{
		Filename:          f.Filename,
		URL:               f.URL,
		Digest:            pickDigest(f.Hashes),
		Size:              f.Size,
		RequiresPython:    f.RequiresPython,
		Yanked:            f.Yanked,
		YankedReason:      f.YankedReason,
		MetadataAvailable: f.MetadataAvailable,
		MetadataDigest:    pickDigest(f.MetadataHashes),
	}

	var dist, rawVersion string
	switch {
	case wheel.IsWheel(f.Filename):
		fn, err := wheel.ParseFilename(f.Filename)
		if err != nil {
			return nil, version.Version{}, false
		}
		dist, rawVersion = fn.Name, fn.Version
		a.Tags = fn.Tags
		a.IsWheel = true
	default:
		var ok bool
		dist, rawVersion, ok = wheel.SourceName(f.Filename)
		if !ok {
			return nil, version.Version{}, false
		}
	}

	if requirement.Normalize(dist) != project {
		return nil, version.Version{}, false
	}
	v, err := version.Parse(rawVersion)
	if err != nil {
		return nil, version.Version{}, false
	}
	return a, v, true
}

func allYanked(artifacts []*Artifact) (bool, string) {
	if len(artifacts) == 0 {
		return false, ""
	}
	reason := ""
	for _, a := range artifacts {
		if !a.Yanked {
			return false, ""
		}
		if reason == "" {
			reason = a.YankedReason
		}
	}
	return true, reason
}

// Release returns the release for v, or nil.
func (p *Project) Release(v version.Version) *Release {
	for _, r := range p.Releases {
		if r.Version.Equal(v) {
			return r
		}
	}
	return nil
}

// Versions returns the release versions in ascending order.
func (p *Project) Versions() []version.Version {
	out := make([]version.Version, len(p.Releases))
	for i, r := range p.Releases {
		out[i] = r.Version
	}
	return out
}

// Merge folds other into p in place. Releases and artifacts already in p
// win: an artifact of other is added only when p has no artifact with the
// same filename for that version.
func (p *Project) Merge(other *Project) {
	if other == nil {
		return
	}
	for _, or := range other.Releases {
		mine := p.Release(or.Version)
		if mine == nil {
			clone := *or
			clone.Artifacts = slices.Clone(or.Artifacts)
			p.Releases = append(p.Releases, &clone)
			continue
		}
		for _, a := range or.Artifacts {
			if !slices.ContainsFunc(mine.Artifacts, func(m *Artifact) bool { return m.Filename == a.Filename }) {
				mine.Artifacts = append(mine.Artifacts, a)
			}
		}
		mine.Yanked, mine.YankedReason = allYanked(mine.Artifacts)
	}
	slices.SortFunc(p.Releases, func(a, b *Release) int { return a.Version.Compare(b.Version) })
}

// Clone returns a deep copy of p's release structure. Artifacts are shared.
func (p *Project) Clone() *Project {
	out := &Project{Name: p.Name, Index: p.Index, Releases: make([]*Release, len(p.Releases))}
	for i, r := range p.Releases {
		clone := *r
		clone.Artifacts = slices.Clone(r.Artifacts)
		out.Releases[i] = &clone
	}
	return out
}
