package selection

import (
	"errors"
	"strings"
	"testing"

	"github.com/albertocavalcante/go-pyresolve/index"
	"github.com/albertocavalcante/go-pyresolve/selection/version"
	"github.com/albertocavalcante/go-pyresolve/wheel"
)

func tag(s string) wheel.Tag {
	t, err := wheel.ParseTag(s)
	if err != nil {
		panic(err)
	}
	return t
}

func runtimeAccepting(tags ...string) wheel.Runtime {
	ts := make([]wheel.Tag, len(tags))
	for i, s := range tags {
		ts[i] = tag(s)
	}
	rt, err := wheel.NewRuntime("3.12", "wasm32", []string{"pyodide_2024_0_wasm32"}, wheel.WithTags(ts...))
	if err != nil {
		panic(err)
	}
	return rt
}

func whl(filename string) *index.Artifact {
	fn, err := wheel.ParseFilename(filename)
	if err != nil {
		panic(err)
	}
	return &index.Artifact{Filename: filename, URL: "https://files.test/" + filename, Tags: fn.Tags, IsWheel: true}
}

func sdist(filename string) *index.Artifact {
	return &index.Artifact{Filename: filename, URL: "https://files.test/" + filename}
}

func release(v string, artifacts ...*index.Artifact) *index.Release {
	return &index.Release{Name: "pkg", Version: version.MustParse(v), Artifacts: artifacts}
}

// TestSelect_PrefersMostSpecificTag: artifacts tagged {A,B} and {C},
// runtime accepting [C, A]; the {C} artifact must win.
func TestSelect_PrefersMostSpecificTag(t *testing.T) {
	rt := runtimeAccepting("cp312-cp312-pyodide_2024_0_wasm32", "py3-none-any")
	r := release("1.0",
		whl("pkg-1.0-py3.cp311-none.cp311-any.whl"), // {A, B}: expands to py3-none-any among others
		whl("pkg-1.0-cp312-cp312-pyodide_2024_0_wasm32.whl"),
	)

	a, err := Select(r, rt, Options{})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if a.Filename != "pkg-1.0-cp312-cp312-pyodide_2024_0_wasm32.whl" {
		t.Errorf("Select() = %s", a.Filename)
	}
}

func TestCandidates_Ordering(t *testing.T) {
	rt := runtimeAccepting("cp312-cp312-pyodide_2024_0_wasm32", "cp312-abi3-pyodide_2024_0_wasm32", "py3-none-any")
	r := release("1.0",
		whl("pkg-1.0-py3-none-any.whl"),
		sdist("pkg-1.0.tar.gz"),
		whl("pkg-1.0-cp312-abi3-pyodide_2024_0_wasm32.whl"),
		whl("pkg-1.0-1-py3-none-any.whl"),
		whl("pkg-1.0-cp39-cp39-win_amd64.whl"),
	)

	candidates, rejected := Candidates(r, rt, Options{})
	var got []string
	for _, c := range candidates {
		got = append(got, c.Artifact.Filename)
	}
	want := []string{
		"pkg-1.0-cp312-abi3-pyodide_2024_0_wasm32.whl",
		"pkg-1.0-1-py3-none-any.whl",
		"pkg-1.0-py3-none-any.whl",
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("order = %v, want %v", got, want)
	}
	if len(rejected) != 2 {
		t.Errorf("rejected = %v, want sdist and win_amd64", rejected)
	}
}

func TestSelect_NoCompatibleArtifact(t *testing.T) {
	rt := runtimeAccepting("py3-none-any")
	r := release("2.0", whl("pkg-2.0-cp312-cp312-manylinux_2_17_x86_64.whl"), sdist("pkg-2.0.tar.gz"))

	_, err := Select(r, rt, Options{})
	if !errors.Is(err, ErrNoCompatibleArtifact) {
		t.Fatalf("error = %v, want ErrNoCompatibleArtifact", err)
	}
	var nce *NoCompatibleArtifactError
	if !errors.As(err, &nce) {
		t.Fatalf("error %T is not *NoCompatibleArtifactError", err)
	}
	if nce.Version != "2.0" || len(nce.Tags) != 1 || nce.Tags[0] != "py3-none-any" {
		t.Errorf("error = %+v", nce)
	}
	if len(nce.Rejections) != 2 {
		t.Errorf("rejections = %v", nce.Rejections)
	}
}

func TestSelect_RequiresPython(t *testing.T) {
	rt := runtimeAccepting("py3-none-any")
	a := whl("pkg-1.0-py3-none-any.whl")
	a.RequiresPython = ">=3.13"
	r := release("1.0", a)

	if _, err := Select(r, rt, Options{}); !errors.Is(err, ErrNoCompatibleArtifact) {
		t.Errorf("error = %v, want ErrNoCompatibleArtifact", err)
	}
	if _, err := Select(r, rt, Options{IgnoreRequiresPython: true}); err != nil {
		t.Errorf("with IgnoreRequiresPython: %v", err)
	}
}

func TestBest_YankedPolicy(t *testing.T) {
	rt := runtimeAccepting("py3-none-any")
	yanked := release("2.0", whl("pkg-2.0-py3-none-any.whl"))
	yanked.Yanked, yanked.YankedReason = true, "bad metadata"
	releases := []*index.Release{release("1.0", whl("pkg-1.0-py3-none-any.whl")), yanked}

	tests := []struct {
		spec       string
		want       string
		wantYanked bool
	}{
		{">=1", "1.0", false},
		{"", "1.0", false},
		{"==2.0", "2.0", true},
		{"===2.0", "2.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			choice, err := Best("pkg", releases, version.MustParseSpecifierSet(tt.spec), rt, Options{})
			if err != nil {
				t.Fatalf("Best() error = %v", err)
			}
			if choice.Release.VersionString() != tt.want || choice.Yanked != tt.wantYanked {
				t.Errorf("Best() = %s yanked=%v, want %s yanked=%v",
					choice.Release.VersionString(), choice.Yanked, tt.want, tt.wantYanked)
			}
		})
	}

	_, err := Best("pkg", releases, version.MustParseSpecifierSet(">=2"), rt, Options{})
	if !errors.Is(err, ErrNoCompatibleArtifact) {
		t.Errorf("open range over yanked release: error = %v", err)
	}
}

func TestBest_WalksNewestToOldest(t *testing.T) {
	rt := runtimeAccepting("py3-none-any")
	releases := []*index.Release{
		release("1.0", whl("pkg-1.0-py3-none-any.whl")),
		release("3.0", whl("pkg-3.0-cp312-cp312-win_amd64.whl")),
		release("2.0", whl("pkg-2.0-py3-none-any.whl")),
		release("2.5", sdist("pkg-2.5.tar.gz")),
	}

	choice, err := Best("pkg", releases, nil, rt, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if choice.Release.VersionString() != "2.0" {
		t.Errorf("Best() = %s, want 2.0", choice.Release.VersionString())
	}

	_, err = Best("pkg", releases, version.MustParseSpecifierSet(">2.0"), rt, Options{})
	var nce *NoCompatibleArtifactError
	if !errors.As(err, &nce) {
		t.Fatalf("error = %v", err)
	}
	if nce.Version != "3.0" || nce.Specifier != ">2.0" {
		t.Errorf("error = %+v, want newest candidate 3.0", nce)
	}
}

func TestBest_Prereleases(t *testing.T) {
	rt := runtimeAccepting("py3-none-any")
	releases := []*index.Release{
		release("1.0", whl("pkg-1.0-py3-none-any.whl")),
		release("2.0b1", whl("pkg-2.0b1-py3-none-any.whl")),
	}

	tests := []struct {
		name string
		spec string
		opts Options
		want string
	}{
		{"final preferred", "", Options{}, "1.0"},
		{"allowed", "", Options{AllowPrereleases: true}, "2.0b1"},
		{"named in specifier", ">=2.0b1", Options{}, "2.0b1"},
		{"only pre-releases match", ">1.0", Options{}, "2.0b1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			choice, err := Best("pkg", releases, version.MustParseSpecifierSet(tt.spec), rt, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if got := choice.Release.VersionString(); got != tt.want {
				t.Errorf("Best() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBest_NoMatchingVersion(t *testing.T) {
	rt := runtimeAccepting("py3-none-any")
	releases := []*index.Release{release("1.0", whl("pkg-1.0-py3-none-any.whl"))}

	_, err := Best("pkg", releases, version.MustParseSpecifierSet(">=5"), rt, Options{})
	var nce *NoCompatibleArtifactError
	if !errors.As(err, &nce) {
		t.Fatalf("error = %v", err)
	}
	if nce.Version != "" {
		t.Errorf("Version = %q, want empty", nce.Version)
	}
	if !strings.Contains(nce.Error(), "pkg>=5") {
		t.Errorf("message %q should name the requirement", nce.Error())
	}
}
