package pyresolve

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/albertocavalcante/go-pyresolve/requirement"
)

// fakeRelease is one release served by a fakeIndex, with a single
// py3-none-any wheel unless tag says otherwise.
type fakeRelease struct {
	version  string
	requires []string
	extras   []string
	// yanked is the yank reason; "!" yanks without a reason.
	yanked string
	tag    string
}

// fakeIndex is a JSON simple API index backed by httptest. Every wheel
// publishes its metadata separately and is also downloadable as a real
// archive.
type fakeIndex struct {
	server *httptest.Server

	mu       sync.Mutex
	projects map[string][]fakeRelease
	hits     map[string]int
	// status, when set, is returned for every project page.
	status int
}

func newFakeIndex(t *testing.T, projects map[string][]fakeRelease) *fakeIndex {
	t.Helper()
	f := &fakeIndex{projects: make(map[string][]fakeRelease), hits: make(map[string]int)}
	for name, releases := range projects {
		f.projects[requirement.Normalize(name)] = releases
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/simple/", f.servePage)
	mux.HandleFunc("/files/", f.serveFile)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the index base URL.
func (f *fakeIndex) URL() string {
	return f.server.URL + "/simple"
}

// Hits returns the number of page requests for name.
func (f *fakeIndex) Hits(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[name]
}

// TotalHits returns the number of page requests for every name.
func (f *fakeIndex) TotalHits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, h := range f.hits {
		n += h
	}
	return n
}

func (f *fakeIndex) setStatus(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = code
}

func (f *fakeIndex) wheelName(name string, r fakeRelease) string {
	tag := r.tag
	if tag == "" {
		tag = "py3-none-any"
	}
	return fmt.Sprintf("%s-%s-%s.whl", strings.ReplaceAll(name, "-", "_"), r.version, tag)
}

func (f *fakeIndex) servePage(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/simple/"), "/")

	f.mu.Lock()
	f.hits[name]++
	status := f.status
	releases, ok := f.projects[name]
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	type file struct {
		Filename     string            `json:"filename"`
		URL          string            `json:"url"`
		Hashes       map[string]string `json:"hashes"`
		Yanked       any               `json:"yanked,omitempty"`
		CoreMetadata map[string]string `json:"core-metadata"`
	}
	page := struct {
		Meta     map[string]string `json:"meta"`
		Name     string            `json:"name"`
		Versions []string          `json:"versions"`
		Files    []file            `json:"files"`
	}{Meta: map[string]string{"api-version": "1.1"}, Name: name}

	for _, rel := range releases {
		fn := f.wheelName(name, rel)
		fl := file{
			Filename:     fn,
			URL:          "../../files/" + fn,
			Hashes:       map[string]string{"sha256": sha256Hex(f.wheel(name, rel))},
			CoreMetadata: map[string]string{"sha256": sha256Hex(f.metadata(name, rel))},
		}
		switch rel.yanked {
		case "":
		case "!":
			fl.Yanked = true
		default:
			fl.Yanked = rel.yanked
		}
		page.Versions = append(page.Versions, rel.version)
		page.Files = append(page.Files, fl)
	}

	w.Header().Set("Content-Type", "application/vnd.pypi.simple.v1+json")
	_ = json.NewEncoder(w).Encode(page)
}

func (f *fakeIndex) serveFile(w http.ResponseWriter, r *http.Request) {
	requested := strings.TrimPrefix(r.URL.Path, "/files/")
	wantMeta := strings.HasSuffix(requested, ".metadata")
	requested = strings.TrimSuffix(requested, ".metadata")

	f.mu.Lock()
	defer f.mu.Unlock()
	for name, releases := range f.projects {
		for _, rel := range releases {
			if f.wheelName(name, rel) != requested {
				continue
			}
			if wantMeta {
				_, _ = w.Write(f.metadata(name, rel))
			} else {
				_, _ = w.Write(f.wheel(name, rel))
			}
			return
		}
	}
	http.NotFound(w, r)
}

func (f *fakeIndex) metadata(name string, r fakeRelease) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Metadata-Version: 2.1\nName: %s\nVersion: %s\n", name, r.version)
	for _, x := range r.extras {
		fmt.Fprintf(&b, "Provides-Extra: %s\n", x)
	}
	for _, req := range r.requires {
		fmt.Fprintf(&b, "Requires-Dist: %s\n", req)
	}
	return []byte(b.String())
}

// wheel builds a deterministic archive so its digest is stable.
func (f *fakeIndex) wheel(name string, r fakeRelease) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	dist := strings.ReplaceAll(name, "-", "_") + "-" + r.version + ".dist-info/METADATA"
	w, err := zw.CreateHeader(&zip.FileHeader{Name: dist, Method: zip.Store, Modified: time.Unix(0, 0).UTC()})
	if err == nil {
		_, _ = w.Write(f.metadata(name, r))
	}
	_ = zw.Close()
	return buf.Bytes()
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// testOptions points a resolution at the given indexes with a small retry
// budget.
func testOptions(indexes ...string) []Option {
	return []Option{
		WithIndexURLs(indexes...),
		WithRetries(0, time.Millisecond, time.Millisecond),
		WithTimeout(5 * time.Second),
	}
}

// requestsProjects is a small slice of a real dependency tree.
func requestsProjects() map[string][]fakeRelease {
	return map[string][]fakeRelease{
		"requests": {
			{version: "2.31.0", requires: []string{"idna<4,>=2.5", "certifi>=2017.4.17"}},
			{
				version:  "2.32.3",
				extras:   []string{"socks"},
				requires: []string{"idna<4,>=2.5", "certifi>=2017.4.17", `PySocks!=1.5.7,>=1.5.6; extra == "socks"`, `win-inet-pton; sys_platform == "win32"`},
			},
		},
		"idna":          {{version: "3.7"}, {version: "3.10"}},
		"certifi":       {{version: "2024.8.30"}},
		"pysocks":       {{version: "1.7.1"}},
		"win-inet-pton": {{version: "1.1.0"}},
	}
}

func mustResolve(t *testing.T, s *Session, reqs []string, opts ...Option) *Plan {
	t.Helper()
	plan, err := s.Resolve(t.Context(), reqs, opts...)
	require.NoError(t, err)
	require.NotNil(t, plan)
	return plan
}

func versions(p *Plan) map[string]string {
	out := make(map[string]string, len(p.Nodes))
	for _, n := range p.Nodes {
		out[n.Name] = n.Version
	}
	return out
}
