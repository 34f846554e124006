package e2e

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pyresolve "github.com/albertocavalcante/go-pyresolve"
)

// dist is one wheel written into an on-disk index.
type dist struct {
	name     string
	version  string
	requires []string
	extras   []string
}

func (d dist) filename() string {
	return fmt.Sprintf("%s-%s-py3-none-any.whl", strings.ReplaceAll(d.name, "-", "_"), d.version)
}

func (d dist) metadata() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Metadata-Version: 2.1\nName: %s\nVersion: %s\n", d.name, d.version)
	for _, x := range d.extras {
		fmt.Fprintf(&b, "Provides-Extra: %s\n", x)
	}
	for _, r := range d.requires {
		fmt.Fprintf(&b, "Requires-Dist: %s\n", r)
	}
	return b.String()
}

func (d dist) wheel(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	prefix := strings.ReplaceAll(d.name, "-", "_") + "-" + d.version + ".dist-info/"
	for name, body := range map[string]string{"METADATA": d.metadata(), "WHEEL": "Wheel-Version: 1.0\n"} {
		w, err := zw.Create(prefix + name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// writeIndex lays out a PEP 503 HTML index under root:
//
//	root/simple/{name}/index.html
//	root/files/{wheel}
func writeIndex(t *testing.T, root string, dists []dist) string {
	t.Helper()
	pages := map[string][]string{}
	for _, d := range dists {
		body := d.wheel(t)
		require.NoError(t, os.MkdirAll(filepath.Join(root, "files"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, "files", d.filename()), body, 0o644))
		sum := sha256.Sum256(body)
		pages[d.name] = append(pages[d.name], fmt.Sprintf(`<a href="../../files/%s#sha256=%s">%s</a>`, d.filename(), hex.EncodeToString(sum[:]), d.filename()))
	}
	for name, links := range pages {
		dir := filepath.Join(root, "simple", name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		page := "<!DOCTYPE html>\n<html><body>\n" + strings.Join(links, "\n") + "\n</body></html>\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte(page), 0o644))
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(root, "simple"))}).String()
}

func TestFileIndex(t *testing.T) {
	root := t.TempDir()
	indexURL := writeIndex(t, root, []dist{
		{name: "rich", version: "13.8.0", requires: []string{"markdown-it-py>=2.2.0", "pygments<3.0.0,>=2.13.0"}},
		{name: "markdown-it-py", version: "3.0.0", requires: []string{"mdurl~=0.1", `linkify-it-py<3,>=1; extra == "linkify"`}, extras: []string{"linkify"}},
		{name: "mdurl", version: "0.1.2"},
		{name: "pygments", version: "2.17.2"},
		{name: "pygments", version: "2.18.0"},
	})

	s := pyresolve.NewSession(pyresolve.WithIndexURLs(indexURL))
	plan, err := s.Resolve(t.Context(), []string{"rich"})
	require.NoError(t, err)

	assert.Equal(t, []string{"pygments", "mdurl", "markdown-it-py", "rich"}, plan.Names())
	assert.Equal(t, "2.18.0", plan.Get("pygments").Version)
	for _, n := range plan.Nodes {
		require.NotNil(t, n.Artifact, n.Name)
		assert.True(t, strings.HasPrefix(n.Artifact.URL, "file://"), n.Artifact.URL)
		assert.NotEmpty(t, n.Artifact.Digest, n.Name)
	}

	diff := pyresolve.DiffPlan(pyresolve.InstalledMap{"pygments": "2.17.2"}, plan)
	assert.Len(t, diff.Added, 3)
	require.Len(t, diff.Upgraded, 1)
	assert.Equal(t, "pygments", diff.Upgraded[0].Name)
}

func TestFileIndex_TamperedArtifact(t *testing.T) {
	root := t.TempDir()
	d := dist{name: "six", version: "1.16.0"}
	indexURL := writeIndex(t, root, []dist{d})
	require.NoError(t, os.WriteFile(filepath.Join(root, "files", d.filename()), d.wheel(t)[:10], 0o644))

	_, err := pyresolve.NewSession(pyresolve.WithIndexURLs(indexURL)).Resolve(t.Context(), []string{"six"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digest")
}

func TestFileIndex_LocalPathRequirement(t *testing.T) {
	root := t.TempDir()
	indexURL := writeIndex(t, root, []dist{{name: "idna", version: "3.10"}})

	local := dist{name: "my-tool", version: "0.3.0", requires: []string{"idna"}}
	path := filepath.Join(t.TempDir(), local.filename())
	require.NoError(t, os.WriteFile(path, local.wheel(t), 0o644))

	plan, err := pyresolve.NewSession(pyresolve.WithIndexURLs(indexURL)).Resolve(t.Context(), []string{"my-tool @ " + path})
	require.NoError(t, err)
	assert.Equal(t, []string{"idna", "my-tool"}, plan.Names())
	assert.Equal(t, pyresolve.SourcePath, plan.Get("my-tool").Source)
}

// TestPyPI resolves against the public index. It needs network access
// and only runs when PYRESOLVE_E2E_PYPI is set.
func TestPyPI(t *testing.T) {
	if os.Getenv("PYRESOLVE_E2E_PYPI") == "" {
		t.Skip("set PYRESOLVE_E2E_PYPI=1 to run against pypi.org")
	}

	plan, err := pyresolve.NewSession(pyresolve.WithTimeout(30*time.Second)).Resolve(t.Context(), []string{"requests==2.32.3"})
	require.NoError(t, err)

	names := plan.Names()
	assert.Equal(t, "requests", names[len(names)-1])
	for _, dep := range []string{"idna", "certifi", "urllib3", "charset-normalizer"} {
		assert.NotNil(t, plan.Get(dep), dep)
	}
}
