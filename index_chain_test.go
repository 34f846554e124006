package pyresolve

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albertocavalcante/go-pyresolve/index"
)

func newTestChain(t *testing.T, opts ...Option) *providerChain {
	t.Helper()
	cfg, err := newResolverConfig(append(DefaultOptions(), opts...)...)
	require.NoError(t, err)
	transport, err := cfg.newTransport()
	require.NoError(t, err)
	return newProviderChain(cfg, transport, index.NoopCache{})
}

func TestProviderChain_Construction(t *testing.T) {
	tests := []struct {
		name      string
		opts      []Option
		wantNames []string
	}{
		{
			name:      "default index",
			wantNames: []string{DefaultIndexURL},
		},
		{
			name:      "explicit plus extra",
			opts:      []Option{WithIndexURLs("https://a.example/simple"), WithExtraIndexes("https://b.example/simple/")},
			wantNames: []string{"https://a.example/simple", "https://b.example/simple"},
		},
		{
			name:      "duplicates collapse",
			opts:      []Option{WithIndexURLs("https://a.example/simple", "https://a.example/simple/")},
			wantNames: []string{"https://a.example/simple"},
		},
		{
			name:      "builtin last",
			opts:      []Option{WithIndexURLs("https://a.example/simple"), WithBuiltinReleases(&BuiltinReleases{})},
			wantNames: []string{"https://a.example/simple", BuiltinIndexName},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestChain(t, tt.opts...)
			assert.Equal(t, tt.wantNames, c.indexNames())
		})
	}
}

func TestProviderChain_QueryExplicit(t *testing.T) {
	down := newFakeIndex(t, nil)
	down.setStatus(http.StatusServiceUnavailable)
	first := newFakeIndex(t, map[string][]fakeRelease{"pkg": {{version: "1.0"}}})
	second := newFakeIndex(t, map[string][]fakeRelease{"pkg": {{version: "1.0"}, {version: "1.1"}}})

	c := newTestChain(t, testOptions(down.URL(), first.URL(), second.URL())...)
	res, err := c.queryExplicit(t.Context(), "pkg")
	require.NoError(t, err)

	require.NotNil(t, res.project)
	require.Len(t, res.project.Releases, 2)
	assert.Equal(t, first.URL(), res.project.Releases[0].Artifacts[0].Index)
	assert.Equal(t, second.URL(), res.project.Releases[1].Artifacts[0].Index)
	require.Len(t, res.causes, 1)
	assert.ErrorIs(t, res.causes[0], index.ErrUnavailable)
}

func TestProviderChain_Complete(t *testing.T) {
	builtin, err := ParseBuiltinReleases([]byte(`{"packages": {
	  "pkg": {"version": "2.0", "file_name": "pkg-2.0-py3-none-any.whl", "depends": []}
	}}`), "")
	require.NoError(t, err)
	idx := newFakeIndex(t, map[string][]fakeRelease{"pkg": {{version: "1.0"}}})
	c := newTestChain(t, append(testOptions(idx.URL()), WithBuiltinReleases(builtin))...)

	t.Run("accepted explicit result skips fallback", func(t *testing.T) {
		p, err := c.lookup(t.Context(), "pkg", nil)
		require.NoError(t, err)
		assert.Len(t, p.Releases, 1)
	})

	t.Run("rejected explicit result merges fallback", func(t *testing.T) {
		p, err := c.lookup(t.Context(), "pkg", func(p *index.Project) bool { return len(p.Releases) > 1 })
		require.NoError(t, err)
		require.Len(t, p.Releases, 2)
		assert.Equal(t, BuiltinIndexName, p.Releases[1].Artifacts[0].Index)
	})

	t.Run("nothing anywhere", func(t *testing.T) {
		_, err := c.lookup(t.Context(), "absent", nil)
		var nf *PackageNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Len(t, nf.Causes, 2)
		assert.Equal(t, []string{idx.URL(), BuiltinIndexName}, nf.Indexes)
	})
}

func TestProviderChain_Canceled(t *testing.T) {
	idx := newFakeIndex(t, map[string][]fakeRelease{"pkg": {{version: "1.0"}}})
	c := newTestChain(t, testOptions(idx.URL())...)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := c.queryExplicit(ctx, "pkg")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestProviderChain_Client(t *testing.T) {
	c := newTestChain(t, WithIndexURLs("https://a.example/simple"))

	assert.Equal(t, "https://a.example/simple", c.client("https://a.example/simple").Name())
	assert.Same(t, c.direct, c.client(""))
	assert.Same(t, c.direct, c.client(BuiltinIndexName))
}
