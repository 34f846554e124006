package index

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	server, _ := newIndexServer(t, "json")
	reg := prometheus.NewPedanticRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}
	c := NewClient(server.URL+"/simple", WithCache(NewMemoryCache()), WithMetrics(m))
	name := c.Name()

	ctx := context.Background()
	p, err := c.Project(ctx, "demo-pkg")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Project(ctx, "demo-pkg"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Project(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	a := p.Releases[0].Artifacts[0]
	if _, err := c.FetchMetadata(ctx, a); err != nil {
		t.Fatal(err)
	}
	tampered := *a
	tampered.Digest = digest.FromBytes([]byte("something else"))
	if _, err := c.FetchArtifact(ctx, &tampered); !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("error = %v, want ErrDigestMismatch", err)
	}

	tests := []struct {
		kind, outcome string
		want          float64
	}{
		{KindProject, "ok", 1},
		{KindProject, "not_found", 1},
		{KindMetadata, "ok", 1},
		{KindArtifact, "digest_mismatch", 1},
		{KindArtifact, "ok", 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.kind, tt.outcome), func(t *testing.T) {
			got := testutil.ToFloat64(m.requests.WithLabelValues(name, tt.kind, tt.outcome))
			if got != tt.want {
				t.Errorf("requests = %v, want %v", got, tt.want)
			}
		})
	}
	if got := testutil.ToFloat64(m.cacheHits.WithLabelValues(name)); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 3 {
		t.Errorf("duration series = %d, want 3", n)
	}
}

func TestNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("second NewMetrics() error = %v", err)
	}
	if first.requests != second.requests {
		t.Error("second NewMetrics() did not reuse the registered counter")
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	server, _ := newIndexServer(t, "json")
	c := NewClient(server.URL+"/simple", WithMetrics(nil))
	if _, err := c.Project(context.Background(), "demo-pkg"); err != nil {
		t.Fatal(err)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{&FetchError{Class: ErrNotFound}, "not_found"},
		{&FetchError{Class: ErrRestricted}, "restricted"},
		{&FetchError{Class: ErrUnavailable}, "unavailable"},
		{fmt.Errorf("x: %w", ErrDigestMismatch), "digest_mismatch"},
		{context.Canceled, "error"},
	}
	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
