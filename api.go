// Package pyresolve resolves Python package requirements into an install
// plan, the way a browser-hosted Python installer does it.
//
// Given requirement strings, a target runtime and optional constraints,
// mocked packages and installed state, Resolve walks the dependency graph
// breadth-first, picks the newest release of each package that satisfies
// every requirement on it and has a wheel the runtime can load, and
// returns the chosen artifacts in install order.
//
// # Quick Start
//
//	// Zero-config: uses PyPI and the default runtime.
//	plan, err := pyresolve.Resolve(ctx, []string{"requests>=2", "rich"})
//
//	// Private index first, then PyPI.
//	plan, err := pyresolve.Resolve(ctx, reqs,
//	    pyresolve.WithIndexURLs("https://pypi.example.com/simple", pyresolve.DefaultIndexURL))
//
// # Indexes
//
// Explicit indexes are queried concurrently. Their releases are merged in
// declared order, and one failing index does not fail the lookup while
// another answers. Releases shipped with the runtime (WithBuiltinReleases)
// are consulted after them.
//
// # Sessions
//
// A Session holds default constraints, mocked packages and a project page
// cache shared by its resolutions. The package-level functions operate on
// the Session returned by Default.
//
//	s := pyresolve.NewSession()
//	s.SetIndexURLs([]string{"https://pypi.example.com/simple"})
//	s.SetDefaultConstraints([]string{"urllib3<2"})
//	_ = s.MockAdd("pyodide-http", "0.2.1")
//	plan, err := s.Resolve(ctx, []string{"requests"})
//
// # Thread Safety
//
// Session is safe for concurrent use. Each resolution reads snapshots of
// the session state, so changes made while it runs do not affect it.
package pyresolve

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/albertocavalcante/go-pyresolve/index"
)

// Session is the context object of a resolver: default constraints,
// mocked packages and a shared project page cache.
type Session struct {
	mocks       *MockRegistry
	constraints *ConstraintTable
	cache       *index.LRUCache
	opts        []Option

	mu        sync.RWMutex
	indexURLs []string
}

// NewSession creates a session. opts apply to every resolution and can be
// overridden per call.
func NewSession(opts ...Option) *Session {
	return &Session{
		mocks:       NewMockRegistry(),
		constraints: &ConstraintTable{},
		cache:       index.NewLRUCache(index.DefaultCacheSize, index.DefaultCacheTTL),
		opts:        opts,
	}
}

// Resolve resolves requirements into a plan.
//
// Without WithCollectAllFailures, the first failure aborts the resolution
// and no plan is returned. With it, the plan covers the requirements that
// resolved and the error is a *ResolutionErrors listing the others.
func (s *Session) Resolve(ctx context.Context, requirements []string, opts ...Option) (*Plan, error) {
	all := append(DefaultOptions(), s.opts...)
	if urls := s.IndexURLs(); len(urls) > 0 {
		all = append(all, WithIndexURLs(urls...))
	}
	all = append(all, opts...)
	cfg, err := newResolverConfig(all...)
	if err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	log := cfg.log(ctx)

	raw := cfg.constraints
	if !cfg.constraintsSet {
		raw = s.constraints.Snapshot()
	}
	constraints, dropped := NormalizeConstraints(raw)
	for _, d := range dropped {
		log.Debug("dropping constraint", "error", d)
	}

	transport, err := cfg.newTransport()
	if err != nil {
		return nil, fmt.Errorf("create index transport: %w", err)
	}
	var cache index.Cache = s.cache
	if cfg.cache != nil {
		cache = cfg.cache
	}
	chain := newProviderChain(cfg, transport, cache)

	r := newResolver(cfg, chain, s.mocks.snapshot(), constraints, log)
	return r.run(ctx, requirements)
}

// SetDefaultConstraints replaces the constraints applied to every
// resolution that does not pass WithConstraints.
func (s *Session) SetDefaultConstraints(constraints []string) {
	s.constraints.Set(constraints)
}

// DefaultConstraints returns the session's default constraints.
func (s *Session) DefaultConstraints() []string {
	return s.constraints.Snapshot()
}

// SetIndexURLs replaces the indexes used by every resolution that does
// not pass WithIndexURLs. They take precedence over indexes given to
// NewSession. An empty list restores those, or DefaultIndexURL.
func (s *Session) SetIndexURLs(urls []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexURLs = slices.Clone(urls)
}

// IndexURLs returns the indexes set with SetIndexURLs.
func (s *Session) IndexURLs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.indexURLs)
}

// MockAdd declares name as present at version.
func (s *Session) MockAdd(name, version string) error {
	return s.mocks.Add(name, version)
}

// MockRemove removes a mocked package and reports whether it existed.
func (s *Session) MockRemove(name string) bool {
	return s.mocks.Remove(name)
}

// MockList returns the mocked packages sorted by name.
func (s *Session) MockList() []MockEntry {
	return s.mocks.List()
}

// Reset clears the default constraints, the index URLs, the mocks and
// the page cache.
func (s *Session) Reset() {
	s.constraints.Set(nil)
	s.SetIndexURLs(nil)
	s.mocks.Clear()
	s.cache.Purge()
}

var defaultSession = sync.OnceValue(func() *Session { return NewSession() })

// Default returns the process-wide session used by the package-level
// functions.
func Default() *Session {
	return defaultSession()
}

// Resolve resolves requirements with the default session.
func Resolve(ctx context.Context, requirements []string, opts ...Option) (*Plan, error) {
	return Default().Resolve(ctx, requirements, opts...)
}

// SetDefaultConstraints sets the default session's constraints.
func SetDefaultConstraints(constraints []string) {
	Default().SetDefaultConstraints(constraints)
}

// SetIndexURLs sets the default session's indexes.
func SetIndexURLs(urls []string) {
	Default().SetIndexURLs(urls)
}

// MockAdd adds a mocked package to the default session.
func MockAdd(name, version string) error {
	return Default().MockAdd(name, version)
}

// MockRemove removes a mocked package from the default session.
func MockRemove(name string) bool {
	return Default().MockRemove(name)
}

// MockList lists the default session's mocked packages.
func MockList() []MockEntry {
	return Default().MockList()
}
