package pyresolve

import (
	"context"
	"fmt"

	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/go-pyresolve/index"
)

// provider is one source of project releases.
type provider interface {
	Name() string
	Project(ctx context.Context, name string) (*index.Project, error)
}

var (
	_ provider = (*index.Client)(nil)
	_ provider = (*BuiltinReleases)(nil)
)

// providerChain looks a project up in an ordered list of providers.
//
// The explicit indexes are queried concurrently and merged in declared
// order: the union of their releases, where the first index to list a
// filename for a version wins. A failing index is recorded and skipped
// while any other index answers; when every explicit index fails the
// chain reports a *PackageNotFoundError.
//
// The fallback providers (the builtin release set) are consulted after
// the explicit indexes, either because those failed or because the
// caller's accept predicate rejected what they returned.
type providerChain struct {
	explicit []provider
	fallback []provider

	// clients maps an index name to the client that fetches its
	// artifacts and metadata.
	clients map[string]*index.Client
	// direct fetches artifacts named by URL or path.
	direct *index.Client
}

// explicitResult is the merged answer of the explicit indexes.
type explicitResult struct {
	project *index.Project
	causes  []error
}

// newProviderChain creates clients for the configured indexes.
func newProviderChain(cfg *resolverConfig, transport index.Transport, cache index.Cache) *providerChain {
	clientOpts := []index.ClientOption{
		index.WithTransport(transport),
		index.WithCache(cache),
		index.WithValidation(cfg.validate),
		index.WithMetrics(cfg.metrics),
	}

	c := &providerChain{clients: make(map[string]*index.Client)}
	for _, u := range cfg.indexes() {
		client := index.NewClient(u, clientOpts...)
		if _, dup := c.clients[client.Name()]; dup {
			continue
		}
		c.clients[client.Name()] = client
		c.explicit = append(c.explicit, client)
	}
	if cfg.builtin != nil {
		c.fallback = append(c.fallback, cfg.builtin)
	}
	c.direct = index.NewClient("", index.WithTransport(transport), index.WithCache(index.NoopCache{}), index.WithMetrics(cfg.metrics))
	return c
}

// indexNames returns the names of every provider, explicit first.
func (c *providerChain) indexNames() []string {
	names := make([]string, 0, len(c.explicit)+len(c.fallback))
	for _, p := range c.explicit {
		names = append(names, p.Name())
	}
	for _, p := range c.fallback {
		names = append(names, p.Name())
	}
	return names
}

// queryExplicit fans out to every explicit index and merges the answers in
// declared order. It only returns an error when ctx is done.
func (c *providerChain) queryExplicit(ctx context.Context, name string) (explicitResult, error) {
	projects := make([]*index.Project, len(c.explicit))
	errs := make([]error, len(c.explicit))

	var g errgroup.Group
	for i, p := range c.explicit {
		g.Go(func() error {
			projects[i], errs[i] = p.Project(ctx, name)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return explicitResult{}, err
	}

	log := slogcontext.FromCtx(ctx)
	var res explicitResult
	for i, p := range c.explicit {
		if errs[i] != nil {
			log.Debug("index lookup failed", "index", p.Name(), "package", name, "error", errs[i])
			res.causes = append(res.causes, fmt.Errorf("%s: %w", p.Name(), errs[i]))
			continue
		}
		if res.project == nil {
			res.project = projects[i]
			continue
		}
		res.project.Merge(projects[i])
	}
	return res, nil
}

// complete applies the fallback providers to an explicit result. accept
// may be nil, meaning any non-empty project is enough.
func (c *providerChain) complete(ctx context.Context, name string, res explicitResult, accept func(*index.Project) bool) (*index.Project, error) {
	merged := res.project
	causes := res.causes
	satisfied := func() bool {
		return merged != nil && len(merged.Releases) > 0 && (accept == nil || accept(merged))
	}

	log := slogcontext.FromCtx(ctx)
	for _, p := range c.fallback {
		if satisfied() {
			break
		}
		fb, err := p.Project(ctx, name)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Debug("fallback lookup failed", "index", p.Name(), "package", name, "error", err)
			causes = append(causes, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		if merged == nil {
			merged = fb
			continue
		}
		merged.Merge(fb)
	}

	if merged == nil || len(merged.Releases) == 0 {
		return nil, &PackageNotFoundError{Name: name, Indexes: c.indexNames(), Causes: causes}
	}
	return merged, nil
}

// lookup is queryExplicit followed by complete.
func (c *providerChain) lookup(ctx context.Context, name string, accept func(*index.Project) bool) (*index.Project, error) {
	res, err := c.queryExplicit(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.complete(ctx, name, res, accept)
}

// client returns the client that can fetch an artifact listed by the
// named index, falling back to the direct client.
func (c *providerChain) client(indexName string) *index.Client {
	if cl, ok := c.clients[indexName]; ok {
		return cl
	}
	return c.direct
}
