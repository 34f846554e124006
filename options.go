package pyresolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/albertocavalcante/go-pyresolve/index"
	"github.com/albertocavalcante/go-pyresolve/requirement"
	"github.com/albertocavalcante/go-pyresolve/wheel"
)

// DefaultIndexURL is the index used when no index is configured.
const DefaultIndexURL = "https://pypi.org/simple"

const defaultMaxConcurrency = 5

// Option configures resolution behavior.
type Option func(*resolverConfig) error

// resolverConfig holds all resolution configuration.
type resolverConfig struct {
	indexURLs    []string
	indexesSet   bool
	extraIndexes []string

	// constraints replaces the session defaults when constraintsSet is true,
	// even if it is empty.
	constraints    []string
	constraintsSet bool

	collectAll     bool
	forceReinstall map[string]bool
	noDeps         bool
	prereleases    bool

	runtime   *wheel.Runtime
	installed InstalledState
	builtin   *BuiltinReleases

	timeout        time.Duration
	maxRetry       int
	minRetryWait   time.Duration
	maxRetryWait   time.Duration
	httpClient     *http.Client
	transport      index.Transport
	allowedHosts   []string
	cache          index.Cache
	validate       bool
	maxConcurrency int
	metrics        *index.Metrics

	onProgress func(ProgressEvent)

	// logger is the structured logger for debug/info output.
	// If nil, the logger carried by the context is used, and if there is
	// none either, logging is disabled.
	logger *slog.Logger
}

// DefaultOptions returns options with safe defaults.
func DefaultOptions() []Option {
	return []Option{
		WithTimeout(index.DefaultRequestTimeout),
		WithRetries(index.DefaultMaxRetry, index.DefaultMinRetryWait, index.DefaultMaxRetryWait),
		WithMaxConcurrency(defaultMaxConcurrency),
		WithSchemaValidation(true),
	}
}

// WithIndexURLs sets the indexes to query, in priority order. It replaces
// the default index. A URL may contain {package_name}, in which case the
// project name is substituted instead of appended.
func WithIndexURLs(urls ...string) Option {
	return func(c *resolverConfig) error {
		c.indexURLs = append([]string(nil), urls...)
		c.indexesSet = true
		return nil
	}
}

// WithExtraIndexes adds indexes after the configured ones.
func WithExtraIndexes(urls ...string) Option {
	return func(c *resolverConfig) error {
		c.extraIndexes = append(c.extraIndexes, urls...)
		return nil
	}
}

// WithConstraints replaces the session's default constraints for one
// call. WithConstraints() with no arguments disables the defaults.
func WithConstraints(constraints ...string) Option {
	return func(c *resolverConfig) error {
		c.constraints = append([]string{}, constraints...)
		c.constraintsSet = true
		return nil
	}
}

// WithCollectAllFailures keeps resolving independent requirements after a
// failure. Resolve then returns the partial plan together with a
// *ResolutionErrors.
func WithCollectAllFailures() Option {
	return func(c *resolverConfig) error {
		c.collectAll = true
		return nil
	}
}

// WithForceReinstall resolves the named packages from the indexes even if
// an installed version already satisfies them.
func WithForceReinstall(names ...string) Option {
	return func(c *resolverConfig) error {
		if c.forceReinstall == nil {
			c.forceReinstall = make(map[string]bool, len(names))
		}
		for _, n := range names {
			c.forceReinstall[requirement.Normalize(n)] = true
		}
		return nil
	}
}

// WithNoDeps resolves only the given requirements, without their
// dependencies.
func WithNoDeps() Option {
	return func(c *resolverConfig) error {
		c.noDeps = true
		return nil
	}
}

// WithPrereleases admits pre-release versions for open specifiers.
func WithPrereleases() Option {
	return func(c *resolverConfig) error {
		c.prereleases = true
		return nil
	}
}

// WithRuntime sets the runtime whose tags artifacts must match. The
// default is wheel.DefaultRuntime.
func WithRuntime(rt wheel.Runtime) Option {
	return func(c *resolverConfig) error {
		c.runtime = &rt
		return nil
	}
}

// WithInstalled sets the read-only view of already installed packages.
func WithInstalled(state InstalledState) Option {
	return func(c *resolverConfig) error {
		c.installed = state
		return nil
	}
}

// WithBuiltinReleases sets the releases shipped with the runtime. They are
// consulted after the explicit indexes.
func WithBuiltinReleases(b *BuiltinReleases) Option {
	return func(c *resolverConfig) error {
		c.builtin = b
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *resolverConfig) error {
		c.timeout = d
		return nil
	}
}

// WithRetries sets the retry budget of each index request. maxRetry is
// the number of retries after the first attempt.
func WithRetries(maxRetry int, minWait, maxWait time.Duration) Option {
	return func(c *resolverConfig) error {
		c.maxRetry = maxRetry
		c.minRetryWait = minWait
		c.maxRetryWait = maxWait
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for index requests. Its
// transport is wrapped with the retry policy.
func WithHTTPClient(client *http.Client) Option {
	return func(c *resolverConfig) error {
		c.httpClient = client
		return nil
	}
}

// WithTransport replaces the whole index transport. Timeout, retry,
// HTTP client and allowed-host options are then ignored.
func WithTransport(t index.Transport) Option {
	return func(c *resolverConfig) error {
		c.transport = t
		return nil
	}
}

// WithAllowedHosts restricts HTTP requests to hosts matching one of the
// glob patterns, such as "*.pypi.org". Other hosts fail as restricted.
func WithAllowedHosts(patterns ...string) Option {
	return func(c *resolverConfig) error {
		c.allowedHosts = append(c.allowedHosts, patterns...)
		return nil
	}
}

// WithCache sets the project page cache shared by all indexes.
func WithCache(cache index.Cache) Option {
	return func(c *resolverConfig) error {
		c.cache = cache
		return nil
	}
}

// WithSchemaValidation enables or disables JSON Schema validation of
// JSON index responses.
func WithSchemaValidation(enabled bool) Option {
	return func(c *resolverConfig) error {
		c.validate = enabled
		return nil
	}
}

// WithMetrics records index requests and cache hits in m. Create m once
// with index.NewMetrics and share it between calls.
func WithMetrics(m *index.Metrics) Option {
	return func(c *resolverConfig) error {
		c.metrics = m
		return nil
	}
}

// WithMaxConcurrency bounds the number of index queries in flight.
func WithMaxConcurrency(n int) Option {
	return func(c *resolverConfig) error {
		c.maxConcurrency = n
		return nil
	}
}

// WithProgress sets a callback for resolution progress events. The
// callback runs on the resolving goroutine.
func WithProgress(fn func(ProgressEvent)) Option {
	return func(c *resolverConfig) error {
		c.onProgress = fn
		return nil
	}
}

// WithLogger sets a structured logger for resolution diagnostics.
// If not set, the logger stored in the context with slogcontext.NewCtx is
// used; without either, logging is disabled.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "pyresolve")
//	plan, err := pyresolve.Resolve(ctx, reqs, pyresolve.WithLogger(logger))
func WithLogger(l *slog.Logger) Option {
	return func(c *resolverConfig) error {
		c.logger = l
		return nil
	}
}

// validateConfig checks the configuration for logical consistency.
func (c *resolverConfig) validateConfig() error {
	if c.timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if c.maxRetry < 0 {
		return errors.New("retry count must not be negative")
	}
	if c.minRetryWait > c.maxRetryWait {
		return fmt.Errorf("minimum retry wait %s exceeds maximum %s", c.minRetryWait, c.maxRetryWait)
	}
	if c.maxConcurrency < 1 {
		return errors.New("max concurrency must be at least 1")
	}
	for _, raw := range c.indexes() {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid index URL %q: %w", raw, err)
		}
		switch u.Scheme {
		case "http", "https", "file":
		default:
			return fmt.Errorf("invalid index URL %q: unsupported scheme %q", raw, u.Scheme)
		}
	}
	return nil
}

// indexes returns the explicit indexes in priority order.
func (c *resolverConfig) indexes() []string {
	base := c.indexURLs
	if !c.indexesSet {
		base = []string{DefaultIndexURL}
	}
	out := make([]string, 0, len(base)+len(c.extraIndexes))
	out = append(out, base...)
	return append(out, c.extraIndexes...)
}

// log returns the logger for a resolution: WithLogger first, then the
// context's logger, then a logger that discards everything.
func (c *resolverConfig) log(ctx context.Context) *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	if l := slogcontext.FromCtx(ctx); l != slog.Default() {
		return l
	}
	return slog.New(discardHandler{})
}

// discardHandler is a slog.Handler that discards all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// newResolverConfig applies the given options and validates the result.
func newResolverConfig(opts ...Option) (*resolverConfig, error) {
	c := &resolverConfig{}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if err := c.validateConfig(); err != nil {
		return nil, err
	}
	return c, nil
}

// newTransport builds the index transport from the HTTP options.
func (c *resolverConfig) newTransport() (index.Transport, error) {
	if c.transport != nil {
		return c.transport, nil
	}
	opts := []index.HTTPOption{
		index.WithRequestTimeout(c.timeout),
		index.WithRetry(c.maxRetry, c.minRetryWait, c.maxRetryWait),
	}
	if c.httpClient != nil {
		opts = append(opts, index.WithHTTPClient(c.httpClient))
	}
	if len(c.allowedHosts) > 0 {
		opts = append(opts, index.WithAllowedHosts(c.allowedHosts...))
	}
	return index.NewDefaultTransport(opts...)
}
