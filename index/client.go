package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/singleflight"

	"github.com/albertocavalcante/go-pyresolve/requirement"
)

// PackageNamePlaceholder in a base URL is replaced by the project name
// instead of appending "/{name}/".
const PackageNamePlaceholder = "{package_name}"

// acceptProjectPage prefers the JSON simple API and falls back to HTML.
const acceptProjectPage = MediaTypeSimpleJSON + ", " + MediaTypeSimpleHTML + ";q=0.2, " + MediaTypeHTML + ";q=0.01"

// Client fetches project pages from one index.
type Client struct {
	baseURL   string
	name      string
	transport Transport
	cache     Cache
	validator *Validator
	metrics   *Metrics

	validateResponses bool
	group             singleflight.Group
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTransport sets the transport. The default serves http, https and
// file URLs.
func WithTransport(t Transport) ClientOption {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithCache sets the project page cache. Pass nil to disable caching.
func WithCache(cache Cache) ClientOption {
	return func(c *Client) {
		if cache == nil {
			cache = NoopCache{}
		}
		c.cache = cache
	}
}

// WithValidation enables or disables JSON Schema validation of JSON
// simple API responses.
func WithValidation(enabled bool) ClientOption {
	return func(c *Client) {
		c.validateResponses = enabled
	}
}

// WithMetrics records requests and cache hits in m.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithName sets the identifier recorded on artifacts listed by this
// index. It defaults to the base URL.
func WithName(name string) ClientOption {
	return func(c *Client) {
		c.name = name
	}
}

// NewClient creates a client for the given index base URL.
//
// By default, JSON responses are validated against the simple API schema
// and project pages are cached in an expiring LRU.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:           strings.TrimSuffix(baseURL, "/"),
		validator:         NewValidator(),
		validateResponses: true,
		cache:             NewLRUCache(0, 0),
	}
	c.name = c.baseURL
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		// No options are passed, so construction cannot fail.
		t, _ := NewDefaultTransport()
		c.transport = t
	}
	return c
}

// BaseURL returns the index base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Name returns the index identifier.
func (c *Client) Name() string {
	return c.name
}

// ProjectURL returns the page URL for a project.
func (c *Client) ProjectURL(name string) string {
	name = requirement.Normalize(name)
	if strings.Contains(c.baseURL, PackageNamePlaceholder) {
		return strings.ReplaceAll(c.baseURL, PackageNamePlaceholder, url.PathEscape(name))
	}
	return c.baseURL + "/" + url.PathEscape(name) + "/"
}

// Project fetches and parses the releases of a project. Concurrent calls
// for the same name share one request. The returned value is owned by the
// caller.
func (c *Client) Project(ctx context.Context, name string) (*Project, error) {
	name = requirement.Normalize(name)
	key := c.baseURL + "|" + name
	log := slogcontext.FromCtx(ctx)

	if cached, ok, err := c.cache.Get(ctx, key); err != nil {
		log.Debug("index cache read failed", "index", c.name, "project", name, "error", err)
	} else if ok {
		c.metrics.cacheHit(c.name)
		return cached.Clone(), nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.fetchProject(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	p := v.(*Project)
	if !shared {
		if err := c.cache.Put(ctx, key, p); err != nil {
			log.Debug("index cache write failed", "index", c.name, "project", name, "error", err)
		}
	}
	return p.Clone(), nil
}

func (c *Client) fetchProject(ctx context.Context, name string) (*Project, error) {
	pageURL := c.ProjectURL(name)
	slogcontext.FromCtx(ctx).Debug("fetching project page", "index", c.name, "url", pageURL)

	start := time.Now()
	p, err := c.loadProject(ctx, name, pageURL)
	c.metrics.observe(c.name, KindProject, start, err)
	return p, err
}

func (c *Client) loadProject(ctx context.Context, name, pageURL string) (*Project, error) {
	resp, err := c.transport.Fetch(ctx, pageURL, acceptProjectPage)
	if err != nil {
		return nil, err
	}

	page, err := url.Parse(resp.URL)
	if err != nil {
		page, _ = url.Parse(pageURL)
	}

	listedName, files, versions, err := c.parsePage(resp, page)
	if err != nil {
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode, Class: ErrUnavailable, Err: err}
	}
	if listedName != "" && requirement.Normalize(listedName) != name {
		return nil, &FetchError{
			URL:   pageURL,
			Class: ErrUnavailable,
			Err:   fmt.Errorf("index returned project %q for %q", listedName, name),
		}
	}
	return NewProject(name, c.name, files, versions), nil
}

func (c *Client) parsePage(resp *Response, page *url.URL) (string, []File, []string, error) {
	switch mt := mediaType(resp.ContentType); {
	case mt == MediaTypeSimpleJSON:
		return c.parseJSON(resp.Body, page)
	case mt == MediaTypeJSON || strings.HasSuffix(mt, "+json"):
		if isLegacyJSON(resp.Body) {
			return parseLegacyJSON(resp.Body, page)
		}
		return c.parseJSON(resp.Body, page)
	case mt == MediaTypeSimpleHTML || mt == MediaTypeHTML:
		files, err := parseSimpleHTML(resp.Body, page)
		return "", files, nil, err
	default:
		// Static hosts often send no useful type; sniff the body.
		if trimmed := bytes.TrimSpace(resp.Body); len(trimmed) > 0 && trimmed[0] == '{' {
			if isLegacyJSON(trimmed) {
				return parseLegacyJSON(trimmed, page)
			}
			return c.parseJSON(trimmed, page)
		}
		files, err := parseSimpleHTML(resp.Body, page)
		return "", files, nil, err
	}
}

func (c *Client) parseJSON(data []byte, page *url.URL) (string, []File, []string, error) {
	if c.validateResponses {
		if err := c.validator.ValidateProjectPage(data); err != nil {
			return "", nil, nil, fmt.Errorf("project page failed validation: %w", err)
		}
	}
	return parseSimpleJSON(data, page)
}

// FetchMetadata downloads the core metadata published next to an
// artifact and verifies it against the advertised digest.
func (c *Client) FetchMetadata(ctx context.Context, a *Artifact) (body []byte, err error) {
	if !a.MetadataAvailable {
		return nil, fmt.Errorf("%s: no separate metadata published", a.Filename)
	}
	defer func(start time.Time) { c.metrics.observe(c.name, KindMetadata, start, err) }(time.Now())

	resp, err := c.transport.Fetch(ctx, a.URL+".metadata", "*/*")
	if err != nil {
		return nil, err
	}
	if err := verify(a.MetadataDigest, resp.Body); err != nil {
		return nil, fmt.Errorf("%s.metadata: %w", a.Filename, err)
	}
	return resp.Body, nil
}

// FetchArtifact downloads an artifact and verifies it against its digest.
func (c *Client) FetchArtifact(ctx context.Context, a *Artifact) (body []byte, err error) {
	defer func(start time.Time) { c.metrics.observe(c.name, KindArtifact, start, err) }(time.Now())

	resp, err := c.transport.Fetch(ctx, a.URL, "*/*")
	if err != nil {
		return nil, err
	}
	if err := verify(a.Digest, resp.Body); err != nil {
		return nil, fmt.Errorf("%s: %w", a.Filename, err)
	}
	return resp.Body, nil
}

// verify checks body against d. An empty digest is not checked.
func verify(d digest.Digest, body []byte) error {
	if d == "" {
		return nil
	}
	if err := d.Validate(); err != nil {
		return errors.Join(ErrDigestMismatch, err)
	}
	v := d.Verifier()
	_, _ = v.Write(body)
	if !v.Verified() {
		return fmt.Errorf("%w: expected %s, got %s", ErrDigestMismatch, d, d.Algorithm().FromBytes(body))
	}
	return nil
}
