package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"oras.land/oras-go/v2/registry/remote/retry"
)

// Transport defaults.
const (
	DefaultMaxIdleConns        = 50
	DefaultMaxIdleConnsPerHost = 20
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultRequestTimeout      = 15 * time.Second
	DefaultMaxRetry            = 3
	DefaultMinRetryWait        = 200 * time.Millisecond
	DefaultMaxRetryWait        = 3 * time.Second
	DefaultUserAgent           = "go-pyresolve"
)

// Media types served by simple API indexes.
const (
	MediaTypeSimpleJSON = "application/vnd.pypi.simple.v1+json"
	MediaTypeSimpleHTML = "application/vnd.pypi.simple.v1+html"
	MediaTypeHTML       = "text/html"
	MediaTypeJSON       = "application/json"
)

// Response is a successful fetch.
type Response struct {
	// URL is the final URL after redirects.
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Transport performs a single fetch. Failures must wrap one of
// ErrNotFound, ErrRestricted or ErrUnavailable, except context errors
// which are returned as-is.
type Transport interface {
	Fetch(ctx context.Context, rawURL, accept string) (*Response, error)
}

// HTTPTransport fetches over HTTP(S) with a bounded retry budget and an
// optional host allowlist.
type HTTPTransport struct {
	client    *http.Client
	allowed   []glob.Glob
	userAgent string
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*httpConfig) error

type httpConfig struct {
	client    *http.Client
	timeout   time.Duration
	maxRetry  int
	minWait   time.Duration
	maxWait   time.Duration
	allowed   []string
	userAgent string
}

// WithHTTPClient sets the underlying client. Its transport is wrapped with
// the retry policy; its Timeout is kept unless WithRequestTimeout is given.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(cfg *httpConfig) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.client = c
		return nil
	}
}

// WithRequestTimeout bounds each request attempt chain.
// Zero or negative values fall back to DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) HTTPOption {
	return func(cfg *httpConfig) error {
		if d <= 0 {
			d = DefaultRequestTimeout
		}
		cfg.timeout = d
		return nil
	}
}

// WithRetry sets the retry budget. maxRetry of 0 disables retries.
func WithRetry(maxRetry int, minWait, maxWait time.Duration) HTTPOption {
	return func(cfg *httpConfig) error {
		if maxRetry < 0 {
			return fmt.Errorf("max retry must be non-negative, got %d", maxRetry)
		}
		if minWait < 0 || maxWait < minWait {
			return fmt.Errorf("invalid retry wait range [%s, %s]", minWait, maxWait)
		}
		cfg.maxRetry, cfg.minWait, cfg.maxWait = maxRetry, minWait, maxWait
		return nil
	}
}

// WithAllowedHosts restricts fetches to hosts matching at least one glob
// pattern ("*.pythonhosted.org", "pypi.org"). A request to any other host
// fails with ErrRestricted without touching the network.
func WithAllowedHosts(patterns ...string) HTTPOption {
	return func(cfg *httpConfig) error {
		cfg.allowed = append(cfg.allowed, patterns...)
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(cfg *httpConfig) error {
		cfg.userAgent = ua
		return nil
	}
}

// NewHTTPTransport creates an HTTP transport.
func NewHTTPTransport(opts ...HTTPOption) (*HTTPTransport, error) {
	cfg := &httpConfig{
		maxRetry:  DefaultMaxRetry,
		minWait:   DefaultMinRetryWait,
		maxWait:   DefaultMaxRetryWait,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	var base http.RoundTripper
	timeout := DefaultRequestTimeout
	if cfg.client != nil {
		base = cfg.client.Transport
		if cfg.client.Timeout > 0 {
			timeout = cfg.client.Timeout
		}
	}
	if base == nil {
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        DefaultMaxIdleConns,
			MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
			IdleConnTimeout:     DefaultIdleConnTimeout,
		}
	}
	if cfg.timeout > 0 {
		timeout = cfg.timeout
	}

	policy := &retry.GenericPolicy{
		Retryable: retry.DefaultPredicate,
		Backoff:   retry.DefaultBackoff,
		MinWait:   cfg.minWait,
		MaxWait:   cfg.maxWait,
		MaxRetry:  cfg.maxRetry,
	}
	rt := retry.NewTransport(base)
	rt.Policy = func() retry.Policy { return policy }

	t := &HTTPTransport{
		client:    &http.Client{Transport: rt, Timeout: timeout},
		userAgent: cfg.userAgent,
	}
	if cfg.client != nil {
		t.client.CheckRedirect = cfg.client.CheckRedirect
		t.client.Jar = cfg.client.Jar
	}
	for _, p := range cfg.allowed {
		g, err := glob.Compile(strings.ToLower(p), '.')
		if err != nil {
			return nil, fmt.Errorf("invalid allowed host pattern %q: %w", p, err)
		}
		t.allowed = append(t.allowed, g)
	}
	return t, nil
}

func (t *HTTPTransport) hostAllowed(host string) bool {
	if len(t.allowed) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, g := range t.allowed {
		if g.Match(host) {
			return true
		}
	}
	return false
}

// Fetch performs a GET request and returns the body of a 2xx response.
func (t *HTTPTransport) Fetch(ctx context.Context, rawURL, accept string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Class: ErrUnavailable, Err: err}
	}
	if !t.hostAllowed(u.Hostname()) {
		return nil, &FetchError{URL: rawURL, Class: ErrRestricted, Err: fmt.Errorf("host %q is not allowed", u.Hostname())}
	}

	// The body stays nil so the retry transport can replay the request.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Class: ErrUnavailable, Err: err}
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &FetchError{URL: rawURL, Class: ErrUnavailable, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Class: classifyStatus(resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Class: ErrUnavailable, Err: err}
	}
	return &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// FileTransport serves file:// URLs from disk. A URL naming a directory is
// answered with its index.json, falling back to index.html.
type FileTransport struct{}

// Fetch reads the file the URL points to.
func (FileTransport) Fetch(ctx context.Context, rawURL, _ string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" {
		return nil, &FetchError{URL: rawURL, Class: ErrUnavailable, Err: fmt.Errorf("not a file URL")}
	}
	p := filepath.FromSlash(u.Path)

	info, err := os.Stat(p)
	if err != nil {
		return nil, fileError(rawURL, err)
	}
	if info.IsDir() {
		for _, candidate := range []string{"index.json", "index.html"} {
			full := filepath.Join(p, candidate)
			if _, err := os.Stat(full); err == nil {
				p = full
				break
			}
		}
		if p == filepath.FromSlash(u.Path) {
			return nil, &FetchError{URL: rawURL, Class: ErrNotFound, Err: fmt.Errorf("no index page in %s", p)}
		}
	}

	body, err := os.ReadFile(p)
	if err != nil {
		return nil, fileError(rawURL, err)
	}
	return &Response{
		URL:         rawURL,
		StatusCode:  http.StatusOK,
		ContentType: fileContentType(p),
		Body:        body,
	}, nil
}

func fileError(rawURL string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &FetchError{URL: rawURL, Class: ErrNotFound, Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &FetchError{URL: rawURL, Class: ErrRestricted, Err: err}
	default:
		return &FetchError{URL: rawURL, Class: ErrUnavailable, Err: err}
	}
}

func fileContentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".json":
		return MediaTypeSimpleJSON
	case ".html", ".htm":
		return MediaTypeHTML
	default:
		return "application/octet-stream"
	}
}

// MultiTransport dispatches on the URL scheme.
type MultiTransport map[string]Transport

// Fetch routes the request to the transport registered for the scheme.
func (m MultiTransport) Fetch(ctx context.Context, rawURL, accept string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Class: ErrUnavailable, Err: err}
	}
	t, ok := m[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, &FetchError{URL: rawURL, Class: ErrUnavailable, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	return t.Fetch(ctx, rawURL, accept)
}

// NewDefaultTransport returns a transport serving http, https and file URLs.
func NewDefaultTransport(opts ...HTTPOption) (MultiTransport, error) {
	h, err := NewHTTPTransport(opts...)
	if err != nil {
		return nil, err
	}
	return MultiTransport{"http": h, "https": h, "file": FileTransport{}}, nil
}

// mediaType returns the lower-cased media type without parameters.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mt
}
