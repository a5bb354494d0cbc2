package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oshokin/arthas-launcher/internal/version"
)

const (
	// transportHandshakeTimeout bounds TLS handshakes.
	transportHandshakeTimeout = 10 * time.Second
	// transportHeaderTimeout bounds the wait for response headers.
	transportHeaderTimeout = 30 * time.Second
	// transportIdleTimeout closes idle keep-alive connections.
	transportIdleTimeout = 30 * time.Second
)

var (
	// ErrNetwork classifies every failure that happened talking to the remote.
	ErrNetwork = errors.New("network error")
	// ErrBadStatus indicates a non-200 HTTP response.
	ErrBadStatus = errors.New("unexpected http status")
	// ErrTooManyRedirects indicates the redirect hop limit was exceeded.
	ErrTooManyRedirects = errors.New("too many redirects")
	// errURLRequired is returned when no URL was configured.
	errURLRequired = errors.New("url must be provided")
)

// Option configures the HTTP behaviour shared by Oracle and Fetcher.
type Option func(*options)

// options collects HTTP settings before a client is built.
type options struct {
	// timeout bounds a whole request including reading the body.
	timeout time.Duration
	// maxRedirects is the number of redirect hops followed; negative means the http default.
	maxRedirects int
	// transport overrides the default transport, mostly for tests.
	transport http.RoundTripper
	// userAgent is sent with every request.
	userAgent string
}

// WithTimeout sets a timeout for each request.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithMaxRedirects limits the number of redirect hops followed.
func WithMaxRedirects(hops int) Option {
	return func(o *options) {
		o.maxRedirects = hops
	}
}

// WithTransport overrides the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

func buildOptions(opts []Option) *options {
	o := &options{
		maxRedirects: -1,
		userAgent:    version.UserAgent(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// newHTTPClient builds a client with explicit transport timeouts and the
// configured redirect policy.
func newHTTPClient(o *options) *http.Client {
	transport := o.transport
	if transport == nil {
		//nolint:forcetypeassert // http.DefaultTransport is always *http.Transport.
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSHandshakeTimeout = transportHandshakeTimeout
		t.ResponseHeaderTimeout = transportHeaderTimeout
		t.IdleConnTimeout = transportIdleTimeout
		transport = t
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   o.timeout,
	}

	if o.maxRedirects >= 0 {
		client.CheckRedirect = limitRedirects(o.maxRedirects)
	}

	return client
}

// limitRedirects allows at most hops redirects. via holds every request made
// so far, so the n-th redirect is checked with len(via) == n.
func limitRedirects(hops int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) > hops {
			return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, hops)
		}

		return nil
	}
}

// get performs a GET and returns the response when the status is 200.
// The caller owns the body of a successful response.
func get(ctx context.Context, client *http.Client, userAgent, rawURL string) (*http.Response, error) {
	if rawURL == "" {
		return nil, errURLRequired
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	response, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrNetwork, rawURL, err)
	}

	if response.StatusCode != http.StatusOK {
		_ = response.Body.Close()

		return nil, fmt.Errorf("%w: %w: get %s: %s", ErrNetwork, ErrBadStatus, rawURL, response.Status)
	}

	return response, nil
}
