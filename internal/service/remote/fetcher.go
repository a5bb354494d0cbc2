package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

const (
	// VersionPlaceholder is replaced by the version in a download URL template.
	VersionPlaceholder = "{version}"
	// MirrorPlaceholder is replaced by the mirror in a download URL template.
	MirrorPlaceholder = "{mirror}"
)

// ErrUnresolvedPlaceholder indicates a template token left after substitution.
var ErrUnresolvedPlaceholder = errors.New("unresolved placeholder in download URL")

// placeholderPattern matches any {token} left in an expanded URL.
var placeholderPattern = regexp.MustCompile(`\{[A-Za-z_][A-Za-z0-9_]*\}`)

// ExpandURL substitutes version and mirror into template. Both values are
// query-escaped. Any placeholder that survives substitution is an error.
func ExpandURL(template, version, mirror string) (string, error) {
	expanded := strings.NewReplacer(
		VersionPlaceholder, url.QueryEscape(version),
		MirrorPlaceholder, url.QueryEscape(mirror),
	).Replace(template)

	if token := placeholderPattern.FindString(expanded); token != "" {
		return "", fmt.Errorf("%w: %s in %s", ErrUnresolvedPlaceholder, token, template)
	}

	if _, err := url.ParseRequestURI(expanded); err != nil {
		return "", fmt.Errorf("parse download URL: %w", err)
	}

	return expanded, nil
}

// Fetcher downloads archives.
type Fetcher struct {
	// client performs requests with the redirect policy applied.
	client *http.Client
	// userAgent is sent with every request.
	userAgent string
}

// NewFetcher creates a Fetcher. Use WithMaxRedirects to bound redirect hops.
func NewFetcher(opts ...Option) *Fetcher {
	o := buildOptions(opts)

	return &Fetcher{
		client:    newHTTPClient(o),
		userAgent: o.userAgent,
	}
}

// Fetch streams the body at rawURL into dst and returns the number of bytes written.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, dst io.Writer) (int64, error) {
	response, err := get(ctx, f.client, f.userAgent, rawURL)
	if err != nil {
		return 0, fmt.Errorf("download archive: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	sink := &trackingWriter{w: dst}

	n, err := io.Copy(sink, response.Body)

	switch {
	case sink.err != nil:
		return n, fmt.Errorf("write archive: %w", sink.err)
	case err != nil:
		return n, fmt.Errorf("%w: download archive body: %w", ErrNetwork, err)
	}

	return n, nil
}

// trackingWriter remembers the last write error so local I/O failures are not
// mistaken for network failures.
type trackingWriter struct {
	// w is the destination.
	w io.Writer
	// err is the last error returned by w.
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}

	return n, err
}
