package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oshokin/arthas-launcher/internal/domain/release"
)

// maxVersionBodyBytes is the upper bound on the latest version response.
const maxVersionBodyBytes = 64 << 10

// Oracle asks the publishing server for the latest version.
type Oracle struct {
	// url answers with the latest version as plain text.
	url string
	// client performs the request.
	client *http.Client
	// userAgent is sent with every request.
	userAgent string
}

// NewOracle creates an Oracle for the given endpoint.
func NewOracle(url string, opts ...Option) *Oracle {
	o := buildOptions(opts)

	return &Oracle{
		url:       url,
		client:    newHTTPClient(o),
		userAgent: o.userAgent,
	}
}

// Latest issues one GET and parses the trimmed body as a version. The body is
// untrusted: anything that is not a strict semantic version is rejected before
// it can reach a filesystem path.
func (o *Oracle) Latest(ctx context.Context) (release.Version, error) {
	response, err := get(ctx, o.client, o.userAgent, o.url)
	if err != nil {
		return release.Version{}, fmt.Errorf("fetch latest version: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxVersionBodyBytes))
	if err != nil {
		return release.Version{}, fmt.Errorf("%w: read latest version: %w", ErrNetwork, err)
	}

	v, err := release.Parse(strings.TrimSpace(string(body)))
	if err != nil {
		return release.Version{}, fmt.Errorf("latest version from %s: %w", o.url, err)
	}

	return v, nil
}
