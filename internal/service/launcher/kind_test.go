package launcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/arthas-launcher/internal/domain/release"
	"github.com/oshokin/arthas-launcher/internal/service/embedder"
	"github.com/oshokin/arthas-launcher/internal/service/installer"
	"github.com/oshokin/arthas-launcher/internal/service/remote"
	"github.com/oshokin/arthas-launcher/internal/service/resolver"
)

// TestKind maps wrapped sentinel errors to log kinds.
func TestKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("run: %w", &embedder.ExitError{Code: 1}), KindTool},
		{fmt.Errorf("query: %w", context.Canceled), KindCanceled},
		{fmt.Errorf("query: %w: %w", remote.ErrNetwork, errors.New("refused")), KindNetwork},
		{fmt.Errorf("query: %w: %w", remote.ErrNetwork, context.DeadlineExceeded), KindNetwork},
		{remote.ErrTooManyRedirects, KindNetwork},
		{fmt.Errorf("parse: %w", release.ErrInvalidVersion), KindVersion},
		{installer.ErrArchive, KindArchive},
		{installer.ErrFilesystem, KindFilesystem},
		{resolver.ErrPackageRootMissing, KindFilesystem},
		{fmt.Errorf("%w: start: %w", embedder.ErrRuntime, embedder.ErrJavaNotFound), KindRuntime},
		{embedder.ErrArgConversion, KindRuntime},
		{embedder.ErrAlreadyInvoked, KindRuntime},
		{errors.New("bad settings"), KindConfig},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, Kind(tt.err), tt.err.Error())
	}
}

// TestKind_RequestTimeout reports a client timeout as a network failure.
func TestKind_RequestTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := remote.NewOracle(srv.URL, remote.WithTimeout(50*time.Millisecond)).Latest(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, KindNetwork, Kind(err))
}
