package launcher

import (
	"context"
	"errors"

	"github.com/oshokin/arthas-launcher/internal/domain/release"
	"github.com/oshokin/arthas-launcher/internal/service/embedder"
	"github.com/oshokin/arthas-launcher/internal/service/installer"
	"github.com/oshokin/arthas-launcher/internal/service/remote"
	"github.com/oshokin/arthas-launcher/internal/service/resolver"
)

// Failure kinds reported in logs.
const (
	KindTool       = "tool"
	KindCanceled   = "canceled"
	KindNetwork    = "network"
	KindVersion    = "version"
	KindArchive    = "archive"
	KindFilesystem = "filesystem"
	KindRuntime    = "runtime"
	KindConfig     = "config"
)

// Kind classifies a launch failure. Request timeouts are network failures;
// logFailure reports an interrupted launch by its context instead.
//
//nolint:cyclop // A flat list of sentinel checks.
func Kind(err error) string {
	var exitErr *embedder.ExitError

	switch {
	case errors.As(err, &exitErr):
		return KindTool
	case errors.Is(err, remote.ErrNetwork),
		errors.Is(err, remote.ErrBadStatus),
		errors.Is(err, remote.ErrTooManyRedirects):
		return KindNetwork
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, release.ErrInvalidVersion):
		return KindVersion
	case errors.Is(err, installer.ErrArchive):
		return KindArchive
	case errors.Is(err, installer.ErrFilesystem),
		errors.Is(err, installer.ErrLockTimeout),
		resolver.IsFirstRun(err):
		return KindFilesystem
	case errors.Is(err, embedder.ErrRuntime),
		errors.Is(err, embedder.ErrArgConversion),
		errors.Is(err, embedder.ErrUnsupportedEntryPoint),
		errors.Is(err, embedder.ErrAlreadyInvoked):
		return KindRuntime
	default:
		return KindConfig
	}
}
