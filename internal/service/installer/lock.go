package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"
	"go.uber.org/multierr"

	"github.com/oshokin/arthas-launcher/internal/logger"
)

// ErrLockTimeout indicates that another launcher held the install lock until
// the context ended.
var ErrLockTimeout = errors.New("timed out waiting for install lock")

// installLock is a marker file holding the pid of the launcher that installs.
type installLock struct {
	// path is the marker file location.
	path string
}

// acquireLock creates the marker exclusively. A marker left by a dead process
// or older than staleAfter is removed; a live one is polled until released or
// until ctx ends.
func acquireLock(ctx context.Context, path string, staleAfter, poll time.Duration) (*installLock, error) {
	waiting := false

	for {
		created, err := tryCreateLock(path)
		if err != nil {
			return nil, err
		}

		if created {
			return &installLock{path: path}, nil
		}

		if lockIsStale(ctx, path, staleAfter) {
			logger.InfoKV(ctx, "Removing stale install lock", "path", path)

			if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: remove stale install lock: %w", ErrFilesystem, err)
			}

			continue
		}

		if !waiting {
			logger.InfoKV(ctx, "Another launcher is installing, waiting", "path", path)

			waiting = true
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
		case <-time.After(poll):
		}
	}
}

// tryCreateLock reports whether the marker was created by this call.
func tryCreateLock(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}

		return false, fmt.Errorf("%w: create install lock: %w", ErrFilesystem, err)
	}

	_, writeErr := f.WriteString(strconv.Itoa(os.Getpid()))
	closeErr := f.Close()

	if err = multierr.Combine(writeErr, closeErr); err != nil {
		_ = os.Remove(path)

		return false, fmt.Errorf("%w: write install lock: %w", ErrFilesystem, err)
	}

	return true, nil
}

// lockIsStale reports whether the marker can be taken over.
func lockIsStale(ctx context.Context, path string, staleAfter time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		// Released between our attempts or unreadable; the next attempt will tell.
		return false
	}

	if staleAfter > 0 && time.Since(info.ModTime()) > staleAfter {
		return true
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil {
		// The owner may not have written its pid yet; only the age can tell.
		return false
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		logger.DebugKV(ctx, "Unable to inspect install lock owner", "pid", pid, "error", err)
		return false
	}

	return process == nil
}

// release removes the marker.
func (l *installLock) release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}
