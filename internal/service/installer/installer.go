package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"github.com/oshokin/arthas-launcher/internal/domain/release"
	"github.com/oshokin/arthas-launcher/internal/logger"
	"github.com/oshokin/arthas-launcher/internal/service/remote"
	"github.com/oshokin/arthas-launcher/internal/service/resolver"
)

const (
	// DefaultDirMode is used for every directory the installer creates.
	DefaultDirMode os.FileMode = 0o755

	// defaultLockPoll is the interval between attempts to take a busy lock.
	defaultLockPoll = 500 * time.Millisecond

	// lockSuffix is appended to the package root to name the install lock.
	lockSuffix = ".lock"
)

var (
	// ErrFilesystem classifies local I/O failures during an install.
	ErrFilesystem = errors.New("filesystem error")
	// errVersionRequired is returned for a zero version.
	errVersionRequired = errors.New("version must be provided")
	// errToolNameRequired is returned when the installer has no tool name.
	errToolNameRequired = errors.New("tool name must be provided")
)

// Downloader streams a remote archive into dst.
type Downloader interface {
	Fetch(ctx context.Context, url string, dst io.Writer) (int64, error)
}

// Settings describe where archives come from and how they are unpacked.
type Settings struct {
	// ToolName is the install directory name under <root>/<version>.
	ToolName string
	// URLTemplate is the download URL with {version} and {mirror} placeholders.
	URLTemplate string
	// Mirror is substituted for {mirror}.
	Mirror string
	// StripComponents is the number of leading path components dropped on extraction.
	StripComponents int
	// LockStaleAfter is the age after which another launcher's lock is ignored.
	LockStaleAfter time.Duration
	// LockPoll is the interval between attempts to take a busy lock.
	LockPoll time.Duration
}

// Installer reconciles the package root with a wanted version.
type Installer struct {
	// settings configure downloads and extraction.
	settings Settings
	// downloader fetches archives.
	downloader Downloader
}

// New creates an Installer.
func New(settings Settings, downloader Downloader) (*Installer, error) {
	if settings.ToolName == "" {
		return nil, errToolNameRequired
	}

	if settings.LockPoll <= 0 {
		settings.LockPoll = defaultLockPoll
	}

	return &Installer{
		settings:   settings,
		downloader: downloader,
	}, nil
}

// Target returns the install directory of v: <root>/<v>/<tool>.
func (i *Installer) Target(root string, v release.Version) string {
	return filepath.Join(root, v.String(), i.settings.ToolName)
}

// Completed lists, in ascending order, the versions under root whose install
// target exists. Version directories without one are leftovers of interrupted
// installs and are skipped.
func (i *Installer) Completed(root string) ([]release.Version, error) {
	versions, err := resolver.Installed(root)
	if err != nil {
		return nil, err
	}

	completed := make([]release.Version, 0, len(versions))

	for _, v := range versions {
		installed, existsErr := dirExists(i.Target(root, v))
		if existsErr != nil {
			return nil, existsErr
		}

		if installed {
			completed = append(completed, v)
		}
	}

	return completed, nil
}

// EnsureInstalled returns the install target of v, downloading and extracting
// it first when the target does not exist yet.
func (i *Installer) EnsureInstalled(ctx context.Context, root string, v release.Version) (string, error) {
	if v.IsZero() {
		return "", errVersionRequired
	}

	ctx = logger.WithKV(ctx, "version", v.String())
	target := i.Target(root, v)

	installed, err := dirExists(target)
	if err != nil {
		return "", err
	}

	if installed {
		logger.DebugKV(ctx, "Already installed", "target", target)
		return target, nil
	}

	downloadURL, err := remote.ExpandURL(i.settings.URLTemplate, v.String(), i.settings.Mirror)
	if err != nil {
		return "", err
	}

	if err = os.MkdirAll(filepath.Dir(root), DefaultDirMode); err != nil {
		return "", fmt.Errorf("%w: create package root parent: %w", ErrFilesystem, err)
	}

	lock, err := acquireLock(ctx, root+lockSuffix, i.settings.LockStaleAfter, i.settings.LockPoll)
	if err != nil {
		return "", err
	}

	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			logger.WarnKV(ctx, "Unable to release install lock", "path", lock.path, "error", releaseErr)
		}
	}()

	// Another launcher may have finished the same install while we waited.
	if installed, err = dirExists(target); err != nil {
		return "", err
	}

	if installed {
		return target, nil
	}

	logger.InfoKV(ctx, "Installing", "url", downloadURL, "target", target)

	if err = i.install(ctx, root, v, target, downloadURL); err != nil {
		return "", err
	}

	logger.InfoKV(ctx, "Installed", "target", target)

	return target, nil
}

// install downloads into a fresh staging area and publishes the extracted tree.
func (i *Installer) install(ctx context.Context, root string, v release.Version, target, downloadURL string) (err error) {
	staging, err := os.MkdirTemp("", i.settings.ToolName+"-download-")
	if err != nil {
		return fmt.Errorf("%w: create staging area: %w", ErrFilesystem, err)
	}

	defer func() {
		if removeErr := os.RemoveAll(staging); removeErr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: remove staging area: %w", ErrFilesystem, removeErr))
		}
	}()

	archivePath := filepath.Join(staging, fmt.Sprintf("%s-%s.download", i.settings.ToolName, v))

	if err = i.download(ctx, downloadURL, archivePath); err != nil {
		return err
	}

	versionDir := filepath.Join(root, v.String())

	existed, err := dirExists(versionDir)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(versionDir, DefaultDirMode); err != nil {
		return fmt.Errorf("%w: create version directory: %w", ErrFilesystem, err)
	}

	if !existed {
		// An empty version directory would look like an install to the resolver.
		defer func() {
			if err == nil {
				return
			}

			if removeErr := os.RemoveAll(versionDir); removeErr != nil {
				err = multierr.Append(err, fmt.Errorf("%w: remove version directory: %w", ErrFilesystem, removeErr))
			}
		}()
	}

	return i.publish(ctx, archivePath, versionDir, target)
}

// download writes the archive at downloadURL to archivePath.
func (i *Installer) download(ctx context.Context, downloadURL, archivePath string) (err error) {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("%w: create archive file: %w", ErrFilesystem, err)
	}

	defer func() {
		if closeErr := out.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: close archive file: %w", ErrFilesystem, closeErr))
		}
	}()

	n, err := i.downloader.Fetch(ctx, downloadURL, out)
	if err != nil {
		if errors.Is(err, remote.ErrNetwork) {
			return err
		}

		return fmt.Errorf("%w: %w", ErrFilesystem, err)
	}

	logger.DebugKV(ctx, "Downloaded archive", "bytes", n, "path", archivePath)

	return nil
}

// publish extracts into a hidden sibling of target and renames it into place.
// Leftover siblings from interrupted runs are never mistaken for an install.
func (i *Installer) publish(ctx context.Context, archivePath, versionDir, target string) (err error) {
	extractDir, err := os.MkdirTemp(versionDir, "."+i.settings.ToolName+"-staging-")
	if err != nil {
		return fmt.Errorf("%w: create extraction directory: %w", ErrFilesystem, err)
	}

	published := false

	defer func() {
		if published {
			return
		}

		if removeErr := os.RemoveAll(extractDir); removeErr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: remove extraction directory: %w", ErrFilesystem, removeErr))
		}
	}()

	files, err := extractArchive(archivePath, extractDir, i.settings.StripComponents)
	if err != nil {
		return err
	}

	logger.DebugKV(ctx, "Extracted archive", "files", files)

	if err = os.Chmod(extractDir, DefaultDirMode); err != nil {
		return fmt.Errorf("%w: chmod extraction directory: %w", ErrFilesystem, err)
	}

	if err = os.Rename(extractDir, target); err != nil {
		// A concurrent install that won the race is as good as ours.
		if exists, _ := dirExists(target); exists {
			logger.InfoKV(ctx, "Target appeared during install, keeping it", "target", target)
			return nil
		}

		return fmt.Errorf("%w: publish install target: %w", ErrFilesystem, err)
	}

	published = true

	return nil
}

// dirExists reports whether path exists. Any error other than "not exist" is returned.
func dirExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, fmt.Errorf("%w: stat %s: %w", ErrFilesystem, path, err)
}
