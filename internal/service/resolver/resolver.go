package resolver

import (
	"errors"
	"fmt"
	"os"

	"github.com/oshokin/arthas-launcher/internal/domain/release"
)

var (
	// ErrPackageRootMissing indicates that nothing has been installed yet.
	ErrPackageRootMissing = errors.New("package root does not exist")
	// ErrNoInstalledVersions indicates an existing but empty package root.
	ErrNoInstalledVersions = errors.New("no installed versions")
)

// IsFirstRun reports whether err means "no local version" rather than a broken tree.
func IsFirstRun(err error) bool {
	return errors.Is(err, ErrPackageRootMissing) || errors.Is(err, ErrNoInstalledVersions)
}

// Installed lists the versions under root in ascending order.
// It never creates root.
func Installed(root string) ([]release.Version, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrPackageRootMissing, root, err)
		}

		return nil, fmt.Errorf("read package root: %w", err)
	}

	versions := make([]release.Version, 0, len(entries))

	for _, entry := range entries {
		v, parseErr := release.Parse(entry.Name())
		if parseErr != nil {
			return nil, fmt.Errorf("entry %q in %s: %w", entry.Name(), root, parseErr)
		}

		versions = append(versions, v)
	}

	release.Sort(versions)

	return versions, nil
}

// Resolve returns the highest installed version under root.
func Resolve(root string) (release.Version, error) {
	versions, err := Installed(root)
	if err != nil {
		return release.Version{}, err
	}

	highest, ok := release.Max(versions)
	if !ok {
		return release.Version{}, fmt.Errorf("%w in %s", ErrNoInstalledVersions, root)
	}

	return highest, nil
}
