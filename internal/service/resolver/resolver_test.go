package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/arthas-launcher/internal/domain/release"
)

func mustVersion(t *testing.T, s string) release.Version {
	t.Helper()

	v, err := release.Parse(s)
	require.NoError(t, err)

	return v
}

func makeDirs(t *testing.T, root string, names ...string) {
	t.Helper()

	for _, name := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name), 0o755))
	}
}

// TestResolve_ReturnsMaximum picks the highest version regardless of creation order.
func TestResolve_ReturnsMaximum(t *testing.T) {
	t.Parallel()

	orders := [][]string{
		{"3.1.0", "3.7.2", "3.10.0", "3.10.0-rc.1"},
		{"3.10.0", "3.10.0-rc.1", "3.7.2", "3.1.0"},
		{"3.7.2", "3.10.0-rc.1", "3.1.0", "3.10.0"},
	}

	for _, order := range orders {
		root := t.TempDir()
		makeDirs(t, root, order...)

		v, err := Resolve(root)
		require.NoError(t, err)
		require.Equal(t, mustVersion(t, "3.10.0"), v)
	}
}

// TestResolve_InvalidEntryFails never skips an entry that is not a version.
func TestResolve_InvalidEntryFails(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	makeDirs(t, root, "3.7.2", "tmp")

	_, err := Resolve(root)
	require.ErrorIs(t, err, release.ErrInvalidVersion)
	require.Contains(t, err.Error(), `"tmp"`)
	require.False(t, IsFirstRun(err))

	// Plain files count as entries too.
	root = t.TempDir()
	makeDirs(t, root, "3.7.2")
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), nil, 0o600))

	_, err = Resolve(root)
	require.ErrorIs(t, err, release.ErrInvalidVersion)
}

// TestResolve_MissingRoot reports a first run without creating the directory.
func TestResolve_MissingRoot(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "lib")

	_, err := Resolve(root)
	require.ErrorIs(t, err, ErrPackageRootMissing)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.True(t, IsFirstRun(err))

	_, statErr := os.Stat(root)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

// TestResolve_EmptyRoot reports a first run for an empty package root.
func TestResolve_EmptyRoot(t *testing.T) {
	t.Parallel()

	_, err := Resolve(t.TempDir())
	require.ErrorIs(t, err, ErrNoInstalledVersions)
	require.True(t, IsFirstRun(err))
}

// TestInstalled_Sorted lists versions in ascending order.
func TestInstalled_Sorted(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	makeDirs(t, root, "2.0.0", "1.0.0", "1.10.0")

	versions, err := Installed(root)
	require.NoError(t, err)
	require.Equal(t, "1.0.0, 1.10.0, 2.0.0", release.Join(versions))
}
