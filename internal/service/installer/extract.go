package installer

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

const (
	// maxArchiveFiles is the upper bound on extracted regular files.
	maxArchiveFiles = 20000
	// maxArchiveBytes is the upper bound on the total extracted size (2 GB).
	// Prevents decompression bombs.
	maxArchiveBytes = 2 << 30
	// fileModeMask keeps permission bits only.
	fileModeMask os.FileMode = 0o777
	// minFileMode keeps extracted files readable and writable by the owner.
	minFileMode os.FileMode = 0o600
)

var (
	// ErrArchive classifies malformed, unsupported or unsafe archives.
	ErrArchive = errors.New("archive error")

	zipMagic      = []byte("PK\x03\x04")
	zipEmptyMagic = []byte("PK\x05\x06")
	gzipMagic     = []byte{0x1f, 0x8b}
)

// archiveFormat is the container format of a downloaded archive.
type archiveFormat int

const (
	formatUnknown archiveFormat = iota
	formatZip
	formatTarGz
)

// extractor writes archive entries below dest and enforces limits.
type extractor struct {
	// dest is the extraction root.
	dest string
	// strip is the number of leading path components to drop.
	strip int
	// files counts extracted regular files.
	files int
	// budget is the number of bytes that may still be written.
	budget int64
}

// extractArchive unpacks the archive at archivePath into dest, dropping strip
// leading path components, and returns the number of regular files written.
// Zip and gzip-compressed tar are detected by content, not by name.
func extractArchive(archivePath, dest string, strip int) (int, error) {
	format, err := detectFormat(archivePath)
	if err != nil {
		return 0, err
	}

	x := &extractor{
		dest:   dest,
		strip:  strip,
		budget: maxArchiveBytes,
	}

	switch format {
	case formatZip:
		err = x.zip(archivePath)
	case formatTarGz:
		err = x.tarGz(archivePath)
	default:
		return 0, fmt.Errorf("%w: unsupported archive format", ErrArchive)
	}

	if err != nil {
		return x.files, err
	}

	if x.files == 0 {
		return 0, fmt.Errorf("%w: no files left after stripping %d path component(s)", ErrArchive, strip)
	}

	return x.files, nil
}

// detectFormat sniffs the leading bytes of the file.
func detectFormat(archivePath string) (archiveFormat, error) {
	f, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return formatUnknown, fmt.Errorf("%w: open archive: %w", ErrFilesystem, err)
	}

	defer func() {
		_ = f.Close()
	}()

	header := make([]byte, len(zipMagic))

	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return formatUnknown, fmt.Errorf("%w: read archive header: %w", ErrFilesystem, err)
	}

	header = header[:n]

	switch {
	case bytes.HasPrefix(header, zipMagic), bytes.HasPrefix(header, zipEmptyMagic):
		return formatZip, nil
	case bytes.HasPrefix(header, gzipMagic):
		return formatTarGz, nil
	default:
		return formatUnknown, nil
	}
}

func (x *extractor) zip(archivePath string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: open zip: %w", ErrArchive, err)
	}

	defer func() {
		_ = r.Close()
	}()

	for _, f := range r.File {
		if err = x.zipEntry(f); err != nil {
			return err
		}
	}

	return nil
}

func (x *extractor) zipEntry(f *zip.File) error {
	mode := f.Mode()

	switch {
	case mode.IsDir():
		return x.dir(f.Name)
	case mode&os.ModeSymlink != 0:
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: open %s: %w", ErrArchive, f.Name, err)
		}

		link, err := io.ReadAll(io.LimitReader(rc, int64(os.Getpagesize())))
		_ = rc.Close()

		if err != nil {
			return fmt.Errorf("%w: read link %s: %w", ErrArchive, f.Name, err)
		}

		return x.symlink(f.Name, string(link))
	case mode.IsRegular():
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: open %s: %w", ErrArchive, f.Name, err)
		}

		defer func() {
			_ = rc.Close()
		}()

		return x.file(f.Name, rc, mode)
	default:
		return fmt.Errorf("%w: unsupported entry type %s: %s", ErrArchive, mode.Type(), f.Name)
	}
}

func (x *extractor) tarGz(archivePath string) error {
	f, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return fmt.Errorf("%w: open archive: %w", ErrFilesystem, err)
	}

	defer func() {
		_ = f.Close()
	}()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: open gzip: %w", ErrArchive, err)
	}

	defer func() {
		_ = gz.Close()
	}()

	tr := tar.NewReader(gz)

	for {
		hdr, nextErr := tr.Next()
		if errors.Is(nextErr, io.EOF) {
			return nil
		}

		if nextErr != nil {
			return fmt.Errorf("%w: read tar entry: %w", ErrArchive, nextErr)
		}

		if err = x.tarEntry(hdr, tr); err != nil {
			return err
		}
	}
}

func (x *extractor) tarEntry(hdr *tar.Header, r io.Reader) error {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return x.dir(hdr.Name)
	case tar.TypeReg, tar.TypeRegA: //nolint:staticcheck // TypeRegA still appears in old archives.
		return x.file(hdr.Name, r, hdr.FileInfo().Mode())
	case tar.TypeSymlink:
		return x.symlink(hdr.Name, hdr.Linkname)
	case tar.TypeXGlobalHeader, tar.TypeXHeader:
		return nil
	default:
		return fmt.Errorf("%w: unsupported tar entry type %q: %s", ErrArchive, hdr.Typeflag, hdr.Name)
	}
}

// dir creates a directory entry.
func (x *extractor) dir(name string) error {
	target, ok, err := x.resolve(name)
	if err != nil || !ok {
		return err
	}

	if err = os.MkdirAll(target, DefaultDirMode); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrFilesystem, target, err)
	}

	return nil
}

// file writes one regular file and charges its size against the budget.
func (x *extractor) file(name string, r io.Reader, mode os.FileMode) (err error) {
	target, ok, err := x.resolve(name)
	if err != nil || !ok {
		return err
	}

	x.files++
	if x.files > maxArchiveFiles {
		return fmt.Errorf("%w: more than %d files", ErrArchive, maxArchiveFiles)
	}

	if err = os.MkdirAll(filepath.Dir(target), DefaultDirMode); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrFilesystem, filepath.Dir(target), err)
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode&fileModeMask|minFileMode)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrFilesystem, target, err)
	}

	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: close %s: %w", ErrFilesystem, target, closeErr)
		}
	}()

	// Read one byte past the budget to detect an oversized archive.
	n, err := io.Copy(out, io.LimitReader(r, x.budget+1))
	if err != nil {
		return fmt.Errorf("%w: extract %s: %w", ErrArchive, name, err)
	}

	x.budget -= n
	if x.budget < 0 {
		return fmt.Errorf("%w: extracted size exceeds %d bytes", ErrArchive, int64(maxArchiveBytes))
	}

	return nil
}

// symlink creates a link whose target stays inside the extraction root.
func (x *extractor) symlink(name, linkname string) error {
	target, ok, err := x.resolve(name)
	if err != nil || !ok {
		return err
	}

	if filepath.IsAbs(linkname) || path.IsAbs(linkname) {
		return fmt.Errorf("%w: absolute link %s -> %s", ErrArchive, name, linkname)
	}

	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(linkname))
	if !within(x.dest, resolved) {
		return fmt.Errorf("%w: link escapes destination %s -> %s", ErrArchive, name, linkname)
	}

	if err = os.MkdirAll(filepath.Dir(target), DefaultDirMode); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrFilesystem, filepath.Dir(target), err)
	}

	if err = os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("%w: symlink %s: %w", ErrFilesystem, target, err)
	}

	return nil
}

// resolve maps an archive entry name to a path below dest. ok is false for
// entries that disappear after stripping, such as the top-level folder itself.
func (x *extractor) resolve(name string) (string, bool, error) {
	rel, ok := stripComponents(name, x.strip)
	if !ok {
		return "", false, nil
	}

	if !fs.ValidPath(rel) {
		return "", false, fmt.Errorf("%w: unsafe entry name %q", ErrArchive, name)
	}

	target := filepath.Join(x.dest, filepath.FromSlash(rel))
	if !within(x.dest, target) {
		return "", false, fmt.Errorf("%w: entry escapes destination %q", ErrArchive, name)
	}

	return target, true, nil
}

// stripComponents drops n leading components of a slash separated archive
// path. It returns false when nothing is left.
func stripComponents(name string, n int) (string, bool) {
	parts := make([]string, 0, strings.Count(name, "/")+1)

	for _, part := range strings.Split(strings.ReplaceAll(name, `\`, "/"), "/") {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}

	if len(parts) <= n {
		return "", false
	}

	return strings.Join(parts[n:], "/"), true
}

// within reports whether target is base or below it.
func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
