// Package remote talks to the publishing server over HTTP.
//
// Oracle asks for the latest published version; Fetcher downloads an archive
// from a templated URL with a bounded redirect policy. Every failure here is
// classified as ErrNetwork so callers can tell it apart from local I/O errors.
package remote
