// Package version exposes build metadata for the launcher.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. UserAgent renders them for outgoing HTTP requests.
package version
