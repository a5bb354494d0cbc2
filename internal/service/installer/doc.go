// Package installer makes sure one version of the tool is present under the
// package root.
//
// An existing install target is trusted without any network activity. A
// missing one is downloaded into a temporary staging directory, extracted
// into a hidden sibling of the target and published with a single rename, so
// the target directory only ever appears complete. A pid marker next to the
// package root serialises concurrent installs.
package installer
