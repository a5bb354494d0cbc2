// Package release contains the Version value type shared by the resolver,
// the remote oracle and the installer.
//
// Versions are parsed strictly so the canonical text can be used as a
// directory name under the package root.
package release
