// Package resolver determines which tool versions are installed under a
// package root. Every entry of the root must be a version directory; a
// foreign entry means the tree is corrupted and resolution fails.
package resolver
