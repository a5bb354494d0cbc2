// Package launcher sequences one launch: resolve the installed version, ask
// the remote for the latest one, install it when missing, then hand the
// process arguments to the tool's entry point.
package launcher
