// Package embedder starts the tool's execution runtime and invokes its entry
// point with the launcher's arguments.
//
// Host is the capability interface over a concrete runtime; JavaHost runs a
// JVM. Config is the process-scoped runtime configuration, built once per
// launch, whose environment never carries JAVA_TOOL_OPTIONS. Embedder wraps a
// Host with a one-shot state machine: Uninitialized, Attached, Invoked.
package embedder
