package embedder

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
)

const (
	// EnvJavaToolOptions is never passed to the runtime; it would inject agents
	// and options the tool did not ask for.
	EnvJavaToolOptions = "JAVA_TOOL_OPTIONS"
	// EnvJavaHome locates the runtime when the configuration does not.
	EnvJavaHome = "JAVA_HOME"
	// MainSignature describes static void main(String[]).
	MainSignature = "([Ljava/lang/String;)V"
)

var (
	// ErrRuntime classifies failures to start the runtime or run the entry point.
	ErrRuntime = errors.New("runtime error")
	// ErrUnsupportedEntryPoint indicates an entry point the host cannot call.
	ErrUnsupportedEntryPoint = errors.New("unsupported entry point")
	// errConfigRequired is returned when Start is called without a configuration.
	errConfigRequired = errors.New("runtime configuration must be provided")
)

// Host starts an execution runtime and invokes static entry points in it.
type Host interface {
	// Start brings the runtime up, or attaches to it, with cfg.
	Start(ctx context.Context, cfg *Config) (Handle, error)
	// InvokeEntryPoint calls the static entry point with args as its only argument.
	InvokeEntryPoint(ctx context.Context, h Handle, ep EntryPoint, args NativeArgs) error
}

// Handle identifies a started runtime.
type Handle interface {
	// Describe returns a short human readable identification for logs.
	Describe() string
}

// EntryPoint names a static method inside the runtime.
type EntryPoint struct {
	// Class is the slash separated class name, e.g. com/taobao/arthas/boot/Bootstrap.
	Class string
	// Method is the static method name.
	Method string
	// Signature is the runtime type descriptor of the method.
	Signature string
}

// String renders the entry point as Class.Method Signature.
func (ep EntryPoint) String() string {
	return ep.Class + "." + ep.Method + ep.Signature
}

// Config is the process-scoped runtime configuration.
type Config struct {
	// JavaHome is the runtime installation; empty means PATH lookup.
	JavaHome string
	// Options are runtime options placed before the classpath.
	Options []string
	// Classpath entries, joined with the OS list separator.
	Classpath []string
	// Env is the complete environment of the runtime.
	Env []string
	// Dropped lists environment variable names removed from Env.
	Dropped []string
}

// NewConfig snapshots environ without JAVA_TOOL_OPTIONS. An empty javaHome
// falls back to JAVA_HOME from environ. The caller's environment is not modified.
func NewConfig(environ []string, javaHome string, options []string) *Config {
	cfg := &Config{
		JavaHome: javaHome,
		Options:  slices.Clone(options),
		Env:      make([]string, 0, len(environ)),
	}

	for _, kv := range environ {
		key, value, _ := strings.Cut(kv, "=")

		if envKeyEqual(key, EnvJavaToolOptions) {
			cfg.Dropped = append(cfg.Dropped, key)
			continue
		}

		if cfg.JavaHome == "" && envKeyEqual(key, EnvJavaHome) {
			cfg.JavaHome = value
		}

		cfg.Env = append(cfg.Env, kv)
	}

	return cfg
}

// WithClasspath returns a copy of the configuration with the given classpath.
func (c *Config) WithClasspath(entries ...string) *Config {
	clone := *c
	clone.Options = slices.Clone(c.Options)
	clone.Env = slices.Clone(c.Env)
	clone.Dropped = slices.Clone(c.Dropped)
	clone.Classpath = slices.Clone(entries)

	return &clone
}

// Getenv returns the value of key in the runtime environment.
func (c *Config) Getenv(key string) (string, bool) {
	for _, kv := range c.Env {
		k, v, _ := strings.Cut(kv, "=")
		if envKeyEqual(k, key) {
			return v, true
		}
	}

	return "", false
}

// envKeyEqual compares environment variable names the way the OS does.
func envKeyEqual(a, b string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}

	return a == b
}

// ExitError reports that the tool ran and exited with a non-zero status.
type ExitError struct {
	// Code is the tool's exit status.
	Code int
	// Err is the underlying error from the host.
	Err error
}

// Error implements error.
func (e *ExitError) Error() string {
	return fmt.Sprintf("tool exited with status %d", e.Code)
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}
