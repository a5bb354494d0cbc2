package embedder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/oshokin/arthas-launcher/internal/logger"
)

var (
	// ErrJavaNotFound indicates that no java executable could be located.
	ErrJavaNotFound = errors.New("java executable not found")
	// ErrClasspath indicates a missing classpath entry.
	ErrClasspath = errors.New("classpath entry not found")
	// errForeignHandle is returned for a handle created by another host.
	errForeignHandle = errors.New("handle was not created by this host")
)

// JavaHost runs the entry point in a JVM child process that shares the
// launcher's terminal.
type JavaHost struct {
	// stdin is connected to the runtime's standard input.
	stdin io.Reader
	// stdout is connected to the runtime's standard output.
	stdout io.Writer
	// stderr is connected to the runtime's standard error.
	stderr io.Writer
	// lookPath finds executables on PATH.
	lookPath func(file string) (string, error)
	// run executes a prepared command and waits for it.
	run func(cmd *exec.Cmd) error
}

// JavaHostOption configures a JavaHost.
type JavaHostOption func(*JavaHost)

// WithStdio overrides the standard streams of the runtime.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) JavaHostOption {
	return func(h *JavaHost) {
		h.stdin = stdin
		h.stdout = stdout
		h.stderr = stderr
	}
}

// WithLookPath overrides the PATH lookup.
func WithLookPath(lookPath func(file string) (string, error)) JavaHostOption {
	return func(h *JavaHost) {
		h.lookPath = lookPath
	}
}

// WithRunner overrides how the prepared command is executed.
func WithRunner(run func(cmd *exec.Cmd) error) JavaHostOption {
	return func(h *JavaHost) {
		h.run = run
	}
}

// NewJavaHost creates a JavaHost wired to the process's standard streams.
func NewJavaHost(opts ...JavaHostOption) *JavaHost {
	h := &JavaHost{
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		lookPath: exec.LookPath,
		run:      (*exec.Cmd).Run,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// javaHandle is the Handle of a located JVM.
type javaHandle struct {
	// java is the executable path.
	java string
	// cfg is the configuration the runtime was started with.
	cfg *Config
}

// Describe returns the java executable path.
func (h *javaHandle) Describe() string {
	return h.java
}

// Start locates the java executable and checks the classpath.
func (h *JavaHost) Start(_ context.Context, cfg *Config) (Handle, error) {
	if cfg == nil {
		return nil, errConfigRequired
	}

	java, err := h.locateJava(cfg)
	if err != nil {
		return nil, err
	}

	for _, entry := range cfg.Classpath {
		if _, err = os.Stat(entry); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrClasspath, entry, err)
		}
	}

	return &javaHandle{java: java, cfg: cfg}, nil
}

// InvokeEntryPoint runs `java <options> -cp <classpath> <class> <args...>` and
// waits for it. Only static void main(String[]) can be invoked this way. The
// child is not tied to ctx: once started, the tool owns terminal signals.
func (h *JavaHost) InvokeEntryPoint(ctx context.Context, handle Handle, ep EntryPoint, args NativeArgs) error {
	jh, ok := handle.(*javaHandle)
	if !ok || jh == nil {
		return errForeignHandle
	}

	if ep.Method != "main" || ep.Signature != MainSignature {
		return fmt.Errorf("%w: %s", ErrUnsupportedEntryPoint, ep)
	}

	cmd := exec.Command(jh.java, javaArgs(jh.cfg, ep, args)...) //nolint:gosec,noctx // Arguments are forwarded on purpose.
	cmd.Env = jh.cfg.Env
	cmd.Stdin = h.stdin
	cmd.Stdout = h.stdout
	cmd.Stderr = h.stderr

	logger.DebugKV(ctx, "Starting runtime", "command", cmd.Path, "class", ep.Class)

	err := h.run(cmd)
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode(), Err: err}
	}

	return fmt.Errorf("%w: run %s: %w", ErrRuntime, jh.java, err)
}

// javaArgs builds the command line after the executable.
func javaArgs(cfg *Config, ep EntryPoint, args NativeArgs) []string {
	argv := make([]string, 0, len(cfg.Options)+3+args.Len())
	argv = append(argv, cfg.Options...)

	if len(cfg.Classpath) > 0 {
		argv = append(argv, "-cp", strings.Join(cfg.Classpath, string(os.PathListSeparator)))
	}

	argv = append(argv, strings.ReplaceAll(ep.Class, "/", "."))

	return append(argv, args.Strings()...)
}

// locateJava prefers <JavaHome>/bin/java and falls back to PATH.
func (h *JavaHost) locateJava(cfg *Config) (string, error) {
	name := "java"
	if runtime.GOOS == "windows" {
		name = "java.exe"
	}

	if cfg.JavaHome != "" {
		candidate := filepath.Join(cfg.JavaHome, "bin", name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}

		return "", fmt.Errorf("%w: %s", ErrJavaNotFound, candidate)
	}

	java, err := h.lookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrJavaNotFound, err)
	}

	return java, nil
}
