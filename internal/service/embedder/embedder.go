package embedder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oshokin/arthas-launcher/internal/logger"
)

// ErrAlreadyInvoked indicates a second entry point invocation.
var ErrAlreadyInvoked = errors.New("entry point already invoked")

// State is the lifecycle position of an Embedder.
type State int

const (
	// StateUninitialized means the runtime has not been started.
	StateUninitialized State = iota
	// StateAttached means the runtime is started and ready for the invocation.
	StateAttached
	// StateInvoked means the entry point was called; nothing else may happen.
	StateInvoked
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAttached:
		return "attached"
	case StateInvoked:
		return "invoked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Embedder starts the runtime on first use and invokes one entry point once.
type Embedder struct {
	// host is the concrete runtime.
	host Host
	// cfg is the process-scoped runtime configuration.
	cfg *Config
	// handle is set once the runtime is attached.
	handle Handle
	// state is the lifecycle position.
	state State
	// mu guards handle and state.
	mu sync.Mutex
}

// New creates an Embedder over host with the given configuration.
func New(host Host, cfg *Config) *Embedder {
	return &Embedder{
		host: host,
		cfg:  cfg,
	}
}

// State returns the lifecycle position.
func (e *Embedder) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Invoke starts the runtime if needed, converts args and calls ep once.
// The state moves to Invoked before the call so the entry point can never run twice.
func (e *Embedder) Invoke(ctx context.Context, ep EntryPoint, args []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateInvoked {
		return ErrAlreadyInvoked
	}

	if e.state == StateUninitialized {
		if e.cfg == nil {
			return errConfigRequired
		}

		handle, err := e.host.Start(ctx, e.cfg)
		if err != nil {
			return fmt.Errorf("%w: start: %w", ErrRuntime, err)
		}

		e.handle = handle
		e.state = StateAttached

		logger.DebugKV(ctx, "Runtime attached", "runtime", handle.Describe())
	}

	native, err := Marshal(args)
	if err != nil {
		return err
	}

	e.state = StateInvoked

	logger.DebugKV(ctx, "Invoking entry point", "entry_point", ep.String(), "args", native.Len())

	if err = e.host.InvokeEntryPoint(ctx, e.handle, ep, native); err != nil {
		return fmt.Errorf("invoke %s: %w", ep, err)
	}

	return nil
}
