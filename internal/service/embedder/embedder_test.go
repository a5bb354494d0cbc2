package embedder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeHandle struct{}

func (fakeHandle) Describe() string { return "fake" }

type fakeHost struct {
	startErr  error
	invokeErr error
	starts    int
	invokes   int
	cfg       *Config
	ep        EntryPoint
	args      NativeArgs
}

func (h *fakeHost) Start(_ context.Context, cfg *Config) (Handle, error) {
	h.starts++
	h.cfg = cfg

	if h.startErr != nil {
		return nil, h.startErr
	}

	return fakeHandle{}, nil
}

func (h *fakeHost) InvokeEntryPoint(_ context.Context, _ Handle, ep EntryPoint, args NativeArgs) error {
	h.invokes++
	h.ep = ep
	h.args = args

	return h.invokeErr
}

var bootstrap = EntryPoint{
	Class:     "com/taobao/arthas/boot/Bootstrap",
	Method:    "main",
	Signature: MainSignature,
}

// TestEmbedder_Invoke starts the runtime once and forwards arguments in order.
func TestEmbedder_Invoke(t *testing.T) {
	t.Parallel()

	host := &fakeHost{}
	cfg := NewConfig(nil, "/opt/jdk", nil)
	e := New(host, cfg)

	require.Equal(t, StateUninitialized, e.State())
	require.NoError(t, e.Invoke(context.Background(), bootstrap, []string{"--help", "x"}))

	require.Equal(t, StateInvoked, e.State())
	require.Equal(t, 1, host.starts)
	require.Equal(t, 1, host.invokes)
	require.Same(t, cfg, host.cfg)
	require.Equal(t, bootstrap, host.ep)
	require.Equal(t, []string{"--help", "x"}, host.args.Strings())
}

// TestEmbedder_SecondInvokeFails checks that the entry point runs at most once.
func TestEmbedder_SecondInvokeFails(t *testing.T) {
	t.Parallel()

	host := &fakeHost{}
	e := New(host, NewConfig(nil, "", nil))

	require.NoError(t, e.Invoke(context.Background(), bootstrap, nil))
	require.ErrorIs(t, e.Invoke(context.Background(), bootstrap, nil), ErrAlreadyInvoked)
	require.Equal(t, 1, host.invokes)
	require.Equal(t, 1, host.starts)
}

// TestEmbedder_InvokeFailureStillConsumes checks that a failed call cannot be retried.
func TestEmbedder_InvokeFailureStillConsumes(t *testing.T) {
	t.Parallel()

	host := &fakeHost{invokeErr: &ExitError{Code: 2}}
	e := New(host, NewConfig(nil, "", nil))

	err := e.Invoke(context.Background(), bootstrap, nil)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
	require.Equal(t, StateInvoked, e.State())
	require.ErrorIs(t, e.Invoke(context.Background(), bootstrap, nil), ErrAlreadyInvoked)
}

// TestEmbedder_StartFailure reports a runtime error and stays uninitialized.
func TestEmbedder_StartFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("no jvm")
	host := &fakeHost{startErr: boom}
	e := New(host, NewConfig(nil, "", nil))

	err := e.Invoke(context.Background(), bootstrap, nil)
	require.ErrorIs(t, err, ErrRuntime)
	require.ErrorIs(t, err, boom)
	require.Equal(t, StateUninitialized, e.State())
	require.Zero(t, host.invokes)
}

// TestEmbedder_ConversionFailure leaves the runtime attached and the entry point uncalled.
func TestEmbedder_ConversionFailure(t *testing.T) {
	t.Parallel()

	host := &fakeHost{}
	e := New(host, NewConfig(nil, "", nil))

	err := e.Invoke(context.Background(), bootstrap, []string{"a\x00"})
	require.ErrorIs(t, err, ErrArgConversion)
	require.Equal(t, StateAttached, e.State())
	require.Zero(t, host.invokes)
}

// TestEmbedder_NilConfig rejects invocation without a configuration.
func TestEmbedder_NilConfig(t *testing.T) {
	t.Parallel()

	host := &fakeHost{}
	e := New(host, nil)

	require.Error(t, e.Invoke(context.Background(), bootstrap, nil))
	require.Zero(t, host.starts)
}

// TestState_String names every state.
func TestState_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "uninitialized", StateUninitialized.String())
	require.Equal(t, "attached", StateAttached.String())
	require.Equal(t, "invoked", StateInvoked.String())
	require.Equal(t, "state(7)", State(7).String())
}
