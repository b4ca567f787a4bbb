package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorgonia.org/tensor"
)

type fakeHandle struct {
	output *tensor.Dense
	err    error
	calls  atomic.Int32
	closed atomic.Bool
}

func (h *fakeHandle) Infer(_ context.Context, _ *tensor.Dense) (*tensor.Dense, error) {
	h.calls.Add(1)
	if h.err != nil {
		return nil, h.err
	}
	return h.output, nil
}

func (h *fakeHandle) Close() error {
	h.closed.Store(true)
	return nil
}

type fakeBackend struct {
	mu     sync.Mutex
	loads  int
	fail   int
	handle *fakeHandle
}

func (b *fakeBackend) LoadModel(_ context.Context, _ string) (ModelHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loads++
	if b.fail > 0 {
		b.fail--
		return nil, errors.New("model file unreadable")
	}
	return b.handle, nil
}

func input() *tensor.Dense {
	return tensor.New(tensor.WithShape(1, 3, 2, 2), tensor.WithBacking(make([]float32, 12)))
}

func TestEngine_LoadsOnce(t *testing.T) {
	out := tensor.New(tensor.WithShape(1, 1, 9), tensor.WithBacking(make([]float32, 9)))
	backend := &fakeBackend{handle: &fakeHandle{output: out}}
	engine := NewEngine(backend, "model.onnx")
	assert.False(t, engine.Loaded())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := engine.Infer(context.Background(), input())
			assert.NoError(t, err)
			assert.Same(t, out, got)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, backend.loads)
	assert.Equal(t, int32(16), backend.handle.calls.Load())
	assert.True(t, engine.Loaded())
	assert.Equal(t, "model.onnx", engine.Location())
}

func TestEngine_FailedLoadIsRetried(t *testing.T) {
	backend := &fakeBackend{fail: 1, handle: &fakeHandle{}}
	engine := NewEngine(backend, "model.onnx")

	_, err := engine.Load(context.Background())
	require.Error(t, err)

	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "load", backendErr.Op)
	assert.Equal(t, "model.onnx", backendErr.Location)
	assert.False(t, engine.Loaded())

	handle, err := engine.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, backend.handle, handle)
	assert.Equal(t, 2, backend.loads)
}

func TestEngine_InferErrorIsBackendError(t *testing.T) {
	cause := errors.New("device lost")
	backend := &fakeBackend{handle: &fakeHandle{err: cause}}
	engine := NewEngine(backend, "model.onnx")

	_, err := engine.Infer(context.Background(), input())
	require.Error(t, err)

	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "infer", backendErr.Op)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "device lost")
}

func TestEngine_Cancelled(t *testing.T) {
	backend := &fakeBackend{handle: &fakeHandle{}}
	engine := NewEngine(backend, "model.onnx")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Infer(ctx, input())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, backend.loads, "a cancelled call must not load the model")
}

func TestEngine_Close(t *testing.T) {
	backend := &fakeBackend{handle: &fakeHandle{}}
	engine := NewEngine(backend, "model.onnx")

	require.NoError(t, engine.Close(), "closing an unloaded engine is a no-op")

	_, err := engine.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, engine.Close())
	assert.True(t, backend.handle.closed.Load())
	assert.False(t, engine.Loaded())
}

func TestEngine_LogsLoad(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	backend := &fakeBackend{handle: &fakeHandle{}}
	engine := NewEngine(backend, "model.onnx", WithEngineLogger(zap.New(core)))

	_, err := engine.Load(context.Background())
	require.NoError(t, err)

	entries := logs.FilterMessage("model loaded").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "model.onnx", entries[0].ContextMap()["location"])
}
