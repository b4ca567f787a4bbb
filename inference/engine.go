package inference

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// Engine runs inference through a backend, loading the model lazily on first
// use. The loaded model is shared by every caller. A failed load is not
// cached, so a later call tries again.
type Engine struct {
	backend  Backend
	location string
	logger   *zap.Logger

	mu     sync.Mutex
	handle ModelHandle
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger used for load events.
func WithEngineLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine for the model at location. Nothing is loaded
// until the first call to Load or Infer.
//
// Arguments:
//   - backend: The backend that loads and runs the model.
//   - location: The model location passed to the backend.
//   - opts: Optional settings.
//
// Returns:
//   - *Engine: The engine.
func NewEngine(backend Backend, location string, opts ...EngineOption) *Engine {
	e := &Engine{
		backend:  backend,
		location: location,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the model location.
func (e *Engine) Location() string {
	return e.location
}

// Loaded reports whether the model has been loaded.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle != nil
}

// Load returns the shared model handle, loading it on first use.
//
// Arguments:
//   - ctx: Cancels waiting for the load.
//
// Returns:
//   - ModelHandle: The loaded model.
//   - error: ctx.Err() or a *BackendError.
func (e *Engine) Load(ctx context.Context) (ModelHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle != nil {
		return e.handle, nil
	}

	start := time.Now()
	handle, err := e.backend.LoadModel(ctx, e.location)
	if err != nil {
		e.logger.Warn("model load failed", zap.String("location", e.location), zap.Error(err))
		return nil, &BackendError{Op: "load", Location: e.location, Err: err}
	}

	e.logger.Info("model loaded",
		zap.String("location", e.location),
		zap.Duration("elapsed", time.Since(start)),
	)
	e.handle = handle

	return handle, nil
}

// Infer runs the model on input.
//
// Arguments:
//   - ctx: Cancellation is checked before and after the backend call.
//   - input: The model input tensor.
//
// Returns:
//   - *tensor.Dense: The raw model output.
//   - error: ctx.Err() or a *BackendError.
func (e *Engine) Infer(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	handle, err := e.Load(ctx)
	if err != nil {
		return nil, err
	}

	output, err := handle.Infer(ctx, input)
	if err != nil {
		return nil, &BackendError{Op: "infer", Location: e.location, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return output, nil
}

// Close releases the loaded model. The engine may be used again afterwards,
// in which case the model is reloaded.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == nil {
		return nil
	}
	err := e.handle.Close()
	e.handle = nil
	return err
}
