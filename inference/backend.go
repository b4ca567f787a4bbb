// Package inference - Model loading and execution behind a narrow backend interface.
package inference

import (
	"context"
	"fmt"

	"gorgonia.org/tensor"
)

// Backend loads models from a location. Implementations decide what a
// location means (a file path for ONNX Runtime).
type Backend interface {
	LoadModel(ctx context.Context, location string) (ModelHandle, error)
}

// ModelHandle is a loaded model. Infer must be safe for concurrent use.
type ModelHandle interface {
	Infer(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error)
	Close() error
}

// BackendError is returned when the inference backend is unavailable or
// fails while running a model. It is never retried by this package.
type BackendError struct {
	// Op is the backend operation that failed ("load" or "infer").
	Op string
	// Location is the model location.
	Location string
	// Err is the underlying failure.
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("inference backend %s %q: %v", e.Op, e.Location, e.Err)
}

// Unwrap returns the underlying failure.
func (e *BackendError) Unwrap() error { return e.Err }

// Cause returns the underlying failure for github.com/pkg/errors.
func (e *BackendError) Cause() error { return e.Err }
