package detector

import "fmt"

// Stage names a step of the detection pipeline.
type Stage string

// Pipeline stages that can fail, in execution order. Confidence filtering
// and NMS cannot fail and have no stage of their own.
const (
	StageFetch      Stage = "fetch"
	StageLoad       Stage = "load"
	StagePreprocess Stage = "preprocess"
	StageInference  Stage = "inference"
	StageDecode     Stage = "decode"
	StageRescale    Stage = "rescale"
	StageAggregate  Stage = "aggregate"
	StageRender     Stage = "render"
	StagePersist    Stage = "persist"
)

// PipelineError reports the stage at which processing of an image failed.
type PipelineError struct {
	// Stage is the failing stage.
	Stage Stage
	// ImageID identifies the image, when known.
	ImageID string
	// Err is the cause: an *InputError, *ConfigurationError,
	// *inference.BackendError or a context error.
	Err error
}

func (e *PipelineError) Error() string {
	if e.ImageID == "" {
		return fmt.Sprintf("pipeline stage %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("pipeline stage %s (image %s): %v", e.Stage, e.ImageID, e.Err)
}

// Unwrap returns the cause.
func (e *PipelineError) Unwrap() error { return e.Err }

// Cause returns the cause for github.com/pkg/errors.
func (e *PipelineError) Cause() error { return e.Err }

// InputError reports a malformed image or model output. It is never retried.
type InputError struct {
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Err == nil {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input: %s: %v", e.Reason, e.Err)
}

// Unwrap returns the underlying failure.
func (e *InputError) Unwrap() error { return e.Err }

// Cause returns the underlying failure for github.com/pkg/errors.
func (e *InputError) Cause() error { return e.Err }

// ConfigurationError reports a missing or out-of-range setting. It is
// returned before any image is processed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}
