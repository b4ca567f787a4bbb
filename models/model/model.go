// Package model - Definitions shared by every detection model.
package model

import (
	"image"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/dropsight/models/model/preprocess"
	"github.com/nvr-ai/dropsight/models/postprocess"
)

// Family is the family of models.
type Family string

const (
	// ModelFamilyYOLO is the YOLO model family.
	ModelFamilyYOLO Family = "yolo"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameYOLOv5 is the name of the YOLOv5 model.
	ModelNameYOLOv5 Name = "yolov5"
)

// ScoreMode selects how a detection confidence is derived from the raw
// anchor scores.
type ScoreMode string

const (
	// ScoreObjectness uses the objectness score alone.
	ScoreObjectness ScoreMode = "objectness"
	// ScoreObjectnessTimesClass multiplies objectness by the top class score.
	ScoreObjectnessTimesClass ScoreMode = "objectness_x_class"
)

// Config describes a detection model and how its tensors are laid out.
type Config struct {
	// Name selects the registered model implementation.
	Name Name `json:"name" yaml:"name"`
	// Path is the model location handed to the inference backend.
	Path string `json:"path" yaml:"path"`
	// InputSize is the edge length of the square model input.
	InputSize int `json:"inputSize" yaml:"inputSize"`
	// Space is the unit of the box geometry the model emits.
	Space postprocess.CoordinateSpace `json:"space" yaml:"space"`
	// ScoreMode selects the confidence definition.
	ScoreMode ScoreMode `json:"scoreMode" yaml:"scoreMode"`
	// Preprocess is the input preparation for the model.
	Preprocess preprocess.ModelConfig `json:"preprocess" yaml:"preprocess"`
}

// DefaultConfig returns a YOLOv5 model at 640x640 emitting normalized
// geometry, scored by objectness.
func DefaultConfig() Config {
	return Config{
		Name:       ModelNameYOLOv5,
		Path:       "models/droppings_yolov5.onnx",
		InputSize:  640,
		Space:      postprocess.SpaceNormalized,
		ScoreMode:  ScoreObjectness,
		Preprocess: preprocess.GetYOLOv5Config(640),
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("model name is required")
	}
	if c.InputSize <= 0 {
		return errors.Errorf("model input size must be positive, got %d", c.InputSize)
	}
	if c.Preprocess.InputSize != c.InputSize {
		return errors.Errorf("preprocess input size %d does not match model input size %d",
			c.Preprocess.InputSize, c.InputSize)
	}
	switch c.Space {
	case postprocess.SpaceNormalized, postprocess.SpacePixels:
	default:
		return errors.Errorf("unknown coordinate space %q", c.Space)
	}
	switch c.ScoreMode {
	case ScoreObjectness, ScoreObjectnessTimesClass:
	default:
		return errors.Errorf("unknown score mode %q", c.ScoreMode)
	}

	return c.Preprocess.Validate()
}

// Model turns images into input tensors and raw output tensors into scored
// boxes. Implementations hold no per-call state.
type Model interface {
	Config() Config
	PreProcess(img image.Image) (*preprocess.Result, error)
	PostProcess(output *tensor.Dense, classes *OutputClassSet) ([]postprocess.ScoredBox, error)
}
