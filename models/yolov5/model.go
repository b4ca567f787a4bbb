// Package yolov5 - YOLOv5 model.
package yolov5

import (
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/dropsight/models/model"
	"github.com/nvr-ai/dropsight/models/model/preprocess"
	"github.com/nvr-ai/dropsight/models/postprocess"
)

// YOLOv5 is the instance of the YOLOv5 model.
type YOLOv5 struct {
	config       model.Config
	preprocessor *preprocess.Preprocessor
}

// NewModel creates a new model.
//
// Arguments:
//   - config: The model configuration.
//   - logger: Debug logger, nil for none.
//
// Returns:
//   - The model.
//   - An error if the configuration is invalid.
func NewModel(config model.Config, logger *zap.Logger) (*YOLOv5, error) {
	if config.ScoreMode == "" {
		config.ScoreMode = model.ScoreObjectness
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid yolov5 config")
	}

	p, err := preprocess.NewPreprocessor(config.Preprocess, logger)
	if err != nil {
		return nil, err
	}

	return &YOLOv5{config: config, preprocessor: p}, nil
}

// Config returns the configuration of the model.
func (m *YOLOv5) Config() model.Config {
	return m.config
}

// PreProcess stretches and normalizes an image into the model input tensor.
func (m *YOLOv5) PreProcess(img image.Image) (*preprocess.Result, error) {
	return m.preprocessor.Preprocess(img)
}

// PostProcess decodes the output of the YOLOv5 model.
//
// Arguments:
//   - output: The raw output tensor of the YOLOv5 model.
//   - classes: The class set the model was trained on.
//
// Returns:
//   - A slice of decoded boxes, one per anchor.
//   - An error if the tensor does not match the class count.
func (m *YOLOv5) PostProcess(output *tensor.Dense, classes *model.OutputClassSet) ([]postprocess.ScoredBox, error) {
	return Decode(output, classes, m.config.ScoreMode)
}
