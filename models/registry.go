package models

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nvr-ai/dropsight/models/model"
	"github.com/nvr-ai/dropsight/models/yolov5"
)

// NewModel creates a new detection model instance based on the configured
// model name.
//
// Arguments:
//   - config: The model configuration.
//   - logger: Debug logger, nil for none.
//
// Returns:
//   - model.Model: A configured model implementing the Model interface.
//   - error: An error if the model name is unsupported or the configuration is invalid.
//
// Example:
//
// ```go
//
//	m, err := NewModel(model.DefaultConfig(), logger)
//	if err != nil {
//	    log.Fatalf("Failed to create detection model: %v", err)
//	}
//
// ```
func NewModel(config model.Config, logger *zap.Logger) (model.Model, error) {
	switch config.Name {
	case model.ModelNameYOLOv5:
		m, err := yolov5.NewModel(config, logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported model name: %s", config.Name)
	}
}
