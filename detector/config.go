// Package detector - runs images through the droppings detection pipeline.
package detector

import (
	"fmt"

	"github.com/nvr-ai/dropsight/models/model"
)

// Config holds the pipeline settings. It is fixed once a Detector is built.
type Config struct {
	// ClassStyle names a registered class set. It supplies Classes when
	// Classes is empty.
	ClassStyle model.ClassStyle `json:"classStyle" yaml:"classStyle"`
	// Classes is the ordered list of class names the model predicts.
	Classes []string `json:"classes" yaml:"classes"`
	// ConfidenceThreshold drops boxes whose confidence is not above it.
	ConfidenceThreshold float32 `json:"confidenceThreshold" yaml:"confidenceThreshold"`
	// OverlapThreshold is the IoU at which NMS suppresses a box.
	OverlapThreshold float32 `json:"overlapThreshold" yaml:"overlapThreshold"`
	// MaxDetections bounds the NMS survivors, 0 for unbounded.
	MaxDetections int `json:"maxDetections" yaml:"maxDetections"`
	// ClassAwareNMS restricts suppression to boxes of the same class.
	ClassAwareNMS bool `json:"classAwareNMS" yaml:"classAwareNMS"`
	// ClampToImage clips boxes to the image bounds.
	ClampToImage bool `json:"clampToImage" yaml:"clampToImage"`
	// Model describes the detection model.
	Model model.Config `json:"model" yaml:"model"`
}

// DefaultConfig returns the droppings classes with 0.5 confidence and
// overlap thresholds on a 640x640 YOLOv5 model.
func DefaultConfig() Config {
	return Config{
		ClassStyle:          model.ClassStyleDroppings,
		Classes:             model.DroppingsClasses.Names(),
		ConfidenceThreshold: 0.5,
		OverlapThreshold:    0.5,
		ClampToImage:        true,
		Model:               model.DefaultConfig(),
	}
}

// ClassSet resolves the class set: the explicit Classes when present,
// otherwise the set registered under ClassStyle.
func (c Config) ClassSet() (*model.OutputClassSet, error) {
	if len(c.Classes) == 0 {
		if c.ClassStyle == "" {
			return nil, &ConfigurationError{Field: "classes", Reason: "at least one class is required"}
		}
		set, err := model.LookupSet(c.ClassStyle)
		if err != nil {
			return nil, &ConfigurationError{Field: "classStyle", Reason: err.Error()}
		}
		return set, nil
	}

	style := c.ClassStyle
	if style == "" {
		style = model.ClassStyleCustom
	}
	set, err := model.NewOutputClassSet(style, c.Classes...)
	if err != nil {
		return nil, &ConfigurationError{Field: "classes", Reason: err.Error()}
	}
	return set, nil
}

// Validate returns a *ConfigurationError for the first invalid setting.
func (c Config) Validate() error {
	if _, err := c.ClassSet(); err != nil {
		return err
	}
	if !(c.ConfidenceThreshold > 0 && c.ConfidenceThreshold < 1) {
		return &ConfigurationError{
			Field:  "confidenceThreshold",
			Reason: fmt.Sprintf("must be in (0, 1), got %v", c.ConfidenceThreshold),
		}
	}
	if !(c.OverlapThreshold > 0 && c.OverlapThreshold < 1) {
		return &ConfigurationError{
			Field:  "overlapThreshold",
			Reason: fmt.Sprintf("must be in (0, 1), got %v", c.OverlapThreshold),
		}
	}
	if c.MaxDetections < 0 {
		return &ConfigurationError{
			Field:  "maxDetections",
			Reason: fmt.Sprintf("must not be negative, got %d", c.MaxDetections),
		}
	}
	if c.Model.InputSize <= 0 {
		return &ConfigurationError{
			Field:  "model.inputSize",
			Reason: fmt.Sprintf("must be positive, got %d", c.Model.InputSize),
		}
	}
	if err := c.Model.Validate(); err != nil {
		return &ConfigurationError{Field: "model", Reason: err.Error()}
	}
	return nil
}
