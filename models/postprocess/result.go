// Package postprocess - Postprocessing utilities for models.
package postprocess

import "github.com/nvr-ai/dropsight/images"

// ScoredBox is one decoded anchor in model-input space, centre format.
type ScoredBox struct {
	// Centre of the box.
	X, Y float32
	// Extent of the box.
	W, H float32
	// The confidence score in [0, 1].
	Confidence float32
	// The predicted class index.
	ClassID int
	// The predicted class label.
	ClassName string
}

// Detection is a post-processed box in original-image pixel space, top-left
// format.
type Detection struct {
	XPos       float32 `json:"xPos" yaml:"xPos"`
	YPos       float32 `json:"yPos" yaml:"yPos"`
	Width      float32 `json:"width" yaml:"width"`
	Height     float32 `json:"height" yaml:"height"`
	Confidence float32 `json:"confidence" yaml:"confidence"`
	ClassID    int     `json:"classId" yaml:"classId"`
	ClassName  string  `json:"className" yaml:"className"`
}

// Rect returns the detection as corner coordinates.
func (d Detection) Rect() images.Rect {
	return images.Rect{
		X1: d.XPos,
		Y1: d.YPos,
		X2: d.XPos + d.Width,
		Y2: d.YPos + d.Height,
	}
}
