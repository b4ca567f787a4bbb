// Package yolov5 - decodes YOLOv5 model outputs.
package yolov5

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/dropsight/models/model"
	"github.com/nvr-ai/dropsight/models/postprocess"
)

// numGeometry is the count of leading values per anchor before the class
// scores: x, y, w, h and objectness.
const numGeometry = 5

// Decode converts a raw YOLOv5 output tensor into one ScoredBox per anchor.
//
// The tensor must be [N, 5+K] or [1, N, 5+K] where K = classes.Len(). Each row
// holds the box centre and size, the objectness score and K class scores. The
// class is the argmax of the class scores, the first maximum winning ties.
//
// Arguments:
//   - raw: The model output tensor (float32).
//   - classes: The class set the model was trained on.
//   - mode: How the confidence is derived from objectness and class score.
//
// Returns:
//   - []postprocess.ScoredBox: One box per anchor, in anchor order.
//   - error: *postprocess.InvalidTensorShapeError for a mismatched layout.
func Decode(raw *tensor.Dense, classes *model.OutputClassSet, mode model.ScoreMode) ([]postprocess.ScoredBox, error) {
	if classes == nil || classes.Len() == 0 {
		return nil, errors.New("decode requires at least one class")
	}
	if raw == nil {
		return nil, errors.New("decode requires an output tensor")
	}

	numCols := numGeometry + classes.Len()
	shape := raw.Shape().Clone()

	var numRows int
	switch {
	case len(shape) == 2 && shape[1] == numCols:
		numRows = shape[0]
	case len(shape) == 3 && shape[0] == 1 && shape[2] == numCols:
		numRows = shape[1]
	default:
		return nil, &postprocess.InvalidTensorShapeError{Got: []int(shape), Want: numCols}
	}

	if raw.Dtype() != tensor.Float32 {
		return nil, errors.Errorf("decode requires a float32 tensor, got %v", raw.Dtype())
	}
	if raw.IsView() {
		raw = raw.Materialize().(*tensor.Dense)
	}
	output := raw.Data().([]float32)
	if len(output) != numRows*numCols {
		return nil, &postprocess.InvalidTensorShapeError{Got: []int(shape), Want: numCols}
	}

	boxes := make([]postprocess.ScoredBox, 0, numRows)
	for i := 0; i < numRows; i++ {
		row := output[i*numCols : (i+1)*numCols]

		classID := 0
		maxScore := row[numGeometry]
		for j := numGeometry + 1; j < numCols; j++ {
			if row[j] > maxScore {
				maxScore = row[j]
				classID = j - numGeometry
			}
		}

		confidence := clampScore(row[4])
		if mode == model.ScoreObjectnessTimesClass {
			confidence *= clampScore(maxScore)
		}
		if !finite(row[0]) || !finite(row[1]) || !finite(row[2]) || !finite(row[3]) {
			confidence = 0
		}

		name, err := classes.GetName(classID)
		if err != nil {
			return nil, err
		}

		boxes = append(boxes, postprocess.ScoredBox{
			X:          row[0],
			Y:          row[1],
			W:          row[2],
			H:          row[3],
			Confidence: confidence,
			ClassID:    classID,
			ClassName:  name,
		})
	}

	return boxes, nil
}

// clampScore maps a raw score into [0, 1]; NaN becomes 0.
func clampScore(v float32) float32 {
	if math32.IsNaN(v) {
		return 0
	}
	return math32.Min(math32.Max(v, 0), 1)
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}
