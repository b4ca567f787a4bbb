package postprocess

import "fmt"

// InvalidTensorShapeError is returned when a raw model output does not have
// the layout the decoder expects.
type InvalidTensorShapeError struct {
	// The shape of the tensor that was received.
	Got []int
	// The expected length of the last dimension (5 + number of classes).
	Want int
}

func (e *InvalidTensorShapeError) Error() string {
	return fmt.Sprintf("invalid tensor shape %v: want [N, %d] or [1, N, %d]", e.Got, e.Want, e.Want)
}
