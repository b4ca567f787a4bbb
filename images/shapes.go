// Package images - Image loading and geometry utilities.
package images

import "github.com/chewxy/math32"

// Rect is a lightweight bounding box in pixel space.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 float32
}

// Width returns the horizontal extent of the rectangle, or 0 when inverted.
func (r Rect) Width() float32 {
	return math32.Max(0, r.X2-r.X1)
}

// Height returns the vertical extent of the rectangle, or 0 when inverted.
func (r Rect) Height() float32 {
	return math32.Max(0, r.Y2-r.Y1)
}

// Area returns the area of the rectangle in square pixels.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// Empty reports whether the rectangle has zero or negative area.
func (r Rect) Empty() bool {
	return r.X2 <= r.X1 || r.Y2 <= r.Y1
}

// CalculateIoU returns the Intersection over Union of two rectangles.
//
//	IoU = Area of Intersection / Area of Union
//
// A value of 1.0 means the rectangles are identical and 0.0 means they do not
// overlap at all. The union is computed with inclusion-exclusion:
//
//	Area(Union) = Area(A) + Area(B) - Area(Intersection)
//
// Degenerate rectangles (zero or negative width or height) have no area, so
// their IoU with anything is 0.
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	rect1 := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	rect2 := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//
//	iouScore := CalculateIoU(rect1, rect2) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	if r.Empty() || o.Empty() {
		return 0.0
	}

	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	return interArea / unionArea
}
