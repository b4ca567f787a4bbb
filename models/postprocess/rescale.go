package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// CoordinateSpace is the unit a model reports box geometry in.
type CoordinateSpace string

const (
	// SpaceNormalized means geometry is a fraction of the model input, [0, 1].
	SpaceNormalized CoordinateSpace = "normalized"
	// SpacePixels means geometry is in model-input pixels, [0, InputSize].
	SpacePixels CoordinateSpace = "pixels"
)

// Rescaler converts model-space boxes into original-image pixel space.
type Rescaler struct {
	// The square model input edge length in pixels.
	InputSize int
	// The unit of the model geometry.
	Space CoordinateSpace
	// The original image dimensions.
	ImageWidth  int
	ImageHeight int
	// Clip boxes to [0, ImageWidth] x [0, ImageHeight].
	Clamp bool
}

// Validate checks that the rescaler can produce finite coordinates.
func (r Rescaler) Validate() error {
	if r.InputSize <= 0 {
		return errors.Errorf("input size must be positive, got %d", r.InputSize)
	}
	if r.ImageWidth <= 0 || r.ImageHeight <= 0 {
		return errors.Errorf("invalid image dimensions: %dx%d", r.ImageWidth, r.ImageHeight)
	}
	switch r.Space {
	case SpaceNormalized, SpacePixels:
	default:
		return errors.Errorf("unknown coordinate space %q", r.Space)
	}

	return nil
}

// ScaleX is originalWidth / InputSize.
func (r Rescaler) ScaleX() float32 {
	return float32(r.ImageWidth) / float32(r.InputSize)
}

// ScaleY is originalHeight / InputSize.
func (r Rescaler) ScaleY() float32 {
	return float32(r.ImageHeight) / float32(r.InputSize)
}

func (r Rescaler) unit() float32 {
	if r.Space == SpaceNormalized {
		return float32(r.InputSize)
	}
	return 1
}

// Rescale converts one centre-format box to a top-left pixel-space
// detection. No clamping or rounding is applied.
//
//	xPos   = (x - w/2) * unit * scaleX
//	yPos   = (y - h/2) * unit * scaleY
//	width  = w * unit * scaleX
//	height = h * unit * scaleY
//
// where unit is InputSize for normalized geometry and 1 for pixel geometry.
func (r Rescaler) Rescale(b ScoredBox) Detection {
	u := r.unit()
	sx := u * r.ScaleX()
	sy := u * r.ScaleY()

	return Detection{
		XPos:       (b.X - b.W/2) * sx,
		YPos:       (b.Y - b.H/2) * sy,
		Width:      b.W * sx,
		Height:     b.H * sy,
		Confidence: b.Confidence,
		ClassID:    b.ClassID,
		ClassName:  b.ClassName,
	}
}

// Apply rescales every box, applies the clamp policy and drops boxes that end
// up with zero or negative width or height. Order is preserved.
func (r Rescaler) Apply(boxes []ScoredBox) []Detection {
	out := make([]Detection, 0, len(boxes))
	for _, b := range boxes {
		d := r.Rescale(b)
		if r.Clamp {
			d = r.clamp(d)
		}
		if !(d.Width > 0) || !(d.Height > 0) {
			continue
		}
		out = append(out, d)
	}

	return out
}

func (r Rescaler) clamp(d Detection) Detection {
	w := float32(r.ImageWidth)
	h := float32(r.ImageHeight)

	x1 := math32.Min(math32.Max(d.XPos, 0), w)
	y1 := math32.Min(math32.Max(d.YPos, 0), h)
	x2 := math32.Min(math32.Max(d.XPos+d.Width, 0), w)
	y2 := math32.Min(math32.Max(d.YPos+d.Height, 0), h)

	d.XPos, d.YPos = x1, y1
	d.Width, d.Height = x2-x1, y2-y1

	return d
}
