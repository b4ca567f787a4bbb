package images

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// ResizeToImage stretches an image to exactly width x height using bilinear
// interpolation. The aspect ratio is not preserved.
//
// Arguments:
//   - img: The source image.
//   - width: The target width in pixels.
//   - height: The target height in pixels.
//
// Returns:
//   - image.Image: The resized image.
//   - error: An error if the source is nil or the dimensions are not positive.
func ResizeToImage(img image.Image, width, height int) (image.Image, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid dimensions: width=%d, height=%d", width, height)
	}

	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img, nil
	}

	return resize.Resize(uint(width), uint(height), img, resize.Bilinear), nil
}
