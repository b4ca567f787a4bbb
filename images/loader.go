package images

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	// Register the WebP decoder with image.Decode.
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned when an image carries no bytes.
var ErrEmptyImage = errors.New("empty image data")

// Decode decodes JPEG, PNG or WebP bytes into an image.Image, applying the
// EXIF orientation tag so that phone photographs come out upright.
//
// Arguments:
//   - data: The encoded image bytes.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: ErrEmptyImage for empty input, or a wrapped decode error.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.Errorf("decoded image has invalid dimensions %dx%d", b.Dx(), b.Dy())
	}

	return img, nil
}

// DecodeImage decodes img.Data and fills in the image dimensions and, when
// missing, the sniffed format.
func DecodeImage(img *Image) (image.Image, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}

	decoded, err := Decode(img.Data)
	if err != nil {
		return nil, err
	}

	img.Width = decoded.Bounds().Dx()
	img.Height = decoded.Bounds().Dy()
	if img.Format == FormatUnknown {
		img.Format = DetectFormat(img.Data)
	}

	return decoded, nil
}
