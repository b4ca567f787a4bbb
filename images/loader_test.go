package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want ImageFormat
	}{
		{"JPEG", getJPEGBytes(t, 8, 8), FormatJPEG},
		{"PNG", getPNGBytes(t, 8, 8), FormatPNG},
		{"WebP header", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), FormatWebP},
		{"Garbage", []byte("not an image"), FormatUnknown},
		{"Empty", nil, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.data))
		})
	}
}

func TestFormatFromExtension(t *testing.T) {
	assert.Equal(t, FormatJPEG, FormatFromExtension(".JPG"))
	assert.Equal(t, FormatJPEG, FormatFromExtension("jpeg"))
	assert.Equal(t, FormatPNG, FormatFromExtension(".png"))
	assert.Equal(t, FormatWebP, FormatFromExtension(".webp"))
	assert.Equal(t, FormatUnknown, FormatFromExtension(".gif"))
}

func TestDecode(t *testing.T) {
	t.Run("JPEG", func(t *testing.T) {
		img, err := Decode(getJPEGBytes(t, 64, 48))
		require.NoError(t, err)
		assert.Equal(t, 64, img.Bounds().Dx())
		assert.Equal(t, 48, img.Bounds().Dy())
	})

	t.Run("PNG", func(t *testing.T) {
		img, err := Decode(getPNGBytes(t, 30, 20))
		require.NoError(t, err)
		assert.Equal(t, 30, img.Bounds().Dx())
		assert.Equal(t, 20, img.Bounds().Dy())
	})

	t.Run("Empty", func(t *testing.T) {
		img, err := Decode(nil)
		assert.ErrorIs(t, err, ErrEmptyImage)
		assert.Nil(t, img)
	})

	t.Run("Garbage", func(t *testing.T) {
		img, err := Decode([]byte("not an image"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode image")
		assert.Nil(t, img)
	})
}

func TestDecodeImage_FillsDimensions(t *testing.T) {
	img := &Image{ID: "farm(U1).png", Data: getPNGBytes(t, 40, 30)}

	decoded, err := DecodeImage(img)
	require.NoError(t, err)
	require.NotNil(t, decoded)

	assert.Equal(t, 40, img.Width)
	assert.Equal(t, 30, img.Height)
	assert.Equal(t, FormatPNG, img.Format)
}
