// Package images - Image definition for processing utilities.
package images

import (
	"bytes"
	"strings"
	"time"
)

// Image represents a photograph fetched from an image source, before decoding.
type Image struct {
	// The identifier of the image within its source (usually the file name).
	ID string `json:"id" yaml:"id"`
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The encoded bytes of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image, 0 until decoded.
	Width int `json:"width" yaml:"width"`
	// The height of the image, 0 until decoded.
	Height int `json:"height" yaml:"height"`
	// When the photograph was taken, zero when unknown.
	CapturedAt time.Time `json:"capturedAt" yaml:"capturedAt"`
}

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatUnknown is returned when the bytes match no supported signature.
	FormatUnknown ImageFormat = ""
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
)

// DetectFormat sniffs the image format from its leading magic bytes.
//
// Arguments:
//   - data: The encoded image bytes.
//
// Returns:
//   - ImageFormat: The detected format, or FormatUnknown.
func DetectFormat(data []byte) ImageFormat {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return FormatJPEG
	case bytes.HasPrefix(data, pngMagic):
		return FormatPNG
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return FormatWebP
	default:
		return FormatUnknown
	}
}

// FormatFromExtension maps a file extension (with or without the leading dot)
// to an ImageFormat.
func FormatFromExtension(ext string) ImageFormat {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "webp":
		return FormatWebP
	default:
		return FormatUnknown
	}
}
