// Package preprocess - converts decoded images into model input tensors.
package preprocess

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/dropsight/images"
)

// NormalizationType defines how pixel values are normalized.
type NormalizationType string

const (
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone NormalizationType = "none"
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne NormalizationType = "zero_to_one"
	// NormalizeMinusOneToOne scales pixel values to [-1, 1].
	NormalizeMinusOneToOne NormalizationType = "minus_one_to_one"
	// NormalizeStandardize applies mean and std normalization.
	NormalizeStandardize NormalizationType = "standardize"
)

// ChannelOrder defines the ordering of the input tensor.
type ChannelOrder string

const (
	// ChannelOrderNCHW is Batch-Channel-Height-Width ordering (common for ONNX).
	ChannelOrderNCHW ChannelOrder = "nchw"
	// ChannelOrderNHWC is Batch-Height-Width-Channel ordering (TF graph models).
	ChannelOrderNHWC ChannelOrder = "nhwc"
)

// ColorMode defines the color space of the image.
type ColorMode string

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = "rgb"
	// ColorModeBGR is BGR color mode (common for OpenCV models).
	ColorModeBGR ColorMode = "bgr"
)

// ModelConfig defines preprocessing configuration for a specific model.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string `json:"name" yaml:"name"`
	// InputSize is the edge length of the square model input.
	InputSize int `json:"inputSize" yaml:"inputSize"`
	// ChannelOrder defines the tensor layout.
	ChannelOrder ChannelOrder `json:"channelOrder" yaml:"channelOrder"`
	// ColorMode defines the channel order within a pixel.
	ColorMode ColorMode `json:"colorMode" yaml:"colorMode"`
	// Normalization defines how to normalize pixel values.
	Normalization NormalizationType `json:"normalization" yaml:"normalization"`
	// MeanValues for standardization (if Normalization is NormalizeStandardize).
	MeanValues []float32 `json:"meanValues,omitempty" yaml:"meanValues,omitempty"`
	// StdValues for standardization (if Normalization is NormalizeStandardize).
	StdValues []float32 `json:"stdValues,omitempty" yaml:"stdValues,omitempty"`
}

// Validate checks the configuration for values the preprocessor cannot handle.
func (c *ModelConfig) Validate() error {
	if c.InputSize <= 0 {
		return errors.Errorf("input size must be positive, got %d", c.InputSize)
	}
	switch c.ChannelOrder {
	case ChannelOrderNCHW, ChannelOrderNHWC:
	default:
		return errors.Errorf("unknown channel order %q", c.ChannelOrder)
	}
	switch c.ColorMode {
	case ColorModeRGB, ColorModeBGR, "":
	default:
		return errors.Errorf("unknown color mode %q", c.ColorMode)
	}
	switch c.Normalization {
	case NormalizeNone, NormalizeZeroToOne, NormalizeMinusOneToOne:
	case NormalizeStandardize:
		if len(c.MeanValues) != 3 || len(c.StdValues) != 3 {
			return errors.New("standardize requires three mean and three std values")
		}
		for _, s := range c.StdValues {
			if s == 0 {
				return errors.New("std values must be non-zero")
			}
		}
	default:
		return errors.Errorf("unknown normalization %q", c.Normalization)
	}

	return nil
}

// Result contains the preprocessed image tensor and the metadata needed to
// map model-space geometry back onto the original image.
type Result struct {
	// Tensor is the float32 input tensor, [1,3,S,S] or [1,S,S,3].
	Tensor *tensor.Dense
	// OriginalWidth is the original image width before preprocessing.
	OriginalWidth int
	// OriginalHeight is the original image height before preprocessing.
	OriginalHeight int
	// ScaleX is originalWidth / InputSize.
	ScaleX float32
	// ScaleY is originalHeight / InputSize.
	ScaleY float32
}

// Preprocessor handles image preprocessing for detection models.
type Preprocessor struct {
	config ModelConfig
	logger *zap.Logger
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
// - config: The model-specific preprocessing configuration.
// - logger: Debug logger, nil for none.
//
// Returns:
// - A configured Preprocessor instance.
// - error if the configuration is invalid.
//
// @example
//
//	preprocessor, err := NewPreprocessor(GetYOLOv5Config(640), nil)
func NewPreprocessor(config ModelConfig, logger *zap.Logger) (*Preprocessor, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid preprocessing config")
	}
	if config.ColorMode == "" {
		config.ColorMode = ColorModeRGB
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Preprocessor{config: config, logger: logger}, nil
}

// Config returns the preprocessing configuration.
func (p *Preprocessor) Config() ModelConfig {
	return p.config
}

// Preprocess stretches img to InputSize x InputSize with bilinear
// interpolation, normalizes the pixels and lays them out as a batch of one.
//
// Arguments:
// - img: The decoded input image.
//
// Returns:
// - Result containing the preprocessed tensor and metadata.
// - error if preprocessing fails.
//
// @example
//
// result, err := preprocessor.Preprocess(img)
//
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// input := result.Tensor
func (p *Preprocessor) Preprocess(img image.Image) (*Result, error) {
	if img == nil {
		return nil, errors.New("image is nil")
	}

	originalWidth := img.Bounds().Dx()
	originalHeight := img.Bounds().Dy()
	if originalWidth <= 0 || originalHeight <= 0 {
		return nil, errors.Errorf("invalid image dimensions: %dx%d", originalWidth, originalHeight)
	}

	size := p.config.InputSize
	resized, err := images.ResizeToImage(img, size, size)
	if err != nil {
		return nil, errors.Wrap(err, "image resize failed")
	}

	data := p.imageToTensor(resized)
	p.normalize(data)

	var shape []int
	if p.config.ChannelOrder == ChannelOrderNCHW {
		shape = []int{1, 3, size, size}
	} else {
		shape = []int{1, size, size, 3}
	}

	p.logger.Debug("preprocessed image",
		zap.String("model", p.config.Name),
		zap.Int("originalWidth", originalWidth),
		zap.Int("originalHeight", originalHeight),
		zap.Ints("shape", shape),
	)

	return &Result{
		Tensor:         tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)),
		OriginalWidth:  originalWidth,
		OriginalHeight: originalHeight,
		ScaleX:         float32(originalWidth) / float32(size),
		ScaleY:         float32(originalHeight) / float32(size),
	}, nil
}

// imageToTensor converts an image to raw 0-255 float32 values in the
// configured layout.
func (p *Preprocessor) imageToTensor(img image.Image) []float32 {
	// Normalize to tightly packed NRGBA so pixels can be read directly.
	src := imaging.Clone(img)
	width := src.Bounds().Dx()
	height := src.Bounds().Dy()
	plane := width * height

	data := make([]float32, plane*3)

	idx := 0
	for y := 0; y < height; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+width*4]
		for x := 0; x < width; x++ {
			r, g, b := float32(row[x*4]), float32(row[x*4+1]), float32(row[x*4+2])

			ch0, ch1, ch2 := r, g, b
			if p.config.ColorMode == ColorModeBGR {
				ch0, ch1, ch2 = b, g, r
			}

			if p.config.ChannelOrder == ChannelOrderNCHW {
				data[0*plane+y*width+x] = ch0
				data[1*plane+y*width+x] = ch1
				data[2*plane+y*width+x] = ch2
			} else {
				data[idx] = ch0
				data[idx+1] = ch1
				data[idx+2] = ch2
				idx += 3
			}
		}
	}

	return data
}

// normalize applies normalization to the tensor data in-place.
func (p *Preprocessor) normalize(data []float32) {
	switch p.config.Normalization {
	case NormalizeZeroToOne:
		for i := range data {
			data[i] /= 255.0
		}
	case NormalizeMinusOneToOne:
		for i := range data {
			data[i] = (data[i] / 127.5) - 1.0
		}
	case NormalizeStandardize:
		pixelsPerChannel := len(data) / 3
		for c := 0; c < 3; c++ {
			mean := p.config.MeanValues[c]
			std := p.config.StdValues[c]

			if p.config.ChannelOrder == ChannelOrderNCHW {
				offset := c * pixelsPerChannel
				for i := 0; i < pixelsPerChannel; i++ {
					data[offset+i] = (data[offset+i] - mean) / std
				}
			} else {
				for i := c; i < len(data); i += 3 {
					data[i] = (data[i] - mean) / std
				}
			}
		}
	}
}

// GetYOLOv5Config returns a standard configuration for YOLOv5 ONNX exports.
//
// Arguments:
// - inputSize: The input size (typically 416 or 640).
//
// Returns:
// - A ModelConfig for YOLOv5.
//
// @example
// config := GetYOLOv5Config(640)
func GetYOLOv5Config(inputSize int) ModelConfig {
	return ModelConfig{
		Name:          "yolov5",
		InputSize:     inputSize,
		ChannelOrder:  ChannelOrderNCHW,
		ColorMode:     ColorModeRGB,
		Normalization: NormalizeZeroToOne,
	}
}

// GetTFGraphConfig returns the configuration of a TensorFlow graph model
// export, which takes NHWC input.
//
// Arguments:
// - inputSize: The input size for the model.
//
// Returns:
// - A ModelConfig for a TF graph export.
func GetTFGraphConfig(inputSize int) ModelConfig {
	return ModelConfig{
		Name:          "tfjs-graph",
		InputSize:     inputSize,
		ChannelOrder:  ChannelOrderNHWC,
		ColorMode:     ColorModeRGB,
		Normalization: NormalizeZeroToOne,
	}
}
