// Package render - draws detections onto images and writes the annotated
// copies.
package render

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/nvr-ai/dropsight/models/postprocess"
	"github.com/nvr-ai/dropsight/record"
)

var font *truetype.Font

func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Defaults for Overlay.
const (
	DefaultLineWidth = 3
	DefaultFontSize  = 16
)

// Overlay draws one stroked rectangle per detection, in the colour of its
// class, with a "<class>: <confidence>" label above it.
type Overlay struct {
	// OutputDir receives the annotated copies.
	OutputDir string
	// LineWidth is the stroke width in pixels.
	LineWidth float64
	// FontSize is the label size in points.
	FontSize float64
	// Palette colours the boxes.
	Palette Palette

	logger *zap.Logger
}

// NewOverlay returns an overlay writing into outputDir with the default
// palette and sizes.
func NewOverlay(outputDir string, logger *zap.Logger) *Overlay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Overlay{
		OutputDir: outputDir,
		LineWidth: DefaultLineWidth,
		FontSize:  DefaultFontSize,
		Palette:   DefaultPalette(),
		logger:    logger,
	}
}

// Label formats the caption of a detection.
func Label(d postprocess.Detection) string {
	return fmt.Sprintf("%s: %.2f", d.ClassName, d.Confidence)
}

// Draw returns a copy of img with dets drawn on it. Detection coordinates
// are in the pixel space of img.
func (o *Overlay) Draw(img image.Image, dets []postprocess.Detection) image.Image {
	dc := gg.NewContextForImage(img)

	lineWidth := o.LineWidth
	if lineWidth <= 0 {
		lineWidth = DefaultLineWidth
	}
	size := o.FontSize
	if size <= 0 {
		size = DefaultFontSize
	}
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: size}))

	palette := o.Palette
	if palette == nil {
		palette = DefaultPalette()
	}

	for _, d := range dets {
		c := palette.Color(d.ClassName)
		x, y := float64(d.XPos), float64(d.YPos)

		dc.SetColor(c)
		dc.SetLineWidth(lineWidth)
		dc.DrawRectangle(x, y, float64(d.Width), float64(d.Height))
		dc.Stroke()

		// Labels that would leave the top edge go inside the box.
		ty := y - lineWidth
		if ty < size {
			ty = y + size + lineWidth
		}
		dc.DrawString(Label(d), x, ty)
	}

	return dc.Image()
}

// OutputPath returns where the annotated copy of imageName is written.
// Names whose extension cannot be encoded are written as PNG.
func (o *Overlay) OutputPath(imageName string) string {
	name := filepath.Base(record.ProcessedImageName(imageName))
	if _, err := imaging.FormatFromFilename(name); err != nil {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".png"
	}
	return filepath.Join(o.OutputDir, name)
}

// Render draws rec onto img and saves it under OutputDir.
func (o *Overlay) Render(ctx context.Context, img image.Image, rec *record.DetectionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if img == nil || rec == nil {
		return errors.New("nothing to render")
	}

	if err := os.MkdirAll(o.OutputDir, 0o755); err != nil {
		return errors.Wrapf(err, "create output directory %s", o.OutputDir)
	}

	path := o.OutputPath(rec.ImageName)
	if err := imaging.Save(o.Draw(img, rec.Detections), path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}

	if o.logger != nil {
		o.logger.Debug("rendered image", zap.String("path", path), zap.Int("detections", len(rec.Detections)))
	}
	return nil
}
