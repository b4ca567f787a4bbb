package render

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/dropsight/models/postprocess"
	"github.com/nvr-ai/dropsight/record"
)

func white(w, h int) image.Image {
	return imaging.New(w, h, color.White)
}

func assertColor(t *testing.T, want color.Color, got color.Color) {
	t.Helper()
	wr, wg, wb, _ := want.RGBA()
	gr, gg, gb, _ := got.RGBA()
	assert.InDelta(t, wr>>8, gr>>8, 3)
	assert.InDelta(t, wg>>8, gg>>8, 3)
	assert.InDelta(t, wb>>8, gb>>8, 3)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "NCD-like: 0.87", Label(postprocess.Detection{ClassName: "NCD-like", Confidence: 0.8666}))
}

func TestPalette(t *testing.T) {
	p := DefaultPalette()
	assertColor(t, color.RGBA{R: 0x4A, G: 0x7F, B: 0x2C, A: 255}, p.Color("Healthy"))
	assertColor(t, color.RGBA{R: 0xFF, G: 0xC1, B: 0x07, A: 255}, p.Color("Salmonella-like"))
	assertColor(t, color.RGBA{R: 0xF4, G: 0x43, B: 0x36, A: 255}, p.Color("NCD-like"))
	assertColor(t, color.RGBA{R: 0x02, G: 0x88, B: 0xD1, A: 255}, p.Color("Coccidiosis-like"))
	assertColor(t, color.RGBA{B: 255, A: 255}, p.Color("Unknown"))

	parsed, err := ParsePalette(map[string]string{"Healthy": "#000000"})
	require.NoError(t, err)
	assertColor(t, color.Black, parsed.Color("Healthy"))

	_, err = ParsePalette(map[string]string{"Healthy": "green"})
	assert.Error(t, err)
}

func TestDraw(t *testing.T) {
	o := NewOverlay(t.TempDir(), nil)
	src := white(100, 100)

	out := o.Draw(src, []postprocess.Detection{
		{XPos: 20, YPos: 40, Width: 50, Height: 40, Confidence: 0.9, ClassName: "Healthy"},
	})

	require.Equal(t, src.Bounds(), out.Bounds())
	assertColor(t, DefaultPalette().Color("Healthy"), out.At(20, 60))
	assertColor(t, color.White, out.At(45, 60))
	assertColor(t, color.White, src.At(20, 60))
}

func TestOutputPath(t *testing.T) {
	o := &Overlay{OutputDir: "/out"}
	assert.Equal(t, filepath.Join("/out", "farm(U1)_processed.jpg"), o.OutputPath("farm(U1).jpg"))
	assert.Equal(t, filepath.Join("/out", "a_processed.png"), o.OutputPath("nested/a.webp"))
}

func TestRender(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "processed")
	o := NewOverlay(dir, nil)

	rec := &record.DetectionRecord{
		ImageIdentifier: "coop.png",
		ImageName:       "coop.png",
		Detections: []postprocess.Detection{
			{XPos: 5, YPos: 5, Width: 20, Height: 20, Confidence: 0.7, ClassName: "NCD-like"},
		},
	}
	require.NoError(t, o.Render(context.Background(), white(64, 48), rec))

	saved, err := imaging.Open(filepath.Join(dir, "coop_processed.png"))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), saved.Bounds())
	assertColor(t, DefaultPalette().Color("NCD-like"), saved.At(5, 15))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, o.Render(ctx, white(8, 8), rec), context.Canceled)
	assert.Error(t, o.Render(context.Background(), nil, rec))
}
