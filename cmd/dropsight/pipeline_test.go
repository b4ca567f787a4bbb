package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/dropsight/config"
	"github.com/nvr-ai/dropsight/detector"
	"github.com/nvr-ai/dropsight/inference"
	"github.com/nvr-ai/dropsight/storage/sqlite"
)

type cannedHandle struct{}

func (cannedHandle) Infer(_ context.Context, _ *tensor.Dense) (*tensor.Dense, error) {
	data := []float32{0.5, 0.5, 0.25, 0.25, 0.9, 0.1, 0.1, 0.8, 0.1}
	return tensor.New(tensor.WithShape(1, 1, 9), tensor.WithBacking(data)), nil
}

func (cannedHandle) Close() error { return nil }

type cannedBackend struct{}

func (cannedBackend) LoadModel(_ context.Context, _ string) (inference.ModelHandle, error) {
	return cannedHandle{}, nil
}

func writeImage(t *testing.T, dir, name string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 80, 60))))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o600))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	images := filepath.Join(root, "images")
	require.NoError(t, os.Mkdir(images, 0o700))
	writeImage(t, images, "pen(U5).png")

	cfg := config.Default()
	cfg.Derive()
	cfg.Source.Directory = images
	cfg.Storage = config.Storage{Driver: config.DriverSQLite, DSN: filepath.Join(root, "db", "records.db")}
	cfg.Render.Enabled = true
	cfg.Render.OutputDir = filepath.Join(root, "processed")
	cfg.Log.Level = "error"
	return &cfg
}

func TestPipeline_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	p, err := newPipeline(ctx, cfg, cannedBackend{})
	require.NoError(t, err)

	img, err := p.resolveImage(ctx, "pen(U5).png")
	require.NoError(t, err)

	rec, err := p.detector.Detect(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Counts["NCD-like"])
	assert.Equal(t, "U5", rec.OwnerID)
	require.NoError(t, p.Close())

	assert.FileExists(t, filepath.Join(cfg.Render.OutputDir, "pen(U5)_processed.png"))

	db, err := sqlite.New(cfg.Storage.DSN)
	require.NoError(t, err)
	defer db.Close()
	stored, err := db.Get(ctx, "pen(U5).png")
	require.NoError(t, err)
	assert.Equal(t, "NCD-like", stored.DominantClass)
}

func TestPipeline_ResolvePathOutsideSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = config.DriverNone

	other := t.TempDir()
	writeImage(t, other, "elsewhere.png")

	p, err := newPipeline(context.Background(), cfg, cannedBackend{})
	require.NoError(t, err)
	defer p.Close()

	img, err := p.resolveImage(context.Background(), filepath.Join(other, "elsewhere.png"))
	require.NoError(t, err)
	assert.Equal(t, "elsewhere.png", img.ID)
}

func TestPipeline_MissingSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.Directory = filepath.Join(t.TempDir(), "nope")

	_, err := newPipeline(context.Background(), cfg, cannedBackend{})
	assert.Error(t, err)
}

func TestApp_DetectWithoutModel(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "dropsight.yaml")
	yml := "source:\n  directory: " + cfg.Source.Directory + "\n" +
		"detector:\n  model:\n    path: " + filepath.Join(t.TempDir(), "missing.onnx") + "\n" +
		"log:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	app := newApp()
	var out bytes.Buffer
	app.Writer = &out

	err := app.Run([]string{"dropsight", "--config", path, "--env-file", filepath.Join(t.TempDir(), "none"), "detect", "pen(U5).png"})
	var pipelineErr *detector.PipelineError
	require.ErrorAs(t, err, &pipelineErr)
	assert.Equal(t, detector.StageInference, pipelineErr.Stage)

	var backendErr *inference.BackendError
	assert.ErrorAs(t, err, &backendErr)
	assert.Empty(t, out.String())
}

func TestPipeline_ProfilesDetections(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = config.DriverNone
	cfg.Render.Enabled = false

	p, err := newPipeline(context.Background(), cfg, cannedBackend{})
	require.NoError(t, err)
	defer p.Close()

	imgs, err := p.source.FetchAll(context.Background())
	require.NoError(t, err)
	records, err := p.detector.DetectBatch(context.Background(), imgs, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, 1, p.profiler.Snapshot().Operations["inference"].Count)
}
