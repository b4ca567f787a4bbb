package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/dropsight/config"
	"github.com/nvr-ai/dropsight/detector"
	"github.com/nvr-ai/dropsight/images"
	"github.com/nvr-ai/dropsight/inference"
	"github.com/nvr-ai/dropsight/logging"
	"github.com/nvr-ai/dropsight/profiler"
	"github.com/nvr-ai/dropsight/record"
	"github.com/nvr-ai/dropsight/render"
	"github.com/nvr-ai/dropsight/source"
	"github.com/nvr-ai/dropsight/storage"
	"github.com/nvr-ai/dropsight/storage/mongo"
	"github.com/nvr-ai/dropsight/storage/sqlite"
)

// pipeline holds everything a command needs, built once from the
// configuration.
type pipeline struct {
	cfg      *config.Config
	logger   *zap.Logger
	engine   *inference.Engine
	detector *detector.Detector
	source   *source.Directory
	profiler *profiler.Profiler
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String(flagConfig), c.String(flagEnvFile))
	if err != nil {
		return nil, err
	}
	if lvl := c.String(flagLogLevel); lvl != "" {
		cfg.Log.Level = lvl
	}
	if c.Bool(flagRender) {
		cfg.Render.Enabled = true
	}
	return cfg, cfg.Validate()
}

// openSink returns the configured sink, or nil when persistence is off.
func openSink(ctx context.Context, cfg config.Storage, logger *zap.Logger) (storage.Sink, error) {
	switch cfg.Driver {
	case "", config.DriverNone:
		return nil, nil
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "create database directory %s", dir)
			}
		}
		return sqlite.New(cfg.DSN)
	case config.DriverMongo:
		return mongo.Connect(ctx, cfg.DSN, cfg.Database, cfg.Collection, logger.Named("mongo"))
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// newPipeline wires the engine, the collaborators and the detector. The
// model itself is loaded lazily by the first inference.
func newPipeline(ctx context.Context, cfg *config.Config, engineBackend inference.Backend) (p *pipeline, err error) {
	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return nil, err
	}

	if engineBackend == nil {
		engineBackend, err = inference.NewONNXBackend(cfg.Runtime, logger.Named("onnx"))
		if err != nil {
			return nil, err
		}
	}
	engine := inference.NewEngine(engineBackend, cfg.Detector.Model.Path, inference.WithEngineLogger(logger.Named("engine")))

	src, err := source.NewDirectory(cfg.Source.Directory)
	if err != nil {
		return nil, err
	}

	prof := profiler.New(0)
	opts := []detector.Option{
		detector.WithLogger(logger.Named("detector")),
		detector.WithSource(src),
		detector.WithProfiler(prof),
	}

	sink, err := openSink(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	if sink != nil {
		opts = append(opts, detector.WithSink(storage.Multi(sink)))
	}

	if cfg.Render.Enabled {
		overlay := render.NewOverlay(cfg.Render.OutputDir, logger.Named("render"))
		if cfg.Render.LineWidth > 0 {
			overlay.LineWidth = cfg.Render.LineWidth
		}
		if cfg.Render.FontSize > 0 {
			overlay.FontSize = cfg.Render.FontSize
		}
		opts = append(opts, detector.WithRenderer(overlay))
	}

	det, err := detector.New(cfg.Detector, engine, opts...)
	if err != nil {
		if closer, ok := sink.(interface{ Close() error }); ok {
			err = multierr.Append(err, closer.Close())
		}
		return nil, err
	}

	return &pipeline{cfg: cfg, logger: logger, engine: engine, detector: det, source: src, profiler: prof}, nil
}

func (p *pipeline) Close() error {
	err := multierr.Combine(p.detector.Close(), p.engine.Close())
	_ = p.logger.Sync()
	return err
}

func setup(c *cli.Context) (*pipeline, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return newPipeline(c.Context, cfg, nil)
}

func printRecords(c *cli.Context, v interface{}) error {
	enc := yaml.NewEncoder(c.App.Writer)
	defer enc.Close()
	return enc.Encode(v)
}

// resolveImage maps an argument to an image, reading it directly when it is
// a path outside the source directory.
func (p *pipeline) resolveImage(ctx context.Context, arg string) (*images.Image, error) {
	if img, err := p.source.Fetch(ctx, arg); err == nil {
		return img, nil
	}

	dir, err := source.NewDirectory(filepath.Dir(arg))
	if err != nil {
		return nil, err
	}
	return dir.Fetch(ctx, filepath.Base(arg))
}

func detectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("detect takes exactly one image", 2)
	}

	p, err := setup(c)
	if err != nil {
		return err
	}
	defer p.Close()

	img, err := p.resolveImage(c.Context, c.Args().First())
	if err != nil {
		return &detector.PipelineError{Stage: detector.StageFetch, ImageID: c.Args().First(), Err: err}
	}

	rec, err := p.detector.Detect(c.Context, img)
	if rec != nil {
		if perr := printRecords(c, rec); perr != nil {
			return perr
		}
	}
	return err
}

func latestAction(c *cli.Context) error {
	p, err := setup(c)
	if err != nil {
		return err
	}
	defer p.Close()

	img, err := p.source.Latest(c.Context)
	if err != nil {
		return &detector.PipelineError{Stage: detector.StageFetch, Err: err}
	}

	rec, err := p.detector.Detect(c.Context, img)
	if rec != nil {
		if perr := printRecords(c, rec); perr != nil {
			return perr
		}
	}
	return err
}

// batchOutput is what the batch command prints.
type batchOutput struct {
	Records []*record.DetectionRecord          `yaml:"records"`
	Daily   []record.Summary                   `yaml:"daily"`
	Weekly  []record.Summary                   `yaml:"weekly"`
	Failed  int                                `yaml:"failed"`
	Timings map[string]profiler.OperationStats `yaml:"timings"`
}

func batchAction(c *cli.Context) error {
	p, err := setup(c)
	if err != nil {
		return err
	}
	defer p.Close()

	imgs, err := p.source.FetchAll(c.Context)
	if err != nil {
		return &detector.PipelineError{Stage: detector.StageFetch, Err: err}
	}

	workers := p.cfg.Workers
	if c.IsSet(flagWorkers) {
		workers = c.Int(flagWorkers)
	}

	records, batchErr := p.detector.DetectBatch(c.Context, imgs, workers)
	out := batchOutput{Records: make([]*record.DetectionRecord, 0, len(records))}
	for _, rec := range records {
		if rec != nil {
			out.Records = append(out.Records, rec)
		}
	}
	out.Failed = len(multierr.Errors(batchErr))

	out.Daily = record.Summarize(p.cfg.Detector.Classes, out.Records)
	out.Weekly = record.SummarizeWeekly(p.cfg.Detector.Classes, out.Records)

	out.Timings = p.profiler.Snapshot().Operations

	for _, e := range multierr.Errors(batchErr) {
		p.logger.Warn("image failed", zap.Error(e))
	}
	p.profiler.LogReport(p.logger.Named("profiler"))
	if perr := printRecords(c, out); perr != nil {
		return perr
	}
	if batchErr != nil {
		return cli.Exit(errors.Errorf("%d of %d images failed", out.Failed, len(imgs)), 1)
	}
	return nil
}
