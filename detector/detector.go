package detector

import (
	"context"
	"image"
	"io"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/dropsight/images"
	"github.com/nvr-ai/dropsight/models"
	"github.com/nvr-ai/dropsight/models/model"
	"github.com/nvr-ai/dropsight/models/postprocess"
	"github.com/nvr-ai/dropsight/profiler"
	"github.com/nvr-ai/dropsight/record"
)

// Inferencer runs the model on an input tensor. *inference.Engine
// implements it.
type Inferencer interface {
	Infer(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error)
}

// Source fetches images by identifier.
type Source interface {
	Fetch(ctx context.Context, id string) (*images.Image, error)
}

// Sink persists completed records keyed by image identifier.
type Sink interface {
	Save(ctx context.Context, rec *record.DetectionRecord) error
}

// Renderer draws detections onto the original image. Detection coordinates
// are already in the pixel space of img.
type Renderer interface {
	Render(ctx context.Context, img image.Image, rec *record.DetectionRecord) error
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithSink sets the persistence sink.
func WithSink(sink Sink) Option {
	return func(d *Detector) { d.sink = sink }
}

// WithRenderer sets the rendering sink.
func WithRenderer(r Renderer) Option {
	return func(d *Detector) { d.renderer = r }
}

// WithSource sets the image source used by DetectByID.
func WithSource(src Source) Option {
	return func(d *Detector) { d.source = src }
}

// WithClock sets the clock used for processing timestamps.
func WithClock(clock func() time.Time) Option {
	return func(d *Detector) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithProfiler records the stage timings and detection counts of every
// processed image into p.
func WithProfiler(p *profiler.Profiler) Option {
	return func(d *Detector) { d.profiler = p }
}

// Detector runs images through decode, preprocessing, inference, decoding,
// confidence filtering, rescaling, NMS and aggregation. It is safe for
// concurrent use; invocations share only the inference engine.
type Detector struct {
	config   Config
	classes  *model.OutputClassSet
	model    model.Model
	engine   Inferencer
	logger   *zap.Logger
	source   Source
	sink     Sink
	renderer Renderer
	profiler *profiler.Profiler
	clock    func() time.Time
}

// New validates the configuration and builds a detector.
//
// Arguments:
//   - cfg: The pipeline configuration.
//   - engine: The inference engine shared by every invocation.
//   - opts: Optional collaborators.
//
// Returns:
//   - *Detector: The detector.
//   - error: A *ConfigurationError if the configuration is invalid.
func New(cfg Config, engine Inferencer, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, &ConfigurationError{Field: "engine", Reason: "an inference engine is required"}
	}

	classes, err := cfg.ClassSet()
	if err != nil {
		return nil, err
	}
	cfg.Classes = classes.Names()

	d := &Detector{
		config:  cfg,
		classes: classes,
		engine:  engine,
		logger:  zap.NewNop(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	m, err := models.NewModel(cfg.Model, d.logger.Named("model"))
	if err != nil {
		return nil, &ConfigurationError{Field: "model", Reason: err.Error()}
	}
	d.model = m

	return d, nil
}

// Config returns the pipeline configuration.
func (d *Detector) Config() Config {
	return d.config
}

// Detect runs the full pipeline on one image. Zero surviving detections is a
// valid record with all-zero counts. Failures are returned as a
// *PipelineError naming the stage. When rendering or persistence fails the
// completed record is returned together with the error.
//
// Arguments:
//   - ctx: Cancels inference and the collaborators.
//   - img: The image to process.
//
// Returns:
//   - *record.DetectionRecord: The record.
//   - error: A *PipelineError.
func (d *Detector) Detect(ctx context.Context, img *images.Image) (*record.DetectionRecord, error) {
	if img == nil {
		return nil, &PipelineError{Stage: StageLoad, Err: &InputError{Reason: "image is nil"}}
	}

	id := img.ID
	fail := func(stage Stage, err error) error {
		d.logger.Debug("pipeline stage failed",
			zap.String("image", id),
			zap.String("stage", string(stage)),
			zap.Error(err),
		)
		return &PipelineError{Stage: stage, ImageID: id, Err: err}
	}

	var timings StageTimings
	sw := newStopwatch(time.Now)

	// Decoding fills in the dimensions, so work on a copy and leave the
	// caller's image untouched.
	local := *img
	decoded, err := images.DecodeImage(&local)
	if err != nil {
		return nil, fail(StageLoad, &InputError{Reason: "cannot decode image", Err: err})
	}
	timings.Load = sw.Lap()

	pre, err := d.model.PreProcess(decoded)
	if err != nil {
		return nil, fail(StagePreprocess, &InputError{Reason: "cannot build model input", Err: err})
	}
	timings.Preprocess = sw.Lap()

	output, err := d.engine.Infer(ctx, pre.Tensor)
	if err != nil {
		return nil, fail(StageInference, err)
	}
	timings.Inference = sw.Lap()

	dets, serr := d.postProcess(output, pre.OriginalWidth, pre.OriginalHeight)
	if serr != nil {
		return nil, fail(serr.stage, serr.err)
	}
	timings.PostProcess = sw.Lap()

	rec, buildErr := record.Build(d.config.Classes, dets, record.Metadata{
		ImageIdentifier: id,
		CapturedAt:      img.CapturedAt,
		ProcessedAt:     d.clock(),
		ImageWidth:      pre.OriginalWidth,
		ImageHeight:     pre.OriginalHeight,
	})
	if buildErr != nil {
		return nil, fail(StageAggregate, buildErr)
	}
	timings.Aggregate = sw.Lap()
	timings.Total = sw.Total()

	if d.profiler != nil {
		timings.record(d.profiler)
		d.profiler.RecordMetric("detections", float64(len(rec.Detections)))
	}

	d.logger.Info("image processed",
		zap.String("image", id),
		zap.Int("detections", len(rec.Detections)),
		zap.String("dominantClass", rec.DominantClass),
		zap.Object("timings", timings),
	)

	if d.renderer != nil {
		if err := d.renderer.Render(ctx, decoded, rec); err != nil {
			return rec, fail(StageRender, err)
		}
	}
	if d.sink != nil {
		if err := d.sink.Save(ctx, rec); err != nil {
			return rec, fail(StagePersist, err)
		}
	}

	return rec, nil
}

type stageError struct {
	stage Stage
	err   error
}

// postProcess runs the pure stages: decode, filter, rescale and NMS.
func (d *Detector) postProcess(output *tensor.Dense, width, height int) ([]postprocess.Detection, *stageError) {
	boxes, err := d.model.PostProcess(output, d.classes)
	if err != nil {
		return nil, &stageError{StageDecode, &InputError{Reason: "unreadable model output", Err: err}}
	}
	decoded := len(boxes)

	boxes = postprocess.FilterByConfidence(boxes, d.config.ConfidenceThreshold)
	filtered := len(boxes)

	rescaler := postprocess.Rescaler{
		InputSize:   d.config.Model.InputSize,
		Space:       d.config.Model.Space,
		ImageWidth:  width,
		ImageHeight: height,
		Clamp:       d.config.ClampToImage,
	}
	if err := rescaler.Validate(); err != nil {
		return nil, &stageError{StageRescale, &InputError{Reason: "cannot rescale boxes", Err: err}}
	}
	dets := rescaler.Apply(boxes)

	dets = postprocess.ApplyGreedyNMS(dets, postprocess.NMSConfig{
		IoUThreshold:  d.config.OverlapThreshold,
		ClassAware:    d.config.ClassAwareNMS,
		MaxDetections: d.config.MaxDetections,
	})

	d.logger.Debug("post-processed output",
		zap.Int("anchors", decoded),
		zap.Int("aboveThreshold", filtered),
		zap.Int("survivors", len(dets)),
	)

	return dets, nil
}

// DetectByID fetches an image from the configured source and runs Detect.
func (d *Detector) DetectByID(ctx context.Context, id string) (*record.DetectionRecord, error) {
	if d.source == nil {
		return nil, &PipelineError{
			Stage:   StageFetch,
			ImageID: id,
			Err:     &ConfigurationError{Field: "source", Reason: "no image source configured"},
		}
	}

	img, err := d.source.Fetch(ctx, id)
	if err != nil {
		return nil, &PipelineError{Stage: StageFetch, ImageID: id, Err: err}
	}
	if img.ID == "" {
		img.ID = id
	}

	return d.Detect(ctx, img)
}

// DetectBatch processes independent images concurrently on at most workers
// goroutines (runtime.NumCPU() when workers <= 0). Records are returned in
// input order, nil where an image failed. The returned error combines every
// per-image *PipelineError; split it with multierr.Errors.
func (d *Detector) DetectBatch(ctx context.Context, imgs []*images.Image, workers int) ([]*record.DetectionRecord, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	records := make([]*record.DetectionRecord, len(imgs))
	errs := make([]error, len(imgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, img := range imgs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				id := ""
				if img != nil {
					id = img.ID
				}
				errs[i] = &PipelineError{Stage: StageLoad, ImageID: id, Err: err}
				return nil
			}
			records[i], errs[i] = d.Detect(gctx, img)
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Debug("batch processed", zap.Int("images", len(imgs)), zap.Int("workers", workers))

	return records, multierr.Combine(errs...)
}

// Close closes the collaborators that implement io.Closer.
func (d *Detector) Close() error {
	var err error
	for _, c := range []interface{}{d.sink, d.renderer, d.source} {
		if closer, ok := c.(io.Closer); ok {
			err = multierr.Append(err, closer.Close())
		}
	}
	return errors.Wrap(err, "closing detector collaborators")
}
