package detector

import (
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/nvr-ai/dropsight/profiler"
)

// StageTimings captures how long each pipeline stage took for one image.
type StageTimings struct {
	Load        time.Duration `json:"load"`
	Preprocess  time.Duration `json:"preprocess"`
	Inference   time.Duration `json:"inference"`
	PostProcess time.Duration `json:"post_process"`
	Aggregate   time.Duration `json:"aggregate"`
	Total       time.Duration `json:"total"`
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (t StageTimings) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddDuration("load", t.Load)
	enc.AddDuration("preprocess", t.Preprocess)
	enc.AddDuration("inference", t.Inference)
	enc.AddDuration("postProcess", t.PostProcess)
	enc.AddDuration("aggregate", t.Aggregate)
	enc.AddDuration("total", t.Total)
	return nil
}

// record adds the timings to p, one series per stage.
func (t StageTimings) record(p *profiler.Profiler) {
	p.RecordDuration(string(StageLoad), t.Load)
	p.RecordDuration(string(StagePreprocess), t.Preprocess)
	p.RecordDuration(string(StageInference), t.Inference)
	p.RecordDuration("postprocess", t.PostProcess)
	p.RecordDuration(string(StageAggregate), t.Aggregate)
	p.RecordDuration("total", t.Total)
}

// stopwatch measures consecutive stages.
type stopwatch struct {
	clock func() time.Time
	start time.Time
	lap   time.Time
}

func newStopwatch(clock func() time.Time) *stopwatch {
	now := clock()
	return &stopwatch{clock: clock, start: now, lap: now}
}

// Lap returns the time since the previous lap.
func (s *stopwatch) Lap() time.Duration {
	now := s.clock()
	d := now.Sub(s.lap)
	s.lap = now
	return d
}

// Total returns the time since the stopwatch started.
func (s *stopwatch) Total() time.Duration {
	return s.clock().Sub(s.start)
}
