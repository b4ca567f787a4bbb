// Package storage - persistence sinks for detection records.
package storage

import (
	"context"
	"io"

	"go.uber.org/multierr"

	"github.com/nvr-ai/dropsight/record"
)

// Sink persists records keyed by image identifier. Saving the same
// identifier twice replaces the earlier record.
type Sink interface {
	Save(ctx context.Context, rec *record.DetectionRecord) error
}

// MultiSink writes every record to all of its sinks.
type MultiSink struct {
	sinks []Sink
}

// Multi fans records out to sinks. Nil sinks are skipped.
func Multi(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of sinks.
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// Save writes rec to every sink, even when an earlier one fails, and returns
// the combined errors.
func (m *MultiSink) Save(ctx context.Context, rec *record.DetectionRecord) error {
	var err error
	for _, s := range m.sinks {
		err = multierr.Append(err, s.Save(ctx, rec))
	}
	return err
}

// Close closes every sink that implements io.Closer.
func (m *MultiSink) Close() error {
	var err error
	for _, s := range m.sinks {
		if c, ok := s.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
