package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/nvr-ai/dropsight/record"
)

type memorySink struct {
	saved  []string
	err    error
	closed bool
}

func (s *memorySink) Save(_ context.Context, rec *record.DetectionRecord) error {
	s.saved = append(s.saved, rec.ImageIdentifier)
	return s.err
}

func (s *memorySink) Close() error {
	s.closed = true
	return nil
}

func TestMulti(t *testing.T) {
	a := &memorySink{}
	b := &memorySink{err: errors.New("b failed")}
	c := &memorySink{err: errors.New("c failed")}
	m := Multi(a, nil, b, c)
	require.Equal(t, 3, m.Len())

	err := m.Save(context.Background(), &record.DetectionRecord{ImageIdentifier: "x.png"})
	assert.Len(t, multierr.Errors(err), 2)
	for _, s := range []*memorySink{a, b, c} {
		assert.Equal(t, []string{"x.png"}, s.saved)
	}

	require.NoError(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, c.closed)
}

func TestMulti_Empty(t *testing.T) {
	m := Multi()
	assert.NoError(t, m.Save(context.Background(), &record.DetectionRecord{}))
	assert.NoError(t, m.Close())
}
