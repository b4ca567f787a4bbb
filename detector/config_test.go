package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/dropsight/models/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"Coccidiosis-like", "Healthy", "NCD-like", "Salmonella-like"}, cfg.Classes)
	assert.Equal(t, float32(0.5), cfg.ConfidenceThreshold)
	assert.Equal(t, float32(0.5), cfg.OverlapThreshold)
	assert.Equal(t, 640, cfg.Model.InputSize)
	assert.True(t, cfg.ClampToImage)
	assert.Equal(t, model.ClassStyleDroppings, cfg.ClassStyle)
}

func TestConfig_ClassSet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Classes = nil

	set, err := cfg.ClassSet()
	require.NoError(t, err)
	assert.Same(t, model.DroppingsClasses, set)

	d, err := New(cfg, engineWithRows())
	require.NoError(t, err)
	assert.Equal(t, model.DroppingsClassNames, d.Config().Classes)

	cfg.ClassStyle = ""
	cfg.Classes = []string{"Healthy", "Sick"}
	set, err = cfg.ClassSet()
	require.NoError(t, err)
	assert.Equal(t, model.ClassStyleCustom, set.Style)
	idx, err := set.GetIndex("Sick")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		mutate func(c *Config)
	}{
		{"No classes", "classes", func(c *Config) { c.Classes, c.ClassStyle = nil, "" }},
		{"Unknown class style", "classStyle", func(c *Config) { c.Classes, c.ClassStyle = nil, "coco" }},
		{"Duplicate class", "classes", func(c *Config) { c.Classes = []string{"a", "b", "a"} }},
		{"Empty class", "classes", func(c *Config) { c.Classes = []string{"a", ""} }},
		{"Zero confidence", "confidenceThreshold", func(c *Config) { c.ConfidenceThreshold = 0 }},
		{"Confidence of one", "confidenceThreshold", func(c *Config) { c.ConfidenceThreshold = 1 }},
		{"Negative overlap", "overlapThreshold", func(c *Config) { c.OverlapThreshold = -0.1 }},
		{"Overlap above one", "overlapThreshold", func(c *Config) { c.OverlapThreshold = 1.5 }},
		{"Negative max detections", "maxDetections", func(c *Config) { c.MaxDetections = -1 }},
		{"Zero input size", "model.inputSize", func(c *Config) { c.Model.InputSize = 0 }},
		{"Unknown score mode", "model", func(c *Config) { c.Model.ScoreMode = "iou" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)

			_, err = New(cfg, engineWithRows())
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}
