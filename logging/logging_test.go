package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerConfig(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		encoding string
		want     zapcore.Level
		wantEnc  string
	}{
		{"Defaults", "", "", zapcore.InfoLevel, EncodingConsole},
		{"Debug json", "debug", EncodingJSON, zapcore.DebugLevel, EncodingJSON},
		{"Upper case level", "WARN", EncodingConsole, zapcore.WarnLevel, EncodingConsole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewLoggerConfig(tt.level, tt.encoding)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Level.Level())
			assert.Equal(t, tt.wantEnc, cfg.Encoding)
		})
	}
}

func TestNewLoggerConfig_Errors(t *testing.T) {
	_, err := NewLoggerConfig("loud", "")
	assert.Error(t, err)

	_, err = NewLoggerConfig("info", "xml")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("error", EncodingJSON)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))
}
