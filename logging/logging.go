// Package logging - builds the zap loggers used by the binaries.
package logging

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Supported encodings.
const (
	EncodingConsole = "console"
	EncodingJSON    = "json"
)

// NewLoggerConfig returns a config logging at level with the given
// encoding. Console output colours the level; JSON output does not.
//
// Arguments:
//   - level: "debug", "info", "warn" or "error". Empty means info.
//   - encoding: EncodingConsole or EncodingJSON. Empty means console.
//
// Returns:
//   - zap.Config: The config.
//   - error: If the level or encoding is unknown.
func NewLoggerConfig(level, encoding string) (zap.Config, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return zap.Config{}, errors.Wrapf(err, "log level %q", level)
		}
	}

	levelEncoder := zapcore.CapitalColorLevelEncoder
	switch encoding {
	case "", EncodingConsole:
		encoding = EncodingConsole
	case EncodingJSON:
		levelEncoder = zapcore.LowercaseLevelEncoder
	default:
		return zap.Config{}, errors.Errorf("unknown log encoding %q", encoding)
	}

	return zap.Config{
		Level:    zap.NewAtomicLevelAt(lvl),
		Encoding: encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    levelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}, nil
}

// NewLogger builds a logger from NewLoggerConfig.
func NewLogger(level, encoding string) (*zap.Logger, error) {
	cfg, err := NewLoggerConfig(level, encoding)
	if err != nil {
		return nil, err
	}
	return cfg.Build()
}
