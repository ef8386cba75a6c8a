package logger

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/tenantguard/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Format "console" is meant for local runs;
// anything else emits JSON.
func New(cfg config.LoggerConfig, fields ...zap.Field) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if raw := strings.TrimSpace(cfg.Level); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", raw, err)
		}
	}

	zc := zap.NewProductionConfig()
	zc.Level = level
	zc.Sampling = nil
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	zc.OutputPaths = []string{"stdout"}
	zc.ErrorOutputPaths = []string{"stderr"}

	switch strings.TrimSpace(cfg.Format) {
	case "console":
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "", "json":
		zc.Encoding = "json"
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	log, err := zc.Build(zap.AddStacktrace(zapcore.ErrorLevel), zap.Fields(fields...))
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)
	return log, nil
}
