package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/tenantguard/pkg/log/ctxlogger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// LoggerConfig configures the zap-backed gorm logger.
type LoggerConfig struct {
	Level                gormlogger.LogLevel
	SlowThreshold        time.Duration
	IgnoreRecordNotFound bool
}

func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:         gormlogger.Warn,
		SlowThreshold: 200 * time.Millisecond,
	}
}

type queryLogger struct {
	cfg LoggerConfig
}

// NewLogger builds a gorm logger writing through the context logger, so
// statements issued during an evaluation carry its project and run fields.
func NewLogger(cfg LoggerConfig) gormlogger.Interface {
	return &queryLogger{cfg: cfg}
}

func (l *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *queryLogger) Info(ctx context.Context, msg string, data ...any) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *queryLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *queryLogger) Error(ctx context.Context, msg string, data ...any) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *queryLogger) message(ctx context.Context, threshold gormlogger.LogLevel, level zapcore.Level, msg string, data []any) {
	if l.cfg.Level < threshold {
		return
	}
	fields := []zap.Field{zap.String("component", "gorm")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	if ce := ctxlogger.FromContext(ctx).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	level, ok := l.classify(elapsed, err)
	if !ok {
		return
	}

	log := ctxlogger.FromContext(ctx)
	ce := log.Check(level, "gorm.query")
	if ce == nil {
		return
	}

	sql, rows := fc()
	sql = strings.TrimSpace(sql)
	op, table := describeSQL(sql)
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("operation", op),
		zap.String("sql", sql),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if table != "" {
		fields = append(fields, zap.String("table", table))
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold {
		fields = append(fields, zap.Bool("slow", true))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

// classify picks the zap level for a finished statement. Cancelled contexts
// are expected during shutdown and sweeps that hit their deadline, so they
// drop to warn.
func (l *queryLogger) classify(elapsed time.Duration, err error) (zapcore.Level, bool) {
	switch {
	case err != nil && errors.Is(err, gormlogger.ErrRecordNotFound):
		if l.cfg.IgnoreRecordNotFound || l.cfg.Level < gormlogger.Info {
			return 0, false
		}
		return zapcore.DebugLevel, true
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return zapcore.WarnLevel, l.cfg.Level >= gormlogger.Warn
	case err != nil:
		return zapcore.ErrorLevel, l.cfg.Level >= gormlogger.Error
	case l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold:
		return zapcore.WarnLevel, l.cfg.Level >= gormlogger.Warn
	default:
		return zapcore.DebugLevel, l.cfg.Level >= gormlogger.Info
	}
}

// describeSQL returns the statement verb and, when it can tell, the table
// the statement targets.
func describeSQL(sql string) (string, string) {
	tokens := strings.Fields(sql)
	for i, token := range tokens {
		verb := strings.ToUpper(strings.Trim(token, "();"))
		var marker string
		switch verb {
		case "SELECT", "DELETE":
			marker = "FROM"
		case "INSERT":
			marker = "INTO"
		case "UPDATE":
			return verb, tableAt(tokens, i+1)
		default:
			continue
		}
		for j := i + 1; j < len(tokens); j++ {
			if strings.EqualFold(tokens[j], marker) {
				return verb, tableAt(tokens, j+1)
			}
		}
		return verb, ""
	}
	return "UNKNOWN", ""
}

func tableAt(tokens []string, i int) string {
	if i >= len(tokens) {
		return ""
	}
	return strings.Trim(tokens[i], "`\"();")
}

var _ gormlogger.Interface = (*queryLogger)(nil)
