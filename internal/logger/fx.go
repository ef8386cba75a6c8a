package logger

import (
	"context"

	"github.com/smallbiznis/tenantguard/internal/config"
	"github.com/smallbiznis/tenantguard/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

var Module = fx.Module("logger",
	fx.Provide(NewFromConfig),
	fx.Invoke(registerHooks),
)

// WithFxEvents routes fx's own lifecycle events through the application logger.
var WithFxEvents = fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: log.Named("fx")}
})

func NewFromConfig(cfg config.Config) (*zap.Logger, error) {
	ctxlogger.SetServiceName(cfg.AppName)
	return New(cfg.Logger,
		zap.String("service", cfg.AppName),
		zap.String("env", cfg.Environment),
		zap.String("version", cfg.AppVersion),
	)
}

func registerHooks(lc fx.Lifecycle, log *zap.Logger) {
	lc.Append(fx.StopHook(func(context.Context) error {
		// stdout sync returns EINVAL on some platforms
		_ = log.Sync()
		return nil
	}))
}
