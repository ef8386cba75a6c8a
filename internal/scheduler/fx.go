package scheduler

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ConfigFrom),
	fx.Provide(New),
	fx.Invoke(registerScheduler),
)

func registerScheduler(lc fx.Lifecycle, cfg Config, sched *Scheduler) {
	if !cfg.Enabled {
		sched.log.Info("scheduler disabled")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return sched.Start()
		},
		OnStop: func(ctx context.Context) error {
			return sched.Stop(ctx)
		},
	})
}
