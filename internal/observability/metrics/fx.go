package metrics

import "go.uber.org/fx"

var Module = fx.Module("observability.metrics",
	fx.Provide(
		ConfigFrom,
		New,
		Scheduler,
		HTTP,
	),
)

