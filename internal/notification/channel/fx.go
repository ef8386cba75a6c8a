package channel

import "go.uber.org/fx"

var Module = fx.Module("notification.channel",
	fx.Provide(
		fx.Annotate(NewEmailSender, fx.As(new(Sender))),
	),
	fx.Provide(NewDefaultRegistry),
)
