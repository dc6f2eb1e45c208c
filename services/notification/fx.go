package notification

import (
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(
		NewLogNotifier,
		NewWorker,
	),
	fx.Invoke(RegisterWorker),
)
