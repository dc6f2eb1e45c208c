package auditlog

import (
	"go.uber.org/fx"
)

var Module = fx.Module("auditlog.service",
	fx.Provide(
		NewService,
	),
)
