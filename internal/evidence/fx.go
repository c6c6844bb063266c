package evidence

import "go.uber.org/fx"

var Module = fx.Module("evidence.service",
	fx.Provide(NewService),
)
