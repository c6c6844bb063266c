package review

import (
	"go.uber.org/fx"

	"github.com/clipverse/payrail/internal/clearing"
)

var Module = fx.Module("review",
	fx.Provide(NewAdjudicator),
	fx.Provide(NewDispatcher),
	fx.Provide(func(d *Dispatcher) clearing.PenaltyDrainer { return d }),
)
