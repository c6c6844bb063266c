package fraud

import (
	"github.com/clipverse/payrail/internal/fraud/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fraud.service",
	fx.Provide(service.NewService),
)
