package session

import (
	"github.com/clipverse/payrail/internal/session/service"
	"go.uber.org/fx"
)

var Module = fx.Module("session.service",
	fx.Provide(service.NewService),
)
