package trust

import (
	"github.com/clipverse/payrail/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.trust",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	if cfg.Trust.BaseURL == "" {
		return &NoOpProvider{}
	}
	return NewHTTP(Config{
		BaseURL: cfg.Trust.BaseURL,
		Timeout: cfg.Trust.Timeout,
	})
}
