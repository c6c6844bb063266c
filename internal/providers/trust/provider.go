package trust

import (
	"context"

	"github.com/bwmarrin/snowflake"

	frauddomain "github.com/clipverse/payrail/internal/fraud/domain"
)

// Provider supplies the read-only trust signals the fraud screen needs.
type Provider interface {
	Profile(ctx context.Context, ownerID snowflake.ID) (frauddomain.TrustProfile, error)
}

// NoOpProvider returns a permissive profile. Used when no profile store is
// configured; only the previous_fraud rule can fire in that mode.
type NoOpProvider struct{}

func (p *NoOpProvider) Profile(ctx context.Context, ownerID snowflake.ID) (frauddomain.TrustProfile, error) {
	return frauddomain.TrustProfile{
		AccountAgeDays:    365,
		EngagementRatio:   1,
		ViewVelocityRatio: 1,
	}, nil
}
