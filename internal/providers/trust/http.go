package trust

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	frauddomain "github.com/clipverse/payrail/internal/fraud/domain"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPProvider reads trust profiles from the identity store's JSON API.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTP(cfg Config) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type profileResponse struct {
	AccountAgeDays    int     `json:"account_age_days"`
	EngagementRatio   float64 `json:"engagement_ratio"`
	ViewVelocityRatio float64 `json:"view_velocity_ratio"`
}

func (p *HTTPProvider) Profile(ctx context.Context, ownerID snowflake.ID) (frauddomain.TrustProfile, error) {
	url := fmt.Sprintf("%s/v1/profiles/%s/trust", p.baseURL, ownerID.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return frauddomain.TrustProfile{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return frauddomain.TrustProfile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return frauddomain.TrustProfile{}, fmt.Errorf("trust profile lookup for %s: status %d", ownerID, resp.StatusCode)
	}

	var body profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return frauddomain.TrustProfile{}, err
	}
	return frauddomain.TrustProfile{
		AccountAgeDays:    body.AccountAgeDays,
		EngagementRatio:   body.EngagementRatio,
		ViewVelocityRatio: body.ViewVelocityRatio,
	}, nil
}
