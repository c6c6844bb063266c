package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngagementRule(t *testing.T) {
	rule := EngagementRule{MinRatio: 0.02}

	_, hit := rule.Evaluate(Candidate{Profile: TrustProfile{EngagementRatio: 0.02}})
	assert.False(t, hit, "ratio at the floor is clean")

	draft, hit := rule.Evaluate(Candidate{Profile: TrustProfile{EngagementRatio: 0.01}})
	require.True(t, hit)
	assert.Equal(t, FlagEngagement, draft.FlagType)
	assert.Equal(t, 0.01, draft.DetectedValue)
	assert.Equal(t, 0.02, draft.ThresholdValue)
}

func TestVelocityRule(t *testing.T) {
	rule := VelocityRule{MaxMultiplier: 5.0}

	_, hit := rule.Evaluate(Candidate{Profile: TrustProfile{ViewVelocityRatio: 5.0}})
	assert.False(t, hit, "velocity at the ceiling is clean")

	draft, hit := rule.Evaluate(Candidate{Profile: TrustProfile{ViewVelocityRatio: 7.5}})
	require.True(t, hit)
	assert.Equal(t, FlagVelocity, draft.FlagType)
	assert.Equal(t, 7.5, draft.DetectedValue)
}

func TestNewCreatorRule(t *testing.T) {
	rule := NewCreatorRule{MinAgeDays: 30, AmountCap: 50000}

	_, hit := rule.Evaluate(Candidate{
		TotalAmount: 60000,
		Profile:     TrustProfile{AccountAgeDays: 30},
	})
	assert.False(t, hit, "account old enough")

	_, hit = rule.Evaluate(Candidate{
		TotalAmount: 50000,
		Profile:     TrustProfile{AccountAgeDays: 5},
	})
	assert.False(t, hit, "amount at the cap")

	draft, hit := rule.Evaluate(Candidate{
		TotalAmount: 50001,
		Profile:     TrustProfile{AccountAgeDays: 5},
	})
	require.True(t, hit)
	assert.Equal(t, FlagNewCreator, draft.FlagType)
	assert.Equal(t, float64(50001), draft.DetectedValue)
}

func TestPreviousFraudRule(t *testing.T) {
	rule := PreviousFraudRule{}

	_, hit := rule.Evaluate(Candidate{})
	assert.False(t, hit)

	draft, hit := rule.Evaluate(Candidate{PriorConfirmedFlags: 2})
	require.True(t, hit)
	assert.Equal(t, FlagPreviousFraud, draft.FlagType)
	assert.Equal(t, float64(2), draft.DetectedValue)
	assert.Zero(t, draft.ThresholdValue)
}
