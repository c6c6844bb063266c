package domain

// Rule inspects a candidate payout and either raises a flag draft or not.
type Rule interface {
	Evaluate(c Candidate) (FlagDraft, bool)
}

// EngagementRule flags payouts whose engagement ratio falls below a floor.
type EngagementRule struct {
	MinRatio float64
}

func (r EngagementRule) Evaluate(c Candidate) (FlagDraft, bool) {
	if c.Profile.EngagementRatio >= r.MinRatio {
		return FlagDraft{}, false
	}
	return FlagDraft{
		FlagType:       FlagEngagement,
		DetectedValue:  c.Profile.EngagementRatio,
		ThresholdValue: r.MinRatio,
	}, true
}

// VelocityRule flags payouts whose view velocity exceeds a multiple of the
// owner's historical baseline.
type VelocityRule struct {
	MaxMultiplier float64
}

func (r VelocityRule) Evaluate(c Candidate) (FlagDraft, bool) {
	if c.Profile.ViewVelocityRatio <= r.MaxMultiplier {
		return FlagDraft{}, false
	}
	return FlagDraft{
		FlagType:       FlagVelocity,
		DetectedValue:  c.Profile.ViewVelocityRatio,
		ThresholdValue: r.MaxMultiplier,
	}, true
}

// NewCreatorRule flags large payouts from accounts younger than a minimum age.
type NewCreatorRule struct {
	MinAgeDays int
	AmountCap  int64
}

func (r NewCreatorRule) Evaluate(c Candidate) (FlagDraft, bool) {
	if c.Profile.AccountAgeDays >= r.MinAgeDays || c.TotalAmount <= r.AmountCap {
		return FlagDraft{}, false
	}
	return FlagDraft{
		FlagType:       FlagNewCreator,
		DetectedValue:  float64(c.TotalAmount),
		ThresholdValue: float64(r.AmountCap),
	}, true
}

// PreviousFraudRule flags any payout from an owner with confirmed prior flags.
type PreviousFraudRule struct{}

func (r PreviousFraudRule) Evaluate(c Candidate) (FlagDraft, bool) {
	if c.PriorConfirmedFlags == 0 {
		return FlagDraft{}, false
	}
	return FlagDraft{
		FlagType:       FlagPreviousFraud,
		DetectedValue:  float64(c.PriorConfirmedFlags),
		ThresholdValue: 0,
	}, true
}
