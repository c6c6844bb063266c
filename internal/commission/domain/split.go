package domain

const bpsDenominator = 10000

// Split computes the fee shares for a settled transaction on integer minor
// units. Fees use floor division and the remainder goes to the seller, so
// platformFee + communityFee + sellerReceives == totalAmount holds exactly.
func Split(totalAmount, platformFeeBps, communityFeeBps int64) (SplitResult, error) {
	if totalAmount < 0 {
		return SplitResult{}, ErrInvalidAmount
	}
	if !validBps(platformFeeBps) || !validBps(communityFeeBps) {
		return SplitResult{}, ErrInvalidBps
	}
	if platformFeeBps+communityFeeBps > bpsDenominator {
		return SplitResult{}, ErrInvalidBps
	}

	platformFee := totalAmount * platformFeeBps / bpsDenominator
	communityFee := totalAmount * communityFeeBps / bpsDenominator
	return SplitResult{
		PlatformFee:    platformFee,
		CommunityFee:   communityFee,
		SellerReceives: totalAmount - platformFee - communityFee,
	}, nil
}

func validBps(bps int64) bool {
	return bps >= 0 && bps <= bpsDenominator
}
