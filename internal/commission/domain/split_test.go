package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitDefaults(t *testing.T) {
	res, err := Split(10000, 500, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.PlatformFee)
	assert.Equal(t, int64(200), res.CommunityFee)
	assert.Equal(t, int64(9300), res.SellerReceives)
}

func TestSplitConservation(t *testing.T) {
	cases := []struct {
		name     string
		total    int64
		platform int64
		community int64
	}{
		{"rounding remainder goes to seller", 9999, 333, 167},
		{"one minor unit", 1, 500, 200},
		{"zero amount", 0, 500, 200},
		{"zero fees", 12345, 0, 0},
		{"full fee", 10000, 9000, 1000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Split(tc.total, tc.platform, tc.community)
			require.NoError(t, err)
			assert.Equal(t, tc.total, res.PlatformFee+res.CommunityFee+res.SellerReceives)
			assert.GreaterOrEqual(t, res.PlatformFee, int64(0))
			assert.GreaterOrEqual(t, res.CommunityFee, int64(0))
			assert.GreaterOrEqual(t, res.SellerReceives, int64(0))
		})
	}
}

func TestSplitRejectsInvalidInput(t *testing.T) {
	_, err := Split(-1, 500, 200)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Split(10000, -1, 200)
	assert.ErrorIs(t, err, ErrInvalidBps)

	_, err = Split(10000, 10001, 0)
	assert.ErrorIs(t, err, ErrInvalidBps)

	_, err = Split(10000, 6000, 5000)
	assert.ErrorIs(t, err, ErrInvalidBps)
}
