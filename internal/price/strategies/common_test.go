package strategies

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestScaleDown(t *testing.T) {
	raw := big.NewInt(1_500_000) // 1.5 at 6 decimals
	got := scaleDown(raw, 6)
	require.True(t, got.Equal(mustDecimal("1.5")), "got %s", got)
}

func TestScaleDownExpNegative(t *testing.T) {
	// Compound's combined-scale formula can need a negative exponent when
	// the underlying has more decimals than the cToken pair implies.
	raw := big.NewInt(2)
	got := scaleDownExp(raw, -1)
	require.True(t, got.Equal(mustDecimal("20")), "got %s", got)
}

func TestIsExpectedRevert(t *testing.T) {
	require.False(t, isExpectedRevert(nil))
	require.True(t, isExpectedRevert(errors.New("execution reverted")))
	require.True(t, isExpectedRevert(errors.New("VM Exception: revert")))
	require.True(t, isExpectedRevert(newStrategyError("exhausted")))
	require.False(t, isExpectedRevert(errors.New("connection refused")))
}

func TestMatchCacheReusesProbeResult(t *testing.T) {
	mc := newMatchCache("test-kind")
	token := common.HexToAddress("0x1111111111111111111111111111111111111111")
	calls := 0
	probe := func(ctx context.Context) (bool, error) {
		calls++
		return true, nil
	}

	ok, err := mc.cached(context.Background(), token, probe)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = mc.cached(context.Background(), token, probe)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, calls, "second call should be served from the match cache")
}
