package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountdomain "github.com/wyfcoding/optionstrading/internal/account/domain"
	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
)

var testExpiry = time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)

func stockPosition(t *testing.T, symbol string, qty, avg int64) *accountdomain.Position {
	t.Helper()
	a, err := assetdomain.NewStock(symbol)
	require.NoError(t, err)
	return accountdomain.NewPosition(a, decimal.NewFromInt(qty), decimal.NewFromInt(avg), time.Now())
}

func optionPosition(t *testing.T, underlying string, optionType assetdomain.OptionType, strike, qty int64, avg float64) *accountdomain.Position {
	t.Helper()
	a, err := assetdomain.NewOption(underlying, optionType, decimal.NewFromInt(strike), testExpiry)
	require.NoError(t, err)
	return accountdomain.NewPosition(a, decimal.NewFromInt(qty), decimal.NewFromFloat(avg), time.Now())
}

func typesOf(strategies []Strategy) []StrategyType {
	types := make([]StrategyType, 0, len(strategies))
	for _, s := range strategies {
		types = append(types, s.Type)
	}
	return types
}

func TestRecognizeCoveredCall(t *testing.T) {
	strategies := Recognize([]*accountdomain.Position{
		stockPosition(t, "AAPL", 100, 145),
		optionPosition(t, "AAPL", assetdomain.OptionTypeCall, 150, -1, 2.50),
	})

	require.Len(t, strategies, 1)
	assert.Equal(t, StrategyCoveredCall, strategies[0].Type)
	assert.Equal(t, "AAPL", strategies[0].Underlying)
	require.Len(t, strategies[0].Legs, 2)
}

func TestRecognizeCoveredCallWithExcessPieces(t *testing.T) {
	// 250 股 + 2 张空头 call：2 张全部被覆盖，剩余 50 股为裸多头股票
	strategies := Recognize([]*accountdomain.Position{
		stockPosition(t, "AAPL", 250, 145),
		optionPosition(t, "AAPL", assetdomain.OptionTypeCall, 150, -2, 2.50),
	})

	types := typesOf(strategies)
	assert.Contains(t, types, StrategyCoveredCall)
	assert.Contains(t, types, StrategyLongStock)
	for _, s := range strategies {
		if s.Type == StrategyLongStock {
			assert.True(t, s.Legs[0].Contracts.Equal(decimal.NewFromInt(50)))
		}
	}
}

func TestRecognizeVerticalSpreads(t *testing.T) {
	cases := []struct {
		name        string
		optionType  assetdomain.OptionType
		longStrike  int64
		shortStrike int64
		expected    StrategyType
	}{
		{"bull call", assetdomain.OptionTypeCall, 100, 110, StrategyBullCallSpread},
		{"bear call", assetdomain.OptionTypeCall, 110, 100, StrategyBearCallSpread},
		{"bull put", assetdomain.OptionTypePut, 90, 100, StrategyBullPutSpread},
		{"bear put", assetdomain.OptionTypePut, 100, 90, StrategyBearPutSpread},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			strategies := Recognize([]*accountdomain.Position{
				optionPosition(t, "XYZ", tc.optionType, tc.longStrike, 1, 3.0),
				optionPosition(t, "XYZ", tc.optionType, tc.shortStrike, -1, 2.0),
			})
			require.Len(t, strategies, 1)
			assert.Equal(t, tc.expected, strategies[0].Type)
		})
	}
}

func TestRecognizeIronCondor(t *testing.T) {
	strategies := Recognize([]*accountdomain.Position{
		optionPosition(t, "SPY", assetdomain.OptionTypePut, 90, 1, 0.80),
		optionPosition(t, "SPY", assetdomain.OptionTypePut, 95, -1, 1.50),
		optionPosition(t, "SPY", assetdomain.OptionTypeCall, 105, -1, 1.60),
		optionPosition(t, "SPY", assetdomain.OptionTypeCall, 110, 1, 0.90),
	})

	require.Len(t, strategies, 1)
	assert.Equal(t, StrategyIronCondor, strategies[0].Type)
	assert.Len(t, strategies[0].Legs, 4)
}

func TestRecognizeIronButterfly(t *testing.T) {
	strategies := Recognize([]*accountdomain.Position{
		optionPosition(t, "SPY", assetdomain.OptionTypePut, 90, 1, 0.80),
		optionPosition(t, "SPY", assetdomain.OptionTypePut, 100, -1, 3.00),
		optionPosition(t, "SPY", assetdomain.OptionTypeCall, 100, -1, 3.10),
		optionPosition(t, "SPY", assetdomain.OptionTypeCall, 110, 1, 0.90),
	})

	require.Len(t, strategies, 1)
	assert.Equal(t, StrategyIronButterfly, strategies[0].Type)
}

func TestRecognizeNakedAndLongRemainder(t *testing.T) {
	strategies := Recognize([]*accountdomain.Position{
		optionPosition(t, "XYZ", assetdomain.OptionTypePut, 50, -1, 2.0),
		optionPosition(t, "ABC", assetdomain.OptionTypeCall, 30, 2, 1.0),
		stockPosition(t, "DEF", -200, 20),
	})

	types := typesOf(strategies)
	assert.ElementsMatch(t, []StrategyType{StrategyNakedPut, StrategyLongCall, StrategyShortStock}, types)
}

func TestRecognizePrefersCoveredOverSpread(t *testing.T) {
	// 股票覆盖优先于价差配对：空头 call 先被股票吃掉，多头 call 退化为裸多头
	strategies := Recognize([]*accountdomain.Position{
		stockPosition(t, "AAPL", 100, 140),
		optionPosition(t, "AAPL", assetdomain.OptionTypeCall, 150, -1, 2.50),
		optionPosition(t, "AAPL", assetdomain.OptionTypeCall, 145, 1, 3.20),
	})

	types := typesOf(strategies)
	assert.Contains(t, types, StrategyCoveredCall)
	assert.Contains(t, types, StrategyLongCall)
	assert.NotContains(t, types, StrategyBullCallSpread)
}

func TestRecognizeIgnoresZeroQuantity(t *testing.T) {
	p := stockPosition(t, "AAPL", 100, 145)
	p.Quantity = decimal.Zero
	assert.Empty(t, Recognize([]*accountdomain.Position{p}))
}
