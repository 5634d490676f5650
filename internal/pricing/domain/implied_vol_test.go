package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
)

func TestImpliedVolatilityRoundTrip(t *testing.T) {
	cases := []struct {
		name       string
		optionType assetdomain.OptionType
		in         BlackScholesInput
	}{
		{"atm call", assetdomain.OptionTypeCall, BlackScholesInput{S: 100, K: 100, T: 1, R: 0.05, V: 0.20}},
		{"otm put short dated", assetdomain.OptionTypePut, BlackScholesInput{S: 155, K: 140, T: 0.1, R: 0.03, V: 0.45}},
		{"itm call with dividend", assetdomain.OptionTypeCall, BlackScholesInput{S: 120, K: 100, T: 0.5, R: 0.05, V: 0.30, Q: 0.02}},
		{"high vol", assetdomain.OptionTypePut, BlackScholesInput{S: 50, K: 55, T: 2, R: 0.01, V: 1.50}},
		{"low vol", assetdomain.OptionTypeCall, BlackScholesInput{S: 100, K: 100, T: 0.25, R: 0.02, V: 0.05}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			priced, err := Calculate(tc.optionType, tc.in)
			require.NoError(t, err)

			in := tc.in
			in.V = 0
			vol, err := ImpliedVolatility(tc.optionType, priced.Price, in)
			require.NoError(t, err)
			assert.InDelta(t, tc.in.V, vol, 1e-5)
		})
	}
}

func TestImpliedVolatilityPriceBounds(t *testing.T) {
	in := BlackScholesInput{S: 100, K: 100, T: 1, R: 0.05}

	// 负价与零价
	_, err := ImpliedVolatility(assetdomain.OptionTypeCall, -1, in)
	assert.ErrorIs(t, err, ErrPriceOutOfBounds)
	_, err = ImpliedVolatility(assetdomain.OptionTypeCall, 0, in)
	assert.ErrorIs(t, err, ErrPriceOutOfBounds)

	// 高于无套利上界：call 价不可能超过贴现后的标的价
	_, err = ImpliedVolatility(assetdomain.OptionTypeCall, 101, in)
	assert.ErrorIs(t, err, ErrPriceOutOfBounds)

	// 低于内在价值下界
	deep := BlackScholesInput{S: 150, K: 100, T: 1, R: 0.05}
	_, err = ImpliedVolatility(assetdomain.OptionTypeCall, 10, deep)
	assert.ErrorIs(t, err, ErrPriceOutOfBounds)
}

func TestImpliedVolatilityRejectsBadInputs(t *testing.T) {
	_, err := ImpliedVolatility(assetdomain.OptionTypeCall, 5, BlackScholesInput{S: 100, K: 100, T: 0})
	assert.ErrorIs(t, err, ErrInvalidPricingInput)

	_, err = ImpliedVolatility(assetdomain.OptionTypeCall, 5, BlackScholesInput{S: -1, K: 100, T: 1})
	assert.ErrorIs(t, err, ErrInvalidPricingInput)
}
