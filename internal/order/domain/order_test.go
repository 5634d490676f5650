package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedDelta(t *testing.T) {
	qty := decimal.NewFromInt(5)
	cases := []struct {
		intent        OrderIntent
		positionDelta int64
		cashSign      int64
	}{
		{BuyToOpen, 5, -1},
		{SellToOpen, -5, 1},
		{BuyToClose, 5, -1},
		{SellToClose, -5, 1},
	}
	for _, tc := range cases {
		t.Run(string(tc.intent), func(t *testing.T) {
			positionDelta, cashSign, err := SignedDelta(tc.intent, qty)
			require.NoError(t, err)
			assert.True(t, positionDelta.Equal(decimal.NewFromInt(tc.positionDelta)))
			assert.True(t, cashSign.Equal(decimal.NewFromInt(tc.cashSign)))
		})
	}
}

func TestSignedDeltaRejectsInvalid(t *testing.T) {
	_, _, err := SignedDelta(BuyToOpen, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, _, err = SignedDelta(BuyToOpen, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, _, err = SignedDelta("HOLD", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrInvalidIntent)
}

func TestIntentClassification(t *testing.T) {
	assert.True(t, BuyToOpen.IsOpening())
	assert.True(t, SellToOpen.IsOpening())
	assert.True(t, BuyToClose.IsClosing())
	assert.True(t, SellToClose.IsClosing())
	assert.True(t, BuyToOpen.IsBuy())
	assert.True(t, BuyToClose.IsBuy())
	assert.False(t, SellToOpen.IsBuy())
	assert.False(t, OrderIntent("HOLD").Valid())
}

func TestOrderLifecycle(t *testing.T) {
	o, err := NewOrder("ORD1", "ACC1", "AAPL", BuyToOpen, decimal.NewFromInt(10), ConditionMarket, nil)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, o.Status)
	assert.False(t, o.IsTerminal())

	now := time.Now()
	require.NoError(t, o.Fill(decimal.NewFromInt(150), now))
	assert.Equal(t, OrderStatusFilled, o.Status)
	assert.True(t, o.FilledPrice.Equal(decimal.NewFromInt(150)))
	require.NotNil(t, o.FilledAt)
	assert.True(t, o.IsTerminal())

	// 成交为终态
	assert.ErrorIs(t, o.Fill(decimal.NewFromInt(151), now), ErrOrderAlreadyFilled)
	assert.ErrorIs(t, o.Cancel(), ErrOrderAlreadyFilled)
}

func TestOrderCancelAndReject(t *testing.T) {
	o, err := NewOrder("ORD2", "ACC1", "AAPL", SellToClose, decimal.NewFromInt(1), ConditionMarket, nil)
	require.NoError(t, err)
	require.NoError(t, o.Cancel())
	assert.Equal(t, OrderStatusCancelled, o.Status)
	assert.ErrorIs(t, o.Cancel(), ErrOrderNotPending)
	assert.ErrorIs(t, o.Fill(decimal.NewFromInt(1), time.Now()), ErrOrderNotPending)

	r, err := NewOrder("ORD3", "ACC1", "AAPL", SellToClose, decimal.NewFromInt(1), ConditionMarket, nil)
	require.NoError(t, err)
	r.Reject("insufficient position")
	assert.Equal(t, OrderStatusRejected, r.Status)
	assert.Equal(t, "insufficient position", r.RejectReason)
}

func TestNewOrderValidation(t *testing.T) {
	_, err := NewOrder("ORD4", "ACC1", "AAPL", "HOLD", decimal.NewFromInt(1), ConditionMarket, nil)
	assert.ErrorIs(t, err, ErrInvalidIntent)

	_, err = NewOrder("ORD5", "ACC1", "AAPL", BuyToOpen, decimal.Zero, ConditionMarket, nil)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	// 限价单必须带限价
	_, err = NewOrder("ORD6", "ACC1", "AAPL", BuyToOpen, decimal.NewFromInt(1), ConditionLimit, nil)
	assert.Error(t, err)
}

func TestNewMultiLegOrderValidation(t *testing.T) {
	_, err := NewMultiLegOrder("MLO1", "ACC1", nil, nil, "")
	assert.ErrorIs(t, err, ErrEmptyLegs)

	legs := []OrderLeg{
		{Symbol: "XYZ   260918C00100000", Intent: BuyToOpen, Quantity: decimal.NewFromInt(1), Ratio: 1},
		{Symbol: "XYZ   260918C00110000", Intent: SellToOpen, Quantity: decimal.NewFromInt(1), Ratio: 1},
	}
	mlo, err := NewMultiLegOrder("MLO2", "ACC1", legs, nil, "BULL_CALL_SPREAD")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, mlo.Status)

	legs[1].Ratio = 0
	_, err = NewMultiLegOrder("MLO3", "ACC1", legs, nil, "")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}
