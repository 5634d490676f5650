package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
	orderdomain "github.com/wyfcoding/optionstrading/internal/order/domain"
)

func newTestAccount(t *testing.T, cash int64) *Account {
	t.Helper()
	account, err := NewAccount("ACC1", "tester", decimal.NewFromInt(cash))
	require.NoError(t, err)
	return account
}

func stock(t *testing.T, symbol string) assetdomain.Asset {
	t.Helper()
	a, err := assetdomain.NewStock(symbol)
	require.NoError(t, err)
	return a
}

func option(t *testing.T, underlying string, optionType assetdomain.OptionType, strike int64) assetdomain.Asset {
	t.Helper()
	a, err := assetdomain.NewOption(underlying, optionType, decimal.NewFromInt(strike),
		time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return a
}

func TestApplyFillOpensAndBlendsAverage(t *testing.T) {
	account := newTestAccount(t, 100000)
	aapl := stock(t, "AAPL")
	now := time.Now()

	_, err := account.ApplyFill(aapl, orderdomain.BuyToOpen, decimal.NewFromInt(10), decimal.NewFromInt(100), now)
	require.NoError(t, err)

	pos := account.Position("AAPL")
	require.NotNil(t, pos)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, pos.AveragePrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(99000)))

	// 同向加仓摊薄均价：(10×100 + 10×110) / 20 = 105
	_, err = account.ApplyFill(aapl, orderdomain.BuyToOpen, decimal.NewFromInt(10), decimal.NewFromInt(110), now)
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(20)))
	assert.True(t, pos.AveragePrice.Equal(decimal.NewFromInt(105)))
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(97900)))
}

func TestPartialCloseRealizesPnLAndKeepsAverage(t *testing.T) {
	account := newTestAccount(t, 10000)
	aapl := stock(t, "AAPL")
	now := time.Now()

	_, err := account.ApplyFill(aapl, orderdomain.BuyToOpen, decimal.NewFromInt(10), decimal.NewFromInt(100), now)
	require.NoError(t, err)

	fill, err := account.ApplyFill(aapl, orderdomain.SellToClose, decimal.NewFromInt(4), decimal.NewFromInt(120), now)
	require.NoError(t, err)

	// (120 − 100) × 4 = 80
	assert.True(t, fill.RealizedPnL.Equal(decimal.NewFromInt(80)), "realized %s", fill.RealizedPnL)
	assert.False(t, fill.PositionClosed)

	pos := account.Position("AAPL")
	require.NotNil(t, pos)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(6)))
	// 平仓不改变均价
	assert.True(t, pos.AveragePrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, pos.RealizedPnL.Equal(decimal.NewFromInt(80)))
}

func TestShortRoundTripRealizesPnL(t *testing.T) {
	account := newTestAccount(t, 10000)
	call := option(t, "XYZ", assetdomain.OptionTypeCall, 100)
	now := time.Now()

	// 卖开收权利金 5 × 100 = 500
	open, err := account.ApplyFill(call, orderdomain.SellToOpen, decimal.NewFromInt(1), decimal.NewFromInt(5), now)
	require.NoError(t, err)
	assert.True(t, open.CashDelta.Equal(decimal.NewFromInt(500)))
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(10500)))

	pos := account.Position(call.Symbol)
	require.NotNil(t, pos)
	assert.True(t, pos.IsShort())

	// 买平付 2 × 100 = 200，已实现 = (5 − 2) × 1 × 100 = 300
	closeFill, err := account.ApplyFill(call, orderdomain.BuyToClose, decimal.NewFromInt(1), decimal.NewFromInt(2), now)
	require.NoError(t, err)
	assert.True(t, closeFill.RealizedPnL.Equal(decimal.NewFromInt(300)))
	assert.True(t, closeFill.PositionClosed)
	assert.Nil(t, account.Position(call.Symbol))
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(10300)))
}

func TestInsufficientFundsLeavesStateUntouched(t *testing.T) {
	account := newTestAccount(t, 1000)
	aapl := stock(t, "AAPL")

	_, err := account.ApplyFill(aapl, orderdomain.BuyToOpen, decimal.NewFromInt(100), decimal.NewFromInt(50), time.Now())
	require.ErrorIs(t, err, ErrInsufficientFunds)

	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(1000)), "cash must remain exactly 1000")
	assert.Empty(t, account.Positions)
}

func TestCloseNeverExceedsHeld(t *testing.T) {
	account := newTestAccount(t, 10000)
	aapl := stock(t, "AAPL")
	now := time.Now()

	_, err := account.ApplyFill(aapl, orderdomain.BuyToOpen, decimal.NewFromInt(5), decimal.NewFromInt(100), now)
	require.NoError(t, err)

	_, err = account.ApplyFill(aapl, orderdomain.SellToClose, decimal.NewFromInt(6), decimal.NewFromInt(110), now)
	require.ErrorIs(t, err, ErrInsufficientPosition)

	// 超量平仓不产生任何部分变更
	pos := account.Position("AAPL")
	require.NotNil(t, pos)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(5)))
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(9500)))

	// 无持仓平仓同样拒绝
	_, err = account.ApplyFill(stock(t, "MSFT"), orderdomain.SellToClose, decimal.NewFromInt(1), decimal.NewFromInt(10), now)
	require.ErrorIs(t, err, ErrInsufficientPosition)
}

func TestCloseAgainstWrongDirectionRejected(t *testing.T) {
	account := newTestAccount(t, 10000)
	aapl := stock(t, "AAPL")
	now := time.Now()

	_, err := account.ApplyFill(aapl, orderdomain.BuyToOpen, decimal.NewFromInt(5), decimal.NewFromInt(100), now)
	require.NoError(t, err)

	// 多头持仓不能买平
	_, err = account.ApplyFill(aapl, orderdomain.BuyToClose, decimal.NewFromInt(1), decimal.NewFromInt(100), now)
	require.ErrorIs(t, err, ErrIntentMismatch)
}

func TestCashConservationOverFillSequence(t *testing.T) {
	account := newTestAccount(t, 50000)
	aapl := stock(t, "AAPL")
	put := option(t, "AAPL", assetdomain.OptionTypePut, 140)
	now := time.Now()

	initial := account.CashBalance
	var net decimal.Decimal

	steps := []struct {
		asset  assetdomain.Asset
		intent orderdomain.OrderIntent
		qty    int64
		price  string
	}{
		{aapl, orderdomain.BuyToOpen, 100, "150.25"},
		{put, orderdomain.SellToOpen, 2, "3.40"},
		{aapl, orderdomain.SellToClose, 40, "152.10"},
		{put, orderdomain.BuyToClose, 1, "2.15"},
		{aapl, orderdomain.BuyToOpen, 10, "151.00"},
	}
	for _, s := range steps {
		price, err := decimal.NewFromString(s.price)
		require.NoError(t, err)
		fill, err := account.ApplyFill(s.asset, s.intent, decimal.NewFromInt(s.qty), price, now)
		require.NoError(t, err)
		net = net.Add(fill.CashDelta)
	}

	assert.True(t, account.CashBalance.Equal(initial.Add(net)),
		"cash %s != initial %s + net %s", account.CashBalance, initial, net)
}

func TestDepositWithdraw(t *testing.T) {
	account := newTestAccount(t, 1000)

	require.NoError(t, account.Deposit(decimal.NewFromInt(500)))
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(1500)))

	require.NoError(t, account.Withdraw(decimal.NewFromInt(300)))
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(1200)))

	assert.ErrorIs(t, account.Withdraw(decimal.NewFromInt(5000)), ErrInsufficientFunds)
	assert.ErrorIs(t, account.Deposit(decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, account.Withdraw(decimal.NewFromInt(-1)), ErrInvalidAmount)

	_, err := NewAccount("ACC2", "tester", decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCloneIsolatesMutations(t *testing.T) {
	account := newTestAccount(t, 10000)
	aapl := stock(t, "AAPL")
	now := time.Now()

	_, err := account.ApplyFill(aapl, orderdomain.BuyToOpen, decimal.NewFromInt(10), decimal.NewFromInt(100), now)
	require.NoError(t, err)

	scratch := account.Clone()
	_, err = scratch.ApplyFill(aapl, orderdomain.SellToClose, decimal.NewFromInt(10), decimal.NewFromInt(120), now)
	require.NoError(t, err)

	// 副本上的变更不影响原聚合
	require.NotNil(t, account.Position("AAPL"))
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(9000)))
	assert.Nil(t, scratch.Position("AAPL"))

	// Restore 后整体替换
	account.Restore(scratch)
	assert.Nil(t, account.Position("AAPL"))
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(10200)))
}

func TestRecordedEventsClearedAfterSaveCycle(t *testing.T) {
	account := newTestAccount(t, 1000)

	account.Record(OrderFilledEventType, OrderFilledEvent{AccountID: "ACC1", OrderID: "ORD1"})
	account.Record(PositionClosedEventType, PositionClosedEvent{AccountID: "ACC1", Symbol: "AAPL"})
	require.Len(t, account.PendingEvents(), 2)
	assert.Equal(t, OrderFilledEventType, account.PendingEvents()[0].Type)

	// 副本携带事件的独立拷贝，副本上的追加不回流原聚合
	scratch := account.Clone()
	scratch.Record(MarginCallEventType, MarginCallEvent{AccountID: "ACC1"})
	assert.Len(t, scratch.PendingEvents(), 3)
	assert.Len(t, account.PendingEvents(), 2)

	account.ClearEvents()
	assert.Empty(t, account.PendingEvents())
}

func TestAppendAndFindOrder(t *testing.T) {
	account := newTestAccount(t, 1000)
	o, err := orderdomain.NewOrder("ORD1", "ACC1", "AAPL", orderdomain.BuyToOpen,
		decimal.NewFromInt(1), orderdomain.ConditionMarket, nil)
	require.NoError(t, err)

	account.AppendOrder(o)
	assert.Equal(t, o, account.FindOrder("ORD1"))
	assert.Nil(t, account.FindOrder("ORD2"))
}
