package domain

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountdomain "github.com/wyfcoding/optionstrading/internal/account/domain"
	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
	orderdomain "github.com/wyfcoding/optionstrading/internal/order/domain"
)

var expiryDay = time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)

func expiringOption(t *testing.T, underlying string, optionType assetdomain.OptionType, strike int64) assetdomain.Asset {
	t.Helper()
	a, err := assetdomain.NewOption(underlying, optionType, decimal.NewFromInt(strike), expiryDay)
	require.NoError(t, err)
	return a
}

func mustFill(t *testing.T, account *accountdomain.Account, a assetdomain.Asset, intent orderdomain.OrderIntent, qty, price int64) {
	t.Helper()
	_, err := account.ApplyFill(a, intent, decimal.NewFromInt(qty), decimal.NewFromInt(price), time.Now())
	require.NoError(t, err)
}

func TestExpirationWorthlessDrain(t *testing.T) {
	quotes := newFakeQuotes()
	aapl, err := assetdomain.NewStock("AAPL")
	require.NoError(t, err)
	quotes.set(t, aapl, 144.90, 145.10)

	account := testAccount(t, 10000)
	call := expiringOption(t, "AAPL", assetdomain.OptionTypeCall, 150)
	mustFill(t, account, call, orderdomain.BuyToOpen, 1, 2)

	engine := NewExpirationEngine(quotes)
	report, err := engine.ProcessExpirations(context.Background(), account, expiryDay)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)

	entry := report.Entries[0]
	assert.Equal(t, OutcomeExpiredWorthless, entry.Outcome)
	// 作废按零价平仓，无现金流，全部权利金成为已实现亏损
	assert.True(t, entry.CashEffect.IsZero())
	assert.True(t, entry.RealizedPnL.Equal(decimal.NewFromInt(-200)), "realized %s", entry.RealizedPnL)
	assert.Nil(t, account.Position(call.Symbol))
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(9800)))
	assert.False(t, report.MarginCall)
}

func TestExpirationCoveredCallAssignment(t *testing.T) {
	quotes := newFakeQuotes()
	aapl, err := assetdomain.NewStock("AAPL")
	require.NoError(t, err)
	quotes.set(t, aapl, 154.90, 155.10)

	account := testAccount(t, 20000)
	mustFill(t, account, aapl, orderdomain.BuyToOpen, 100, 145)
	call := expiringOption(t, "AAPL", assetdomain.OptionTypeCall, 150)
	_, err = account.ApplyFill(call, orderdomain.SellToOpen, decimal.NewFromInt(1),
		decimal.NewFromFloat(2.5), time.Now())
	require.NoError(t, err)
	// 20000 − 14500 + 250
	require.True(t, account.CashBalance.Equal(decimal.NewFromInt(5750)))

	engine := NewExpirationEngine(quotes)
	report, err := engine.ProcessExpirations(context.Background(), account, expiryDay)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)

	entry := report.Entries[0]
	assert.Equal(t, OutcomeAssigned, entry.Outcome)
	// 100 股按行权价 150 被叫走
	assert.True(t, entry.CashEffect.Equal(decimal.NewFromInt(15000)), "cash effect %s", entry.CashEffect)
	// 期权权利金 250 + 股票价差 (150−145)×100 = 500
	assert.True(t, entry.RealizedPnL.Equal(decimal.NewFromInt(750)), "realized %s", entry.RealizedPnL)

	assert.Nil(t, account.Position(call.Symbol))
	assert.Nil(t, account.Position("AAPL"))
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(20750)))
	assert.False(t, report.MarginCall)
}

func TestExpirationLongCallExercise(t *testing.T) {
	quotes := newFakeQuotes()
	xyz, err := assetdomain.NewStock("XYZ")
	require.NoError(t, err)
	quotes.set(t, xyz, 119.90, 120.10)

	account := testAccount(t, 15000)
	call := expiringOption(t, "XYZ", assetdomain.OptionTypeCall, 100)
	mustFill(t, account, call, orderdomain.BuyToOpen, 1, 5)

	engine := NewExpirationEngine(quotes)
	report, err := engine.ProcessExpirations(context.Background(), account, expiryDay)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)

	entry := report.Entries[0]
	assert.Equal(t, OutcomeExercised, entry.Outcome)
	// 期权平仓 0 现金 + 按 100 买入 100 股
	assert.True(t, entry.CashEffect.Equal(decimal.NewFromInt(-10000)), "cash effect %s", entry.CashEffect)

	assert.Nil(t, account.Position(call.Symbol))
	shares := account.Position("XYZ")
	require.NotNil(t, shares)
	assert.True(t, shares.Quantity.Equal(decimal.NewFromInt(100)))
	assert.True(t, shares.AveragePrice.Equal(decimal.NewFromInt(100)))
	// 14500 − 10000
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(4500)))
}

func TestExpirationShortPutAssignment(t *testing.T) {
	quotes := newFakeQuotes()
	xyz, err := assetdomain.NewStock("XYZ")
	require.NoError(t, err)
	quotes.set(t, xyz, 39.90, 40.10)

	account := testAccount(t, 10000)
	put := expiringOption(t, "XYZ", assetdomain.OptionTypePut, 50)
	mustFill(t, account, put, orderdomain.SellToOpen, 1, 2)
	require.True(t, account.CashBalance.Equal(decimal.NewFromInt(10200)))

	engine := NewExpirationEngine(quotes)
	report, err := engine.ProcessExpirations(context.Background(), account, expiryDay)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)

	entry := report.Entries[0]
	assert.Equal(t, OutcomeAssigned, entry.Outcome)
	// 按行权价 50 接货 100 股
	assert.True(t, entry.CashEffect.Equal(decimal.NewFromInt(-5000)))

	shares := account.Position("XYZ")
	require.NotNil(t, shares)
	assert.True(t, shares.Quantity.Equal(decimal.NewFromInt(100)))
	assert.True(t, shares.AveragePrice.Equal(decimal.NewFromInt(50)))
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(5200)))
	assert.False(t, report.MarginCall)
}

func TestExpirationCashSettleWhenFundsShort(t *testing.T) {
	quotes := newFakeQuotes()
	xyz, err := assetdomain.NewStock("XYZ")
	require.NoError(t, err)
	quotes.set(t, xyz, 119.90, 120.10)

	// 行权需要 10000 现金，账户只剩 500，退化为现金结算
	account := testAccount(t, 1000)
	call := expiringOption(t, "XYZ", assetdomain.OptionTypeCall, 100)
	mustFill(t, account, call, orderdomain.BuyToOpen, 1, 5)
	require.True(t, account.CashBalance.Equal(decimal.NewFromInt(500)))

	engine := NewExpirationEngine(quotes)
	report, err := engine.ProcessExpirations(context.Background(), account, expiryDay)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)

	entry := report.Entries[0]
	assert.Equal(t, OutcomeCashSettled, entry.Outcome)
	// 按内在价值 20 平仓：+2000 现金，已实现 (20−5)×100 = 1500
	assert.True(t, entry.CashEffect.Equal(decimal.NewFromInt(2000)), "cash effect %s", entry.CashEffect)
	assert.True(t, entry.RealizedPnL.Equal(decimal.NewFromInt(1500)), "realized %s", entry.RealizedPnL)

	assert.Nil(t, account.Position(call.Symbol))
	assert.Nil(t, account.Position("XYZ"))
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(2500)))
}

func TestExpirationNakedCallAssignmentFlagsMarginCall(t *testing.T) {
	quotes := newFakeQuotes()
	xyz, err := assetdomain.NewStock("XYZ")
	require.NoError(t, err)
	quotes.set(t, xyz, 119.90, 120.10)

	account := testAccount(t, 10000)
	call := expiringOption(t, "XYZ", assetdomain.OptionTypeCall, 100)
	mustFill(t, account, call, orderdomain.SellToOpen, 1, 5)

	engine := NewExpirationEngine(quotes)
	report, err := engine.ProcessExpirations(context.Background(), account, expiryDay)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)

	entry := report.Entries[0]
	assert.Equal(t, OutcomeAssigned, entry.Outcome)
	assert.True(t, entry.MarginCall)
	assert.True(t, report.MarginCall)

	// 无股票可交付，裸卖形成空头 100 股并收入行权款
	shares := account.Position("XYZ")
	require.NotNil(t, shares)
	assert.True(t, shares.IsShort())
	assert.True(t, shares.Quantity.Equal(decimal.NewFromInt(-100)))
	// 10000 + 500 权利金 + 10000 行权款
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(20500)))
}

func TestExpirationSkipsWithoutUnderlyingQuote(t *testing.T) {
	account := testAccount(t, 10000)
	call := expiringOption(t, "NOQ", assetdomain.OptionTypeCall, 100)
	mustFill(t, account, call, orderdomain.BuyToOpen, 1, 2)

	engine := NewExpirationEngine(newFakeQuotes())
	report, err := engine.ProcessExpirations(context.Background(), account, expiryDay)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)

	assert.Equal(t, OutcomeSkippedNoQuote, report.Entries[0].Outcome)
	// 无行情不动账，持仓保留待下一轮
	require.NotNil(t, account.Position(call.Symbol))
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(9800)))
}

func TestExpirationSecondRunIsNoOp(t *testing.T) {
	quotes := newFakeQuotes()
	aapl, err := assetdomain.NewStock("AAPL")
	require.NoError(t, err)
	quotes.set(t, aapl, 154.90, 155.10)

	account := testAccount(t, 20000)
	mustFill(t, account, aapl, orderdomain.BuyToOpen, 100, 145)
	call := expiringOption(t, "AAPL", assetdomain.OptionTypeCall, 150)
	mustFill(t, account, call, orderdomain.SellToOpen, 1, 2)

	engine := NewExpirationEngine(quotes)
	first, err := engine.ProcessExpirations(context.Background(), account, expiryDay)
	require.NoError(t, err)
	require.Len(t, first.Entries, 1)

	cashAfterFirst := account.CashBalance
	second, err := engine.ProcessExpirations(context.Background(), account, expiryDay)
	require.NoError(t, err)
	assert.Empty(t, second.Entries)
	assert.True(t, account.CashBalance.Equal(cashAfterFirst))
}

func TestExpirationIgnoresUnexpiredPositions(t *testing.T) {
	quotes := newFakeQuotes()
	aapl, err := assetdomain.NewStock("AAPL")
	require.NoError(t, err)
	quotes.set(t, aapl, 154.90, 155.10)

	account := testAccount(t, 10000)
	later, err := assetdomain.NewOption("AAPL", assetdomain.OptionTypeCall,
		decimal.NewFromInt(150), expiryDay.AddDate(0, 1, 0))
	require.NoError(t, err)
	mustFill(t, account, later, orderdomain.BuyToOpen, 1, 3)

	engine := NewExpirationEngine(quotes)
	report, err := engine.ProcessExpirations(context.Background(), account, expiryDay)
	require.NoError(t, err)
	assert.Empty(t, report.Entries)
	require.NotNil(t, account.Position(later.Symbol))
}
