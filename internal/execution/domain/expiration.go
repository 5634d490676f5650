package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	accountdomain "github.com/wyfcoding/optionstrading/internal/account/domain"
	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
	orderdomain "github.com/wyfcoding/optionstrading/internal/order/domain"
)

// ExpirationOutcome 到期处理结果分类
type ExpirationOutcome string

const (
	OutcomeExpiredWorthless ExpirationOutcome = "EXPIRED_WORTHLESS"
	OutcomeExercised        ExpirationOutcome = "EXERCISED"
	OutcomeAssigned         ExpirationOutcome = "ASSIGNED"
	OutcomeCashSettled      ExpirationOutcome = "CASH_SETTLED"
	OutcomeSkippedNoQuote   ExpirationOutcome = "SKIPPED_NO_QUOTE"
)

// 实值判定阈值：内在价值不超过一美分视为作废，避免毫厘实值触发行权
var itmThreshold = decimal.NewFromFloat(0.01)

// ExpirationEntry 单个到期持仓的处理记录
type ExpirationEntry struct {
	Symbol          string            `json:"symbol"`
	Outcome         ExpirationOutcome `json:"outcome"`
	Quantity        decimal.Decimal   `json:"quantity"`
	UnderlyingPrice decimal.Decimal   `json:"underlying_price"`
	CashEffect      decimal.Decimal   `json:"cash_effect"`
	RealizedPnL     decimal.Decimal   `json:"realized_pnl"`
	MarginCall      bool              `json:"margin_call,omitempty"`
}

// ExpirationReport 一次到期批处理的全量记录
type ExpirationReport struct {
	AccountID   string            `json:"account_id"`
	AsOf        time.Time         `json:"as_of"`
	Entries     []ExpirationEntry `json:"entries"`
	MarginCall  bool              `json:"margin_call"`
	ProcessedAt time.Time         `json:"processed_at"`
}

// ExpirationEngine 到期引擎。与执行引擎共用账户的 ApplyFill 原语，
// 行权/被指派产生的股票变动与普通成交走同一条落账路径。
type ExpirationEngine struct {
	quotes assetdomain.QuoteSource
}

func NewExpirationEngine(quotes assetdomain.QuoteSource) *ExpirationEngine {
	return &ExpirationEngine{quotes: quotes}
}

// ProcessExpirations 处理账户内所有到期日不晚于 asOf 的期权持仓。
// 虚值作废，实值（内在价值 > $0.01）多头行权、空头被指派，
// 均按行权价对股票落账。对同一账户同一日期重复调用幂等：
// 首轮处理后已无到期持仓。
func (e *ExpirationEngine) ProcessExpirations(ctx context.Context, account *accountdomain.Account, asOf time.Time) (*ExpirationReport, error) {
	report := &ExpirationReport{
		AccountID:   account.AccountID,
		AsOf:        asOf,
		ProcessedAt: time.Now(),
	}

	var expired []*accountdomain.Position
	for _, p := range account.Positions {
		if p.Asset.IsOption() && p.Asset.DaysToExpiration(asOf) <= 0 {
			expired = append(expired, p)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].Symbol < expired[j].Symbol })

	for _, pos := range expired {
		entry, err := e.resolvePosition(ctx, account, pos, asOf)
		if err != nil {
			return nil, err
		}
		if entry.MarginCall {
			report.MarginCall = true
		}
		report.Entries = append(report.Entries, entry)
	}
	return report, nil
}

func (e *ExpirationEngine) resolvePosition(ctx context.Context, account *accountdomain.Account, pos *accountdomain.Position, asOf time.Time) (ExpirationEntry, error) {
	a := pos.Asset
	entry := ExpirationEntry{Symbol: pos.Symbol, Quantity: pos.Quantity}

	stock, err := assetdomain.NewStock(a.Underlying)
	if err != nil {
		return entry, err
	}
	uq, err := e.quotes.GetQuote(ctx, stock)
	if err != nil {
		return entry, err
	}
	if uq == nil || !uq.Price.IsPositive() {
		entry.Outcome = OutcomeSkippedNoQuote
		return entry, nil
	}
	spot := uq.Price
	entry.UnderlyingPrice = spot

	contracts := pos.Quantity.Abs()
	intrinsic := a.IntrinsicValue(spot)

	// 虚值（或毫厘实值）作废：按零价平仓清空持仓
	if intrinsic.LessThanOrEqual(itmThreshold) {
		fill, err := account.ApplyFill(a, closeIntent(pos), contracts, decimal.Zero, asOf)
		if err != nil {
			return entry, err
		}
		entry.Outcome = OutcomeExpiredWorthless
		entry.CashEffect = fill.CashDelta
		entry.RealizedPnL = fill.RealizedPnL
		return entry, nil
	}

	shares := contracts.Mul(decimal.NewFromInt(assetdomain.OptionMultiplier))

	var fills []fillSpec
	outcome := OutcomeExercised
	if pos.IsLong() {
		if a.OptionType == assetdomain.OptionTypeCall {
			// 多头 call 行权：按行权价买入股票
			fills = []fillSpec{
				{a, orderdomain.SellToClose, contracts, decimal.Zero},
				{stock, orderdomain.BuyToOpen, shares, a.Strike},
			}
		} else {
			// 多头 put 行权：先卖出持有股票，不足部分开空头
			fills = append(fills, fillSpec{a, orderdomain.SellToClose, contracts, decimal.Zero})
			fills = append(fills, deliverShares(account, stock, shares, a.Strike)...)
		}
	} else {
		outcome = OutcomeAssigned
		if a.OptionType == assetdomain.OptionTypeCall {
			// 空头 call 被指派：交付股票，裸卖部分形成空头并触发保证金告警
			fills = append(fills, fillSpec{a, orderdomain.BuyToClose, contracts, decimal.Zero})
			fills = append(fills, deliverShares(account, stock, shares, a.Strike)...)
		} else {
			// 空头 put 被指派：按行权价接货
			fills = []fillSpec{
				{a, orderdomain.BuyToClose, contracts, decimal.Zero},
				{stock, orderdomain.BuyToOpen, shares, a.Strike},
			}
		}
	}

	results, err := applyAtomic(account, fills, asOf)
	if errors.Is(err, accountdomain.ErrInsufficientFunds) {
		// 现金不足以交割股票时退化为现金结算：按内在价值平掉期权
		results, err = applyAtomic(account, []fillSpec{
			{a, closeIntent(pos), contracts, intrinsic},
		}, asOf)
		outcome = OutcomeCashSettled
	}
	if err != nil {
		return entry, fmt.Errorf("expiration of %s: %w", pos.Symbol, err)
	}

	entry.Outcome = outcome
	for _, f := range results {
		entry.CashEffect = entry.CashEffect.Add(f.CashDelta)
		entry.RealizedPnL = entry.RealizedPnL.Add(f.RealizedPnL)
	}
	// 行权/被指派产生裸空头股票即触发保证金告警
	if outcome != OutcomeCashSettled {
		if sp := account.Position(stock.Symbol); sp != nil && sp.IsShort() {
			entry.MarginCall = true
		}
	}
	return entry, nil
}

// fillSpec 到期处理中的一步落账
type fillSpec struct {
	asset    assetdomain.Asset
	intent   orderdomain.OrderIntent
	quantity decimal.Decimal
	price    decimal.Decimal
}

// applyAtomic 在账户副本上按序落账，全部成功后整体替换，
// 任一步失败则不产生任何变更。
func applyAtomic(account *accountdomain.Account, fills []fillSpec, at time.Time) ([]*accountdomain.FillResult, error) {
	scratch := account.Clone()
	results := make([]*accountdomain.FillResult, 0, len(fills))
	for _, f := range fills {
		r, err := scratch.ApplyFill(f.asset, f.intent, f.quantity, f.price, at)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	account.Restore(scratch)
	return results, nil
}

// deliverShares 以行权价交付股票：优先平掉持有多头，
// 不足部分以卖出开仓形成空头。
func deliverShares(account *accountdomain.Account, stock assetdomain.Asset, shares, strike decimal.Decimal) []fillSpec {
	var fills []fillSpec
	remaining := shares
	if sp := account.Position(stock.Symbol); sp != nil && sp.IsLong() {
		closable := decimal.Min(sp.Quantity, remaining)
		if closable.IsPositive() {
			fills = append(fills, fillSpec{stock, orderdomain.SellToClose, closable, strike})
			remaining = remaining.Sub(closable)
		}
	}
	if remaining.IsPositive() {
		fills = append(fills, fillSpec{stock, orderdomain.SellToOpen, remaining, strike})
	}
	return fills
}

func closeIntent(pos *accountdomain.Position) orderdomain.OrderIntent {
	if pos.IsLong() {
		return orderdomain.SellToClose
	}
	return orderdomain.BuyToClose
}
