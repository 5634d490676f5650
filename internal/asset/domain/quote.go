package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrCrossedQuote     = errors.New("crossed quote")
)

// OptionGreeks 期权希腊字母全集（含高阶）
type OptionGreeks struct {
	Delta     decimal.Decimal `json:"delta"`
	Gamma     decimal.Decimal `json:"gamma"`
	Theta     decimal.Decimal `json:"theta"`
	Vega      decimal.Decimal `json:"vega"`
	Rho       decimal.Decimal `json:"rho"`
	Vanna     decimal.Decimal `json:"vanna"`
	Charm     decimal.Decimal `json:"charm"`
	Vomma     decimal.Decimal `json:"vomma"`
	Speed     decimal.Decimal `json:"speed"`
	Zomma     decimal.Decimal `json:"zomma"`
	Color     decimal.Decimal `json:"color"`
	Veta      decimal.Decimal `json:"veta"`
	Ultima    decimal.Decimal `json:"ultima"`
	DualDelta decimal.Decimal `json:"dual_delta"`
}

// Add 逐项相加，用于组合层面的希腊字母汇总
func (g OptionGreeks) Add(other OptionGreeks) OptionGreeks {
	return OptionGreeks{
		Delta:     g.Delta.Add(other.Delta),
		Gamma:     g.Gamma.Add(other.Gamma),
		Theta:     g.Theta.Add(other.Theta),
		Vega:      g.Vega.Add(other.Vega),
		Rho:       g.Rho.Add(other.Rho),
		Vanna:     g.Vanna.Add(other.Vanna),
		Charm:     g.Charm.Add(other.Charm),
		Vomma:     g.Vomma.Add(other.Vomma),
		Speed:     g.Speed.Add(other.Speed),
		Zomma:     g.Zomma.Add(other.Zomma),
		Color:     g.Color.Add(other.Color),
		Veta:      g.Veta.Add(other.Veta),
		Ultima:    g.Ultima.Add(other.Ultima),
		DualDelta: g.DualDelta.Add(other.DualDelta),
	}
}

// Multiply 逐项乘以系数（持仓数量、合约乘数）
func (g OptionGreeks) Multiply(factor decimal.Decimal) OptionGreeks {
	return OptionGreeks{
		Delta:     g.Delta.Mul(factor),
		Gamma:     g.Gamma.Mul(factor),
		Theta:     g.Theta.Mul(factor),
		Vega:      g.Vega.Mul(factor),
		Rho:       g.Rho.Mul(factor),
		Vanna:     g.Vanna.Mul(factor),
		Charm:     g.Charm.Mul(factor),
		Vomma:     g.Vomma.Mul(factor),
		Speed:     g.Speed.Mul(factor),
		Zomma:     g.Zomma.Mul(factor),
		Color:     g.Color.Mul(factor),
		Veta:      g.Veta.Mul(factor),
		Ultima:    g.Ultima.Mul(factor),
		DualDelta: g.DualDelta.Mul(factor),
	}
}

// OptionQuoteData 期权行情扩展字段
type OptionQuoteData struct {
	ImpliedVolatility decimal.Decimal `json:"implied_volatility"`
	Greeks            OptionGreeks    `json:"greeks"`
	OpenInterest      int64           `json:"open_interest"`
}

// Quote 某一时刻的市场行情快照。
// Option 仅当资产为期权时非空。
type Quote struct {
	Symbol    string           `json:"symbol"`
	Bid       decimal.Decimal  `json:"bid"`
	Ask       decimal.Decimal  `json:"ask"`
	Price     decimal.Decimal  `json:"price"`
	Volume    int64            `json:"volume"`
	Timestamp time.Time        `json:"timestamp"`
	Source    string           `json:"source"`
	Option    *OptionQuoteData `json:"option,omitempty"`
}

// RawQuote 行情源的原始数据，由 NewQuote 按资产变体装配
type RawQuote struct {
	Bid               decimal.Decimal
	Ask               decimal.Decimal
	Last              decimal.Decimal
	Volume            int64
	Timestamp         time.Time
	Source            string
	ImpliedVolatility decimal.Decimal
	Greeks            OptionGreeks
	OpenInterest      int64
}

// NewQuote 行情工厂。按资产变体分派：股票产出普通 Quote，
// 期权附带 Option 扩展。bid/ask 倒挂在此摄入边界校验，其余不做破坏性修正。
func NewQuote(a Asset, raw RawQuote) (*Quote, error) {
	if raw.Bid.IsPositive() && raw.Ask.IsPositive() && raw.Bid.GreaterThan(raw.Ask) {
		return nil, fmt.Errorf("%w: %s bid %s > ask %s", ErrCrossedQuote, a.Symbol, raw.Bid, raw.Ask)
	}

	price := raw.Last
	if price.IsZero() && raw.Bid.IsPositive() && raw.Ask.IsPositive() {
		price = raw.Bid.Add(raw.Ask).Div(decimal.NewFromInt(2))
	}

	q := &Quote{
		Symbol:    a.Symbol,
		Bid:       raw.Bid,
		Ask:       raw.Ask,
		Price:     price,
		Volume:    raw.Volume,
		Timestamp: raw.Timestamp,
		Source:    raw.Source,
	}
	if a.IsOption() {
		q.Option = &OptionQuoteData{
			ImpliedVolatility: raw.ImpliedVolatility,
			Greeks:            raw.Greeks,
			OpenInterest:      raw.OpenInterest,
		}
	}
	return q, nil
}

// Mid 买卖中间价；单边缺失时退化为 Price
func (q *Quote) Mid() decimal.Decimal {
	if q.Bid.IsPositive() && q.Ask.IsPositive() {
		return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
	}
	return q.Price
}

// QuoteSource 行情源端口。实现方自行决定缓存策略，账本核心不缓存。
type QuoteSource interface {
	// GetQuote 获取单个资产的行情；不可用时返回 (nil, nil)
	GetQuote(ctx context.Context, a Asset) (*Quote, error)
	// GetChain 获取某标的的期权链；expiration 为空时返回全部到期日
	GetChain(ctx context.Context, underlying string, expiration *time.Time) ([]*Quote, error)
}
