package application

import (
	"time"

	"github.com/shopspring/decimal"

	accountdomain "github.com/wyfcoding/optionstrading/internal/account/domain"
	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
	executiondomain "github.com/wyfcoding/optionstrading/internal/execution/domain"
	margindomain "github.com/wyfcoding/optionstrading/internal/margin/domain"
	orderdomain "github.com/wyfcoding/optionstrading/internal/order/domain"
	strategydomain "github.com/wyfcoding/optionstrading/internal/strategy/domain"
)

// OpenAccountCmd 开户命令
type OpenAccountCmd struct {
	Owner       string          `json:"owner" binding:"required"`
	InitialCash decimal.Decimal `json:"initial_cash"`
}

// CashCmd 出入金命令
type CashCmd struct {
	AccountID string          `json:"account_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
}

// SubmitOrderCmd 单腿下单命令
type SubmitOrderCmd struct {
	AccountID  string                     `json:"account_id" binding:"required"`
	Symbol     string                     `json:"symbol" binding:"required"`
	Intent     orderdomain.OrderIntent    `json:"intent" binding:"required"`
	Quantity   decimal.Decimal            `json:"quantity" binding:"required"`
	Condition  orderdomain.OrderCondition `json:"condition"`
	LimitPrice *decimal.Decimal           `json:"limit_price,omitempty"`
}

// LegCmd 多腿订单的单腿
type LegCmd struct {
	Symbol   string                  `json:"symbol" binding:"required"`
	Intent   orderdomain.OrderIntent `json:"intent" binding:"required"`
	Quantity decimal.Decimal         `json:"quantity" binding:"required"`
}

// SubmitMultiLegCmd 多腿下单命令
type SubmitMultiLegCmd struct {
	AccountID     string           `json:"account_id" binding:"required"`
	Legs          []LegCmd         `json:"legs" binding:"required"`
	NetLimitPrice *decimal.Decimal `json:"net_limit_price,omitempty"`
	Strategy      string           `json:"strategy,omitempty"`
}

// OrderResult 下单结果
type OrderResult struct {
	OrderID      string                  `json:"order_id"`
	Status       orderdomain.OrderStatus `json:"status"`
	FilledPrice  decimal.Decimal         `json:"filled_price,omitempty"`
	CashDelta    decimal.Decimal         `json:"cash_delta,omitempty"`
	RealizedPnL  decimal.Decimal         `json:"realized_pnl,omitempty"`
	RejectReason string                  `json:"reject_reason,omitempty"`
}

// MultiLegResult 多腿下单结果
type MultiLegResult struct {
	MultiLegID string                  `json:"multi_leg_id"`
	Status     orderdomain.OrderStatus `json:"status"`
	Legs       []OrderResult           `json:"legs"`
}

// PositionView 持仓视图
type PositionView struct {
	Symbol        string           `json:"symbol"`
	Quantity      decimal.Decimal  `json:"quantity"`
	AveragePrice  decimal.Decimal  `json:"average_price"`
	MarkPrice     *decimal.Decimal `json:"mark_price,omitempty"`
	MarketValue   decimal.Decimal  `json:"market_value"`
	UnrealizedPnL decimal.Decimal  `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal  `json:"realized_pnl"`
}

// PortfolioView 组合报告：持仓盯市、希腊字母汇总、策略识别与保证金
type PortfolioView struct {
	AccountID     string                    `json:"account_id"`
	Owner         string                    `json:"owner"`
	CashBalance   decimal.Decimal           `json:"cash_balance"`
	Equity        decimal.Decimal           `json:"equity"`
	Positions     []PositionView            `json:"positions"`
	GreeksTotal   assetdomain.OptionGreeks  `json:"greeks_total"`
	GreeksSkipped int                       `json:"greeks_skipped"`
	Strategies    []strategydomain.Strategy `json:"strategies"`
	Margin        *margindomain.Result      `json:"margin,omitempty"`
	MarginCall    bool                      `json:"margin_call"`
	MarginDeficit decimal.Decimal           `json:"margin_deficit"`
	AsOf          time.Time                 `json:"as_of"`
}

// ExpirationView 到期批处理结果
type ExpirationView = executiondomain.ExpirationReport

func orderResult(o *orderdomain.Order, fill *accountdomain.FillResult) *OrderResult {
	r := &OrderResult{
		OrderID:      o.OrderID,
		Status:       o.Status,
		RejectReason: o.RejectReason,
	}
	if fill != nil {
		r.FilledPrice = fill.FillPrice
		r.CashDelta = fill.CashDelta
		r.RealizedPnL = fill.RealizedPnL
	}
	return r
}
