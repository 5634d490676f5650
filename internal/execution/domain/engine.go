package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	accountdomain "github.com/wyfcoding/optionstrading/internal/account/domain"
	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
	orderdomain "github.com/wyfcoding/optionstrading/internal/order/domain"
)

var (
	ErrOrderRejected = errors.New("order rejected")
)

// Engine 执行引擎。以行情快照推定成交价，通过账户聚合的
// ApplyFill 原语落账。引擎本身无状态，账户并发控制在应用层。
type Engine struct {
	quotes    assetdomain.QuoteSource
	estimator PriceEstimator
	validator *Validator
}

func NewEngine(quotes assetdomain.QuoteSource, estimator PriceEstimator) *Engine {
	return &Engine{
		quotes:    quotes,
		estimator: estimator,
		validator: NewValidator(),
	}
}

// ResolveAsset 由规范符号还原资产：先按 OSI 期权符号解析，
// 失败则视为股票代码。
func ResolveAsset(symbol string) (assetdomain.Asset, error) {
	if a, err := assetdomain.ParseOptionSymbol(symbol); err == nil {
		return a, nil
	}
	return assetdomain.NewStock(symbol)
}

// ExecuteOrder 执行单腿订单。
// 校验失败订单转为 REJECTED 并返回 ErrOrderRejected；
// 限价/止损未触及市场时订单保持 PENDING，返回 (nil, nil)；
// 成交时订单转为 FILLED 并返回账本影响。
func (e *Engine) ExecuteOrder(ctx context.Context, account *accountdomain.Account, order *orderdomain.Order) (*accountdomain.FillResult, error) {
	asset, err := ResolveAsset(order.Symbol)
	if err != nil {
		order.Reject(err.Error())
		return nil, fmt.Errorf("%w: %v", ErrOrderRejected, err)
	}

	now := time.Now()
	quote, underlyingMark, err := e.snapshot(ctx, asset)
	if err != nil {
		return nil, err
	}

	var estimated decimal.Decimal
	if quote != nil {
		if p, err := e.estimator.Estimate(quote, order.Intent); err == nil {
			estimated = p
		}
	}

	vctx := ValidationContext{
		Account:        account,
		Order:          order,
		Asset:          asset,
		Quote:          quote,
		UnderlyingMark: underlyingMark,
		EstimatedPrice: estimated,
		AsOf:           now,
	}
	if result := e.validator.Validate(vctx); !result.Valid() {
		order.Reject(result.Reason())
		return nil, fmt.Errorf("%w: %s", ErrOrderRejected, result.Reason())
	}

	fillPrice, marketable := e.resolveFillPrice(order, quote, estimated)
	if !marketable {
		// 限价未穿越/止损未触发，挂单等待下一轮行情
		return nil, nil
	}

	// 成交价确定后按实际价复核一次资金与持仓
	vctx.EstimatedPrice = fillPrice
	if result := e.validator.Validate(vctx); !result.Valid() {
		order.Reject(result.Reason())
		return nil, fmt.Errorf("%w: %s", ErrOrderRejected, result.Reason())
	}

	fill, err := account.ApplyFill(asset, order.Intent, order.Quantity, fillPrice, now)
	if err != nil {
		order.Reject(err.Error())
		return nil, fmt.Errorf("%w: %v", ErrOrderRejected, err)
	}
	if err := order.Fill(fillPrice, now); err != nil {
		return nil, err
	}
	return fill, nil
}

// ExecuteMultiLeg 全有或全无地执行多腿订单：在账户副本上逐腿落账，
// 任一腿失败则丢弃副本，所有腿标记拒绝；全部成功后整体替换账户状态。
func (e *Engine) ExecuteMultiLeg(ctx context.Context, account *accountdomain.Account, legs []*orderdomain.Order, netLimit *decimal.Decimal) ([]*accountdomain.FillResult, error) {
	if len(legs) == 0 {
		return nil, orderdomain.ErrEmptyLegs
	}

	if netLimit != nil {
		if err := e.checkNetLimit(ctx, legs, *netLimit); err != nil {
			for _, leg := range legs {
				leg.Reject(err.Error())
			}
			return nil, fmt.Errorf("%w: %v", ErrOrderRejected, err)
		}
	}

	scratch := account.Clone()
	fills := make([]*accountdomain.FillResult, 0, len(legs))
	for _, leg := range legs {
		fill, err := e.ExecuteOrder(ctx, scratch, leg)
		if err != nil {
			reason := fmt.Sprintf("leg %s failed: %v", leg.OrderID, err)
			e.rejectLegs(legs, reason)
			return nil, fmt.Errorf("%w: %s", ErrOrderRejected, reason)
		}
		if fill == nil {
			// 多腿订单不支持挂单：任一腿不可立即成交即整体拒绝
			reason := fmt.Sprintf("leg %s not immediately marketable", leg.OrderID)
			e.rejectLegs(legs, reason)
			return nil, fmt.Errorf("%w: %s", ErrOrderRejected, reason)
		}
		fills = append(fills, fill)
	}

	account.Restore(scratch)
	return fills, nil
}

// rejectLegs 多腿失败时统一拒绝。在副本上已成交的腿随副本一起作废，
// 其状态同样改写为拒绝；已带具体拒因的腿保留原拒因。
func (e *Engine) rejectLegs(legs []*orderdomain.Order, reason string) {
	for _, l := range legs {
		if l.Status != orderdomain.OrderStatusRejected {
			l.Reject(reason)
		}
	}
}

// checkNetLimit 组合净价校验：Σ 各腿方向价 × 数量比，借方为正。
// 实际净成本劣于净限价则拒绝。
func (e *Engine) checkNetLimit(ctx context.Context, legs []*orderdomain.Order, netLimit decimal.Decimal) error {
	net := decimal.Zero
	base := legs[0].Quantity
	for _, leg := range legs {
		asset, err := ResolveAsset(leg.Symbol)
		if err != nil {
			return err
		}
		quote, _, err := e.snapshot(ctx, asset)
		if err != nil {
			return err
		}
		if quote == nil {
			return fmt.Errorf("%w: %s", assetdomain.ErrQuoteUnavailable, leg.Symbol)
		}
		price, err := e.estimator.Estimate(quote, leg.Intent)
		if err != nil {
			return err
		}
		ratio := leg.Quantity.Div(base)
		if leg.Intent.IsBuy() {
			net = net.Add(price.Mul(ratio))
		} else {
			net = net.Sub(price.Mul(ratio))
		}
	}
	if net.GreaterThan(netLimit) {
		return fmt.Errorf("net price %s worse than limit %s", net, netLimit)
	}
	return nil
}

// resolveFillPrice 按订单条件推定成交价。
// 市价单直接用估计价；限价单在市场穿越限价时按限价成交，
// 不做价格改善（对交易者不利侧的统一成交模型）；
// 止损单在最新价穿越止损价后按市价成交。
func (e *Engine) resolveFillPrice(order *orderdomain.Order, quote *assetdomain.Quote, estimated decimal.Decimal) (decimal.Decimal, bool) {
	switch order.Condition {
	case orderdomain.ConditionMarket:
		return estimated, estimated.IsPositive()

	case orderdomain.ConditionLimit:
		limit := *order.LimitPrice
		if order.Intent.IsBuy() {
			if estimated.IsPositive() && estimated.LessThanOrEqual(limit) {
				return limit, true
			}
		} else {
			if estimated.GreaterThanOrEqual(limit) {
				return limit, true
			}
		}
		return decimal.Zero, false

	case orderdomain.ConditionStop:
		stop := *order.LimitPrice
		last := quote.Price
		triggered := (order.Intent.IsBuy() && last.GreaterThanOrEqual(stop)) ||
			(!order.Intent.IsBuy() && last.LessThanOrEqual(stop))
		if triggered {
			return estimated, estimated.IsPositive()
		}
		return decimal.Zero, false
	}
	return decimal.Zero, false
}

// snapshot 取订单标的行情；期权同时取其标的现价用于行权价理性检查
func (e *Engine) snapshot(ctx context.Context, asset assetdomain.Asset) (*assetdomain.Quote, *decimal.Decimal, error) {
	quote, err := e.quotes.GetQuote(ctx, asset)
	if err != nil {
		return nil, nil, err
	}

	var underlyingMark *decimal.Decimal
	if asset.IsOption() {
		stock, err := assetdomain.NewStock(asset.Underlying)
		if err == nil {
			if uq, err := e.quotes.GetQuote(ctx, stock); err == nil && uq != nil && uq.Price.IsPositive() {
				price := uq.Price
				underlyingMark = &price
			}
		}
	}
	return quote, underlyingMark, nil
}
