// Package domain 执行引擎：订单校验、成交定价与到期处理。
package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
	orderdomain "github.com/wyfcoding/optionstrading/internal/order/domain"
)

var (
	ErrNoEstimate = errors.New("cannot estimate fill price from quote")
)

// PriceEstimator 成交价估计策略。模拟盘没有真实对手方，
// 成交价由行情快照推定。
type PriceEstimator interface {
	Estimate(q *assetdomain.Quote, intent orderdomain.OrderIntent) (decimal.Decimal, error)
}

// QuoteSideEstimator 默认策略：按对交易者不利的一侧成交，
// 买单吃卖价，卖单吃买价。单边缺失时退化为最新价。
type QuoteSideEstimator struct{}

func (QuoteSideEstimator) Estimate(q *assetdomain.Quote, intent orderdomain.OrderIntent) (decimal.Decimal, error) {
	if intent.IsBuy() {
		if q.Ask.IsPositive() {
			return q.Ask, nil
		}
	} else {
		if q.Bid.IsPositive() {
			return q.Bid, nil
		}
	}
	if q.Price.IsPositive() {
		return q.Price, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s", ErrNoEstimate, q.Symbol)
}

// MidpointEstimator 按买卖中间价成交
type MidpointEstimator struct{}

func (MidpointEstimator) Estimate(q *assetdomain.Quote, _ orderdomain.OrderIntent) (decimal.Decimal, error) {
	mid := q.Mid()
	if !mid.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoEstimate, q.Symbol)
	}
	return mid, nil
}

// FixedEstimator 固定价成交，用于回放与测试
type FixedEstimator struct {
	Price decimal.Decimal
}

func (e FixedEstimator) Estimate(_ *assetdomain.Quote, _ orderdomain.OrderIntent) (decimal.Decimal, error) {
	if !e.Price.IsPositive() {
		return decimal.Zero, ErrNoEstimate
	}
	return e.Price, nil
}

// SlippageEstimator 在基础估计上叠加固定基点的不利滑点
type SlippageEstimator struct {
	Base PriceEstimator
	Bps  int64
}

func (e SlippageEstimator) Estimate(q *assetdomain.Quote, intent orderdomain.OrderIntent) (decimal.Decimal, error) {
	base, err := e.Base.Estimate(q, intent)
	if err != nil {
		return decimal.Zero, err
	}
	slip := base.Mul(decimal.NewFromInt(e.Bps)).Div(decimal.NewFromInt(10000))
	if intent.IsBuy() {
		return base.Add(slip), nil
	}
	price := base.Sub(slip)
	if price.IsNegative() {
		price = decimal.Zero
	}
	return price, nil
}
