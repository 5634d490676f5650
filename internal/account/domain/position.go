package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
)

// Position 单一资产在单一账户内的持仓。
// Quantity 带符号：正为多头，负为空头。
// 成本采用单一摊薄均价：同向加仓重算均价，平仓不改变均价。
type Position struct {
	// 规范资产符号
	Symbol string `json:"symbol"`
	// 资产（由符号解析，携带乘数与到期信息）
	Asset assetdomain.Asset `json:"asset"`
	// 带符号数量
	Quantity decimal.Decimal `json:"quantity"`
	// 单位成本均价
	AveragePrice decimal.Decimal `json:"average_price"`
	// 最新标记价（可能缺失）
	CurrentPrice *decimal.Decimal `json:"current_price,omitempty"`
	// 累计已实现盈亏
	RealizedPnL decimal.Decimal `json:"realized_pnl"`

	OpenedAt  time.Time `json:"opened_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPosition 以首笔开仓成交创建持仓。quantity 带符号。
func NewPosition(a assetdomain.Asset, quantity, fillPrice decimal.Decimal, at time.Time) *Position {
	return &Position{
		Symbol:       a.Symbol,
		Asset:        a,
		Quantity:     quantity,
		AveragePrice: fillPrice,
		RealizedPnL:  decimal.Zero,
		OpenedAt:     at,
		UpdatedAt:    at,
	}
}

// IsLong 是否多头
func (p *Position) IsLong() bool {
	return p.Quantity.IsPositive()
}

// IsShort 是否空头
func (p *Position) IsShort() bool {
	return p.Quantity.IsNegative()
}

// Multiplier 合约乘数
func (p *Position) Multiplier() decimal.Decimal {
	return p.Asset.Multiplier()
}

// ApplyOpen 同向加仓：摊薄均价。positionDelta 带符号，必须与现有方向一致。
func (p *Position) ApplyOpen(positionDelta, fillPrice decimal.Decimal, at time.Time) error {
	if p.Quantity.Sign() != 0 && p.Quantity.Sign() != positionDelta.Sign() {
		return fmt.Errorf("%w: %s position %s, delta %s", ErrIntentMismatch, p.Symbol, p.Quantity, positionDelta)
	}
	oldAbs := p.Quantity.Abs()
	addAbs := positionDelta.Abs()
	totalCost := oldAbs.Mul(p.AveragePrice).Add(addAbs.Mul(fillPrice))
	p.Quantity = p.Quantity.Add(positionDelta)
	p.AveragePrice = totalCost.Div(p.Quantity.Abs())
	p.UpdatedAt = at
	return nil
}

// ApplyClose 反向平仓。positionDelta 带符号且与现有方向相反；
// 绝对值不得超过现有持仓（上层与此处双重校验）。
// 已实现盈亏 = (成交价 − 均价) × (−positionDelta) × 乘数；均价不变。
func (p *Position) ApplyClose(positionDelta, fillPrice decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	if p.Quantity.IsZero() || p.Quantity.Sign() == positionDelta.Sign() {
		return decimal.Zero, fmt.Errorf("%w: %s position %s, delta %s", ErrIntentMismatch, p.Symbol, p.Quantity, positionDelta)
	}
	if positionDelta.Abs().GreaterThan(p.Quantity.Abs()) {
		return decimal.Zero, fmt.Errorf("%w: %s close %s exceeds held %s",
			ErrInsufficientPosition, p.Symbol, positionDelta.Abs(), p.Quantity.Abs())
	}
	realized := fillPrice.Sub(p.AveragePrice).Mul(positionDelta.Neg()).Mul(p.Multiplier())
	p.Quantity = p.Quantity.Add(positionDelta)
	p.RealizedPnL = p.RealizedPnL.Add(realized)
	p.UpdatedAt = at
	return realized, nil
}

// MarkPrice 更新标记价
func (p *Position) MarkPrice(price decimal.Decimal) {
	p.CurrentPrice = &price
}

// UnrealizedPnL 未实现盈亏 = (标记价 − 均价) × 数量 × 乘数；无标记价时为 0
func (p *Position) UnrealizedPnL() decimal.Decimal {
	if p.CurrentPrice == nil {
		return decimal.Zero
	}
	return p.CurrentPrice.Sub(p.AveragePrice).Mul(p.Quantity).Mul(p.Multiplier())
}

// MarketValue 按标记价的市值（带符号）
func (p *Position) MarketValue() decimal.Decimal {
	if p.CurrentPrice == nil {
		return decimal.Zero
	}
	return p.CurrentPrice.Mul(p.Quantity).Mul(p.Multiplier())
}

// Clone 深拷贝，用于多腿订单的全有或全无提交
func (p *Position) Clone() *Position {
	cp := *p
	if p.CurrentPrice != nil {
		price := *p.CurrentPrice
		cp.CurrentPrice = &price
	}
	return &cp
}
