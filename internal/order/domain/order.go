// Package domain 订单领域模型：单腿与多腿期权/股票订单。
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidIntent      = errors.New("invalid order intent")
	ErrInvalidQuantity    = errors.New("order quantity must be positive")
	ErrOrderAlreadyFilled = errors.New("order already filled")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotPending    = errors.New("order is not pending")
	ErrEmptyLegs          = errors.New("multi-leg order has no legs")
)

// OrderIntent 订单意图。开/平方向由意图唯一决定，调用方不传符号。
type OrderIntent string

const (
	BuyToOpen   OrderIntent = "BUY_TO_OPEN"
	SellToOpen  OrderIntent = "SELL_TO_OPEN"
	BuyToClose  OrderIntent = "BUY_TO_CLOSE"
	SellToClose OrderIntent = "SELL_TO_CLOSE"
)

// IsOpening 是否开仓意图
func (i OrderIntent) IsOpening() bool {
	return i == BuyToOpen || i == SellToOpen
}

// IsClosing 是否平仓意图
func (i OrderIntent) IsClosing() bool {
	return i == BuyToClose || i == SellToClose
}

// IsBuy 是否买入方向（现金流出）
func (i OrderIntent) IsBuy() bool {
	return i == BuyToOpen || i == BuyToClose
}

// Valid 意图是否合法
func (i OrderIntent) Valid() bool {
	switch i {
	case BuyToOpen, SellToOpen, BuyToClose, SellToClose:
		return true
	}
	return false
}

// SignedDelta 由订单意图推导持仓与现金的符号方向。
// 这是执行引擎与到期引擎共用的唯一符号修正点。
// 返回 (持仓增量, 现金符号)：买入现金为 -1，卖出为 +1。
func SignedDelta(intent OrderIntent, quantity decimal.Decimal) (positionDelta decimal.Decimal, cashSign decimal.Decimal, err error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidQuantity, quantity)
	}
	one := decimal.NewFromInt(1)
	negOne := decimal.NewFromInt(-1)
	switch intent {
	case BuyToOpen:
		return quantity, negOne, nil
	case SellToOpen:
		return quantity.Neg(), one, nil
	case BuyToClose:
		return quantity, negOne, nil
	case SellToClose:
		return quantity.Neg(), one, nil
	default:
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidIntent, intent)
	}
}

// OrderCondition 执行条件
type OrderCondition string

const (
	ConditionMarket OrderCondition = "MARKET"
	ConditionLimit  OrderCondition = "LIMIT"
	ConditionStop   OrderCondition = "STOP"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// Order 订单实体。Quantity 在模式边界恒为正，符号由 Intent 推导。
type Order struct {
	gorm.Model
	// 订单 ID (业务主键)
	OrderID string `gorm:"column:order_id;type:varchar(32);uniqueIndex;not null" json:"order_id"`
	// 账户 ID
	AccountID string `gorm:"column:account_id;type:varchar(32);index;not null" json:"account_id"`
	// 规范资产符号（期权为 OSI 编码）
	Symbol string `gorm:"column:symbol;type:varchar(32);index;not null" json:"symbol"`
	// 订单意图
	Intent OrderIntent `gorm:"column:intent;type:varchar(16);not null" json:"intent"`
	// 数量（张/股，恒为正）
	Quantity decimal.Decimal `gorm:"column:quantity;type:decimal(20,8);not null" json:"quantity"`
	// 限价（市价单为空）
	LimitPrice *decimal.Decimal `gorm:"column:limit_price;type:decimal(20,8)" json:"limit_price,omitempty"`
	// 执行条件
	Condition OrderCondition `gorm:"column:condition;type:varchar(10);not null" json:"condition"`
	// 状态
	Status OrderStatus `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	// 成交价
	FilledPrice decimal.Decimal `gorm:"column:filled_price;type:decimal(20,8)" json:"filled_price"`
	// 成交时间
	FilledAt *time.Time `gorm:"column:filled_at" json:"filled_at,omitempty"`
	// 拒绝原因
	RejectReason string `gorm:"column:reject_reason;type:varchar(255)" json:"reject_reason,omitempty"`
	// 多腿订单 ID（单腿为空）
	MultiLegID string `gorm:"column:multi_leg_id;type:varchar(32);index" json:"multi_leg_id,omitempty"`
}

// NewOrder 创建待成交订单
func NewOrder(orderID, accountID, symbol string, intent OrderIntent, quantity decimal.Decimal, condition OrderCondition, limitPrice *decimal.Decimal) (*Order, error) {
	if !intent.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIntent, intent)
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, quantity)
	}
	if condition == ConditionLimit && limitPrice == nil {
		return nil, fmt.Errorf("%w: limit order without limit price", ErrInvalidIntent)
	}
	return &Order{
		OrderID:    orderID,
		AccountID:  accountID,
		Symbol:     symbol,
		Intent:     intent,
		Quantity:   quantity,
		LimitPrice: limitPrice,
		Condition:  condition,
		Status:     OrderStatusPending,
	}, nil
}

// Fill 标记成交。成交为终态，重复成交报错。
func (o *Order) Fill(price decimal.Decimal, at time.Time) error {
	if o.Status == OrderStatusFilled {
		return fmt.Errorf("%w: order %s", ErrOrderAlreadyFilled, o.OrderID)
	}
	if o.Status != OrderStatusPending {
		return fmt.Errorf("%w: order %s status %s", ErrOrderNotPending, o.OrderID, o.Status)
	}
	o.Status = OrderStatusFilled
	o.FilledPrice = price
	o.FilledAt = &at
	return nil
}

// Cancel 取消待成交订单。已成交订单取消为终态冲突错误。
func (o *Order) Cancel() error {
	switch o.Status {
	case OrderStatusPending:
		o.Status = OrderStatusCancelled
		return nil
	case OrderStatusFilled:
		return fmt.Errorf("%w: order %s", ErrOrderAlreadyFilled, o.OrderID)
	default:
		return fmt.Errorf("%w: order %s status %s", ErrOrderNotPending, o.OrderID, o.Status)
	}
}

// Reject 标记拒绝并记录原因
func (o *Order) Reject(reason string) {
	o.Status = OrderStatusRejected
	o.RejectReason = reason
}

// IsTerminal 是否终态
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusFilled || o.Status == OrderStatusCancelled || o.Status == OrderStatusRejected
}

// OrderLeg 多腿订单的单腿
type OrderLeg struct {
	Symbol   string          `json:"symbol"`
	Intent   OrderIntent     `json:"intent"`
	Quantity decimal.Decimal `json:"quantity"`
	// Ratio 相对最小单位的腿比例（如 1:2:1 蝶式）
	Ratio int `json:"ratio"`
}

// MultiLegOrder 多腿组合订单。所有腿在一个事务内全部成交或全部不成交。
type MultiLegOrder struct {
	OrderID   string     `json:"order_id"`
	AccountID string     `json:"account_id"`
	Legs      []OrderLeg `json:"legs"`
	// NetLimitPrice 组合净限价（借方为正，贷方为负），为空按各腿市价
	NetLimitPrice *decimal.Decimal `json:"net_limit_price,omitempty"`
	// Strategy 调用方声明的策略类型，用于腿一致性校验
	Strategy  string      `json:"strategy,omitempty"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewMultiLegOrder 创建多腿订单
func NewMultiLegOrder(orderID, accountID string, legs []OrderLeg, netLimitPrice *decimal.Decimal, strategy string) (*MultiLegOrder, error) {
	if len(legs) == 0 {
		return nil, ErrEmptyLegs
	}
	for i, leg := range legs {
		if !leg.Intent.Valid() {
			return nil, fmt.Errorf("%w: leg %d intent %q", ErrInvalidIntent, i, leg.Intent)
		}
		if leg.Quantity.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: leg %d quantity %s", ErrInvalidQuantity, i, leg.Quantity)
		}
		if leg.Ratio <= 0 {
			return nil, fmt.Errorf("%w: leg %d ratio %d", ErrInvalidQuantity, i, leg.Ratio)
		}
	}
	return &MultiLegOrder{
		OrderID:       orderID,
		AccountID:     accountID,
		Legs:          legs,
		NetLimitPrice: netLimitPrice,
		Strategy:      strategy,
		Status:        OrderStatusPending,
		CreatedAt:     time.Now(),
	}, nil
}
