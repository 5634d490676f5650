package domain

import "time"

const (
	OrderFilledEventType     = "OrderFilled"
	OrderRejectedEventType   = "OrderRejected"
	PositionClosedEventType  = "PositionClosed"
	OptionExpiredEventType   = "OptionExpired"
	OptionExercisedEventType = "OptionExercised"
	OptionAssignedEventType  = "OptionAssigned"
	MarginCallEventType      = "MarginCall"
)

// OrderFilledEvent 订单成交事件
type OrderFilledEvent struct {
	AccountID   string    `json:"account_id"`
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Intent      string    `json:"intent"`
	Quantity    float64   `json:"quantity"`
	FillPrice   float64   `json:"fill_price"`
	CashDelta   float64   `json:"cash_delta"`
	RealizedPnL float64   `json:"realized_pnl"`
	OccurredOn  time.Time `json:"occurred_on"`
}

// PositionClosedEvent 持仓归零事件
type PositionClosedEvent struct {
	AccountID   string    `json:"account_id"`
	Symbol      string    `json:"symbol"`
	RealizedPnL float64   `json:"realized_pnl"`
	OccurredOn  time.Time `json:"occurred_on"`
}

// OptionResolvedEvent 期权到期处理事件（行权/被指派/作废）
type OptionResolvedEvent struct {
	AccountID  string    `json:"account_id"`
	Symbol     string    `json:"symbol"`
	Outcome    string    `json:"outcome"`
	Quantity   float64   `json:"quantity"`
	CashEffect float64   `json:"cash_effect"`
	OccurredOn time.Time `json:"occurred_on"`
}

// MarginCallEvent 维持保证金不足事件（仅告警，不触发强平）
type MarginCallEvent struct {
	AccountID      string    `json:"account_id"`
	RequiredMargin float64   `json:"required_margin"`
	Equity         float64   `json:"equity"`
	Deficiency     float64   `json:"deficiency"`
	OccurredOn     time.Time `json:"occurred_on"`
}

// EventPublisher 即时告警事件端口。随账本变更产生的事件不走此端口，
// 由聚合的 Record 缓存并随 Save 在同一事务内写入发件箱；
// 与聚合状态无关的告警（保证金不足）直接发布，失败不阻断成交。
type EventPublisher interface {
	PublishMarginCall(event MarginCallEvent) error
}
