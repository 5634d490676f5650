// Package domain 账户领域模型：现金 + 持仓 + 订单流水的聚合根。
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
	orderdomain "github.com/wyfcoding/optionstrading/internal/order/domain"
)

// Account 聚合根。所有成交与到期处理都通过 ApplyFill 这一个
// 变更原语进行，保证现金与持仓同步更新。
type Account struct {
	// 账户 ID (业务主键)
	AccountID string `json:"account_id"`
	// 所有者
	Owner string `json:"owner"`
	// 现金余额
	CashBalance decimal.Decimal `json:"cash_balance"`
	// 持仓，按规范符号索引。数量归零的持仓即时移除，不保留零行。
	Positions map[string]*Position `json:"positions"`
	// 订单流水（追加写）
	Orders []*orderdomain.Order `json:"orders"`
	// 乐观锁版本号
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 随本轮变更产生、尚未落库的领域事件
	pendingEvents []RecordedEvent
}

// RecordedEvent 待写入发件箱的领域事件
type RecordedEvent struct {
	Type    string
	Payload any
}

// Record 缓存领域事件。事件随下一次 Save 与聚合状态在同一事务内
// 写入发件箱，账本变更与事件发布不会只成功一半。
func (a *Account) Record(eventType string, payload any) {
	a.pendingEvents = append(a.pendingEvents, RecordedEvent{Type: eventType, Payload: payload})
}

// PendingEvents 尚未落库的领域事件
func (a *Account) PendingEvents() []RecordedEvent {
	return a.pendingEvents
}

// ClearEvents 事件随聚合落库后清空缓存
func (a *Account) ClearEvents() {
	a.pendingEvents = nil
}

// NewAccount 以初始现金开户
func NewAccount(accountID, owner string, initialCash decimal.Decimal) (*Account, error) {
	if initialCash.IsNegative() {
		return nil, fmt.Errorf("%w: initial cash %s", ErrInvalidAmount, initialCash)
	}
	now := time.Now()
	return &Account{
		AccountID:   accountID,
		Owner:       owner,
		CashBalance: initialCash,
		Positions:   make(map[string]*Position),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Deposit 入金
func (a *Account) Deposit(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: deposit %s", ErrInvalidAmount, amount)
	}
	a.CashBalance = a.CashBalance.Add(amount)
	a.UpdatedAt = time.Now()
	return nil
}

// Withdraw 出金。余额不足拒绝。
func (a *Account) Withdraw(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: withdraw %s", ErrInvalidAmount, amount)
	}
	if a.CashBalance.LessThan(amount) {
		return fmt.Errorf("%w: withdraw %s, cash %s", ErrInsufficientFunds, amount, a.CashBalance)
	}
	a.CashBalance = a.CashBalance.Sub(amount)
	a.UpdatedAt = time.Now()
	return nil
}

// Position 按规范符号取持仓；不存在返回 nil
func (a *Account) Position(symbol string) *Position {
	return a.Positions[symbol]
}

// FillResult 单笔成交对账本的影响
type FillResult struct {
	Symbol         string                  `json:"symbol"`
	Intent         orderdomain.OrderIntent `json:"intent"`
	Quantity       decimal.Decimal         `json:"quantity"`
	FillPrice      decimal.Decimal         `json:"fill_price"`
	CashDelta      decimal.Decimal         `json:"cash_delta"`
	RealizedPnL    decimal.Decimal         `json:"realized_pnl"`
	PositionClosed bool                    `json:"position_closed"`
}

// ApplyFill 账本变更原语：按订单意图将一笔成交落入持仓与现金。
// 失败时不产生任何部分变更（先校验与计算，后落账）。
// 执行引擎与到期引擎共用此原语。
func (a *Account) ApplyFill(asset assetdomain.Asset, intent orderdomain.OrderIntent, quantity, fillPrice decimal.Decimal, at time.Time) (*FillResult, error) {
	positionDelta, cashSign, err := orderdomain.SignedDelta(intent, quantity)
	if err != nil {
		return nil, err
	}
	if fillPrice.IsNegative() {
		return nil, fmt.Errorf("%w: fill price %s", ErrInvalidAmount, fillPrice)
	}

	cashDelta := fillPrice.Mul(quantity).Mul(asset.Multiplier()).Mul(cashSign)
	newCash := a.CashBalance.Add(cashDelta)
	if newCash.IsNegative() {
		return nil, fmt.Errorf("%w: %s %s %s needs %s, cash %s",
			ErrInsufficientFunds, intent, quantity, asset.Symbol, cashDelta.Neg(), a.CashBalance)
	}

	existing := a.Positions[asset.Symbol]
	result := &FillResult{
		Symbol:    asset.Symbol,
		Intent:    intent,
		Quantity:  quantity,
		FillPrice: fillPrice,
		CashDelta: cashDelta,
	}

	switch {
	case intent.IsOpening():
		if existing == nil {
			a.Positions[asset.Symbol] = NewPosition(asset, positionDelta, fillPrice, at)
		} else {
			if err := existing.ApplyOpen(positionDelta, fillPrice, at); err != nil {
				return nil, err
			}
		}
	case intent.IsClosing():
		if existing == nil {
			return nil, fmt.Errorf("%w: %s close %s with no position",
				ErrInsufficientPosition, asset.Symbol, quantity)
		}
		realized, err := existing.ApplyClose(positionDelta, fillPrice, at)
		if err != nil {
			return nil, err
		}
		result.RealizedPnL = realized
		if existing.Quantity.IsZero() {
			delete(a.Positions, asset.Symbol)
			result.PositionClosed = true
		}
	default:
		return nil, fmt.Errorf("%w: %q", orderdomain.ErrInvalidIntent, intent)
	}

	a.CashBalance = newCash
	a.UpdatedAt = at
	return result, nil
}

// AppendOrder 追加订单流水
func (a *Account) AppendOrder(o *orderdomain.Order) {
	a.Orders = append(a.Orders, o)
}

// FindOrder 按订单 ID 查找
func (a *Account) FindOrder(orderID string) *orderdomain.Order {
	for _, o := range a.Orders {
		if o.OrderID == orderID {
			return o
		}
	}
	return nil
}

// Clone 深拷贝聚合，用于多腿订单的全有或全无提交：
// 在副本上逐腿落账，全部成功后整体替换。
func (a *Account) Clone() *Account {
	cp := *a
	cp.Positions = make(map[string]*Position, len(a.Positions))
	for sym, p := range a.Positions {
		cp.Positions[sym] = p.Clone()
	}
	cp.Orders = make([]*orderdomain.Order, len(a.Orders))
	copy(cp.Orders, a.Orders)
	cp.pendingEvents = append([]RecordedEvent(nil), a.pendingEvents...)
	return &cp
}

// Restore 以副本内容整体替换自身状态（多腿提交成功后调用）
func (a *Account) Restore(from *Account) {
	a.CashBalance = from.CashBalance
	a.Positions = from.Positions
	a.Orders = from.Orders
	a.UpdatedAt = from.UpdatedAt
}

// AccountRepository 账户仓储端口。单账户操作串行化：
// 同一聚合的读-改-写窗口由版本号乐观锁保护，冲突返回 ErrVersionConflict。
type AccountRepository interface {
	// Save 在单个事务内持久化现金、持仓、订单流水与待发领域事件
	Save(ctx context.Context, account *Account) error
	// Get 加载聚合；不存在返回 ErrAccountNotFound
	Get(ctx context.Context, accountID string) (*Account, error)
	// ListOrders 分页查询订单流水；status 为空表示全部
	ListOrders(ctx context.Context, accountID string, status orderdomain.OrderStatus, limit, offset int) ([]*orderdomain.Order, int64, error)
}
