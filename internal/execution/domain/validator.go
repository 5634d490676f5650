package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	accountdomain "github.com/wyfcoding/optionstrading/internal/account/domain"
	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
	orderdomain "github.com/wyfcoding/optionstrading/internal/order/domain"
)

// 校验违规码
const (
	ViolationSymbolInvalid        = "SYMBOL_INVALID"
	ViolationContractExpired      = "CONTRACT_EXPIRED"
	ViolationQuantityInvalid      = "QUANTITY_INVALID"
	ViolationPriceInvalid         = "PRICE_INVALID"
	ViolationQuoteUnavailable     = "QUOTE_UNAVAILABLE"
	ViolationStrikeOutOfBand      = "STRIKE_OUT_OF_BAND"
	ViolationInsufficientFunds    = "INSUFFICIENT_FUNDS"
	ViolationInsufficientPosition = "INSUFFICIENT_POSITION"
	ViolationIntentMismatch       = "INTENT_MISMATCH"
)

// 行权价理性带：偏离标的现价 [0.1x, 10x] 之外的合约拒绝交易
var (
	strikeBandLower = decimal.NewFromFloat(0.1)
	strikeBandUpper = decimal.NewFromInt(10)
)

// Violation 单条校验违规
type Violation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult 校验结果。所有检查都执行完毕后统一返回，
// 一次提交暴露全部问题，而非逐条打回。
type ValidationResult struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Valid 无违规即通过
func (r *ValidationResult) Valid() bool {
	return len(r.Violations) == 0
}

// Reason 拼接违规摘要，写入订单拒绝原因
func (r *ValidationResult) Reason() string {
	if r.Valid() {
		return ""
	}
	reason := ""
	for i, v := range r.Violations {
		if i > 0 {
			reason += "; "
		}
		reason += v.Code + ": " + v.Message
	}
	return reason
}

func (r *ValidationResult) add(code, format string, args ...any) {
	r.Violations = append(r.Violations, Violation{Code: code, Message: fmt.Sprintf(format, args...)})
}

// ValidationContext 一次校验所需的全部快照输入
type ValidationContext struct {
	Account *accountdomain.Account
	Order   *orderdomain.Order
	Asset   assetdomain.Asset
	// Quote 订单标的行情；不可用为 nil
	Quote *assetdomain.Quote
	// UnderlyingMark 期权标的现价；不可用为 nil
	UnderlyingMark *decimal.Decimal
	// EstimatedPrice 预估成交价，用于购买力检查
	EstimatedPrice decimal.Decimal
	AsOf           time.Time
}

// Validator 订单前置校验。检查按固定顺序执行且不短路。
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate 依次执行：合约有效性、数量、价格、行情与行权价理性、资金与持仓。
func (v *Validator) Validate(c ValidationContext) *ValidationResult {
	result := &ValidationResult{}

	// 1. 合约有效性
	if c.Asset.Symbol == "" {
		result.add(ViolationSymbolInvalid, "order %s has no resolvable asset", c.Order.OrderID)
	}
	if c.Asset.IsExpired(c.AsOf) {
		result.add(ViolationContractExpired, "%s expired %s",
			c.Asset.Symbol, c.Asset.Expiration.Format("2006-01-02"))
	}

	// 2. 数量：正整数
	if !c.Order.Quantity.IsPositive() || !c.Order.Quantity.Equal(c.Order.Quantity.Truncate(0)) {
		result.add(ViolationQuantityInvalid, "quantity %s must be a positive integer", c.Order.Quantity)
	}

	// 3. 价格：限价/止损单必须带正价格
	if c.Order.Condition != orderdomain.ConditionMarket {
		if c.Order.LimitPrice == nil || !c.Order.LimitPrice.IsPositive() {
			result.add(ViolationPriceInvalid, "%s order requires a positive price", c.Order.Condition)
		}
	}

	// 4. 行情与行权价理性带
	if c.Quote == nil {
		result.add(ViolationQuoteUnavailable, "no quote for %s", c.Order.Symbol)
	}
	if c.Asset.IsOption() && c.UnderlyingMark != nil && c.UnderlyingMark.IsPositive() {
		lower := c.UnderlyingMark.Mul(strikeBandLower)
		upper := c.UnderlyingMark.Mul(strikeBandUpper)
		if c.Asset.Strike.LessThan(lower) || c.Asset.Strike.GreaterThan(upper) {
			result.add(ViolationStrikeOutOfBand, "strike %s outside [%s, %s] of underlying %s",
				c.Asset.Strike, lower, upper, c.UnderlyingMark)
		}
	}

	// 5. 资金与持仓
	v.checkFundsAndPosition(c, result)

	return result
}

func (v *Validator) checkFundsAndPosition(c ValidationContext, result *ValidationResult) {
	intent := c.Order.Intent

	if intent.IsClosing() {
		pos := c.Account.Position(c.Order.Symbol)
		if pos == nil {
			result.add(ViolationInsufficientPosition, "no position in %s to close", c.Order.Symbol)
			return
		}
		// 平仓方向必须与持仓相反
		if (intent == orderdomain.SellToClose && !pos.IsLong()) ||
			(intent == orderdomain.BuyToClose && !pos.IsShort()) {
			result.add(ViolationIntentMismatch, "%s against %s position of %s",
				intent, c.Order.Symbol, pos.Quantity)
			return
		}
		if c.Order.Quantity.GreaterThan(pos.Quantity.Abs()) {
			result.add(ViolationInsufficientPosition, "close %s exceeds held %s in %s",
				c.Order.Quantity, pos.Quantity.Abs(), c.Order.Symbol)
		}
	}

	// 买入方向检查购买力。卖出入金，不检查。
	if intent.IsBuy() && c.EstimatedPrice.IsPositive() {
		cost := c.EstimatedPrice.Mul(c.Order.Quantity).Mul(c.Asset.Multiplier())
		if cost.GreaterThan(c.Account.CashBalance) {
			result.add(ViolationInsufficientFunds, "cost %s exceeds cash %s",
				cost, c.Account.CashBalance)
		}
	}
}
