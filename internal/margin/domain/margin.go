// Package domain 维持保证金计算。输入为已识别的策略组合与最新标记价，
// 输出逐组合的保证金明细与总额。计算是纯函数，对同一输入幂等。
package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
	strategydomain "github.com/wyfcoding/optionstrading/internal/strategy/domain"
)

var (
	ErrMissingMark = errors.New("missing mark price for margin calculation")
)

// 裸卖期权保证金参数：max(权利金 + 20%标的价 − 虚值额, 权利金 + 10%标的价)
var (
	nakedBaseRate  = decimal.NewFromFloat(0.20)
	nakedFloorRate = decimal.NewFromFloat(0.10)
)

// StrategyMargin 单一组合的保证金明细
type StrategyMargin struct {
	Strategy    strategydomain.Strategy `json:"strategy"`
	Requirement decimal.Decimal         `json:"requirement"`
}

// Result 账户级保证金结果
type Result struct {
	Total     decimal.Decimal  `json:"total"`
	Breakdown []StrategyMargin `json:"breakdown"`
}

// Calculator 维持保证金计算器。marks 以规范符号索引标记价，
// 须覆盖所有空头期权及其标的。
type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// Calculate 逐组合计算并汇总。任一组合缺标记价即整体失败，
// 避免输出被低估的保证金总额。
func (c *Calculator) Calculate(strategies []strategydomain.Strategy, marks map[string]decimal.Decimal) (*Result, error) {
	result := &Result{Total: decimal.Zero}
	for _, s := range strategies {
		req, err := c.strategyRequirement(s, marks)
		if err != nil {
			return nil, err
		}
		result.Breakdown = append(result.Breakdown, StrategyMargin{Strategy: s, Requirement: req})
		result.Total = result.Total.Add(req)
	}
	return result, nil
}

func (c *Calculator) strategyRequirement(s strategydomain.Strategy, marks map[string]decimal.Decimal) (decimal.Decimal, error) {
	switch s.Type {
	case strategydomain.StrategyLongStock,
		strategydomain.StrategyLongCall,
		strategydomain.StrategyLongPut,
		strategydomain.StrategyCoveredCall,
		strategydomain.StrategyCoveredPut:
		// 多头全额付讫；备兑由股票腿担保
		return decimal.Zero, nil

	case strategydomain.StrategyShortStock:
		// 空头股票：名义市值
		leg := s.Legs[0]
		mark, err := markFor(leg.Position.Symbol, marks)
		if err != nil {
			return decimal.Zero, err
		}
		return mark.Mul(leg.Contracts), nil

	case strategydomain.StrategyNakedCall, strategydomain.StrategyNakedPut:
		return c.nakedRequirement(s.Legs[0], marks)

	case strategydomain.StrategyBullCallSpread,
		strategydomain.StrategyBearCallSpread,
		strategydomain.StrategyBullPutSpread,
		strategydomain.StrategyBearPutSpread:
		return c.spreadRequirement(s.Legs), nil

	case strategydomain.StrategyIronCondor, strategydomain.StrategyIronButterfly:
		// 两翼共用同一批合约，只可能被单侧击穿，取两翼较大者
		call, put := splitWings(s.Legs)
		callReq := c.spreadRequirement(call)
		putReq := c.spreadRequirement(put)
		return decimal.Max(callReq, putReq), nil
	}
	return decimal.Zero, fmt.Errorf("unrecognized strategy type %q", s.Type)
}

// nakedRequirement 裸卖期权：
// max(权利金 + 20%×S − 虚值额, 权利金 + 10%×S) × 乘数 × 合约数
func (c *Calculator) nakedRequirement(leg strategydomain.Leg, marks map[string]decimal.Decimal) (decimal.Decimal, error) {
	a := leg.Position.Asset
	premium, err := markFor(a.Symbol, marks)
	if err != nil {
		return decimal.Zero, err
	}
	spot, err := markFor(a.Underlying, marks)
	if err != nil {
		return decimal.Zero, err
	}

	var otm decimal.Decimal
	if a.OptionType == assetdomain.OptionTypeCall {
		otm = decimal.Max(a.Strike.Sub(spot), decimal.Zero)
	} else {
		otm = decimal.Max(spot.Sub(a.Strike), decimal.Zero)
	}

	base := premium.Add(nakedBaseRate.Mul(spot)).Sub(otm)
	floor := premium.Add(nakedFloorRate.Mul(spot))
	perContract := decimal.Max(base, floor).Mul(a.Multiplier())
	return perContract.Mul(leg.Contracts), nil
}

// spreadRequirement 垂直价差：行权价差 × 乘数 × 合约数 − 开仓净贷方，下限 0。
// 净贷方按两腿摊薄均价之差估计。借方价差的"净贷方"为负，不抵减。
func (c *Calculator) spreadRequirement(legs []strategydomain.Leg) decimal.Decimal {
	var long, short strategydomain.Leg
	for _, leg := range legs {
		if leg.Short {
			short = leg
		} else {
			long = leg
		}
	}
	a := short.Position.Asset
	width := short.Position.Asset.Strike.Sub(long.Position.Asset.Strike).Abs()
	contracts := short.Contracts

	netCredit := short.Position.AveragePrice.Sub(long.Position.AveragePrice).
		Mul(a.Multiplier()).Mul(contracts)
	if netCredit.IsNegative() {
		netCredit = decimal.Zero
	}

	req := width.Mul(a.Multiplier()).Mul(contracts).Sub(netCredit)
	return decimal.Max(req, decimal.Zero)
}

// splitWings 四腿组合拆回 call 翼与 put 翼
func splitWings(legs []strategydomain.Leg) (call, put []strategydomain.Leg) {
	for _, leg := range legs {
		if leg.Position.Asset.OptionType == assetdomain.OptionTypeCall {
			call = append(call, leg)
		} else {
			put = append(put, leg)
		}
	}
	return call, put
}

func markFor(symbol string, marks map[string]decimal.Decimal) (decimal.Decimal, error) {
	mark, ok := marks[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrMissingMark, symbol)
	}
	return mark, nil
}
