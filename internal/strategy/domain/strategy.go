// Package domain 策略识别：将裸持仓归组为可识别的期权组合形态，
// 供保证金计算与风险报告使用。识别结果只读，不落库。
package domain

import (
	"sort"

	"github.com/shopspring/decimal"

	accountdomain "github.com/wyfcoding/optionstrading/internal/account/domain"
	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
)

// StrategyType 组合形态
type StrategyType string

const (
	StrategyCoveredCall    StrategyType = "COVERED_CALL"
	StrategyCoveredPut     StrategyType = "COVERED_PUT"
	StrategyBullCallSpread StrategyType = "BULL_CALL_SPREAD"
	StrategyBearCallSpread StrategyType = "BEAR_CALL_SPREAD"
	StrategyBullPutSpread  StrategyType = "BULL_PUT_SPREAD"
	StrategyBearPutSpread  StrategyType = "BEAR_PUT_SPREAD"
	StrategyIronCondor     StrategyType = "IRON_CONDOR"
	StrategyIronButterfly  StrategyType = "IRON_BUTTERFLY"
	StrategyNakedCall      StrategyType = "NAKED_CALL"
	StrategyNakedPut       StrategyType = "NAKED_PUT"
	StrategyLongCall       StrategyType = "LONG_CALL"
	StrategyLongPut        StrategyType = "LONG_PUT"
	StrategyLongStock      StrategyType = "LONG_STOCK"
	StrategyShortStock     StrategyType = "SHORT_STOCK"
)

// Leg 策略中的一条腿。Contracts 为该腿纳入本策略的数量（恒为正），
// 可能小于持仓全量（剩余部分继续参与后续归组）。
type Leg struct {
	Position  *accountdomain.Position `json:"position"`
	Contracts decimal.Decimal         `json:"contracts"`
	Short     bool                    `json:"short"`
}

// Strategy 识别出的组合
type Strategy struct {
	Type       StrategyType `json:"type"`
	Underlying string       `json:"underlying"`
	Legs       []Leg        `json:"legs"`
}

// Recognize 贪心归组。顺序体现保证金最小化偏好：
// 备兑 > 价差 > 裸仓。同一持仓的数量被已识别的组合消耗后，
// 剩余部分进入下一轮匹配。
func Recognize(positions []*accountdomain.Position) []Strategy {
	var strategies []Strategy

	// 工作副本：按标的分桶，跟踪剩余数量
	type slot struct {
		pos       *accountdomain.Position
		remaining decimal.Decimal
	}
	byUnderlying := make(map[string][]*slot)
	order := make([]string, 0)
	for _, p := range positions {
		if p.Quantity.IsZero() {
			continue
		}
		u := p.Symbol
		if p.Asset.IsOption() {
			u = p.Asset.Underlying
		}
		if _, ok := byUnderlying[u]; !ok {
			order = append(order, u)
		}
		byUnderlying[u] = append(byUnderlying[u], &slot{pos: p, remaining: p.Quantity.Abs()})
	}
	sort.Strings(order)

	hundred := decimal.NewFromInt(assetdomain.OptionMultiplier)

	for _, underlying := range order {
		slots := byUnderlying[underlying]

		var stockSlot *slot
		var options []*slot
		for _, s := range slots {
			if s.pos.Asset.IsOption() {
				options = append(options, s)
			} else {
				stockSlot = s
			}
		}
		// 行权价升序，保证价差/鹰式按相邻行权价配对
		sort.Slice(options, func(i, j int) bool {
			return options[i].pos.Asset.Strike.LessThan(options[j].pos.Asset.Strike)
		})

		// 1. 备兑：多头股票 + 空头 call，或空头股票 + 空头 put
		if stockSlot != nil {
			for _, o := range options {
				if o.remaining.IsZero() {
					continue
				}
				a := o.pos.Asset
				coveredCall := stockSlot.pos.IsLong() && o.pos.IsShort() && a.OptionType == assetdomain.OptionTypeCall
				coveredPut := stockSlot.pos.IsShort() && o.pos.IsShort() && a.OptionType == assetdomain.OptionTypePut
				if !coveredCall && !coveredPut {
					continue
				}
				coverable := stockSlot.remaining.Div(hundred).Floor()
				contracts := decimal.Min(coverable, o.remaining)
				if contracts.LessThanOrEqual(decimal.Zero) {
					continue
				}
				st := StrategyCoveredCall
				if coveredPut {
					st = StrategyCoveredPut
				}
				strategies = append(strategies, Strategy{
					Type:       st,
					Underlying: underlying,
					Legs: []Leg{
						{Position: stockSlot.pos, Contracts: contracts.Mul(hundred), Short: stockSlot.pos.IsShort()},
						{Position: o.pos, Contracts: contracts, Short: true},
					},
				})
				stockSlot.remaining = stockSlot.remaining.Sub(contracts.Mul(hundred))
				o.remaining = o.remaining.Sub(contracts)
			}
		}

		// 2. 垂直价差：同标的、同到期、同类型、方向相反
		var verticals []Strategy
		for i, long := range options {
			if long.remaining.IsZero() || !long.pos.IsLong() {
				continue
			}
			for j, short := range options {
				if i == j || short.remaining.IsZero() || !short.pos.IsShort() {
					continue
				}
				la, sa := long.pos.Asset, short.pos.Asset
				if la.OptionType != sa.OptionType || !la.Expiration.Equal(sa.Expiration) || la.Strike.Equal(sa.Strike) {
					continue
				}
				contracts := decimal.Min(long.remaining, short.remaining)
				if contracts.LessThanOrEqual(decimal.Zero) {
					continue
				}
				verticals = append(verticals, Strategy{
					Type:       verticalType(la, sa),
					Underlying: underlying,
					Legs: []Leg{
						{Position: long.pos, Contracts: contracts, Short: false},
						{Position: short.pos, Contracts: contracts, Short: true},
					},
				})
				long.remaining = long.remaining.Sub(contracts)
				short.remaining = short.remaining.Sub(contracts)
			}
		}

		// 3. 四腿组合：同到期的 call 价差 + put 价差 合并为铁鹰/铁蝶
		verticals = combineFourLeg(verticals)
		strategies = append(strategies, verticals...)

		// 4. 剩余：裸仓分类
		if stockSlot != nil && stockSlot.remaining.IsPositive() {
			st := StrategyLongStock
			if stockSlot.pos.IsShort() {
				st = StrategyShortStock
			}
			strategies = append(strategies, Strategy{
				Type:       st,
				Underlying: underlying,
				Legs:       []Leg{{Position: stockSlot.pos, Contracts: stockSlot.remaining, Short: stockSlot.pos.IsShort()}},
			})
		}
		for _, o := range options {
			if o.remaining.IsZero() {
				continue
			}
			strategies = append(strategies, Strategy{
				Type:       nakedType(o.pos),
				Underlying: underlying,
				Legs:       []Leg{{Position: o.pos, Contracts: o.remaining, Short: o.pos.IsShort()}},
			})
		}
	}

	return strategies
}

// verticalType 按多头腿相对空头腿的行权价位置与期权类型命名价差
func verticalType(long, short assetdomain.Asset) StrategyType {
	if long.OptionType == assetdomain.OptionTypeCall {
		if long.Strike.LessThan(short.Strike) {
			return StrategyBullCallSpread
		}
		return StrategyBearCallSpread
	}
	if long.Strike.GreaterThan(short.Strike) {
		return StrategyBearPutSpread
	}
	return StrategyBullPutSpread
}

func nakedType(p *accountdomain.Position) StrategyType {
	a := p.Asset
	if a.OptionType == assetdomain.OptionTypeCall {
		if p.IsShort() {
			return StrategyNakedCall
		}
		return StrategyLongCall
	}
	if p.IsShort() {
		return StrategyNakedPut
	}
	return StrategyLongPut
}

// combineFourLeg 将同标的同到期的一个贷方 call 价差与一个贷方 put 价差
// 合并为铁鹰（中间行权价相等时为铁蝶）。未能合并的价差原样保留。
func combineFourLeg(verticals []Strategy) []Strategy {
	var out []Strategy
	used := make([]bool, len(verticals))

	for i := range verticals {
		if used[i] || verticals[i].Type != StrategyBearCallSpread {
			continue
		}
		for j := range verticals {
			if used[j] || i == j || verticals[j].Type != StrategyBullPutSpread {
				continue
			}
			ci, pj := verticals[i], verticals[j]
			if !sameExpiration(ci, pj) || !sameContracts(ci, pj) {
				continue
			}
			st := StrategyIronCondor
			if shortStrike(ci).Equal(shortStrike(pj)) {
				st = StrategyIronButterfly
			}
			out = append(out, Strategy{
				Type:       st,
				Underlying: ci.Underlying,
				Legs:       append(append([]Leg{}, ci.Legs...), pj.Legs...),
			})
			used[i], used[j] = true, true
			break
		}
	}
	for i, v := range verticals {
		if !used[i] {
			out = append(out, v)
		}
	}
	return out
}

func sameExpiration(a, b Strategy) bool {
	return a.Legs[0].Position.Asset.Expiration.Equal(b.Legs[0].Position.Asset.Expiration)
}

func sameContracts(a, b Strategy) bool {
	return a.Legs[0].Contracts.Equal(b.Legs[0].Contracts)
}

func shortStrike(s Strategy) decimal.Decimal {
	for _, leg := range s.Legs {
		if leg.Short {
			return leg.Position.Asset.Strike
		}
	}
	return decimal.Zero
}
