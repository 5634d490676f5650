// Package domain 期权定价引擎：Black-Scholes 价格、希腊字母与隐含波动率。
// 内部以 float64 计算，对外通过 decimal 输出。
package domain

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
)

var (
	ErrInvalidPricingInput = errors.New("invalid pricing input")
	ErrPriceOutOfBounds    = errors.New("price outside arbitrage-free bounds")
	ErrVolNotConverged     = errors.New("implied volatility did not converge")
)

// BlackScholesInput 模型输入
type BlackScholesInput struct {
	S float64 // 标的价格
	K float64 // 行权价
	T float64 // 到期时间 (年)
	R float64 // 无风险利率
	V float64 // 波动率 (年化)
	Q float64 // 股息率
}

// Result 定价结果。单位约定：Theta/Charm/Color 为每日，
// Vega/Rho 为每 1% 变动，Veta 为每日每 1% 波动率，其余为原始导数。
type Result struct {
	Price float64

	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	Rho   float64

	Vanna     float64
	Charm     float64
	Vomma     float64
	Speed     float64
	Zomma     float64
	Color     float64
	Veta      float64
	Ultima    float64
	DualDelta float64
}

// Calculate 计算价格与全部希腊字母。
// T<=0（已到期）时退化为内在价值：delta=±1 或 0，其余希腊字母为 0。
func Calculate(optionType assetdomain.OptionType, in BlackScholesInput) (*Result, error) {
	if in.S <= 0 || in.K <= 0 {
		return nil, fmt.Errorf("%w: spot=%v strike=%v", ErrInvalidPricingInput, in.S, in.K)
	}
	if in.V < 0 {
		return nil, fmt.Errorf("%w: volatility=%v", ErrInvalidPricingInput, in.V)
	}
	if optionType != assetdomain.OptionTypeCall && optionType != assetdomain.OptionTypePut {
		return nil, fmt.Errorf("%w: option type %q", ErrInvalidPricingInput, optionType)
	}

	if in.T <= 0 || in.V == 0 {
		return expiredResult(optionType, in), nil
	}

	sqrtT := math.Sqrt(in.T)
	d1 := (math.Log(in.S/in.K) + (in.R-in.Q+0.5*in.V*in.V)*in.T) / (in.V * sqrtT)
	d2 := d1 - in.V*sqrtT

	discR := math.Exp(-in.R * in.T)
	discQ := math.Exp(-in.Q * in.T)
	nd1 := normPdf(d1)

	r := &Result{}

	if optionType == assetdomain.OptionTypeCall {
		r.Price = in.S*discQ*normCdf(d1) - in.K*discR*normCdf(d2)
		r.Delta = discQ * normCdf(d1)
		r.Theta = (-in.S*discQ*nd1*in.V/(2*sqrtT) - in.R*in.K*discR*normCdf(d2) + in.Q*in.S*discQ*normCdf(d1)) / 365
		r.Rho = in.K * in.T * discR * normCdf(d2) / 100
		r.Charm = (in.Q*discQ*normCdf(d1) - discQ*nd1*(2*(in.R-in.Q)*in.T-d2*in.V*sqrtT)/(2*in.T*in.V*sqrtT)) / 365
		r.DualDelta = -discR * normCdf(d2)
	} else {
		r.Price = in.K*discR*normCdf(-d2) - in.S*discQ*normCdf(-d1)
		r.Delta = discQ * (normCdf(d1) - 1)
		r.Theta = (-in.S*discQ*nd1*in.V/(2*sqrtT) + in.R*in.K*discR*normCdf(-d2) - in.Q*in.S*discQ*normCdf(-d1)) / 365
		r.Rho = -in.K * in.T * discR * normCdf(-d2) / 100
		r.Charm = (-in.Q*discQ*normCdf(-d1) - discQ*nd1*(2*(in.R-in.Q)*in.T-d2*in.V*sqrtT)/(2*in.T*in.V*sqrtT)) / 365
		r.DualDelta = discR * normCdf(-d2)
	}

	vegaRaw := in.S * discQ * nd1 * sqrtT
	r.Gamma = discQ * nd1 / (in.S * in.V * sqrtT)
	r.Vega = vegaRaw / 100

	r.Vanna = -discQ * nd1 * d2 / in.V
	r.Vomma = vegaRaw * d1 * d2 / in.V
	r.Speed = -r.Gamma / in.S * (d1/(in.V*sqrtT) + 1)
	r.Zomma = r.Gamma * (d1*d2 - 1) / in.V
	r.Color = -discQ * nd1 / (2 * in.S * in.T * in.V * sqrtT) *
		(2*in.Q*in.T + 1 + (2*(in.R-in.Q)*in.T-d2*in.V*sqrtT)/(in.V*sqrtT)*d1) / 365
	r.Veta = -in.S * discQ * nd1 * sqrtT *
		(in.Q + (in.R-in.Q)*d1/(in.V*sqrtT) - (1+d1*d2)/(2*in.T)) / (365 * 100)
	r.Ultima = -vegaRaw / (in.V * in.V) * (d1*d2*(1-d1*d2) + d1*d1 + d2*d2)

	return r, nil
}

// expiredResult 到期（或零波动率）退化结果：价格取内在价值
func expiredResult(optionType assetdomain.OptionType, in BlackScholesInput) *Result {
	r := &Result{}
	if optionType == assetdomain.OptionTypeCall {
		if in.S > in.K {
			r.Price = in.S - in.K
			r.Delta = 1
		}
	} else {
		if in.S < in.K {
			r.Price = in.K - in.S
			r.Delta = -1
		}
	}
	return r
}

// Greeks 转换为组合层使用的 decimal 希腊字母集合
func (r *Result) Greeks() assetdomain.OptionGreeks {
	return assetdomain.OptionGreeks{
		Delta:     decimal.NewFromFloat(r.Delta),
		Gamma:     decimal.NewFromFloat(r.Gamma),
		Theta:     decimal.NewFromFloat(r.Theta),
		Vega:      decimal.NewFromFloat(r.Vega),
		Rho:       decimal.NewFromFloat(r.Rho),
		Vanna:     decimal.NewFromFloat(r.Vanna),
		Charm:     decimal.NewFromFloat(r.Charm),
		Vomma:     decimal.NewFromFloat(r.Vomma),
		Speed:     decimal.NewFromFloat(r.Speed),
		Zomma:     decimal.NewFromFloat(r.Zomma),
		Color:     decimal.NewFromFloat(r.Color),
		Veta:      decimal.NewFromFloat(r.Veta),
		Ultima:    decimal.NewFromFloat(r.Ultima),
		DualDelta: decimal.NewFromFloat(r.DualDelta),
	}
}

// normCdf 标准正态分布累积分布函数
func normCdf(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// normPdf 标准正态分布概率密度函数
func normPdf(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
