package domain

import (
	"fmt"
	"math"

	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
)

const (
	// 波动率求解域
	volLowerBound = 0.001
	volUpperBound = 5.0

	newtonMaxIter    = 100
	bisectionMaxIter = 200
	priceTolerance   = 1e-8
)

// ImpliedVolatility 由市场价反解隐含波动率。
// Newton-Raphson 迭代，初值取 Brenner-Subrahmanyam 近似；
// 迭代越出 [0.001, 5.0] 域或未收敛时退回二分法。
// 市场价低于内在价值下界或为负时返回 ErrPriceOutOfBounds。
func ImpliedVolatility(optionType assetdomain.OptionType, marketPrice float64, in BlackScholesInput) (float64, error) {
	if in.S <= 0 || in.K <= 0 || in.T <= 0 {
		return 0, fmt.Errorf("%w: spot=%v strike=%v expiry=%v", ErrInvalidPricingInput, in.S, in.K, in.T)
	}
	if marketPrice <= 0 {
		return 0, fmt.Errorf("%w: market price %v <= 0 (spot=%v strike=%v)", ErrPriceOutOfBounds, marketPrice, in.S, in.K)
	}

	// 无套利边界
	discR := math.Exp(-in.R * in.T)
	discQ := math.Exp(-in.Q * in.T)
	var lower, upper float64
	if optionType == assetdomain.OptionTypeCall {
		lower = math.Max(in.S*discQ-in.K*discR, 0)
		upper = in.S * discQ
	} else {
		lower = math.Max(in.K*discR-in.S*discQ, 0)
		upper = in.K * discR
	}
	if marketPrice < lower-priceTolerance || marketPrice > upper+priceTolerance {
		return 0, fmt.Errorf("%w: price %v outside [%v, %v] (spot=%v strike=%v expiry=%v)",
			ErrPriceOutOfBounds, marketPrice, lower, upper, in.S, in.K, in.T)
	}

	// Brenner-Subrahmanyam 初值：sigma ≈ sqrt(2π/T)·price/spot
	vol := math.Sqrt(2*math.Pi/in.T) * marketPrice / in.S
	vol = clampVol(vol)

	for i := 0; i < newtonMaxIter; i++ {
		trial := in
		trial.V = vol
		res, err := Calculate(optionType, trial)
		if err != nil {
			break
		}

		diff := res.Price - marketPrice
		if math.Abs(diff) < priceTolerance {
			return vol, nil
		}

		vegaRaw := res.Vega * 100
		if vegaRaw < 1e-12 {
			break
		}

		next := vol - diff/vegaRaw
		if next <= volLowerBound || next >= volUpperBound || math.IsNaN(next) {
			break
		}
		vol = next
	}

	return bisectVol(optionType, marketPrice, in)
}

// bisectVol 二分法兜底
func bisectVol(optionType assetdomain.OptionType, marketPrice float64, in BlackScholesInput) (float64, error) {
	lo, hi := volLowerBound, volUpperBound
	for i := 0; i < bisectionMaxIter; i++ {
		mid := (lo + hi) / 2
		trial := in
		trial.V = mid
		res, err := Calculate(optionType, trial)
		if err != nil {
			return 0, err
		}

		diff := res.Price - marketPrice
		if math.Abs(diff) < priceTolerance || (hi-lo)/2 < 1e-9 {
			return mid, nil
		}
		// BS 价格对波动率单调递增
		if diff > 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return 0, fmt.Errorf("%w: price=%v spot=%v strike=%v expiry=%v", ErrVolNotConverged, marketPrice, in.S, in.K, in.T)
}

func clampVol(v float64) float64 {
	if v < volLowerBound || math.IsNaN(v) {
		return volLowerBound
	}
	if v > volUpperBound {
		return volUpperBound
	}
	return v
}
