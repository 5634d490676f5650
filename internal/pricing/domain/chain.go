package domain

import (
	"time"

	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
)

const daysPerYear = 365.0

// ChainEntry 期权链中单个合约的定价结果
type ChainEntry struct {
	Symbol            string                   `json:"symbol"`
	ImpliedVolatility float64                  `json:"implied_volatility"`
	Greeks            assetdomain.OptionGreeks `json:"greeks"`
	TheoreticalPrice  float64                  `json:"theoretical_price"`
}

// MarketParams 链级定价共用的市场参数
type MarketParams struct {
	Spot          float64
	RiskFreeRate  float64
	DividendYield float64
	AsOf          time.Time
}

// GreeksForChain 对一条期权链批量反解隐波并计算希腊字母。
// 单个合约数值求解失败（价格越界、不收敛、符号非法）只跳过该合约，
// 不中断整条链。skipped 返回被跳过的合约数。
func GreeksForChain(quotes []*assetdomain.Quote, params MarketParams) (entries []ChainEntry, skipped int) {
	for _, q := range quotes {
		a, err := assetdomain.ParseOptionSymbol(q.Symbol)
		if err != nil {
			skipped++
			continue
		}

		in := BlackScholesInput{
			S: params.Spot,
			K: a.Strike.InexactFloat64(),
			T: yearsUntil(a.Expiration, params.AsOf),
			R: params.RiskFreeRate,
			Q: params.DividendYield,
		}

		mid := q.Mid()
		if !mid.IsPositive() {
			skipped++
			continue
		}

		vol, err := ImpliedVolatility(a.OptionType, mid.InexactFloat64(), in)
		if err != nil {
			skipped++
			continue
		}

		in.V = vol
		res, err := Calculate(a.OptionType, in)
		if err != nil {
			skipped++
			continue
		}

		entries = append(entries, ChainEntry{
			Symbol:            q.Symbol,
			ImpliedVolatility: vol,
			Greeks:            res.Greeks(),
			TheoreticalPrice:  res.Price,
		})
	}
	return entries, skipped
}

// yearsUntil 到期剩余年数，按自然日 365 折算
func yearsUntil(expiration, asOf time.Time) float64 {
	return expiration.Sub(asOf).Hours() / 24 / daysPerYear
}
