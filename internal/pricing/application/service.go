// Package application 定价应用服务
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
	"github.com/wyfcoding/optionstrading/internal/pricing/domain"
)

// PricingService 封装定价引擎与行情源，对外提供单合约定价与链级批量计算
type PricingService struct {
	quotes assetdomain.QuoteSource
	logger *slog.Logger
}

func NewPricingService(quotes assetdomain.QuoteSource, logger *slog.Logger) *PricingService {
	return &PricingService{
		quotes: quotes,
		logger: logger.With("module", "pricing_service"),
	}
}

// Price 单合约定价
func (s *PricingService) Price(optionType assetdomain.OptionType, in domain.BlackScholesInput) (*domain.Result, error) {
	return domain.Calculate(optionType, in)
}

// ImpliedVol 由市场价反解隐含波动率
func (s *PricingService) ImpliedVol(optionType assetdomain.OptionType, marketPrice float64, in domain.BlackScholesInput) (float64, error) {
	return domain.ImpliedVolatility(optionType, marketPrice, in)
}

// ChainGreeks 对某标的的期权链批量计算隐波与希腊字母。
// 标的现价取自行情源，单合约失败跳过并计数。
func (s *PricingService) ChainGreeks(ctx context.Context, underlying string, expiration *time.Time, riskFreeRate, dividendYield float64) ([]domain.ChainEntry, int, error) {
	stock, err := assetdomain.NewStock(underlying)
	if err != nil {
		return nil, 0, err
	}
	uq, err := s.quotes.GetQuote(ctx, stock)
	if err != nil {
		return nil, 0, err
	}
	if uq == nil || !uq.Price.IsPositive() {
		return nil, 0, fmt.Errorf("%w: %s", assetdomain.ErrQuoteUnavailable, underlying)
	}

	chain, err := s.quotes.GetChain(ctx, underlying, expiration)
	if err != nil {
		return nil, 0, err
	}

	entries, skipped := domain.GreeksForChain(chain, domain.MarketParams{
		Spot:          uq.Price.InexactFloat64(),
		RiskFreeRate:  riskFreeRate,
		DividendYield: dividendYield,
		AsOf:          time.Now(),
	})
	if skipped > 0 {
		s.logger.DebugContext(ctx, "chain contracts skipped", "underlying", underlying, "skipped", skipped)
	}
	return entries, skipped, nil
}
