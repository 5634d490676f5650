// Package static 内存行情源：以人工喂入的快照回答行情查询。
// 用于本地模拟盘与测试，无外部行情依赖。
package static

import (
	"context"
	"sync"
	"time"

	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
)

// QuoteSource 线程安全的内存行情源
type QuoteSource struct {
	mu     sync.RWMutex
	quotes map[string]*assetdomain.Quote
}

func NewQuoteSource() *QuoteSource {
	return &QuoteSource{quotes: make(map[string]*assetdomain.Quote)}
}

// SetQuote 喂入一条行情快照，覆盖同符号旧值
func (s *QuoteSource) SetQuote(a assetdomain.Asset, raw assetdomain.RawQuote) error {
	if raw.Timestamp.IsZero() {
		raw.Timestamp = time.Now()
	}
	if raw.Source == "" {
		raw.Source = "static"
	}
	q, err := assetdomain.NewQuote(a, raw)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.quotes[a.Symbol] = q
	s.mu.Unlock()
	return nil
}

// Remove 移除符号的行情，使其恢复"不可用"
func (s *QuoteSource) Remove(symbol string) {
	s.mu.Lock()
	delete(s.quotes, symbol)
	s.mu.Unlock()
}

// GetQuote 无该符号行情时返回 (nil, nil)
func (s *QuoteSource) GetQuote(_ context.Context, a assetdomain.Asset) (*assetdomain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quotes[a.Symbol], nil
}

// GetChain 返回指定标的的全部期权行情；expiration 非空时只返回该到期日
func (s *QuoteSource) GetChain(_ context.Context, underlying string, expiration *time.Time) ([]*assetdomain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chain []*assetdomain.Quote
	for symbol, q := range s.quotes {
		a, err := assetdomain.ParseOptionSymbol(symbol)
		if err != nil {
			continue
		}
		if a.Underlying != underlying {
			continue
		}
		if expiration != nil && !sameDay(a.Expiration, *expiration) {
			continue
		}
		chain = append(chain, q)
	}
	return chain, nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
