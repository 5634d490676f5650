// Package domain 资产领域模型：股票与期权的统一表示及期权符号编解码。
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidOptionSymbol = errors.New("invalid option symbol")
	ErrInvalidStrike       = errors.New("invalid strike price")
	ErrInvalidUnderlying   = errors.New("invalid underlying symbol")
)

// AssetType 资产类型
type AssetType string

const (
	AssetTypeStock  AssetType = "STOCK"
	AssetTypeOption AssetType = "OPTION"
)

// OptionType 期权类型
type OptionType string

const (
	OptionTypeCall OptionType = "CALL"
	OptionTypePut  OptionType = "PUT"
)

const (
	// OptionMultiplier 一张标准期权合约对应 100 股
	OptionMultiplier = 100
	// underlyingWidth OSI 符号中标的代码的固定宽度
	underlyingWidth = 6
	// optionTailWidth YYMMDD + C/P + 8 位行权价
	optionTailWidth = 15
)

// Asset 可交易标的。封闭的两种变体：股票或期权。
// 两个 Asset 相等当且仅当其规范符号相等。
type Asset struct {
	// 规范符号。股票为其代码本身，期权为 OSI 定宽编码
	Symbol string `json:"symbol"`
	// 变体标签
	Type AssetType `json:"type"`
	// 以下字段仅期权有效
	Underlying string          `json:"underlying,omitempty"`
	OptionType OptionType      `json:"option_type,omitempty"`
	Strike     decimal.Decimal `json:"strike,omitempty"`
	Expiration time.Time       `json:"expiration,omitempty"`
}

// NewStock 创建股票资产
func NewStock(symbol string) (Asset, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || len(symbol) > underlyingWidth {
		return Asset{}, fmt.Errorf("%w: %q", ErrInvalidUnderlying, symbol)
	}
	return Asset{Symbol: symbol, Type: AssetTypeStock}, nil
}

// NewOption 创建期权资产。规范符号由字段推导，保证编码/解码精确往返。
func NewOption(underlying string, optionType OptionType, strike decimal.Decimal, expiration time.Time) (Asset, error) {
	underlying = strings.ToUpper(strings.TrimSpace(underlying))
	if underlying == "" || len(underlying) > underlyingWidth {
		return Asset{}, fmt.Errorf("%w: %q", ErrInvalidUnderlying, underlying)
	}
	if optionType != OptionTypeCall && optionType != OptionTypePut {
		return Asset{}, fmt.Errorf("%w: option type %q", ErrInvalidOptionSymbol, optionType)
	}
	if strike.LessThanOrEqual(decimal.Zero) {
		return Asset{}, fmt.Errorf("%w: %s", ErrInvalidStrike, strike)
	}
	// 行权价以千分之一美元编码，超过 8 位无法表示
	milli := strike.Mul(decimal.NewFromInt(1000))
	if !milli.Equal(milli.Truncate(0)) || milli.GreaterThanOrEqual(decimal.NewFromInt(100000000)) {
		return Asset{}, fmt.Errorf("%w: %s not encodable", ErrInvalidStrike, strike)
	}
	a := Asset{
		Type:       AssetTypeOption,
		Underlying: underlying,
		OptionType: optionType,
		// 统一规范到 10^-3 指数表示，保证编码/解码往返后逐字段相等
		Strike: decimal.New(milli.IntPart(), -3),
		Expiration: time.Date(expiration.Year(), expiration.Month(), expiration.Day(), 0, 0, 0, 0, time.UTC),
	}
	a.Symbol = FormatOptionSymbol(a)
	return a, nil
}

// FormatOptionSymbol 将期权编码为 OSI 定宽符号：
// 标的右补空格至 6 位 + YYMMDD + C/P + 行权价 ×1000 左补零至 8 位。
func FormatOptionSymbol(a Asset) string {
	cp := "C"
	if a.OptionType == OptionTypePut {
		cp = "P"
	}
	milli := a.Strike.Mul(decimal.NewFromInt(1000)).IntPart()
	return fmt.Sprintf("%-*s%s%s%08d", underlyingWidth, a.Underlying, a.Expiration.Format("060102"), cp, milli)
}

// ParseOptionSymbol 解析 OSI 符号。与 FormatOptionSymbol 互为精确逆运算。
func ParseOptionSymbol(s string) (Asset, error) {
	if len(s) < optionTailWidth+1 {
		return Asset{}, fmt.Errorf("%w: %q too short", ErrInvalidOptionSymbol, s)
	}
	underlying := strings.TrimRight(s[:len(s)-optionTailWidth], " ")
	tail := s[len(s)-optionTailWidth:]

	expiry, err := time.ParseInLocation("060102", tail[:6], time.UTC)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: bad expiration in %q: %v", ErrInvalidOptionSymbol, s, err)
	}

	var optType OptionType
	switch tail[6] {
	case 'C':
		optType = OptionTypeCall
	case 'P':
		optType = OptionTypePut
	default:
		return Asset{}, fmt.Errorf("%w: bad call/put flag %q in %q", ErrInvalidOptionSymbol, tail[6], s)
	}

	var milli int64
	for _, c := range tail[7:] {
		if c < '0' || c > '9' {
			return Asset{}, fmt.Errorf("%w: bad strike digits in %q", ErrInvalidOptionSymbol, s)
		}
		milli = milli*10 + int64(c-'0')
	}
	strike := decimal.NewFromInt(milli).Div(decimal.NewFromInt(1000))

	return NewOption(underlying, optType, strike, expiry)
}

// IsOption 是否期权变体
func (a Asset) IsOption() bool {
	return a.Type == AssetTypeOption
}

// Equal 规范符号相等即资产相等
func (a Asset) Equal(other Asset) bool {
	return a.Symbol == other.Symbol
}

// Multiplier 合约乘数：期权 100，股票 1
func (a Asset) Multiplier() decimal.Decimal {
	if a.IsOption() {
		return decimal.NewFromInt(OptionMultiplier)
	}
	return decimal.NewFromInt(1)
}

// DaysToExpiration 距到期自然日数。非期权返回 0。
func (a Asset) DaysToExpiration(asOf time.Time) int {
	if !a.IsOption() {
		return 0
	}
	asOfDay := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	return int(a.Expiration.Sub(asOfDay).Hours() / 24)
}

// IsExpired 截至 asOf 是否已到期
func (a Asset) IsExpired(asOf time.Time) bool {
	return a.IsOption() && a.DaysToExpiration(asOf) < 0
}

// IsITM 期权是否处于实值
func (a Asset) IsITM(underlyingPrice decimal.Decimal) bool {
	if !a.IsOption() {
		return false
	}
	if a.OptionType == OptionTypeCall {
		return underlyingPrice.GreaterThan(a.Strike)
	}
	return underlyingPrice.LessThan(a.Strike)
}

// IntrinsicValue 每股内在价值，下限为 0
func (a Asset) IntrinsicValue(underlyingPrice decimal.Decimal) decimal.Decimal {
	if !a.IsOption() {
		return decimal.Zero
	}
	var intrinsic decimal.Decimal
	if a.OptionType == OptionTypeCall {
		intrinsic = underlyingPrice.Sub(a.Strike)
	} else {
		intrinsic = a.Strike.Sub(underlyingPrice)
	}
	if intrinsic.IsNegative() {
		return decimal.Zero
	}
	return intrinsic
}

// ExtrinsicValue 每股时间价值 = 权利金 − 内在价值，下限为 0
func (a Asset) ExtrinsicValue(underlyingPrice, premium decimal.Decimal) decimal.Decimal {
	extrinsic := premium.Sub(a.IntrinsicValue(underlyingPrice))
	if extrinsic.IsNegative() {
		return decimal.Zero
	}
	return extrinsic
}
