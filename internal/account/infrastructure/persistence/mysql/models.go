// Package mysql 账户聚合的 MySQL 持久化
package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountModel 账户表
type AccountModel struct {
	gorm.Model
	AccountID   string          `gorm:"column:account_id;type:varchar(32);uniqueIndex;not null"`
	Owner       string          `gorm:"column:owner;type:varchar(64);not null"`
	CashBalance decimal.Decimal `gorm:"column:cash_balance;type:decimal(20,8);not null"`
	Version     int64           `gorm:"column:version;not null;default:0"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

// PositionModel 持仓表。数量归零的持仓从表中删除，与聚合内存语义一致。
type PositionModel struct {
	gorm.Model
	AccountID    string          `gorm:"column:account_id;type:varchar(32);index:idx_account_symbol,unique;not null"`
	Symbol       string          `gorm:"column:symbol;type:varchar(32);index:idx_account_symbol,unique;not null"`
	Quantity     decimal.Decimal `gorm:"column:quantity;type:decimal(20,8);not null"`
	AveragePrice decimal.Decimal `gorm:"column:average_price;type:decimal(20,8);not null"`
	RealizedPnL  decimal.Decimal `gorm:"column:realized_pnl;type:decimal(20,8);not null"`
	OpenedAt     time.Time       `gorm:"column:opened_at;not null"`
}

func (PositionModel) TableName() string {
	return "positions"
}
