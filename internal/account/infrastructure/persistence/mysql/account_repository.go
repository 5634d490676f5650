package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/optionstrading/internal/account/domain"
	"github.com/wyfcoding/optionstrading/internal/account/infrastructure/messaging"
	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
	orderdomain "github.com/wyfcoding/optionstrading/internal/order/domain"
)

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) domain.AccountRepository {
	return &accountRepository{db: db}
}

// Save 在单个事务内持久化现金、持仓、订单流水与待发领域事件。
// 账户行以版本号条件更新实现乐观锁，冲突返回 ErrVersionConflict。
func (r *accountRepository) Save(ctx context.Context, account *domain.Account) error {
	if err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&AccountModel{}).
			Where("account_id = ? AND version = ?", account.AccountID, account.Version).
			Updates(map[string]any{
				"owner":        account.Owner,
				"cash_balance": account.CashBalance,
				"version":      account.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&AccountModel{}).
				Where("account_id = ?", account.AccountID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return fmt.Errorf("%w: account %s version %d", domain.ErrVersionConflict, account.AccountID, account.Version)
			}
			if err := tx.Create(&AccountModel{
				AccountID:   account.AccountID,
				Owner:       account.Owner,
				CashBalance: account.CashBalance,
				Version:     account.Version + 1,
			}).Error; err != nil {
				return err
			}
		}
		account.Version++

		// 持仓全量替换：聚合内存状态即真相
		if err := tx.Unscoped().
			Where("account_id = ?", account.AccountID).
			Delete(&PositionModel{}).Error; err != nil {
			return err
		}
		for _, p := range account.Positions {
			if err := tx.Create(&PositionModel{
				AccountID:    account.AccountID,
				Symbol:       p.Symbol,
				Quantity:     p.Quantity,
				AveragePrice: p.AveragePrice,
				RealizedPnL:  p.RealizedPnL,
				OpenedAt:     p.OpenedAt,
			}).Error; err != nil {
				return err
			}
		}

		for _, o := range account.Orders {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "order_id"}},
				UpdateAll: true,
			}).Create(o).Error; err != nil {
				return err
			}
		}

		// 领域事件与聚合状态同一事务落库，由中继异步投递
		for _, e := range account.PendingEvents() {
			row, err := messaging.NewOutboxMessage(e.Type, e.Payload)
			if err != nil {
				return err
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	account.ClearEvents()
	return nil
}

// Get 加载聚合。持仓的资产信息由规范符号还原。
func (r *accountRepository) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	var model AccountModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
		}
		return nil, err
	}

	account := &domain.Account{
		AccountID:   model.AccountID,
		Owner:       model.Owner,
		CashBalance: model.CashBalance,
		Positions:   make(map[string]*domain.Position),
		Version:     model.Version,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}

	var positions []PositionModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Find(&positions).Error; err != nil {
		return nil, err
	}
	for _, pm := range positions {
		asset, err := resolveAsset(pm.Symbol)
		if err != nil {
			return nil, err
		}
		account.Positions[pm.Symbol] = &domain.Position{
			Symbol:       pm.Symbol,
			Asset:        asset,
			Quantity:     pm.Quantity,
			AveragePrice: pm.AveragePrice,
			RealizedPnL:  pm.RealizedPnL,
			OpenedAt:     pm.OpenedAt,
			UpdatedAt:    pm.UpdatedAt,
		}
	}

	var orders []*orderdomain.Order
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC, id ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	account.Orders = orders

	return account, nil
}

// ListOrders 分页查询订单流水，新单在前
func (r *accountRepository) ListOrders(ctx context.Context, accountID string, status orderdomain.OrderStatus, limit, offset int) ([]*orderdomain.Order, int64, error) {
	var orders []*orderdomain.Order
	var total int64

	q := r.db.WithContext(ctx).Model(&orderdomain.Order{}).Where("account_id = ?", accountID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&orders).Error
	return orders, total, err
}

// resolveAsset 由规范符号还原资产：先按 OSI 期权符号解析，失败视为股票
func resolveAsset(symbol string) (assetdomain.Asset, error) {
	if a, err := assetdomain.ParseOptionSymbol(symbol); err == nil {
		return a, nil
	}
	return assetdomain.NewStock(symbol)
}
