// Package application 交易应用服务：编排订单执行、到期批处理与组合报告。
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	accountdomain "github.com/wyfcoding/optionstrading/internal/account/domain"
	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
	executiondomain "github.com/wyfcoding/optionstrading/internal/execution/domain"
	margindomain "github.com/wyfcoding/optionstrading/internal/margin/domain"
	orderdomain "github.com/wyfcoding/optionstrading/internal/order/domain"
	pricingdomain "github.com/wyfcoding/optionstrading/internal/pricing/domain"
	strategydomain "github.com/wyfcoding/optionstrading/internal/strategy/domain"
)

// PricingParams 组合希腊字母计算的市场参数
type PricingParams struct {
	RiskFreeRate  float64
	DividendYield float64
}

// TradingService 交易应用服务。同一账户的读-改-写窗口由进程内
// 按账户加锁串行化，跨实例由仓储乐观锁兜底。
type TradingService struct {
	accounts  accountdomain.AccountRepository
	engine    *executiondomain.Engine
	expiry    *executiondomain.ExpirationEngine
	quotes    assetdomain.QuoteSource
	margin    *margindomain.Calculator
	publisher accountdomain.EventPublisher
	pricing   PricingParams
	logger    *slog.Logger

	locks accountLocks
}

func NewTradingService(
	accounts accountdomain.AccountRepository,
	engine *executiondomain.Engine,
	expiry *executiondomain.ExpirationEngine,
	quotes assetdomain.QuoteSource,
	margin *margindomain.Calculator,
	publisher accountdomain.EventPublisher,
	pricing PricingParams,
	logger *slog.Logger,
) *TradingService {
	return &TradingService{
		accounts:  accounts,
		engine:    engine,
		expiry:    expiry,
		quotes:    quotes,
		margin:    margin,
		publisher: publisher,
		pricing:   pricing,
		logger:    logger.With("module", "trading_service"),
	}
}

// OpenAccount 开户
func (s *TradingService) OpenAccount(ctx context.Context, cmd OpenAccountCmd) (string, error) {
	accountID := fmt.Sprintf("ACC-%d", idgen.GenID())
	account, err := accountdomain.NewAccount(accountID, cmd.Owner, cmd.InitialCash)
	if err != nil {
		return "", err
	}
	if err := s.accounts.Save(ctx, account); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "account opened", "account_id", accountID, "owner", cmd.Owner)
	return accountID, nil
}

// Deposit 入金
func (s *TradingService) Deposit(ctx context.Context, cmd CashCmd) error {
	return s.withAccount(ctx, cmd.AccountID, func(account *accountdomain.Account) error {
		return account.Deposit(cmd.Amount)
	})
}

// Withdraw 出金。出金后权益不得低于维持保证金要求。
func (s *TradingService) Withdraw(ctx context.Context, cmd CashCmd) error {
	return s.withAccount(ctx, cmd.AccountID, func(account *accountdomain.Account) error {
		if err := account.Withdraw(cmd.Amount); err != nil {
			return err
		}
		return s.maintenanceGuard(ctx, account)
	})
}

// maintenanceGuard 持仓账户的出金闸门：剩余权益必须覆盖维持保证金。
// 行情或保证金计算缺失时同样拒绝，宁可错拒不可超提。
func (s *TradingService) maintenanceGuard(ctx context.Context, account *accountdomain.Account) error {
	if len(account.Positions) == 0 {
		return nil
	}

	marks := make(map[string]decimal.Decimal)
	positions := make([]*accountdomain.Position, 0, len(account.Positions))
	equity := account.CashBalance
	for _, p := range account.Positions {
		positions = append(positions, p)
		if q, err := s.quotes.GetQuote(ctx, p.Asset); err == nil && q != nil && q.Price.IsPositive() {
			p.MarkPrice(q.Price)
			marks[p.Symbol] = q.Price
		}
		if p.Asset.IsOption() {
			if _, ok := marks[p.Asset.Underlying]; !ok {
				if spot, ok := s.underlyingSpot(ctx, p.Asset.Underlying); ok {
					marks[p.Asset.Underlying] = spot
				}
			}
		}
		equity = equity.Add(p.MarketValue())
	}

	strategies := strategydomain.Recognize(positions)
	result, err := s.margin.Calculate(strategies, marks)
	if err != nil {
		return fmt.Errorf("%w: %v", accountdomain.ErrMarginRestricted, err)
	}
	if result.Total.GreaterThan(equity) {
		return fmt.Errorf("%w: requirement %s, equity %s",
			accountdomain.ErrMarginRestricted, result.Total, equity)
	}
	return nil
}

// SubmitOrder 提交单腿订单并立即尝试执行。
// 无论成交、挂起还是拒绝，订单都进入账户流水后持久化。
func (s *TradingService) SubmitOrder(ctx context.Context, cmd SubmitOrderCmd) (*OrderResult, error) {
	condition := cmd.Condition
	if condition == "" {
		condition = orderdomain.ConditionMarket
	}
	order, err := orderdomain.NewOrder(
		fmt.Sprintf("ORD-%d", idgen.GenID()),
		cmd.AccountID, cmd.Symbol, cmd.Intent, cmd.Quantity, condition, cmd.LimitPrice,
	)
	if err != nil {
		return nil, err
	}

	var fill *accountdomain.FillResult
	err = s.withAccount(ctx, cmd.AccountID, func(account *accountdomain.Account) error {
		var execErr error
		fill, execErr = s.engine.ExecuteOrder(ctx, account, order)
		account.AppendOrder(order)
		if execErr != nil && !errors.Is(execErr, executiondomain.ErrOrderRejected) {
			return execErr
		}
		// 拒绝订单也要落库留痕
		s.recordOrderOutcome(account, order, fill)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.checkMargin(ctx, cmd.AccountID)

	return orderResult(order, fill), nil
}

// ProcessPendingOrders 以最新行情重试账户内全部挂单。
// 限价/止损订单在提交时未触及市场会保持 PENDING，
// 行情推进后由此入口再次执行；离开 PENDING 的订单出现在返回结果中。
func (s *TradingService) ProcessPendingOrders(ctx context.Context, accountID string) ([]*OrderResult, error) {
	var results []*OrderResult
	err := s.withAccount(ctx, accountID, func(account *accountdomain.Account) error {
		for _, order := range account.Orders {
			if order.Status != orderdomain.OrderStatusPending {
				continue
			}
			fill, execErr := s.engine.ExecuteOrder(ctx, account, order)
			if execErr != nil && !errors.Is(execErr, executiondomain.ErrOrderRejected) {
				return execErr
			}
			if order.Status == orderdomain.OrderStatusPending {
				continue
			}
			s.recordOrderOutcome(account, order, fill)
			results = append(results, orderResult(order, fill))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		s.checkMargin(ctx, accountID)
	}
	return results, nil
}

// SubmitMultiLegOrder 提交多腿订单。所有腿全部成交或全部拒绝。
func (s *TradingService) SubmitMultiLegOrder(ctx context.Context, cmd SubmitMultiLegCmd) (*MultiLegResult, error) {
	multiLegID := fmt.Sprintf("MLO-%d", idgen.GenID())

	legCmds := make([]orderdomain.OrderLeg, 0, len(cmd.Legs))
	for _, leg := range cmd.Legs {
		legCmds = append(legCmds, orderdomain.OrderLeg{
			Symbol: leg.Symbol, Intent: leg.Intent, Quantity: leg.Quantity, Ratio: 1,
		})
	}
	if _, err := orderdomain.NewMultiLegOrder(multiLegID, cmd.AccountID, legCmds, cmd.NetLimitPrice, cmd.Strategy); err != nil {
		return nil, err
	}

	legs := make([]*orderdomain.Order, 0, len(cmd.Legs))
	for _, legCmd := range cmd.Legs {
		leg, err := orderdomain.NewOrder(
			fmt.Sprintf("ORD-%d", idgen.GenID()),
			cmd.AccountID, legCmd.Symbol, legCmd.Intent, legCmd.Quantity,
			orderdomain.ConditionMarket, nil,
		)
		if err != nil {
			return nil, err
		}
		leg.MultiLegID = multiLegID
		legs = append(legs, leg)
	}

	var fills []*accountdomain.FillResult
	err := s.withAccount(ctx, cmd.AccountID, func(account *accountdomain.Account) error {
		var execErr error
		fills, execErr = s.engine.ExecuteMultiLeg(ctx, account, legs, cmd.NetLimitPrice)
		for _, leg := range legs {
			account.AppendOrder(leg)
		}
		if execErr != nil && !errors.Is(execErr, executiondomain.ErrOrderRejected) {
			return execErr
		}
		for i, leg := range legs {
			if fills != nil && i < len(fills) {
				s.recordOrderOutcome(account, leg, fills[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &MultiLegResult{MultiLegID: multiLegID, Status: orderdomain.OrderStatusFilled}
	for i, leg := range legs {
		var fill *accountdomain.FillResult
		if fills != nil && i < len(fills) {
			fill = fills[i]
		}
		result.Legs = append(result.Legs, *orderResult(leg, fill))
		if leg.Status != orderdomain.OrderStatusFilled {
			result.Status = orderdomain.OrderStatusRejected
		}
	}
	s.checkMargin(ctx, cmd.AccountID)
	return result, nil
}

// CancelOrder 取消挂单
func (s *TradingService) CancelOrder(ctx context.Context, accountID, orderID string) error {
	return s.withAccount(ctx, accountID, func(account *accountdomain.Account) error {
		order := account.FindOrder(orderID)
		if order == nil {
			return fmt.Errorf("%w: %s", orderdomain.ErrOrderNotFound, orderID)
		}
		return order.Cancel()
	})
}

// ListOrders 分页查询订单流水
func (s *TradingService) ListOrders(ctx context.Context, accountID string, status orderdomain.OrderStatus, limit, offset int) ([]*orderdomain.Order, int64, error) {
	return s.accounts.ListOrders(ctx, accountID, status, limit, offset)
}

// RunExpirationBatch 对单个账户执行到期批处理
func (s *TradingService) RunExpirationBatch(ctx context.Context, accountID string, asOf time.Time) (*executiondomain.ExpirationReport, error) {
	var report *executiondomain.ExpirationReport
	err := s.withAccount(ctx, accountID, func(account *accountdomain.Account) error {
		var procErr error
		report, procErr = s.expiry.ProcessExpirations(ctx, account, asOf)
		if procErr != nil {
			return procErr
		}
		for _, entry := range report.Entries {
			if entry.Outcome == executiondomain.OutcomeSkippedNoQuote {
				continue
			}
			outcome := accountdomain.OptionExpiredEventType
			switch entry.Outcome {
			case executiondomain.OutcomeExercised:
				outcome = accountdomain.OptionExercisedEventType
			case executiondomain.OutcomeAssigned:
				outcome = accountdomain.OptionAssignedEventType
			}
			account.Record(outcome, accountdomain.OptionResolvedEvent{
				AccountID:  accountID,
				Symbol:     entry.Symbol,
				Outcome:    outcome,
				Quantity:   entry.Quantity.InexactFloat64(),
				CashEffect: entry.CashEffect.InexactFloat64(),
				OccurredOn: report.ProcessedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if report.MarginCall {
		s.checkMargin(ctx, accountID)
	}
	return report, nil
}

// GetPortfolio 组合报告：盯市、希腊字母汇总、策略识别与维持保证金。
// 单个合约的定价失败只跳过该合约并计数，不拖垮整份报告。
func (s *TradingService) GetPortfolio(ctx context.Context, accountID string) (*PortfolioView, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	view := &PortfolioView{
		AccountID:   account.AccountID,
		Owner:       account.Owner,
		CashBalance: account.CashBalance,
		AsOf:        now,
	}

	marks := make(map[string]decimal.Decimal)
	spots := make(map[string]decimal.Decimal)
	positions := make([]*accountdomain.Position, 0, len(account.Positions))
	for _, p := range account.Positions {
		positions = append(positions, p)
	}

	equity := account.CashBalance
	for _, p := range positions {
		if q, err := s.quotes.GetQuote(ctx, p.Asset); err == nil && q != nil && q.Price.IsPositive() {
			p.MarkPrice(q.Price)
			marks[p.Symbol] = q.Price
		}
		if p.Asset.IsOption() {
			if _, ok := spots[p.Asset.Underlying]; !ok {
				if spot, ok := s.underlyingSpot(ctx, p.Asset.Underlying); ok {
					spots[p.Asset.Underlying] = spot
					marks[p.Asset.Underlying] = spot
				}
			}
		}
		view.Positions = append(view.Positions, PositionView{
			Symbol:        p.Symbol,
			Quantity:      p.Quantity,
			AveragePrice:  p.AveragePrice,
			MarkPrice:     p.CurrentPrice,
			MarketValue:   p.MarketValue(),
			UnrealizedPnL: p.UnrealizedPnL(),
			RealizedPnL:   p.RealizedPnL,
		})
		equity = equity.Add(p.MarketValue())
	}
	view.Equity = equity

	view.GreeksTotal, view.GreeksSkipped = s.aggregateGreeks(positions, spots, now)
	view.Strategies = strategydomain.Recognize(positions)

	marginResult, err := s.margin.Calculate(view.Strategies, marks)
	if err != nil {
		s.logger.WarnContext(ctx, "margin calculation incomplete", "account_id", accountID, "error", err)
	} else {
		view.Margin = marginResult
		if marginResult.Total.GreaterThan(equity) {
			view.MarginCall = true
			view.MarginDeficit = marginResult.Total.Sub(equity)
		}
	}
	return view, nil
}

// aggregateGreeks 逐期权持仓反解隐波并汇总希腊字母，
// 按持仓数量与合约乘数加权。失败合约跳过并计数。
func (s *TradingService) aggregateGreeks(positions []*accountdomain.Position, spots map[string]decimal.Decimal, asOf time.Time) (assetdomain.OptionGreeks, int) {
	var total assetdomain.OptionGreeks
	skipped := 0
	for _, p := range positions {
		if !p.Asset.IsOption() {
			continue
		}
		spot, ok := spots[p.Asset.Underlying]
		if !ok || p.CurrentPrice == nil || !p.CurrentPrice.IsPositive() {
			skipped++
			continue
		}
		in := pricingdomain.BlackScholesInput{
			S: spot.InexactFloat64(),
			K: p.Asset.Strike.InexactFloat64(),
			T: float64(p.Asset.DaysToExpiration(asOf)) / 365,
			R: s.pricing.RiskFreeRate,
			Q: s.pricing.DividendYield,
		}
		vol, err := pricingdomain.ImpliedVolatility(p.Asset.OptionType, p.CurrentPrice.InexactFloat64(), in)
		if err != nil {
			skipped++
			continue
		}
		in.V = vol
		res, err := pricingdomain.Calculate(p.Asset.OptionType, in)
		if err != nil {
			skipped++
			continue
		}
		weight := p.Quantity.Mul(p.Multiplier())
		total = total.Add(res.Greeks().Multiply(weight))
	}
	return total, skipped
}

// withAccount 以账户粒度串行执行读-改-写并持久化
func (s *TradingService) withAccount(ctx context.Context, accountID string, fn func(*accountdomain.Account) error) error {
	lock := s.locks.acquire(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if err := fn(account); err != nil {
		return err
	}
	return s.accounts.Save(ctx, account)
}

func (s *TradingService) underlyingSpot(ctx context.Context, underlying string) (decimal.Decimal, bool) {
	stock, err := assetdomain.NewStock(underlying)
	if err != nil {
		return decimal.Zero, false
	}
	q, err := s.quotes.GetQuote(ctx, stock)
	if err != nil || q == nil || !q.Price.IsPositive() {
		return decimal.Zero, false
	}
	return q.Price, true
}

// recordOrderOutcome 将成交事件缓存到聚合，随 Save 与账本变更
// 在同一事务内写入发件箱。
func (s *TradingService) recordOrderOutcome(account *accountdomain.Account, order *orderdomain.Order, fill *accountdomain.FillResult) {
	if fill == nil {
		return
	}
	account.Record(accountdomain.OrderFilledEventType, accountdomain.OrderFilledEvent{
		AccountID:   account.AccountID,
		OrderID:     order.OrderID,
		Symbol:      order.Symbol,
		Intent:      string(order.Intent),
		Quantity:    order.Quantity.InexactFloat64(),
		FillPrice:   fill.FillPrice.InexactFloat64(),
		CashDelta:   fill.CashDelta.InexactFloat64(),
		RealizedPnL: fill.RealizedPnL.InexactFloat64(),
		OccurredOn:  time.Now(),
	})
	if fill.PositionClosed {
		account.Record(accountdomain.PositionClosedEventType, accountdomain.PositionClosedEvent{
			AccountID:   account.AccountID,
			Symbol:      fill.Symbol,
			RealizedPnL: fill.RealizedPnL.InexactFloat64(),
			OccurredOn:  time.Now(),
		})
	}
}

// checkMargin 成交后重算维持保证金，不足则发布告警事件。
// 计算失败只记日志，不影响已完成的成交。
func (s *TradingService) checkMargin(ctx context.Context, accountID string) {
	view, err := s.GetPortfolio(ctx, accountID)
	if err != nil {
		s.logger.WarnContext(ctx, "margin check failed", "account_id", accountID, "error", err)
		return
	}
	if !view.MarginCall {
		return
	}
	if err := s.publisher.PublishMarginCall(accountdomain.MarginCallEvent{
		AccountID:      accountID,
		RequiredMargin: view.Margin.Total.InexactFloat64(),
		Equity:         view.Equity.InexactFloat64(),
		Deficiency:     view.MarginDeficit.InexactFloat64(),
		OccurredOn:     time.Now(),
	}); err != nil {
		s.logger.WarnContext(ctx, "publish margin call failed", "account_id", accountID, "error", err)
	}
}

// accountLocks 按账户 ID 的进程内互斥锁
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *accountLocks) acquire(accountID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := l.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[accountID] = lock
	}
	return lock
}
