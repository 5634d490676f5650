// Package http 期权模拟交易服务接口
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	accountdomain "github.com/wyfcoding/optionstrading/internal/account/domain"
	"github.com/wyfcoding/optionstrading/internal/execution/application"
	executiondomain "github.com/wyfcoding/optionstrading/internal/execution/domain"
	orderdomain "github.com/wyfcoding/optionstrading/internal/order/domain"
)

type Handler struct {
	service *application.TradingService
}

func NewHandler(service *application.TradingService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/trading")
	{
		g.POST("/accounts", h.OpenAccount)
		g.POST("/accounts/deposit", h.Deposit)
		g.POST("/accounts/withdraw", h.Withdraw)
		g.GET("/accounts/:id/portfolio", h.GetPortfolio)
		g.GET("/accounts/:id/orders", h.ListOrders)
		g.POST("/accounts/:id/orders/process", h.ProcessPendingOrders)
		g.POST("/orders", h.SubmitOrder)
		g.POST("/orders/multi-leg", h.SubmitMultiLegOrder)
		g.POST("/orders/:account_id/:order_id/cancel", h.CancelOrder)
		g.POST("/expirations/:id/run", h.RunExpirations)
	}
}

func (h *Handler) OpenAccount(c *gin.Context) {
	var cmd application.OpenAccountCmd
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accountID, err := h.service.OpenAccount(c.Request.Context(), cmd)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": accountID})
}

func (h *Handler) Deposit(c *gin.Context) {
	var cmd application.CashCmd
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.Deposit(c.Request.Context(), cmd); err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) Withdraw(c *gin.Context) {
	var cmd application.CashCmd
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.Withdraw(c.Request.Context(), cmd); err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) SubmitOrder(c *gin.Context) {
	var cmd application.SubmitOrderCmd
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.service.SubmitOrder(c.Request.Context(), cmd)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) SubmitMultiLegOrder(c *gin.Context) {
	var cmd application.SubmitMultiLegCmd
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.service.SubmitMultiLegOrder(c.Request.Context(), cmd)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) CancelOrder(c *gin.Context) {
	accountID := c.Param("account_id")
	orderID := c.Param("order_id")
	if err := h.service.CancelOrder(c.Request.Context(), accountID, orderID); err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) GetPortfolio(c *gin.Context) {
	view, err := h.service.GetPortfolio(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) ListOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	status := orderdomain.OrderStatus(c.Query("status"))

	orders, total, err := h.service.ListOrders(c.Request.Context(), c.Param("id"), status, limit, offset)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": total})
}

// ProcessPendingOrders 以最新行情重试账户内的挂单
func (h *Handler) ProcessPendingOrders(c *gin.Context) {
	results, err := h.service.ProcessPendingOrders(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": results, "processed": len(results)})
}

func (h *Handler) RunExpirations(c *gin.Context) {
	asOf := time.Now()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "as_of must be YYYY-MM-DD"})
			return
		}
		asOf = parsed
	}
	report, err := h.service.RunExpirationBatch(c.Request.Context(), c.Param("id"), asOf)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// statusOf 领域错误到 HTTP 状态码的映射
func statusOf(err error) int {
	switch {
	case errors.Is(err, accountdomain.ErrAccountNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, executiondomain.ErrOrderRejected),
		errors.Is(err, accountdomain.ErrInsufficientFunds),
		errors.Is(err, accountdomain.ErrInsufficientPosition),
		errors.Is(err, accountdomain.ErrInvalidAmount),
		errors.Is(err, accountdomain.ErrMarginRestricted),
		errors.Is(err, orderdomain.ErrInvalidIntent),
		errors.Is(err, orderdomain.ErrInvalidQuantity),
		errors.Is(err, orderdomain.ErrOrderAlreadyFilled),
		errors.Is(err, orderdomain.ErrOrderNotPending):
		return http.StatusUnprocessableEntity
	case errors.Is(err, accountdomain.ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
