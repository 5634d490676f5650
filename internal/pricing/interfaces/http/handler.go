// Package http 定价服务接口
package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
	"github.com/wyfcoding/optionstrading/internal/pricing/application"
	"github.com/wyfcoding/optionstrading/internal/pricing/domain"
)

type Handler struct {
	service *application.PricingService
}

func NewHandler(service *application.PricingService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/pricing")
	{
		g.POST("/calculate", h.Calculate)
		g.POST("/implied-vol", h.ImpliedVol)
		g.GET("/chains/:underlying/greeks", h.ChainGreeks)
	}
}

type PriceReq struct {
	OptionType    assetdomain.OptionType `json:"option_type" binding:"required"`
	Spot          float64                `json:"spot" binding:"required"`
	Strike        float64                `json:"strike" binding:"required"`
	TimeToExpiry  float64                `json:"time_to_expiry"`
	RiskFreeRate  float64                `json:"risk_free_rate"`
	Volatility    float64                `json:"volatility"`
	DividendYield float64                `json:"dividend_yield"`
	MarketPrice   float64                `json:"market_price"`
}

func (r PriceReq) input() domain.BlackScholesInput {
	return domain.BlackScholesInput{
		S: r.Spot, K: r.Strike, T: r.TimeToExpiry,
		R: r.RiskFreeRate, V: r.Volatility, Q: r.DividendYield,
	}
}

func (h *Handler) Calculate(c *gin.Context) {
	var req PriceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.service.Price(req.OptionType, req.input())
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) ImpliedVol(c *gin.Context) {
	var req PriceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vol, err := h.service.ImpliedVol(req.OptionType, req.MarketPrice, req.input())
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"implied_volatility": vol})
}

func (h *Handler) ChainGreeks(c *gin.Context) {
	underlying := c.Param("underlying")
	riskFree, _ := strconv.ParseFloat(c.DefaultQuery("risk_free_rate", "0.05"), 64)
	dividend, _ := strconv.ParseFloat(c.DefaultQuery("dividend_yield", "0"), 64)

	var expiration *time.Time
	if raw := c.Query("expiration"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expiration must be YYYY-MM-DD"})
			return
		}
		expiration = &parsed
	}

	entries, skipped, err := h.service.ChainGreeks(c.Request.Context(), underlying, expiration, riskFree, dividend)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "skipped": skipped})
}
