// Package http 行情喂入接口。模拟盘的行情由外部回放程序推送。
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	assetdomain "github.com/wyfcoding/optionstrading/internal/asset/domain"
	"github.com/wyfcoding/optionstrading/internal/marketdata/infrastructure/static"
)

type Handler struct {
	source *static.QuoteSource
}

func NewHandler(source *static.QuoteSource) *Handler {
	return &Handler{source: source}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/marketdata")
	{
		g.POST("/quotes", h.SetQuote)
		g.DELETE("/quotes/:symbol", h.RemoveQuote)
		g.GET("/chains/:underlying", h.GetChain)
	}
}

type SetQuoteReq struct {
	Symbol string `json:"symbol" binding:"required"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
	Last   string `json:"last"`
	Volume int64  `json:"volume"`
}

func (h *Handler) SetQuote(c *gin.Context) {
	var req SetQuoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	asset, err := resolveAsset(req.Symbol)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raw := assetdomain.RawQuote{Volume: req.Volume, Timestamp: time.Now()}
	if req.Bid != "" {
		if raw.Bid, err = decimal.NewFromString(req.Bid); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad bid: " + err.Error()})
			return
		}
	}
	if req.Ask != "" {
		if raw.Ask, err = decimal.NewFromString(req.Ask); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad ask: " + err.Error()})
			return
		}
	}
	if req.Last != "" {
		if raw.Last, err = decimal.NewFromString(req.Last); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad last: " + err.Error()})
			return
		}
	}

	if err := h.source.SetQuote(asset, raw); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) RemoveQuote(c *gin.Context) {
	h.source.Remove(c.Param("symbol"))
	c.Status(http.StatusOK)
}

func (h *Handler) GetChain(c *gin.Context) {
	var expiration *time.Time
	if raw := c.Query("expiration"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expiration must be YYYY-MM-DD"})
			return
		}
		expiration = &parsed
	}
	chain, err := h.source.GetChain(c.Request.Context(), c.Param("underlying"), expiration)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": chain})
}

func resolveAsset(symbol string) (assetdomain.Asset, error) {
	if a, err := assetdomain.ParseOptionSymbol(symbol); err == nil {
		return a, nil
	}
	return assetdomain.NewStock(symbol)
}
