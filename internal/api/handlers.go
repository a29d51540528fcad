package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/shopspring/decimal"
)

type fundsRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type transferRequest struct {
	FromAccount string          `json:"from_account" binding:"required"`
	ToAccount   string          `json:"to_account" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type balanceResponse struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

func (h *handler) deposit(c *gin.Context) {
	var req fundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	entry, err := h.svc.Deposit(c.Request.Context(), c.Param("id"), req.Amount, req.Description)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *handler) withdraw(c *gin.Context) {
	var req fundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	entry, err := h.svc.Withdraw(c.Request.Context(), c.Param("id"), req.Amount, req.Description)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *handler) trade(c *gin.Context) {
	var req models.TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.svc.ExecuteTrade(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *handler) transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	receipt, err := h.svc.Transfer(c.Request.Context(), models.TransferRequest{
		FromAccount: req.FromAccount,
		ToAccount:   req.ToAccount,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

func (h *handler) balance(c *gin.Context) {
	id := c.Param("id")
	balance, err := h.svc.Balance(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{AccountID: id, Balance: balance})
}

func (h *handler) positions(c *gin.Context) {
	positions, err := h.svc.Positions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, positions)
}

func (h *handler) positionHistory(c *gin.Context) {
	history, err := h.svc.PositionHistory(c.Request.Context(), c.Param("id"), c.Param("security"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *handler) positionPerformance(c *gin.Context) {
	perf, err := h.svc.PositionPerformance(c.Request.Context(), c.Param("id"), c.Param("security"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, perf)
}

func (h *handler) stockHolders(c *gin.Context) {
	holders, err := h.svc.StockHolders(c.Request.Context(), c.Param("security"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, holders)
}

// history accepts kind (repeatable), security, since, until (RFC 3339),
// limit and order=asc|desc.
func (h *handler) history(c *gin.Context) {
	filter, err := historyFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	entries, err := h.svc.History(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func historyFilter(c *gin.Context) (models.EntryFilter, error) {
	var f models.EntryFilter
	for _, k := range c.QueryArray("kind") {
		kind := models.EntryKind(k)
		if !kind.Valid() {
			return f, fmt.Errorf("unknown kind %q", k)
		}
		f.Kinds = append(f.Kinds, kind)
	}
	f.SecurityID = c.Query("security")

	var err error
	if f.Since, err = queryTime(c, "since"); err != nil {
		return f, err
	}
	if f.Until, err = queryTime(c, "until"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(c, "limit", 0); err != nil {
		return f, err
	}
	switch c.DefaultQuery("order", "asc") {
	case "asc":
	case "desc":
		f.Descending = true
	default:
		return f, errors.New("order must be asc or desc")
	}
	return f, nil
}

func (h *handler) transfers(c *gin.Context) {
	transfers, err := h.svc.Transfers(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, transfers)
}

func (h *handler) summary(c *gin.Context) {
	summary, err := h.svc.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *handler) portfolio(c *gin.Context) {
	portfolio, err := h.svc.Portfolio(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, portfolio)
}

func (h *handler) topTraders(c *gin.Context) {
	limit, err := queryInt(c, "limit", h.feed.DefaultLimit)
	if err != nil {
		badRequest(c, err)
		return
	}
	traders, err := h.svc.TopTraders(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, traders)
}

func (h *handler) recentTrades(c *gin.Context) {
	limit, err := queryInt(c, "limit", h.feed.DefaultLimit)
	if err != nil {
		badRequest(c, err)
		return
	}
	days, err := queryInt(c, "days", h.feed.DefaultDays)
	if err != nil {
		badRequest(c, err)
		return
	}
	trades, err := h.svc.RecentTrades(c.Request.Context(), limit, days)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (h *handler) trendingStocks(c *gin.Context) {
	days, err := queryInt(c, "days", h.feed.DefaultDays)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := queryInt(c, "limit", h.feed.DefaultLimit)
	if err != nil {
		badRequest(c, err)
		return
	}
	stocks, err := h.svc.TrendingStocks(c.Request.Context(), days, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stocks)
}

func (h *handler) mostTradedStocks(c *gin.Context) {
	limit, err := queryInt(c, "limit", h.feed.DefaultLimit)
	if err != nil {
		badRequest(c, err)
		return
	}
	stocks, err := h.svc.MostTradedStocks(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stocks)
}

func (h *handler) traderProfile(c *gin.Context) {
	profile, err := h.svc.TraderProfile(c.Request.Context(), c.Param("user"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func queryTime(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", key, err)
	}
	return t.UTC(), nil
}
