// Package api serves the brokerage operations over HTTP with gin.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sheikh-saqib/brokerage-ledger/internal/brokerage"
	"github.com/sheikh-saqib/brokerage-ledger/internal/config"
	"github.com/sirupsen/logrus"
)

type handler struct {
	svc  *brokerage.Service
	feed config.FeedConfig
	log  logrus.FieldLogger
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(svc *brokerage.Service, feed config.FeedConfig, log logrus.FieldLogger) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	h := &handler{svc: svc, feed: feed, log: log}

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	accounts := r.Group("/accounts/:id")
	accounts.POST("/deposits", h.deposit)
	accounts.POST("/withdrawals", h.withdraw)
	accounts.GET("/balance", h.balance)
	accounts.GET("/positions", h.positions)
	accounts.GET("/positions/:security/history", h.positionHistory)
	accounts.GET("/positions/:security/performance", h.positionPerformance)
	accounts.GET("/history", h.history)
	accounts.GET("/transfers", h.transfers)
	accounts.GET("/summary", h.summary)
	accounts.GET("/portfolio", h.portfolio)

	r.GET("/securities/:security/holders", h.stockHolders)

	r.POST("/trades", h.trade)
	r.POST("/transfers", h.transfer)

	feedGroup := r.Group("/feed")
	feedGroup.GET("/top-traders", h.topTraders)
	feedGroup.GET("/recent-trades", h.recentTrades)
	feedGroup.GET("/trending-stocks", h.trendingStocks)
	feedGroup.GET("/most-traded-stocks", h.mostTradedStocks)
	feedGroup.GET("/traders/:user", h.traderProfile)

	return r
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Debug("request")
	}
}
