package apihttp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"bhds/internal/market"
	"bhds/internal/store"
	"bhds/internal/store/gormstore"
)

// Router 暴露 K 线与报告查询接口。
type Router struct {
	store   *store.Store
	reports *gormstore.ReportStore
}

func NewRouter(s *store.Store, reports *gormstore.ReportStore) *Router {
	return &Router{store: s, reports: reports}
}

// Register 将查询路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/symbols", r.handleSymbols)
	group.GET("/klines", r.handleKlines)
	if r.reports != nil {
		group.GET("/gaps", r.handleGaps)
		group.GET("/segments", r.handleSegments)
		group.GET("/runs", r.handleRuns)
		group.GET("/runs/:id/errors", r.handleRunErrors)
	}
}

func (r *Router) handleSymbols(c *gin.Context) {
	tradeType, err := market.ParseTradeType(c.DefaultQuery("trade_type", "spot"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	stage := store.Stage(c.DefaultQuery("stage", string(store.StageHolo)))
	symbols, err := r.store.Symbols(tradeType, stage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": symbols, "count": len(symbols)})
}

func (r *Router) handleKlines(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 不能为空"})
		return
	}
	tradeType, err := market.ParseTradeType(c.DefaultQuery("trade_type", "spot"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	stage := store.Stage(c.DefaultQuery("stage", string(store.StageHolo)))
	interval := c.DefaultQuery("interval", "1m")
	key := store.SeriesKey{
		TradeType: tradeType,
		Stage:     stage,
		Symbol:    symbol,
		Interval:  interval,
		Freq:      stageFreq(stage),
	}
	start := queryInt64(c, "start", 0)
	end := queryInt64(c, "end", 1<<62)
	candles, err := r.store.ReadRange(c.Request.Context(), key, start, end)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, market.ErrValidation) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "interval": interval, "count": len(candles), "klines": candles})
}

func (r *Router) handleGaps(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	gaps, err := r.reports.Gaps(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(gaps), "gaps": gaps})
}

func (r *Router) handleSegments(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	segments, err := r.reports.Segments(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(segments), "segments": segments})
}

func (r *Router) handleRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 {
		limit = 20
	}
	runs, err := r.reports.Runs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(runs), "runs": runs})
}

func (r *Router) handleRunErrors(c *gin.Context) {
	runID := c.Param("id")
	errs, err := r.reports.RunErrors(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "count": len(errs), "errors": errs})
}

// stageFreq 由层推断分区粒度：原生层按日，重采样与资金费率按月。
func stageFreq(stage store.Stage) store.PartitionFreq {
	switch stage {
	case store.StageResampled, store.StageFunding:
		return store.FreqMonthly
	default:
		return store.FreqDaily
	}
}

func queryInt64(c *gin.Context, name string, fallback int64) int64 {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
