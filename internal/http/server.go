package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smartfolio/internal/domain"
	"smartfolio/internal/orchestrator"
	"smartfolio/internal/store"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *orchestrator.Service
	timeout time.Duration
}

func NewRouter(service *orchestrator.Service, timeoutSec int) *gin.Engine {
	router := gin.Default()

	h := &Handler{
		service: service,
		timeout: time.Duration(timeoutSec) * time.Second,
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", h.health)

		v1.POST("/tokens/push", h.pushToken)
		v1.POST("/tokens/push-all", h.pushAllTokens)
		v1.GET("/tokens", h.listTokens)

		v1.POST("/strategies", h.createStrategy)
		v1.GET("/strategies", h.listStrategies)
		v1.GET("/strategies/:id", h.getStrategy)
		v1.PUT("/strategies/:id", h.updateStrategy)
		v1.POST("/strategies/:id/active", h.setStrategyActive)

		v1.GET("/executions", h.listExecutions)
		v1.GET("/executions/:id", h.getExecutionReport)
		v1.POST("/executions/:id/review", h.reviewExecution)

		v1.POST("/monitor/run", h.runMonitor)
		v1.GET("/performance", h.performance)
	}

	return router
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// pushToken API 推送单个代币，只命中 superuser 策略池
func (h *Handler) pushToken(c *gin.Context) {
	var snap domain.TokenSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(snap.TokenID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token_id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	stats, err := h.service.PushToken(ctx, &snap)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "stats": stats})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// pushAllTokens 手动触发一次指定来源的批量推送
func (h *Handler) pushAllTokens(c *gin.Context) {
	source := strings.ToUpper(strings.TrimSpace(c.Query("source")))
	if !domain.IsValidSource(source) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "非法来源类型: " + source})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	stats, err := h.service.PushAllTokens(ctx, domain.SourceType(source))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "stats": stats})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) listTokens(c *gin.Context) {
	var source domain.SourceType
	if v := strings.ToUpper(strings.TrimSpace(c.Query("source"))); v != "" {
		if !domain.IsValidSource(v) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "非法来源类型: " + v})
			return
		}
		source = domain.SourceType(v)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	snaps, err := h.service.ListTokenSnapshots(ctx, source, queryInt(c, "limit", 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": snaps, "count": len(snaps)})
}

func (h *Handler) createStrategy(c *gin.Context) {
	var cfg domain.StrategyConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	id, err := h.service.CreateStrategy(ctx, &cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"strategy_id": id})
}

func (h *Handler) listStrategies(c *gin.Context) {
	var source domain.SourceType
	if v := strings.ToUpper(strings.TrimSpace(c.Query("source"))); v != "" {
		if !domain.IsValidSource(v) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "非法来源类型: " + v})
			return
		}
		source = domain.SourceType(v)
	}
	onlyActive := c.Query("active") == "true"

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	strategies, err := h.service.ListStrategies(ctx, source, onlyActive)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": strategies, "count": len(strategies)})
}

func (h *Handler) getStrategy(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	cfg, err := h.service.GetStrategy(ctx, id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) updateStrategy(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var cfg domain.StrategyConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg.StrategyID = id

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.service.UpdateStrategy(ctx, &cfg); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (h *Handler) setStrategyActive(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.service.SetStrategyActive(ctx, id, req.Active); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": req.Active})
}

func (h *Handler) listExecutions(c *gin.Context) {
	var status domain.ExecutionStatus
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		status = domain.ExecutionStatus(v)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	execs, err := h.service.ListExecutions(ctx, status, queryInt(c, "limit", 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": execs, "count": len(execs)})
}

func (h *Handler) getExecutionReport(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	report, err := h.service.GetExecutionReport(ctx, id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) reviewExecution(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	review, err := h.service.ReviewExecution(ctx, id)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"review": review})
}

// runMonitor 手动触发一个监控周期
func (h *Handler) runMonitor(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	stats, err := h.service.RunMonitorCycle(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "stats": stats})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) performance(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	perf, err := h.service.StrategyPerformance(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": perf})
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "非法 id"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
