package backtesthttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"candlepull/internal/backtest"
	"candlepull/internal/export"
	"candlepull/internal/market"
	"candlepull/internal/pkg/symbol"
	"candlepull/internal/store/gormstore"
	"candlepull/internal/store/model"

	"github.com/gin-gonic/gin"
)

// CandleReader 是 API 读取本地数据所需的最小接口。
type CandleReader interface {
	Manifest(ctx context.Context, pair, timeframe string) (gormstore.Manifest, error)
	QueryCandles(ctx context.Context, pair, timeframe string, start, end int64, limit int) (market.Candles, error)
	AllCandles(ctx context.Context, pair, timeframe string) (market.Candles, error)
	ListRuns(ctx context.Context, limit int) ([]model.FetchRunModel, error)
}

// Server 提供拉取任务与本地数据查询的 HTTP API。
type Server struct {
	addr   string
	jobs   *backtest.JobService
	store  CandleReader
	router *gin.Engine
}

// Config 描述 HTTP Server 的依赖。
type Config struct {
	Addr  string
	Jobs  *backtest.JobService
	Store CandleReader
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Jobs == nil {
		return nil, errors.New("job service 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		addr:   cfg.Addr,
		jobs:   cfg.Jobs,
		store:  cfg.Store,
		router: router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := s.router.Group("/api")
	api.GET("/intervals", s.handleIntervals)
	api.POST("/fetch", s.handleFetch)
	api.GET("/fetch/:id", s.handleFetchStatus)
	api.GET("/jobs", s.handleJobs)
	api.GET("/data", s.handleManifest)
	api.GET("/candles", s.handleCandles)
	api.GET("/candles/export", s.handleExport)
	api.GET("/runs", s.handleRuns)
}

// Handler 暴露路由，便于测试与嵌入。
func (s *Server) Handler() http.Handler { return s.router }

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

func (s *Server) handleIntervals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"intervals": backtest.SupportedTimeframes()})
}

func (s *Server) handleFetch(c *gin.Context) {
	var req struct {
		Symbol   string `json:"symbol" binding:"required"`
		Interval string `json:"interval" binding:"required"`
		DaysBack int    `json:"days_back"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := s.jobs.Submit(backtest.FetchParams{
		Symbol:   req.Symbol,
		Interval: req.Interval,
		DaysBack: req.DaysBack,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (s *Server) handleFetchStatus(c *gin.Context) {
	job, ok := s.jobs.JobSnapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (s *Server) handleJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.jobs.JobsSnapshot()})
}

func (s *Server) handleManifest(c *gin.Context) {
	pair, tf, ok := s.seriesQuery(c)
	if !ok {
		return
	}
	info, err := s.store.Manifest(c.Request.Context(), pair, tf)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifest": info})
}

func (s *Server) handleCandles(c *gin.Context) {
	pair, tf, ok := s.seriesQuery(c)
	if !ok {
		return
	}
	start, _ := strconv.ParseInt(c.Query("start_ts"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("end_ts"), 10, 64)
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 非法"})
		return
	}
	data, err := s.store.QueryCandles(c.Request.Context(), pair, tf, start, end, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": data})
}

func (s *Server) handleExport(c *gin.Context) {
	pair, tf, ok := s.seriesQuery(c)
	if !ok {
		return
	}
	data, err := s.store.AllCandles(c.Request.Context(), pair, tf)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data"})
		return
	}
	filename := fmt.Sprintf("%s_%s_data.csv", symbol.FileStem(pair), tf)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, data); err != nil {
		_ = c.Error(err)
	}
}

func (s *Server) handleRuns(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := s.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// seriesQuery 解析 symbol/interval 参数；兼容旧的 timeframe 参数名。
func (s *Server) seriesQuery(c *gin.Context) (string, string, bool) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "存储未启用"})
		return "", "", false
	}
	pair := strings.TrimSpace(c.Query("symbol"))
	tf := strings.TrimSpace(c.Query("interval"))
	if tf == "" {
		tf = strings.TrimSpace(c.Query("timeframe"))
	}
	if pair == "" || tf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/interval 必填"})
		return "", "", false
	}
	parsed, err := backtest.ParseTimeframe(tf)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", false
	}
	return symbol.ToBinance(pair), parsed.Key, true
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
