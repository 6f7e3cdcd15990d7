package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tlbot/internal/gate"
	"tlbot/internal/logger"
	"tlbot/internal/signal"
	"tlbot/internal/store/auditlog"
	"tlbot/internal/store/gormstore"
)

// SignalPublisher 把经由 HTTP 投递的信号交给流水线。
type SignalPublisher interface {
	Publish(sig signal.Signal)
}

type signalRequest struct {
	Instrument  string   `json:"instrument" binding:"required"`
	Side        string   `json:"side" binding:"required"`
	Kind        string   `json:"kind"`
	EntryPrice  string   `json:"entry_price"`
	StopLoss    string   `json:"stop_loss" binding:"required"`
	TakeProfits []string `json:"take_profits" binding:"required"`
	ReducedRisk bool     `json:"reduced_risk"`
}

// Server 提供运维查询接口：健康检查、信号终态、平仓事件、回撤状态。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述 HTTP 服务依赖。
type ServerConfig struct {
	Addr     string
	Store    *gormstore.GormStore
	Audit    *auditlog.Store
	Drawdown *gate.DrawdownGate
	Signals  SignalPublisher
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("http server requires a store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/outcomes", func(c *gin.Context) {
		rows, err := cfg.Store.ListOutcomes(c.Request.Context(), queryLimit(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"outcomes": rows})
	})
	api.GET("/closures", func(c *gin.Context) {
		rows, err := cfg.Store.ListClosures(c.Request.Context(), queryLimit(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"closures": rows})
	})
	api.GET("/orders", func(c *gin.Context) {
		rows, err := cfg.Store.RecentOrders(c.Request.Context(), queryLimit(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": rows})
	})
	if cfg.Drawdown != nil {
		dd := cfg.Drawdown
		api.GET("/drawdown", func(c *gin.Context) {
			rec, loaded := dd.Snapshot()
			c.JSON(http.StatusOK, gin.H{
				"loaded":          loaded,
				"day_key":         rec.DayKey,
				"starting_equity": rec.StartingEquity,
				"realized_loss":   rec.RealizedLoss,
				"breached":        dd.Breached(time.Now().UTC()),
			})
		})
	}
	if cfg.Signals != nil {
		publisher := cfg.Signals
		api.POST("/signals", func(c *gin.Context) {
			var req signalRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			sig, err := req.toSignal()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			publisher.Publish(sig)
			c.JSON(http.StatusAccepted, gin.H{"id": sig.ID})
		})
	}
	if cfg.Audit != nil {
		audit := cfg.Audit
		api.GET("/audit", func(c *gin.Context) {
			rows, err := audit.Recent(c.Request.Context(), queryLimit(c))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"entries": rows})
		})
	}

	return &Server{addr: cfg.Addr, router: router}, nil
}

// toSignal 把请求体转换成已校验的信号。价格用十进制文本传递，
// 避免 JSON 浮点精度损失。
func (r signalRequest) toSignal() (signal.Signal, error) {
	sig := signal.Signal{
		Instrument:  r.Instrument,
		Side:        signal.Side(r.Side),
		Kind:        signal.OrderKind(r.Kind),
		ReducedRisk: r.ReducedRisk,
		ReceivedAt:  time.Now().UTC(),
	}
	if sig.Kind == "" {
		sig.Kind = signal.KindMarket
	}
	var err error
	if r.EntryPrice != "" {
		if sig.EntryPrice, err = decimal.NewFromString(r.EntryPrice); err != nil {
			return signal.Signal{}, err
		}
	}
	if sig.StopLoss, err = decimal.NewFromString(r.StopLoss); err != nil {
		return signal.Signal{}, err
	}
	for _, tp := range r.TakeProfits {
		level, err := decimal.NewFromString(tp)
		if err != nil {
			return signal.Signal{}, err
		}
		sig.TakeProfits = append(sig.TakeProfits, level)
	}
	if err := sig.Validate(); err != nil {
		return signal.Signal{}, err
	}
	return sig, nil
}

func queryLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || n <= 0 {
		return 100
	}
	return n
}

// requestLogger 记录接口调用，便于追踪人工操作。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler 暴露路由，测试用。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
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
