package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tlbot/internal/broker/ratelimit"
	"tlbot/internal/broker/tradelocker"
	"tlbot/internal/calendar"
	"tlbot/internal/config"
	"tlbot/internal/gate"
	"tlbot/internal/logger"
	"tlbot/internal/monitor"
	"tlbot/internal/notifier"
	"tlbot/internal/pipeline"
	"tlbot/internal/pipeline/middlewares"
	"tlbot/internal/risk"
	"tlbot/internal/scheduler"
	"tlbot/internal/signal"
	"tlbot/internal/store/auditlog"
	"tlbot/internal/store/gormstore"
	httpapi "tlbot/internal/transport/http"
)

// App 组装全部组件：限流器、经纪商客户端、闸门、流水线、监控与 HTTP 服务。
type App struct {
	cfg *config.Config

	limiter  *ratelimit.Limiter
	client   *tradelocker.Client
	store    *gormstore.GormStore
	audit    *auditlog.Store
	calStore *calendar.Store
	loader   *calendar.Loader
	news     *gate.NewsGate
	drawdown *gate.DrawdownGate
	params   *risk.Params
	source   *signal.ChanSource
	executor *pipeline.Executor
	monitor  *monitor.Monitor
	httpSrv  *httpapi.Server
}

func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: 配置为空")
	}

	limiter, err := ratelimit.New(fallbackRules(cfg.RateLimit.Rules))
	if err != nil {
		return nil, fmt.Errorf("app: 初始化限流器失败: %w", err)
	}
	client, err := tradelocker.NewClient(cfg.Broker, limiter)
	if err != nil {
		return nil, fmt.Errorf("app: 初始化经纪商客户端失败: %w", err)
	}
	store, err := gormstore.NewGormStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("app: 初始化存储失败: %w", err)
	}
	audit, err := auditlog.NewStore(cfg.Store.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("app: 初始化审计库失败: %w", err)
	}

	calStore := calendar.NewStore(nil)
	var loader *calendar.Loader
	if cfg.News.Enabled {
		loader = calendar.NewLoader(cfg.News)
	}
	news := gate.NewNewsGate(cfg.News, calStore)
	drawdown, err := gate.NewDrawdownGate(cfg.Drawdown, store)
	if err != nil {
		return nil, fmt.Errorf("app: 初始化回撤闸门失败: %w", err)
	}
	params := risk.NewParams(cfg.Risk)

	a := &App{
		cfg:      cfg,
		limiter:  limiter,
		client:   client,
		store:    store,
		audit:    audit,
		calStore: calStore,
		loader:   loader,
		news:     news,
		drawdown: drawdown,
		params:   params,
		source:   signal.NewChanSource(16),
	}

	closureSinks := []monitor.ClosureSink{store, closureAudit{audit}}
	outcomeSinks := []pipeline.Sink{store, outcomeAudit{audit}}
	if cfg.Notify.Telegram.Enabled {
		tg := notifier.NewSink(notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID))
		closureSinks = append(closureSinks, tg)
		outcomeSinks = append(outcomeSinks, tg)
	}

	a.monitor = monitor.New(cfg.Monitor, client, closureFanout(closureSinks))
	outcomeSinks = append(outcomeSinks, planRegistrar{a.monitor, store})

	pipe := pipeline.New("execution", middlewares.StandardChain(client, news, drawdown, params)...)
	a.executor = pipeline.NewExecutor(pipe, client, sinkFanout(outcomeSinks))

	a.httpSrv, err = httpapi.NewServer(httpapi.ServerConfig{
		Addr:     cfg.App.HTTPAddr,
		Store:    store,
		Audit:    audit,
		Drawdown: drawdown,
		Signals:  a.source,
	})
	if err != nil {
		return nil, fmt.Errorf("app: 初始化 HTTP 服务失败: %w", err)
	}
	return a, nil
}

// Publish 把一个信号交给执行流水线。供外部信道监听器调用。
func (a *App) Publish(sig signal.Signal) {
	a.source.Publish(sig)
}

// Run 启动全部后台任务，任一关键任务出错即整体退出。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}

	// 拉取经纪商配置（限流规则 + 列 schema）。失败时继续用内置兜底。
	if err := a.client.Bootstrap(ctx); err != nil {
		logger.Warnf("[app] 经纪商配置拉取失败，使用本地兜底: %v", err)
	}

	if a.loader != nil {
		if cal, err := a.loader.Load(ctx); err != nil {
			logger.Warnf("[app] 日历首次加载失败: %v", err)
		} else {
			a.calStore.Replace(cal)
		}
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		defer a.Close()
		return a.executor.Run(ctx, a.source)
	})

	group.Go(func() error {
		poll := time.Duration(a.cfg.Monitor.PollSeconds) * time.Second
		if poll <= 0 {
			poll = 10 * time.Second
		}
		sched := scheduler.NewIntervalScheduler("monitor", poll)
		sched.RunImmediately = true
		sched.Start(ctx, a.monitor.Cycle)
		return nil
	})

	if a.loader != nil {
		group.Go(func() error {
			a.loader.Run(ctx, a.calStore)
			return nil
		})
	}

	if path := a.cfg.Risk.SettingsPath; path != "" {
		group.Go(func() error {
			if err := config.WatchRiskSettings(ctx, path, a.params.Apply); err != nil {
				logger.Warnf("[app] 风险参数热加载退出: %v", err)
			}
			return nil
		})
	}

	return group.Wait()
}

// Close 释放持久化资源。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.audit != nil {
		_ = a.audit.Close()
	}
}

func fallbackRules(rules []config.RateLimitRule) []ratelimit.Rule {
	out := make([]ratelimit.Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, ratelimit.Rule{
			Category:    r.Category,
			Measure:     r.Measure,
			IntervalNum: r.IntervalNum,
			Limit:       r.Limit,
		})
	}
	return out
}
