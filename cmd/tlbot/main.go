package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"tlbot/internal/app"
	"tlbot/internal/config"
	"tlbot/internal/logger"
)

func main() {
	ctx := context.Background()
	cfgPath := os.Getenv("TLBOT_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	auditFile, err := setupAuditOutput(cfg.App.AuditLog)
	if err != nil {
		log.Fatalf("初始化审计日志失败: %v", err)
	}
	if auditFile != nil {
		defer auditFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.InfoBlock(fmt.Sprintf(`✓ 配置加载成功
环境: %s
经纪商: %s
风险比例: %v（账户货币 %s）
日内回撤上限: %v`,
		cfg.App.Env, cfg.Broker.BaseURL, cfg.Risk.Fraction, cfg.Risk.AccountCurrency, cfg.Drawdown.DailyLimitPct))

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	if err := a.Run(ctx); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

func setupAuditOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logger.SetAuditWriter(f)
	return f, nil
}
