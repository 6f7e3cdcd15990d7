package calendar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tlbot/internal/config"
	"tlbot/internal/logger"
)

// Loader 负责下载并缓存周度日历。缓存文件让重启后不依赖网络可用。
type Loader struct {
	url        string
	cachePath  string
	refresh    time.Duration
	httpClient *http.Client
}

func NewLoader(cfg config.NewsConfig) *Loader {
	refresh := time.Duration(cfg.RefreshHours) * time.Hour
	if refresh <= 0 {
		refresh = 6 * time.Hour
	}
	return &Loader{
		url:        cfg.CalendarURL,
		cachePath:  cfg.CachePath,
		refresh:    refresh,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetHTTPClient sets the HTTP client for testing.
func (l *Loader) SetHTTPClient(client *http.Client) {
	l.httpClient = client
}

// Load 优先用本地缓存起动，缓存缺失或过期时再走网络。
func (l *Loader) Load(ctx context.Context) (*Calendar, error) {
	if cal, ok := l.loadCache(); ok {
		return cal, nil
	}
	return l.Fetch(ctx)
}

func (l *Loader) loadCache() (*Calendar, bool) {
	if l.cachePath == "" {
		return nil, false
	}
	info, err := os.Stat(l.cachePath)
	if err != nil || time.Since(info.ModTime()) > l.refresh {
		return nil, false
	}
	data, err := os.ReadFile(l.cachePath)
	if err != nil {
		return nil, false
	}
	events, err := ParseCSV(bytes.NewReader(data))
	if err != nil {
		logger.Warnf("calendar: 缓存文件损坏，忽略: %v", err)
		return nil, false
	}
	logger.Infof("calendar: 从缓存加载了 %d 条事件", len(events))
	return New(events), true
}

// Fetch 下载最新日历并更新缓存文件。
func (l *Loader) Fetch(ctx context.Context) (*Calendar, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("calendar: 构造下载请求失败: %w", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar: 下载日历失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar: 下载日历失败: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("calendar: 读取日历响应失败: %w", err)
	}

	events, err := ParseCSV(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	l.writeCache(data)
	logger.Infof("calendar: 已刷新日历，共 %d 条事件", len(events))
	return New(events), nil
}

func (l *Loader) writeCache(data []byte) {
	if l.cachePath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(l.cachePath), 0o755); err != nil {
		logger.Warnf("calendar: 创建缓存目录失败: %v", err)
		return
	}
	if err := os.WriteFile(l.cachePath, data, 0o644); err != nil {
		logger.Warnf("calendar: 写入缓存失败: %v", err)
	}
}

// Run 周期性刷新日历并替换 store 中的快照，直到 ctx 结束。
// 单次刷新失败只告警，旧快照继续生效。
func (l *Loader) Run(ctx context.Context, store *Store) {
	ticker := time.NewTicker(l.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cal, err := l.Fetch(ctx)
			if err != nil {
				logger.Warnf("calendar: 定时刷新失败: %v", err)
				continue
			}
			store.Replace(cal)
		}
	}
}
