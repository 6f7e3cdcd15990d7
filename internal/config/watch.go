package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"tlbot/internal/logger"

	"github.com/fsnotify/fsnotify"
)

// RiskOverrides 是可在运行期热更新的风险参数文件内容。
type RiskOverrides struct {
	Fraction        float64 `json:"fraction"`
	ReducedFraction float64 `json:"reduced_fraction"`
}

func loadRiskOverrides(path string) (RiskOverrides, error) {
	var ov RiskOverrides
	data, err := os.ReadFile(path)
	if err != nil {
		return ov, err
	}
	if err := json.Unmarshal(data, &ov); err != nil {
		return ov, fmt.Errorf("parsing risk settings failed: %w", err)
	}
	if ov.Fraction <= 0 || ov.Fraction > 0.1 {
		return ov, fmt.Errorf("risk settings: fraction 必须位于 (0, 0.1]")
	}
	if ov.ReducedFraction <= 0 || ov.ReducedFraction > ov.Fraction {
		ov.ReducedFraction = ov.Fraction / 2
	}
	return ov, nil
}

// WatchRiskSettings 监听风险参数文件并在变更时回调 apply。
// 文件不存在时不视为错误，出现后会被拾取。阻塞直到 ctx 结束。
func WatchRiskSettings(ctx context.Context, path string, apply func(RiskOverrides)) error {
	if path == "" || apply == nil {
		<-ctx.Done()
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if ov, err := loadRiskOverrides(abs); err == nil {
		apply(ov)
	} else if !os.IsNotExist(err) {
		logger.Warnf("risk settings: initial load failed: %v", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher failed: %w", err)
	}
	defer watcher.Close()
	// Watch the directory: editors replace files instead of writing in place.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s failed: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			ov, err := loadRiskOverrides(abs)
			if err != nil {
				logger.Warnf("risk settings: reload failed: %v", err)
				continue
			}
			logger.Infof("risk settings: reloaded fraction=%v reduced=%v", ov.Fraction, ov.ReducedFraction)
			apply(ov)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("risk settings: watcher error: %v", err)
		}
	}
}
