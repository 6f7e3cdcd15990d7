// Package logger 是全局结构化日志的薄封装：slog 文本输出加 printf 风格
// 入口，启动时可切换级别与输出目标。
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"log/slog"
)

var (
	levelVar slog.LevelVar
	current  atomic.Pointer[slog.Logger]
)

func init() {
	levelVar.Set(slog.LevelInfo)
	current.Store(newLogger(os.Stdout))
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar}))
}

// SetOutput 切换日志输出目标（启动时定向到日志文件）。
func SetOutput(w io.Writer) {
	current.Store(newLogger(w))
}

// SetLevel 按字符串设置级别，未知值回落到 info。
func SetLevel(level string) {
	levelVar.Set(parseLevel(level))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func active() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	l := newLogger(os.Stdout)
	current.Store(l)
	return l
}

func Debugf(format string, v ...any) {
	active().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	active().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	active().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	active().Error(fmt.Sprintf(format, v...))
}

// InfoBlock 把多行文本逐行打成 info 日志，用于启动摘要。
func InfoBlock(block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	for _, line := range strings.Split(block, "\n") {
		Infof("%s", line)
	}
}
