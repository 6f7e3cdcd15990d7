package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	auditMu  sync.Mutex
	auditLog *log.Logger
)

// SetAuditWriter 设置审计日志输出。每个信号的终态（FILLED/REJECTED/FAILED）
// 都会追加一行，供事后对账。
func SetAuditWriter(w io.Writer) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if w == nil {
		auditLog = nil
		return
	}
	auditLog = log.New(w, "", log.LstdFlags|log.LUTC)
}

// Audit writes one line to the audit trail. A nil writer drops the line after
// it has already been logged through the normal logger, so nothing is lost.
func Audit(fields ...string) {
	auditMu.Lock()
	l := auditLog
	auditMu.Unlock()
	if l == nil {
		return
	}
	clean := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			f = "-"
		}
		clean = append(clean, f)
	}
	l.Print("[AUDIT] " + strings.Join(clean, " | "))
}
