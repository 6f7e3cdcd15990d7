package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Entry 是一条只追加的审计记录：每个信号的终态和每次平仓都会落一条，
// 与主库分离，方便单独归档或交给合规侧。
type Entry struct {
	ID         int64  `json:"id"`
	TS         int64  `json:"ts"`
	TraceID    string `json:"trace_id"`
	Kind       string `json:"kind"` // "outcome" | "closure"
	Instrument string `json:"instrument"`
	Side       string `json:"side,omitempty"`
	State      string `json:"state,omitempty"`
	Detail     string `json:"detail"`
}

// Store 管理审计数据库。写入串行化，读路径共享同一连接。
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("auditlog: 数据库路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS audit_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		trace_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		instrument TEXT NOT NULL,
		side TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_entries(ts);
	CREATE INDEX IF NOT EXISTS idx_audit_trace ON audit_entries(trace_id);`)
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append 写入一条审计记录。ts 为零时取当前时间。
func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.TS == 0 {
		e.TS = time.Now().Unix()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries(ts, trace_id, kind, instrument, side, state, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.TS, e.TraceID, e.Kind, e.Instrument, e.Side, e.State, e.Detail)
	return err
}

// Recent 按时间倒序返回最近的审计记录。
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, trace_id, kind, instrument, side, state, detail
		 FROM audit_entries ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TS, &e.TraceID, &e.Kind, &e.Instrument, &e.Side, &e.State, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
