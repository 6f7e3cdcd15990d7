package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"tlbot/internal/broker/tradelocker"
	"tlbot/internal/gate"
	"tlbot/internal/logger"
	"tlbot/internal/monitor"
	"tlbot/internal/pipeline"
	"tlbot/internal/store/model"
)

// GormStore 用 Gorm + SQLite 持久化回撤记录、信号终态、平仓事件与订单缓存。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&model.DrawdownDayModel{},
		&model.SignalOutcomeModel{},
		&model.PositionClosureModel{},
		&model.CachedOrderModel{},
	); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var (
	_ gate.DayStore       = (*GormStore)(nil)
	_ pipeline.Sink       = (*GormStore)(nil)
	_ monitor.ClosureSink = (*GormStore)(nil)
)

// LoadDay 读取指定交易日的回撤记录。
func (s *GormStore) LoadDay(key string) (gate.DayRecord, bool, error) {
	var row model.DrawdownDayModel
	err := s.db.Where("day_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gate.DayRecord{}, false, nil
	}
	if err != nil {
		return gate.DayRecord{}, false, err
	}
	rec := gate.DayRecord{DayKey: row.DayKey, Breached: row.Breached}
	if rec.StartingEquity, err = decimal.NewFromString(row.StartingEquity); err != nil {
		return gate.DayRecord{}, false, fmt.Errorf("gorm store: 交易日 %s 起始权益损坏: %w", key, err)
	}
	if rec.RealizedLoss, err = decimal.NewFromString(row.RealizedLoss); err != nil {
		return gate.DayRecord{}, false, fmt.Errorf("gorm store: 交易日 %s 已实现亏损损坏: %w", key, err)
	}
	return rec, true, nil
}

// SaveDay 按交易日键 upsert 回撤记录。
func (s *GormStore) SaveDay(rec gate.DayRecord) error {
	row := model.DrawdownDayModel{
		DayKey:         rec.DayKey,
		StartingEquity: rec.StartingEquity.String(),
		RealizedLoss:   rec.RealizedLoss.String(),
		Breached:       rec.Breached,
		UpdatedAtUnix:  time.Now().Unix(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "day_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"starting_equity", "realized_loss", "breached", "updated_at"}),
	}).Create(&row).Error
}

// Record 实现 pipeline.Sink，把信号终态落库。落库失败只记日志，
// 不反向影响流水线。
func (s *GormStore) Record(ctx context.Context, o pipeline.Outcome) {
	warnings, _ := json.Marshal(o.Warnings)
	row := model.SignalOutcomeModel{
		SignalID:     o.SignalID,
		TraceID:      o.TraceID,
		Instrument:   o.Instrument,
		Side:         o.Side,
		State:        string(o.State),
		Reason:       o.Reason,
		OrderID:      o.OrderID,
		Quantity:     o.Quantity,
		Warnings:     warnings,
		FinishedUnix: o.FinishedAt.Unix(),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trace_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "reason", "order_id", "quantity", "warnings", "finished_at"}),
	}).Create(&row).Error; err != nil {
		logError("写入信号终态失败", err)
	}
}

// ListOutcomes 按结束时间倒序返回最近的信号终态。
func (s *GormStore) ListOutcomes(ctx context.Context, limit int) ([]model.SignalOutcomeModel, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []model.SignalOutcomeModel
	err := s.db.WithContext(ctx).Order("finished_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// PositionClosed 实现 monitor.ClosureSink。position_id 唯一索引保证
// 重复事件幂等。
func (s *GormStore) PositionClosed(ctx context.Context, ev monitor.ClosureEvent) {
	row := model.PositionClosureModel{
		PositionID: ev.PositionID,
		Instrument: ev.Instrument,
		FinalPnL:   ev.FinalPnL.String(),
		ClosedUnix: ev.CloseTime.Unix(),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		logError("写入平仓事件失败", err)
	}
}

// ListClosures 返回最近的平仓事件。
func (s *GormStore) ListClosures(ctx context.Context, limit int) ([]model.PositionClosureModel, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []model.PositionClosureModel
	err := s.db.WithContext(ctx).Order("closed_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// CacheOrder 保存一笔已受理订单的快照。
func (s *GormStore) CacheOrder(ctx context.Context, orderID string, intent tradelocker.OrderIntent) error {
	raw, _ := json.Marshal(intent)
	row := model.CachedOrderModel{
		OrderID:      orderID,
		Instrument:   intent.Instrument,
		Side:         intent.Side,
		Quantity:     intent.Qty.String(),
		Price:        intent.Price.String(),
		StopLoss:     intent.StopLoss.String(),
		TakeProfit:   intent.TakeProfit.String(),
		Raw:          raw,
		PlacedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// RecentOrders 返回最近缓存的订单。
func (s *GormStore) RecentOrders(ctx context.Context, limit int) ([]model.CachedOrderModel, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []model.CachedOrderModel
	err := s.db.WithContext(ctx).Order("placed_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func logError(msg string, err error) {
	logger.Errorf("[store] %s: %v", msg, err)
}
