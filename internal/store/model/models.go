package model

import (
	"gorm.io/datatypes"
)

// DrawdownDayModel 按交易日持久化回撤闸门的记录，重启后破限标记仍然生效。
type DrawdownDayModel struct {
	ID             int64  `gorm:"column:id;primaryKey"`
	DayKey         string `gorm:"column:day_key;uniqueIndex"`
	StartingEquity string `gorm:"column:starting_equity"` // decimal 文本，避免浮点漂移
	RealizedLoss   string `gorm:"column:realized_loss"`
	Breached       bool   `gorm:"column:breached"`
	UpdatedAtUnix  int64  `gorm:"column:updated_at"`
}

func (DrawdownDayModel) TableName() string { return "drawdown_days" }

// SignalOutcomeModel 记录每个信号的终态，供运维接口与审计查询。
type SignalOutcomeModel struct {
	ID           int64          `gorm:"column:id;primaryKey"`
	SignalID     string         `gorm:"column:signal_id;index"`
	TraceID      string         `gorm:"column:trace_id;uniqueIndex"`
	Instrument   string         `gorm:"column:instrument;index"`
	Side         string         `gorm:"column:side"`
	State        string         `gorm:"column:state"`
	Reason       string         `gorm:"column:reason"`
	OrderID      string         `gorm:"column:order_id"`
	Quantity     string         `gorm:"column:quantity"`
	Warnings     datatypes.JSON `gorm:"column:warnings"`
	FinishedUnix int64          `gorm:"column:finished_at;index"`
}

func (SignalOutcomeModel) TableName() string { return "signal_outcomes" }

// PositionClosureModel 记录监控循环检测到的平仓事件。
type PositionClosureModel struct {
	ID         int64  `gorm:"column:id;primaryKey"`
	PositionID string `gorm:"column:position_id;uniqueIndex"`
	Instrument string `gorm:"column:instrument"`
	FinalPnL   string `gorm:"column:final_pnl"`
	ClosedUnix int64  `gorm:"column:closed_at;index"`
}

func (PositionClosureModel) TableName() string { return "position_closures" }

// CachedOrderModel 缓存已提交订单的快照，用于断线后的提交核对。
type CachedOrderModel struct {
	ID           int64          `gorm:"column:id;primaryKey"`
	OrderID      string         `gorm:"column:order_id;uniqueIndex"`
	Instrument   string         `gorm:"column:instrument;index"`
	Side         string         `gorm:"column:side"`
	Quantity     string         `gorm:"column:quantity"`
	Price        string         `gorm:"column:price"`
	StopLoss     string         `gorm:"column:stop_loss"`
	TakeProfit   string         `gorm:"column:take_profit"`
	Raw          datatypes.JSON `gorm:"column:raw"`
	PlacedAtUnix int64          `gorm:"column:placed_at;index"`
}

func (CachedOrderModel) TableName() string { return "cached_orders" }
