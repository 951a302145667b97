package gormstore

import "gorm.io/datatypes"

// GapRecordModel 为单条硬断裂的审计记录，按 symbol 全量重写。
type GapRecordModel struct {
	ID           int64   `gorm:"column:id;primaryKey"`
	Symbol       string  `gorm:"column:symbol;index"`
	TradeType    string  `gorm:"column:trade_type"`
	Interval     string  `gorm:"column:interval"`
	PrevOpenTime int64   `gorm:"column:prev_open_time"`
	OpenTime     int64   `gorm:"column:open_time"`
	PrevClose    float64 `gorm:"column:prev_close"`
	Open         float64 `gorm:"column:open"`
	DurationMs   int64   `gorm:"column:duration_ms"`
	PriceChange  float64 `gorm:"column:price_change"`
	RunID        string  `gorm:"column:run_id;index"`
	CreatedAt    int64   `gorm:"column:created_at"`
}

func (GapRecordModel) TableName() string { return "gap_records" }

// SegmentModel 记录一次生成产出的段清单（manifest）。
type SegmentModel struct {
	ID        int64  `gorm:"column:id;primaryKey"`
	Symbol    string `gorm:"column:symbol;index"`
	TradeType string `gorm:"column:trade_type"`
	Interval  string `gorm:"column:interval"`
	Name      string `gorm:"column:name"`
	StartTime int64  `gorm:"column:start_time"`
	EndTime   int64  `gorm:"column:end_time"`
	Candles   int64  `gorm:"column:candles"`
	Synthetic int64  `gorm:"column:synthetic"`
	RunID     string `gorm:"column:run_id;index"`
	CreatedAt int64  `gorm:"column:created_at"`
}

func (SegmentModel) TableName() string { return "segments" }

// RunModel 记录一次批处理运行及其参数快照。
type RunModel struct {
	ID         int64          `gorm:"column:id;primaryKey"`
	RunID      string         `gorm:"column:run_id;uniqueIndex"`
	Kind       string         `gorm:"column:kind"`
	Params     datatypes.JSON `gorm:"column:params"`
	StartedAt  int64          `gorm:"column:started_at"`
	FinishedAt int64          `gorm:"column:finished_at"`
	Symbols    int            `gorm:"column:symbols"`
	Failed     int            `gorm:"column:failed"`
	Status     string         `gorm:"column:status"`
}

func (RunModel) TableName() string { return "runs" }

// RunErrorModel 记录运行中单 symbol 的失败，批任务跑完统一上报。
type RunErrorModel struct {
	ID        int64  `gorm:"column:id;primaryKey"`
	RunID     string `gorm:"column:run_id;index"`
	Symbol    string `gorm:"column:symbol"`
	Stage     string `gorm:"column:stage"`
	Message   string `gorm:"column:message"`
	CreatedAt int64  `gorm:"column:created_at"`
}

func (RunErrorModel) TableName() string { return "run_errors" }
