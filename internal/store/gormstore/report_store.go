// Package gormstore 基于 Gorm + SQLite 持久化运行记录、断裂报告与段清单，
// 供巡检与 HTTP 查询接口使用。K 线本体不走这里（见 internal/store）。
package gormstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bhds/internal/market"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ReportStore struct {
	db *gorm.DB
}

func NewReportStore(path string) (*ReportStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("report store 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&GapRecordModel{}, &SegmentModel{}, &RunModel{}, &RunErrorModel{}); err != nil {
		return nil, err
	}
	return &ReportStore{db: db}, nil
}

func (s *ReportStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StartRun 登记一次运行。params 为任意可 JSON 化的参数快照。
func (s *ReportStore) StartRun(ctx context.Context, runID, kind string, params []byte) error {
	rec := RunModel{
		RunID:     runID,
		Kind:      kind,
		Params:    params,
		StartedAt: time.Now().UnixMilli(),
		Status:    "running",
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// FinishRun 回写运行结果。
func (s *ReportStore) FinishRun(ctx context.Context, runID string, symbols, failed int) error {
	status := "ok"
	if failed > 0 {
		status = "partial"
	}
	return s.db.WithContext(ctx).Model(&RunModel{}).
		Where("run_id = ?", runID).
		Updates(map[string]any{
			"finished_at": time.Now().UnixMilli(),
			"symbols":     symbols,
			"failed":      failed,
			"status":      status,
		}).Error
}

// RecordError 登记单 symbol 失败，不中断其他 symbol。
func (s *ReportStore) RecordError(ctx context.Context, runID, symbol, stage string, err error) error {
	rec := RunErrorModel{
		RunID:     runID,
		Symbol:    symbol,
		Stage:     stage,
		Message:   err.Error(),
		CreatedAt: time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// ReplaceGaps 整体重写某 symbol 的断裂报告（每次生成都是全量扫描）。
func (s *ReportStore) ReplaceGaps(ctx context.Context, runID string, tradeType market.TradeType, symbol, interval string, gaps []market.Gap) error {
	now := time.Now().UnixMilli()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("symbol = ? AND trade_type = ? AND interval = ?", symbol, string(tradeType), interval).
			Delete(&GapRecordModel{}).Error; err != nil {
			return err
		}
		for _, g := range gaps {
			rec := GapRecordModel{
				Symbol:       symbol,
				TradeType:    string(tradeType),
				Interval:     interval,
				PrevOpenTime: g.PrevOpenTime,
				OpenTime:     g.OpenTime,
				PrevClose:    g.PrevClose,
				Open:         g.Open,
				DurationMs:   g.Duration,
				PriceChange:  g.PriceChange,
				RunID:        runID,
				CreatedAt:    now,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceSegments 整体重写某 symbol 的段清单。
func (s *ReportStore) ReplaceSegments(ctx context.Context, runID string, tradeType market.TradeType, symbol, interval string, segments []market.Segment) error {
	now := time.Now().UnixMilli()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("symbol = ? AND trade_type = ? AND interval = ?", symbol, string(tradeType), interval).
			Delete(&SegmentModel{}).Error; err != nil {
			return err
		}
		for _, seg := range segments {
			synthetic := int64(0)
			for _, c := range seg.Candles {
				if c.Synthetic() {
					synthetic++
				}
			}
			rec := SegmentModel{
				Symbol:    symbol,
				TradeType: string(tradeType),
				Interval:  interval,
				Name:      seg.Name,
				StartTime: seg.Start(),
				EndTime:   seg.End(),
				Candles:   int64(len(seg.Candles)),
				Synthetic: synthetic,
				RunID:     runID,
				CreatedAt: now,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Gaps 返回某 symbol 的断裂报告，按断裂时间排序。
func (s *ReportStore) Gaps(ctx context.Context, symbol string) ([]GapRecordModel, error) {
	var out []GapRecordModel
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("open_time ASC").
		Find(&out).Error
	return out, err
}

// Segments 返回某 symbol 的段清单。
func (s *ReportStore) Segments(ctx context.Context, symbol string) ([]SegmentModel, error) {
	var out []SegmentModel
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("start_time ASC").
		Find(&out).Error
	return out, err
}

// Runs 返回最近的运行记录。
func (s *ReportStore) Runs(ctx context.Context, limit int) ([]RunModel, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []RunModel
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// RunErrors 返回某次运行的失败明细。
func (s *ReportStore) RunErrors(ctx context.Context, runID string) ([]RunErrorModel, error) {
	var out []RunErrorModel
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}
