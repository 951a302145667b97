// Package pipeline 把存储、合并、断裂引擎与重采样器串成单 symbol 流水线，
// 并提供跨 symbol 的并行批处理入口。symbol 之间完全独立、无共享可变
// 状态；单 symbol 内各阶段严格串行。
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bhds/internal/gap"
	"bhds/internal/logger"
	"bhds/internal/market"
	"bhds/internal/merge"
	"bhds/internal/resample"
	"bhds/internal/store"
	"bhds/internal/store/gormstore"
)

// RuleSpec 描述一条重采样规则。BaseOffset 非空时按其步进展开全部锚点。
type RuleSpec struct {
	Interval   string `json:"interval"`
	Offset     string `json:"offset"`
	BaseOffset string `json:"base_offset"`
}

// Config 为流水线参数，全部由外层（配置文件）校验后传入。
type Config struct {
	TradeType      market.TradeType `json:"trade_type"`
	Interval       string           `json:"interval"`
	MinGap         time.Duration    `json:"min_gap"`
	MinPriceChange float64          `json:"min_price_change"`
	MinSegment     int              `json:"min_segment_candles"`
	IncludeVwap    bool             `json:"include_vwap"`
	IncludeFunding bool             `json:"include_funding"`
	ExcludeEmpty   bool             `json:"exclude_empty"`
	Rules          []RuleSpec       `json:"rules"`
}

// Pipeline 持有单市场的处理依赖，构造时解析市场类型与原生周期，
// 之后不再逐条判断。
type Pipeline struct {
	cfg     Config
	native  time.Duration
	engine  *gap.Engine
	store   *store.Store
	reports *gormstore.ReportStore
}

func New(cfg Config, s *store.Store, reports *gormstore.ReportStore) (*Pipeline, error) {
	if cfg.TradeType == market.TradeTypeSpot && cfg.IncludeFunding {
		return nil, fmt.Errorf("%w: 现货序列不能包含资金费率", market.ErrValidation)
	}
	native, err := market.ParseInterval(cfg.Interval)
	if err != nil {
		return nil, err
	}
	engine := gap.NewEngine(gap.Config{
		MinGap:            cfg.MinGap,
		MinPriceChange:    cfg.MinPriceChange,
		MinSegmentCandles: cfg.MinSegment,
		IncludeVwap:       cfg.IncludeVwap,
	}, native)
	return &Pipeline{cfg: cfg, native: native, engine: engine, store: s, reports: reports}, nil
}

// Stats 汇总单 symbol 一次生成的产出。
type Stats struct {
	Merged    int `json:"merged"`
	Gaps      int `json:"gaps"`
	Segments  int `json:"segments"`
	Synthetic int `json:"synthetic"`
	Dropped   int `json:"dropped_segments"`
}

// Generate 执行单 symbol 的 合并 → 扫描 → 分段 → 补洞 → 落盘。
// 整条历史不足最小段长时产出零段并正常返回；段内补洞失败（内部缺陷）
// 中止该段、记录失败，其余段继续。
func (p *Pipeline) Generate(ctx context.Context, runID, symbol string) (Stats, error) {
	var stats Stats

	parsedKey := p.seriesKey(store.StageParsed, symbol, p.cfg.Interval, store.FreqDaily)
	apiKey := p.seriesKey(store.StageAPI, symbol, p.cfg.Interval, store.FreqDaily)
	archival, err := p.store.ReadAll(ctx, parsedKey)
	if err != nil {
		return stats, fmt.Errorf("读取归档层失败: %w", err)
	}
	live, err := p.store.ReadAll(ctx, apiKey)
	if err != nil {
		return stats, fmt.Errorf("读取 API 层失败: %w", err)
	}
	merged := merge.Klines(archival, live, merge.Options{ExcludeEmpty: p.cfg.ExcludeEmpty})
	stats.Merged = len(merged)
	if len(merged) == 0 {
		logger.Warnf("%s 无可合并数据", symbol)
		return stats, nil
	}
	if p.cfg.IncludeVwap {
		merged = merge.AddVwap(merged)
	}
	if p.cfg.IncludeFunding {
		rates, err := p.store.ReadFunding(ctx, store.FundingKey(p.cfg.TradeType, symbol), 0, 1<<62)
		if err != nil {
			return stats, fmt.Errorf("读取资金费率失败: %w", err)
		}
		merged = merge.JoinFunding(merged, rates, p.native)
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	gaps := p.engine.Scan(merged)
	stats.Gaps = len(gaps)
	if err := p.reports.ReplaceGaps(ctx, runID, p.cfg.TradeType, symbol, p.cfg.Interval, gaps); err != nil {
		return stats, fmt.Errorf("写入断裂报告失败: %w", err)
	}
	segments := p.engine.Split(symbol, merged, gaps)
	stats.Dropped = segmentCountAfterSplit(merged, gaps) - len(segments)
	if len(segments) == 0 {
		logger.Infof("%s 历史过短，无可用段（正常结果）", symbol)
		if err := p.pruneSegments(symbol, nil); err != nil {
			return stats, err
		}
		return stats, nil
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	var filled []market.Segment
	for _, seg := range segments {
		f, err := p.engine.Fill(seg)
		if err != nil {
			// 补洞不变量失败属于内部缺陷：该段放弃，其余段照常产出。
			logger.Errorf("%s 段 %s 补洞失败: %v", symbol, seg.Name, err)
			if p.reports != nil {
				_ = p.reports.RecordError(ctx, runID, symbol, "fill:"+seg.Name, err)
			}
			continue
		}
		for _, c := range f.Candles {
			if c.Synthetic() {
				stats.Synthetic++
			}
		}
		filled = append(filled, f)
	}
	keep := make(map[string]bool, len(segments))
	for _, seg := range segments {
		keep[seg.Name] = true
	}
	if err := p.pruneSegments(symbol, keep); err != nil {
		return stats, err
	}
	for _, seg := range filled {
		if err := p.writeSegment(ctx, store.StageHolo, p.cfg.Interval, store.FreqDaily, seg); err != nil {
			return stats, err
		}
	}
	stats.Segments = len(filled)
	if err := p.reports.ReplaceSegments(ctx, runID, p.cfg.TradeType, symbol, p.cfg.Interval, filled); err != nil {
		return stats, fmt.Errorf("写入段清单失败: %w", err)
	}
	return stats, nil
}

// Resample 对 symbol 的全部补齐段执行配置的重采样规则并落盘。
func (p *Pipeline) Resample(ctx context.Context, symbol string) error {
	names, err := p.segmentNames(ctx, symbol)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		logger.Warnf("%s 没有可重采样的段", symbol)
		return nil
	}
	for _, rule := range p.cfg.Rules {
		target, err := market.ParseInterval(rule.Interval)
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return err
			}
			holoKey := p.seriesKey(store.StageHolo, name, p.cfg.Interval, store.FreqDaily)
			candles, err := p.store.ReadAll(ctx, holoKey)
			if err != nil {
				return fmt.Errorf("读取段 %s 失败: %w", name, err)
			}
			if rule.BaseOffset != "" {
				base, err := market.ParseInterval(rule.BaseOffset)
				if err != nil {
					return err
				}
				byOffset, err := resample.Offsets(candles, p.native, target, base)
				if err != nil {
					return err
				}
				for offsetKey, resampled := range byOffset {
					if err := p.writeResampled(ctx, name, rule.Interval, offsetKey, resampled); err != nil {
						return err
					}
				}
				continue
			}
			r, err := resample.ParseRule(rule.Interval, rule.Offset)
			if err != nil {
				return err
			}
			resampled, err := resample.Candles(candles, p.native, r)
			if err != nil {
				return err
			}
			offsetKey := "0m"
			if rule.Offset != "" {
				offsetKey = rule.Offset
			}
			if err := p.writeResampled(ctx, name, rule.Interval, offsetKey, resampled); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) writeResampled(ctx context.Context, name, interval, offset string, candles []market.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	storedInterval := interval
	if offset != "" && offset != "0m" {
		storedInterval = interval + "_" + offset
	}
	seg := market.Segment{Name: name, Candles: candles}
	return p.writeSegment(ctx, store.StageResampled, storedInterval, store.FreqMonthly, seg)
}

// writeSegment 把段按分区切片后整分区原子写入。写入前先把序列收窄到
// 新段的时间边界：重新分段后段边界会移动，上一轮落在新边界之外的
// 分区若不清除，读出的序列会跨越硬断裂。
func (p *Pipeline) writeSegment(ctx context.Context, stage store.Stage, interval string, freq store.PartitionFreq, seg market.Segment) error {
	if len(seg.Candles) == 0 {
		return nil
	}
	key := p.seriesKey(stage, seg.Name, interval, freq)
	candles := seg.Candles
	if err := p.store.DeleteOutside(ctx, key, candles[0].OpenTime, candles[len(candles)-1].OpenTime); err != nil {
		return fmt.Errorf("清理段 %s 过期分区失败: %w", seg.Name, err)
	}
	for _, partition := range freq.PartitionRange(seg.Candles[0].OpenTime, seg.Candles[len(seg.Candles)-1].OpenTime) {
		start, end, err := freq.PartitionBounds(partition)
		if err != nil {
			return err
		}
		lo := searchOpenTime(candles, start)
		hi := searchOpenTime(candles, end)
		if lo == hi {
			continue
		}
		if err := p.store.WritePartition(ctx, key, partition, candles[lo:hi]); err != nil {
			return fmt.Errorf("写入分区 %s/%s 失败: %w", seg.Name, partition, err)
		}
	}
	return nil
}

// segmentNames 从段清单读取该 symbol 当前有效的段序列名。以清单而非
// 目录为准：磁盘上可能残留上一轮分段方式下的序列目录。
func (p *Pipeline) segmentNames(ctx context.Context, symbol string) ([]string, error) {
	models, err := p.reports.Segments(ctx, symbol)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, m := range models {
		if m.TradeType == string(p.cfg.TradeType) && m.Interval == p.cfg.Interval {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

// segmentDirs 枚举 holo 层磁盘上属于该 symbol 的全部序列目录，
// 含过期分段留下的目录，仅用于清理。
func (p *Pipeline) segmentDirs(symbol string) ([]string, error) {
	all, err := p.store.Symbols(p.cfg.TradeType, store.StageHolo)
	if err != nil {
		return nil, err
	}
	upper := strings.ToUpper(symbol)
	var names []string
	for _, name := range all {
		if name == upper || (strings.HasPrefix(name, "SP") && strings.HasSuffix(name, "_"+upper)) {
			names = append(names, name)
		}
	}
	return names, nil
}

// pruneSegments 删除不在 keep 集合中的段序列（holo 与对应的重采样输出）。
func (p *Pipeline) pruneSegments(symbol string, keep map[string]bool) error {
	existing, err := p.segmentDirs(symbol)
	if err != nil {
		return err
	}
	for _, name := range existing {
		if keep[name] {
			continue
		}
		if err := p.store.DropSymbol(p.cfg.TradeType, store.StageHolo, name); err != nil {
			return fmt.Errorf("清理过期段 %s 失败: %w", name, err)
		}
		if err := p.store.DropSymbol(p.cfg.TradeType, store.StageResampled, name); err != nil {
			return fmt.Errorf("清理过期重采样段 %s 失败: %w", name, err)
		}
		logger.Infof("%s 过期段序列 %s 已清理", symbol, name)
	}
	return nil
}

func (p *Pipeline) seriesKey(stage store.Stage, symbol, interval string, freq store.PartitionFreq) store.SeriesKey {
	return store.SeriesKey{
		TradeType: p.cfg.TradeType,
		Stage:     stage,
		Symbol:    symbol,
		Interval:  interval,
		Freq:      freq,
	}
}

func segmentCountAfterSplit(candles []market.Candle, gaps []market.Gap) int {
	if len(candles) == 0 {
		return 0
	}
	count := 1
	prev := int64(-1)
	for _, g := range gaps {
		if g.OpenTime != prev {
			count++
			prev = g.OpenTime
		}
	}
	return count
}

func searchOpenTime(candles []market.Candle, target int64) int {
	lo, hi := 0, len(candles)
	for lo < hi {
		mid := (lo + hi) / 2
		if candles[mid].OpenTime < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
