// Package gap 负责断裂检测、分段与段内补洞。
//
// 断裂分两类：时间断裂（交易所停机、下架再上架）与价格断裂（换币、
// 合约换月等无时间间隔的结构性跳变）。两者都是硬边界，绝不跨界补洞；
// 段内的小缺口（未达阈值的少量缺失 K 线）则合成平价零量 K 线补齐，
// 保证下游重采样与回测拿到严格规则的时间网格。
package gap

import (
	"fmt"
	"math"
	"time"

	"bhds/internal/market"
)

// Config 为断裂检测与分段阈值。
type Config struct {
	// MinGap 为时间断裂阈值，默认 1 天。
	MinGap time.Duration
	// MinPriceChange 为相邻 K 线 |open/prev_close - 1| 的价格断裂阈值，默认 10%。
	MinPriceChange float64
	// MinSegmentCandles 为段的最小 K 线数，不足视为孤儿数据直接丢弃，
	// 默认一天的原生周期根数。
	MinSegmentCandles int
	// IncludeVwap 控制合成 K 线是否回填 vwap 列（以开盘价代替）。
	IncludeVwap bool
}

func (c Config) withDefaults(native time.Duration) Config {
	if c.MinGap <= 0 {
		c.MinGap = 24 * time.Hour
	}
	if c.MinPriceChange <= 0 {
		c.MinPriceChange = 0.1
	}
	if c.MinSegmentCandles <= 0 {
		c.MinSegmentCandles = int(24 * time.Hour / native)
	}
	return c
}

// Engine 对单 symbol 的合并序列执行 Scan → Split → Fill。
type Engine struct {
	cfg    Config
	native time.Duration
}

func NewEngine(cfg Config, native time.Duration) *Engine {
	return &Engine{cfg: cfg.withDefaults(native), native: native}
}

// Scan 扫描相邻 K 线对并产出硬断裂记录。时间与价格阈值任一越界即记
// 一条（两者同时越界也只记一条，分段在每个边界只切一次）。
func (e *Engine) Scan(candles []market.Candle) []market.Gap {
	minGapMs := e.cfg.MinGap.Milliseconds()
	var gaps []market.Gap
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1], candles[i]
		dt := cur.OpenTime - prev.OpenTime
		change := 0.0
		if prev.Close > 0 {
			change = cur.Open/prev.Close - 1
		}
		if dt > minGapMs || math.Abs(change) > e.cfg.MinPriceChange {
			gaps = append(gaps, market.Gap{
				PrevOpenTime: prev.OpenTime,
				OpenTime:     cur.OpenTime,
				PrevClose:    prev.Close,
				Open:         cur.Open,
				Duration:     dt,
				PriceChange:  change,
			})
		}
	}
	return gaps
}

// Split 以每条断裂为硬边界切分序列。不足 MinSegmentCandles 的退化段
// 被丢弃。整条历史都不够长时返回空切片，这是正常结果而非错误。
// 命名沿用数据源约定：非末段 SP{i}_{symbol}，末段保留 symbol 本名。
func (e *Engine) Split(symbol string, candles []market.Candle, gaps []market.Gap) []market.Segment {
	if len(candles) == 0 {
		return nil
	}
	var parts [][]market.Candle
	start := 0
	for _, g := range gaps {
		cut := searchOpenTime(candles, g.OpenTime)
		if cut > start {
			parts = append(parts, candles[start:cut])
		}
		start = cut
	}
	if start < len(candles) {
		parts = append(parts, candles[start:])
	}
	var kept [][]market.Candle
	for _, p := range parts {
		if len(p) >= e.cfg.MinSegmentCandles {
			kept = append(kept, p)
		}
	}
	segments := make([]market.Segment, 0, len(kept))
	for i, p := range kept {
		name := symbol
		if i < len(kept)-1 {
			name = fmt.Sprintf("SP%d_%s", i, symbol)
		}
		segments = append(segments, market.Segment{Name: name, Symbol: symbol, Candles: p})
	}
	return segments
}

// Fill 在段内合成缺失的原生周期 K 线：四价取前收盘、成交量全零。
// 补齐后的段必须是严格 native 步长的网格；一旦仍有不规则步长，
// 判定为内部缺陷（ErrGapPolicy），该段中止，不产出半成品。
func (e *Engine) Fill(seg market.Segment) (market.Segment, error) {
	if len(seg.Candles) == 0 {
		return seg, nil
	}
	step := e.native.Milliseconds()
	filled := make([]market.Candle, 0, len(seg.Candles))
	filled = append(filled, seg.Candles[0])
	for i := 1; i < len(seg.Candles); i++ {
		prev := filled[len(filled)-1]
		cur := seg.Candles[i]
		dt := cur.OpenTime - prev.OpenTime
		if dt <= 0 || dt%step != 0 {
			return market.Segment{}, fmt.Errorf(
				"%w: 段 %s 在 open_time=%d 处步长 %dms 无法对齐原生周期",
				market.ErrGapPolicy, seg.Name, cur.OpenTime, dt)
		}
		for t := prev.OpenTime + step; t < cur.OpenTime; t += step {
			filled = append(filled, e.synthetic(t, prev))
		}
		filled = append(filled, cur)
	}
	for i := 1; i < len(filled); i++ {
		if filled[i].OpenTime-filled[i-1].OpenTime != step {
			return market.Segment{}, fmt.Errorf(
				"%w: 段 %s 补齐后时间网格仍不规则 (open_time=%d)",
				market.ErrGapPolicy, seg.Name, filled[i].OpenTime)
		}
	}
	return market.Segment{Name: seg.Name, Symbol: seg.Symbol, Candles: filled}, nil
}

func (e *Engine) synthetic(openTime int64, prev market.Candle) market.Candle {
	c := market.Candle{
		OpenTime:  openTime,
		CloseTime: openTime + e.native.Milliseconds() - 1,
		Open:      prev.Close,
		High:      prev.Close,
		Low:       prev.Close,
		Close:     prev.Close,
	}
	if e.cfg.IncludeVwap {
		c.Vwap = c.Open
	}
	return c
}

// searchOpenTime 返回首个 open_time >= target 的下标。
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
