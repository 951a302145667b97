// Package merge 将归档源与实时 API 源的同 symbol K 线合并为单条权威序列。
package merge

import (
	"time"

	"bhds/internal/market"
)

// Options 控制合并行为。
type Options struct {
	// ExcludeEmpty 在合并前剔除零成交量 K 线，交给后续补洞步骤统一合成，
	// 避免归档源中的占位空 K 线干扰断裂检测。
	ExcludeEmpty bool
}

// Klines 合并归档序列与实时序列。两输入均须按 open_time 递增；
// 输出全局有序且 key 唯一。同 open_time 时实时源优先（其收盘价更新鲜），
// 但实时 K 线缺少必需字段（价格非正，即未完成的残缺 K 线）时回退归档值。
// 价格冲突按源优先级裁决，绝不取均值，也不伪造成交量。
// 双指针归并，复杂度 O(n+m)。
func Klines(archival, live []market.Candle, opts Options) []market.Candle {
	if opts.ExcludeEmpty {
		archival = dropEmpty(archival)
		live = dropEmpty(live)
	}
	out := make([]market.Candle, 0, len(archival)+len(live))
	i, j := 0, 0
	for i < len(archival) && j < len(live) {
		a, l := archival[i], live[j]
		switch {
		case a.OpenTime < l.OpenTime:
			out = append(out, a)
			i++
		case a.OpenTime > l.OpenTime:
			out = append(out, l)
			j++
		default:
			if partial(l) {
				out = append(out, a)
			} else {
				out = append(out, l)
			}
			i++
			j++
		}
	}
	out = append(out, archival[i:]...)
	out = append(out, live[j:]...)
	return out
}

// partial 判断实时 K 线是否残缺：任一价格字段缺失即视为不可信。
func partial(c market.Candle) bool {
	return c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0
}

func dropEmpty(candles []market.Candle) []market.Candle {
	out := make([]market.Candle, 0, len(candles))
	for _, c := range candles {
		if c.Volume > 0 {
			out = append(out, c)
		}
	}
	return out
}

// AddVwap 为每根实际成交的 K 线计算 vwap = quote_volume / volume，
// 并夹在 [low, high] 区间内；零成交量 K 线以开盘价代替。
func AddVwap(candles []market.Candle) []market.Candle {
	out := make([]market.Candle, len(candles))
	copy(out, candles)
	for i := range out {
		c := &out[i]
		if c.Volume > 0 {
			v := c.QuoteVolume / c.Volume
			if v < c.Low {
				v = c.Low
			}
			if v > c.High {
				v = c.High
			}
			c.Vwap = v
		} else {
			c.Vwap = c.Open
		}
	}
	return out
}

// JoinFunding 将资金费率按结算时间对齐到原生周期网格后挂到对应 K 线上。
// 未命中任何 K 线的费率记录被忽略；未被命中的 K 线费率保持 0。
func JoinFunding(candles []market.Candle, rates []market.FundingRate, native time.Duration) []market.Candle {
	if len(rates) == 0 {
		return candles
	}
	out := make([]market.Candle, len(candles))
	copy(out, candles)
	step := native.Milliseconds()
	byTime := make(map[int64]float64, len(rates))
	for _, r := range rates {
		if r.HasFunding() {
			byTime[market.AlignDown(r.SettleTime, step)] = r.Rate
		}
	}
	for i := range out {
		if rate, ok := byTime[out[i].OpenTime]; ok {
			out[i].FundingRate = rate
		}
	}
	return out
}
