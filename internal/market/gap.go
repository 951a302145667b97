package market

import "time"

// Gap 描述合并序列中一处硬断裂：前一根 K 线与后一根 K 线之间的
// 时间跨度或价格跳变超过阈值。
type Gap struct {
	PrevOpenTime int64   `json:"prev_open_time"`
	OpenTime     int64   `json:"open_time"`
	PrevClose    float64 `json:"prev_close"`
	Open         float64 `json:"open"`
	Duration     int64   `json:"duration_ms"`
	PriceChange  float64 `json:"price_change"`
}

// DurationAs 返回断裂时长。
func (g Gap) DurationAs() time.Duration {
	return time.Duration(g.Duration) * time.Millisecond
}

// Segment 是以硬断裂为界的最长连续 K 线子序列。
// 命名沿用数据源约定：非末段为 SP{i}_{symbol}，末段保留原 symbol。
type Segment struct {
	Name    string   `json:"name"`
	Symbol  string   `json:"symbol"`
	Candles []Candle `json:"-"`
}

// Start 返回段内首根 K 线的 open_time；空段返回 0。
func (s Segment) Start() int64 {
	if len(s.Candles) == 0 {
		return 0
	}
	return s.Candles[0].OpenTime
}

// End 返回段内末根 K 线的 open_time；空段返回 0。
func (s Segment) End() int64 {
	if len(s.Candles) == 0 {
		return 0
	}
	return s.Candles[len(s.Candles)-1].OpenTime
}
