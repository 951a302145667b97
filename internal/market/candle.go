package market

// Candle 表示单根 K 线。时间戳统一为 Unix 毫秒（UTC）。
// Vwap 与 FundingRate 为可选列：0 表示缺省（价格恒为正，资金费率绝对值
// 小于 1e-6 时视同无费率结算）。
type Candle struct {
	OpenTime      int64   `json:"open_time"`
	CloseTime     int64   `json:"close_time"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Volume        float64 `json:"volume"`
	QuoteVolume   float64 `json:"quote_volume"`
	Trades        int64   `json:"trades"`
	TakerBuyBase  float64 `json:"taker_buy_base"`
	TakerBuyQuote float64 `json:"taker_buy_quote"`

	Vwap        float64 `json:"vwap,omitempty"`
	FundingRate float64 `json:"funding_rate,omitempty"`

	// 重采样输出专用：桶内首个有效资金费率对应的价格与时间。
	FundingPrice float64 `json:"funding_price,omitempty"`
	FundingTime  int64   `json:"funding_time,omitempty"`
}

// Synthetic 判断该 K 线是否为补洞生成（无真实成交）。
func (c Candle) Synthetic() bool {
	return c.Volume == 0 && c.Trades == 0
}

// FundingRate 表示一次资金费率结算记录。
type FundingRate struct {
	SettleTime int64   `json:"settle_time"`
	Rate       float64 `json:"rate"`
}

const fundingEpsilon = 1e-6

// HasFunding 判断费率是否有效（|rate| > 1e-6）。
func (f FundingRate) HasFunding() bool {
	return f.Rate > fundingEpsilon || f.Rate < -fundingEpsilon
}
