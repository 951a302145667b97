package resample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"bhds/internal/market"
)

const minuteMs = int64(60_000)

// minuteSeries 生成从 start 起连续 n 根 1m K 线，close 固定 100、量 1。
func minuteSeries(start int64, n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		ts := start + int64(i)*minuteMs
		out[i] = market.Candle{
			OpenTime: ts, CloseTime: ts + minuteMs - 1,
			Open: 100, High: 100, Low: 100, Close: 100,
			Volume: 1, QuoteVolume: 100, Trades: 2,
			TakerBuyBase: 0.5, TakerBuyQuote: 50,
		}
	}
	return out
}

func TestCandles_HourFromMinutes(t *testing.T) {
	candles := minuteSeries(0, 60)

	out, err := Candles(candles, time.Minute, Rule{Target: time.Hour})

	assert.NoError(t, err)
	assert.Len(t, out, 1)
	h := out[0]
	assert.Equal(t, int64(0), h.OpenTime)
	assert.Equal(t, 60*minuteMs-1, h.CloseTime)
	assert.Equal(t, float64(60), h.Volume)
	assert.Equal(t, float64(6000), h.QuoteVolume)
	assert.Equal(t, int64(120), h.Trades)
	assert.Equal(t, float64(100), h.Vwap)
}

func TestCandles_DropsIncompleteBuckets(t *testing.T) {
	// 90 根 1m：第一个 1h 桶完整，第二个只有 30 根，不产出。
	candles := minuteSeries(0, 90)

	out, err := Candles(candles, time.Minute, Rule{Target: time.Hour})

	assert.NoError(t, err)
	assert.Len(t, out, 1)

	// 序列起点不在桶边界：首桶也不完整，同样丢弃。
	out, err = Candles(minuteSeries(30*minuteMs, 90), time.Minute, Rule{Target: time.Hour})
	assert.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, time.Hour.Milliseconds(), out[0].OpenTime)
}

func TestCandles_OffsetAnchor(t *testing.T) {
	// 锚点 5m：桶边界为 :05，首个完整桶从 5m 开始。
	candles := minuteSeries(0, 125)

	out, err := Candles(candles, time.Minute, Rule{Target: time.Hour, Offset: 5 * time.Minute})

	assert.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 5*minuteMs, out[0].OpenTime)
	assert.Equal(t, 65*minuteMs, out[1].OpenTime)
}

func TestCandles_OHLCExtremes(t *testing.T) {
	candles := minuteSeries(0, 60)
	candles[0].Open = 90
	candles[17].High = 140
	candles[33].Low = 60
	candles[59].Close = 120

	out, err := Candles(candles, time.Minute, Rule{Target: time.Hour})

	assert.NoError(t, err)
	assert.Equal(t, float64(90), out[0].Open)
	assert.Equal(t, float64(140), out[0].High)
	assert.Equal(t, float64(60), out[0].Low)
	assert.Equal(t, float64(120), out[0].Close)
}

func TestCandles_FundingFirstSettlement(t *testing.T) {
	candles := minuteSeries(0, 60)
	candles[10].FundingRate = 1e-8 // 低于阈值，不算结算
	candles[20].FundingRate = 0.0003
	candles[20].Open = 101
	candles[40].FundingRate = -0.0002

	out, err := Candles(candles, time.Minute, Rule{Target: time.Hour})

	assert.NoError(t, err)
	assert.Equal(t, 0.0003, out[0].FundingRate, "取桶内首个有效结算")
	assert.Equal(t, float64(101), out[0].FundingPrice)
	assert.Equal(t, 20*minuteMs, out[0].FundingTime)
}

func TestCandles_IndivisibleTarget(t *testing.T) {
	_, err := Candles(minuteSeries(0, 10), 7*time.Minute, Rule{Target: time.Hour})
	assert.ErrorIs(t, err, market.ErrValidation)
}

func TestCandles_MisalignedOffset(t *testing.T) {
	// 1m 偏移落不到 5m 原生网格上，桶起点会早于首根成员，直接拒绝。
	_, err := Candles(minuteSeries(0, 60), 5*time.Minute, Rule{Target: 15 * time.Minute, Offset: time.Minute})
	assert.ErrorIs(t, err, market.ErrValidation)
}

func TestParseRule(t *testing.T) {
	r, err := ParseRule("1h", "5m")
	assert.NoError(t, err)
	assert.Equal(t, time.Hour, r.Target)
	assert.Equal(t, 5*time.Minute, r.Offset)

	_, err = ParseRule("1h", "1h")
	assert.ErrorIs(t, err, market.ErrValidation)

	_, err = ParseRule("bogus", "")
	assert.Error(t, err)
}

func TestOffsets(t *testing.T) {
	candles := minuteSeries(0, 180)

	out, err := Offsets(candles, time.Minute, time.Hour, 15*time.Minute)

	assert.NoError(t, err)
	assert.Len(t, out, 4)
	assert.Contains(t, out, "0m")
	assert.Contains(t, out, "15m")
	assert.Contains(t, out, "30m")
	assert.Contains(t, out, "45m")
	assert.Len(t, out["0m"], 3)
	// 偏移锚点的首桶不完整（缺前 15 根），只产出 2 个完整桶。
	assert.Len(t, out["15m"], 2)
	assert.Equal(t, 15*minuteMs, out["15m"][0].OpenTime)
}

func TestSegment_KeepsName(t *testing.T) {
	seg := market.Segment{Name: "SP0_BTCUSDT", Symbol: "BTCUSDT", Candles: minuteSeries(0, 60)}

	out, err := Segment(seg, time.Minute, Rule{Target: time.Hour})

	assert.NoError(t, err)
	assert.Equal(t, "SP0_BTCUSDT", out.Name)
	assert.Len(t, out.Candles, 1)
}
