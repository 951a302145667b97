package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseInterval(t *testing.T) {
	cases := map[string]time.Duration{
		"1m":  time.Minute,
		"5T":  5 * time.Minute,
		"1h":  time.Hour,
		"4H":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"30m": 30 * time.Minute,
	}
	for input, want := range cases {
		got, err := ParseInterval(input)
		assert.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	for _, bad := range []string{"", "m", "1x", "-5m", "0m", "1.5h"} {
		_, err := ParseInterval(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatInterval_RoundTrip(t *testing.T) {
	for _, s := range []string{"1m", "5m", "15m", "1h", "4h", "1d"} {
		d, err := ParseInterval(s)
		assert.NoError(t, err)
		assert.Equal(t, s, FormatInterval(d))
	}
}

func TestAlignDown(t *testing.T) {
	step := time.Hour.Milliseconds()
	assert.Equal(t, int64(0), AlignDown(0, step))
	assert.Equal(t, int64(0), AlignDown(step-1, step))
	assert.Equal(t, step, AlignDown(step, step))
	// 负时间戳也要向下取整，不能向零取整。
	assert.Equal(t, -step, AlignDown(-1, step))
	assert.Equal(t, -step, AlignDown(-step, step))
}

func TestValidateCandle(t *testing.T) {
	valid := Candle{
		OpenTime: 0, CloseTime: 59_999,
		Open: 10, High: 12, Low: 9, Close: 11,
		Volume: 100, QuoteVolume: 1000, Trades: 5,
		TakerBuyBase: 40, TakerBuyQuote: 400,
	}
	assert.NoError(t, ValidateCandle(valid))

	bad := valid
	bad.High = 8 // high < low
	assert.ErrorIs(t, ValidateCandle(bad), ErrValidation)

	bad = valid
	bad.Open = -1
	assert.ErrorIs(t, ValidateCandle(bad), ErrValidation)

	bad = valid
	bad.TakerBuyBase = valid.Volume + 1
	assert.ErrorIs(t, ValidateCandle(bad), ErrValidation)
}

func TestValidateSeries(t *testing.T) {
	mk := func(ts int64) Candle {
		return Candle{OpenTime: ts, Open: 1, High: 1, Low: 1, Close: 1}
	}
	assert.NoError(t, ValidateSeries([]Candle{mk(0), mk(60_000), mk(120_000)}))
	assert.ErrorIs(t, ValidateSeries([]Candle{mk(0), mk(0)}), ErrValidation)
	assert.ErrorIs(t, ValidateSeries([]Candle{mk(60_000), mk(0)}), ErrValidation)
	assert.NoError(t, ValidateSeries(nil))
}

func TestFundingRate_HasFunding(t *testing.T) {
	assert.False(t, FundingRate{Rate: 0}.HasFunding())
	assert.False(t, FundingRate{Rate: 1e-7}.HasFunding())
	assert.True(t, FundingRate{Rate: 1e-4}.HasFunding())
	assert.True(t, FundingRate{Rate: -1e-4}.HasFunding())
}
