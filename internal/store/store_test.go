package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bhds/internal/market"
)

const minuteMs = int64(60_000)

// dayTs 为 2023-06-15 00:00 UTC。
var dayTs = time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC).UnixMilli()

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testKey() SeriesKey {
	return SeriesKey{
		TradeType: market.TradeTypeSpot,
		Stage:     StageParsed,
		Symbol:    "BTCUSDT",
		Interval:  "1m",
		Freq:      FreqDaily,
	}
}

func candleAt(ts int64, close float64) market.Candle {
	return market.Candle{
		OpenTime: ts, CloseTime: ts + minuteMs - 1,
		Open: close, High: close, Low: close, Close: close,
		Volume: 1, QuoteVolume: close, Trades: 1,
	}
}

func minuteRange(start int64, n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		out[i] = candleAt(start+int64(i)*minuteMs, 100)
	}
	return out
}

func TestPartitionNameAndBounds(t *testing.T) {
	assert.Equal(t, "20230615", FreqDaily.PartitionName(dayTs))
	assert.Equal(t, "202306", FreqMonthly.PartitionName(dayTs))

	start, end, err := FreqDaily.PartitionBounds("20230615")
	assert.NoError(t, err)
	assert.Equal(t, dayTs, start)
	assert.Equal(t, dayTs+24*time.Hour.Milliseconds(), end)

	_, _, err = FreqDaily.PartitionBounds("2023-06-15")
	assert.ErrorIs(t, err, market.ErrValidation)
}

func TestPartitionRange(t *testing.T) {
	names := FreqDaily.PartitionRange(dayTs, dayTs+2*24*time.Hour.Milliseconds())
	assert.Equal(t, []string{"20230615", "20230616", "20230617"}, names)

	months := FreqMonthly.PartitionRange(dayTs, dayTs+40*24*time.Hour.Milliseconds())
	assert.Equal(t, []string{"202306", "202307"}, months)

	assert.Empty(t, FreqDaily.PartitionRange(dayTs, dayTs-1))
}

func TestStore_WriteReadPartition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := testKey()
	candles := minuteRange(dayTs, 10)

	require.NoError(t, s.WritePartition(ctx, key, "20230615", candles))

	got, err := s.ReadPartition(ctx, key, "20230615")
	assert.NoError(t, err)
	assert.Equal(t, candles, got)

	// 不存在的分区返回空序列。
	got, err = s.ReadPartition(ctx, key, "20230616")
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_WritePartition_AtomicReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := testKey()

	require.NoError(t, s.WritePartition(ctx, key, "20230615", minuteRange(dayTs, 10)))
	// 覆盖写入更少的 K 线：旧内容必须被完整替换。
	require.NoError(t, s.WritePartition(ctx, key, "20230615", minuteRange(dayTs, 3)))

	got, err := s.ReadPartition(ctx, key, "20230615")
	assert.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestStore_WritePartition_RejectsOutOfBounds(t *testing.T) {
	s := newTestStore(t)
	key := testKey()
	outside := []market.Candle{candleAt(dayTs+24*time.Hour.Milliseconds(), 100)}

	err := s.WritePartition(context.Background(), key, "20230615", outside)
	assert.ErrorIs(t, err, market.ErrValidation)
}

func TestStore_WritePartition_RejectsUnsorted(t *testing.T) {
	s := newTestStore(t)
	key := testKey()
	candles := []market.Candle{candleAt(dayTs+minuteMs, 100), candleAt(dayTs, 100)}

	err := s.WritePartition(context.Background(), key, "20230615", candles)
	assert.ErrorIs(t, err, market.ErrValidation)
}

func TestStore_Update_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := testKey()
	candles := minuteRange(dayTs, 5)

	require.NoError(t, s.Update(ctx, key, candles))
	require.NoError(t, s.Update(ctx, key, candles))

	got, err := s.ReadAll(ctx, key)
	assert.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestStore_Update_LastWriterWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := testKey()

	require.NoError(t, s.Update(ctx, key, []market.Candle{candleAt(dayTs, 100)}))
	require.NoError(t, s.Update(ctx, key, []market.Candle{candleAt(dayTs, 200)}))

	got, err := s.ReadAll(ctx, key)
	assert.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, float64(200), got[0].Close)
}

func TestStore_Update_SameBatchDuplicateLastWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := testKey()
	// 同批次内重复 open_time：排序必须稳定，批内靠后的一根生效。
	require.NoError(t, s.Update(ctx, key, []market.Candle{
		candleAt(dayTs+minuteMs, 150),
		candleAt(dayTs, 100),
		candleAt(dayTs, 200),
	}))

	got, err := s.ReadAll(ctx, key)
	assert.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, float64(200), got[0].Close)
}

func TestStore_DeleteOutside(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := testKey()
	require.NoError(t, s.Update(ctx, key, minuteRange(dayTs, 5)))

	// 收窄到中间三根，两端各清一根。
	require.NoError(t, s.DeleteOutside(ctx, key, dayTs+minuteMs, dayTs+3*minuteMs))

	got, err := s.ReadAll(ctx, key)
	assert.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, dayTs+minuteMs, got[0].OpenTime)
	assert.Equal(t, dayTs+3*minuteMs, got[2].OpenTime)

	// 边界倒置拒绝执行。
	assert.ErrorIs(t, s.DeleteOutside(ctx, key, 10, 5), market.ErrValidation)
}

func TestStore_DropSymbol(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := testKey()
	require.NoError(t, s.Update(ctx, key, minuteRange(dayTs, 2)))

	require.NoError(t, s.DropSymbol(key.TradeType, key.Stage, key.Symbol))

	symbols, err := s.Symbols(key.TradeType, key.Stage)
	assert.NoError(t, err)
	assert.NotContains(t, symbols, "BTCUSDT")

	// 不存在的 symbol 为无操作。
	assert.NoError(t, s.DropSymbol(key.TradeType, key.Stage, "NOPEUSDT"))
}

func TestStore_Update_SpansPartitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := testKey()
	// 跨两天的写入：两分区各落一半。
	lastMinute := dayTs + 24*time.Hour.Milliseconds() - minuteMs
	candles := minuteRange(lastMinute, 2)

	require.NoError(t, s.Update(ctx, key, candles))

	counts, err := s.CountPerPartition(ctx, key)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), counts["20230615"])
	assert.Equal(t, int64(1), counts["20230616"])
}

func TestStore_Bounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := testKey()

	_, _, ok, err := s.Bounds(ctx, key)
	assert.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Update(ctx, key, minuteRange(dayTs, 3)))
	lo, hi, ok, err := s.Bounds(ctx, key)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, dayTs, lo)
	assert.Equal(t, dayTs+2*minuteMs, hi)
}

func TestStore_Symbols(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, sym := range []string{"BTCUSDT", "ETHUSDT"} {
		key := testKey()
		key.Symbol = sym
		require.NoError(t, s.Update(ctx, key, minuteRange(dayTs, 1)))
	}

	symbols, err := s.Symbols(market.TradeTypeSpot, StageParsed)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, symbols)
}

func TestStore_FundingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := FundingKey(market.TradeTypeUMFutures, "BTCUSDT")
	rates := []market.FundingRate{
		{SettleTime: dayTs, Rate: 0.0001},
		{SettleTime: dayTs + 8*time.Hour.Milliseconds(), Rate: -0.0002},
	}

	require.NoError(t, s.UpdateFunding(ctx, key, rates))
	// 重复写入幂等。
	require.NoError(t, s.UpdateFunding(ctx, key, rates))

	got, err := s.ReadFunding(ctx, key, 0, 1<<62)
	assert.NoError(t, err)
	assert.Equal(t, rates, got)
}

func TestSeriesKey_Validate(t *testing.T) {
	key := testKey()
	key.Symbol = ""
	assert.Error(t, key.validate())

	key = testKey()
	key.Interval = ""
	assert.Error(t, key.validate())
}
