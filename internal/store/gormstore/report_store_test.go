package gormstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bhds/internal/market"
)

func newTestReportStore(t *testing.T) *ReportStore {
	t.Helper()
	s, err := NewReportStore(filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReportStore_RunLifecycle(t *testing.T) {
	s := newTestReportStore(t)
	ctx := context.Background()

	require.NoError(t, s.StartRun(ctx, "run-1", "generate", []byte(`{"workers":4}`)))
	require.NoError(t, s.RecordError(ctx, "run-1", "BTCUSDT", "fill:SP0_BTCUSDT", errors.New("boom")))
	require.NoError(t, s.FinishRun(ctx, "run-1", 3, 1))

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "generate", runs[0].Kind)
	assert.Equal(t, 3, runs[0].Symbols)
	assert.Equal(t, 1, runs[0].Failed)
	assert.Equal(t, "partial", runs[0].Status)

	errs, err := s.RunErrors(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "boom", errs[0].Message)
}

func TestReportStore_ReplaceGaps(t *testing.T) {
	s := newTestReportStore(t)
	ctx := context.Background()
	gaps := []market.Gap{
		{PrevOpenTime: 0, OpenTime: 7_200_000, PrevClose: 10, Open: 15, Duration: 7_200_000, PriceChange: 0.5},
	}

	require.NoError(t, s.ReplaceGaps(ctx, "run-1", market.TradeTypeSpot, "BTCUSDT", "1m", gaps))
	// 第二次生成全量重写，不累积。
	require.NoError(t, s.ReplaceGaps(ctx, "run-2", market.TradeTypeSpot, "BTCUSDT", "1m", gaps))

	got, err := s.Gaps(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "run-2", got[0].RunID)
	assert.Equal(t, int64(7_200_000), got[0].DurationMs)
	assert.Equal(t, 0.5, got[0].PriceChange)
}

func TestReportStore_ReplaceSegments(t *testing.T) {
	s := newTestReportStore(t)
	ctx := context.Background()
	seg := market.Segment{
		Name:   "SP0_BTCUSDT",
		Symbol: "BTCUSDT",
		Candles: []market.Candle{
			{OpenTime: 0, Open: 10, High: 10, Low: 10, Close: 10, Volume: 1, Trades: 1},
			{OpenTime: 60_000, Open: 10, High: 10, Low: 10, Close: 10}, // 合成
		},
	}

	require.NoError(t, s.ReplaceSegments(ctx, "run-1", market.TradeTypeSpot, "BTCUSDT", "1m", []market.Segment{seg}))

	got, err := s.Segments(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "SP0_BTCUSDT", got[0].Name)
	assert.Equal(t, int64(2), got[0].Candles)
	assert.Equal(t, int64(1), got[0].Synthetic)
	assert.Equal(t, int64(0), got[0].StartTime)
	assert.Equal(t, int64(60_000), got[0].EndTime)
}
