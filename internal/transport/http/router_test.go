package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bhds/internal/market"
	"bhds/internal/store"
	"bhds/internal/store/gormstore"
)

func testRouter(t *testing.T) (*store.Store, *gormstore.ReportStore, *gin.Engine) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "series"))
	require.NoError(t, err)
	reports, err := gormstore.NewReportStore(filepath.Join(dir, "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = reports.Close()
		_ = s.Close()
	})
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewRouter(s, reports).Register(engine.Group("/api/v1"))
	return s, reports, engine
}

func seedHolo(t *testing.T, s *store.Store) {
	t.Helper()
	base := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC).UnixMilli()
	candles := make([]market.Candle, 5)
	for i := range candles {
		ts := base + int64(i)*60_000
		candles[i] = market.Candle{
			OpenTime: ts, CloseTime: ts + 59_999,
			Open: 100, High: 100, Low: 100, Close: 100,
			Volume: 1, QuoteVolume: 100, Trades: 1,
		}
	}
	key := store.SeriesKey{
		TradeType: market.TradeTypeSpot, Stage: store.StageHolo,
		Symbol: "BTCUSDT", Interval: "1m", Freq: store.FreqDaily,
	}
	require.NoError(t, s.Update(context.Background(), key, candles))
}

func get(engine *gin.Engine, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	engine.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Klines(t *testing.T) {
	s, _, engine := testRouter(t)
	seedHolo(t, s)

	rec := get(engine, "/api/v1/klines?symbol=btcusdt&trade_type=spot&stage=holo&interval=1m")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Symbol string          `json:"symbol"`
		Count  int             `json:"count"`
		Klines []market.Candle `json:"klines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BTCUSDT", body.Symbol)
	assert.Equal(t, 5, body.Count)
	require.Len(t, body.Klines, 5)
	assert.Equal(t, float64(100), body.Klines[0].Close)
}

func TestRouter_Klines_RequiresSymbol(t *testing.T) {
	_, _, engine := testRouter(t)

	rec := get(engine, "/api/v1/klines")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Klines_BadTradeType(t *testing.T) {
	_, _, engine := testRouter(t)

	rec := get(engine, "/api/v1/klines?symbol=BTCUSDT&trade_type=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Symbols(t *testing.T) {
	s, _, engine := testRouter(t)
	seedHolo(t, s)

	rec := get(engine, "/api/v1/symbols?trade_type=spot&stage=holo")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Symbols []string `json:"symbols"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"BTCUSDT"}, body.Symbols)
}

func TestRouter_Gaps(t *testing.T) {
	_, reports, engine := testRouter(t)
	gaps := []market.Gap{{OpenTime: 7_200_000, PrevClose: 10, Open: 15, Duration: 7_200_000, PriceChange: 0.5}}
	require.NoError(t, reports.ReplaceGaps(context.Background(), "run-1", market.TradeTypeSpot, "BTCUSDT", "1m", gaps))

	rec := get(engine, "/api/v1/gaps?symbol=BTCUSDT")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestRouter_Runs(t *testing.T) {
	_, reports, engine := testRouter(t)
	require.NoError(t, reports.StartRun(context.Background(), "run-1", "generate", nil))
	require.NoError(t, reports.FinishRun(context.Background(), "run-1", 2, 0))

	rec := get(engine, "/api/v1/runs")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(engine, "/api/v1/runs/run-1/errors")
	assert.Equal(t, http.StatusOK, rec.Code)
}
