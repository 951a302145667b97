package awsdata

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bhds/internal/market"
)

func writeZip(t *testing.T, name, csv string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("data.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseKlineZip(t *testing.T) {
	csv := "open_time,open,high,low,close,volume,close_time,quote_volume,count,taker_buy_volume,taker_buy_quote_volume,ignore\n" +
		"1685577600000,27000.1,27100.5,26950.0,27050.2,12.5,1685577659999,337500.0,150,6.2,167400.0,0\n" +
		"1685577660000,27050.2,27060.0,27000.0,27010.0,8.1,1685577719999,218700.0,90,4.0,108000.0,0\n"
	path := writeZip(t, "BTCUSDT-1m-2023-06-01.zip", csv)

	candles, err := ParseKlineZip(path)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(1685577600000), candles[0].OpenTime)
	assert.Equal(t, 27000.1, candles[0].Open)
	assert.Equal(t, int64(150), candles[0].Trades)
	assert.Equal(t, 6.2, candles[0].TakerBuyBase)
}

func TestParseKlineZip_NoHeader(t *testing.T) {
	csv := "1685577600000,1,1,1,1,0,1685577659999,0,0,0,0,0\n"
	path := writeZip(t, "X-1m-2023-06-01.zip", csv)

	candles, err := ParseKlineZip(path)
	require.NoError(t, err)
	assert.Len(t, candles, 1)
}

func TestParseKlineZip_MicrosecondTimestamps(t *testing.T) {
	// 2025 年起部分合约归档使用微秒时间戳。
	csv := "1685577600000000,1,1,1,1,0,1685577659999999,0,0,0,0,0\n"
	path := writeZip(t, "X-1m-2025-01-01.zip", csv)

	candles, err := ParseKlineZip(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1685577600000), candles[0].OpenTime)
}

func TestParseKlineZip_RejectsBadRow(t *testing.T) {
	csv := "1685577600000,-1,1,1,1,0,1685577659999,0,0,0,0,0\n"
	path := writeZip(t, "X-1m-2023-06-01.zip", csv)

	_, err := ParseKlineZip(path)
	assert.ErrorIs(t, err, market.ErrValidation)
}

func TestParseFundingZip(t *testing.T) {
	csv := "calc_time,funding_interval_hours,last_funding_rate\n" +
		"1685577600000,8,0.0001\n" +
		"1685606400000,8,-0.00005\n"
	path := writeZip(t, "BTCUSDT-fundingRate-2023-06.zip", csv)

	rates, err := ParseFundingZip(path)
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, 0.0001, rates[0].Rate)
	assert.Equal(t, -0.00005, rates[1].Rate)
}

func TestFileDate(t *testing.T) {
	d, err := FileDate("data/spot/daily/klines/BTCUSDT/1m/BTCUSDT-1m-2023-06-01.zip")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), d)

	m, err := FileDate("BTCUSDT-1m-2023-06.zip")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), m)

	_, err = FileDate("CHECKSUM")
	assert.Error(t, err)
}

func TestKlinePrefix(t *testing.T) {
	assert.Equal(t, "data/futures/um/daily/klines/BTCUSDT/1m/",
		KlinePrefix(market.TradeTypeUMFutures, FreqDaily, "btcusdt", "1m"))
	assert.Equal(t, "data/spot/monthly/klines/ETHUSDT/1m/",
		KlinePrefix(market.TradeTypeSpot, FreqMonthly, "ETHUSDT", "1m"))
}
