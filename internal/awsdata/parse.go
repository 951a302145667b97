package awsdata

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"bhds/internal/market"
	"bhds/internal/pkg/convert"
)

// 2025 年起部分合约归档把时间戳切到了微秒，统一折回毫秒。
func normalizeTimestamp(ts int64) int64 {
	if ts > 1e14 {
		return ts / 1000
	}
	return ts
}

// ParseKlineZip 解析归档 K 线 zip（12 列 CSV，可能带表头）。
// 行内字段非法（价格非正、成交量为负）不静默修补，直接报
// ValidationError 让上层决定是否重新下载。
func ParseKlineZip(path string) ([]market.Candle, error) {
	rows, err := readZipCSV(path)
	if err != nil {
		return nil, err
	}
	candles := make([]market.Candle, 0, len(rows))
	for i, row := range rows {
		if i == 0 && strings.HasPrefix(row[0], "open_time") {
			continue
		}
		if len(row) < 11 {
			return nil, fmt.Errorf("%w: %s 第 %d 行只有 %d 列", market.ErrValidation, path, i+1, len(row))
		}
		c := market.Candle{
			OpenTime:      normalizeTimestamp(convert.ToInt64(row[0])),
			Open:          convert.ParsePrice(row[1]),
			High:          convert.ParsePrice(row[2]),
			Low:           convert.ParsePrice(row[3]),
			Close:         convert.ParsePrice(row[4]),
			Volume:        convert.ParsePrice(row[5]),
			CloseTime:     normalizeTimestamp(convert.ToInt64(row[6])),
			QuoteVolume:   convert.ParsePrice(row[7]),
			Trades:        convert.ToInt64(row[8]),
			TakerBuyBase:  convert.ParsePrice(row[9]),
			TakerBuyQuote: convert.ParsePrice(row[10]),
		}
		if err := market.ValidateCandle(c); err != nil {
			return nil, fmt.Errorf("%s 第 %d 行: %w", path, i+1, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// ParseFundingZip 解析资金费率 zip（列：calc_time, funding_interval_hours,
// last_funding_rate，带表头）。
func ParseFundingZip(path string) ([]market.FundingRate, error) {
	rows, err := readZipCSV(path)
	if err != nil {
		return nil, err
	}
	rates := make([]market.FundingRate, 0, len(rows))
	for i, row := range rows {
		if i == 0 && strings.HasPrefix(row[0], "calc_time") {
			continue
		}
		if len(row) < 3 {
			return nil, fmt.Errorf("%w: %s 第 %d 行只有 %d 列", market.ErrValidation, path, i+1, len(row))
		}
		rates = append(rates, market.FundingRate{
			SettleTime: normalizeTimestamp(convert.ToInt64(row[0])),
			Rate:       convert.ParsePrice(row[2]),
		})
	}
	return rates, nil
}

func readZipCSV(path string) ([][]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("打开归档失败 %s: %w", path, err)
	}
	defer zr.Close()
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("归档为空: %s", path)
	}
	f, err := zr.File[0].Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("解析 CSV 失败 %s: %w", path, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
