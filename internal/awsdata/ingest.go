package awsdata

import (
	"context"
	"strings"

	"bhds/internal/logger"
	"bhds/internal/market"
	"bhds/internal/store"
)

// IngestKlines 下载某 symbol 的全部归档 K 线 zip 并解析入库（parsed 层）。
// Update 为幂等 upsert，重复执行只会覆盖相同数据，可安全续跑。
func IngestKlines(ctx context.Context, c *Client, s *store.Store, tradeType market.TradeType, symbol, interval string) (int, error) {
	prefix := KlinePrefix(tradeType, FreqDaily, symbol, interval)
	keys, err := c.ListFiles(ctx, prefix)
	if err != nil {
		return 0, err
	}
	key := store.SeriesKey{
		TradeType: tradeType,
		Stage:     store.StageParsed,
		Symbol:    symbol,
		Interval:  interval,
		Freq:      store.FreqDaily,
	}
	total := 0
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if !strings.HasSuffix(k, ".zip") {
			continue
		}
		path, err := c.Download(ctx, k)
		if err != nil {
			return total, err
		}
		candles, err := ParseKlineZip(path)
		if err != nil {
			return total, err
		}
		if len(candles) == 0 {
			continue
		}
		if err := s.Update(ctx, key, candles); err != nil {
			return total, err
		}
		total += len(candles)
	}
	logger.Infof("%s %s 归档入库完成：%d 根", symbol, interval, total)
	return total, nil
}

// IngestFunding 下载并入库资金费率归档（月粒度，funding 层）。
func IngestFunding(ctx context.Context, c *Client, s *store.Store, tradeType market.TradeType, symbol string) (int, error) {
	if !tradeType.HasFunding() {
		return 0, nil
	}
	keys, err := c.ListFiles(ctx, FundingPrefix(tradeType, symbol))
	if err != nil {
		return 0, err
	}
	key := store.FundingKey(tradeType, symbol)
	total := 0
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if !strings.HasSuffix(k, ".zip") {
			continue
		}
		path, err := c.Download(ctx, k)
		if err != nil {
			return total, err
		}
		rates, err := ParseFundingZip(path)
		if err != nil {
			return total, err
		}
		if len(rates) == 0 {
			continue
		}
		if err := s.UpdateFunding(ctx, key, rates); err != nil {
			return total, err
		}
		total += len(rates)
	}
	return total, nil
}
