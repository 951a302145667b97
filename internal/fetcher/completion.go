package fetcher

import (
	"context"
	"fmt"
	"time"

	"bhds/internal/logger"
	"bhds/internal/market"
	"bhds/internal/store"
)

// MissingPartitions 对比 parsed 层的逐日行数，找出归档源覆盖范围内
// 缺失或残缺的日分区。只在已有数据的 [min, max] 区间内检测，
// 区间外的空白属于上市前/下架后，不算缺数据。
func MissingPartitions(ctx context.Context, s *store.Store, key store.SeriesKey) ([]string, error) {
	native, err := market.ParseInterval(key.Interval)
	if err != nil {
		return nil, err
	}
	expected := int64(24 * time.Hour / native)
	counts, err := s.CountPerPartition(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, nil
	}
	minTs, maxTs, ok, err := s.Bounds(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	var missing []string
	for _, name := range key.Freq.PartitionRange(minTs, maxTs) {
		if counts[name] < expected {
			missing = append(missing, name)
		}
	}
	// 首尾分区天然不完整（上市首日、归档最新一日），不视为缺失。
	if len(missing) > 0 && missing[0] == key.Freq.PartitionName(minTs) && counts[missing[0]] > 0 {
		missing = missing[1:]
	}
	if len(missing) > 0 && missing[len(missing)-1] == key.Freq.PartitionName(maxTs) {
		missing = missing[:len(missing)-1]
	}
	return missing, nil
}

// CompleteKlines 用 API 拉取缺失日分区并写入 api 层。归档层保持只读，
// 合并阶段再统一裁决两源优先级。
func CompleteKlines(ctx context.Context, c *Client, s *store.Store, symbol, interval string) (int, error) {
	parsedKey := store.SeriesKey{
		TradeType: c.TradeType(),
		Stage:     store.StageParsed,
		Symbol:    symbol,
		Interval:  interval,
		Freq:      store.FreqDaily,
	}
	missing, err := MissingPartitions(ctx, s, parsedKey)
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		return 0, nil
	}
	apiKey := parsedKey
	apiKey.Stage = store.StageAPI
	fetched := 0
	for _, partition := range missing {
		if err := ctx.Err(); err != nil {
			return fetched, err
		}
		day, err := partitionDay(partition)
		if err != nil {
			return fetched, err
		}
		candles, err := c.KlinesOfDay(ctx, symbol, interval, day)
		if err != nil {
			return fetched, err
		}
		if len(candles) == 0 {
			logger.Warnf("%s %s 缺失日 %s API 无数据", symbol, interval, partition)
			continue
		}
		if err := s.Update(ctx, apiKey, candles); err != nil {
			return fetched, err
		}
		fetched += len(candles)
		logger.Debugf("%s %s 补齐 %s：%d 根", symbol, interval, partition, len(candles))
	}
	return fetched, nil
}

// partitionDay 解析日分区名。分区名由本模块生成，解析失败说明
// 命名格式漂移，按校验错误上报而不是从零时刻开拉。
func partitionDay(partition string) (time.Time, error) {
	day, err := time.ParseInLocation("20060102", partition, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: 非法日分区名 %q", market.ErrValidation, partition)
	}
	return day, nil
}

// CompleteFunding 拉取资金费率并入库（按月分区），现货直接跳过。
func CompleteFunding(ctx context.Context, c *Client, s *store.Store, symbol string, start, end int64) (int, error) {
	if !c.TradeType().HasFunding() {
		return 0, nil
	}
	rates, err := c.FundingRates(ctx, symbol, start, end)
	if err != nil {
		return 0, err
	}
	if len(rates) == 0 {
		return 0, nil
	}
	key := store.FundingKey(c.TradeType(), symbol)
	if err := s.UpdateFunding(ctx, key, rates); err != nil {
		return 0, err
	}
	return len(rates), nil
}
