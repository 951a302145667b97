package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"bhds/internal/market"
)

const candleColumns = `open_time, close_time, open, high, low, close, volume, quote_volume,
	trades, taker_buy_base, taker_buy_quote, vwap, funding_rate, funding_price, funding_time`

// WritePartition 原子替换一个分区的全部内容。candles 必须已按
// open_time 严格递增、无重复，且全部落在分区时间边界内，否则拒写。
// 删除与插入在同一事务中提交，读者不会观察到半写状态。
func (s *Store) WritePartition(ctx context.Context, key SeriesKey, partition string, candles []market.Candle) error {
	start, end, err := key.Freq.PartitionBounds(partition)
	if err != nil {
		return err
	}
	if err := market.ValidateSeries(candles); err != nil {
		return err
	}
	for _, c := range candles {
		if c.OpenTime < start || c.OpenTime >= end {
			return fmt.Errorf("%w: open_time %d 超出分区 %s 边界", market.ErrValidation, c.OpenTime, partition)
		}
	}
	db, err := s.db(key)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM candles WHERE open_time >= ? AND open_time < ?`, start, end); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := insertCandles(ctx, tx, candles); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ReadPartition 读取一个分区，分区不存在时返回空序列而非错误。
func (s *Store) ReadPartition(ctx context.Context, key SeriesKey, partition string) ([]market.Candle, error) {
	start, end, err := key.Freq.PartitionBounds(partition)
	if err != nil {
		return nil, err
	}
	return s.ReadRange(ctx, key, start, end)
}

// Update 将 new_candles 合并进所覆盖的全部分区：同 open_time 以新值覆盖
// （last writer wins），幂等。输入无需有序，但必须通过单根校验。
func (s *Store) Update(ctx context.Context, key SeriesKey, candles []market.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	sorted := make([]market.Candle, len(candles))
	copy(sorted, candles)
	// 稳定排序保证同批次内相同 open_time 的靠后元素最终生效。
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OpenTime < sorted[j].OpenTime })
	for _, c := range sorted {
		if err := market.ValidateCandle(c); err != nil {
			return err
		}
	}
	db, err := s.db(key)
	if err != nil {
		return err
	}
	minTs := sorted[0].OpenTime
	maxTs := sorted[len(sorted)-1].OpenTime
	for _, partition := range key.Freq.PartitionRange(minTs, maxTs) {
		start, end, err := key.Freq.PartitionBounds(partition)
		if err != nil {
			return err
		}
		lo := sort.Search(len(sorted), func(i int) bool { return sorted[i].OpenTime >= start })
		hi := sort.Search(len(sorted), func(i int) bool { return sorted[i].OpenTime >= end })
		if lo == hi {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := upsertCandles(ctx, tx, sorted[lo:hi]); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// DeleteOutside 删除序列中 [start, end] 闭区间之外的全部 K 线。
// 序列被整体重写（如重新分段）时先收窄到新边界，防止上一轮
// 留下的过期分区与新数据拼出跨硬断裂的序列。
func (s *Store) DeleteOutside(ctx context.Context, key SeriesKey, start, end int64) error {
	if start > end {
		return fmt.Errorf("%w: 区间边界倒置 [%d, %d]", market.ErrValidation, start, end)
	}
	db, err := s.db(key)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM candles WHERE open_time < ? OR open_time > ?`, start, end)
	return err
}

// ReadAll 读取整条序列，跨分区拼接后保证全局严格递增、无重复。
func (s *Store) ReadAll(ctx context.Context, key SeriesKey) ([]market.Candle, error) {
	return s.ReadRange(ctx, key, 0, 1<<62)
}

// ReadRange 读取 [start, end) 区间内的 K 线。排序不变量由本层校验：
// 一旦发现乱序或重复 key，按存储损坏上报而不是返回可疑数据。
func (s *Store) ReadRange(ctx context.Context, key SeriesKey, start, end int64) ([]market.Candle, error) {
	db, err := s.db(key)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+candleColumns+`
		FROM candles WHERE open_time >= ? AND open_time < ?
		ORDER BY open_time ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	defer rows.Close()
	var out []market.Candle
	var prev int64 = -1
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(
			&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close,
			&c.Volume, &c.QuoteVolume, &c.Trades, &c.TakerBuyBase, &c.TakerBuyQuote,
			&c.Vwap, &c.FundingRate, &c.FundingPrice, &c.FundingTime,
		); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		if c.OpenTime <= prev {
			return nil, fmt.Errorf("%w: open_time 未严格递增 (%d -> %d)", ErrCorrupted, prev, c.OpenTime)
		}
		prev = c.OpenTime
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return out, nil
}

// Bounds 返回序列的最小/最大 open_time；空序列返回 ok=false。
func (s *Store) Bounds(ctx context.Context, key SeriesKey) (minTs, maxTs int64, ok bool, err error) {
	db, err := s.db(key)
	if err != nil {
		return 0, 0, false, err
	}
	var lo, hi sql.NullInt64
	row := db.QueryRowContext(ctx, `SELECT MIN(open_time), MAX(open_time) FROM candles`)
	if err := row.Scan(&lo, &hi); err != nil {
		return 0, 0, false, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if !lo.Valid {
		return 0, 0, false, nil
	}
	return lo.Int64, hi.Int64, true, nil
}

// CountPerPartition 统计每个分区的行数，用于缺数据检测与巡检。
func (s *Store) CountPerPartition(ctx context.Context, key SeriesKey) (map[string]int64, error) {
	db, err := s.db(key)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT open_time FROM candles ORDER BY open_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		counts[key.Freq.PartitionName(ts)]++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return counts, nil
}

func insertCandles(ctx context.Context, tx *sql.Tx, candles []market.Candle) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (`+candleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	return execCandles(ctx, stmt, candles)
}

func upsertCandles(ctx context.Context, tx *sql.Tx, candles []market.Candle) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (`+candleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(open_time) DO UPDATE SET
		    close_time=excluded.close_time,
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume,
		    quote_volume=excluded.quote_volume,
		    trades=excluded.trades,
		    taker_buy_base=excluded.taker_buy_base,
		    taker_buy_quote=excluded.taker_buy_quote,
		    vwap=excluded.vwap,
		    funding_rate=excluded.funding_rate,
		    funding_price=excluded.funding_price,
		    funding_time=excluded.funding_time`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	return execCandles(ctx, stmt, candles)
}

func execCandles(ctx context.Context, stmt *sql.Stmt, candles []market.Candle) error {
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx,
			c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close,
			c.Volume, c.QuoteVolume, c.Trades, c.TakerBuyBase, c.TakerBuyQuote,
			c.Vwap, c.FundingRate, c.FundingPrice, c.FundingTime,
		); err != nil {
			return err
		}
	}
	return nil
}
