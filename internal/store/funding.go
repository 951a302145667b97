package store

import (
	"context"
	"fmt"
	"sort"

	"bhds/internal/market"
)

// FundingKey 构造资金费率序列的 key（按月分区）。
func FundingKey(tradeType market.TradeType, symbol string) SeriesKey {
	return SeriesKey{
		TradeType: tradeType,
		Stage:     StageFunding,
		Symbol:    symbol,
		Interval:  "8h",
		Freq:      FreqMonthly,
	}
}

// UpdateFunding 合并资金费率记录，同 settle_time 以新值覆盖，幂等。
func (s *Store) UpdateFunding(ctx context.Context, key SeriesKey, rates []market.FundingRate) error {
	if len(rates) == 0 {
		return nil
	}
	if key.Stage != StageFunding {
		return fmt.Errorf("%w: 非资金费率序列", market.ErrValidation)
	}
	sorted := make([]market.FundingRate, len(rates))
	copy(sorted, rates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SettleTime < sorted[j].SettleTime })
	for _, r := range sorted {
		if r.SettleTime <= 0 {
			return fmt.Errorf("%w: settle_time 非法 (%d)", market.ErrValidation, r.SettleTime)
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
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO funding_rates (settle_time, rate) VALUES (?, ?)
		ON CONFLICT(settle_time) DO UPDATE SET rate=excluded.rate`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range sorted {
		if _, err := stmt.ExecContext(ctx, r.SettleTime, r.Rate); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ReadFunding 读取 [start, end) 区间内的资金费率，按 settle_time 递增。
func (s *Store) ReadFunding(ctx context.Context, key SeriesKey, start, end int64) ([]market.FundingRate, error) {
	if key.Stage != StageFunding {
		return nil, fmt.Errorf("%w: 非资金费率序列", market.ErrValidation)
	}
	db, err := s.db(key)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT settle_time, rate FROM funding_rates
		WHERE settle_time >= ? AND settle_time < ?
		ORDER BY settle_time ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	defer rows.Close()
	var out []market.FundingRate
	for rows.Next() {
		var r market.FundingRate
		if err := rows.Scan(&r.SettleTime, &r.Rate); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return out, nil
}
