package store

import (
	"fmt"
	"time"

	"bhds/internal/market"
)

// PartitionFreq 决定一个序列的分区粒度。原生 1m K 线按日分区，
// 资金费率与重采样结果按月分区，控制单次读写的数据量上限。
type PartitionFreq string

const (
	FreqDaily   PartitionFreq = "daily"
	FreqMonthly PartitionFreq = "monthly"
)

// PartitionName 根据毫秒时间戳生成分区名：日分区 YYYYMMDD，月分区 YYYYMM。
func (f PartitionFreq) PartitionName(ts int64) string {
	t := time.UnixMilli(ts).UTC()
	if f == FreqDaily {
		return t.Format("20060102")
	}
	return t.Format("200601")
}

// PartitionBounds 返回分区的时间边界 [start, end)，毫秒。
func (f PartitionFreq) PartitionBounds(name string) (int64, int64, error) {
	if f == FreqDaily {
		t, err := time.ParseInLocation("20060102", name, time.UTC)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: 非法分区名 %q", market.ErrValidation, name)
		}
		return t.UnixMilli(), t.AddDate(0, 0, 1).UnixMilli(), nil
	}
	t, err := time.ParseInLocation("200601", name, time.UTC)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: 非法分区名 %q", market.ErrValidation, name)
	}
	return t.UnixMilli(), t.AddDate(0, 1, 0).UnixMilli(), nil
}

// PartitionRange 返回覆盖 [startTs, endTs] 的分区名列表（按时间顺序）。
func (f PartitionFreq) PartitionRange(startTs, endTs int64) []string {
	if endTs < startTs {
		return nil
	}
	start := time.UnixMilli(startTs).UTC()
	end := time.UnixMilli(endTs).UTC()
	var names []string
	if f == FreqDaily {
		cur := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		for !cur.After(end) {
			names = append(names, cur.Format("20060102"))
			cur = cur.AddDate(0, 0, 1)
		}
		return names
	}
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(end) {
		names = append(names, cur.Format("200601"))
		cur = cur.AddDate(0, 1, 0)
	}
	return names
}
