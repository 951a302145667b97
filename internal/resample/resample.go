// Package resample 将补齐后的原生周期段聚合为更粗周期，支持锚点偏移。
package resample

import (
	"fmt"
	"time"

	"bhds/internal/market"
)

// Rule 描述一次重采样：目标周期 + 锚点偏移（0 <= offset < target）。
// 偏移决定桶边界落点，例如 1h 桶可以锚在 :00 也可以锚在 :05，
// 供下游按交易排期对齐、避免前视偏差。
type Rule struct {
	Target time.Duration
	Offset time.Duration
}

// ParseRule 从周期字符串构造 Rule 并校验偏移范围。
func ParseRule(target, offset string) (Rule, error) {
	t, err := market.ParseInterval(target)
	if err != nil {
		return Rule{}, err
	}
	var o time.Duration
	if offset != "" && offset != "0m" {
		o, err = market.ParseInterval(offset)
		if err != nil {
			return Rule{}, err
		}
	}
	r := Rule{Target: t, Offset: o}
	return r, r.Validate()
}

func (r Rule) Validate() error {
	if r.Target <= 0 {
		return fmt.Errorf("%w: 目标周期必须为正", market.ErrValidation)
	}
	if r.Offset < 0 || r.Offset >= r.Target {
		return fmt.Errorf("%w: 偏移必须满足 0 <= offset < target", market.ErrValidation)
	}
	return nil
}

// Candles 对一个已补齐的段做聚合。输入必须是严格 native 步长网格；
// 只产出被源 K 线完整覆盖的桶（成员数 == target/native），收尾的
// 不完整桶一律不产出。
//
// 聚合规则：open 取首、close 取尾、high/low 取极值、各成交量求和；
// vwap = Σquote_volume/Σvolume（Σvolume=0 时置 0 表示缺省）；
// 资金费率取桶内首个有效结算（|rate| > 1e-6），同时带出结算时刻的
// 开盘价与时间。
func Candles(candles []market.Candle, native time.Duration, rule Rule) ([]market.Candle, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	step := native.Milliseconds()
	target := rule.Target.Milliseconds()
	offset := rule.Offset.Milliseconds()
	if step <= 0 || target%step != 0 {
		return nil, fmt.Errorf("%w: 目标周期 %s 无法整除原生周期 %s",
			market.ErrValidation, rule.Target, native)
	}
	// 偏移必须落在原生网格上，否则桶起点早于首根成员也会被当成完整桶。
	if offset%step != 0 {
		return nil, fmt.Errorf("%w: 偏移 %s 未对齐原生周期 %s",
			market.ErrValidation, rule.Offset, native)
	}
	expected := int(target / step)

	var out []market.Candle
	var members []market.Candle
	var bucket int64 = -1
	flush := func() {
		if len(members) == expected {
			out = append(out, aggregate(bucket, members))
		}
		members = members[:0]
	}
	for _, c := range candles {
		b := market.AlignDown(c.OpenTime-offset, target) + offset
		if b != bucket {
			flush()
			bucket = b
		}
		members = append(members, c)
	}
	flush()
	return out, nil
}

func aggregate(bucketStart int64, members []market.Candle) market.Candle {
	first, last := members[0], members[len(members)-1]
	agg := market.Candle{
		OpenTime:  bucketStart,
		CloseTime: last.CloseTime,
		Open:      first.Open,
		High:      first.High,
		Low:       first.Low,
		Close:     last.Close,
	}
	for _, m := range members {
		if m.High > agg.High {
			agg.High = m.High
		}
		if m.Low < agg.Low {
			agg.Low = m.Low
		}
		agg.Volume += m.Volume
		agg.QuoteVolume += m.QuoteVolume
		agg.Trades += m.Trades
		agg.TakerBuyBase += m.TakerBuyBase
		agg.TakerBuyQuote += m.TakerBuyQuote
		if agg.FundingTime == 0 {
			f := market.FundingRate{SettleTime: m.OpenTime, Rate: m.FundingRate}
			if f.HasFunding() {
				agg.FundingRate = m.FundingRate
				agg.FundingPrice = m.Open
				agg.FundingTime = m.OpenTime
			}
		}
	}
	if agg.Volume > 0 {
		agg.Vwap = agg.QuoteVolume / agg.Volume
	}
	return agg
}

// Segment 对整段重采样并保留段名。
func Segment(seg market.Segment, native time.Duration, rule Rule) (market.Segment, error) {
	candles, err := Candles(seg.Candles, native, rule)
	if err != nil {
		return market.Segment{}, err
	}
	return market.Segment{Name: seg.Name, Symbol: seg.Symbol, Candles: candles}, nil
}

// Offsets 以 base 为步进展开全部锚点偏移（0, base, 2*base, ...），
// 对同一段产出多条偏移对齐的序列，key 为偏移周期字符串。
func Offsets(candles []market.Candle, native time.Duration, target time.Duration, base time.Duration) (map[string][]market.Candle, error) {
	if base <= 0 || target%base != 0 {
		return nil, fmt.Errorf("%w: base offset %s 无法整除目标周期 %s", market.ErrValidation, base, target)
	}
	n := int(target / base)
	out := make(map[string][]market.Candle, n)
	for i := 0; i < n; i++ {
		off := time.Duration(i) * base
		key := "0m"
		if off > 0 {
			key = market.FormatInterval(off)
		}
		resampled, err := Candles(candles, native, Rule{Target: target, Offset: off})
		if err != nil {
			return nil, err
		}
		out[key] = resampled
	}
	return out, nil
}
