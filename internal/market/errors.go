package market

import (
	"errors"
	"fmt"
)

// 错误分级：
//   - ErrValidation：边界校验失败（乱序、重复、OHLC 不一致、负成交量），拒收不纠正。
//   - ErrGapPolicy：补洞后的段仍存在不规则时间步长，属于内部缺陷，
//     中止该段处理并上报，其余段继续。
var (
	ErrValidation = errors.New("validation error")
	ErrGapPolicy  = errors.New("gap policy violation")
)

// ValidateCandle 校验单根 K 线的结构不变量。合成 K 线（volume=0）
// 允许四价相等，不要求价格为正的严格市场语义之外的检查。
func ValidateCandle(c Candle) error {
	if c.OpenTime <= 0 {
		return fmt.Errorf("%w: open_time 非法 (%d)", ErrValidation, c.OpenTime)
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("%w: 价格必须为正 (open_time=%d)", ErrValidation, c.OpenTime)
	}
	hi := max(c.Open, c.Close)
	lo := min(c.Open, c.Close)
	if c.High < hi || c.Low > lo {
		return fmt.Errorf("%w: OHLC 不满足 high>=max(open,close)>=min(open,close)>=low (open_time=%d)", ErrValidation, c.OpenTime)
	}
	if c.Volume < 0 || c.QuoteVolume < 0 || c.Trades < 0 {
		return fmt.Errorf("%w: 成交量为负 (open_time=%d)", ErrValidation, c.OpenTime)
	}
	if c.TakerBuyBase < 0 || c.TakerBuyBase > c.Volume || c.TakerBuyQuote < 0 || c.TakerBuyQuote > c.QuoteVolume {
		return fmt.Errorf("%w: taker 成交量越界 (open_time=%d)", ErrValidation, c.OpenTime)
	}
	return nil
}

// ValidateSeries 校验序列严格按 open_time 递增且无重复。
func ValidateSeries(candles []Candle) error {
	for i := range candles {
		if err := ValidateCandle(candles[i]); err != nil {
			return err
		}
		if i > 0 && candles[i].OpenTime <= candles[i-1].OpenTime {
			return fmt.Errorf("%w: open_time 未严格递增 (%d -> %d)", ErrValidation, candles[i-1].OpenTime, candles[i].OpenTime)
		}
	}
	return nil
}
