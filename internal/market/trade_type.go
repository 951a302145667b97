package market

import (
	"fmt"
	"strings"
)

// TradeType 区分现货与两类合约市场。合约市场带有资金费率序列，
// 现货没有；该差异在流水线构造时解析一次，不在单根 K 线上判断。
type TradeType string

const (
	TradeTypeSpot      TradeType = "spot"
	TradeTypeUMFutures TradeType = "um_futures"
	TradeTypeCMFutures TradeType = "cm_futures"
)

// ParseTradeType 解析市场类型字符串。
func ParseTradeType(input string) (TradeType, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "spot":
		return TradeTypeSpot, nil
	case "um", "um_futures", "usdt_futures":
		return TradeTypeUMFutures, nil
	case "cm", "cm_futures", "coin_futures":
		return TradeTypeCMFutures, nil
	}
	return "", fmt.Errorf("%w: 未知市场类型 %q", ErrValidation, input)
}

// HasFunding 仅合约市场存在资金费率。
func (t TradeType) HasFunding() bool {
	return t == TradeTypeUMFutures || t == TradeTypeCMFutures
}

// AwsDir 返回该市场在归档数据目录中的子路径。
func (t TradeType) AwsDir() string {
	switch t {
	case TradeTypeUMFutures:
		return "futures/um"
	case TradeTypeCMFutures:
		return "futures/cm"
	default:
		return "spot"
	}
}
