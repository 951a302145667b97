// Package awsdata 对接 Binance 历史数据归档（data.binance.vision）：
// 目录列举、zip 下载与校验、CSV 解析。归档是老数据的权威来源，
// 延迟为小时到天级，近期缺口由 fetcher 包用 API 补齐。
package awsdata

import (
	"fmt"
	"strings"
	"time"

	"bhds/internal/market"
)

// DataFreq 对应归档目录里的 daily/monthly 两套发布粒度。
type DataFreq string

const (
	FreqDaily   DataFreq = "daily"
	FreqMonthly DataFreq = "monthly"
)

// KlinePrefix 构造某 symbol K 线 zip 的目录前缀，如
// data/futures/um/daily/klines/BTCUSDT/1m/。
func KlinePrefix(tradeType market.TradeType, freq DataFreq, symbol, interval string) string {
	return fmt.Sprintf("data/%s/%s/klines/%s/%s/", tradeType.AwsDir(), freq, strings.ToUpper(symbol), interval)
}

// FundingPrefix 构造资金费率 zip 的目录前缀（仅月粒度发布）。
func FundingPrefix(tradeType market.TradeType, symbol string) string {
	return fmt.Sprintf("data/%s/monthly/fundingRate/%s/", tradeType.AwsDir(), strings.ToUpper(symbol))
}

// SymbolListPrefix 构造 symbol 目录列举前缀。
func SymbolListPrefix(tradeType market.TradeType, freq DataFreq) string {
	return fmt.Sprintf("data/%s/%s/klines/", tradeType.AwsDir(), freq)
}

// FileDate 从归档文件名（SYMBOL-1m-2023-05-01.zip / SYMBOL-1m-2023-05.zip）
// 提取发布日期。
func FileDate(key string) (time.Time, error) {
	name := key
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".zip")
	parts := strings.Split(name, "-")
	if len(parts) >= 5 {
		// SYMBOL-interval-YYYY-MM-DD
		s := strings.Join(parts[len(parts)-3:], "-")
		return time.ParseInLocation("2006-01-02", s, time.UTC)
	}
	if len(parts) >= 4 {
		// SYMBOL-interval-YYYY-MM
		s := strings.Join(parts[len(parts)-2:], "-")
		return time.ParseInLocation("2006-01", s, time.UTC)
	}
	return time.Time{}, fmt.Errorf("无法从文件名解析日期: %s", key)
}
