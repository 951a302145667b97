// Package symbol 提供交易对解析与批处理 symbol 过滤。
package symbol

import "strings"

// 稳定币基础资产集合，过滤器按 base asset 匹配。
var stablecoins = map[string]struct{}{
	"BKRW": {}, "USDC": {}, "USDP": {}, "TUSD": {}, "BUSD": {}, "FDUSD": {},
	"DAI": {}, "EUR": {}, "GBP": {}, "USBP": {}, "SUSD": {}, "PAXG": {},
	"AEUR": {}, "USDS": {}, "USDSB": {},
}

// 杠杆代币后缀（现货 UP/DOWN/BULL/BEAR 系列）。
var leverageSuffixes = []string{"UP", "DOWN", "BULL", "BEAR"}

// Info 为 exchangeInfo 中单个交易对的关键信息。
type Info struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Status     string
}

// Filter 描述批处理 symbol 筛选条件，零值字段表示不过滤。
type Filter struct {
	QuoteAsset      string
	Status          string
	KeepStablecoins bool
	KeepLeverage    bool
}

// Apply 按条件过滤交易对，返回合法 symbol 列表（保持输入顺序）。
func (f Filter) Apply(infos []Info) []string {
	var out []string
	for _, info := range infos {
		if f.valid(info) {
			out = append(out, info.Symbol)
		}
	}
	return out
}

func (f Filter) valid(info Info) bool {
	if f.Status != "" && info.Status != f.Status {
		return false
	}
	if f.QuoteAsset != "" && info.QuoteAsset != f.QuoteAsset {
		return false
	}
	if !f.KeepStablecoins {
		if _, ok := stablecoins[info.BaseAsset]; ok {
			return false
		}
	}
	if !f.KeepLeverage && IsLeverageToken(info.BaseAsset) {
		return false
	}
	return true
}

// IsLeverageToken 判断 base asset 是否为杠杆代币。
func IsLeverageToken(base string) bool {
	for _, suffix := range leverageSuffixes {
		if strings.HasSuffix(base, suffix) && len(base) > len(suffix) {
			return true
		}
	}
	return false
}
