package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Apply(t *testing.T) {
	infos := []Info{
		{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT", Status: "TRADING"},
		{Symbol: "ETHBTC", BaseAsset: "ETH", QuoteAsset: "BTC", Status: "TRADING"},
		{Symbol: "USDCUSDT", BaseAsset: "USDC", QuoteAsset: "USDT", Status: "TRADING"},
		{Symbol: "BTCUPUSDT", BaseAsset: "BTCUP", QuoteAsset: "USDT", Status: "TRADING"},
		{Symbol: "LUNAUSDT", BaseAsset: "LUNA", QuoteAsset: "USDT", Status: "BREAK"},
	}

	f := Filter{QuoteAsset: "USDT", Status: "TRADING"}
	assert.Equal(t, []string{"BTCUSDT"}, f.Apply(infos))

	f.KeepStablecoins = true
	assert.Equal(t, []string{"BTCUSDT", "USDCUSDT"}, f.Apply(infos))

	f.KeepLeverage = true
	assert.Equal(t, []string{"BTCUSDT", "USDCUSDT", "BTCUPUSDT"}, f.Apply(infos))

	// 零值过滤器只剔除稳定币与杠杆代币。
	assert.Equal(t, []string{"BTCUSDT", "ETHBTC", "LUNAUSDT"}, Filter{}.Apply(infos))
}

func TestIsLeverageToken(t *testing.T) {
	assert.True(t, IsLeverageToken("BTCUP"))
	assert.True(t, IsLeverageToken("ETHDOWN"))
	assert.True(t, IsLeverageToken("ADABULL"))
	assert.False(t, IsLeverageToken("BTC"))
	// 纯后缀不是杠杆代币。
	assert.False(t, IsLeverageToken("UP"))
}
