package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"bhds/internal/market"
	symbolpkg "bhds/internal/pkg/symbol"

	"github.com/tidwall/gjson"
)

// exchangeInfo 端点按市场类型区分。
func (c *Client) exchangeInfoURL() string {
	base := c.cfg.RESTBaseURL
	switch c.cfg.TradeType {
	case market.TradeTypeSpot:
		if base == "" {
			base = "https://api.binance.com"
		}
		return base + "/api/v3/exchangeInfo"
	case market.TradeTypeUMFutures:
		if base == "" {
			base = "https://fapi.binance.com"
		}
		return base + "/fapi/v1/exchangeInfo"
	default:
		if base == "" {
			base = "https://dapi.binance.com"
		}
		return base + "/dapi/v1/exchangeInfo"
	}
}

// ExchangeInfo 拉取全部交易对信息。响应体很大且结构随市场类型略有差异，
// 这里只抽取过滤所需字段，不做全量反序列化。
func (c *Client) ExchangeInfo(ctx context.Context) ([]symbolpkg.Info, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.exchangeInfoURL(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("exchangeInfo 返回状态码 %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var infos []symbolpkg.Info
	gjson.GetBytes(body, "symbols").ForEach(func(_, item gjson.Result) bool {
		infos = append(infos, symbolpkg.Info{
			Symbol:     item.Get("symbol").String(),
			BaseAsset:  item.Get("baseAsset").String(),
			QuoteAsset: item.Get("quoteAsset").String(),
			Status:     item.Get("status").String(),
		})
		return true
	})
	return infos, nil
}
