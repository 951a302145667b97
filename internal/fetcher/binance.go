// Package fetcher 实现实时 API 数据源：按日拉取 K 线与资金费率，
// 用于补齐归档源尚未发布的近期数据。
package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"bhds/internal/market"
	"bhds/internal/pkg/convert"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/delivery"
	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"
)

const maxKlinesPerRequest = 1500

// Config 控制 REST 访问行为。
type Config struct {
	TradeType   market.TradeType
	RESTBaseURL string
	ProxyURL    string
	HTTPTimeout time.Duration
	// RequestsPerSecond 为全局限速，默认 5 qps，避免触发交易所封禁。
	RequestsPerSecond float64
}

func (c Config) withDefaults() Config {
	if c.TradeType == "" {
		c.TradeType = market.TradeTypeSpot
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	return c
}

// Client 基于 go-binance SDK，按市场类型在构造时绑定对应端点，
// 之后的调用不再区分市场。
type Client struct {
	cfg     Config
	limiter *rate.Limiter

	spot *binance.Client
	um   *futures.Client
	cm   *delivery.Client

	httpClient *http.Client
}

func New(cfg Config) (*Client, error) {
	final := cfg.withDefaults()
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyURL != "" {
		proxyURL, err := url.Parse(final.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	c := &Client{
		cfg:        final,
		limiter:    rate.NewLimiter(rate.Limit(final.RequestsPerSecond), 1),
		httpClient: httpClient,
	}
	switch final.TradeType {
	case market.TradeTypeSpot:
		c.spot = binance.NewClient("", "")
		if final.RESTBaseURL != "" {
			c.spot.BaseURL = final.RESTBaseURL
		}
		c.spot.HTTPClient = httpClient
	case market.TradeTypeUMFutures:
		c.um = futures.NewClient("", "")
		if final.RESTBaseURL != "" {
			c.um.BaseURL = final.RESTBaseURL
		}
		c.um.HTTPClient = httpClient
	case market.TradeTypeCMFutures:
		c.cm = delivery.NewClient("", "")
		if final.RESTBaseURL != "" {
			c.cm.BaseURL = final.RESTBaseURL
		}
		c.cm.HTTPClient = httpClient
	default:
		return nil, fmt.Errorf("%w: 未知市场类型 %q", market.ErrValidation, final.TradeType)
	}
	return c, nil
}

// TradeType 返回构造时绑定的市场类型。
func (c *Client) TradeType() market.TradeType { return c.cfg.TradeType }

// Klines 拉取一批 K 线，上限单次 1500 根。
func (c *Client) Klines(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]market.Candle, error) {
	if symbol == "" || interval == "" {
		return nil, fmt.Errorf("%w: symbol/interval 不能为空", market.ErrValidation)
	}
	if limit <= 0 || limit > maxKlinesPerRequest {
		limit = maxKlinesPerRequest
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	switch c.cfg.TradeType {
	case market.TradeTypeSpot:
		svc := c.spot.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
		if start > 0 {
			svc = svc.StartTime(start)
		}
		if end > 0 {
			svc = svc.EndTime(end)
		}
		ks, err := svc.Do(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]market.Candle, 0, len(ks))
		for _, k := range ks {
			out = append(out, spotKline(k))
		}
		return out, nil
	case market.TradeTypeUMFutures:
		svc := c.um.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
		if start > 0 {
			svc = svc.StartTime(start)
		}
		if end > 0 {
			svc = svc.EndTime(end)
		}
		ks, err := svc.Do(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]market.Candle, 0, len(ks))
		for _, k := range ks {
			out = append(out, umKline(k))
		}
		return out, nil
	default:
		svc := c.cm.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
		if start > 0 {
			svc = svc.StartTime(start)
		}
		if end > 0 {
			svc = svc.EndTime(end)
		}
		ks, err := svc.Do(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]market.Candle, 0, len(ks))
		for _, k := range ks {
			out = append(out, cmKline(k))
		}
		return out, nil
	}
}

// KlinesOfDay 拉满一个 UTC 自然日的 K 线，内部按 1500 根翻页。
func (c *Client) KlinesOfDay(ctx context.Context, symbol, interval string, day time.Time) ([]market.Candle, error) {
	step, err := market.ParseInterval(interval)
	if err != nil {
		return nil, err
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC).UnixMilli()
	dayEnd := dayStart + 24*time.Hour.Milliseconds()
	var out []market.Candle
	cursor := dayStart
	for cursor < dayEnd {
		batch, err := c.Klines(ctx, symbol, interval, cursor, dayEnd-1, maxKlinesPerRequest)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		out = append(out, batch...)
		next := batch[len(batch)-1].OpenTime + step.Milliseconds()
		if next <= cursor {
			break
		}
		cursor = next
	}
	return out, nil
}

// FundingRates 拉取 [start, end) 内的资金费率结算记录，按需翻页。
// 现货市场没有资金费率，调用方应先用 TradeType.HasFunding 判断。
func (c *Client) FundingRates(ctx context.Context, symbol string, start, end int64) ([]market.FundingRate, error) {
	if !c.cfg.TradeType.HasFunding() {
		return nil, fmt.Errorf("%w: %s 市场没有资金费率", market.ErrValidation, c.cfg.TradeType)
	}
	var out []market.FundingRate
	cursor := start
	for cursor < end {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var batch []market.FundingRate
		if c.cfg.TradeType == market.TradeTypeUMFutures {
			rs, err := c.um.NewFundingRateService().Symbol(symbol).
				StartTime(cursor).EndTime(end - 1).Limit(1000).Do(ctx)
			if err != nil {
				return nil, err
			}
			for _, r := range rs {
				batch = append(batch, market.FundingRate{
					SettleTime: r.FundingTime,
					Rate:       convert.ParsePrice(r.FundingRate),
				})
			}
		} else {
			rs, err := c.cm.NewFundingRateService().Symbol(symbol).
				StartTime(cursor).EndTime(end - 1).Limit(1000).Do(ctx)
			if err != nil {
				return nil, err
			}
			for _, r := range rs {
				batch = append(batch, market.FundingRate{
					SettleTime: r.FundingTime,
					Rate:       convert.ParsePrice(r.FundingRate),
				})
			}
		}
		if len(batch) == 0 {
			break
		}
		out = append(out, batch...)
		next := batch[len(batch)-1].SettleTime + 1
		if next <= cursor {
			break
		}
		cursor = next
	}
	return out, nil
}

func spotKline(k *binance.Kline) market.Candle {
	return market.Candle{
		OpenTime:      k.OpenTime,
		CloseTime:     k.CloseTime,
		Open:          convert.ParsePrice(k.Open),
		High:          convert.ParsePrice(k.High),
		Low:           convert.ParsePrice(k.Low),
		Close:         convert.ParsePrice(k.Close),
		Volume:        convert.ParsePrice(k.Volume),
		QuoteVolume:   convert.ParsePrice(k.QuoteAssetVolume),
		Trades:        k.TradeNum,
		TakerBuyBase:  convert.ParsePrice(k.TakerBuyBaseAssetVolume),
		TakerBuyQuote: convert.ParsePrice(k.TakerBuyQuoteAssetVolume),
	}
}

func umKline(k *futures.Kline) market.Candle {
	return market.Candle{
		OpenTime:      k.OpenTime,
		CloseTime:     k.CloseTime,
		Open:          convert.ParsePrice(k.Open),
		High:          convert.ParsePrice(k.High),
		Low:           convert.ParsePrice(k.Low),
		Close:         convert.ParsePrice(k.Close),
		Volume:        convert.ParsePrice(k.Volume),
		QuoteVolume:   convert.ParsePrice(k.QuoteAssetVolume),
		Trades:        k.TradeNum,
		TakerBuyBase:  convert.ParsePrice(k.TakerBuyBaseAssetVolume),
		TakerBuyQuote: convert.ParsePrice(k.TakerBuyQuoteAssetVolume),
	}
}

// 币本位合约的成交量字段与 U 本位相反：volume 为合约张数，
// baseAssetVolume 为币量；统一后张数记入 volume，币量记入 quote_volume。
func cmKline(k *delivery.Kline) market.Candle {
	return market.Candle{
		OpenTime:      k.OpenTime,
		CloseTime:     k.CloseTime,
		Open:          convert.ParsePrice(k.Open),
		High:          convert.ParsePrice(k.High),
		Low:           convert.ParsePrice(k.Low),
		Close:         convert.ParsePrice(k.Close),
		Volume:        convert.ParsePrice(k.Volume),
		QuoteVolume:   convert.ParsePrice(k.QuoteAssetVolume),
		Trades:        k.TradeNum,
		TakerBuyBase:  convert.ParsePrice(k.TakerBuyBaseAssetVolume),
		TakerBuyQuote: convert.ParsePrice(k.TakerBuyQuoteAssetVolume),
	}
}
