// Package app 负责应用级编排：按配置组装存储、数据源与流水线，
// 并向 CLI 暴露各条作业入口。
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"bhds/internal/analysis/visual"
	"bhds/internal/awsdata"
	"bhds/internal/config"
	"bhds/internal/fetcher"
	"bhds/internal/logger"
	"bhds/internal/market"
	"bhds/internal/pipeline"
	"bhds/internal/pkg/symbol"
	"bhds/internal/store"
	"bhds/internal/store/gormstore"
	apihttp "bhds/internal/transport/http"
)

// App 持有全部已初始化的依赖。由 Builder 构建，Close 统一释放。
type App struct {
	cfg     *config.Config
	store   *store.Store
	reports *gormstore.ReportStore
	aws     *awsdata.Client
	fetcher *fetcher.Client
	runner  *pipeline.Runner
	http    *apihttp.Server
}

// Close 释放全部持久化句柄。
func (a *App) Close() error {
	var firstErr error
	if a.reports != nil {
		if err := a.reports.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Symbols 解析要处理的 symbol 集合：显式配置优先，否则按报价资产
// 从交易所信息自动发现并过滤。
func (a *App) Symbols(ctx context.Context) ([]string, error) {
	if len(a.cfg.Source.Symbols) > 0 {
		out := make([]string, len(a.cfg.Source.Symbols))
		for i, s := range a.cfg.Source.Symbols {
			out[i] = strings.ToUpper(strings.TrimSpace(s))
		}
		return out, nil
	}
	infos, err := a.fetcher.ExchangeInfo(ctx)
	if err != nil {
		return nil, err
	}
	filter := symbol.Filter{
		QuoteAsset:      a.cfg.Source.QuoteAsset,
		Status:          "TRADING",
		KeepStablecoins: a.cfg.Source.KeepStablecoins,
		KeepLeverage:    a.cfg.Source.KeepLeverage,
	}
	symbols := filter.Apply(infos)
	logger.Infof("按报价资产 %s 发现 %d 个交易对", a.cfg.Source.QuoteAsset, len(symbols))
	return symbols, nil
}

// Download 下载并解析 AWS 归档层：K 线与（合约市场）资金费率。
func (a *App) Download(ctx context.Context, symbols []string) error {
	logger.Divider("download")
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := awsdata.IngestKlines(ctx, a.aws, a.store, a.cfg.Source.TradeType, symbol, a.cfg.Source.Interval)
		if err != nil {
			logger.Errorf("%s 归档下载失败: %v", symbol, err)
			continue
		}
		logger.Infof("%s 归档入库 %d 根", symbol, n)
		if a.cfg.Source.IncludeFunding && a.cfg.Source.TradeType.HasFunding() {
			if _, err := awsdata.IngestFunding(ctx, a.aws, a.store, a.cfg.Source.TradeType, symbol); err != nil {
				logger.Errorf("%s 资金费率下载失败: %v", symbol, err)
			}
		}
	}
	return nil
}

// Fetch 通过 REST API 补齐归档层缺失的分区。
func (a *App) Fetch(ctx context.Context, symbols []string) error {
	logger.Divider("fetch")
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := fetcher.CompleteKlines(ctx, a.fetcher, a.store, symbol, a.cfg.Source.Interval)
		if err != nil {
			logger.Errorf("%s API 补数失败: %v", symbol, err)
			continue
		}
		if n > 0 {
			logger.Infof("%s API 补齐 %d 根", symbol, n)
		}
		if a.cfg.Source.IncludeFunding && a.cfg.Source.TradeType.HasFunding() {
			if _, err := fetcher.CompleteFunding(ctx, a.fetcher, a.store, symbol, 0, time.Now().UnixMilli()); err != nil {
				logger.Errorf("%s 资金费率补数失败: %v", symbol, err)
			}
		}
	}
	return nil
}

// Generate 执行合并/断裂/补洞流水线。
func (a *App) Generate(ctx context.Context, symbols []string) error {
	res, err := a.runner.Generate(ctx, symbols)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("generate 部分失败: %d/%d（run=%s）", res.Failed, res.Symbols, res.RunID)
	}
	return nil
}

// Resample 执行重采样流水线。
func (a *App) Resample(ctx context.Context, symbols []string) error {
	res, err := a.runner.Resample(ctx, symbols)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("resample 部分失败: %d/%d（run=%s）", res.Failed, res.Symbols, res.RunID)
	}
	return nil
}

// Report 为每个 symbol 渲染 HTML 数据质量报告，写入 outDir。
// png 为真时额外通过 headless 浏览器输出 PNG 截图。
func (a *App) Report(ctx context.Context, symbols []string, outDir string, png bool) error {
	logger.Divider("report")
	if outDir == "" {
		outDir = filepath.Join(a.cfg.App.DataDir, "reports")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		input, err := a.reportInput(ctx, symbol)
		if err != nil {
			logger.Errorf("%s 报告数据加载失败: %v", symbol, err)
			continue
		}
		path := filepath.Join(outDir, strings.ToLower(symbol)+".html")
		if err := visual.WriteHTML(input, path); err != nil {
			logger.Errorf("%s 报告渲染失败: %v", symbol, err)
			continue
		}
		logger.Infof("%s 报告已写入 %s", symbol, path)
		if png {
			img, err := visual.RenderPNG(ctx, input)
			if err != nil {
				logger.Errorf("%s PNG 截图失败: %v", symbol, err)
				continue
			}
			pngPath := filepath.Join(outDir, strings.ToLower(symbol)+".png")
			if err := os.WriteFile(pngPath, img, 0o644); err != nil {
				logger.Errorf("%s PNG 写入失败: %v", symbol, err)
				continue
			}
			logger.Infof("%s 截图已写入 %s", symbol, pngPath)
		}
	}
	return nil
}

// Serve 启动查询 HTTP 服务并支持配置热更新，直到 ctx 取消。
func (a *App) Serve(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("HTTP 服务监听 %s", a.http.Addr())
		return a.http.Start(ctx)
	})
	return group.Wait()
}

func (a *App) reportInput(ctx context.Context, symbol string) (visual.ReportInput, error) {
	input := visual.ReportInput{Symbol: symbol, Interval: a.cfg.Source.Interval}
	segModels, err := a.reports.Segments(ctx, symbol)
	if err != nil {
		return input, err
	}
	for _, m := range segModels {
		key := store.SeriesKey{
			TradeType: a.cfg.Source.TradeType,
			Stage:     store.StageHolo,
			Symbol:    m.Name,
			Interval:  a.cfg.Source.Interval,
			Freq:      store.FreqDaily,
		}
		candles, err := a.store.ReadAll(ctx, key)
		if err != nil {
			return input, err
		}
		input.Segments = append(input.Segments, market.Segment{Name: m.Name, Symbol: symbol, Candles: candles})
	}
	gapModels, err := a.reports.Gaps(ctx, symbol)
	if err != nil {
		return input, err
	}
	for _, g := range gapModels {
		input.Gaps = append(input.Gaps, market.Gap{
			PrevOpenTime: g.PrevOpenTime,
			OpenTime:     g.OpenTime,
			PrevClose:    g.PrevClose,
			Open:         g.Open,
			Duration:     g.DurationMs,
			PriceChange:  g.PriceChange,
		})
	}
	return input, nil
}
