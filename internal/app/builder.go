package app

import (
	"fmt"
	"path/filepath"

	"bhds/internal/awsdata"
	"bhds/internal/config"
	"bhds/internal/fetcher"
	"bhds/internal/logger"
	"bhds/internal/pipeline"
	"bhds/internal/store"
	"bhds/internal/store/gormstore"
	apihttp "bhds/internal/transport/http"
)

// Builder 按依赖顺序组装 App，可通过选项替换个别构件（测试用）。
type Builder struct {
	cfg *config.Config

	storeOverride   *store.Store
	reportsOverride *gormstore.ReportStore
}

type BuilderOption func(*Builder)

// WithStore 替换分区存储。
func WithStore(s *store.Store) BuilderOption {
	return func(b *Builder) { b.storeOverride = s }
}

// WithReportStore 替换报告库。
func WithReportStore(s *gormstore.ReportStore) BuilderOption {
	return func(b *Builder) { b.reportsOverride = s }
}

func NewBuilder(cfg *config.Config, opts ...BuilderOption) *Builder {
	b := &Builder{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Build 构建完整应用。任一构件失败时整体失败并释放已打开的句柄。
func (b *Builder) Build() (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	s := b.storeOverride
	if s == nil {
		var err error
		s, err = store.New(filepath.Join(cfg.App.DataDir, "series"))
		if err != nil {
			return nil, fmt.Errorf("初始化分区存储失败: %w", err)
		}
	}
	reports := b.reportsOverride
	if reports == nil {
		var err error
		reports, err = gormstore.NewReportStore(cfg.Report.DBPath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化报告库失败: %w", err)
		}
	}

	aws, err := awsdata.NewClient(awsdata.Config{
		ListBaseURL:     cfg.AWS.ListBaseURL,
		DownloadBaseURL: cfg.AWS.DownloadBaseURL,
		LocalDir:        cfg.AWS.LocalDir,
		HTTPTimeout:     cfg.AWS.HTTPTimeout,
		VerifyChecksum:  cfg.AWS.VerifyChecksum,
	})
	if err != nil {
		reports.Close()
		s.Close()
		return nil, fmt.Errorf("初始化归档客户端失败: %w", err)
	}
	fetch, err := fetcher.New(fetcher.Config{
		TradeType:         cfg.Source.TradeType,
		RESTBaseURL:       cfg.Fetch.RESTBaseURL,
		ProxyURL:          cfg.Fetch.ProxyURL,
		HTTPTimeout:       cfg.Fetch.HTTPTimeout,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
	})
	if err != nil {
		reports.Close()
		s.Close()
		return nil, fmt.Errorf("初始化 REST 客户端失败: %w", err)
	}

	pipe, err := pipeline.New(pipeline.Config{
		TradeType:      cfg.Source.TradeType,
		Interval:       cfg.Source.Interval,
		MinGap:         cfg.Gap.MinGap,
		MinPriceChange: cfg.Gap.MinPriceChange,
		MinSegment:     cfg.Gap.MinSegmentCandles,
		IncludeVwap:    cfg.Source.IncludeVwap,
		IncludeFunding: cfg.Source.IncludeFunding,
		ExcludeEmpty:   cfg.Source.ExcludeEmpty,
		Rules:          cfg.Resample.Rules,
	}, s, reports)
	if err != nil {
		reports.Close()
		s.Close()
		return nil, fmt.Errorf("初始化流水线失败: %w", err)
	}
	runner := pipeline.NewRunner(pipe, reports, cfg.App.Workers)

	httpSrv, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr:    cfg.HTTP.Listen,
		Store:   s,
		Reports: reports,
	})
	if err != nil {
		reports.Close()
		s.Close()
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	return &App{
		cfg:     cfg,
		store:   s,
		reports: reports,
		aws:     aws,
		fetcher: fetch,
		runner:  runner,
		http:    httpSrv,
	}, nil
}
