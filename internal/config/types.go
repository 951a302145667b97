package config

import (
	"time"

	"bhds/internal/market"
	"bhds/internal/pipeline"
)

// Config 是完整的运行配置，按关注点分节。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Source   SourceConfig   `mapstructure:"source"`
	AWS      AWSConfig      `mapstructure:"aws"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Gap      GapConfig      `mapstructure:"gap"`
	Resample ResampleConfig `mapstructure:"resample"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Report   ReportConfig   `mapstructure:"report"`
}

// AppConfig 为进程级配置。
type AppConfig struct {
	// DataDir 为数据根目录，所有分层序列库都落在其下。
	DataDir string `mapstructure:"data_dir"`
	LogFile string `mapstructure:"log_file"`
	// LogLevel 支持 debug/info/warn/error。
	LogLevel string `mapstructure:"log_level"`
	Workers  int    `mapstructure:"workers"`
}

// SourceConfig 描述要处理的市场与 symbol 集合。
type SourceConfig struct {
	TradeType market.TradeType `mapstructure:"trade_type"`
	Interval  string           `mapstructure:"interval"`
	// Symbols 显式指定时优先于 QuoteAsset 自动发现。
	Symbols         []string `mapstructure:"symbols"`
	QuoteAsset      string   `mapstructure:"quote_asset"`
	KeepStablecoins bool     `mapstructure:"keep_stablecoins"`
	KeepLeverage    bool     `mapstructure:"keep_leverage"`
	IncludeVwap     bool     `mapstructure:"include_vwap"`
	IncludeFunding  bool     `mapstructure:"include_funding"`
	ExcludeEmpty    bool     `mapstructure:"exclude_empty"`
}

// AWSConfig 为归档数据源参数。
type AWSConfig struct {
	ListBaseURL     string        `mapstructure:"list_base_url"`
	DownloadBaseURL string        `mapstructure:"download_base_url"`
	LocalDir        string        `mapstructure:"local_dir"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
	VerifyChecksum  bool          `mapstructure:"verify_checksum"`
}

// FetchConfig 为 REST 补数参数。
type FetchConfig struct {
	RESTBaseURL       string        `mapstructure:"rest_base_url"`
	ProxyURL          string        `mapstructure:"proxy_url"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// GapConfig 为断裂检测阈值。
type GapConfig struct {
	MinGap            time.Duration `mapstructure:"min_gap"`
	MinPriceChange    float64       `mapstructure:"min_price_change"`
	MinSegmentCandles int           `mapstructure:"min_segment_candles"`
}

// ResampleConfig 为重采样规则清单。
type ResampleConfig struct {
	Rules []pipeline.RuleSpec `mapstructure:"rules"`
}

// HTTPConfig 为查询 API 服务参数。
type HTTPConfig struct {
	Listen string `mapstructure:"listen"`
}

// ReportConfig 为断裂/分段报告库位置。
type ReportConfig struct {
	DBPath string `mapstructure:"db_path"`
}
