// Package config 负责加载、校验与热更新 YAML 运行配置。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"bhds/internal/market"
)

// Load 读取并校验配置文件，返回带默认值的完整配置。
func Load(path string) (*Config, error) {
	if err := checkSections(path); err != nil {
		return nil, err
	}
	v, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var knownSections = map[string]struct{}{
	"app": {}, "source": {}, "aws": {}, "fetch": {},
	"gap": {}, "resample": {}, "http": {}, "report": {},
}

// checkSections 拒绝含未知顶层配置节的文件。viper 对多余键静默忽略，
// 拼错节名会变成整节丢失，这里提前报错。
func checkSections(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parsing config failed (%s): %w", path, err)
	}
	for section := range doc {
		if _, ok := knownSections[section]; !ok {
			return fmt.Errorf("未知配置节 %q (%s)", section, path)
		}
	}
	return nil
}

func readFile(path string) (*viper.Viper, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(abs)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", abs, err)
	}
	return v, nil
}

func (c *Config) applyDefaults() {
	if c.App.DataDir == "" {
		c.App.DataDir = "data"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.Workers <= 0 {
		c.App.Workers = 4
	}
	if c.Source.TradeType == "" {
		c.Source.TradeType = market.TradeTypeSpot
	}
	if c.Source.Interval == "" {
		c.Source.Interval = "1m"
	}
	if c.Source.QuoteAsset == "" && len(c.Source.Symbols) == 0 {
		c.Source.QuoteAsset = "USDT"
	}
	if c.AWS.LocalDir == "" {
		c.AWS.LocalDir = filepath.Join(c.App.DataDir, "aws_data")
	}
	if c.AWS.HTTPTimeout <= 0 {
		c.AWS.HTTPTimeout = 2 * time.Minute
	}
	if c.Fetch.HTTPTimeout <= 0 {
		c.Fetch.HTTPTimeout = 15 * time.Second
	}
	if c.Fetch.RequestsPerSecond <= 0 {
		c.Fetch.RequestsPerSecond = 5
	}
	if c.Gap.MinGap <= 0 {
		c.Gap.MinGap = 24 * time.Hour
	}
	if c.Gap.MinPriceChange <= 0 {
		c.Gap.MinPriceChange = 0.1
	}
	if len(c.Resample.Rules) == 0 {
		c.Resample.Rules = defaultRules()
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8090"
	}
	if c.Report.DBPath == "" {
		c.Report.DBPath = filepath.Join(c.App.DataDir, "reports.db")
	}
}

func validate(c *Config) error {
	if _, err := market.ParseTradeType(string(c.Source.TradeType)); err != nil {
		return err
	}
	if _, err := market.ParseInterval(c.Source.Interval); err != nil {
		return fmt.Errorf("source.interval: %w", err)
	}
	if c.Source.IncludeFunding && c.Source.TradeType == market.TradeTypeSpot {
		return fmt.Errorf("source.include_funding 不适用于现货")
	}
	switch c.App.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level 非法: %q", c.App.LogLevel)
	}
	if c.Gap.MinPriceChange >= 1 {
		return fmt.Errorf("gap.min_price_change 必须小于 1（比例而非百分数）")
	}
	return validateRules(c)
}
