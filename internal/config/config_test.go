package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bhds/internal/market"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "app:\n  data_dir: /tmp/bhds-test\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, market.TradeTypeSpot, cfg.Source.TradeType)
	assert.Equal(t, "1m", cfg.Source.Interval)
	assert.Equal(t, "USDT", cfg.Source.QuoteAsset)
	assert.Equal(t, 4, cfg.App.Workers)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, 24*time.Hour, cfg.Gap.MinGap)
	assert.Equal(t, 0.1, cfg.Gap.MinPriceChange)
	assert.Equal(t, ":8090", cfg.HTTP.Listen)
	assert.NotEmpty(t, cfg.Resample.Rules, "未配置规则时使用兜底规则")
	assert.Equal(t, filepath.Join("/tmp/bhds-test", "reports.db"), cfg.Report.DBPath)
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  data_dir: /data/bhds
  log_level: debug
  workers: 8
source:
  trade_type: um_futures
  interval: 1m
  symbols: [BTCUSDT, ETHUSDT]
  include_funding: true
gap:
  min_gap: 12h
  min_price_change: 0.2
resample:
  rules:
    - interval: 1h
      offset: 5m
    - interval: 4h
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, market.TradeTypeUMFutures, cfg.Source.TradeType)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Source.Symbols)
	assert.Equal(t, 12*time.Hour, cfg.Gap.MinGap)
	assert.Equal(t, 0.2, cfg.Gap.MinPriceChange)
	require.Len(t, cfg.Resample.Rules, 2)
	assert.Equal(t, "5m", cfg.Resample.Rules[0].Offset)
}

func TestLoad_RejectsSpotFunding(t *testing.T) {
	path := writeConfig(t, `
source:
  trade_type: spot
  include_funding: true
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsBadRules(t *testing.T) {
	cases := []string{
		// 非法周期格式
		"resample:\n  rules:\n    - interval: abc\n",
		// 偏移不小于目标周期
		"resample:\n  rules:\n    - interval: 1h\n      offset: 2h\n",
		// offset 与 base_offset 互斥
		"resample:\n  rules:\n    - interval: 1h\n      offset: 5m\n      base_offset: 15m\n",
		// 目标不是原生周期整数倍
		"source:\n  interval: 7m\nresample:\n  rules:\n    - interval: 1h\n",
		// 偏移未对齐原生周期
		"source:\n  interval: 5m\nresample:\n  rules:\n    - interval: 15m\n      offset: 1m\n",
		// base_offset 未对齐原生周期
		"source:\n  interval: 5m\nresample:\n  rules:\n    - interval: 30m\n      base_offset: 2m\n",
	}
	for _, c := range cases {
		_, err := Load(writeConfig(t, c))
		assert.Error(t, err, c)
	}
}

func TestLoad_RejectsUnknownSection(t *testing.T) {
	// 拼错的节名不能被静默忽略。
	_, err := Load(writeConfig(t, "resmaple:\n  rules: []\n"))
	assert.Error(t, err)
}

func TestLoad_RejectsBadLevel(t *testing.T) {
	_, err := Load(writeConfig(t, "app:\n  log_level: verbose\n"))
	assert.Error(t, err)
}

func TestLoad_RejectsPercentAsRatio(t *testing.T) {
	// 10 表示 1000%，大概率是把百分数当比例填了。
	_, err := Load(writeConfig(t, "gap:\n  min_price_change: 10\n"))
	assert.Error(t, err)
}

func TestWatch_ReloadKeepsLastValid(t *testing.T) {
	path := writeConfig(t, "app:\n  workers: 2\n")

	w, err := Watch(path)
	require.NoError(t, err)

	snap := w.Snapshot()
	assert.Equal(t, 2, snap.Config.App.Workers)
	assert.EqualValues(t, 1, snap.Version)

	// 非法配置被拒绝，快照不变。
	require.NoError(t, os.WriteFile(path, []byte("app:\n  log_level: bogus\n"), 0o644))
	assert.Error(t, w.reload())
	assert.Equal(t, 2, w.Snapshot().Config.App.Workers)
}
