package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"bhds/internal/app"
	"bhds/internal/config"
	"bhds/internal/logger"
)

const usage = `用法: bhds <command> [flags]

命令:
  download   下载并解析 AWS 归档数据
  fetch      通过 REST API 补齐缺失分区
  generate   合并数据源、检测断裂并补洞
  resample   对补齐段执行重采样规则
  report     渲染 HTML 数据质量报告
  serve      启动查询 HTTP 服务
  all        依次执行 download → fetch → generate → resample
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "配置文件路径")
	symbolsFlag := fs.String("symbols", "", "逗号分隔的 symbol 列表，覆盖配置")
	outDir := fs.String("out", "", "报告输出目录（仅 report）")
	withPNG := fs.Bool("png", false, "report 时额外输出 PNG 截图")
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogFile)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（market=%s interval=%s）", cfg.Source.TradeType, cfg.Source.Interval)

	application, err := app.NewBuilder(cfg).Build()
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, application, command, *cfgPath, *symbolsFlag, *outDir, *withPNG); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
}

func run(ctx context.Context, a *app.App, command, cfgPath, symbolsFlag, outDir string, withPNG bool) error {
	var symbols []string
	if command != "serve" {
		var err error
		symbols, err = resolveSymbols(ctx, a, symbolsFlag)
		if err != nil {
			return err
		}
	}
	switch command {
	case "download":
		return a.Download(ctx, symbols)
	case "fetch":
		return a.Fetch(ctx, symbols)
	case "generate":
		return a.Generate(ctx, symbols)
	case "resample":
		return a.Resample(ctx, symbols)
	case "report":
		return a.Report(ctx, symbols, outDir, withPNG)
	case "serve":
		watcher, err := config.Watch(cfgPath)
		if err != nil {
			return err
		}
		watcher.Subscribe(func(snap config.Snapshot) {
			logger.SetLevel(snap.Config.App.LogLevel)
			logger.Infof("配置已更新（version=%d level=%s）", snap.Version, snap.Config.App.LogLevel)
		})
		return a.Serve(ctx)
	case "all":
		if err := a.Download(ctx, symbols); err != nil {
			return err
		}
		if err := a.Fetch(ctx, symbols); err != nil {
			return err
		}
		if err := a.Generate(ctx, symbols); err != nil {
			return err
		}
		return a.Resample(ctx, symbols)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("未知命令 %q", command)
	}
}

func resolveSymbols(ctx context.Context, a *app.App, symbolsFlag string) ([]string, error) {
	if trimmed := strings.TrimSpace(symbolsFlag); trimmed != "" {
		var symbols []string
		for _, s := range strings.Split(trimmed, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
		return symbols, nil
	}
	return a.Symbols(ctx)
}

func defaultConfigPath() string {
	if p := os.Getenv("BHDS_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
