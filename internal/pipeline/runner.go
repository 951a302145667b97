package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"bhds/internal/logger"
	"bhds/internal/store/gormstore"
)

// Runner 在多个 symbol 上并行调度 Pipeline，并把一次批处理写成
// 运行记录。单 symbol 失败只记录不终止，处理完全部 symbol 后按
// ok / partial 汇总收尾。
type Runner struct {
	pipeline *Pipeline
	reports  *gormstore.ReportStore
	workers  int
}

func NewRunner(p *Pipeline, reports *gormstore.ReportStore, workers int) *Runner {
	if workers <= 0 {
		workers = 4
	}
	return &Runner{pipeline: p, reports: reports, workers: workers}
}

// Result 为一次批处理的汇总。
type Result struct {
	RunID   string           `json:"run_id"`
	Symbols int              `json:"symbols"`
	Failed  int              `json:"failed"`
	Stats   map[string]Stats `json:"stats"`
	Elapsed time.Duration    `json:"elapsed"`
}

// Generate 对全部 symbol 执行生成流水线。
func (r *Runner) Generate(ctx context.Context, symbols []string) (Result, error) {
	return r.run(ctx, "generate", symbols, func(ctx context.Context, runID, symbol string) (Stats, error) {
		return r.pipeline.Generate(ctx, runID, symbol)
	})
}

// Resample 对全部 symbol 执行重采样流水线。
func (r *Runner) Resample(ctx context.Context, symbols []string) (Result, error) {
	return r.run(ctx, "resample", symbols, func(ctx context.Context, runID, symbol string) (Stats, error) {
		return Stats{}, r.pipeline.Resample(ctx, symbol)
	})
}

type symbolFunc func(ctx context.Context, runID, symbol string) (Stats, error)

func (r *Runner) run(ctx context.Context, kind string, symbols []string, fn symbolFunc) (Result, error) {
	runID := uuid.New().String()
	started := time.Now()
	params, _ := json.Marshal(map[string]any{
		"trade_type": r.pipeline.cfg.TradeType,
		"interval":   r.pipeline.cfg.Interval,
		"symbols":    symbols,
		"workers":    r.workers,
	})
	if err := r.reports.StartRun(ctx, runID, kind, params); err != nil {
		return Result{}, err
	}
	logger.Divider(kind + " " + runID[:8])
	logger.Infof("%s 启动: %d 个 symbol，%d 并发", kind, len(symbols), r.workers)

	type outcome struct {
		symbol string
		stats  Stats
		err    error
	}
	results := make([]outcome, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			stats, err := fn(gctx, runID, symbol)
			results[i] = outcome{symbol: symbol, stats: stats, err: err}
			if err != nil {
				// 单 symbol 失败不取消批次，记录后继续。
				logger.Errorf("%s %s 失败: %v", kind, symbol, err)
				_ = r.reports.RecordError(gctx, runID, symbol, kind, err)
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		_ = r.reports.FinishRun(context.WithoutCancel(ctx), runID, len(symbols), len(symbols))
		return Result{RunID: runID}, err
	}

	res := Result{RunID: runID, Symbols: len(symbols), Stats: make(map[string]Stats, len(symbols))}
	for _, o := range results {
		if o.err != nil {
			res.Failed++
			continue
		}
		res.Stats[o.symbol] = o.stats
	}
	res.Elapsed = time.Since(started)
	if err := r.reports.FinishRun(ctx, runID, res.Symbols, res.Failed); err != nil {
		return res, err
	}
	logger.Infof("%s 完成: %d 成功 %d 失败，用时 %s", kind, res.Symbols-res.Failed, res.Failed, res.Elapsed.Round(time.Millisecond))
	return res, nil
}
