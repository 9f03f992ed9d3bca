package backtest

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/quantlink-statarb/pkg/logging"
	"github.com/yourusername/quantlink-statarb/pkg/metrics"
	"github.com/yourusername/quantlink-statarb/pkg/signal"
	"github.com/yourusername/quantlink-statarb/pkg/spread"
	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// DefaultZScoreWindow is the rolling window used when a run sets none.
const DefaultZScoreWindow = 21

// RunSpec describes one pair backtest from raw prices.
type RunSpec struct {
	Pair         string
	Prices       *PriceData
	Spread       spread.Options
	ZScoreWindow int
	Long         *signal.Document
	Short        *signal.Document
	Simulation   SimulationConfig
	// SingleAsset trades asset 1 only; asset 2 still feeds the spread.
	SingleAsset bool
	Precision   int32
}

// RunOutput keeps every intermediate series of a run.
type RunOutput struct {
	Pair      string
	Spread    *spread.Result
	Deviation []float64
	Long      *signal.Trace
	Short     *signal.Trace
	Net       []float64
	// GrossExposure is |long| + |short| per step.
	GrossExposure []float64
	OverlapSteps  int
	Result        *Result
	Report        *Report
}

// Runner runs the full pipeline:
// prices → log returns → spread → rolling z-score → engines → net position → simulation → report.
type Runner struct {
	log     *logrus.Entry
	metrics *metrics.Collector
}

// NewRunner creates a runner; logger and collector may be nil.
func NewRunner(logger *logrus.Logger, collector *metrics.Collector) *Runner {
	return &Runner{
		log:     logging.WithComponent(logger, "Runner"),
		metrics: collector,
	}
}

// Run executes spec. It fails fast on ctx cancellation before starting.
func (r *Runner) Run(ctx context.Context, spec RunSpec) (out *RunOutput, err error) {
	start := time.Now()
	defer func() {
		r.metrics.ObserveRun(err, time.Since(start))
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec.Prices == nil {
		return nil, fmt.Errorf("%w: no price data for %s", stats.ErrEmptySeries, spec.Pair)
	}
	if spec.Long == nil && spec.Short == nil {
		return nil, fmt.Errorf("%w: %s has neither a long nor a short signal", stats.ErrConfiguration, spec.Pair)
	}

	returns1, err := stats.LogReturns(spec.Prices.Price1)
	if err != nil {
		return nil, fmt.Errorf("failed to compute returns for asset 1: %w", err)
	}
	returns2, err := stats.LogReturns(spec.Prices.Price2)
	if err != nil {
		return nil, fmt.Errorf("failed to compute returns for asset 2: %w", err)
	}

	sp, err := spread.Compute(spec.Prices.Price1, spec.Prices.Price2, spec.Spread)
	if err != nil {
		return nil, fmt.Errorf("failed to compute spread: %w", err)
	}

	window := spec.ZScoreWindow
	if window == 0 {
		window = DefaultZScoreWindow
	}
	deviation, err := stats.RollingZScore(sp.Spread, window)
	if err != nil {
		return nil, fmt.Errorf("failed to compute z-score: %w", err)
	}

	out = &RunOutput{Pair: spec.Pair, Spread: sp, Deviation: deviation}

	var positions [][]float64
	for _, doc := range []*signal.Document{spec.Long, spec.Short} {
		if doc == nil {
			continue
		}
		engine, err := doc.Engine()
		if err != nil {
			return nil, fmt.Errorf("failed to build %s engine: %w", doc.SignalType, err)
		}
		trace, err := engine.Walk(deviation)
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s signals: %w", doc.SignalType, err)
		}
		if engine.Direction() == signal.Long {
			out.Long = trace
		} else {
			out.Short = trace
		}
		positions = append(positions, trace.Positions)
	}

	out.Net, err = signal.Consolidate(positions...)
	if err != nil {
		return nil, fmt.Errorf("failed to consolidate signals: %w", err)
	}
	out.GrossExposure, err = signal.GrossExposure(positions...)
	if err != nil {
		return nil, fmt.Errorf("failed to consolidate signals: %w", err)
	}
	out.OverlapSteps, err = signal.OverlapSteps(positions...)
	if err != nil {
		return nil, fmt.Errorf("failed to consolidate signals: %w", err)
	}
	maxGross := 0.0
	for _, g := range out.GrossExposure {
		maxGross = math.Max(maxGross, g)
	}

	cfg := spec.Simulation
	var r2 []float64
	if spec.SingleAsset {
		cfg.Weight2 = nil
	} else {
		r2 = returns2
		if cfg.Weight2 == nil {
			cfg.Weight2 = signal.Float(1.0)
		}
	}

	out.Result, err = Simulate(out.Net, returns1, r2, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate: %w", err)
	}

	var warnings []string
	if out.OverlapSteps > 0 {
		warnings = append(warnings, fmt.Sprintf("long and short signals overlapped on %d steps", out.OverlapSteps))
		r.log.WithField("pair", spec.Pair).Warnf("Long and short positions overlap on %d steps", out.OverlapSteps)
	}

	spreadOpts := spec.Spread
	out.Report, err = NewReport(out.Result, ReportMeta{
		Pair:             spec.Pair,
		Spread:           &spreadOpts,
		ZScoreWindow:     window,
		Long:             spec.Long,
		Short:            spec.Short,
		Timestamps:       spec.Prices.Timestamps,
		Precision:        spec.Precision,
		MaxGrossExposure: maxGross,
		Warnings:         warnings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build report: %w", err)
	}

	for _, tr := range out.Result.Trades {
		r.metrics.ObserveTrades(string(tr.Direction), 1)
	}

	s := out.Result.Summary
	r.log.WithFields(logrus.Fields{
		"pair":         spec.Pair,
		"steps":        s.Steps,
		"total_return": s.TotalReturn,
		"sharpe":       s.SharpeRatio,
		"trades":       s.Trades.Opened,
	}).Info("Backtest completed")

	return out, nil
}

// BatchResult pairs a run spec with its outcome.
type BatchResult struct {
	Pair   string
	Output *RunOutput
	Err    error
}

// RunBatch runs every spec on a pool of workers. Results keep the order of
// specs; a failed run is reported in its BatchResult and does not stop the
// others.
func (r *Runner) RunBatch(ctx context.Context, specs []RunSpec, workers int) []BatchResult {
	if workers <= 0 {
		workers = 1
	}
	results := make([]BatchResult, len(specs))

	semaphore := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := range specs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				results[i] = BatchResult{Pair: specs[i].Pair, Err: ctx.Err()}
				return
			}
			defer func() { <-semaphore }()

			out, err := r.Run(ctx, specs[i])
			if err != nil {
				r.log.WithField("pair", specs[i].Pair).Errorf("Backtest failed: %v", err)
			}
			results[i] = BatchResult{Pair: specs[i].Pair, Output: out, Err: err}
		}(i)
	}
	wg.Wait()

	return results
}

// PrintBatchSummary writes one line per pair, best Sharpe first.
func PrintBatchSummary(w io.Writer, results []BatchResult) {
	if len(results) == 0 {
		return
	}

	sorted := append([]BatchResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if (sorted[i].Err == nil) != (sorted[j].Err == nil) {
			return sorted[i].Err == nil
		}
		if sorted[i].Err != nil {
			return false
		}
		return sorted[i].Output.Result.Summary.SharpeRatio > sorted[j].Output.Result.Summary.SharpeRatio
	})

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 72))
	fmt.Fprintln(w, "BATCH BACKTEST SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "%-20s %10s %8s %8s %8s %8s\n", "Pair", "Return", "Sharpe", "MaxDD", "Trades", "WinRate")

	var ok, totalTrades, totalWins, totalClosed int
	for _, res := range sorted {
		if res.Err != nil {
			fmt.Fprintf(w, "%-20s FAILED: %v\n", res.Pair, res.Err)
			continue
		}
		s := res.Output.Result.Summary
		ok++
		totalTrades += s.Trades.Opened
		totalWins += s.Trades.Winning
		totalClosed += s.Trades.Closed
		fmt.Fprintf(w, "%-20s %9.2f%% %8.2f %7.2f%% %8d %7.1f%%\n",
			res.Pair, s.TotalReturn*100, s.SharpeRatio, s.MaxDrawdown*100, s.Trades.Opened, s.Trades.WinRate*100)
	}

	fmt.Fprintf(w, "\nSucceeded:         %d/%d\n", ok, len(results))
	fmt.Fprintf(w, "Total Trades:      %d\n", totalTrades)
	if totalClosed > 0 {
		fmt.Fprintf(w, "Overall Win Rate:  %.1f%%\n", float64(totalWins)/float64(totalClosed)*100)
	}
	fmt.Fprintln(w, strings.Repeat("=", 72))
}
