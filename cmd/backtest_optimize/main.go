package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/quantlink-statarb/pkg/backtest"
	"github.com/yourusername/quantlink-statarb/pkg/config"
	"github.com/yourusername/quantlink-statarb/pkg/logging"
)

var (
	configFile   = flag.String("config", "config/backtest.yaml", "Backtest configuration file")
	action       = flag.String("action", "optimize", "Action: optimize, compare, archive")
	pairName     = flag.String("pair", "", "Pair to optimize (default: first configured pair)")
	params       = flag.String("params", "", "Parameters to optimize, overrides optimizer.ranges (name:min:max:step,...)")
	goal         = flag.String("goal", "", "Optimization goal: sharpe, total_return, win_rate, profit_factor, calmar")
	workers      = flag.Int("workers", 0, "Number of parallel workers")
	outputDir    = flag.String("output", "backtest_results/optimal_params", "Output directory")
	topN         = flag.Int("top", 0, "Number of top results to print")
	currentFile  = flag.String("current", "", "Current optimal params file (compare, archive)")
	baselineFile = flag.String("baseline", "", "Baseline optimal params file (compare)")
	archiveDir   = flag.String("archive-dir", "backtest_results/archive", "Archive directory (archive)")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config{}, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	switch *action {
	case "optimize":
		err = runOptimization(logger)
	case "compare":
		err = runCompare()
	case "archive":
		err = runArchive(logger)
	default:
		err = fmt.Errorf("unknown action: %s", *action)
	}
	if err != nil {
		logger.WithField("component", "Main").Error(err)
		os.Exit(1)
	}
}

func runOptimization(logger *logrus.Logger) error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logger, err = logging.NewLogger(cfg.Log, nil); err != nil {
		return err
	}
	log := logging.WithComponent(logger, "Main")

	if len(cfg.Pairs) == 0 {
		return fmt.Errorf("no pairs configured")
	}
	pair := cfg.Pairs[0]
	if *pairName != "" {
		var ok bool
		if pair, ok = cfg.Pair(*pairName); !ok {
			return fmt.Errorf("pair %q not in config", *pairName)
		}
	}

	prices, err := backtest.NewHistoricalDataReader(logger).Load(pair.PairSource)
	if err != nil {
		return err
	}
	base := cfg.RunSpec(pair, prices)

	goalName := cfg.Optimizer.Goal
	if *goal != "" {
		goalName = *goal
	}
	optGoal, err := backtest.ParseGoal(goalName)
	if err != nil {
		return err
	}

	ranges := cfg.Optimizer.Ranges
	if *params != "" {
		if ranges, err = backtest.ParseParamRanges(*params); err != nil {
			return err
		}
	}
	if len(ranges) == 0 {
		return fmt.Errorf("no parameters specified; set optimizer.ranges or -params (e.g. -params long.lt.entry:-2.5:-1:0.25)")
	}

	optimizer := backtest.NewParameterOptimizer(base, logger, nil)
	optimizer.SetOptimizationGoal(optGoal)
	optimizer.SetMaxWorkers(cfg.Optimizer.Workers)
	if *workers > 0 {
		optimizer.SetMaxWorkers(*workers)
	}
	for _, r := range ranges {
		if err := optimizer.AddParamRange(r); err != nil {
			return err
		}
		log.Infof("Added parameter range: %s [%g, %g] step %g", r.Name, r.Min, r.Max, r.Step)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := optimizer.GridSearch(ctx)
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}

	exporter := backtest.NewParamExporter(*outputDir)
	resultsFile, err := exporter.ExportOptimizationResults(pair.Name, results, optGoal)
	if err != nil {
		return err
	}
	log.Infof("Exported all results to: %s", resultsFile)

	best := backtest.GetBestResult(results)
	if best == nil {
		return fmt.Errorf("every parameter combination failed")
	}
	paramFile, err := exporter.ExportOptimalParams(base, best, optGoal)
	if err != nil {
		return err
	}
	log.Infof("Exported optimal params to: %s", paramFile)

	n := cfg.Optimizer.TopN
	if *topN > 0 {
		n = *topN
	}
	printTop(backtest.GetTopNResults(results, n))
	return nil
}

func printTop(results []*backtest.OptimizationResult) {
	fmt.Println("\n========================================")
	fmt.Println("Top Parameter Combinations")
	fmt.Println("========================================")
	for _, r := range results {
		fmt.Printf("#%-3d score=%.4f sharpe=%.2f return=%.2f%% maxdd=%.2f%% trades=%d\n",
			r.Rank, r.Score, r.Metrics.SharpeRatio, r.Metrics.TotalReturn*100, r.Metrics.MaxDrawdown*100, r.Metrics.TotalTrades)
		fmt.Printf("     %v\n", r.Parameters)
	}
	fmt.Println("========================================")
}

func runCompare() error {
	if *currentFile == "" || *baselineFile == "" {
		return fmt.Errorf("compare needs -current and -baseline")
	}
	current, err := backtest.LoadOptimalParams(*currentFile)
	if err != nil {
		return err
	}
	baseline, err := backtest.LoadOptimalParams(*baselineFile)
	if err != nil {
		return err
	}
	fmt.Print(backtest.CompareParams(baseline, current))
	return nil
}

func runArchive(logger *logrus.Logger) error {
	if *currentFile == "" {
		return fmt.Errorf("archive needs -current")
	}
	path, err := backtest.NewParamExporter(*outputDir).ArchiveOptimalParams(*currentFile, *archiveDir)
	if err != nil {
		return err
	}
	logging.WithComponent(logger, "Main").Infof("Archived to %s", path)
	return nil
}
