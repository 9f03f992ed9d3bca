package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/quantlink-statarb/pkg/backtest"
	"github.com/yourusername/quantlink-statarb/pkg/client"
	"github.com/yourusername/quantlink-statarb/pkg/config"
	"github.com/yourusername/quantlink-statarb/pkg/logging"
	"github.com/yourusername/quantlink-statarb/pkg/metrics"
	"github.com/yourusername/quantlink-statarb/pkg/rpc"
)

const (
	appName    = "StatArbBacktest"
	appVersion = "1.0.0"
)

var (
	configFile = flag.String("config", "./config/backtest.yaml", "Configuration file path")
	pairName   = flag.String("pair", "", "Run only this pair (default: all pairs)")
	outputDir  = flag.String("output", "", "Output directory (overrides config)")
	formats    = flag.String("formats", "", "Comma-separated report formats: yaml,json,markdown,csv (overrides config)")
	workers    = flag.Int("workers", 0, "Parallel pairs (overrides config)")
	publish    = flag.Bool("publish", false, "Publish reports to NATS (engine.nats_url)")
	remote     = flag.String("remote", "", "Run on a backtest_server at this gRPC address instead of locally")
	watch      = flag.Bool("watch", false, "Print reports published on engine.nats_subject until interrupted")
	version    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		return
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg)

	logger, err := logging.NewLogger(cfg.Log, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	runFn := run
	if *watch {
		runFn = watchReports
	}
	if err := runFn(cfg, logger); err != nil {
		logger.WithField("component", "Main").Errorf("Backtest failed: %v", err)
		os.Exit(1)
	}
}

func applyOverrides(cfg *config.Config) {
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *formats != "" {
		cfg.Output.Formats = strings.Split(*formats, ",")
	}
	if *workers > 0 {
		cfg.Engine.Workers = *workers
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	log := logging.WithComponent(logger, "Main")
	printBanner()

	var collector *metrics.Collector
	if cfg.Engine.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector = metrics.NewCollector(reg)
		srv, err := metrics.Serve(cfg.Engine.MetricsAddr, reg, logger)
		if err != nil {
			return err
		}
		defer srv.Close()
		log.Infof("Metrics on %s/metrics", cfg.Engine.MetricsAddr)
	}

	pairs := cfg.Pairs
	if *pairName != "" {
		p, ok := cfg.Pair(*pairName)
		if !ok {
			return fmt.Errorf("pair %q not in config", *pairName)
		}
		pairs = []config.PairConfig{p}
	}
	if len(pairs) == 0 {
		return fmt.Errorf("no pairs configured")
	}

	reader := backtest.NewHistoricalDataReader(logger)
	specs := make([]backtest.RunSpec, 0, len(pairs))
	for _, p := range pairs {
		prices, err := reader.Load(p.PairSource)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", p.Name, err)
		}
		specs = append(specs, cfg.RunSpec(p, prices))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reports []*backtest.Report
	failed := 0
	if *remote != "" {
		var err error
		reports, failed, err = runRemote(ctx, *remote, specs, log)
		if err != nil {
			return err
		}
	} else {
		results := backtest.NewRunner(logger, collector).RunBatch(ctx, specs, cfg.Engine.Workers)
		for _, res := range results {
			if res.Err != nil {
				failed++
				continue
			}
			reports = append(reports, res.Output.Report)
		}
		if len(results) > 1 {
			backtest.PrintBatchSummary(os.Stdout, results)
		}
	}

	var publisher *client.ReportPublisher
	if *publish {
		if cfg.Engine.NATSURL == "" {
			return fmt.Errorf("-publish needs engine.nats_url")
		}
		conn, err := client.Connect(cfg.Engine.NATSURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		publisher = client.NewReportPublisher(conn, cfg.Engine.NATSSubject, logger, collector)
	}

	generator := backtest.NewReportGenerator(cfg.Output.Dir, cfg.Output.Formats, logger)
	for _, r := range reports {
		if len(specs) == 1 {
			backtest.PrintSummary(os.Stdout, r.Pair, r.Summary)
		}
		if _, err := generator.Generate(r); err != nil {
			return fmt.Errorf("failed to write report for %s: %w", r.Pair, err)
		}
		if publisher != nil {
			if err := publisher.Publish(r); err != nil {
				log.Warnf("Publish failed for %s: %v", r.Pair, err)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d backtests failed", failed, len(specs))
	}
	log.Infof("Reports saved to %s", cfg.Output.Dir)
	return nil
}

// runRemote sends every spec to a backtest_server in turn.
func runRemote(ctx context.Context, addr string, specs []backtest.RunSpec, log *logrus.Entry) ([]*backtest.Report, int, error) {
	conn, err := rpc.Dial(addr)
	if err != nil {
		return nil, 0, err
	}
	defer conn.Close()

	cli := rpc.NewClient(conn)
	reports := make([]*backtest.Report, 0, len(specs))
	failed := 0
	for _, spec := range specs {
		r, err := cli.Run(ctx, rpc.NewRunRequest(spec))
		if err != nil {
			log.Errorf("Remote backtest %s failed: %v", spec.Pair, err)
			failed++
			continue
		}
		log.Infof("Remote backtest %s done (run %s)", spec.Pair, r.RunID)
		reports = append(reports, r)
	}
	return reports, failed, nil
}

// watchReports prints the summary of every report published under the
// configured subject prefix.
func watchReports(cfg *config.Config, logger *logrus.Logger) error {
	log := logging.WithComponent(logger, "Watch")
	if cfg.Engine.NATSURL == "" {
		return fmt.Errorf("-watch needs engine.nats_url")
	}
	conn, err := client.Connect(cfg.Engine.NATSURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := client.NewReportSubscriber(conn, logger)
	defer sub.Close()

	subject := cfg.Engine.NATSSubject + ".>"
	err = sub.Subscribe(subject, func(r *backtest.Report) {
		backtest.PrintSummary(os.Stdout, fmt.Sprintf("%s (%s)", r.Pair, r.RunID), r.Summary)
	})
	if err != nil {
		return err
	}
	log.Infof("Watching %s", subject)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

func printBanner() {
	fmt.Println("========================================")
	fmt.Printf("%s v%s\n", appName, appVersion)
	fmt.Println("配对交易回测系统")
	fmt.Println("========================================")
}
