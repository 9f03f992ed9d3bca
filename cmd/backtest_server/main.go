package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yourusername/quantlink-statarb/pkg/backtest"
	"github.com/yourusername/quantlink-statarb/pkg/config"
	"github.com/yourusername/quantlink-statarb/pkg/logging"
	"github.com/yourusername/quantlink-statarb/pkg/metrics"
	"github.com/yourusername/quantlink-statarb/pkg/rpc"
)

var (
	configFile = flag.String("config", "./config/backtest.yaml", "Configuration file path")
	grpcAddr   = flag.String("grpc", "", "gRPC listen address (overrides engine.grpc_addr)")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.NewLogger(cfg.Log, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.WithComponent(logger, "Main")

	addr := cfg.Engine.GRPCAddr
	if *grpcAddr != "" {
		addr = *grpcAddr
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	if cfg.Engine.MetricsAddr != "" {
		srv, err := metrics.Serve(cfg.Engine.MetricsAddr, reg, logger)
		if err != nil {
			log.Errorf("Metrics server: %v", err)
			os.Exit(1)
		}
		defer srv.Close()
		log.Infof("Metrics on %s/metrics", cfg.Engine.MetricsAddr)
	}

	server := rpc.NewServer(backtest.NewRunner(logger, collector), logger, collector)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe(addr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("Received %v, shutting down", sig)
		server.Stop()
	case err := <-errCh:
		log.Errorf("Server stopped: %v", err)
		os.Exit(1)
	}
}
