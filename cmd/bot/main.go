// Package main is the entry point for the breakout trading bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"breakout-bot/internal/alerting"
	"breakout-bot/internal/allocation"
	"breakout-bot/internal/cache"
	"breakout-bot/internal/config"
	"breakout-bot/internal/engine"
	"breakout-bot/internal/exchange"
	"breakout-bot/internal/execution"
	"breakout-bot/internal/metrics"
	"breakout-bot/internal/strategy"
	"breakout-bot/internal/types"
)

// Version information (set by build flags).
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	case "run":
		cmdRun(os.Args[2:])
	case "validate":
		cmdValidate(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Breakout Bot - Volatility Breakout Strategy Execution Engine

Usage:
  breakout-bot <command> [options]

Commands:
  run        Start the trading engine
  validate   Validate configuration file
  version    Show version information
  help       Show this help message

Examples:
  breakout-bot run --config config.yaml
  breakout-bot validate --config config.yaml

Use "breakout-bot <command> --help" for more information about a command.`)
}

func cmdVersion() {
	fmt.Printf("breakout-bot version %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Git commit: %s\n", GitCommit)
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration is valid!")
	fmt.Printf("  Instruments: %d\n", len(cfg.Instruments))
	fmt.Printf("  K factor: %.2f\n", cfg.Strategy.KFactor)
	fmt.Printf("  Exit condition: %s\n", cfg.ExitCondition().Name())
	fmt.Printf("  Margin reserve: %.1f%%\n", cfg.Allocation.MarginReserveRatio*100)
	fmt.Printf("  Cache: %s\n", cfg.Cache.Type)
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	verbose := fs.Bool("verbose", false, "Verbose output")
	fs.Parse(args)

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.SetBuildInfo(Version, GitCommit)

	eng, store, err := buildEngine(cfg, logger)
	if err != nil {
		slog.Error("failed to build engine", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(metrics.ServerConfig{
			Port:        cfg.Metrics.Port,
			MetricsPath: cfg.Metrics.Path,
		}, logger)
		if err := metricsServer.Start(); err != nil {
			slog.Error("failed to start metrics server", "err", err)
			os.Exit(1)
		}
	}

	slog.Info("breakout-bot starting",
		"version", Version,
		"instruments", len(cfg.Instruments),
		"tick_interval", cfg.TickInterval(),
		"cache", cfg.Cache.Type,
	)

	runLoop(ctx, eng, cfg.TickInterval(), logger)

	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "err", err)
		}
	}

	slog.Info("breakout-bot shutdown complete")
}

// buildEngine wires all components from config. The returned store must
// be closed by the caller.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, cache.Store, error) {
	registry := exchange.NewRegistry()
	for _, ex := range cfg.Exchanges {
		paperCfg := exchange.DefaultPaperConfig()
		if ex.Paper.FillRatio > 0 {
			paperCfg.FillRatio = decimal.NewFromFloat(ex.Paper.FillRatio)
		}
		paperCfg.FillAfterPolls = ex.Paper.FillAfterPolls
		paperCfg.Currency = cfg.Engine.Currency

		paper := exchange.NewPaper(ex.Name, paperCfg)
		if ex.Paper.InitialCash > 0 {
			paper.SetCash(cfg.Engine.Currency, decimal.NewFromFloat(ex.Paper.InitialCash))
		}

		var adapter exchange.Adapter = paper
		if ex.RateLimitRPS > 0 {
			adapter = exchange.NewRateLimited(adapter, ex.RateLimitRPS, ex.Burst)
		}
		registry.Register(adapter)
	}

	var store cache.Store
	switch cfg.Cache.Type {
	case "sqlite":
		s, err := cache.NewSQLiteStore(cfg.Cache.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open cache store: %w", err)
		}
		store = s
	default:
		store = cache.NewMemoryStore()
	}

	cacheMgr := cache.NewManager(cfg.ToCacheConfig(), store, exchange.NewRangeLookup(registry), logger)
	allocMgr := allocation.NewManager(cfg.ToAllocationConfig(), logger)
	executor := execution.NewExecutor(cfg.ToExecutionConfig(), registry, cfg.BackoffPolicy(), logger)
	strat := strategy.New(cfg.ExitCondition())

	var alerter alerting.Alerter
	if cfg.Alerting.Enabled {
		alerter = alerting.NewConsoleAlerter(logger)
	}

	eng := engine.NewEngine(
		cfg.ToEngineConfig(),
		cfg.InstrumentList(),
		registry,
		cacheMgr,
		allocMgr,
		executor,
		strat,
		engine.SystemClock(),
		alerter,
		logger,
	)
	return eng, store, nil
}

// runLoop ticks every instrument on the configured interval until the
// context is cancelled. Instruments within a tick run concurrently;
// per-instrument state stays consistent through the cache's versioned
// commits.
func runLoop(ctx context.Context, eng *engine.Engine, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick := func() {
		var wg sync.WaitGroup
		for _, inst := range eng.Instruments() {
			wg.Add(1)
			go func(inst types.Instrument) {
				defer wg.Done()
				result, err := eng.RunCycle(ctx, inst, time.Time{})
				if err != nil {
					logger.Error("cycle failed",
						"instrument", inst.Key(),
						"err", err,
					)
					return
				}
				logger.Debug("cycle complete",
					"instrument", inst.Key(),
					"action", result.Action,
					"status", result.Status,
					"reason", result.Reason,
				)
			}(inst)
		}
		wg.Wait()
	}

	tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}
