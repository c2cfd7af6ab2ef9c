package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dexswing/internal/config"
	"dexswing/internal/engine"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "no .env file loaded: %v\n", err)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runEngine(os.Args[2:])
	case "backfill":
		runBackfillCmd(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("usage: dexswing <run|backfill> [flags]")
	fmt.Println("  run --config configs/config.yaml")
	fmt.Println("  backfill --config configs/config.yaml --symbol SOL --address <addr> [--days 7] [--force]")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		execPath, _ := os.Executable()
		path = filepath.Join(filepath.Dir(execPath), "configs", "config.yaml")
	}
	return config.NewConfigLoader().LoadConfig(path)
}

func setupLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg.OutputPaths = []string{"stdout"}
	return cfg.Build()
}

func runEngine(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.yaml")
	fs.Parse(args)

	logger, err := setupLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := engine.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize engine", zap.Error(err))
	}

	if err := e.Start(); err != nil {
		logger.Fatal("failed to start engine", zap.Error(err))
	}

	waitForShutdown(logger)

	if err := e.Shutdown(); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
		os.Exit(1)
	}
}

func runBackfillCmd(args []string) {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.yaml")
	symbol := fs.String("symbol", "", "token symbol")
	address := fs.String("address", "", "token contract address")
	days := fs.Int("days", 0, "days of history to fetch (0 = config default)")
	force := fs.Bool("force", false, "bypass the overlap-skip check")
	fs.Parse(args)

	if *symbol == "" || *address == "" {
		fmt.Fprintln(os.Stderr, "backfill requires --symbol and --address")
		os.Exit(1)
	}

	logger, err := setupLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if *days == 0 {
		*days = cfg.Backfill.Days
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := engine.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize engine", zap.Error(err))
	}
	defer e.Shutdown()

	stats, err := e.RunBackfill(ctx, *symbol, *address, *days, *force)
	if err != nil {
		logger.Fatal("backfill failed", zap.Error(err))
	}

	logger.Info("backfill complete",
		zap.String("symbol", *symbol),
		zap.Int("fetched_points", stats.FetchedPoints),
		zap.Int("converted_candles", stats.ConvertedCandles),
		zap.Int("skipped_existing", stats.SkippedExisting),
		zap.Int("stored_new", stats.StoredNew),
		zap.Int("validation_failures", stats.ValidationFailures),
	)
}

func waitForShutdown(logger *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))
}
