package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quantflow/backtest"
	"quantflow/config"
	"quantflow/feature"
	"quantflow/live"
	"quantflow/logger"
	"quantflow/processor"
	"quantflow/reader/binance"
	"quantflow/reader/hyperliquid"
	"quantflow/signal"
	"quantflow/strategy"
	"quantflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	mode := flag.String("mode", "live", "Run mode: download | features | backtest | live")
	coin := flag.String("coin", "", "Coin override (defaults to live.coin)")
	dateStr := flag.String("date", time.Now().UTC().Format("20060102"), "Target date (yyyymmdd) for download/features/backtest")
	endStr := flag.String("end", "", "End date (yyyymmdd) for download ranges")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if *coin == "" {
		*coin = cfg.Live.Coin
	}

	log.WithFields(logger.Fields{
		"service": cfg.Quantflow.Name,
		"version": cfg.Quantflow.Version,
		"mode":    *mode,
		"coin":    *coin,
	}).Info("starting quantflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Logging.Metrics {
		logger.InitCloudWatch(cfg.Archive.Region, cfg.Quantflow.Name)
		logger.StartReport(ctx, log, 30*time.Second)
	}

	switch *mode {
	case "download":
		err = runDownload(ctx, cfg, *coin, *dateStr, *endStr)
	case "features":
		err = runFeatures(ctx, cfg, *coin, *dateStr)
	case "backtest":
		err = runBacktest(cfg, *coin, *dateStr)
	case "live":
		err = runLive(ctx, cancel, cfg)
	default:
		err = fmt.Errorf("unknown mode '%s'", *mode)
	}
	if err != nil {
		log.WithError(err).Error("run failed")
		os.Exit(1)
	}

	log.Info("quantflow stopped")
}

func runDownload(ctx context.Context, cfg *config.Config, coin, dateStr, endStr string) error {
	start, err := time.Parse("20060102", dateStr)
	if err != nil {
		return fmt.Errorf("invalid date '%s': %w", dateStr, err)
	}
	end := start
	if endStr != "" {
		end, err = time.Parse("20060102", endStr)
		if err != nil {
			return fmt.Errorf("invalid end date '%s': %w", endStr, err)
		}
	}

	dl, err := hyperliquid.NewArchiveDownloader(cfg)
	if err != nil {
		return err
	}
	return dl.DownloadRange(ctx, coin, start, end)
}

func runFeatures(ctx context.Context, cfg *config.Config, coin, dateStr string) error {
	log := logger.GetLogger()

	snaps, err := processor.NewProcessor(cfg.Data.RawDir).LoadDay(coin, dateStr)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return fmt.Errorf("no snapshots for %s on %s", coin, dateStr)
	}

	engine := feature.NewEngine(cfg.Feature, log)
	rows := engine.Derive(snaps, feature.Train)

	fw, err := writer.NewFeatureWriter(cfg)
	if err != nil {
		return err
	}
	path, err := fw.WriteFeatures(ctx, coin, dateStr, rows)
	if err != nil {
		return err
	}

	log.WithComponent("main").WithFields(logger.Fields{
		"snapshots": len(snaps),
		"rows":      len(rows),
		"path":      path,
	}).Info("feature derivation complete")
	return nil
}

func runBacktest(cfg *config.Config, coin, dateStr string) error {
	_, err := backtest.NewRunner(cfg).Run(coin, dateStr)
	return err
}

func runLive(ctx context.Context, cancel context.CancelFunc, cfg *config.Config) error {
	log := logger.GetLogger()

	source, closeSource, err := newSignalSource(cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	var book live.BookSource
	switch cfg.Live.Feed {
	case "binance":
		book = binance.NewWSReader(cfg)
	default:
		book = hyperliquid.NewWSReader(cfg)
	}

	adapter := live.NewAdapter(
		feature.NewEngine(cfg.Feature, log),
		source,
		strategy.NewPolicy(cfg.Strategy),
		cfg.Live.Buffer,
	)

	engine := live.NewEngine(cfg, book, adapter)
	if err := engine.Start(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	cancel()
	engine.Stop()
	return nil
}

func newSignalSource(cfg *config.Config) (signal.Source, func(), error) {
	bundlePath, err := signal.LatestBundle(cfg.Data.ModelsDir)
	if err != nil {
		return nil, nil, err
	}
	bundle, err := signal.LoadBundle(bundlePath)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Signal.Backend {
	case "onnx":
		src, err := signal.NewONNX(cfg.Signal.ONNXModel, cfg.Signal.ONNXLibrary, bundle)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	default:
		return signal.NewLogistic(bundle), func() {}, nil
	}
}
