package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"bistbt/internal/backtest"
	"bistbt/internal/config"
	"bistbt/internal/histfeed"
	"bistbt/internal/lobcsv"
	"bistbt/internal/resultio"
	"bistbt/internal/strategy"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	cfg, err := config.Parse(os.Args[0], os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	reader, err := histfeed.Open(cfg.Filepath, log.Logger)
	if err != nil {
		return err
	}
	defer reader.Close()

	registry := strategy.NewRegistry()
	base := backtest.NewBaseAgent(cfg.OrderCost, cfg.InitialMoney, cfg.InitialStock)
	agent, err := registry.Build(cfg.Strategy, base, cfg.Options)
	if err != nil {
		return err
	}

	asset := filepath.Base(cfg.Filepath)
	bt := backtest.New(asset, reader, agent, cfg.Latency, log.Logger)

	log.Info().
		Str("strategy", cfg.Strategy).
		Str("filepath", cfg.Filepath).
		Dur("latency", cfg.Latency).
		Msg("starting backtest")

	if err := bt.Run(); err != nil {
		return err
	}

	if cfg.Strategy == "dummy" {
		return exportLOB(cfg, bt)
	}
	return exportResult(cfg, agent)
}

func exportLOB(cfg config.Config, bt *backtest.Backtest) error {
	outPath := filepath.Join(filepath.Dir(cfg.Filepath), "limit-order-book.csv")
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := lobcsv.NewWriter(f)
	if err != nil {
		return err
	}
	for _, snap := range bt.Book().Snapshots() {
		if err := w.WriteSnapshot(snap); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	log.Info().Str("path", outPath).Msg("exported limit order book")
	return nil
}

func exportResult(cfg config.Config, agent backtest.Agent) error {
	result := resultio.FromAgent(cfg.Strategy, agent)
	path, err := resultio.WriteGob(cfg.ResultDir, result, time.Now())
	if err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("wrote backtest result")
	return nil
}
