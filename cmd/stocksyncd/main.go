package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jackchouchani/inventoryApp-sub001/internal/app"
	"github.com/jackchouchani/inventoryApp-sub001/internal/config"
	"github.com/jackchouchani/inventoryApp-sub001/internal/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("STOCKSYNC_CONFIG"), "path to YAML config file")
	addr := flag.String("addr", "", "override http.addr")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	l := logger.Setup(logger.Options{Service: "stocksyncd", Level: cfg.LogLevel, Dev: cfg.IsDev()})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, l)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start engine")
	}
	defer a.Close()

	log.Info().
		Str("store", cfg.Store.Path).
		Str("remote", cfg.Remote.Kind).
		Int("concurrency", cfg.Sync.Concurrency).
		Bool("auto_apply_decisions", cfg.Sync.AutoApplyDecisions).
		Msg("stocksyncd starting")

	if err := a.Serve(ctx, cfg.HTTP.Addr, 30*time.Second); err != nil {
		log.Error().Err(err).Msg("stocksyncd stopped with error")
		a.Close()
		os.Exit(1)
	}

	log.Info().Msg("stocksyncd stopped")
}
