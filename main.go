package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var (
	configPath = flag.String("c", "pixelcraft.toml", "config file")
	dbpath     = flag.String("db", "", "history db file name, overrides the config")
)

func main() {
	flag.Parse()

	// .env is optional
	godotenv.Load()

	cfg := DefaultConfig()
	if _, err := os.Stat(*configPath); err == nil {
		cfg, err = LoadConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("config")
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Fatal().Err(err).Msg("config")
	}
	if *dbpath != "" {
		cfg.DB = *dbpath
	}

	logger, closer := InitLogger(cfg)
	defer closer.Close()

	var store *Store
	if cfg.DB != "" {
		var err error
		store, err = NewStore(cfg.DB)
		if err != nil {
			logger.Fatal().Err(err).Str("db", cfg.DB).Msg("open store")
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("server", cfg.Server).Bool("simulation", cfg.Simulation).
		Stringer("view", viewRect(cfg.View, cfg.RegionSize)).Msg("starting")
	if err := NewRunner(cfg, store, logger).Run(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}
