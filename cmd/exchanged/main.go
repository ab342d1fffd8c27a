package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"bourse/internal/api"
	"bourse/internal/config"
	"bourse/internal/engine"
	"bourse/internal/persistence"
	"bourse/internal/registry"
	"bourse/internal/server"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (optional)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open store")
	}
	defer store.Close()

	snapshot, err := store.Recover(cfg.RingCapacity)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to recover durable state")
	}
	log.Info().
		Int("brokers", len(snapshot.Brokers)).
		Int("open_orders", len(snapshot.OpenOrders)).
		Int("trades", len(snapshot.Trades)).
		Msg("recovered durable state")

	reg := registry.New()
	for _, b := range snapshot.Brokers {
		reg.Register(b)
	}

	queue := persistence.NewQueue(4096)
	eng := engine.New(reg, queue, store, cfg.RingCapacity)
	defer eng.Close()
	eng.LoadRecovered(snapshot)

	flusher := persistence.NewFlusher(queue, store, cfg.FlushInterval, cfg.BatchSize, cfg.WebhookTimeout)

	a := api.New(eng, reg, store, cfg.DefaultDepth, cfg.DefaultWindow)
	srv := server.New(cfg.ListenAddress, a)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	t, ctx := tomb.WithContext(ctx)
	t.Go(func() error {
		return flusher.Run(t)
	})
	t.Go(func() error {
		return eng.RunExpirySweep(t, engine.DefaultSweepInterval)
	})
	t.Go(func() error {
		return srv.Run(ctx)
	})

	<-ctx.Done()
	log.Info().Msg("shutting down")
	srv.Shutdown()
	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}
