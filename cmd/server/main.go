package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"emittr/connectfour/internal/analytics"
	"emittr/connectfour/internal/config"
	"emittr/connectfour/internal/logging"
	"emittr/connectfour/internal/server"
	"emittr/connectfour/internal/storage"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		logging.New("info").Fatalw("failed to load configuration", "error", err)
	}
	log := logging.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel, log)

	var store storage.Store
	if cfg.PostgresURL != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.PostgresURL, log)
		if err != nil {
			log.Warnw("postgres disabled", "error", err)
		} else {
			defer pg.Close()
			if err := pg.EnsureTables(ctx); err != nil {
				log.Warnw("postgres ensure tables failed", "error", err)
			}
			store = pg
		}
	}

	var snapshots storage.SnapshotCache
	if cfg.RedisURL != "" {
		rs, err := storage.NewRedisSnapshots(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.SnapshotTTL, log)
		if err != nil {
			log.Warnw("redis snapshots disabled", "error", err)
		} else {
			defer rs.Close()
			snapshots = rs
		}
	}

	producer := analytics.NewProducer(cfg.Brokers(), cfg.KafkaTopic, log)
	defer producer.Close()

	srv := server.New(server.Config{
		Columns:       cfg.BoardWidth,
		Rows:          cfg.BoardHeight,
		IdleTimeout:   cfg.IdleTimeout,
		SweepInterval: cfg.SweepInterval,
		Store:         store,
		Snapshots:     snapshots,
		Analytics:     producer,
		Logger:        log,
	})
	if err := srv.Run(ctx, cfg.Addr); err != nil {
		log.Errorw("server stopped", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func handleShutdown(cancel context.CancelFunc, log *zap.SugaredLogger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("received shutdown signal")
	cancel()
}
