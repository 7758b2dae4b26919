package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emittr/connectfour/internal/analytics"
	"emittr/connectfour/internal/config"
	"emittr/connectfour/internal/logging"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		logging.New("info").Fatalw("failed to load configuration", "error", err)
	}
	log := logging.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	reader := analytics.NewReader(brokers, cfg.KafkaTopic, cfg.KafkaGroup)
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := analytics.NewMetrics()
	go func() {
		ticker := time.NewTicker(cfg.StatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.Log(log)
			}
		}
	}()

	log.Infow("analytics consumer listening", "brokers", brokers, "topic", cfg.KafkaTopic, "group", cfg.KafkaGroup)
	if err := analytics.Consume(ctx, reader, metrics, log); err != nil {
		log.Errorw("consumer stopped", "error", err)
	}
	metrics.Log(log)
}
