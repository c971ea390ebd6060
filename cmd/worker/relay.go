package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/agency-crm/internal/config"
	"github.com/jmehdipour/agency-crm/internal/db"
	"github.com/jmehdipour/agency-crm/internal/kafka"
	"github.com/jmehdipour/agency-crm/internal/logger"
	"github.com/jmehdipour/agency-crm/internal/metrics"
	"github.com/jmehdipour/agency-crm/internal/repository"
	"github.com/jmehdipour/agency-crm/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRelayCmd(cfgFn func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Publish outbox events to Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cfgFn()
			metrics.MustRegister(prometheus.DefaultRegisterer)

			// 1) DB connection (MySQL)
			dbx, err := db.NewMySQLConnection(cfg.MySQL)
			if err != nil {
				return fmt.Errorf("mysql connect: %w", err)
			}
			defer dbx.Close()

			// 2) kafka producer
			producer := kafka.NewProducer(cfg.Kafka.Brokers)
			defer func() { _ = producer.Close() }()

			breaker := worker.NewBreaker(
				cfg.Relay.Breaker.FailThreshold,
				time.Duration(cfg.Relay.Breaker.OpenForMs)*time.Millisecond,
			)
			r := worker.NewRelay(
				repository.NewOutboxRepository(dbx),
				producer,
				breaker,
				cfg.Relay.BatchSize,
				cfg.Relay.PollInterval,
			)

			// 3) graceful shutdown
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Log.Info("relay started",
				zap.Strings("brokers", cfg.Kafka.Brokers),
				zap.Int("batch_size", cfg.Relay.BatchSize),
				zap.Duration("poll_interval", cfg.Relay.PollInterval),
			)
			return r.Run(ctx)
		},
	}
}
