package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

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

func newProjectorCmd(cfgFn func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "projector",
		Short: "Project client bill events from Kafka into ClickHouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cfgFn()
			if cfg.ClickHouse.DSN == "" {
				return fmt.Errorf("clickhouse.dsn is required for the projector")
			}
			metrics.MustRegister(prometheus.DefaultRegisterer)

			// 1) ClickHouse
			chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
			if err != nil {
				return fmt.Errorf("clickhouse connect: %w", err)
			}
			defer chDB.Close()

			bills := repository.NewCHBillEventsRepository(chDB)
			if err := bills.EnsureSchema(cmd.Context()); err != nil {
				return err
			}

			// 2) kafka consumer
			consumer := kafka.NewConsumerFromConfig(kafka.ConfigFrom(cfg.Kafka, cfg.Kafka.ClientsTopic))
			defer consumer.Close()

			p := worker.NewProjector(consumer, bills, cfg.Projector.BatchSize, cfg.Projector.BatchWait)

			// 3) graceful shutdown
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Log.Info("projector started",
				zap.String("topic", cfg.Kafka.ClientsTopic),
				zap.String("group", cfg.Kafka.GroupID),
				zap.Int("batch_size", cfg.Projector.BatchSize),
				zap.Duration("batch_wait", cfg.Projector.BatchWait),
			)
			return p.Run(ctx)
		},
	}
}
