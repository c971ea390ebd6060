package worker

import (
	"context"
	"time"

	"github.com/jmehdipour/agency-crm/internal/kafka"
	"github.com/jmehdipour/agency-crm/internal/logger"
	"github.com/jmehdipour/agency-crm/internal/metrics"
	"github.com/jmehdipour/agency-crm/internal/repository"
	"go.uber.org/zap"
)

// Publisher hands messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// Relay moves committed outbox rows to Kafka:
// - polls unpublished rows in id order,
// - publishes them keyed by aggregate id,
// - marks them published, or bumps attempts and trips the breaker on failure.
type Relay struct {
	Outbox    repository.OutboxRepository
	Publisher Publisher
	Breaker   *Breaker

	BatchSize    int
	PollInterval time.Duration
}

func NewRelay(outbox repository.OutboxRepository, pub Publisher, breaker *Breaker, batchSize int, poll time.Duration) *Relay {
	return &Relay{
		Outbox:       outbox,
		Publisher:    pub,
		Breaker:      breaker,
		BatchSize:    batchSize,
		PollInterval: poll,
	}
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// another poll.
func (r *Relay) Run(ctx context.Context) error {
	if r.BatchSize <= 0 {
		r.BatchSize = 100
	}
	if r.PollInterval <= 0 {
		r.PollInterval = 500 * time.Millisecond
	}
	if r.Breaker == nil {
		r.Breaker = NewBreaker(3, 15*time.Second)
	}

	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Log.Warn("relay: publish failed", zap.Error(err))
		}
		if err == nil && n == r.BatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes at most one batch and returns how many rows were
// marked published.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	if !r.Breaker.Ready() {
		return 0, nil
	}

	events, err := r.Outbox.FetchPending(ctx, r.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	if !r.Breaker.TryAcquire() {
		return 0, nil
	}

	ids := make([]int64, 0, len(events))
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
		msgs = append(msgs, kafka.Message{
			Topic: e.Topic,
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: []kafka.Header{
				{Key: "aggregate", Value: []byte(e.Aggregate)},
			},
		})
	}

	if err := r.Publisher.Publish(ctx, msgs...); err != nil {
		r.Breaker.OnFailure()
		metrics.OutboxPublished.WithLabelValues("error").Add(float64(len(msgs)))
		if bumpErr := r.Outbox.IncrementAttempts(ctx, ids); bumpErr != nil {
			logger.Log.Warn("relay: bump attempts failed", zap.Error(bumpErr))
		}
		return 0, err
	}
	r.Breaker.OnSuccess()
	metrics.OutboxPublished.WithLabelValues("ok").Add(float64(len(msgs)))

	// a crash here re-publishes the batch; consumers dedupe on event id
	if err := r.Outbox.MarkPublished(ctx, ids, time.Now().UTC()); err != nil {
		return 0, err
	}

	logger.Log.Debug("relay: published", zap.Int("count", len(ids)))
	return len(ids), nil
}
