package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmehdipour/agency-crm/internal/kafka"
	"github.com/jmehdipour/agency-crm/internal/logger"
	"github.com/jmehdipour/agency-crm/internal/metrics"
	"github.com/jmehdipour/agency-crm/internal/model"
	"go.uber.org/zap"
)

// Source is the consumer side of the clients topic.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// Sink stores bill events.
type Sink interface {
	InsertBatch(ctx context.Context, events []model.BillEvent) error
}

// Projector turns client change events into ClickHouse bill events:
// - fetches envelopes from Kafka,
// - batches them by size or time,
// - inserts the batch, then commits the offsets (at-least-once).
type Projector struct {
	Source Source
	Sink   Sink

	BatchSize int           // max buffered messages per flush
	BatchWait time.Duration // max time to wait before flush
}

func NewProjector(src Source, sink Sink, batchSize int, batchWait time.Duration) *Projector {
	return &Projector{Source: src, Sink: sink, BatchSize: batchSize, BatchWait: batchWait}
}

// Run blocks until ctx is cancelled. An unflushed batch is left uncommitted
// and will be redelivered.
func (p *Projector) Run(ctx context.Context) error {
	if p.BatchSize <= 0 {
		p.BatchSize = 200
	}
	if p.BatchWait <= 0 {
		p.BatchWait = 300 * time.Millisecond
	}

	msgCh := make(chan kafka.Message, p.BatchSize*2)
	go p.fetch(ctx, msgCh)

	timer := time.NewTimer(p.BatchWait)
	timer.Stop()
	defer timer.Stop()

	var batch []kafka.Message
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgCh:
			if !ok {
				return nil
			}
			if len(batch) == 0 {
				timer.Reset(p.BatchWait)
			}
			batch = append(batch, m)
			if len(batch) >= p.BatchSize {
				timer.Stop()
				p.flush(ctx, batch)
				batch = nil
			}
		case <-timer.C:
			p.flush(ctx, batch)
			batch = nil
		}
	}
}

func (p *Projector) fetch(ctx context.Context, out chan<- kafka.Message) {
	defer close(out)
	for {
		m, err := p.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Warn("projector: kafka fetch failed", zap.Error(err))
			if !sleep(ctx, 200*time.Millisecond) {
				return
			}
			continue
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Projector) flush(ctx context.Context, msgs []kafka.Message) {
	if len(msgs) == 0 {
		return
	}

	events := make([]model.BillEvent, 0, len(msgs))
	for _, m := range msgs {
		ev, ok, err := billEventFrom(m.Value)
		if err != nil {
			// poison: committed with the batch, never retried
			logger.Log.Warn("projector: skipping undecodable message",
				zap.Int64("offset", m.Offset), zap.Int("partition", m.Partition), zap.Error(err))
			continue
		}
		if ok {
			events = append(events, ev)
		}
	}

	backoff := 200 * time.Millisecond
	for {
		err := p.Sink.InsertBatch(ctx, events)
		if err == nil {
			break
		}
		logger.Log.Error("projector: insert batch failed", zap.Int("events", len(events)), zap.Error(err))
		if !sleep(ctx, backoff) {
			return
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
	metrics.BillEventsProjected.Add(float64(len(events)))

	if err := p.Source.Commit(ctx, msgs...); err != nil {
		logger.Log.Warn("projector: commit failed", zap.Error(err))
	}
}

// billEventFrom decodes an envelope; ok is false for events that carry no
// client snapshot.
func billEventFrom(raw []byte) (model.BillEvent, bool, error) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.BillEvent{}, false, err
	}
	if !env.Type.IsClientEvent() {
		return model.BillEvent{}, false, nil
	}
	if env.Client == nil || env.EventID == "" {
		return model.BillEvent{}, false, fmt.Errorf("%s envelope without client snapshot", env.Type)
	}

	c := env.Client
	return model.BillEvent{
		EventID:    env.EventID,
		EventType:  env.Type.String(),
		AgencyID:   c.AgencyID,
		ClientID:   c.ID,
		ClientName: c.Name,
		TotalBill:  c.TotalBill,
		OccurredAt: env.OccurredAt.UTC(),
	}, true, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
