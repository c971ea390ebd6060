package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/agency-crm/internal/model"
	"github.com/jmoiron/sqlx"
)

// BillEventsRepository stores client bill snapshots in ClickHouse.
type BillEventsRepository interface {
	EnsureSchema(ctx context.Context) error
	InsertBatch(ctx context.Context, events []model.BillEvent) error
	ListByAgency(ctx context.Context, agencyID, clientID string, limit, offset int) ([]model.BillEvent, error)
}

type chBillEventsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHBillEventsRepository(ch *sqlx.DB) BillEventsRepository {
	return &chBillEventsRepository{ch: ch}
}

// ReplacingMergeTree keyed by event_id collapses re-delivered Kafka messages.
const billEventsDDL = `
	CREATE TABLE IF NOT EXISTS client_bill_events (
		event_id    String,
		event_type  LowCardinality(String),
		agency_id   String,
		client_id   String,
		client_name String,
		total_bill  Decimal(18, 2),
		occurred_at DateTime64(6, 'UTC')
	)
	ENGINE = ReplacingMergeTree
	ORDER BY (agency_id, client_id, occurred_at, event_id)
`

func (r *chBillEventsRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.ch.ExecContext(ctx, billEventsDDL); err != nil {
		return fmt.Errorf("create client_bill_events: %w", err)
	}
	return nil
}

// InsertBatch sends all events as one ClickHouse block.
func (r *chBillEventsRepository) InsertBatch(ctx context.Context, events []model.BillEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO client_bill_events
		    (event_id, event_type, agency_id, client_id, client_name, total_bill, occurred_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare bill events batch: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx,
			e.EventID, e.EventType, e.AgencyID, e.ClientID, e.ClientName, e.TotalBill, e.OccurredAt,
		); err != nil {
			return fmt.Errorf("append bill event %s: %w", e.EventID, err)
		}
	}

	return tx.Commit()
}

func (r *chBillEventsRepository) ListByAgency(ctx context.Context, agencyID, clientID string, limit, offset int) ([]model.BillEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	// total_bill travels as text so it scans into decimal.Decimal
	q := `
		SELECT event_id, event_type, agency_id, client_id, client_name,
		       toString(total_bill) AS total_bill, occurred_at
		FROM client_bill_events FINAL
		WHERE agency_id = ?
	`
	args := []any{agencyID}

	if clientID != "" {
		q += " AND client_id = ?"
		args = append(args, clientID)
	}

	q += " ORDER BY occurred_at DESC, event_id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows := make([]model.BillEvent, 0)
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
