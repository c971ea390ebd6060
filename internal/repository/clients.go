package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmehdipour/agency-crm/internal/model"
	"github.com/jmoiron/sqlx"
)

type ClientsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, c model.Client) error
	GetByID(ctx context.Context, tx *sqlx.Tx, id string) (*model.Client, error)
	List(ctx context.Context, f model.ClientFilter) ([]model.Client, error)
	Update(ctx context.Context, tx *sqlx.Tx, c model.Client) error
}

type ClientsRepositoryImpl struct {
	db *sqlx.DB
}

func NewClientsRepository(db *sqlx.DB) *ClientsRepositoryImpl {
	return &ClientsRepositoryImpl{db: db}
}

var _ ClientsRepository = (*ClientsRepositoryImpl)(nil)

const clientColumns = `id, agency_id, name, email, phone_number, total_bill, created_at, updated_at`

func (r *ClientsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, c model.Client) error {
	const q = `
		INSERT INTO clients
		    (id, agency_id, name, email, phone_number, total_bill, created_at, updated_at)
		VALUES
		    (:id, :agency_id, :name, :email, :phone_number, :total_bill, :created_at, :updated_at)
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, q, c); err != nil {
			return fmt.Errorf("insert client: %w", err)
		}
		return nil
	})
}

// GetByID returns (nil, nil) when no client has the given id.
func (r *ClientsRepositoryImpl) GetByID(ctx context.Context, tx *sqlx.Tx, id string) (*model.Client, error) {
	var c model.Client
	err := sqlx.GetContext(ctx, ext(r.db, tx), &c,
		`SELECT `+clientColumns+` FROM clients WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}

// List returns matching clients in id (creation) order. The result is never
// nil, so an empty match encodes as [].
func (r *ClientsRepositoryImpl) List(ctx context.Context, f model.ClientFilter) ([]model.Client, error) {
	q := `SELECT ` + clientColumns + ` FROM clients`
	var args []any

	if f.AgencyID != "" {
		q += ` WHERE agency_id = ?`
		args = append(args, f.AgencyID)
	}
	q += ` ORDER BY id`

	rows := make([]model.Client, 0)
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return rows, nil
}

// Update overwrites every mutable column; agency_id is not touched.
func (r *ClientsRepositoryImpl) Update(ctx context.Context, tx *sqlx.Tx, c model.Client) error {
	const q = `
		UPDATE clients
		   SET name = :name, email = :email, phone_number = :phone_number,
		       total_bill = :total_bill, updated_at = :updated_at
		 WHERE id = :id
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, q, c); err != nil {
			return fmt.Errorf("update client: %w", err)
		}
		return nil
	})
}
