package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/agency-crm/internal/model"
	"github.com/jmoiron/sqlx"
)

type AgenciesRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, a model.Agency) error
	GetByID(ctx context.Context, tx *sqlx.Tx, id string) (*model.Agency, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]model.Agency, error)
	List(ctx context.Context) ([]model.Agency, error)
	Update(ctx context.Context, tx *sqlx.Tx, a model.Agency) error
	Count(ctx context.Context, tx *sqlx.Tx) (int64, error)
	ClaimBootstrap(ctx context.Context, tx *sqlx.Tx, at time.Time) (bool, error)
}

type AgenciesRepositoryImpl struct {
	db *sqlx.DB
}

func NewAgenciesRepository(db *sqlx.DB) *AgenciesRepositoryImpl {
	return &AgenciesRepositoryImpl{db: db}
}

var _ AgenciesRepository = (*AgenciesRepositoryImpl)(nil)

const agencyColumns = `id, name, address1, address2, state, city, phone_number, created_at, updated_at`

func (r *AgenciesRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, a model.Agency) error {
	const q = `
		INSERT INTO agencies
		    (id, name, address1, address2, state, city, phone_number, created_at, updated_at)
		VALUES
		    (:id, :name, :address1, :address2, :state, :city, :phone_number, :created_at, :updated_at)
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, q, a); err != nil {
			return fmt.Errorf("insert agency: %w", err)
		}
		return nil
	})
}

// GetByID returns (nil, nil) when no agency has the given id.
func (r *AgenciesRepositoryImpl) GetByID(ctx context.Context, tx *sqlx.Tx, id string) (*model.Agency, error) {
	var a model.Agency
	err := sqlx.GetContext(ctx, ext(r.db, tx), &a,
		`SELECT `+agencyColumns+` FROM agencies WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agency: %w", err)
	}
	return &a, nil
}

// GetByIDs loads the agencies for ids; ids with no agency are simply absent.
func (r *AgenciesRepositoryImpl) GetByIDs(ctx context.Context, ids []string) (map[string]model.Agency, error) {
	out := make(map[string]model.Agency, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT `+agencyColumns+` FROM agencies WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}

	var rows []model.Agency
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("get agencies: %w", err)
	}
	for _, a := range rows {
		out[a.ID] = a
	}
	return out, nil
}

func (r *AgenciesRepositoryImpl) List(ctx context.Context) ([]model.Agency, error) {
	rows := make([]model.Agency, 0)
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+agencyColumns+` FROM agencies ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list agencies: %w", err)
	}
	return rows, nil
}

// Update overwrites every mutable column of the agency row.
func (r *AgenciesRepositoryImpl) Update(ctx context.Context, tx *sqlx.Tx, a model.Agency) error {
	const q = `
		UPDATE agencies
		   SET name = :name, address1 = :address1, address2 = :address2,
		       state = :state, city = :city, phone_number = :phone_number,
		       updated_at = :updated_at
		 WHERE id = :id
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, q, a); err != nil {
			return fmt.Errorf("update agency: %w", err)
		}
		return nil
	})
}

func (r *AgenciesRepositoryImpl) Count(ctx context.Context, tx *sqlx.Tx) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, ext(r.db, tx), &n, `SELECT COUNT(*) FROM agencies`); err != nil {
		return 0, fmt.Errorf("count agencies: %w", err)
	}
	return n, nil
}

// ClaimBootstrap takes the single-row bootstrap claim. It returns false when
// the claim is already held. A concurrent claimer racing past the read hits
// the primary key and gets a duplicate-key error from the insert.
func (r *AgenciesRepositoryImpl) ClaimBootstrap(ctx context.Context, tx *sqlx.Tx, at time.Time) (bool, error) {
	claimed := false
	err := withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		var n int64
		if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM bootstrap_claim`); err != nil {
			return fmt.Errorf("read bootstrap claim: %w", err)
		}
		if n > 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bootstrap_claim (id, claimed_at) VALUES (1, ?)`, at); err != nil {
			return fmt.Errorf("claim bootstrap: %w", err)
		}
		claimed = true
		return nil
	})
	return claimed, err
}
