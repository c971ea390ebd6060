package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmehdipour/agency-crm/internal/model"
	"github.com/jmehdipour/agency-crm/internal/repository"
	"github.com/jmehdipour/agency-crm/internal/testutil"
	"github.com/jmehdipour/agency-crm/internal/util"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

func newAgency(name string) model.Agency {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return model.Agency{
		ID:          util.New(),
		Name:        name,
		Address1:    "1 Main St",
		State:       "CA",
		City:        "Oakland",
		PhoneNumber: "+15550100",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func newClient(agencyID, name, bill string) model.Client {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return model.Client{
		ID:          util.New(),
		AgencyID:    agencyID,
		Name:        name,
		Email:       name + "@example.com",
		PhoneNumber: "+15550199",
		TotalBill:   decimal.RequireFromString(bill),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestAgencies_InsertGetUpdate(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewAgenciesRepository(db)
	ctx := context.Background()

	a := newAgency("Acme")
	if err := repo.Insert(ctx, nil, a); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.GetByID(ctx, nil, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Name != "Acme" || got.City != "Oakland" {
		t.Fatalf("unexpected agency: %+v", got)
	}

	a.Name = "Acme Renamed"
	a.Address2 = "Suite 5"
	if err := repo.Update(ctx, nil, a); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = repo.GetByID(ctx, nil, a.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Name != "Acme Renamed" || got.Address2 != "Suite 5" {
		t.Fatalf("update not applied: %+v", got)
	}
}

func TestAgencies_GetByID_Missing(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewAgenciesRepository(db)

	got, err := repo.GetByID(context.Background(), nil, util.New())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil agency, got %+v", got)
	}
}

func TestAgencies_ListCountGetByIDs(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewAgenciesRepository(db)
	ctx := context.Background()

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", list)
	}

	a, b := newAgency("A"), newAgency("B")
	for _, ag := range []model.Agency{a, b} {
		if err := repo.Insert(ctx, nil, ag); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err := repo.Count(ctx, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 agencies, got %d", n)
	}

	list, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("unexpected list order: %+v", list)
	}

	byID, err := repo.GetByIDs(ctx, []string{a.ID, util.New()})
	if err != nil {
		t.Fatalf("get by ids: %v", err)
	}
	if len(byID) != 1 || byID[a.ID].Name != "A" {
		t.Fatalf("unexpected lookup: %+v", byID)
	}

	empty, err := repo.GetByIDs(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty lookup, got %v / %v", empty, err)
	}
}

func TestClients_ListFilterAndUpdate(t *testing.T) {
	db := testutil.NewDB(t)
	agencies := repository.NewAgenciesRepository(db)
	clients := repository.NewClientsRepository(db)
	ctx := context.Background()

	a, b := newAgency("A"), newAgency("B")
	_ = agencies.Insert(ctx, nil, a)
	_ = agencies.Insert(ctx, nil, b)

	c1 := newClient(a.ID, "one", "100.50")
	c2 := newClient(a.ID, "two", "200")
	c3 := newClient(b.ID, "three", "300")
	for _, c := range []model.Client{c1, c2, c3} {
		if err := clients.Insert(ctx, nil, c); err != nil {
			t.Fatalf("insert client: %v", err)
		}
	}

	all, err := clients.List(ctx, model.ClientFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 clients, got %d", len(all))
	}

	ofA, err := clients.List(ctx, model.ClientFilter{AgencyID: a.ID})
	if err != nil {
		t.Fatalf("list by agency: %v", err)
	}
	if len(ofA) != 2 || ofA[0].ID != c1.ID || ofA[1].ID != c2.ID {
		t.Fatalf("unexpected clients for agency: %+v", ofA)
	}
	if !ofA[0].TotalBill.Equal(decimal.RequireFromString("100.5")) {
		t.Fatalf("total bill not round-tripped: %s", ofA[0].TotalBill)
	}

	none, err := clients.List(ctx, model.ClientFilter{AgencyID: util.New()})
	if err != nil {
		t.Fatalf("list unknown agency: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", none)
	}

	c2.TotalBill = decimal.RequireFromString("250")
	c2.Name = "two-renamed"
	if err := clients.Update(ctx, nil, c2); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := clients.GetByID(ctx, nil, c2.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "two-renamed" || !got.TotalBill.Equal(decimal.NewFromInt(250)) || got.AgencyID != a.ID {
		t.Fatalf("unexpected client after update: %+v", got)
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db := testutil.NewDB(t)
	agencies := repository.NewAgenciesRepository(db)
	ctx := context.Background()

	a := newAgency("rolled back")
	err := repository.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if err := agencies.Insert(ctx, tx, a); err != nil {
			return err
		}
		return context.Canceled
	})
	if err != context.Canceled {
		t.Fatalf("expected fn error, got %v", err)
	}

	got, err := agencies.GetByID(ctx, nil, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("insert should have been rolled back")
	}
}

func TestOutbox_FetchMarkAttempts(t *testing.T) {
	db := testutil.NewDB(t)
	outbox := repository.NewOutboxRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := outbox.Insert(ctx, nil, "client", util.New(), "crm.clients", []byte(`{"n":1}`)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	pending, err := outbox.FetchPending(ctx, 2)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(pending) != 2 || pending[0].ID >= pending[1].ID {
		t.Fatalf("unexpected pending batch: %+v", pending)
	}
	if pending[0].PublishedAt.Valid {
		t.Fatal("pending row must not be published")
	}

	if err := outbox.IncrementAttempts(ctx, []int64{pending[0].ID}); err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if err := outbox.MarkPublished(ctx, []int64{pending[0].ID, pending[1].ID}, time.Now().UTC()); err != nil {
		t.Fatalf("mark: %v", err)
	}

	rest, err := outbox.FetchPending(ctx, 10)
	if err != nil {
		t.Fatalf("fetch rest: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("expected 1 pending row, got %d", len(rest))
	}

	var attempts int
	if err := db.Get(&attempts, `SELECT attempts FROM outbox WHERE id = ?`, pending[0].ID); err != nil {
		t.Fatalf("read attempts: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestAgencies_ClaimBootstrapOnce(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewAgenciesRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	ok, err := repo.ClaimBootstrap(ctx, nil, now)
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v; want true", ok, err)
	}

	ok, err = repo.ClaimBootstrap(ctx, nil, now)
	if err != nil || ok {
		t.Fatalf("second claim = %v, %v; want false", ok, err)
	}

	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM bootstrap_claim`); err != nil {
		t.Fatalf("count claims: %v", err)
	}
	if n != 1 {
		t.Fatalf("claims = %d, want 1", n)
	}
}

func TestAgencies_ClaimBootstrapRolledBack(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewAgenciesRepository(db)
	ctx := context.Background()

	err := repository.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := repo.ClaimBootstrap(ctx, tx, time.Now().UTC()); err != nil {
			return err
		}
		return context.Canceled
	})
	if err != context.Canceled {
		t.Fatalf("expected fn error, got %v", err)
	}

	ok, err := repo.ClaimBootstrap(ctx, nil, time.Now().UTC())
	if err != nil || !ok {
		t.Fatalf("claim after rollback = %v, %v; want true", ok, err)
	}
}
