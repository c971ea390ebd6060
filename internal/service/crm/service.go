package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/agency-crm/internal/db"
	"github.com/jmehdipour/agency-crm/internal/logger"
	"github.com/jmehdipour/agency-crm/internal/metrics"
	"github.com/jmehdipour/agency-crm/internal/model"
	"github.com/jmehdipour/agency-crm/internal/repository"
	"github.com/jmehdipour/agency-crm/internal/util"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Topics names the Kafka topics change events are routed to.
type Topics struct {
	Agencies string
	Clients  string
}

// Service is the record accessor for agencies and clients. Every write runs
// in one transaction together with its outbox event.
type Service struct {
	db       *sqlx.DB
	agencies repository.AgenciesRepository
	clients  repository.ClientsRepository
	outbox   repository.OutboxRepository
	topics   Topics

	now func() time.Time
}

// New constructs the crm service.
func New(
	db *sqlx.DB,
	agenciesRepo repository.AgenciesRepository,
	clientsRepo repository.ClientsRepository,
	outboxRepo repository.OutboxRepository,
	topics Topics,
) *Service {
	return &Service{
		db:       db,
		agencies: agenciesRepo,
		clients:  clientsRepo,
		outbox:   outboxRepo,
		topics:   topics,
		now: func() time.Time {
			// DATETIME(6) keeps microseconds
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

// ---- Agencies ----

// CreateAgency inserts an agency and its first client as one unit of work:
// both rows and both outbox events commit together or not at all.
func (s *Service) CreateAgency(ctx context.Context, af model.AgencyFields, cf model.ClientFields) (model.Agency, model.Client, error) {
	return s.createAgency(ctx, af, cf, false)
}

// BootstrapAgency is CreateAgency for a caller without a token. It succeeds
// only for the very first agency; the claim is taken in the same
// transaction, so of two concurrent callers at most one commits. The others
// get ErrBootstrapClosed.
func (s *Service) BootstrapAgency(ctx context.Context, af model.AgencyFields, cf model.ClientFields) (model.Agency, model.Client, error) {
	return s.createAgency(ctx, af, cf, true)
}

func (s *Service) createAgency(ctx context.Context, af model.AgencyFields, cf model.ClientFields, bootstrap bool) (model.Agency, model.Client, error) {
	af = normalizeAgency(af)
	cf = normalizeClient(cf)
	if err := check(af); err != nil {
		return model.Agency{}, model.Client{}, err
	}
	if err := check(cf); err != nil {
		return model.Agency{}, model.Client{}, err
	}

	now := s.now()
	agency := model.Agency{ID: util.New(), CreatedAt: now, UpdatedAt: now}
	af.Apply(&agency)

	client := model.Client{ID: util.New(), AgencyID: agency.ID, CreatedAt: now, UpdatedAt: now}
	cf.Apply(&client)

	err := repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if bootstrap {
			if err := s.claimBootstrap(ctx, tx, now); err != nil {
				return err
			}
		}
		if err := s.agencies.Insert(ctx, tx, agency); err != nil {
			return err
		}
		if err := s.emitAgency(ctx, tx, model.EventAgencyCreated, agency); err != nil {
			return err
		}
		if err := s.clients.Insert(ctx, tx, client); err != nil {
			return err
		}
		return s.emitClient(ctx, tx, model.EventClientCreated, client)
	})
	if err != nil {
		return model.Agency{}, model.Client{}, storeErr(err)
	}

	metrics.RecordsWritten.WithLabelValues("agency", "create").Inc()
	metrics.RecordsWritten.WithLabelValues("client", "create").Inc()
	logger.Log.Debug("agency created",
		zap.String("agency_id", agency.ID),
		zap.String("client_id", client.ID),
		zap.Bool("bootstrap", bootstrap),
	)

	return agency, client, nil
}

// claimBootstrap fails with ErrBootstrapClosed once any agency exists or
// another request holds the claim.
func (s *Service) claimBootstrap(ctx context.Context, tx *sqlx.Tx, now time.Time) error {
	n, err := s.agencies.Count(ctx, tx)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrBootstrapClosed
	}

	ok, err := s.agencies.ClaimBootstrap(ctx, tx, now)
	switch {
	case db.IsDuplicateKey(err):
		return ErrBootstrapClosed
	case err != nil:
		return err
	case !ok:
		return ErrBootstrapClosed
	}
	return nil
}

func (s *Service) GetAgency(ctx context.Context, id string) (model.Agency, error) {
	a, err := s.loadAgency(ctx, nil, id)
	if err != nil {
		return model.Agency{}, err
	}
	return *a, nil
}

func (s *Service) ListAgencies(ctx context.Context) ([]model.Agency, error) {
	return s.agencies.List(ctx)
}

// HasAgencies reports whether at least one agency exists.
func (s *Service) HasAgencies(ctx context.Context) (bool, error) {
	n, err := s.agencies.Count(ctx, nil)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateAgency replaces every mutable field of the agency; fields left
// empty in f are stored empty.
func (s *Service) UpdateAgency(ctx context.Context, id string, f model.AgencyFields) (model.Agency, error) {
	f = normalizeAgency(f)
	if err := check(f); err != nil {
		return model.Agency{}, err
	}

	var out model.Agency
	err := repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		a, err := s.loadAgency(ctx, tx, id)
		if err != nil {
			return err
		}

		f.Apply(a)
		a.UpdatedAt = s.now()

		if err := s.agencies.Update(ctx, tx, *a); err != nil {
			return err
		}
		if err := s.emitAgency(ctx, tx, model.EventAgencyUpdated, *a); err != nil {
			return err
		}
		out = *a
		return nil
	})
	if err != nil {
		return model.Agency{}, storeErr(err)
	}

	metrics.RecordsWritten.WithLabelValues("agency", "update").Inc()
	return out, nil
}

// ---- Clients ----

// CreateClient adds a client to an existing agency. The agency lookup and
// the insert share a transaction, so a missing agency persists nothing.
func (s *Service) CreateClient(ctx context.Context, agencyID string, f model.ClientFields) (model.Client, error) {
	agencyID = strings.TrimSpace(agencyID)
	if agencyID == "" {
		return model.Client{}, validationErr("agencyId is required")
	}
	f = normalizeClient(f)
	if err := check(f); err != nil {
		return model.Client{}, err
	}

	now := s.now()
	client := model.Client{ID: util.New(), AgencyID: agencyID, CreatedAt: now, UpdatedAt: now}
	f.Apply(&client)

	err := repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := s.loadAgency(ctx, tx, agencyID); err != nil {
			return err
		}
		if err := s.clients.Insert(ctx, tx, client); err != nil {
			return err
		}
		return s.emitClient(ctx, tx, model.EventClientCreated, client)
	})
	if err != nil {
		return model.Client{}, storeErr(err)
	}

	metrics.RecordsWritten.WithLabelValues("client", "create").Inc()
	return client, nil
}

func (s *Service) GetClient(ctx context.Context, id string) (model.Client, error) {
	c, err := s.loadClient(ctx, nil, id)
	if err != nil {
		return model.Client{}, err
	}
	return *c, nil
}

// GetAgencyClient returns the client only when it belongs to agencyID.
func (s *Service) GetAgencyClient(ctx context.Context, agencyID, id string) (model.Client, error) {
	c, err := s.loadClient(ctx, nil, id)
	if err != nil {
		return model.Client{}, err
	}
	if c.AgencyID != agencyID {
		return model.Client{}, ErrAgencyMismatch
	}
	return *c, nil
}

// ListClients lists clients, optionally narrowed to one agency. Filtering
// by an agency that does not exist is ErrAgencyNotFound; an agency with no
// clients yields an empty slice.
func (s *Service) ListClients(ctx context.Context, f model.ClientFilter) ([]model.Client, error) {
	if f.AgencyID != "" {
		if _, err := s.loadAgency(ctx, nil, f.AgencyID); err != nil {
			return nil, err
		}
	}
	return s.clients.List(ctx, f)
}

// UpdateClient replaces every mutable field of the client. The client's
// agency never changes through an update.
func (s *Service) UpdateClient(ctx context.Context, id string, f model.ClientFields) (model.Client, error) {
	return s.updateClient(ctx, "", id, f)
}

// UpdateAgencyClient is UpdateClient scoped to agencyID: the agency must
// exist and own the client, otherwise nothing is written.
func (s *Service) UpdateAgencyClient(ctx context.Context, agencyID, id string, f model.ClientFields) (model.Client, error) {
	if agencyID == "" {
		return model.Client{}, ErrAgencyNotFound
	}
	return s.updateClient(ctx, agencyID, id, f)
}

func (s *Service) updateClient(ctx context.Context, agencyID, id string, f model.ClientFields) (model.Client, error) {
	f = normalizeClient(f)
	if err := check(f); err != nil {
		return model.Client{}, err
	}

	var out model.Client
	err := repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if agencyID != "" {
			if _, err := s.loadAgency(ctx, tx, agencyID); err != nil {
				return err
			}
		}

		c, err := s.loadClient(ctx, tx, id)
		if err != nil {
			return err
		}
		if agencyID != "" && c.AgencyID != agencyID {
			return ErrAgencyMismatch
		}

		f.Apply(c)
		c.UpdatedAt = s.now()

		if err := s.clients.Update(ctx, tx, *c); err != nil {
			return err
		}
		if err := s.emitClient(ctx, tx, model.EventClientUpdated, *c); err != nil {
			return err
		}
		out = *c
		return nil
	})
	if err != nil {
		return model.Client{}, storeErr(err)
	}

	metrics.RecordsWritten.WithLabelValues("client", "update").Inc()
	return out, nil
}

// ---- helpers ----

func (s *Service) loadAgency(ctx context.Context, tx *sqlx.Tx, id string) (*model.Agency, error) {
	if !util.ValidID(id) {
		return nil, ErrAgencyNotFound
	}
	a, err := s.agencies.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAgencyNotFound
	}
	return a, nil
}

func (s *Service) loadClient(ctx context.Context, tx *sqlx.Tx, id string) (*model.Client, error) {
	if !util.ValidID(id) {
		return nil, ErrClientNotFound
	}
	c, err := s.clients.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrClientNotFound
	}
	return c, nil
}

func (s *Service) emitAgency(ctx context.Context, tx *sqlx.Tx, typ model.EventType, a model.Agency) error {
	return s.emit(ctx, tx, "agency", a.ID, s.topics.Agencies, model.Envelope{Type: typ, Agency: &a})
}

func (s *Service) emitClient(ctx context.Context, tx *sqlx.Tx, typ model.EventType, c model.Client) error {
	return s.emit(ctx, tx, "client", c.ID, s.topics.Clients, model.Envelope{Type: typ, Client: &c})
}

func (s *Service) emit(ctx context.Context, tx *sqlx.Tx, aggregate, aggregateID, topic string, env model.Envelope) error {
	env.EventID = util.New()
	env.OccurredAt = s.now()

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := s.outbox.Insert(ctx, tx, aggregate, aggregateID, topic, payload); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}
