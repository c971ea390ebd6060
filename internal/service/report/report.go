// Package report computes the top-clients reports over the stored clients.
package report

import (
	"context"

	"github.com/jmehdipour/agency-crm/internal/metrics"
	"github.com/jmehdipour/agency-crm/internal/model"
	"github.com/jmehdipour/agency-crm/internal/repository"
	"github.com/shopspring/decimal"
)

// Service loads clients and agencies and runs the report algorithms on them.
type Service struct {
	agencies repository.AgenciesRepository
	clients  repository.ClientsRepository
}

func New(agenciesRepo repository.AgenciesRepository, clientsRepo repository.ClientsRepository) *Service {
	return &Service{agencies: agenciesRepo, clients: clientsRepo}
}

// TopClients returns, for every agency with at least one client, the
// clients holding that agency's highest bill.
func (s *Service) TopClients(ctx context.Context) ([]model.AgencyTopClients, error) {
	clients, agencies, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	metrics.ReportsServed.WithLabelValues("per_agency").Inc()
	return TopClientsByAgency(clients, agencies), nil
}

// TopClient returns the single highest-billed client overall; ok is false
// when there is none.
func (s *Service) TopClient(ctx context.Context) (model.GlobalTopClient, bool, error) {
	clients, agencies, err := s.load(ctx)
	if err != nil {
		return model.GlobalTopClient{}, false, err
	}
	metrics.ReportsServed.WithLabelValues("global").Inc()
	row, ok := GlobalTopClient(clients, agencies)
	return row, ok, nil
}

func (s *Service) load(ctx context.Context) ([]model.Client, map[string]model.Agency, error) {
	clients, err := s.clients.List(ctx, model.ClientFilter{})
	if err != nil {
		return nil, nil, err
	}

	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for _, c := range clients {
		if _, ok := seen[c.AgencyID]; ok {
			continue
		}
		seen[c.AgencyID] = struct{}{}
		ids = append(ids, c.AgencyID)
	}

	agencies, err := s.agencies.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return clients, agencies, nil
}

type group struct {
	agencyID string
	max      decimal.Decimal
	members  []model.Client
}

// TopClientsByAgency groups clients by agency, keeps every client whose bill
// equals the group maximum and joins each group to its agency. Groups appear
// in order of first appearance in clients; groups whose agency is missing
// from agencies are dropped.
func TopClientsByAgency(clients []model.Client, agencies map[string]model.Agency) []model.AgencyTopClients {
	var order []*group
	byAgency := make(map[string]*group)

	for _, c := range clients {
		g, ok := byAgency[c.AgencyID]
		if !ok {
			g = &group{agencyID: c.AgencyID, max: c.TotalBill}
			byAgency[c.AgencyID] = g
			order = append(order, g)
		}
		if c.TotalBill.GreaterThan(g.max) {
			g.max = c.TotalBill
		}
		g.members = append(g.members, c)
	}

	out := make([]model.AgencyTopClients, 0, len(order))
	for _, g := range order {
		a, ok := agencies[g.agencyID]
		if !ok {
			continue
		}

		row := model.AgencyTopClients{
			AgencyID:   a.ID,
			AgencyName: a.Name,
			TopClients: make([]model.TopClient, 0, 1),
		}
		for _, c := range g.members {
			if c.TotalBill.Equal(g.max) {
				row.TopClients = append(row.TopClients, model.TopClient{
					ClientName: c.Name,
					TotalBill:  c.TotalBill,
				})
			}
		}
		out = append(out, row)
	}
	return out
}

// GlobalTopClient picks the first client holding the strictly greatest bill
// and joins it to its agency. ok is false when clients is empty or that
// client's agency is missing.
func GlobalTopClient(clients []model.Client, agencies map[string]model.Agency) (model.GlobalTopClient, bool) {
	if len(clients) == 0 {
		return model.GlobalTopClient{}, false
	}

	top := clients[0]
	for _, c := range clients[1:] {
		if c.TotalBill.GreaterThan(top.TotalBill) {
			top = c
		}
	}

	a, ok := agencies[top.AgencyID]
	if !ok {
		return model.GlobalTopClient{}, false
	}
	return model.GlobalTopClient{
		AgencyName: a.Name,
		ClientName: top.Name,
		TotalBill:  top.TotalBill,
	}, true
}
