package cmd

import (
	"fmt"

	"github.com/jmehdipour/agency-crm/internal/db"
	"github.com/jmehdipour/agency-crm/internal/logger"
	"github.com/jmehdipour/agency-crm/internal/model"
	"github.com/jmehdipour/agency-crm/internal/repository"
	"github.com/jmehdipour/agency-crm/internal/service/crm"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type seedAgency struct {
	agency  model.AgencyFields
	clients []model.ClientFields
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo agencies and clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		svc := crm.New(
			sqlDB,
			repository.NewAgenciesRepository(sqlDB),
			repository.NewClientsRepository(sqlDB),
			repository.NewOutboxRepository(sqlDB),
			crm.Topics{Agencies: cfg.Kafka.AgenciesTopic, Clients: cfg.Kafka.ClientsTopic},
		)

		ctx := cmd.Context()
		has, err := svc.HasAgencies(ctx)
		if err != nil {
			return err
		}
		if has {
			logger.Log.Info("seed: agencies already present, skipping")
			return nil
		}

		for _, s := range demoData() {
			a, first, err := svc.CreateAgency(ctx, s.agency, s.clients[0])
			if err != nil {
				return fmt.Errorf("seed agency %q: %w", s.agency.Name, err)
			}
			for _, cf := range s.clients[1:] {
				if _, err := svc.CreateClient(ctx, a.ID, cf); err != nil {
					return fmt.Errorf("seed client %q: %w", cf.Name, err)
				}
			}
			logger.Log.Info("seed: agency created",
				zap.String("agency_id", a.ID),
				zap.String("first_client_id", first.ID),
				zap.Int("clients", len(s.clients)),
			)
		}
		return nil
	},
}

func demoData() []seedAgency {
	c := func(name, email, phone, bill string) model.ClientFields {
		d := decimal.RequireFromString(bill)
		return model.ClientFields{Name: name, Email: email, PhoneNumber: phone, TotalBill: &d}
	}
	return []seedAgency{
		{
			agency: model.AgencyFields{
				Name: "Northwind Travel", Address1: "12 Harbor Rd", Address2: "Suite 4",
				State: "WA", City: "Seattle", PhoneNumber: "+1 206 555 0101",
			},
			clients: []model.ClientFields{
				c("Ada Byron", "ada@example.com", "+1 206 555 0111", "1250.00"),
				c("Grace Hopper", "grace@example.com", "+1 206 555 0112", "3400.50"),
				c("Alan Kay", "alan@example.com", "+1 206 555 0113", "3400.50"),
			},
		},
		{
			agency: model.AgencyFields{
				Name: "Blue Fern Media", Address1: "88 Elm St",
				State: "OR", City: "Portland", PhoneNumber: "+1 503 555 0122",
			},
			clients: []model.ClientFields{
				c("Ken Thompson", "ken@example.com", "+1 503 555 0131", "980.25"),
				c("Barbara Liskov", "barbara@example.com", "+1 503 555 0132", "4100.00"),
			},
		},
	}
}
