package model

import "github.com/shopspring/decimal"

// TopClient is one of the highest-billed clients of an agency.
type TopClient struct {
	ClientName string          `json:"clientName"`
	TotalBill  decimal.Decimal `json:"totalBill"`
}

// AgencyTopClients is one row of the per-agency top-clients report.
type AgencyTopClients struct {
	AgencyID   string      `json:"agencyId"`
	AgencyName string      `json:"agencyName"`
	TopClients []TopClient `json:"topClients"`
}

// GlobalTopClient is the single highest-billed client across all agencies.
type GlobalTopClient struct {
	AgencyName string          `json:"agencyName"`
	ClientName string          `json:"clientName"`
	TotalBill  decimal.Decimal `json:"totalBill"`
}
