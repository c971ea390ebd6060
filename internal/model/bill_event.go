package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillEvent is a point-in-time snapshot of a client's total bill, kept in
// ClickHouse for billing history.
type BillEvent struct {
	EventID    string          `db:"event_id"    json:"eventId"`
	EventType  string          `db:"event_type"  json:"eventType"`
	AgencyID   string          `db:"agency_id"   json:"agencyId"`
	ClientID   string          `db:"client_id"   json:"clientId"`
	ClientName string          `db:"client_name" json:"clientName"`
	TotalBill  decimal.Decimal `db:"total_bill"  json:"totalBill"`
	OccurredAt time.Time       `db:"occurred_at" json:"occurredAt"`
}
