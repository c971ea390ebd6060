package model

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// totalBill goes over the wire as a JSON number, not a quoted string.
	decimal.MarshalJSONWithoutQuotes = true
}

// Client is a billable entity belonging to exactly one agency.
type Client struct {
	ID          string          `db:"id"           json:"id"`
	AgencyID    string          `db:"agency_id"    json:"agencyId"`
	Name        string          `db:"name"         json:"name"`
	Email       string          `db:"email"        json:"email"`
	PhoneNumber string          `db:"phone_number" json:"phoneNumber"`
	TotalBill   decimal.Decimal `db:"total_bill"   json:"totalBill"`
	CreatedAt   time.Time       `db:"created_at"   json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at"   json:"updatedAt"`
}

// ClientFields are the mutable client fields; an update replaces all of them.
// TotalBill is a pointer so a missing value can be told apart from zero.
// Limits follow the clients columns; "bill" bounds a DECIMAL(18,2).
type ClientFields struct {
	Name        string           `validate:"required,max=255"`
	Email       string           `validate:"required,max=320,email"`
	PhoneNumber string           `validate:"required,max=32"`
	TotalBill   *decimal.Decimal `validate:"required,bill"`
}

// Apply overwrites every mutable field of c. f must have passed validation.
func (f ClientFields) Apply(c *Client) {
	c.Name = f.Name
	c.Email = f.Email
	c.PhoneNumber = f.PhoneNumber
	c.TotalBill = *f.TotalBill
}

// ClientFilter narrows client listings; zero value matches everything.
type ClientFilter struct {
	AgencyID string
}
