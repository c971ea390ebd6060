package model

import "time"

// Agency owns zero or more clients.
type Agency struct {
	ID          string    `db:"id"           json:"id"`
	Name        string    `db:"name"         json:"name"`
	Address1    string    `db:"address1"     json:"address1"`
	Address2    string    `db:"address2"     json:"address2"`
	State       string    `db:"state"        json:"state"`
	City        string    `db:"city"         json:"city"`
	PhoneNumber string    `db:"phone_number" json:"phoneNumber"`
	CreatedAt   time.Time `db:"created_at"   json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updatedAt"`
}

// AgencyFields are the mutable agency fields; an update replaces all of them.
// Length limits follow the agencies column widths.
type AgencyFields struct {
	Name        string `validate:"required,max=255"`
	Address1    string `validate:"required,max=255"`
	Address2    string `validate:"max=255"`
	State       string `validate:"required,max=128"`
	City        string `validate:"required,max=128"`
	PhoneNumber string `validate:"required,max=32"`
}

// Apply overwrites every mutable field of a.
func (f AgencyFields) Apply(a *Agency) {
	a.Name = f.Name
	a.Address1 = f.Address1
	a.Address2 = f.Address2
	a.State = f.State
	a.City = f.City
	a.PhoneNumber = f.PhoneNumber
}
