package models

import "time"

// Company is a hiring partner that placements refer to.
type Company struct {
	ID              string          `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	Industry        *string         `db:"industry" json:"industry,omitempty"`
	ContactPerson   *string         `db:"contact_person" json:"contact_person,omitempty"`
	Email           *string         `db:"email" json:"email,omitempty"`
	Phone           *string         `db:"phone" json:"phone,omitempty"`
	Address         *string         `db:"address" json:"address,omitempty"`
	PartnershipDate *time.Time      `db:"partnership_date" json:"partnership_date,omitempty"`
	Status          CatalogueStatus `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// CompanyFilter captures filtering criteria for listing companies.
type CompanyFilter struct {
	Status   *CatalogueStatus
	Industry string
	Search   string
	Page     int
	PageSize int
}
