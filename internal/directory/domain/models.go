// Package domain contains persistence models for venues, clients and performers.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ContractType describes how a performer is engaged for tax purposes.
type ContractType string

const (
	// ContractOccasional is occasional performance income: gross is derived
	// from net with a flat 20% withholding at source.
	ContractOccasional ContractType = "OCCASIONAL"
	// ContractBusiness means the performer invoices through a registered
	// business identifier; no tax is withheld.
	ContractBusiness ContractType = "BUSINESS"
)

// Venue is a performance location reportable to the authority.
type Venue struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	Name             string       `gorm:"type:text;not null"`
	Address          string       `gorm:"type:text"`
	City             string       `gorm:"type:text"`
	Province         string       `gorm:"type:text"`
	PostalCode       string       `gorm:"type:text"`
	MunicipalityCode string       `gorm:"type:text;index"`

	// Company identifiers of the venue operator. Empty values fall back to
	// the agency's own registered data at serialization time.
	CompanyFiscalCode         string `gorm:"type:text"`
	CompanyRegistrationNumber string `gorm:"type:text"`
	CompanyLegalAddress       string `gorm:"type:text"`

	DefaultClientID *snowflake.ID `gorm:"index"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Venue) TableName() string { return "venues" }

// Client is the party invoiced for a booking.
type Client struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	LegalName string          `gorm:"type:text;not null"`
	Email     string          `gorm:"type:text"`
	AgencyFee decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`

	// DeferPayments defers performer payment eligibility until the client's
	// invoice is collected.
	DeferPayments bool `gorm:"not null;default:false"`

	// LegalRepFiscalCode identifies the client's legal representative; a
	// performer with this fiscal code is flagged as such on the wire.
	LegalRepFiscalCode string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Client) TableName() string { return "clients" }

// Performer is an artist that can appear on a filing.
type Performer struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	FirstName    string       `gorm:"type:text"`
	LastName     string       `gorm:"type:text"`
	Email        string       `gorm:"type:text"`
	FiscalCode   string       `gorm:"type:text;index"`
	BirthDate    *time.Time   `gorm:""`
	ContractType ContractType `gorm:"type:text;not null;default:'OCCASIONAL'"`
	VATNumber    string       `gorm:"type:text"`

	// INPSEnrollmentNumber is backfilled opportunistically from outcome
	// ingestion when previously unknown.
	INPSEnrollmentNumber string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Performer) TableName() string { return "performers" }

// HasBusinessInvoicing reports whether the performer invoices via a
// registered business identifier.
func (p Performer) HasBusinessInvoicing() bool {
	return p.ContractType == ContractBusiness || p.VATNumber != ""
}

var (
	ErrVenueNotFound     = errors.New("venue_not_found")
	ErrClientNotFound    = errors.New("client_not_found")
	ErrPerformerNotFound = errors.New("performer_not_found")
)
