// Package domain contains persistence models for agibilità filings.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// FilingStatus represents filing lifecycle states.
type FilingStatus string

const (
	FilingStatusDraft          FilingStatus = "DRAFT"
	FilingStatusIncompleteData FilingStatus = "INCOMPLETE_DATA"
	FilingStatusReady          FilingStatus = "READY"
	FilingStatusSubmitted      FilingStatus = "SUBMITTED"
	FilingStatusComplete       FilingStatus = "COMPLETE"
	FilingStatusFailed         FilingStatus = "FAILED"
)

// InvoiceStatus tracks billing of the filing towards the client.
type InvoiceStatus string

const (
	InvoiceStatusNone      InvoiceStatus = "NONE"
	InvoiceStatusInvoiced  InvoiceStatus = "INVOICED"
	InvoiceStatusCollected InvoiceStatus = "COLLECTED"
)

// PaymentStatus tracks payment of a single performer assignment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusDeferred PaymentStatus = "DEFERRED"
	PaymentStatusPaid     PaymentStatus = "PAID"
)

// Filing is a single work-permit submission for one or more performers at a
// venue. Aggregate totals always equal the sum of the assignment rows; they
// are recomputed inside the same transaction that rewrites the rows.
type Filing struct {
	ID       snowflake.ID  `gorm:"primaryKey"`
	Code     string        `gorm:"type:text;not null;uniqueIndex"`
	VenueID  *snowflake.ID `gorm:"index"`
	ClientID *snowflake.ID `gorm:"index"`
	Status   FilingStatus  `gorm:"type:text;not null;default:'DRAFT'"`

	EventStart time.Time `gorm:"not null;index"`
	EventEnd   time.Time `gorm:"not null;index"`

	TotalNet         decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	TotalGross       decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	TotalWithholding decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	AgencyFee        decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	InvoiceAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	InvoiceStatus    InvoiceStatus   `gorm:"type:text;not null;default:'NONE'"`

	// Authority response fields, populated by outcome ingestion.
	INPSOutcome      *string    `gorm:"type:text"`
	INPSError        *string    `gorm:"type:text"`
	INPSFilingID     *int64     `gorm:"index"`
	INPSOccupationID *int64     `gorm:""`
	INPSPeriodID     *int64     `gorm:""`
	ResponseHash     *string    `gorm:"type:text"`
	ResponseAt       *time.Time `gorm:""`
	CertificatePath  *string    `gorm:"type:text"`

	DocumentGeneratedAt *time.Time `gorm:""`
	Notes               string     `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Filing) TableName() string { return "filings" }

// IsAmendment reports whether the filing already carries a prior authority
// submission identifier, which turns the next document into an amendment.
func (f Filing) IsAmendment() bool { return f.INPSFilingID != nil }

// PerformerAssignment is one performer's engagement on a filing. Rows are
// wholesale deleted and recreated on every edit; (performer, start date)
// pairs are unique within a filing.
type PerformerAssignment struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	FilingID    snowflake.ID `gorm:"not null;index"`
	PerformerID snowflake.ID `gorm:"not null;index"`

	Qualification string    `gorm:"type:text"`
	StartDate     time.Time `gorm:"not null"`
	EndDate       time.Time `gorm:"not null"`

	Net         decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	Gross       decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	Withholding decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`

	PaymentStatus PaymentStatus `gorm:"type:text;not null;default:'PENDING'"`
	PaymentDueAt  *time.Time    `gorm:""`

	// INPSWorkerID is populated only after outcome ingestion.
	INPSWorkerID *int64 `gorm:""`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PerformerAssignment) TableName() string { return "performer_assignments" }
