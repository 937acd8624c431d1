package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// AssignmentInput is one performer engagement in a create/replace request.
// The declared fee is net; gross and withholding are derived.
type AssignmentInput struct {
	PerformerID   snowflake.ID
	Qualification string
	StartDate     time.Time
	EndDate       time.Time
	NetFee        decimal.Decimal
	PaymentDueAt  *time.Time
}

type CreateFilingRequest struct {
	Code        string
	VenueID     *snowflake.ID
	ClientID    *snowflake.ID
	Notes       string
	Assignments []AssignmentInput
}

type ListFilingsRequest struct {
	Status   *FilingStatus
	VenueID  *snowflake.ID
	ClientID *snowflake.ID
	From     *time.Time
	To       *time.Time
}

// WorkerIdentity carries the authority's per-worker identifiers from a
// result document.
type WorkerIdentity struct {
	FiscalCode       string
	WorkerID         *int64
	EnrollmentNumber string
}

// OutcomeIngestion is the authority response applied to a matched filing.
type OutcomeIngestion struct {
	Outcome      string
	ErrorText    *string
	FilingID     *int64
	OccupationID *int64
	PeriodID     *int64
	Hash         string
	ReceivedAt   time.Time

	CertificatePath string
	Workers         []WorkerIdentity
}

// GeneratedDocument is a rendered submission document ready for download.
type GeneratedDocument struct {
	Filename string
	Content  []byte
}

type Service interface {
	Create(ctx context.Context, req CreateFilingRequest) (*Filing, error)
	Get(ctx context.Context, id snowflake.ID) (*Filing, []PerformerAssignment, error)
	List(ctx context.Context, req ListFilingsRequest) ([]Filing, error)

	// ReplaceAssignments rewrites the whole assignment set and recomputes
	// aggregate totals in one transaction. Partial in-place edits are not
	// supported.
	ReplaceAssignments(ctx context.Context, id snowflake.ID, assignments []AssignmentInput) (*Filing, error)

	Delete(ctx context.Context, id snowflake.ID) error
	GenerateDocument(ctx context.Context, id snowflake.ID) (*GeneratedDocument, error)
	MarkSubmitted(ctx context.Context, id snowflake.ID) error
	IngestOutcome(ctx context.Context, id snowflake.ID, outcome OutcomeIngestion) (*Filing, error)
}

var (
	ErrFilingNotFound   = errors.New("filing_not_found")
	ErrFilingInvoiced   = errors.New("filing_invoiced")
	ErrFilingSubmitted  = errors.New("filing_submitted")
	ErrFilingNotReady   = errors.New("filing_not_ready")
	ErrAlreadyProcessed = errors.New("filing_already_processed")
	ErrNoAssignments    = errors.New("filing_has_no_assignments")
)

// FieldIssue is one field-level validation failure.
type FieldIssue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError collects the field-level failures that block document
// generation, so the operator sees everything at once.
type ValidationError struct {
	Fields []FieldIssue `json:"errors"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation error"
	}
	codes := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		codes = append(codes, fmt.Sprintf("%s:%s", f.Field, f.Code))
	}
	return "validation error: " + strings.Join(codes, ", ")
}
