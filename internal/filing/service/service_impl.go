package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/palcoscenico/agibilita/internal/compensation"
	"github.com/palcoscenico/agibilita/internal/config"
	directorydomain "github.com/palcoscenico/agibilita/internal/directory/domain"
	filingdomain "github.com/palcoscenico/agibilita/internal/filing/domain"
	"github.com/palcoscenico/agibilita/internal/inpsxml"
	"github.com/palcoscenico/agibilita/internal/occupation"
	"github.com/palcoscenico/agibilita/pkg/db/option"
	"github.com/palcoscenico/agibilita/pkg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Cfg       config.Config
	Directory directorydomain.Service
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID     *snowflake.Node
	agency    config.AgencyConfig
	directory directorydomain.Service

	filings repository.Repository[filingdomain.Filing]
}

func NewService(p ServiceParam) filingdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("filing.service"),
		genID: p.GenID,

		agency:    p.Cfg.Agency,
		directory: p.Directory,

		filings: repository.ProvideStore[filingdomain.Filing](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req filingdomain.CreateFilingRequest) (*filingdomain.Filing, error) {
	if len(req.Assignments) == 0 {
		return nil, filingdomain.ErrNoAssignments
	}

	venue, err := s.optionalVenue(ctx, req.VenueID)
	if err != nil {
		return nil, err
	}
	client, err := s.optionalClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	performers, err := s.performersFor(ctx, req.Assignments)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	filingID := s.genID.Generate()

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = fmt.Sprintf("AGB-%d", filingID)
	}

	rows := s.buildAssignments(filingID, req.Assignments, performers, client, now)
	filing := &filingdomain.Filing{
		ID:        filingID,
		Code:      code,
		VenueID:   req.VenueID,
		ClientID:  req.ClientID,
		Status:    evaluateReadiness(venue, performers),
		Notes:     req.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyTotals(filing, rows, client)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(filing).Error; err != nil {
			return err
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("filing created",
		zap.String("filing_id", filing.ID.String()),
		zap.String("code", filing.Code),
		zap.String("status", string(filing.Status)),
		zap.Int("assignments", len(rows)),
	)
	return filing, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*filingdomain.Filing, []filingdomain.PerformerAssignment, error) {
	filing, err := s.filings.FindOne(ctx, &filingdomain.Filing{ID: id})
	if err != nil {
		return nil, nil, err
	}
	if filing == nil {
		return nil, nil, filingdomain.ErrFilingNotFound
	}

	var assignments []filingdomain.PerformerAssignment
	err = s.db.WithContext(ctx).
		Where("filing_id = ?", id).
		Order("start_date, id").
		Find(&assignments).Error
	if err != nil {
		return nil, nil, err
	}
	return filing, assignments, nil
}

func (s *Service) List(ctx context.Context, req filingdomain.ListFilingsRequest) ([]filingdomain.Filing, error) {
	filter := &filingdomain.Filing{}
	if req.Status != nil {
		filter.Status = *req.Status
	}
	if req.VenueID != nil {
		filter.VenueID = req.VenueID
	}
	if req.ClientID != nil {
		filter.ClientID = req.ClientID
	}

	options := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true, "event_start": true}}),
	}
	if req.From != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "event_start",
			Operator: option.GTE,
			Value:    *req.From,
		}))
	}
	if req.To != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "event_end",
			Operator: option.LTE,
			Value:    *req.To,
		}))
	}

	items, err := s.filings.Find(ctx, filter, options...)
	if err != nil {
		return nil, err
	}

	filings := make([]filingdomain.Filing, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		filings = append(filings, *item)
	}
	return filings, nil
}

func (s *Service) ReplaceAssignments(ctx context.Context, id snowflake.ID, assignments []filingdomain.AssignmentInput) (*filingdomain.Filing, error) {
	if len(assignments) == 0 {
		return nil, filingdomain.ErrNoAssignments
	}

	filing, err := s.filings.FindOne(ctx, &filingdomain.Filing{ID: id})
	if err != nil {
		return nil, err
	}
	if filing == nil {
		return nil, filingdomain.ErrFilingNotFound
	}
	switch filing.Status {
	case filingdomain.FilingStatusSubmitted, filingdomain.FilingStatusComplete:
		return nil, filingdomain.ErrFilingSubmitted
	}

	venue, err := s.optionalVenue(ctx, filing.VenueID)
	if err != nil {
		return nil, err
	}
	client, err := s.optionalClient(ctx, filing.ClientID)
	if err != nil {
		return nil, err
	}
	performers, err := s.performersFor(ctx, assignments)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rows := s.buildAssignments(filing.ID, assignments, performers, client, now)

	next := evaluateReadiness(venue, performers)
	if next == filingdomain.FilingStatusDraft && filing.Status != filingdomain.FilingStatusDraft {
		// An edit that degrades a filing already past draft flags the data
		// gap instead of silently resetting the lifecycle.
		next = filingdomain.FilingStatusIncompleteData
	}
	filing.Status = next
	filing.UpdatedAt = now
	// Editing a failed filing re-opens the submission cycle: the next ingest
	// must be able to claim it again.
	filing.INPSOutcome = nil
	filing.INPSError = nil
	filing.ResponseAt = nil
	applyTotals(filing, rows, client)

	// Delete-then-recreate plus the totals update is one atomic unit; a
	// crash in between must leave the previous consistent state.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("filing_id = ?", filing.ID).Delete(&filingdomain.PerformerAssignment{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
		return tx.Exec(
			`UPDATE filings
			 SET status = ?, event_start = ?, event_end = ?,
			     total_net = ?, total_gross = ?, total_withholding = ?,
			     agency_fee = ?, invoice_amount = ?,
			     inps_outcome = NULL, inps_error = NULL, response_at = NULL,
			     updated_at = ?
			 WHERE id = ?`,
			filing.Status,
			filing.EventStart,
			filing.EventEnd,
			filing.TotalNet,
			filing.TotalGross,
			filing.TotalWithholding,
			filing.AgencyFee,
			filing.InvoiceAmount,
			filing.UpdatedAt,
			filing.ID,
		).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("filing assignments replaced",
		zap.String("filing_id", filing.ID.String()),
		zap.Int("assignments", len(rows)),
		zap.String("status", string(filing.Status)),
	)
	return filing, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	filing, err := s.filings.FindOne(ctx, &filingdomain.Filing{ID: id})
	if err != nil {
		return err
	}
	if filing == nil {
		return filingdomain.ErrFilingNotFound
	}
	if filing.InvoiceStatus != filingdomain.InvoiceStatusNone {
		return filingdomain.ErrFilingInvoiced
	}
	switch filing.Status {
	case filingdomain.FilingStatusSubmitted, filingdomain.FilingStatusComplete:
		return filingdomain.ErrFilingSubmitted
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("filing_id = ?", id).Delete(&filingdomain.PerformerAssignment{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&filingdomain.Filing{}).Error
	})
}

func (s *Service) GenerateDocument(ctx context.Context, id snowflake.ID) (*filingdomain.GeneratedDocument, error) {
	filing, assignments, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if filing.Status != filingdomain.FilingStatusReady {
		return nil, filingdomain.ErrFilingNotReady
	}

	performers, err := s.performersForRows(ctx, assignments)
	if err != nil {
		return nil, err
	}
	if err := validateForDocument(assignments, performers); err != nil {
		return nil, err
	}

	venue, err := s.optionalVenue(ctx, filing.VenueID)
	if err != nil {
		return nil, err
	}

	content, err := inpsxml.Serialize(inpsxml.SerializeInput{
		Filing:     *filing,
		Venue:      venue,
		Groups:     occupation.Build(assignments),
		Performers: performers,
		Agency: inpsxml.CompanyInfo{
			Name:               s.agency.Name,
			FiscalCode:         s.agency.FiscalCode,
			RegistrationNumber: s.agency.RegistrationNumber,
			LegalAddress:       s.agency.LegalAddress,
		},
		IsLegalRepresentative: s.directory.LegalRepresentativePredicate(ctx, filing.ClientID),
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.db.WithContext(ctx).Exec(
		`UPDATE filings SET document_generated_at = ?, updated_at = ? WHERE id = ?`,
		now, now, filing.ID,
	).Error
	if err != nil {
		return nil, err
	}

	return &filingdomain.GeneratedDocument{
		Filename: filing.Code + ".xml",
		Content:  content,
	}, nil
}

func (s *Service) MarkSubmitted(ctx context.Context, id snowflake.ID) error {
	filing, err := s.filings.FindOne(ctx, &filingdomain.Filing{ID: id})
	if err != nil {
		return err
	}
	if filing == nil {
		return filingdomain.ErrFilingNotFound
	}
	if filing.Status == filingdomain.FilingStatusSubmitted {
		return nil
	}
	if filing.Status != filingdomain.FilingStatusReady {
		return filingdomain.ErrFilingNotReady
	}

	now := time.Now().UTC()
	return s.db.WithContext(ctx).Exec(
		`UPDATE filings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		filingdomain.FilingStatusSubmitted, now, id, filingdomain.FilingStatusReady,
	).Error
}

func (s *Service) IngestOutcome(ctx context.Context, id snowflake.ID, outcome filingdomain.OutcomeIngestion) (*filingdomain.Filing, error) {
	status := filingdomain.FilingStatusFailed
	if strings.EqualFold(outcome.Outcome, "OK") {
		status = filingdomain.FilingStatusComplete
	}

	receivedAt := outcome.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The claim is a conditional update: a filing whose response is
		// already recorded cannot be taken by a second concurrent import.
		claim := tx.Exec(
			`UPDATE filings
			 SET status = ?, inps_outcome = ?, inps_error = ?,
			     inps_filing_id = ?, inps_occupation_id = ?, inps_period_id = ?,
			     response_hash = ?, response_at = ?, certificate_path = ?,
			     updated_at = ?
			 WHERE id = ? AND response_at IS NULL`,
			status,
			outcome.Outcome,
			outcome.ErrorText,
			outcome.FilingID,
			outcome.OccupationID,
			outcome.PeriodID,
			outcome.Hash,
			receivedAt,
			outcome.CertificatePath,
			receivedAt,
			id,
		)
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return filingdomain.ErrAlreadyProcessed
		}

		for _, worker := range outcome.Workers {
			if worker.WorkerID == nil {
				continue
			}
			if err := tx.Exec(
				`UPDATE performer_assignments
				 SET inps_worker_id = ?
				 WHERE filing_id = ? AND performer_id IN (
				 	SELECT id FROM performers WHERE UPPER(fiscal_code) = ?
				 )`,
				worker.WorkerID,
				id,
				strings.ToUpper(strings.TrimSpace(worker.FiscalCode)),
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Enrollment backfill is opportunistic; a failure here never undoes the
	// recorded outcome.
	for _, worker := range outcome.Workers {
		if err := s.directory.BackfillEnrollment(ctx, worker.FiscalCode, worker.EnrollmentNumber); err != nil {
			s.log.Warn("enrollment backfill failed",
				zap.String("fiscal_code", worker.FiscalCode),
				zap.Error(err),
			)
		}
	}

	filing, err := s.filings.FindOne(ctx, &filingdomain.Filing{ID: id})
	if err != nil {
		return nil, err
	}
	if filing == nil {
		return nil, filingdomain.ErrFilingNotFound
	}

	s.log.Info("filing outcome ingested",
		zap.String("filing_id", filing.ID.String()),
		zap.String("outcome", outcome.Outcome),
		zap.String("status", string(filing.Status)),
	)
	return filing, nil
}

func (s *Service) optionalVenue(ctx context.Context, id *snowflake.ID) (*directorydomain.Venue, error) {
	if id == nil {
		return nil, nil
	}
	return s.directory.GetVenue(ctx, *id)
}

func (s *Service) optionalClient(ctx context.Context, id *snowflake.ID) (*directorydomain.Client, error) {
	if id == nil {
		return nil, nil
	}
	return s.directory.GetClient(ctx, *id)
}

func (s *Service) performersFor(ctx context.Context, assignments []filingdomain.AssignmentInput) (map[snowflake.ID]directorydomain.Performer, error) {
	ids := make([]snowflake.ID, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.PerformerID)
	}
	return s.directory.GetPerformers(ctx, ids)
}

func (s *Service) performersForRows(ctx context.Context, rows []filingdomain.PerformerAssignment) (map[snowflake.ID]directorydomain.Performer, error) {
	ids := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.PerformerID)
	}
	return s.directory.GetPerformers(ctx, ids)
}

// buildAssignments derives compensation rows from the declared net fees,
// silently collapsing duplicate (performer, start date) pairs and keeping
// the first occurrence.
func (s *Service) buildAssignments(
	filingID snowflake.ID,
	inputs []filingdomain.AssignmentInput,
	performers map[snowflake.ID]directorydomain.Performer,
	client *directorydomain.Client,
	now time.Time,
) []filingdomain.PerformerAssignment {
	type dedupeKey struct {
		performer snowflake.ID
		start     string
	}
	seen := make(map[dedupeKey]bool, len(inputs))

	paymentStatus := filingdomain.PaymentStatusPending
	if client != nil && client.DeferPayments {
		paymentStatus = filingdomain.PaymentStatusDeferred
	}

	rows := make([]filingdomain.PerformerAssignment, 0, len(inputs))
	for _, in := range inputs {
		key := dedupeKey{performer: in.PerformerID, start: in.StartDate.Format("2006-01-02")}
		if seen[key] {
			continue
		}
		seen[key] = true

		performer := performers[in.PerformerID]
		pay := compensation.FromNet(in.NetFee, performer.HasBusinessInvoicing())

		end := in.EndDate
		if end.Before(in.StartDate) {
			end = in.StartDate
		}

		rows = append(rows, filingdomain.PerformerAssignment{
			ID:            s.genID.Generate(),
			FilingID:      filingID,
			PerformerID:   in.PerformerID,
			Qualification: in.Qualification,
			StartDate:     in.StartDate,
			EndDate:       end,
			Net:           pay.Net,
			Gross:         pay.Gross,
			Withholding:   pay.Withholding,
			PaymentStatus: paymentStatus,
			PaymentDueAt:  in.PaymentDueAt,
			CreatedAt:     now,
		})
	}
	return rows
}

// applyTotals recomputes aggregate totals and event dates from the rows.
// Totals are never mutated incrementally.
func applyTotals(filing *filingdomain.Filing, rows []filingdomain.PerformerAssignment, client *directorydomain.Client) {
	lines := make([]compensation.Breakdown, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, compensation.Breakdown{
			Net:         row.Net,
			Gross:       row.Gross,
			Withholding: row.Withholding,
		})
	}
	totals := compensation.Totals(lines)

	fee := decimal.Zero
	if client != nil {
		fee = client.AgencyFee
	}
	agencyFee := compensation.AgencyFeeTotal(fee, len(rows))

	filing.TotalNet = totals.Net
	filing.TotalGross = totals.Gross
	filing.TotalWithholding = totals.Withholding
	filing.AgencyFee = agencyFee
	filing.InvoiceAmount = totals.Gross.Add(agencyFee).Round(2)

	if len(rows) > 0 {
		start, end := rows[0].StartDate, rows[0].EndDate
		for _, row := range rows[1:] {
			if row.StartDate.Before(start) {
				start = row.StartDate
			}
			if row.EndDate.After(end) {
				end = row.EndDate
			}
		}
		filing.EventStart = start
		filing.EventEnd = end
	}
}

// evaluateReadiness applies the readiness rule: every performer has a fiscal
// code and birth date on file, and the venue carries a municipality code.
func evaluateReadiness(venue *directorydomain.Venue, performers map[snowflake.ID]directorydomain.Performer) filingdomain.FilingStatus {
	if venue == nil || strings.TrimSpace(venue.MunicipalityCode) == "" {
		return filingdomain.FilingStatusDraft
	}
	for _, performer := range performers {
		if strings.TrimSpace(performer.FiscalCode) == "" || performer.BirthDate == nil {
			return filingdomain.FilingStatusDraft
		}
	}
	return filingdomain.FilingStatusReady
}

func validateForDocument(rows []filingdomain.PerformerAssignment, performers map[snowflake.ID]directorydomain.Performer) error {
	var issues []filingdomain.FieldIssue
	for i, row := range rows {
		performer := performers[row.PerformerID]
		if strings.TrimSpace(performer.FiscalCode) == "" {
			issues = append(issues, filingdomain.FieldIssue{
				Field:   fmt.Sprintf("assignments[%d].fiscal_code", i),
				Code:    "missing_fiscal_code",
				Message: "performer has no fiscal code on file",
			})
		}
		if !row.Gross.IsPositive() {
			issues = append(issues, filingdomain.FieldIssue{
				Field:   fmt.Sprintf("assignments[%d].gross", i),
				Code:    "zero_gross_amount",
				Message: "assignment gross amount must be positive",
			})
		}
	}
	if len(issues) > 0 {
		return &filingdomain.ValidationError{Fields: issues}
	}
	return nil
}
