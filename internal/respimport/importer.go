// Package respimport processes downloaded authority response archives:
// parsing, matching back to local filings, certificate storage and
// notification fan-out.
package respimport

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/palcoscenico/agibilita/internal/config"
	directorydomain "github.com/palcoscenico/agibilita/internal/directory/domain"
	filingdomain "github.com/palcoscenico/agibilita/internal/filing/domain"
	"github.com/palcoscenico/agibilita/internal/inpsxml"
	"github.com/palcoscenico/agibilita/internal/observability/metrics"
	"github.com/palcoscenico/agibilita/internal/providers/email"
	"github.com/palcoscenico/agibilita/internal/providers/pdf"
	"github.com/palcoscenico/agibilita/internal/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Archive is one uploaded response archive.
type Archive struct {
	Filename string
	Content  []byte
}

// ArchiveResult is the per-archive outcome of a batch run.
type ArchiveResult struct {
	Filename   string `json:"filename"`
	FilingCode string `json:"filing_code,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	MatchedBy  string `json:"matched_by,omitempty"`
	Error      string `json:"error,omitempty"`
}

// BatchReport aggregates a batch run. A failed archive never aborts the
// batch; it is counted and reported.
type BatchReport struct {
	RunID             string          `json:"run_id"`
	Processed         int             `json:"processed"`
	Succeeded         int             `json:"succeeded"`
	Failed            int             `json:"failed"`
	NotificationsSent int             `json:"notifications_sent"`
	Results           []ArchiveResult `json:"results"`
}

type ServiceParam struct {
	fx.In

	Log       *zap.Logger
	Cfg       config.Config
	Flags     *config.NotificationConfigHolder
	Matcher   *reconcile.Matcher
	Filings   filingdomain.Service
	Directory directorydomain.Service
	Email     email.Provider
	PDF       pdf.Provider
	Metrics   *metrics.Metrics
}

type Service struct {
	log       *zap.Logger
	flags     *config.NotificationConfigHolder
	matcher   *reconcile.Matcher
	filings   filingdomain.Service
	directory directorydomain.Service
	email     email.Provider
	pdf       pdf.Provider
	metrics   *metrics.Metrics
	store     *CertificateStore

	agencyName string
}

func NewService(p ServiceParam) *Service {
	return &Service{
		log:        p.Log.Named("respimport.service"),
		flags:      p.Flags,
		matcher:    p.Matcher,
		filings:    p.Filings,
		directory:  p.Directory,
		email:      p.Email,
		pdf:        p.PDF,
		metrics:    p.Metrics,
		store:      NewCertificateStore(p.Cfg.UploadsRoot, p.Log.Named("respimport.store")),
		agencyName: p.Cfg.Agency.Name,
	}
}

// ImportBatch processes a batch of response archives. Notification flags
// are snapshotted once at the start so every archive in the batch sees the
// same view.
func (s *Service) ImportBatch(ctx context.Context, archives []Archive) (*BatchReport, error) {
	report := &BatchReport{RunID: uuid.NewString()}
	flags := s.flags.Get()

	log := s.log.With(zap.String("run_id", report.RunID))
	log.Info("response batch started", zap.Int("archives", len(archives)))

	for _, archive := range archives {
		result, notified := s.processArchive(ctx, archive, flags)
		report.Processed++
		report.NotificationsSent += notified
		if result.Error != "" {
			report.Failed++
			s.metrics.RecordArchiveFailed(ctx)
			log.Warn("archive failed",
				zap.String("filename", archive.Filename),
				zap.String("error", result.Error),
			)
		} else {
			report.Succeeded++
			s.metrics.RecordArchiveImported(ctx)
			log.Info("archive imported",
				zap.String("filename", archive.Filename),
				zap.String("filing_code", result.FilingCode),
				zap.String("outcome", result.Outcome),
				zap.String("matched_by", result.MatchedBy),
			)
		}
		report.Results = append(report.Results, result)
	}

	log.Info("response batch finished",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("notifications_sent", report.NotificationsSent),
	)
	return report, nil
}

func (s *Service) processArchive(ctx context.Context, archive Archive, flags config.NotificationConfig) (ArchiveResult, int) {
	result := ArchiveResult{Filename: archive.Filename}

	contents, err := readArchive(archive.Content)
	if err != nil {
		result.Error = err.Error()
		return result, 0
	}

	parsed, err := inpsxml.Deserialize(contents.OutcomeXML)
	if err != nil {
		result.Error = err.Error()
		return result, 0
	}
	result.Outcome = parsed.Outcome

	match, err := s.matcher.Resolve(ctx, parsed)
	if err != nil {
		result.Error = err.Error()
		return result, 0
	}
	result.MatchedBy = match.MatchedBy

	filing, assignments, err := s.filings.Get(ctx, match.FilingID)
	if err != nil {
		result.Error = err.Error()
		return result, 0
	}
	result.FilingCode = filing.Code

	venue, client, err := s.filingParties(ctx, filing)
	if err != nil {
		result.Error = err.Error()
		return result, 0
	}

	venueName := ""
	if venue != nil {
		venueName = venue.Name
	}
	clientCopyName := ""
	if client != nil && (venue == nil || venue.DefaultClientID == nil || *venue.DefaultClientID != client.ID) {
		clientCopyName = client.LegalName
	}

	certPath, err := s.store.Save(venueName, clientCopyName, filing.EventStart, contents.Certificate)
	if err != nil {
		result.Error = err.Error()
		return result, 0
	}

	ingestion := filingdomain.OutcomeIngestion{
		Outcome:         parsed.Outcome,
		ErrorText:       parsed.ErrorText,
		FilingID:        parsed.FilingID,
		OccupationID:    parsed.OccupationID,
		PeriodID:        parsed.PeriodID,
		Hash:            parsed.Hash,
		CertificatePath: certPath,
	}
	for _, worker := range parsed.Workers {
		ingestion.Workers = append(ingestion.Workers, filingdomain.WorkerIdentity{
			FiscalCode:       worker.FiscalCode,
			WorkerID:         worker.WorkerID,
			EnrollmentNumber: worker.EnrollmentNumber,
		})
	}

	updated, err := s.filings.IngestOutcome(ctx, match.FilingID, ingestion)
	if err != nil {
		result.Error = err.Error()
		return result, 0
	}
	s.metrics.RecordFilingIngested(ctx, parsed.Outcome)

	notified := 0
	if flags.Enabled && updated.Status == filingdomain.FilingStatusComplete {
		notified = s.notify(ctx, flags, updated, assignments, venue, client, contents)
	}

	return result, notified
}

func (s *Service) filingParties(ctx context.Context, filing *filingdomain.Filing) (*directorydomain.Venue, *directorydomain.Client, error) {
	var venue *directorydomain.Venue
	var client *directorydomain.Client
	var err error

	if filing.VenueID != nil {
		venue, err = s.directory.GetVenue(ctx, *filing.VenueID)
		if err != nil {
			return nil, nil, err
		}
	}
	if filing.ClientID != nil {
		client, err = s.directory.GetClient(ctx, *filing.ClientID)
		if err != nil {
			return nil, nil, err
		}
	}
	return venue, client, nil
}

// notify sends the post-import mail and returns how many messages went out.
// Failures are logged only; an archive whose filing is already recorded must
// not be reported as failed because a mail bounced. The certificate sheet
// covers every performer on the filing, so performer mail attaches it only
// when the filing has exactly one performer; the client mail always gets it.
func (s *Service) notify(
	ctx context.Context,
	flags config.NotificationConfig,
	filing *filingdomain.Filing,
	assignments []filingdomain.PerformerAssignment,
	venue *directorydomain.Venue,
	client *directorydomain.Client,
	contents *archiveContents,
) int {
	sent := 0
	certificate := email.Attachment{
		Filename:    contents.CertificateName,
		ContentType: "application/pdf",
		Content:     contents.Certificate,
	}

	venueName := "abroad"
	if venue != nil {
		venueName = venue.Name
	}

	if flags.NotifyPerformers {
		performers, err := s.assignmentPerformers(ctx, assignments)
		if err != nil {
			s.log.Warn("performer lookup for notification failed", zap.Error(err))
		} else {
			var performerAttachments []email.Attachment
			attachNote := ""
			if len(assignments) == 1 {
				performerAttachments = []email.Attachment{certificate}
				attachNote = " The certificate is attached."
			}
			for _, performer := range performers {
				address := strings.TrimSpace(performer.Email)
				if address == "" {
					continue
				}
				subject := fmt.Sprintf("Work permit confirmed — %s", filing.Code)
				htmlBody := fmt.Sprintf(
					"<p>Dear %s %s,</p><p>your work permit for %s (%s) has been confirmed.%s</p>",
					performer.FirstName, performer.LastName,
					venueName,
					filing.EventStart.Format("02/01/2006"),
					attachNote,
				)
				textBody := fmt.Sprintf(
					"Dear %s %s,\n\nyour work permit for %s (%s) has been confirmed.%s\n",
					performer.FirstName, performer.LastName,
					venueName,
					filing.EventStart.Format("02/01/2006"),
					attachNote,
				)
				if err := s.email.Send(ctx, []string{address}, subject, htmlBody, textBody, performerAttachments...); err != nil {
					s.log.Warn("performer notification failed",
						zap.String("email", address),
						zap.Error(err),
					)
					continue
				}
				sent++
			}
		}
	}

	if flags.NotifyClient && client != nil && strings.TrimSpace(client.Email) != "" {
		attachments := []email.Attachment{certificate}
		if summary := s.renderSummary(ctx, filing, assignments, venue, client); summary != nil {
			attachments = append(attachments, *summary)
		}
		subject := fmt.Sprintf("Work permit filed — %s", filing.Code)
		htmlBody := fmt.Sprintf(
			"<p>The work permit %s for %s has been confirmed by the authority. Certificate and summary are attached.</p>",
			filing.Code, venueName,
		)
		textBody := fmt.Sprintf(
			"The work permit %s for %s has been confirmed by the authority. Certificate and summary are attached.\n",
			filing.Code, venueName,
		)
		if err := s.email.Send(ctx, []string{client.Email}, subject, htmlBody, textBody, attachments...); err != nil {
			s.log.Warn("client notification failed",
				zap.String("email", client.Email),
				zap.Error(err),
			)
		} else {
			sent++
		}
	}

	s.metrics.RecordNotificationsSent(ctx, sent)
	return sent
}

func (s *Service) renderSummary(
	ctx context.Context,
	filing *filingdomain.Filing,
	assignments []filingdomain.PerformerAssignment,
	venue *directorydomain.Venue,
	client *directorydomain.Client,
) *email.Attachment {
	performers, err := s.assignmentPerformers(ctx, assignments)
	if err != nil {
		s.log.Warn("summary render skipped", zap.Error(err))
		return nil
	}

	data := pdf.SummaryData{
		AgencyName:       s.agencyName,
		FilingCode:       filing.Code,
		ClientName:       client.LegalName,
		EventDates:       fmt.Sprintf("%s – %s", filing.EventStart.Format("02/01/2006"), filing.EventEnd.Format("02/01/2006")),
		Outcome:          "Confirmed",
		TotalNet:         filing.TotalNet.StringFixed(2),
		TotalGross:       filing.TotalGross.StringFixed(2),
		TotalWithholding: filing.TotalWithholding.StringFixed(2),
		AgencyFee:        filing.AgencyFee.StringFixed(2),
		InvoiceAmount:    filing.InvoiceAmount.StringFixed(2),
	}
	if venue != nil {
		data.VenueName = venue.Name
	}
	for _, row := range assignments {
		performer := performers[row.PerformerID]
		data.Lines = append(data.Lines, pdf.SummaryLine{
			PerformerName: strings.TrimSpace(performer.FirstName + " " + performer.LastName),
			Qualification: row.Qualification,
			Dates:         fmt.Sprintf("%s – %s", row.StartDate.Format("02/01"), row.EndDate.Format("02/01")),
			Net:           row.Net.StringFixed(2),
			Gross:         row.Gross.StringFixed(2),
		})
	}

	reader, err := s.pdf.GenerateFilingSummary(ctx, data)
	if err != nil || reader == nil {
		if err != nil {
			s.log.Warn("summary render failed", zap.Error(err))
		}
		return nil
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		s.log.Warn("summary read failed", zap.Error(err))
		return nil
	}

	return &email.Attachment{
		Filename:    fmt.Sprintf("summary-%s.pdf", filing.Code),
		ContentType: "application/pdf",
		Content:     content,
	}
}

func (s *Service) assignmentPerformers(ctx context.Context, assignments []filingdomain.PerformerAssignment) (map[snowflake.ID]directorydomain.Performer, error) {
	ids := make([]snowflake.ID, 0, len(assignments))
	for _, row := range assignments {
		ids = append(ids, row.PerformerID)
	}
	return s.directory.GetPerformers(ctx, ids)
}
