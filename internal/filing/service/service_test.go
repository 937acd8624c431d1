package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/palcoscenico/agibilita/internal/config"
	directorydomain "github.com/palcoscenico/agibilita/internal/directory/domain"
	directoryservice "github.com/palcoscenico/agibilita/internal/directory/service"
	filingdomain "github.com/palcoscenico/agibilita/internal/filing/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	node   *snowflake.Node
	svc    filingdomain.Service
	venue  directorydomain.Venue
	client directorydomain.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&directorydomain.Venue{},
		&directorydomain.Client{},
		&directorydomain.Performer{},
		&filingdomain.Filing{},
		&filingdomain.PerformerAssignment{},
	)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	directory := directoryservice.NewService(directoryservice.ServiceParam{
		DB:  db,
		Log: log,
	})

	f := &fixture{db: db, node: node}

	f.client = directorydomain.Client{
		ID:        node.Generate(),
		LegalName: "Comune di Bologna",
		AgencyFee: decimal.RequireFromString("10.00"),
	}
	require.NoError(t, db.Create(&f.client).Error)

	f.venue = directorydomain.Venue{
		ID:               node.Generate(),
		Name:             "Teatro Centrale",
		City:             "Bologna",
		MunicipalityCode: "A944",
		DefaultClientID:  &f.client.ID,
	}
	require.NoError(t, db.Create(&f.venue).Error)

	f.svc = NewService(ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
		Cfg: config.Config{
			Agency: config.AgencyConfig{
				Name:               "Palcoscenico SRL",
				FiscalCode:         "01234567890",
				RegistrationNumber: "7700123456",
			},
		},
		Directory: directory,
	})
	return f
}

func (f *fixture) seedPerformer(t *testing.T, fiscalCode string, contract directorydomain.ContractType) directorydomain.Performer {
	t.Helper()
	birth := time.Date(1985, 6, 15, 0, 0, 0, 0, time.UTC)
	performer := directorydomain.Performer{
		ID:           f.node.Generate(),
		FirstName:    "Maria",
		LastName:     "Rossi",
		FiscalCode:   fiscalCode,
		BirthDate:    &birth,
		ContractType: contract,
	}
	require.NoError(t, f.db.Create(&performer).Error)
	return performer
}

func uniqueCode(node *snowflake.Node) string {
	return fmt.Sprintf("AGB-%d", node.Generate())
}

func day(value string) time.Time {
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TestCreate_TotalsMatchAssignmentRows(t *testing.T) {
	f := newFixture(t)
	occasional := f.seedPerformer(t, "RSSMRA80A41A944X", directorydomain.ContractOccasional)
	business := f.seedPerformer(t, "VRDLGI85C15F205Z", directorydomain.ContractBusiness)

	filing, err := f.svc.Create(context.Background(), filingdomain.CreateFilingRequest{
		Code:     uniqueCode(f.node),
		VenueID:  &f.venue.ID,
		ClientID: &f.client.ID,
		Assignments: []filingdomain.AssignmentInput{
			{PerformerID: occasional.ID, Qualification: "cantante", StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("100")},
			{PerformerID: business.ID, Qualification: "dj", StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("200")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, filingdomain.FilingStatusReady, filing.Status)
	assert.Equal(t, "300.00", filing.TotalNet.StringFixed(2))
	assert.Equal(t, "325.00", filing.TotalGross.StringFixed(2))
	assert.Equal(t, "25.00", filing.TotalWithholding.StringFixed(2))
	assert.Equal(t, "20.00", filing.AgencyFee.StringFixed(2))
	assert.Equal(t, "345.00", filing.InvoiceAmount.StringFixed(2))

	var rows []filingdomain.PerformerAssignment
	require.NoError(t, f.db.Where("filing_id = ?", filing.ID).Find(&rows).Error)
	require.Len(t, rows, 2)

	sumGross := decimal.Zero
	for _, row := range rows {
		sumGross = sumGross.Add(row.Gross)
	}
	assert.True(t, sumGross.Round(2).Equal(filing.TotalGross))
}

func TestCreate_DraftWhenPerformerDataMissing(t *testing.T) {
	f := newFixture(t)
	performer := directorydomain.Performer{
		ID:         f.node.Generate(),
		FirstName:  "Luigi",
		LastName:   "Verdi",
		FiscalCode: "",
	}
	require.NoError(t, f.db.Create(&performer).Error)

	filing, err := f.svc.Create(context.Background(), filingdomain.CreateFilingRequest{
		Code:    uniqueCode(f.node),
		VenueID: &f.venue.ID,
		Assignments: []filingdomain.AssignmentInput{
			{PerformerID: performer.ID, StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("100")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, filingdomain.FilingStatusDraft, filing.Status)
}

func TestCreate_DedupesSamePerformerSameDay(t *testing.T) {
	f := newFixture(t)
	performer := f.seedPerformer(t, "RSSMRA80A41A944X", directorydomain.ContractOccasional)

	filing, err := f.svc.Create(context.Background(), filingdomain.CreateFilingRequest{
		Code:    uniqueCode(f.node),
		VenueID: &f.venue.ID,
		Assignments: []filingdomain.AssignmentInput{
			{PerformerID: performer.ID, StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("100")},
			{PerformerID: performer.ID, StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("999")},
		},
	})
	require.NoError(t, err)

	var rows []filingdomain.PerformerAssignment
	require.NoError(t, f.db.Where("filing_id = ?", filing.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	// First occurrence wins.
	assert.Equal(t, "100.00", rows[0].Net.StringFixed(2))
}

func TestCreate_NoAssignments(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), filingdomain.CreateFilingRequest{
		Code: uniqueCode(f.node),
	})
	assert.ErrorIs(t, err, filingdomain.ErrNoAssignments)
}

func TestReplaceAssignments_RewritesRowsAndTotals(t *testing.T) {
	f := newFixture(t)
	first := f.seedPerformer(t, "RSSMRA80A41A944X", directorydomain.ContractOccasional)
	second := f.seedPerformer(t, "VRDLGI85C15F205Z", directorydomain.ContractOccasional)

	filing, err := f.svc.Create(context.Background(), filingdomain.CreateFilingRequest{
		Code:     uniqueCode(f.node),
		VenueID:  &f.venue.ID,
		ClientID: &f.client.ID,
		Assignments: []filingdomain.AssignmentInput{
			{PerformerID: first.ID, StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("100")},
		},
	})
	require.NoError(t, err)

	updated, err := f.svc.ReplaceAssignments(context.Background(), filing.ID, []filingdomain.AssignmentInput{
		{PerformerID: first.ID, StartDate: day("2026-03-02"), EndDate: day("2026-03-02"), NetFee: decimal.RequireFromString("80")},
		{PerformerID: second.ID, StartDate: day("2026-03-02"), EndDate: day("2026-03-03"), NetFee: decimal.RequireFromString("80")},
	})
	require.NoError(t, err)

	assert.Equal(t, "160.00", updated.TotalNet.StringFixed(2))
	assert.Equal(t, "200.00", updated.TotalGross.StringFixed(2))
	assert.Equal(t, day("2026-03-02"), updated.EventStart)
	assert.Equal(t, day("2026-03-03"), updated.EventEnd)

	var rows []filingdomain.PerformerAssignment
	require.NoError(t, f.db.Where("filing_id = ?", filing.ID).Find(&rows).Error)
	assert.Len(t, rows, 2)

	var stored filingdomain.Filing
	require.NoError(t, f.db.First(&stored, "id = ?", filing.ID).Error)
	assert.Equal(t, "160.00", stored.TotalNet.StringFixed(2))
}

func TestReplaceAssignments_DegradedFilingBecomesIncomplete(t *testing.T) {
	f := newFixture(t)
	complete := f.seedPerformer(t, "RSSMRA80A41A944X", directorydomain.ContractOccasional)
	incomplete := directorydomain.Performer{ID: f.node.Generate(), FirstName: "Luigi"}
	require.NoError(t, f.db.Create(&incomplete).Error)

	filing, err := f.svc.Create(context.Background(), filingdomain.CreateFilingRequest{
		Code:    uniqueCode(f.node),
		VenueID: &f.venue.ID,
		Assignments: []filingdomain.AssignmentInput{
			{PerformerID: complete.ID, StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("100")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, filingdomain.FilingStatusReady, filing.Status)

	updated, err := f.svc.ReplaceAssignments(context.Background(), filing.ID, []filingdomain.AssignmentInput{
		{PerformerID: incomplete.ID, StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("100")},
	})
	require.NoError(t, err)
	assert.Equal(t, filingdomain.FilingStatusIncompleteData, updated.Status)
}

func TestReplaceAssignments_RefusesSubmitted(t *testing.T) {
	f := newFixture(t)
	performer := f.seedPerformer(t, "RSSMRA80A41A944X", directorydomain.ContractOccasional)

	filing, err := f.svc.Create(context.Background(), filingdomain.CreateFilingRequest{
		Code:    uniqueCode(f.node),
		VenueID: &f.venue.ID,
		Assignments: []filingdomain.AssignmentInput{
			{PerformerID: performer.ID, StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("100")},
		},
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkSubmitted(context.Background(), filing.ID))

	_, err = f.svc.ReplaceAssignments(context.Background(), filing.ID, []filingdomain.AssignmentInput{
		{PerformerID: performer.ID, StartDate: day("2026-03-05"), EndDate: day("2026-03-05"), NetFee: decimal.RequireFromString("50")},
	})
	assert.ErrorIs(t, err, filingdomain.ErrFilingSubmitted)
}

func TestDelete_RefusesInvoicedFiling(t *testing.T) {
	f := newFixture(t)
	performer := f.seedPerformer(t, "RSSMRA80A41A944X", directorydomain.ContractOccasional)

	filing, err := f.svc.Create(context.Background(), filingdomain.CreateFilingRequest{
		Code:    uniqueCode(f.node),
		VenueID: &f.venue.ID,
		Assignments: []filingdomain.AssignmentInput{
			{PerformerID: performer.ID, StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("100")},
		},
	})
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&filingdomain.Filing{}).
		Where("id = ?", filing.ID).
		Update("invoice_status", filingdomain.InvoiceStatusInvoiced).Error)

	err = f.svc.Delete(context.Background(), filing.ID)
	assert.ErrorIs(t, err, filingdomain.ErrFilingInvoiced)
}

func TestDelete_RemovesFilingAndRows(t *testing.T) {
	f := newFixture(t)
	performer := f.seedPerformer(t, "RSSMRA80A41A944X", directorydomain.ContractOccasional)

	filing, err := f.svc.Create(context.Background(), filingdomain.CreateFilingRequest{
		Code:    uniqueCode(f.node),
		VenueID: &f.venue.ID,
		Assignments: []filingdomain.AssignmentInput{
			{PerformerID: performer.ID, StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("100")},
		},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), filing.ID))

	var count int64
	require.NoError(t, f.db.Model(&filingdomain.PerformerAssignment{}).
		Where("filing_id = ?", filing.ID).Count(&count).Error)
	assert.Zero(t, count)

	_, _, err = f.svc.Get(context.Background(), filing.ID)
	assert.ErrorIs(t, err, filingdomain.ErrFilingNotFound)
}

func TestMarkSubmitted_Lifecycle(t *testing.T) {
	f := newFixture(t)
	performer := f.seedPerformer(t, "RSSMRA80A41A944X", directorydomain.ContractOccasional)

	filing, err := f.svc.Create(context.Background(), filingdomain.CreateFilingRequest{
		Code:    uniqueCode(f.node),
		VenueID: &f.venue.ID,
		Assignments: []filingdomain.AssignmentInput{
			{PerformerID: performer.ID, StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("100")},
		},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkSubmitted(context.Background(), filing.ID))
	// Repeating the call is a no-op, not an error.
	require.NoError(t, f.svc.MarkSubmitted(context.Background(), filing.ID))

	stored, _, err := f.svc.Get(context.Background(), filing.ID)
	require.NoError(t, err)
	assert.Equal(t, filingdomain.FilingStatusSubmitted, stored.Status)
}

func TestMarkSubmitted_RequiresReady(t *testing.T) {
	f := newFixture(t)
	performer := directorydomain.Performer{ID: f.node.Generate(), FirstName: "Luigi"}
	require.NoError(t, f.db.Create(&performer).Error)

	filing, err := f.svc.Create(context.Background(), filingdomain.CreateFilingRequest{
		Code:    uniqueCode(f.node),
		VenueID: &f.venue.ID,
		Assignments: []filingdomain.AssignmentInput{
			{PerformerID: performer.ID, StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("100")},
		},
	})
	require.NoError(t, err)

	err = f.svc.MarkSubmitted(context.Background(), filing.ID)
	assert.ErrorIs(t, err, filingdomain.ErrFilingNotReady)
}

func TestGenerateDocument(t *testing.T) {
	f := newFixture(t)
	performer := f.seedPerformer(t, "RSSMRA80A41A944X", directorydomain.ContractOccasional)

	filing, err := f.svc.Create(context.Background(), filingdomain.CreateFilingRequest{
		Code:    uniqueCode(f.node),
		VenueID: &f.venue.ID,
		Assignments: []filingdomain.AssignmentInput{
			{PerformerID: performer.ID, Qualification: "cantante", StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("100")},
		},
	})
	require.NoError(t, err)

	doc, err := f.svc.GenerateDocument(context.Background(), filing.ID)
	require.NoError(t, err)

	assert.Equal(t, filing.Code+".xml", doc.Filename)
	assert.Contains(t, string(doc.Content), "<codiceFiscale>RSSMRA80A41A944X</codiceFiscale>")
	assert.Contains(t, string(doc.Content), "<retribuzioneGiornaliera>125,00</retribuzioneGiornaliera>")

	stored, _, err := f.svc.Get(context.Background(), filing.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.DocumentGeneratedAt)
}

func TestGenerateDocument_RequiresReady(t *testing.T) {
	f := newFixture(t)
	performer := directorydomain.Performer{ID: f.node.Generate(), FirstName: "Luigi"}
	require.NoError(t, f.db.Create(&performer).Error)

	filing, err := f.svc.Create(context.Background(), filingdomain.CreateFilingRequest{
		Code:    uniqueCode(f.node),
		VenueID: &f.venue.ID,
		Assignments: []filingdomain.AssignmentInput{
			{PerformerID: performer.ID, StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("100")},
		},
	})
	require.NoError(t, err)

	_, err = f.svc.GenerateDocument(context.Background(), filing.ID)
	assert.ErrorIs(t, err, filingdomain.ErrFilingNotReady)
}

func TestIngestOutcome_ClaimAndComplete(t *testing.T) {
	f := newFixture(t)
	performer := f.seedPerformer(t, "RSSMRA80A41A944X", directorydomain.ContractOccasional)

	filing, err := f.svc.Create(context.Background(), filingdomain.CreateFilingRequest{
		Code:    uniqueCode(f.node),
		VenueID: &f.venue.ID,
		Assignments: []filingdomain.AssignmentInput{
			{PerformerID: performer.ID, StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("100")},
		},
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkSubmitted(context.Background(), filing.ID))

	filingAuthorityID := int64(443267)
	workerID := int64(712001)
	updated, err := f.svc.IngestOutcome(context.Background(), filing.ID, filingdomain.OutcomeIngestion{
		Outcome:         "OK",
		FilingID:        &filingAuthorityID,
		Hash:            "a1b2c3d4",
		CertificatePath: "uploads/venues/teatro-centrale/filings/cert.pdf",
		Workers: []filingdomain.WorkerIdentity{
			{FiscalCode: "RSSMRA80A41A944X", WorkerID: &workerID, EnrollmentNumber: "9900112233"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, filingdomain.FilingStatusComplete, updated.Status)
	require.NotNil(t, updated.INPSFilingID)
	assert.Equal(t, filingAuthorityID, *updated.INPSFilingID)
	assert.NotNil(t, updated.ResponseAt)
	require.NotNil(t, updated.CertificatePath)

	var row filingdomain.PerformerAssignment
	require.NoError(t, f.db.First(&row, "filing_id = ?", filing.ID).Error)
	require.NotNil(t, row.INPSWorkerID)
	assert.Equal(t, workerID, *row.INPSWorkerID)

	var storedPerformer directorydomain.Performer
	require.NoError(t, f.db.First(&storedPerformer, "id = ?", performer.ID).Error)
	assert.Equal(t, "9900112233", storedPerformer.INPSEnrollmentNumber)

	// A second ingest for the same filing cannot claim it again.
	_, err = f.svc.IngestOutcome(context.Background(), filing.ID, filingdomain.OutcomeIngestion{Outcome: "OK"})
	assert.ErrorIs(t, err, filingdomain.ErrAlreadyProcessed)
}

func TestIngestOutcome_FailureKeepsErrorText(t *testing.T) {
	f := newFixture(t)
	performer := f.seedPerformer(t, "RSSMRA80A41A944X", directorydomain.ContractOccasional)

	filing, err := f.svc.Create(context.Background(), filingdomain.CreateFilingRequest{
		Code:    uniqueCode(f.node),
		VenueID: &f.venue.ID,
		Assignments: []filingdomain.AssignmentInput{
			{PerformerID: performer.ID, StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("100")},
		},
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkSubmitted(context.Background(), filing.ID))

	reason := "codice fiscale non valido"
	updated, err := f.svc.IngestOutcome(context.Background(), filing.ID, filingdomain.OutcomeIngestion{
		Outcome:   "KO",
		ErrorText: &reason,
	})
	require.NoError(t, err)

	assert.Equal(t, filingdomain.FilingStatusFailed, updated.Status)
	require.NotNil(t, updated.INPSError)
	assert.Equal(t, reason, *updated.INPSError)

	// Editing a failed filing re-opens the submission cycle.
	resubmitted, err := f.svc.ReplaceAssignments(context.Background(), filing.ID, []filingdomain.AssignmentInput{
		{PerformerID: performer.ID, StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), NetFee: decimal.RequireFromString("100")},
	})
	require.NoError(t, err)
	assert.Nil(t, resubmitted.ResponseAt)
	assert.Equal(t, filingdomain.FilingStatusReady, resubmitted.Status)
}
