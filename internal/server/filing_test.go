package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/palcoscenico/agibilita/internal/config"
	filingdomain "github.com/palcoscenico/agibilita/internal/filing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFilingService struct {
	created     *filingdomain.CreateFilingRequest
	getErr      error
	deleteErr   error
	document    *filingdomain.GeneratedDocument
	documentErr error
}

func (f *fakeFilingService) Create(ctx context.Context, req filingdomain.CreateFilingRequest) (*filingdomain.Filing, error) {
	f.created = &req
	return &filingdomain.Filing{ID: snowflake.ID(42), Code: req.Code, Status: filingdomain.FilingStatusReady}, nil
}

func (f *fakeFilingService) Get(ctx context.Context, id snowflake.ID) (*filingdomain.Filing, []filingdomain.PerformerAssignment, error) {
	if f.getErr != nil {
		return nil, nil, f.getErr
	}
	return &filingdomain.Filing{ID: id, Code: "AGB-42"}, nil, nil
}

func (f *fakeFilingService) List(ctx context.Context, req filingdomain.ListFilingsRequest) ([]filingdomain.Filing, error) {
	return []filingdomain.Filing{}, nil
}

func (f *fakeFilingService) ReplaceAssignments(ctx context.Context, id snowflake.ID, assignments []filingdomain.AssignmentInput) (*filingdomain.Filing, error) {
	return &filingdomain.Filing{ID: id}, nil
}

func (f *fakeFilingService) Delete(ctx context.Context, id snowflake.ID) error {
	return f.deleteErr
}

func (f *fakeFilingService) GenerateDocument(ctx context.Context, id snowflake.ID) (*filingdomain.GeneratedDocument, error) {
	if f.documentErr != nil {
		return nil, f.documentErr
	}
	return f.document, nil
}

func (f *fakeFilingService) MarkSubmitted(ctx context.Context, id snowflake.ID) error {
	return nil
}

func (f *fakeFilingService) IngestOutcome(ctx context.Context, id snowflake.ID, outcome filingdomain.OutcomeIngestion) (*filingdomain.Filing, error) {
	return &filingdomain.Filing{ID: id}, nil
}

func newTestServer(t *testing.T, filings filingdomain.Service) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	return NewServer(ServerParams{
		Gin:       NewEngine(zap.NewNop()),
		Cfg:       config.Config{Environment: "test"},
		FilingSvc: filings,
	})
}

func TestCreateFiling_ParsesRequest(t *testing.T) {
	fake := &fakeFilingService{}
	srv := newTestServer(t, fake)

	body := `{
		"code": "AGB-TEST",
		"assignments": [
			{"performer_id": "100", "qualification": "cantante", "start_date": "2026-03-01", "net_fee": "100"}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/filings", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, fake.created)
	assert.Equal(t, "AGB-TEST", fake.created.Code)
	require.Len(t, fake.created.Assignments, 1)
	assert.Equal(t, snowflake.ID(100), fake.created.Assignments[0].PerformerID)
	assert.Equal(t, "100", fake.created.Assignments[0].NetFee.String())
}

func TestCreateFiling_RejectsBadDate(t *testing.T) {
	srv := newTestServer(t, &fakeFilingService{})

	body := `{"assignments": [{"performer_id": "100", "start_date": "01/03/2026", "net_fee": "100"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/filings", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var payload errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "validation_error", payload.Error.Type)
	require.Len(t, payload.Error.Errors, 1)
	assert.Equal(t, "invalid_date", payload.Error.Errors[0].Code)
}

func TestGetFiling_NotFoundMapsTo404(t *testing.T) {
	srv := newTestServer(t, &fakeFilingService{getErr: filingdomain.ErrFilingNotFound})

	req := httptest.NewRequest(http.MethodGet, "/api/filings/42", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteFiling_InvoicedMapsToConflict(t *testing.T) {
	srv := newTestServer(t, &fakeFilingService{deleteErr: filingdomain.ErrFilingInvoiced})

	req := httptest.NewRequest(http.MethodDelete, "/api/filings/42", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDownloadFilingDocument(t *testing.T) {
	srv := newTestServer(t, &fakeFilingService{
		document: &filingdomain.GeneratedDocument{
			Filename: "AGB-42.xml",
			Content:  []byte(`<?xml version="1.0" encoding="UTF-8"?>`),
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/filings/42/document", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "AGB-42.xml")
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/xml")
}

func TestDownloadFilingDocument_ValidationErrorsListed(t *testing.T) {
	srv := newTestServer(t, &fakeFilingService{
		documentErr: &filingdomain.ValidationError{Fields: []filingdomain.FieldIssue{
			{Field: "assignments[0].fiscal_code", Code: "missing_fiscal_code", Message: "performer has no fiscal code on file"},
			{Field: "assignments[1].gross", Code: "zero_gross_amount", Message: "assignment gross amount must be positive"},
		}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/filings/42/document", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var payload errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Len(t, payload.Error.Errors, 2)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeFilingService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
