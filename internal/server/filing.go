package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	filingdomain "github.com/palcoscenico/agibilita/internal/filing/domain"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type assignmentRequest struct {
	PerformerID   string `json:"performer_id" binding:"required"`
	Qualification string `json:"qualification"`
	StartDate     string `json:"start_date" binding:"required"`
	EndDate       string `json:"end_date"`
	NetFee        string `json:"net_fee" binding:"required"`
	PaymentDueAt  string `json:"payment_due_at"`
}

type createFilingRequest struct {
	Code        string              `json:"code"`
	VenueID     *string             `json:"venue_id"`
	ClientID    *string             `json:"client_id"`
	Notes       string              `json:"notes"`
	Assignments []assignmentRequest `json:"assignments" binding:"required"`
}

type replaceAssignmentsRequest struct {
	Assignments []assignmentRequest `json:"assignments" binding:"required"`
}

func (s *Server) CreateFiling(c *gin.Context) {
	var req createFilingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	venueID, err := parseOptionalID(req.VenueID)
	if err != nil {
		AbortWithError(c, newValidationError("venue_id", "invalid_id", "invalid venue id"))
		return
	}
	clientID, err := parseOptionalID(req.ClientID)
	if err != nil {
		AbortWithError(c, newValidationError("client_id", "invalid_id", "invalid client id"))
		return
	}
	assignments, err := parseAssignments(req.Assignments)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filing, err := s.filingSvc.Create(c.Request.Context(), filingdomain.CreateFilingRequest{
		Code:        req.Code,
		VenueID:     venueID,
		ClientID:    clientID,
		Notes:       req.Notes,
		Assignments: assignments,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"filing": filing})
}

func (s *Server) ListFilings(c *gin.Context) {
	var req filingdomain.ListFilingsRequest

	if raw := c.Query("status"); raw != "" {
		status := filingdomain.FilingStatus(raw)
		req.Status = &status
	}
	if raw := c.Query("venue_id"); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("venue_id", "invalid_id", "invalid venue id"))
			return
		}
		req.VenueID = &id
	}
	if raw := c.Query("client_id"); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("client_id", "invalid_id", "invalid client id"))
			return
		}
		req.ClientID = &id
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			AbortWithError(c, newValidationError("from", "invalid_date", "invalid from date"))
			return
		}
		req.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			AbortWithError(c, newValidationError("to", "invalid_date", "invalid to date"))
			return
		}
		req.To = &to
	}

	filings, err := s.filingSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"filings": filings})
}

func (s *Server) GetFiling(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid filing id"))
		return
	}

	filing, assignments, err := s.filingSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"filing":      filing,
		"assignments": assignments,
	})
}

func (s *Server) ReplaceAssignments(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid filing id"))
		return
	}

	var req replaceAssignmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	assignments, err := parseAssignments(req.Assignments)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filing, err := s.filingSvc.ReplaceAssignments(c.Request.Context(), id, assignments)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"filing": filing})
}

func (s *Server) DeleteFiling(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid filing id"))
		return
	}

	if err := s.filingSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) DownloadFilingDocument(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid filing id"))
		return
	}

	doc, err := s.filingSvc.GenerateDocument(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	c.Data(http.StatusOK, "application/xml; charset=utf-8", doc.Content)
}

func (s *Server) SubmitFiling(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid filing id"))
		return
	}

	if err := s.filingSvc.MarkSubmitted(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	filing, _, err := s.filingSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"filing": filing})
}

func parseAssignments(items []assignmentRequest) ([]filingdomain.AssignmentInput, error) {
	assignments := make([]filingdomain.AssignmentInput, 0, len(items))
	for i, item := range items {
		performerID, err := snowflake.ParseString(item.PerformerID)
		if err != nil {
			return nil, newValidationError(
				fmt.Sprintf("assignments[%d].performer_id", i), "invalid_id", "invalid performer id")
		}
		start, err := time.Parse(dateLayout, item.StartDate)
		if err != nil {
			return nil, newValidationError(
				fmt.Sprintf("assignments[%d].start_date", i), "invalid_date", "invalid start date")
		}
		end := start
		if item.EndDate != "" {
			end, err = time.Parse(dateLayout, item.EndDate)
			if err != nil {
				return nil, newValidationError(
					fmt.Sprintf("assignments[%d].end_date", i), "invalid_date", "invalid end date")
			}
		}
		netFee, err := decimal.NewFromString(item.NetFee)
		if err != nil || netFee.IsNegative() {
			return nil, newValidationError(
				fmt.Sprintf("assignments[%d].net_fee", i), "invalid_amount", "invalid net fee")
		}

		assignment := filingdomain.AssignmentInput{
			PerformerID:   performerID,
			Qualification: item.Qualification,
			StartDate:     start,
			EndDate:       end,
			NetFee:        netFee,
		}
		if item.PaymentDueAt != "" {
			dueAt, err := time.Parse(dateLayout, item.PaymentDueAt)
			if err != nil {
				return nil, newValidationError(
					fmt.Sprintf("assignments[%d].payment_due_at", i), "invalid_date", "invalid payment due date")
			}
			assignment.PaymentDueAt = &dueAt
		}
		assignments = append(assignments, assignment)
	}
	return assignments, nil
}

func parseOptionalID(raw *string) (*snowflake.ID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := snowflake.ParseString(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
