package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/palcoscenico/agibilita/internal/respimport"
)

// ImportResponses accepts a multipart upload of response archives and runs
// them as one batch. Per-archive failures are reported in the body, never as
// an HTTP error.
func (s *Server) ImportResponses(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		AbortWithError(c, newValidationError("archives", "invalid_upload", "expected multipart upload"))
		return
	}

	files := form.File["archives"]
	if len(files) == 0 {
		AbortWithError(c, newValidationError("archives", "missing_archives", "no archives uploaded"))
		return
	}

	archives := make([]respimport.Archive, 0, len(files))
	for _, file := range files {
		src, err := file.Open()
		if err != nil {
			AbortWithError(c, err)
			return
		}
		content, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			AbortWithError(c, err)
			return
		}
		archives = append(archives, respimport.Archive{
			Filename: file.Filename,
			Content:  content,
		})
	}

	report, err := s.importSvc.ImportBatch(c.Request.Context(), archives)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
