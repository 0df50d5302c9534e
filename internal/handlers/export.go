package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/alimgiray/gscout/internal/services"
	"github.com/gin-gonic/gin"
)

type ExportHandler struct {
	export *services.ExportService
}

func NewExportHandler(export *services.ExportService) *ExportHandler {
	return &ExportHandler{export: export}
}

// Export downloads the candidate table as csv, xlsx or json
func (h *ExportHandler) Export(c *gin.Context) {
	format, err := services.ParseExportFormat(c.Param("format"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	// Buffer so a failure can still produce a JSON error
	var buf bytes.Buffer
	if err := h.export.Export(c.Request.Context(), format, &buf); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	filename := fmt.Sprintf("candidates_%s.%s", time.Now().Format("20060102_150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}
