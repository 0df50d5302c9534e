package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/alimgiray/gscout/internal/models"
	"github.com/alimgiray/gscout/internal/workers"
	"github.com/gin-gonic/gin"
)

type RunHandler struct {
	manager *workers.RunManager
	buffer  *workers.ResultBuffer
}

func NewRunHandler(manager *workers.RunManager, buffer *workers.ResultBuffer) *RunHandler {
	return &RunHandler{manager: manager, buffer: buffer}
}

// StartRun launches an acquisition run in the background
func (h *RunHandler) StartRun(c *gin.Context) {
	var opts models.RunOptions
	// An empty body starts a run with defaults
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
			respondMessage(c, http.StatusBadRequest, "Invalid request data: "+err.Error())
			return
		}
	}
	if opts.Mode == "" {
		opts.Mode = models.RunModeActiveLearning
	}
	if !opts.Mode.Valid() {
		respondMessage(c, http.StatusBadRequest, "mode must be heuristic or active_learning")
		return
	}
	if opts.Limit < 0 || opts.UncertaintyBand < 0 || opts.UncertaintyBand > 0.5 ||
		opts.PromisingThreshold < 0 || opts.PromisingThreshold > 1 {
		respondMessage(c, http.StatusBadRequest, "limit, uncertainty_band or promising_threshold out of range")
		return
	}

	runID, err := h.manager.Start(c.Request.Context(), opts)
	if errors.Is(err, workers.ErrRunInProgress) {
		respondError(c, http.StatusConflict, err)
		return
	}
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, err)
		return
	}

	respond(c, http.StatusAccepted, "run started", gin.H{"run_id": runID, "mode": opts.Mode})
}

// CancelRun cancels the active run, if any
func (h *RunHandler) CancelRun(c *gin.Context) {
	if !h.manager.Cancel() {
		respond(c, http.StatusOK, "no active run", gin.H{"cancelled": false})
		return
	}
	respond(c, http.StatusOK, "run cancelled", gin.H{"cancelled": true})
}

// Status returns the run state, the last finished report and how many results await draining
func (h *RunHandler) Status(c *gin.Context) {
	status := h.manager.Status()
	respond(c, http.StatusOK, "", gin.H{
		"state":           status.State,
		"active_run":      status.ActiveRun,
		"last_run":        status.LastRun,
		"pending_results": h.buffer.Len(),
	})
}

// Results drains the candidates produced since the last call
func (h *RunHandler) Results(c *gin.Context) {
	results := h.buffer.Drain()
	respond(c, http.StatusOK, "", gin.H{"count": len(results), "candidates": results})
}
