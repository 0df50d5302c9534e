package handlers

import (
	"errors"
	"net/http"

	"github.com/alimgiray/gscout/internal/services"
	"github.com/gin-gonic/gin"
)

type ModelHandler struct {
	models *services.ModelService
}

func NewModelHandler(models *services.ModelService) *ModelHandler {
	return &ModelHandler{models: models}
}

// Retrain fits a new classifier on every annotated candidate
func (h *ModelHandler) Retrain(c *gin.Context) {
	artifact, err := h.models.Train(c.Request.Context())
	if errors.Is(err, services.ErrNoLabeledData) {
		respondError(c, http.StatusUnprocessableEntity, err)
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	respond(c, http.StatusOK, "model retrained", gin.H{
		"artifact_id": artifact.ID,
		"trained_on":  artifact.TrainedOn,
		"classes":     artifact.Classes,
		"created_at":  artifact.CreatedAt,
	})
}

// Current describes the registered model without its state
func (h *ModelHandler) Current(c *gin.Context) {
	model, err := h.models.CurrentModel(c.Request.Context())
	if errors.Is(err, services.ErrModelNotFound) {
		respondError(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respond(c, http.StatusOK, "", model.Artifact)
}
