package handlers

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	db *sql.DB
}

func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health reports whether the store is reachable
func (h *HealthHandler) Health(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		respondError(c, http.StatusServiceUnavailable, err)
		return
	}
	respond(c, http.StatusOK, "ok", gin.H{"status": "healthy"})
}
