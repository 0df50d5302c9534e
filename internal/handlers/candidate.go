package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/alimgiray/gscout/internal/models"
	"github.com/alimgiray/gscout/internal/repositories"
	"github.com/alimgiray/gscout/internal/services"
	"github.com/alimgiray/gscout/pkg/logger"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Follower manages the configured token's following list
type Follower interface {
	IsFollowing(ctx context.Context, login string) (bool, error)
	Follow(ctx context.Context, login string) error
	Unfollow(ctx context.Context, login string) error
}

type CandidateHandler struct {
	repo     *repositories.CandidateRepository
	follower Follower
}

func NewCandidateHandler(repo *repositories.CandidateRepository, follower Follower) *CandidateHandler {
	return &CandidateHandler{repo: repo, follower: follower}
}

func pageParams(c *gin.Context) (skip, limit int, err error) {
	skip, err = intQuery(c, "skip", 0)
	if err != nil {
		return 0, 0, err
	}
	limit, err = intQuery(c, "limit", defaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	if skip < 0 || limit <= 0 {
		return 0, 0, errors.New("skip must be >= 0 and limit > 0")
	}
	return skip, min(limit, maxPageSize), nil
}

func intQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return v, nil
}

// Uncertain lists unannotated candidates, highest model probability first
func (h *CandidateHandler) Uncertain(c *gin.Context) {
	skip, limit, err := pageParams(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	candidates, err := h.repo.ListUnannotated(c.Request.Context(), skip, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"count": len(candidates), "candidates": candidates})
}

// List pages through every stored candidate
func (h *CandidateHandler) List(c *gin.Context) {
	skip, limit, err := pageParams(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	ctx := c.Request.Context()
	candidates, err := h.repo.ListAll(ctx, skip, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	total, err := h.repo.Count(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{
		"total":      total,
		"skip":       skip,
		"limit":      limit,
		"candidates": candidates,
	})
}

// Search matches q against login and location
func (h *CandidateHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		respondMessage(c, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := intQuery(c, "limit", defaultPageSize)
	if err != nil || limit <= 0 {
		respondMessage(c, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	candidates, err := h.repo.Search(c.Request.Context(), q, min(limit, maxPageSize))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"count": len(candidates), "candidates": candidates})
}

// Get returns one stored candidate
func (h *CandidateHandler) Get(c *gin.Context) {
	candidate, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, sql.ErrNoRows) {
		respondMessage(c, http.StatusNotFound, "candidate not found")
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respond(c, http.StatusOK, "", candidate)
}

type annotationRequest struct {
	Annotation *int `json:"annotation" binding:"required"`
}

// Annotate records the reviewer's accept (1) or reject (0) label
func (h *CandidateHandler) Annotate(c *gin.Context) {
	id := c.Param("id")
	var req annotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "Invalid request data: "+err.Error())
		return
	}
	annotation := models.Annotation(*req.Annotation)
	if !annotation.Valid() {
		respondMessage(c, http.StatusBadRequest, "annotation must be 0 or 1")
		return
	}

	err := h.repo.SetAnnotation(c.Request.Context(), id, annotation)
	if errors.Is(err, sql.ErrNoRows) {
		respondMessage(c, http.StatusNotFound, "candidate not found")
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	logger.WithField("username", id).WithField("annotation", annotation.String()).Info("Candidate annotated")
	respond(c, http.StatusOK, "annotation saved", gin.H{"id": id, "annotation": annotation})
}

// Follow follows the candidate on GitHub unless the account already does
func (h *CandidateHandler) Follow(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	following, err := h.follower.IsFollowing(ctx, id)
	if err != nil {
		respondFollowError(c, err)
		return
	}
	if following {
		respond(c, http.StatusOK, "already followed", gin.H{"id": id, "following": true})
		return
	}

	if err := h.follower.Follow(ctx, id); err != nil {
		respondFollowError(c, err)
		return
	}
	logger.WithField("username", id).Info("Candidate followed")
	respond(c, http.StatusOK, "followed", gin.H{"id": id, "following": true})
}

// Unfollow stops following the candidate on GitHub
func (h *CandidateHandler) Unfollow(c *gin.Context) {
	id := c.Param("id")
	if err := h.follower.Unfollow(c.Request.Context(), id); err != nil {
		respondFollowError(c, err)
		return
	}
	logger.WithField("username", id).Info("Candidate unfollowed")
	respond(c, http.StatusOK, "unfollowed", gin.H{"id": id, "following": false})
}

func respondFollowError(c *gin.Context, err error) {
	if services.IsNotFound(err) {
		respondMessage(c, http.StatusNotFound, "GitHub user not found")
		return
	}
	respondError(c, http.StatusBadGateway, err)
}

// Reset deletes every stored candidate. Trained models are kept.
func (h *CandidateHandler) Reset(c *gin.Context) {
	deleted, err := h.repo.Reset(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	logger.WithField("deleted", deleted).Warn("Candidate store reset")
	respond(c, http.StatusOK, "candidates deleted", gin.H{"deleted": deleted})
}
