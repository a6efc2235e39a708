package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/supsol/poreview/internal/db"
	"github.com/supsol/poreview/internal/dispatch"
	"github.com/supsol/poreview/internal/guard"
	"github.com/supsol/poreview/internal/http/middleware"
	"github.com/supsol/poreview/internal/models"
	"github.com/supsol/poreview/internal/service"
)

type Store interface {
	Ping(ctx context.Context) error
	GetLatestRun(ctx context.Context, kind string) (models.Run, error)
}

type Reviewer interface {
	Run(ctx context.Context, opts service.RunOptions) (service.RunSummary, error)
	Status(ctx context.Context, wpq string) (service.POStatus, error)
	Cleanup(ctx context.Context, wpq string, olderThan time.Duration) (int, error)
	LogVendorResponse(ctx context.Context, wpq, text, englishText, requestID string) (dispatch.Outcome, error)
}

type Notifier interface {
	SendPending(ctx context.Context, env string) (service.NotificationSummary, error)
}

type Handler struct {
	Store          Store
	Reviewer       Reviewer
	Notifier       Notifier
	Validator      *validator.Validate
	Logger         zerolog.Logger
	RequestTimeout time.Duration
}

func (h *Handler) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.RequestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.RequestTimeout)
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /health [get]
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type RunRequest struct {
	WPQ       string `json:"wpq" form:"wpq" validate:"omitempty,max=64"`
	Cleanup   bool   `json:"cleanup" form:"cleanup"`
	TextLimit int    `json:"text_limit" form:"text_limit" validate:"omitempty,min=100,max=20000"`
}

// @Summary Run a review
// @Description Reviews all open POs, or one WPQ, and dispatches the actions that are due
// @Tags review
// @Accept json
// @Produce json
// @Param wpq query string false "WPQ number"
// @Param cleanup query bool false "Clear stale guard entries first"
// @Param text_limit query int false "Maximum text length"
// @Success 200 {object} service.RunSummary
// @Failure 400 {object} map[string]any
// @Failure 500 {object} map[string]any
// @Router /api/run-review [post]
func (h *Handler) RunReview(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid query", err.Error())
		return
	}
	if c.Request.Method == http.MethodPost && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
			return
		}
	}
	req.WPQ = strings.TrimSpace(req.WPQ)
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()
	summary, err := h.Reviewer.Run(ctx, service.RunOptions{
		WPQ:       req.WPQ,
		Cleanup:   req.Cleanup,
		TextLimit: req.TextLimit,
		RequestID: middleware.GetRequestID(c),
	})
	if err != nil {
		h.Logger.Error().Err(err).Msg("review run failed")
		writeError(c, http.StatusInternalServerError, "REVIEW_ERROR", "Review failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, summary)
}

// @Summary PO status
// @Tags review
// @Produce json
// @Param wpq query string true "WPQ number"
// @Success 200 {object} service.POStatus
// @Failure 404 {object} map[string]any
// @Router /api/status [get]
func (h *Handler) Status(c *gin.Context) {
	wpq := strings.TrimSpace(c.Query("wpq"))
	if wpq == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "wpq is required", nil)
		return
	}
	st, err := h.Reviewer.Status(c.Request.Context(), wpq)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "PO not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load status", err.Error())
		return
	}
	c.JSON(http.StatusOK, st)
}

type CleanupRequest struct {
	WPQ       string `json:"wpq" form:"wpq" validate:"omitempty,max=64"`
	OlderThan string `json:"older_than" form:"older_than"`
}

// @Summary Clear guard entries
// @Tags review
// @Accept json
// @Produce json
// @Param body body CleanupRequest false "Cleanup scope"
// @Success 200 {object} map[string]any
// @Router /api/cleanup [post]
func (h *Handler) Cleanup(c *gin.Context) {
	var req CleanupRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid query", err.Error())
		return
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
			return
		}
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	var olderThan time.Duration
	if req.OlderThan != "" {
		d, err := time.ParseDuration(req.OlderThan)
		if err != nil || d < 0 {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "older_than must be a duration such as 2h", req.OlderThan)
			return
		}
		olderThan = d
	}

	n, err := h.Reviewer.Cleanup(c.Request.Context(), strings.TrimSpace(req.WPQ), olderThan)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "GUARD_ERROR", "Cleanup failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": n})
}

type VendorResponseRequest struct {
	Text        string `json:"text" validate:"required,max=20000"`
	EnglishText string `json:"english_text" validate:"max=20000"`
}

// @Summary Log a vendor reply
// @Tags review
// @Accept json
// @Produce json
// @Param wpq path string true "WPQ number"
// @Param body body VendorResponseRequest true "Reply"
// @Success 200 {object} dispatch.Outcome
// @Failure 404 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/po/{wpq}/vendor-response [post]
func (h *Handler) VendorResponse(c *gin.Context) {
	wpq := c.Param("wpq")
	var req VendorResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	out, err := h.Reviewer.LogVendorResponse(c.Request.Context(), wpq, req.Text, req.EnglishText, middleware.GetRequestID(c))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "PO not found", nil)
			return
		}
		if errors.Is(err, guard.ErrHeld) {
			writeError(c, http.StatusConflict, "IN_PROGRESS", "PO is being reviewed, retry later", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to record response", err.Error())
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary Send pending WhatsApp notifications
// @Tags notifications
// @Produce json
// @Param env query string false "test or prod" default(test)
// @Success 200 {object} service.NotificationSummary
// @Failure 400 {object} map[string]any
// @Router /api/run-whatsapp [get]
func (h *Handler) RunWhatsApp(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()
	summary, err := h.Notifier.SendPending(ctx, c.DefaultQuery("env", service.EnvTest))
	if err != nil {
		if errors.Is(err, service.ErrInvalidEnv) {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid env", err.Error())
			return
		}
		h.Logger.Error().Err(err).Msg("notification batch failed")
		writeError(c, http.StatusInternalServerError, "NOTIFY_ERROR", "Notification batch failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, summary)
}

// @Summary Latest run
// @Tags runs
// @Produce json
// @Param kind query string false "review or whatsapp" default(review)
// @Success 200 {object} models.Run
// @Router /api/runs/latest [get]
func (h *Handler) RunsLatest(c *gin.Context) {
	result, err := h.Store.GetLatestRun(c.Request.Context(), c.DefaultQuery("kind", service.RunKindReview))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "No runs found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load run", err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
