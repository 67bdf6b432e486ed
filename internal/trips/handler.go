package trips

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yodusanwo/ai-trip-planner/internal/jobs"
	"github.com/yodusanwo/ai-trip-planner/internal/quota"
	"github.com/yodusanwo/ai-trip-planner/internal/sanitize"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/server/respond"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/telemetry"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/util"
)

const (
	maxRequestBodyBytes = 64 << 10
	// ClientIDHeader carries the caller's identity when the body has none.
	ClientIDHeader = "X-Client-Id"
)

// Handler wires HTTP handlers to the trips service.
type Handler struct {
	Svc    *Service
	Stream StreamConfig
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, stream StreamConfig) *Handler {
	return &Handler{Svc: svc, Stream: stream.withDefaults()}
}

// RegisterRoutes attaches the submission route to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/trips", h.submit)
}

// RegisterPollingRoutes attaches the progress and result routes. They are
// registered separately so the router can put them behind the poll limiter.
func (h *Handler) RegisterPollingRoutes(rg *gin.RouterGroup) {
	rg.GET("/trips/:id/progress", h.getProgress)
	rg.GET("/trips/:id/progress/stream", h.streamSSE)
	rg.GET("/trips/:id/progress/ws", h.streamWS)
	rg.GET("/trips/:id/result", h.getResult)
	rg.GET("/trips/:id/result/download", h.downloadResult)
}

func (h *Handler) submit(c *gin.Context) {
	var req PlanRequest
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.writeDecodeError(c, err)
		return
	}

	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))
	sub, err := h.Svc.Submit(ctx, req, c.GetHeader(ClientIDHeader))
	if sub.ClientID != "" {
		c.Set("clientId", sub.ClientID)
	}
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}
	c.Set("jobId", sub.JobID)
	respond.OK(c, sub)
}

// writeDecodeError names the offending field when the body parsed but a
// value had the wrong JSON kind.
func (h *Handler) writeDecodeError(c *gin.Context, err error) {
	var verr *sanitize.ValidationError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &verr):
		h.writeSubmitError(c, verr)
	case errors.As(err, &typeErr) && typeErr.Field != "" && typeErr.Type != nil:
		h.writeSubmitError(c, sanitize.TypeMismatch(typeErr.Field, "%s must be a %s, got %s", typeErr.Field, typeErr.Type.Kind(), typeErr.Value))
	case errors.Is(err, io.EOF):
		respond.Error(c, http.StatusBadRequest, "validation_error", "request body is required", nil)
	default:
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
	}
}

func (h *Handler) writeSubmitError(c *gin.Context, err error) {
	var verr *sanitize.ValidationError
	var exceeded *quota.ExceededError
	switch {
	case errors.As(err, &verr):
		respond.Error(c, http.StatusBadRequest, "validation_error", verr.Message, []*sanitize.ValidationError{verr})
	case errors.As(err, &exceeded):
		c.Header("Retry-After", strconv.Itoa(exceeded.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, "quota_exceeded", exceeded.Message(), map[string]any{
			"limit":               exceeded.Limit,
			"cap":                 exceeded.Cap,
			"used":                exceeded.Used,
			"retry_after_seconds": exceeded.RetryAfterSeconds(),
		})
	case errors.Is(err, ErrNotConfigured):
		respond.Error(c, http.StatusInternalServerError, "configuration_error", "trip planner is not configured; contact the operator", nil)
	case errors.Is(err, jobs.ErrDuplicateJob), errors.Is(err, jobs.ErrInvalidTransition):
		telemetry.Error("trip.fault", map[string]any{
			"request_id": c.GetString("requestId"),
			"op":         "submit",
			"err":        err,
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start trip planning", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start trip planning", nil)
	}
}

func (h *Handler) lookup(c *gin.Context) (jobs.Snapshot, bool) {
	jobID := c.Param("id")
	c.Set("jobId", jobID)
	snap, err := h.Svc.Get(jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "trip not found", nil)
		} else {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load trip", nil)
		}
		return jobs.Snapshot{}, false
	}
	c.Set("clientId", snap.ClientID)
	return snap, true
}

func (h *Handler) getProgress(c *gin.Context) {
	snap, ok := h.lookup(c)
	if !ok {
		return
	}
	respond.OK(c, snap)
}

func (h *Handler) getResult(c *gin.Context) {
	snap, ok := h.lookup(c)
	if !ok || !h.requireCompleted(c, snap) {
		return
	}
	respond.OK(c, ResultResponse{
		JobID:       snap.ID,
		HTMLContent: snap.Result,
		CreatedAt:   snap.CreatedAt,
		CompletedAt: snap.CompletedAt,
	})
}

func (h *Handler) downloadResult(c *gin.Context) {
	snap, ok := h.lookup(c)
	if !ok || !h.requireCompleted(c, snap) {
		return
	}
	respond.Attachment(c, util.DownloadName(snap.Label, "trip_plan.html"), "text/html; charset=utf-8", []byte(snap.Result))
}

// requireCompleted writes 202 for running jobs and 500 for failed ones.
func (h *Handler) requireCompleted(c *gin.Context, snap jobs.Snapshot) bool {
	switch snap.Status {
	case jobs.StatusCompleted:
		return true
	case jobs.StatusError:
		respond.Error(c, http.StatusInternalServerError, "trip_failed", snap.Error, nil)
		return false
	default:
		retry := h.Stream.PollInterval.Seconds()
		if retry < 1 {
			retry = 1
		}
		c.Header("Retry-After", strconv.Itoa(int(retry)))
		respond.JSON(c, http.StatusAccepted, gin.H{
			"job_id":              snap.ID,
			"status":              snap.Status,
			"progress_percentage": snap.Percentage,
			"message":             snap.Message,
		})
		return false
	}
}
