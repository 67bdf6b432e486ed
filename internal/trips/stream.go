package trips

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yodusanwo/ai-trip-planner/internal/jobs"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/metrics"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/telemetry"
)

const (
	defaultStreamPoll      = time.Second
	defaultStreamHeartbeat = 5 * time.Second
	wsWriteTimeout         = 10 * time.Second
)

// StreamConfig controls progress streams.
type StreamConfig struct {
	PollInterval   time.Duration
	Heartbeat      time.Duration
	AllowedOrigins []string
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultStreamPoll
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = defaultStreamHeartbeat
	}
	return c
}

// frameWriter is one transport for the progress loop.
type frameWriter interface {
	snapshot(snap jobs.Snapshot) error
	failure(message string) error
}

// pumpProgress polls get and writes a frame whenever the snapshot version
// changes, or re-sends the current snapshot when nothing was written for a
// heartbeat interval. It returns after a terminal snapshot, an unknown job,
// a write error or ctx cancellation. It never mutates job state.
func pumpProgress(ctx context.Context, get func() (jobs.Snapshot, error), cfg StreamConfig, w frameWriter) error {
	cfg = cfg.withDefaults()
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	var lastVersion uint64
	var lastWrite time.Time
	for {
		snap, err := get()
		if err != nil {
			msg := "failed to load trip"
			if errors.Is(err, jobs.ErrNotFound) {
				msg = "trip not found"
			}
			return w.failure(msg)
		}
		if snap.Version != lastVersion || time.Since(lastWrite) >= cfg.Heartbeat {
			if err := w.snapshot(snap); err != nil {
				return err
			}
			lastVersion = snap.Version
			lastWrite = time.Now()
		}
		if snap.Status.Terminal() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type sseWriter struct {
	c *gin.Context
}

func (w sseWriter) write(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w.c.Writer, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

func (w sseWriter) snapshot(snap jobs.Snapshot) error {
	return w.write("", snap)
}

func (w sseWriter) failure(message string) error {
	return w.write("error", gin.H{"error": message})
}

func (h *Handler) streamSSE(c *gin.Context) {
	jobID := c.Param("id")
	c.Set("jobId", jobID)
	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	metrics.StreamsOpen.WithLabelValues("sse").Inc()
	defer metrics.StreamsOpen.WithLabelValues("sse").Dec()

	err := pumpProgress(c.Request.Context(), func() (jobs.Snapshot, error) {
		return h.Svc.Get(jobID)
	}, h.Stream, sseWriter{c: c})
	logStreamEnd(c, "sse", err)
}

type wsWriter struct {
	conn *websocket.Conn
}

func (w wsWriter) snapshot(snap jobs.Snapshot) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(snap)
}

func (w wsWriter) failure(message string) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(gin.H{"event": "error", "error": message})
}

func (h *Handler) upgrader() websocket.Upgrader {
	allowed := h.Stream.AllowedOrigins
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, a := range allowed {
				if a == "*" || strings.EqualFold(a, origin) {
					return true
				}
			}
			return false
		},
	}
}

func (h *Handler) streamWS(c *gin.Context) {
	jobID := c.Param("id")
	c.Set("jobId", jobID)
	up := h.upgrader()
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		telemetry.Warn("trip.stream_upgrade_failed", map[string]any{
			"request_id": c.GetString("requestId"),
			"job_id":     jobID,
			"err":        err,
		})
		return
	}
	defer conn.Close()

	metrics.StreamsOpen.WithLabelValues("ws").Inc()
	defer metrics.StreamsOpen.WithLabelValues("ws").Dec()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	// The client never sends data; reading detects disconnects.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	err = pumpProgress(ctx, func() (jobs.Snapshot, error) {
		return h.Svc.Get(jobID)
	}, h.Stream, wsWriter{conn: conn})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	logStreamEnd(c, "ws", err)
}

func logStreamEnd(c *gin.Context, transport string, err error) {
	fields := map[string]any{
		"request_id": c.GetString("requestId"),
		"job_id":     c.GetString("jobId"),
		"transport":  transport,
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fields["err"] = err
	}
	telemetry.Info("trip.stream_closed", fields)
}
