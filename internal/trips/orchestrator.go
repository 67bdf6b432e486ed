package trips

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yodusanwo/ai-trip-planner/internal/agents"
	"github.com/yodusanwo/ai-trip-planner/internal/events"
	"github.com/yodusanwo/ai-trip-planner/internal/jobs"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/metrics"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/storage/object"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/telemetry"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/util"
)

const (
	defaultProgressTick = 2 * time.Second
	defaultJobTimeout   = 10 * time.Minute
	archiveTimeout      = 30 * time.Second
	finalizingMessage   = "Finalizing your itinerary..."
	queuedMessage       = "Waiting for an available planner..."
)

// Orchestrator drives one job from dispatch to a terminal state. It is the
// only writer of that job's registry entry.
type Orchestrator struct {
	Registry *jobs.Registry
	Pipeline agents.Pipeline
	Stages   *StageTable
	Tick     time.Duration
	Timeout  time.Duration
	Archive  object.ObjectStore
	Events   events.Publisher

	now func() time.Time
}

type pipelineOutcome struct {
	raw string
	err error
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// Run executes the pipeline for jobID while a ticker reports estimated
// progress. The final write happens unconditionally after the pipeline
// returns, fails or times out.
func (o *Orchestrator) Run(ctx context.Context, jobID string, input agents.Input) {
	started := o.clock()
	metrics.TripsRunning.Inc()
	defer metrics.TripsRunning.Dec()

	snap, err := o.Registry.Get(jobID)
	if err != nil {
		o.fault(ctx, jobID, "lookup", err)
		return
	}
	o.logStatus(ctx, snap, "initializing->running", 0)
	o.publish(ctx, events.Event{Type: events.TypeStarted, JobID: jobID, ClientID: snap.ClientID, Status: string(jobs.StatusRunning)})

	defer func() {
		if r := recover(); r != nil {
			o.fail(ctx, snap, started, fmt.Errorf("orchestrator panic: %v", r))
		}
	}()

	if err := o.Pipeline.Ready(); err != nil {
		o.fail(ctx, snap, started, fmt.Errorf("%w: %v", ErrNotConfigured, err))
		return
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	tick := o.Tick
	if tick <= 0 {
		tick = defaultProgressTick
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	expected := o.Stages.Expected(input.Days)
	milestones := make(chan string, o.Stages.Len()+1)
	observer := agents.ObserverFunc(func(name string) {
		select {
		case milestones <- name:
		default:
		}
	})

	done := make(chan pipelineOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- pipelineOutcome{err: fmt.Errorf("pipeline panic: %v", r)}
			}
		}()
		raw, err := o.Pipeline.Run(runCtx, input, observer)
		done <- pipelineOutcome{raw: raw, err: err}
	}()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	floor := 0
	o.report(jobID, started, expected, floor)
	for {
		select {
		case name := <-milestones:
			if idx := o.Stages.IndexOf(name); idx > floor {
				floor = idx
			}
			o.report(jobID, started, expected, floor)
		case <-ticker.C:
			o.report(jobID, started, expected, floor)
		case out := <-done:
			ticker.Stop()
			if out.err == nil && runCtx.Err() != nil {
				out.err = runCtx.Err()
			}
			if errors.Is(out.err, context.DeadlineExceeded) {
				out.err = fmt.Errorf("%w after %s", ErrJobTimeout, timeout)
			}
			o.finish(ctx, snap, started, out)
			return
		case <-runCtx.Done():
			ticker.Stop()
			err := runCtx.Err()
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w after %s", ErrJobTimeout, timeout)
			}
			o.fail(ctx, snap, started, err)
			return
		}
	}
}

func (o *Orchestrator) report(jobID string, started time.Time, expected time.Duration, floor int) {
	elapsed := o.clock().Sub(started)
	est := o.Stages.At(elapsed, expected)
	if floor > est.Stage {
		est = o.Stages.Floor(floor, elapsed, expected)
	}
	eta := est.ETASeconds
	if _, err := o.Registry.UpdateProgress(jobID, jobs.Progress{
		Stage:      est.Stage,
		StageName:  est.StageName,
		Percentage: est.Percentage,
		Message:    est.Message,
		ETASeconds: &eta,
	}); err != nil {
		telemetry.Warn("trip.progress_write_failed", map[string]any{"job_id": jobID, "err": err})
	}
}

func (o *Orchestrator) finish(ctx context.Context, snap jobs.Snapshot, started time.Time, out pipelineOutcome) {
	if out.err != nil {
		o.fail(ctx, snap, started, out.err)
		return
	}

	last := o.Stages.Stages[o.Stages.Len()-1]
	zero := 0
	if _, err := o.Registry.UpdateProgress(snap.ID, jobs.Progress{
		Stage:      o.Stages.Len(),
		StageName:  last.Name,
		Percentage: last.End,
		Message:    finalizingMessage,
		ETASeconds: &zero,
	}); err != nil {
		o.fault(ctx, snap.ID, "finalize", err)
		return
	}

	html, err := cleanItinerary(out.raw)
	if err != nil {
		o.fail(ctx, snap, started, err)
		return
	}

	key := o.archive(ctx, snap, html)
	done, err := o.Registry.Complete(snap.ID, html, key)
	if err != nil {
		o.fault(ctx, snap.ID, "complete", err)
		return
	}
	elapsed := o.clock().Sub(started)
	metrics.TripsFinished.WithLabelValues(string(jobs.StatusCompleted)).Inc()
	metrics.TripDuration.Observe(elapsed.Seconds())
	o.logStatus(ctx, done, "running->completed", elapsed)
	o.publish(ctx, events.Event{
		Type:       events.TypeCompleted,
		JobID:      done.ID,
		ClientID:   done.ClientID,
		Status:     string(done.Status),
		ResultKey:  key,
		DurationMs: elapsed.Milliseconds(),
	})
}

func (o *Orchestrator) fail(ctx context.Context, snap jobs.Snapshot, started time.Time, cause error) {
	failed, err := o.Registry.Fail(snap.ID, sanitizeError(cause))
	if err != nil {
		o.fault(ctx, snap.ID, "fail", err)
		return
	}
	elapsed := o.clock().Sub(started)
	metrics.TripsFinished.WithLabelValues(string(jobs.StatusError)).Inc()
	metrics.TripDuration.Observe(elapsed.Seconds())
	o.logStatus(ctx, failed, "running->error", elapsed)
	o.publish(ctx, events.Event{
		Type:       events.TypeFailed,
		JobID:      failed.ID,
		ClientID:   failed.ClientID,
		Status:     string(failed.Status),
		Error:      failed.Error,
		DurationMs: elapsed.Milliseconds(),
	})
}

// archive stores a copy of the itinerary. Failures are logged and the job
// still completes without a key.
func (o *Orchestrator) archive(ctx context.Context, snap jobs.Snapshot, html string) string {
	if o.Archive == nil {
		return ""
	}
	key, err := object.Key(snap.ClientID, snap.ID, util.DownloadName(snap.Label, "trip_plan.html"))
	if err != nil {
		telemetry.Warn("trip.archive_failed", map[string]any{"job_id": snap.ID, "err": err})
		return ""
	}
	actx, cancel := context.WithTimeout(detach(ctx), archiveTimeout)
	defer cancel()
	size, err := o.Archive.Put(actx, key, "text/html; charset=utf-8", bytes.NewReader([]byte(html)))
	if err != nil {
		telemetry.Warn("trip.archive_failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"job_id":     snap.ID,
			"err":        err,
		})
		return ""
	}
	telemetry.Info("trip.archived", map[string]any{"job_id": snap.ID, "key": key, "size_bytes": size})
	return key
}

func (o *Orchestrator) publish(ctx context.Context, ev events.Event) {
	if o.Events == nil {
		return
	}
	ev.At = o.clock().UTC()
	if err := o.Events.Publish(detach(ctx), ev); err != nil {
		telemetry.Warn("trip.event_publish_failed", map[string]any{"job_id": ev.JobID, "type": ev.Type, "err": err})
	}
}

func (o *Orchestrator) logStatus(ctx context.Context, snap jobs.Snapshot, transition string, elapsed time.Duration) {
	fields := map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"job_id":            snap.ID,
		"client_id":         snap.ClientID,
		"status":            snap.Status,
		"status_transition": transition,
	}
	if elapsed > 0 {
		fields["duration_ms"] = elapsed.Milliseconds()
	}
	if snap.Error != "" {
		fields["error"] = snap.Error
	}
	telemetry.Info("trip.status", fields)
}

// fault logs a registry invariant violation; these indicate a bug.
func (o *Orchestrator) fault(ctx context.Context, jobID, op string, err error) {
	telemetry.Error("trip.fault", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"job_id":     jobID,
		"op":         op,
		"err":        err,
	})
}
