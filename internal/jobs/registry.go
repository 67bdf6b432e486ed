package jobs

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// maxRunningPercentage keeps 100 reserved for completed jobs.
const maxRunningPercentage = 99

// Registry is the in-process source of truth for job state.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Snapshot
	now  func() time.Time
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry constructs an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{jobs: make(map[string]*Snapshot), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create inserts a running job at stage 0 and 0%. label is a short
// human-readable name for the job (used for download file names).
func (r *Registry) Create(id, clientID, label string, totalStages int) (Snapshot, error) {
	if strings.TrimSpace(id) == "" {
		return Snapshot{}, fmt.Errorf("job id is required")
	}
	if totalStages < 0 {
		totalStages = 0
	}
	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; ok {
		return Snapshot{}, fmt.Errorf("job %s: %w", id, ErrDuplicateJob)
	}
	snap := &Snapshot{
		ID:          id,
		ClientID:    clientID,
		Status:      StatusRunning,
		TotalStages: totalStages,
		Message:     "Initializing...",
		Label:       label,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.jobs[id] = snap
	return snap.copyOut(), nil
}

// Get returns the current snapshot for id.
func (r *Registry) Get(id string) (Snapshot, error) {
	r.mu.RLock()
	snap, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return snap.copyOut(), nil
}

// UpdateProgress overwrites the progress fields of a running job. Stage and
// percentage never decrease, and a running job never reports 100%.
func (r *Registry) UpdateProgress(id string, p Progress) (Snapshot, error) {
	return r.mutate(id, func(next *Snapshot) bool {
		before := *next
		if p.Stage > next.Stage {
			next.Stage = p.Stage
			next.StageName = p.StageName
		} else if p.Stage == next.Stage && p.StageName != "" {
			next.StageName = p.StageName
		}
		if next.TotalStages > 0 && next.Stage > next.TotalStages {
			next.Stage = next.TotalStages
		}
		pct := p.Percentage
		if pct > maxRunningPercentage {
			pct = maxRunningPercentage
		}
		if pct > next.Percentage {
			next.Percentage = pct
		}
		if p.Message != "" {
			next.Message = p.Message
		}
		if p.ETASeconds != nil {
			eta := *p.ETASeconds
			if eta < 0 {
				eta = 0
			}
			next.ETASeconds = &eta
		}
		return progressChanged(before, *next)
	})
}

// Complete marks the job completed with result and pins progress to 100%.
func (r *Registry) Complete(id, result, resultKey string) (Snapshot, error) {
	if result == "" {
		return Snapshot{}, fmt.Errorf("job %s: empty result", id)
	}
	return r.mutate(id, func(next *Snapshot) bool {
		at := r.now().UTC()
		zero := 0
		next.Status = StatusCompleted
		next.Percentage = 100
		next.Stage = next.TotalStages
		next.Message = "Your trip plan is ready!"
		next.ETASeconds = &zero
		next.Result = result
		next.ResultKey = resultKey
		next.CompletedAt = &at
		return true
	})
}

// Fail marks the job failed. Progress is left where it was.
func (r *Registry) Fail(id, description string) (Snapshot, error) {
	if strings.TrimSpace(description) == "" {
		description = "trip planning failed"
	}
	return r.mutate(id, func(next *Snapshot) bool {
		at := r.now().UTC()
		next.Status = StatusError
		next.Error = description
		next.Message = "Trip planning failed"
		next.ETASeconds = nil
		next.CompletedAt = &at
		return true
	})
}

// Prune drops terminal jobs that finished before cutoff and returns how many
// were removed. Running jobs are never pruned.
func (r *Registry) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, snap := range r.jobs {
		if snap.Status.Terminal() && snap.CompletedAt != nil && snap.CompletedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// mutate applies fn to a copy of the current snapshot and publishes it when
// fn reports a change.
func (r *Registry) mutate(id string, fn func(next *Snapshot) bool) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.jobs[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if cur.Status.Terminal() {
		return cur.copyOut(), fmt.Errorf("job %s is %s: %w", id, cur.Status, ErrInvalidTransition)
	}
	next := *cur
	if !fn(&next) {
		return cur.copyOut(), nil
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = r.now().UTC()
	r.jobs[id] = &next
	return next.copyOut(), nil
}

func progressChanged(a, b Snapshot) bool {
	if a.Stage != b.Stage || a.StageName != b.StageName || a.Percentage != b.Percentage || a.Message != b.Message {
		return true
	}
	if (a.ETASeconds == nil) != (b.ETASeconds == nil) {
		return true
	}
	return a.ETASeconds != nil && *a.ETASeconds != *b.ETASeconds
}
