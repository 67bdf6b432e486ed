package jobs

import "time"

// Status is the lifecycle state of a job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Snapshot is an immutable view of a job. The registry never modifies a
// published Snapshot; each mutation publishes a new one with Version bumped.
type Snapshot struct {
	ID          string     `json:"job_id"`
	ClientID    string     `json:"client_id"`
	Status      Status     `json:"status"`
	Stage       int        `json:"current_stage"`
	StageName   string     `json:"current_agent,omitempty"`
	TotalStages int        `json:"total_stages"`
	Percentage  int        `json:"progress_percentage"`
	Message     string     `json:"message"`
	ETASeconds  *int       `json:"eta_seconds"`
	Result      string     `json:"-"`
	ResultKey   string     `json:"-"`
	Error       string     `json:"error,omitempty"`
	Label       string     `json:"-"`
	Version     uint64     `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Progress is the mutable part of a running job.
type Progress struct {
	Stage      int
	StageName  string
	Percentage int
	Message    string
	ETASeconds *int
}

func (s Snapshot) copyOut() Snapshot {
	if s.ETASeconds != nil {
		eta := *s.ETASeconds
		s.ETASeconds = &eta
	}
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		s.CompletedAt = &at
	}
	return s
}
