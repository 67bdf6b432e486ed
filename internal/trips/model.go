package trips

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/yodusanwo/ai-trip-planner/internal/quota"
	"github.com/yodusanwo/ai-trip-planner/internal/sanitize"
)

// PlanRequest is the body of POST /trips.
type PlanRequest struct {
	Destination         string        `json:"destination"`
	Duration            DurationInput `json:"duration"`
	BudgetLevel         string        `json:"budget_level"`
	TravelStyle         StyleList     `json:"travel_style"`
	SpecialRequirements string        `json:"special_requirements"`
	ClientID            string        `json:"client_id"`
}

// DurationInput accepts either free text ("5 days", "2 weeks") or a number of days.
type DurationInput struct {
	Text    string
	Days    int
	Numeric bool
}

func (d *DurationInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*d = DurationInput{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = DurationInput{Text: s}
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return sanitize.TypeMismatch(sanitize.FieldDuration, "duration must be a string or a whole number of days")
	}
	*d = DurationInput{Days: n, Numeric: true}
	return nil
}

// MarshalJSON mirrors the accepted input forms.
func (d DurationInput) MarshalJSON() ([]byte, error) {
	if d.Numeric {
		return []byte(strconv.Itoa(d.Days)), nil
	}
	return json.Marshal(d.Text)
}

// StyleList accepts a list of styles or one comma-separated string.
type StyleList []string

func (l *StyleList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*l = out
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return sanitize.TypeMismatch(sanitize.FieldTravelStyle, "travel_style must be a string or a list of strings")
	}
	*l = list
	return nil
}

// Submission is returned for an accepted trip request.
type Submission struct {
	JobID    string   `json:"job_id"`
	ClientID string   `json:"client_id"`
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Warnings []string `json:"warnings,omitempty"`

	Usage quota.Usage `json:"-"`
}

// ResultResponse is returned by GET /trips/:id/result for completed jobs.
type ResultResponse struct {
	JobID       string     `json:"job_id"`
	HTMLContent string     `json:"html_content"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
