package trips

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed stages.yaml
var defaultStagesYAML []byte

// maxStageEnd keeps the top of the scale for finalizing and completion.
const maxStageEnd = 99

// Stage is one band of the progress scale tied to a pipeline agent.
type Stage struct {
	Name    string  `yaml:"name"`
	Agent   string  `yaml:"agent"`
	Message string  `yaml:"message"`
	Start   int     `yaml:"start"`
	End     int     `yaml:"end"`
	Weight  float64 `yaml:"weight"`
}

// DurationEstimate maps trips up to MaxDays long to an expected pipeline
// duration. MaxDays 0 is the catch-all.
type DurationEstimate struct {
	MaxDays int `yaml:"max_days"`
	Seconds int `yaml:"seconds"`
}

// StageTable is the ordered stage list plus the duration estimates.
type StageTable struct {
	Stages    []Stage            `yaml:"stages"`
	Estimates []DurationEstimate `yaml:"estimates"`
}

// Estimate is the progress the orchestrator reports at a point in time.
type Estimate struct {
	Stage      int
	StageName  string
	Percentage int
	Message    string
	ETASeconds int
}

// DefaultStageTable returns the embedded table.
func DefaultStageTable() (*StageTable, error) {
	return ParseStageTable(defaultStagesYAML)
}

// LoadStageTable reads a table from path, or the embedded one when path is empty.
func LoadStageTable(path string) (*StageTable, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultStageTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stage table: %w", err)
	}
	return ParseStageTable(data)
}

// ParseStageTable decodes and validates a YAML stage table.
func ParseStageTable(data []byte) (*StageTable, error) {
	var t StageTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse stage table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	sort.SliceStable(t.Estimates, func(i, j int) bool {
		a, b := t.Estimates[i].MaxDays, t.Estimates[j].MaxDays
		if a == 0 || b == 0 {
			return b == 0 && a != 0
		}
		return a < b
	})
	return &t, nil
}

// Validate checks stage ordering and bounds.
func (t *StageTable) Validate() error {
	if len(t.Stages) == 0 {
		return errors.New("stage table: at least one stage is required")
	}
	seen := make(map[string]bool, len(t.Stages))
	prevEnd := 0
	for i, s := range t.Stages {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("stage table: stage %d has no name", i+1)
		}
		if seen[s.Name] {
			return fmt.Errorf("stage table: duplicate stage %q", s.Name)
		}
		seen[s.Name] = true
		if s.Start < 0 || s.Start >= s.End || s.End > maxStageEnd {
			return fmt.Errorf("stage table: stage %q band [%d,%d] must satisfy 0 <= start < end <= %d", s.Name, s.Start, s.End, maxStageEnd)
		}
		if s.Start < prevEnd {
			return fmt.Errorf("stage table: stage %q overlaps the previous stage", s.Name)
		}
		if s.Weight <= 0 || math.IsNaN(s.Weight) || math.IsInf(s.Weight, 0) {
			return fmt.Errorf("stage table: stage %q needs a positive weight", s.Name)
		}
		prevEnd = s.End
	}
	for _, e := range t.Estimates {
		if e.MaxDays < 0 || e.Seconds <= 0 {
			return fmt.Errorf("stage table: invalid estimate {max_days: %d, seconds: %d}", e.MaxDays, e.Seconds)
		}
	}
	return nil
}

// Len is the number of stages.
func (t *StageTable) Len() int {
	return len(t.Stages)
}

// Expected returns the expected pipeline duration for a trip of days.
func (t *StageTable) Expected(days int) time.Duration {
	var fallback int
	for _, e := range t.Estimates {
		if e.MaxDays == 0 {
			fallback = e.Seconds
			continue
		}
		if days <= e.MaxDays {
			return time.Duration(e.Seconds) * time.Second
		}
	}
	if fallback > 0 {
		return time.Duration(fallback) * time.Second
	}
	if n := len(t.Estimates); n > 0 {
		return time.Duration(t.Estimates[n-1].Seconds) * time.Second
	}
	return 2 * time.Minute
}

// IndexOf returns the 1-based stage index run by agent, or 0.
func (t *StageTable) IndexOf(agent string) int {
	for i, s := range t.Stages {
		if s.Agent == agent || (s.Agent == "" && s.Name == agent) {
			return i + 1
		}
	}
	return 0
}

// Floor is the progress at the start of the 1-based stage.
func (t *StageTable) Floor(stage int, elapsed, expected time.Duration) Estimate {
	if stage < 1 || stage > len(t.Stages) {
		return Estimate{}
	}
	s := t.Stages[stage-1]
	return Estimate{
		Stage:      stage,
		StageName:  s.Name,
		Percentage: s.Start,
		Message:    s.Message,
		ETASeconds: etaSeconds(elapsed, expected),
	}
}

// At maps elapsed time onto the table. Each stage gets its weighted share of
// expected; progress within a stage moves linearly across its band and holds
// at the last band's end once expected has passed.
func (t *StageTable) At(elapsed, expected time.Duration) Estimate {
	if len(t.Stages) == 0 {
		return Estimate{}
	}
	if elapsed < 0 {
		elapsed = 0
	}
	var total float64
	for _, s := range t.Stages {
		total += s.Weight
	}
	offset := time.Duration(0)
	for i, s := range t.Stages {
		share := time.Duration(float64(expected) * s.Weight / total)
		last := i == len(t.Stages)-1
		if elapsed < offset+share || last {
			frac := 1.0
			if share > 0 {
				frac = math.Min(1, float64(elapsed-offset)/float64(share))
			}
			pct := s.Start + int(frac*float64(s.End-s.Start))
			if pct >= s.End && !last {
				pct = s.End - 1
			}
			return Estimate{
				Stage:      i + 1,
				StageName:  s.Name,
				Percentage: pct,
				Message:    s.Message,
				ETASeconds: etaSeconds(elapsed, expected),
			}
		}
		offset += share
	}
	return Estimate{}
}

func etaSeconds(elapsed, expected time.Duration) int {
	remaining := expected - elapsed
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Seconds()))
}
