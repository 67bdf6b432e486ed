package agents

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/yodusanwo/ai-trip-planner/internal/shared/telemetry"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.New("prompts").
	Funcs(template.FuncMap{"join": strings.Join}).
	ParseFS(promptFS, "prompts/*.tmpl"))

const defaultSearchLimit = 8

type promptData struct {
	Input
	Search   []SearchResult
	Previous string
}

// Crew runs the research, review and plan agents in sequence. Each agent is
// one chat completion whose output feeds the next prompt.
type Crew struct {
	completer   Completer
	searcher    Searcher
	searchLimit int
}

// CrewOption customizes a Crew.
type CrewOption func(*Crew)

// WithSearcher grounds the research step with web results.
func WithSearcher(s Searcher, limit int) CrewOption {
	return func(c *Crew) {
		c.searcher = s
		if limit > 0 {
			c.searchLimit = limit
		}
	}
}

// NewCrew constructs a Crew over completer.
func NewCrew(completer Completer, opts ...CrewOption) *Crew {
	c := &Crew{completer: completer, searchLimit: defaultSearchLimit}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ready reports ErrNotConfigured when no LLM client was supplied.
func (c *Crew) Ready() error {
	if c == nil || c.completer == nil {
		return fmt.Errorf("%w: LLM client is not configured", ErrNotConfigured)
	}
	return nil
}

func (c *Crew) Run(ctx context.Context, input Input, obs Observer) (string, error) {
	if err := c.Ready(); err != nil {
		return "", err
	}
	data := promptData{Input: input}

	notify(obs, AgentResearch)
	data.Search = c.search(ctx, input)
	research, err := c.step(ctx, AgentResearch, "research.tmpl", data)
	if err != nil {
		return "", err
	}

	notify(obs, AgentReview)
	data.Search = nil
	data.Previous = research
	reviewed, err := c.step(ctx, AgentReview, "review.tmpl", data)
	if err != nil {
		return "", err
	}

	notify(obs, AgentPlan)
	data.Previous = reviewed
	return c.step(ctx, AgentPlan, "plan.tmpl", data)
}

func (c *Crew) search(ctx context.Context, input Input) []SearchResult {
	if c.searcher == nil {
		return nil
	}
	query := input.Destination + " top attractions restaurants"
	if len(input.TravelStyles) > 0 {
		query = input.Destination + " " + strings.Join(input.TravelStyles, " ") + " attractions restaurants"
	}
	results, err := c.searcher.Search(ctx, query, c.searchLimit)
	if err != nil {
		telemetry.Warn("agents.search_failed", map[string]any{
			"destination": input.Destination,
			"err":         err,
		})
		return nil
	}
	return results
}

func (c *Crew) step(ctx context.Context, agent, tmpl string, data promptData) (string, error) {
	var system, user strings.Builder
	if err := prompts.ExecuteTemplate(&system, agent, data); err != nil {
		return "", fmt.Errorf("render %s system prompt: %w", agent, err)
	}
	if err := prompts.ExecuteTemplate(&user, tmpl, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", agent, err)
	}

	started := time.Now()
	out, err := c.completer.Complete(ctx, []Message{
		{Role: "system", Content: system.String()},
		{Role: "user", Content: user.String()},
	})
	if err != nil {
		return "", fmt.Errorf("%s agent: %w", agent, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%s agent returned no output", agent)
	}
	telemetry.Info("agents.step_complete", map[string]any{
		"agent":       agent,
		"duration_ms": time.Since(started).Milliseconds(),
		"output_len":  len(out),
	})
	return out, nil
}

var _ Pipeline = (*Crew)(nil)
