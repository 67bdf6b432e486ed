package agents

import (
	"context"
	"errors"
)

// Agent names reported to observers as milestones. They match the agent
// column of the stage table.
const (
	AgentResearch = "research"
	AgentReview   = "review"
	AgentPlan     = "plan"
)

// ErrNotConfigured is returned by Ready when a required credential or
// setting is missing.
var ErrNotConfigured = errors.New("agent pipeline not configured")

// Input is a sanitized trip request.
type Input struct {
	Destination         string
	Days                int
	BudgetLevel         string
	TravelStyles        []string
	SpecialRequirements string
}

// Observer receives milestones while a pipeline runs.
type Observer interface {
	AgentStarted(name string)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(name string)

// AgentStarted calls f.
func (f ObserverFunc) AgentStarted(name string) {
	if f != nil {
		f(name)
	}
}

// Pipeline produces a raw itinerary for a trip request. Run blocks until the
// whole research, review and plan sequence has finished.
type Pipeline interface {
	Ready() error
	Run(ctx context.Context, input Input, obs Observer) (string, error)
}

// Message is one chat message sent to a Completer.
type Message struct {
	Role    string
	Content string
}

// Completer is a single chat completion call against an LLM provider.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Searcher looks up web results used to ground the research step.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// SearchResult is one organic web result.
type SearchResult struct {
	Title   string
	Link    string
	Snippet string
}

func notify(obs Observer, name string) {
	if obs != nil {
		obs.AgentStarted(name)
	}
}
