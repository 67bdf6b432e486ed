package agents

import (
	"context"
	"html/template"
	"strings"
	"time"
)

var scriptedPage = template.Must(template.New("itinerary").Parse("```html\n" + `<!DOCTYPE html>
<html>
<head><title>{{.Destination}} itinerary</title></head>
<body>
<h1>{{.Days}} days in {{.Destination}}</h1>
<p>Budget: {{.BudgetLevel}}</p>
{{range .DayNumbers}}<h2>Day {{.}}</h2>
<ul><li>Morning: explore the old town</li><li>Afternoon: local museum</li><li>Evening: dinner near the centre</li></ul>
{{end}}</body>
</html>
` + "```"))

// Scripted is an offline Pipeline that walks every agent milestone with a
// fixed delay and returns a generated itinerary. It never calls an LLM.
type Scripted struct {
	StepDelay time.Duration
	Output    string
	Err       error
}

func (s *Scripted) Ready() error { return nil }

func (s *Scripted) Run(ctx context.Context, input Input, obs Observer) (string, error) {
	for _, agent := range []string{AgentResearch, AgentReview, AgentPlan} {
		notify(obs, agent)
		if s.StepDelay > 0 {
			timer := time.NewTimer(s.StepDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}
	}
	if s.Err != nil {
		return "", s.Err
	}
	if s.Output != "" {
		return s.Output, nil
	}

	days := make([]int, 0, input.Days)
	for i := 1; i <= input.Days; i++ {
		days = append(days, i)
	}
	var b strings.Builder
	err := scriptedPage.Execute(&b, struct {
		Input
		DayNumbers []int
	}{Input: input, DayNumbers: days})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

var _ Pipeline = (*Scripted)(nil)
