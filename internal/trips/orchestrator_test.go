package trips

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yodusanwo/ai-trip-planner/internal/agents"
	"github.com/yodusanwo/ai-trip-planner/internal/events"
	"github.com/yodusanwo/ai-trip-planner/internal/jobs"
	"github.com/yodusanwo/ai-trip-planner/internal/quota"
	local "github.com/yodusanwo/ai-trip-planner/internal/shared/storage/object/local"
)

var lisbonInput = agents.Input{Destination: "Lisbon", Days: 5, BudgetLevel: "Moderate"}

func createJob(t *testing.T, env *testEnv, id string) {
	t.Helper()
	_, err := env.registry.Create(id, "c1", "Lisbon", env.orch.Stages.Len())
	require.NoError(t, err)
}

func TestRunCompletesAndStripsFences(t *testing.T) {
	env := newTestEnv(t, &agents.Scripted{StepDelay: 10 * time.Millisecond}, quota.Limits{})
	createJob(t, env, "j1")

	env.orch.Run(context.Background(), "j1", lisbonInput)

	snap, err := env.registry.Get("j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Percentage)
	assert.Equal(t, 3, snap.Stage)
	assert.NotContains(t, snap.Result, "```")
	assert.Contains(t, snap.Result, "<h1>5 days in Lisbon</h1>")
	assert.Empty(t, snap.Error)
	assert.Equal(t, []string{events.TypeStarted, events.TypeCompleted}, env.events.types())
}

func TestRunProgressIsMonotonicWhileRunning(t *testing.T) {
	release := make(chan struct{})
	pipeline := funcPipeline{run: func(ctx context.Context, in agents.Input, obs agents.Observer) (string, error) {
		obs.AgentStarted(agents.AgentResearch)
		time.Sleep(20 * time.Millisecond)
		obs.AgentStarted(agents.AgentReview)
		time.Sleep(20 * time.Millisecond)
		obs.AgentStarted(agents.AgentPlan)
		<-release
		return "<html><body>ok</body></html>", nil
	}}
	env := newTestEnv(t, pipeline, quota.Limits{})
	createJob(t, env, "j1")

	go env.orch.Run(context.Background(), "j1", lisbonInput)

	last := -1
	sawPlan := false
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !sawPlan {
		snap, err := env.registry.Get("j1")
		require.NoError(t, err)
		require.GreaterOrEqual(t, snap.Percentage, last)
		require.Less(t, snap.Percentage, 100)
		last = snap.Percentage
		if snap.StageName == "plan" {
			sawPlan = true
			assert.GreaterOrEqual(t, snap.Percentage, 70)
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.True(t, sawPlan, "plan milestone should raise the stage")

	close(release)
	snap := waitTerminal(t, env.registry, "j1")
	assert.Equal(t, 100, snap.Percentage)
}

func TestRunFailsOnPipelineError(t *testing.T) {
	pipeline := funcPipeline{run: func(ctx context.Context, in agents.Input, obs agents.Observer) (string, error) {
		obs.AgentStarted(agents.AgentResearch)
		return "", errors.New("research agent: upstream\nexploded")
	}}
	env := newTestEnv(t, pipeline, quota.Limits{})
	createJob(t, env, "j1")

	env.orch.Run(context.Background(), "j1", lisbonInput)

	snap, err := env.registry.Get("j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusError, snap.Status)
	assert.Equal(t, "research agent: upstream exploded", snap.Error)
	assert.Empty(t, snap.Result)
	assert.Less(t, snap.Percentage, 100)
	assert.Equal(t, []string{events.TypeStarted, events.TypeFailed}, env.events.types())
}

func TestRunFailsOnUnusableOutput(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":      "   ",
		"fence only": "```html\n```",
		"plain text": "Here is your plan: day one, walk around.",
	} {
		raw := raw
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, &agents.Scripted{Output: raw}, quota.Limits{})
			createJob(t, env, "j1")
			env.orch.Run(context.Background(), "j1", lisbonInput)

			snap, err := env.registry.Get("j1")
			require.NoError(t, err)
			assert.Equal(t, jobs.StatusError, snap.Status)
			assert.Contains(t, snap.Error, "no usable itinerary")
		})
	}
}

func TestRunRecoversPipelinePanic(t *testing.T) {
	pipeline := funcPipeline{run: func(ctx context.Context, in agents.Input, obs agents.Observer) (string, error) {
		panic("boom")
	}}
	env := newTestEnv(t, pipeline, quota.Limits{})
	createJob(t, env, "j1")

	env.orch.Run(context.Background(), "j1", lisbonInput)

	snap, err := env.registry.Get("j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusError, snap.Status)
	assert.Contains(t, snap.Error, "pipeline panic: boom")
}

func TestRunTimesOut(t *testing.T) {
	pipeline := funcPipeline{run: func(ctx context.Context, in agents.Input, obs agents.Observer) (string, error) {
		time.Sleep(time.Second)
		return "<html>late</html>", nil
	}}
	env := newTestEnv(t, pipeline, quota.Limits{})
	env.orch.Timeout = 30 * time.Millisecond
	createJob(t, env, "j1")

	started := time.Now()
	env.orch.Run(context.Background(), "j1", lisbonInput)
	assert.Less(t, time.Since(started), 900*time.Millisecond)

	snap, err := env.registry.Get("j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusError, snap.Status)
	assert.Contains(t, snap.Error, "timed out")
	assert.Empty(t, snap.Result)
}

func TestRunFailsWhenPipelineNotReady(t *testing.T) {
	pipeline := funcPipeline{ready: agents.ErrNotConfigured, run: func(ctx context.Context, in agents.Input, obs agents.Observer) (string, error) {
		t.Error("pipeline should not run")
		return "", nil
	}}
	env := newTestEnv(t, pipeline, quota.Limits{})
	createJob(t, env, "j1")

	env.orch.Run(context.Background(), "j1", lisbonInput)

	snap, err := env.registry.Get("j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusError, snap.Status)
	assert.Contains(t, snap.Error, "not configured")
}

func TestRunArchivesItinerary(t *testing.T) {
	env := newTestEnv(t, &agents.Scripted{Output: "<html><body>plan</body></html>"}, quota.Limits{})
	store := local.New(t.TempDir())
	env.orch.Archive = store
	createJob(t, env, "j1")

	env.orch.Run(context.Background(), "j1", lisbonInput)

	snap, err := env.registry.Get("j1")
	require.NoError(t, err)
	require.Equal(t, jobs.StatusCompleted, snap.Status)
	require.NotEmpty(t, snap.ResultKey)
	assert.Contains(t, snap.ResultKey, "j1_Lisbon_trip_plan.html")

	rc, err := store.Open(context.Background(), snap.ResultKey)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "<html><body>plan</body></html>", string(body))
}

func TestRunUnknownJobIsFaultNotPanic(t *testing.T) {
	env := newTestEnv(t, &agents.Scripted{}, quota.Limits{})
	env.orch.Run(context.Background(), "missing", lisbonInput)
	assert.Empty(t, env.events.types())
}
