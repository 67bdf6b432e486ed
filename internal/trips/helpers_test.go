package trips

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yodusanwo/ai-trip-planner/internal/agents"
	"github.com/yodusanwo/ai-trip-planner/internal/events"
	"github.com/yodusanwo/ai-trip-planner/internal/jobs"
	"github.com/yodusanwo/ai-trip-planner/internal/quota"
	"github.com/yodusanwo/ai-trip-planner/internal/sanitize"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type funcPipeline struct {
	ready error
	run   func(ctx context.Context, input agents.Input, obs agents.Observer) (string, error)
}

func (p funcPipeline) Ready() error { return p.ready }

func (p funcPipeline) Run(ctx context.Context, input agents.Input, obs agents.Observer) (string, error) {
	return p.run(ctx, input, obs)
}

func mustStages(t *testing.T) *StageTable {
	t.Helper()
	table, err := DefaultStageTable()
	if err != nil {
		t.Fatalf("default stage table: %v", err)
	}
	return table
}

type testEnv struct {
	registry   *jobs.Registry
	ledger     *quota.Ledger
	dispatcher *Dispatcher
	orch       *Orchestrator
	svc        *Service
	events     *recordingPublisher
}

func newTestEnv(t *testing.T, pipeline agents.Pipeline, limits quota.Limits) *testEnv {
	t.Helper()
	registry := jobs.NewRegistry()
	publisher := &recordingPublisher{}
	orch := &Orchestrator{
		Registry: registry,
		Pipeline: pipeline,
		Stages:   mustStages(t),
		Tick:     5 * time.Millisecond,
		Timeout:  5 * time.Second,
		Events:   publisher,
	}
	ledger := quota.NewLedger(quota.NewMemoryStore(), limits)
	dispatcher := NewDispatcher(4)
	svc := NewService(registry, ledger, sanitize.New(sanitize.DefaultRules()), dispatcher, orch)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = dispatcher.Wait(ctx)
	})
	return &testEnv{
		registry:   registry,
		ledger:     ledger,
		dispatcher: dispatcher,
		orch:       orch,
		svc:        svc,
		events:     publisher,
	}
}

func waitTerminal(t *testing.T, reg *jobs.Registry, id string) jobs.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := reg.Get(id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if snap.Status.Terminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return jobs.Snapshot{}
}
