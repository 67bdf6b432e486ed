package trips

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yodusanwo/ai-trip-planner/internal/agents"
	"github.com/yodusanwo/ai-trip-planner/internal/jobs"
	"github.com/yodusanwo/ai-trip-planner/internal/quota"
	"github.com/yodusanwo/ai-trip-planner/internal/sanitize"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/metrics"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/telemetry"
)

const anonymousPrefix = "anon-"

// Service accepts trip requests and hands them to the orchestrator.
type Service struct {
	Registry     *jobs.Registry
	Ledger       *quota.Ledger
	Validator    *sanitize.Validator
	Dispatcher   *Dispatcher
	Orchestrator *Orchestrator

	newID func() string
}

// NewService wires a Service. The orchestrator must share registry.
func NewService(registry *jobs.Registry, ledger *quota.Ledger, validator *sanitize.Validator, dispatcher *Dispatcher, orch *Orchestrator) *Service {
	return &Service{
		Registry:     registry,
		Ledger:       ledger,
		Validator:    validator,
		Dispatcher:   dispatcher,
		Orchestrator: orch,
		newID:        uuid.NewString,
	}
}

// Ready reports whether trips can be planned at all.
func (s *Service) Ready() error {
	if s.Orchestrator == nil || s.Orchestrator.Pipeline == nil {
		return fmt.Errorf("%w: no agent pipeline", ErrNotConfigured)
	}
	if err := s.Orchestrator.Pipeline.Ready(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	return nil
}

// Submit validates req, charges the client's quota, registers a job and
// starts it in the background. headerClientID is used when the body carries
// no client id.
func (s *Service) Submit(ctx context.Context, req PlanRequest, headerClientID string) (Submission, error) {
	if err := s.Ready(); err != nil {
		return Submission{}, err
	}

	input, err := s.sanitize(req)
	if err != nil {
		var verr *sanitize.ValidationError
		if errors.As(err, &verr) {
			metrics.ValidationRejections.WithLabelValues(verr.Field, verr.Rule).Inc()
		}
		return Submission{}, err
	}

	clientID, err := s.resolveClientID(req.ClientID, headerClientID)
	if err != nil {
		metrics.ValidationRejections.WithLabelValues(sanitize.FieldClientID, sanitize.RuleFormat).Inc()
		return Submission{}, err
	}

	usage, err := s.Ledger.Reserve(ctx, clientID, s.Ledger.EstimatedCost())
	if err != nil {
		var exceeded *quota.ExceededError
		if errors.As(err, &exceeded) {
			metrics.QuotaRejections.WithLabelValues(exceeded.Limit).Inc()
		}
		return Submission{ClientID: clientID}, err
	}

	jobID := s.newID()
	if _, err := s.Registry.Create(jobID, clientID, input.Destination, s.Orchestrator.Stages.Len()); err != nil {
		return Submission{ClientID: clientID}, err
	}

	err = s.Dispatcher.Go(detach(ctx), jobID, func(runCtx context.Context) {
		s.Orchestrator.Run(runCtx, jobID, input)
	}, func() {
		if _, err := s.Registry.UpdateProgress(jobID, jobs.Progress{Message: queuedMessage}); err != nil {
			telemetry.Warn("trip.progress_write_failed", map[string]any{"job_id": jobID, "err": err})
		}
	})
	if err != nil {
		if _, failErr := s.Registry.Fail(jobID, sanitizeError(err)); failErr != nil {
			telemetry.Error("trip.fault", map[string]any{"job_id": jobID, "op": "dispatch", "err": failErr})
		}
		return Submission{ClientID: clientID}, err
	}

	metrics.TripsSubmitted.Inc()
	telemetry.Info("trip.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"job_id":            jobID,
		"client_id":         clientID,
		"destination":       input.Destination,
		"days":              input.Days,
		"status":            jobs.StatusRunning,
		"status_transition": "new->running",
	})

	return Submission{
		JobID:    jobID,
		ClientID: clientID,
		Status:   "started",
		Message:  fmt.Sprintf("Planning your %d-day trip to %s", input.Days, input.Destination),
		Warnings: usage.Warnings,
		Usage:    usage,
	}, nil
}

// Get returns the current snapshot of a job.
func (s *Service) Get(jobID string) (jobs.Snapshot, error) {
	return s.Registry.Get(jobID)
}

func (s *Service) sanitize(req PlanRequest) (agents.Input, error) {
	v := s.Validator
	destination, err := v.Destination(req.Destination)
	if err != nil {
		return agents.Input{}, err
	}
	var days int
	if req.Duration.Numeric {
		days, err = v.Days(req.Duration.Days)
	} else {
		days, err = v.Duration(req.Duration.Text)
	}
	if err != nil {
		return agents.Input{}, err
	}
	budget, err := v.BudgetLevel(req.BudgetLevel)
	if err != nil {
		return agents.Input{}, err
	}
	styles, err := v.TravelStyles(req.TravelStyle)
	if err != nil {
		return agents.Input{}, err
	}
	special, err := v.SpecialRequirements(req.SpecialRequirements)
	if err != nil {
		return agents.Input{}, err
	}
	return agents.Input{
		Destination:         destination,
		Days:                days,
		BudgetLevel:         budget,
		TravelStyles:        styles,
		SpecialRequirements: special,
	}, nil
}

// resolveClientID prefers the body, then the header, then a fresh anonymous id.
func (s *Service) resolveClientID(fromBody, fromHeader string) (string, error) {
	for _, candidate := range []string{fromBody, fromHeader} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if err := sanitize.ClientID(candidate); err != nil {
			return "", err
		}
		return candidate, nil
	}
	return anonymousPrefix + s.newID(), nil
}
