package main

// Plan one trip locally without the HTTP server:
//   go run ./cmd/plantrip --destination Lisbon --duration "4 days"
//   go run ./cmd/plantrip --destination Kyoto --duration 7 --styles Culture,Food --out kyoto.html
//   go run ./cmd/plantrip --destination Rome --scripted

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/yodusanwo/ai-trip-planner/internal/agents"
	"github.com/yodusanwo/ai-trip-planner/internal/bootstrap"
	"github.com/yodusanwo/ai-trip-planner/internal/jobs"
	"github.com/yodusanwo/ai-trip-planner/internal/sanitize"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/config"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/telemetry"
	"github.com/yodusanwo/ai-trip-planner/internal/trips"
)

const localJobID = "local"

type options struct {
	destination  string
	duration     string
	budget       string
	styles       []string
	requirements string
	out          string
	model        string
	scripted     bool
	verbose      bool
	poll         time.Duration
}

func main() {
	cfg := config.Load()

	var opts options
	flag.StringVarP(&opts.destination, "destination", "d", "", "Where to go (required)")
	flag.StringVar(&opts.duration, "duration", "3 days", "Trip length, e.g. \"5 days\", \"2 weeks\" or 4")
	flag.StringVar(&opts.budget, "budget", "Moderate", "Budget, Moderate or Luxury")
	flag.StringSliceVar(&opts.styles, "styles", nil, "Comma separated travel styles")
	flag.StringVar(&opts.requirements, "requirements", "", "Special requirements")
	flag.StringVarP(&opts.out, "out", "o", "", "Write the itinerary HTML to this path instead of stdout")
	flag.StringVar(&opts.model, "model", cfg.LLMModel, "LLM model")
	flag.BoolVar(&opts.scripted, "scripted", false, "Use the offline scripted pipeline")
	flag.BoolVarP(&opts.verbose, "verbose", "v", false, "Keep structured logs on stderr")
	flag.DurationVar(&opts.poll, "poll", 500*time.Millisecond, "Progress print interval")
	flag.Parse()

	if !opts.verbose {
		telemetry.SetOutput(io.Discard)
	} else {
		telemetry.SetOutput(os.Stderr)
	}

	cfg.LLMModel = opts.model
	if opts.scripted {
		cfg.LLMProvider = "scripted"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "plantrip: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts options, stdout, stderr io.Writer) error {
	input, err := buildInput(cfg, opts)
	if err != nil {
		return err
	}

	stages, err := bootstrap.NewStageTable(cfg)
	if err != nil {
		return err
	}
	pipeline := bootstrap.NewPipeline(cfg)
	if err := pipeline.Ready(); err != nil {
		return err
	}

	registry := jobs.NewRegistry()
	if _, err := registry.Create(localJobID, "local", input.Destination, stages.Len()); err != nil {
		return err
	}
	orch := &trips.Orchestrator{
		Registry: registry,
		Pipeline: pipeline,
		Stages:   stages,
		Tick:     cfg.Jobs.ProgressTick,
		Timeout:  cfg.Jobs.Timeout,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		orch.Run(ctx, localJobID, input)
	}()

	ticker := time.NewTicker(opts.poll)
	defer ticker.Stop()
	var lastVersion uint64
wait:
	for {
		select {
		case <-done:
			break wait
		case <-ticker.C:
			lastVersion = printProgress(stderr, registry, lastVersion)
		}
	}

	snap, err := registry.Get(localJobID)
	if err != nil {
		return err
	}
	printProgress(stderr, registry, lastVersion)
	if snap.Status != jobs.StatusCompleted {
		return fmt.Errorf("trip planning failed: %s", snap.Error)
	}

	if strings.TrimSpace(opts.out) == "" {
		_, err = io.WriteString(stdout, snap.Result+"\n")
		return err
	}
	if err := os.WriteFile(opts.out, []byte(snap.Result), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", opts.out, err)
	}
	fmt.Fprintf(stderr, "wrote %s\n", opts.out)
	return nil
}

func buildInput(cfg config.Config, opts options) (agents.Input, error) {
	v := sanitize.New(sanitize.Rules{
		MaxDestinationLength:         cfg.Input.MaxDestinationLength,
		MaxSpecialRequirementsLength: cfg.Input.MaxSpecialRequirementsLength,
		MaxDurationDays:              cfg.Input.MaxDurationDays,
	})
	destination, err := v.Destination(opts.destination)
	if err != nil {
		return agents.Input{}, err
	}
	days, err := parseDays(v, opts.duration)
	if err != nil {
		return agents.Input{}, err
	}
	budget, err := v.BudgetLevel(opts.budget)
	if err != nil {
		return agents.Input{}, err
	}
	styles, err := v.TravelStyles(opts.styles)
	if err != nil {
		return agents.Input{}, err
	}
	special, err := v.SpecialRequirements(opts.requirements)
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

func parseDays(v *sanitize.Validator, raw string) (int, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
		return v.Days(n)
	}
	return v.Duration(raw)
}

func printProgress(w io.Writer, registry *jobs.Registry, lastVersion uint64) uint64 {
	snap, err := registry.Get(localJobID)
	if err != nil || snap.Version == lastVersion {
		return lastVersion
	}
	stage := snap.StageName
	if stage == "" {
		stage = "-"
	}
	fmt.Fprintf(w, "[%3d%%] %-8s %s\n", snap.Percentage, stage, snap.Message)
	return snap.Version
}
