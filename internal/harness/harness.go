package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panelguard/panelguard/config"
	"github.com/panelguard/panelguard/engine"
	"github.com/panelguard/panelguard/internal/testutil"
	"github.com/panelguard/panelguard/probe/memhost"
	"github.com/panelguard/panelguard/throttle"
)

// burstSpacing separates burst calls so their arrival order is fixed: the
// first call runs inline, every later call supersedes the still-pending one
// before it. It must stay well below the scenario's throttle interval.
const burstSpacing = 5 * time.Millisecond

// Run executes a scenario against a fresh engine and in-memory host.
//
// Every run is isolated: a new host, a new engine, sequence numbers starting
// at 1. Steps run strictly in order; assertions evaluate after the last step.
func Run(scenario *Scenario) (*Result, error) {
	result, _, err := RunWithEngine(scenario)
	return result, err
}

// RunWithEngine is Run, but also returns the engine the scenario ran
// against so callers can interrogate its stats surfaces afterwards.
func RunWithEngine(scenario *Scenario) (*Result, *engine.Engine, error) {
	if err := scenario.Validate(); err != nil {
		return nil, nil, err
	}

	host := memhost.New()
	for _, seed := range scenario.Containers {
		els := make([]memhost.Element, len(seed.Elements))
		for i, e := range seed.Elements {
			els[i] = memhost.Element{Tag: e.Tag, Text: e.Text}
		}
		host.SetElements(seed.ID, els)
	}

	cfg := config.Default()
	cfg.ThrottleInterval = 60 * time.Millisecond
	if scenario.ThrottleIntervalMS > 0 {
		cfg.ThrottleInterval = time.Duration(scenario.ThrottleIntervalMS) * time.Millisecond
	}
	if scenario.MaxRollbackAttempts > 0 {
		cfg.MaxRollbackAttempts = scenario.MaxRollbackAttempts
	}

	eng, err := engine.New(host, cfg, engine.WithLogger(testutil.SilentLogger()))
	if err != nil {
		return nil, nil, fmt.Errorf("create engine: %w", err)
	}
	for _, seed := range scenario.Containers {
		if seed.Limit > 0 {
			eng.SetContainerLimit(seed.ID, seed.Limit)
		}
	}

	h := &runner{scenario: scenario, host: host, engine: eng, appended: make(map[string]int)}
	result := &Result{Pass: true, Trace: []TraceEvent{}, Final: make(map[string]ContainerState)}

	ctx := context.Background()
	for i, step := range scenario.Steps {
		ev, err := h.runStep(ctx, step)
		if err != nil {
			return nil, nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
		result.Trace = append(result.Trace, ev)
	}

	for _, id := range host.List() {
		count, err := host.ElementCount(id)
		if err != nil {
			return nil, nil, fmt.Errorf("final state of %q: %w", id, err)
		}
		result.Final[id] = ContainerState{
			ElementCount: count,
			Band:         bandOf(eng, id),
		}
	}

	evaluateAssertions(scenario, h, result)
	return result, eng, nil
}

type runner struct {
	scenario *Scenario
	host     *memhost.Host
	engine   *engine.Engine

	// appended counts generated elements per container so texts stay unique
	// across steps.
	appended map[string]int
}

func (h *runner) runStep(ctx context.Context, step Step) (TraceEvent, error) {
	switch step.Op {
	case OpUpdate:
		return h.runUpdate(ctx, step), nil
	case OpFailUpdate:
		return h.runFailUpdate(ctx, step), nil
	case OpBurst:
		return h.runBurst(ctx, step), nil
	case OpEmergencyStop:
		h.engine.EmergencyStop(step.Reason)
		return TraceEvent{Op: step.Op}, nil
	case OpResume:
		h.engine.ResumeOperations()
		return TraceEvent{Op: step.Op}, nil
	case OpHealthCheck:
		report := h.engine.PerformHealthCheck()
		return TraceEvent{Op: step.Op, Level: string(report.Level)}, nil
	default:
		return TraceEvent{}, fmt.Errorf("unknown op %q", step.Op)
	}
}

func (h *runner) runUpdate(ctx context.Context, step Step) TraceEvent {
	res, err := h.engine.UpdateContainer(ctx, step.Container,
		h.appendFunc(step.Container, appendCount(step)), nil, stepOptions(step))
	return h.updateEvent(step, res, err)
}

func (h *runner) runFailUpdate(ctx context.Context, step Step) TraceEvent {
	msg := step.Error
	if msg == "" {
		msg = "scripted failure"
	}
	res, err := h.engine.UpdateContainer(ctx, step.Container,
		func(ctx context.Context, data any) error { return errors.New(msg) },
		nil, stepOptions(step))
	return h.updateEvent(step, res, err)
}

// runBurst fires Count calls in quick succession. The first passes the
// throttle and runs inline; each later call replaces the pending one, so
// exactly two execute (the first and the last) and the rest are superseded.
func (h *runner) runBurst(ctx context.Context, step Step) TraceEvent {
	count := step.Count
	if count < 2 {
		count = 3
	}

	errs := make([]error, count)
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.engine.UpdateContainer(ctx, step.Container,
				h.appendFunc(step.Container, appendCount(step)), nil, stepOptions(step))
		}()
		time.Sleep(burstSpacing)
	}
	wg.Wait()

	ev := TraceEvent{Op: step.Op, Container: step.Container}
	for _, err := range errs {
		switch {
		case err == nil:
			ev.Executed++
		case errors.Is(err, throttle.ErrSuperseded):
			ev.Superseded++
		default:
			ev.Error = errorCode(err)
		}
	}
	return ev
}

// appendFunc generates distinct elements so repeated updates never trip the
// duplicate-content heuristic by accident.
func (h *runner) appendFunc(id string, n int) engine.UpdateFunc {
	return func(ctx context.Context, data any) error {
		for i := 0; i < n; i++ {
			h.appended[id]++
			h.host.Append(id, memhost.Element{
				Tag:  "item",
				Text: fmt.Sprintf("%s item %d", id, h.appended[id]),
			})
		}
		return nil
	}
}

func (h *runner) updateEvent(step Step, res *engine.Result, err error) TraceEvent {
	ev := TraceEvent{Op: step.Op, Container: step.Container}
	switch {
	case err != nil:
		ev.Outcome = "rejected"
		ev.Error = errorCode(err)
	case res != nil:
		ev.Outcome = string(engine.OutcomeSuccess)
		ev.Seq = res.Seq
		ev.Band = string(res.Band)
		ev.Cleanup = res.CleanupPerformed
	default:
		// Recovery absorbed the update; the history records how.
		ev.Outcome = string(lastOutcome(h.engine, step.Container))
	}
	return ev
}

func stepOptions(step Step) engine.UpdateOptions {
	opts := engine.UpdateOptions{EnableRollback: step.Rollback}
	switch step.Priority {
	case "high":
		opts.Priority = engine.PriorityHigh
	case "critical":
		opts.Priority = engine.PriorityCritical
	}
	return opts
}

func appendCount(step Step) int {
	if step.Append > 0 {
		return step.Append
	}
	return 1
}

func lastOutcome(eng *engine.Engine, id string) engine.Outcome {
	history := eng.UpdateHistory(id)
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1].Outcome
}

func bandOf(eng *engine.Engine, id string) string {
	for _, rec := range eng.SizeStats().Records {
		if rec.ContainerID == id {
			return string(rec.Band)
		}
	}
	return ""
}

func errorCode(err error) string {
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return err.Error()
}
