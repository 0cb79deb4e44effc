package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/epartner/engine/internal/domain"
	"github.com/epartner/engine/internal/events"
	"github.com/epartner/engine/internal/promptctx"
)

// Generator produces the content for one work item. prior is the accumulated
// context: project facts plus every already-completed prerequisite's latest
// output.
type Generator interface {
	Generate(ctx context.Context, item *domain.WorkItem, prior string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, item *domain.WorkItem, prior string) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, item *domain.WorkItem, prior string) (string, error) {
	return f(ctx, item, prior)
}

// Applier is the persistence callback: it merges a work item's new state,
// including an appended versioned output, into durable storage. The runner
// never reads persisted state back.
type Applier interface {
	ApplyItem(ctx context.Context, phaseID string, item *domain.WorkItem) error
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(ctx context.Context, phaseID string, item *domain.WorkItem) error

// ApplyItem implements Applier.
func (f ApplierFunc) ApplyItem(ctx context.Context, phaseID string, item *domain.WorkItem) error {
	return f(ctx, phaseID, item)
}

// RunnerConfig configures a dependency run.
type RunnerConfig struct {
	Project domain.Project
	PhaseID string
	Pacing  time.Duration // Delay between units, easing burst rate on the provider
	Reason  string        // Reason recorded on appended outputs
}

// Report summarizes a finished run.
type Report struct {
	RunID     string
	Completed []string
	Failed    []string
	Stuck     []string
}

// Runner drives one batch to completion. Units are processed sequentially by
// deliberate design: the provider is rate limited and later prompts depend on
// earlier units' freshly produced content.
type Runner struct {
	cfg   RunnerConfig
	batch *Batch
	gen   Generator
	apply Applier
	bus   *events.Bus
}

// NewRunner creates a runner. bus may be nil, in which case events are
// dropped. apply may be nil for dry runs.
func NewRunner(cfg RunnerConfig, batch *Batch, gen Generator, apply Applier, bus *events.Bus) *Runner {
	if cfg.Reason == "" {
		cfg.Reason = "dependency run generation"
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Runner{cfg: cfg, batch: batch, gen: gen, apply: apply, bus: bus}
}

// Run executes the batch. It returns a report alongside any terminal error:
// a *StallError when blocked items remain, or a wrapped context error on
// cancellation. Individual item failures do not fail the run.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString()}

	completed := make(map[string]bool)
	for _, item := range r.batch.Items() {
		if item.Status == domain.ItemCompleted {
			completed[item.ID] = true
			report.Completed = append(report.Completed, item.ID)
		}
	}

	total := len(r.batch.Items())
	first := true

	for len(completed) < total {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("dependency run cancelled: %w", err)
		}

		processable := r.batch.Processable(completed)
		if len(processable) == 0 {
			stuck := r.batch.remaining()
			if len(stuck) == 0 {
				// Only failed items remain; the rest of the graph finished.
				break
			}
			report.Stuck = stuck
			r.bus.Publish(events.TopicRun, events.RunStalledEvent{
				RunID: report.RunID, Stuck: stuck, Timestamp: time.Now(),
			})
			r.bus.Notify(fmt.Sprintf("Run stalled: %d item(s) cannot proceed", len(stuck)), events.LevelError)
			return report, &StallError{Stuck: stuck}
		}

		for _, item := range processable {
			if err := ctx.Err(); err != nil {
				return report, fmt.Errorf("dependency run cancelled: %w", err)
			}
			if !first {
				if err := r.pace(ctx); err != nil {
					return report, fmt.Errorf("dependency run cancelled: %w", err)
				}
			}
			first = false

			if r.processItem(ctx, item) {
				completed[item.ID] = true
				report.Completed = append(report.Completed, item.ID)
			} else {
				if err := ctx.Err(); err != nil {
					return report, fmt.Errorf("dependency run cancelled: %w", err)
				}
				report.Failed = append(report.Failed, item.ID)
			}
		}
	}

	r.bus.Publish(events.TopicRun, events.RunCompletedEvent{
		RunID:     report.RunID,
		Completed: len(report.Completed),
		Failed:    len(report.Failed),
		Timestamp: time.Now(),
	})
	r.bus.Notify(fmt.Sprintf("Dependency run finished: %d completed, %d failed", len(report.Completed), len(report.Failed)), events.LevelSuccess)
	return report, nil
}

// processItem generates one item. Returns true on success. On failure the
// item is marked failed and the run continues with the next processable item.
func (r *Runner) processItem(ctx context.Context, item *domain.WorkItem) bool {
	start := time.Now()
	item.Status = domain.ItemInProgress
	r.bus.Publish(events.TopicUnit, events.UnitStartedEvent{ID: item.ID, Name: item.Name, Timestamp: start})

	prior := r.priorContext(item)
	content, err := r.gen.Generate(ctx, item, prior)
	if err != nil {
		if ctx.Err() != nil {
			// Cancellation is not a unit failure; the item keeps its
			// in-flight status and the run loop reports the cancellation.
			return false
		}
		r.markFailed(ctx, item, err)
		return false
	}

	out := item.AppendOutput(content, r.cfg.Reason)
	item.Status = domain.ItemCompleted
	if r.apply != nil {
		if applyErr := r.apply.ApplyItem(ctx, r.cfg.PhaseID, item); applyErr != nil {
			item.Outputs = item.Outputs[:len(item.Outputs)-1]
			r.markFailed(ctx, item, fmt.Errorf("persisting output: %w", applyErr))
			return false
		}
	}

	r.publishCompleted(item, out.Version, start)
	return true
}

func (r *Runner) markFailed(ctx context.Context, item *domain.WorkItem, err error) {
	item.Status = domain.ItemFailed
	item.Error = err
	if r.apply != nil {
		_ = r.apply.ApplyItem(context.WithoutCancel(ctx), r.cfg.PhaseID, item)
	}
	r.bus.Publish(events.TopicUnit, events.UnitFailedEvent{ID: item.ID, Name: item.Name, Err: err, Timestamp: time.Now()})
	r.bus.Notify(fmt.Sprintf("%s failed: %v", item.Name, err), events.LevelError)
}

func (r *Runner) publishCompleted(item *domain.WorkItem, version int, start time.Time) {
	r.bus.Publish(events.TopicUnit, events.UnitCompletedEvent{
		ID:        item.ID,
		Name:      item.Name,
		Version:   version,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})
	r.bus.Notify(fmt.Sprintf("%s generated (v%d)", item.Name, version), events.LevelInfo)
}

// priorContext builds the prompt context for one item: project facts plus
// every completed item's latest output.
func (r *Runner) priorContext(current *domain.WorkItem) string {
	b := promptctx.NewBuilder().AddProject(r.cfg.Project)
	b.AddCompletedItems(r.batch.Items())
	b.Add("TASK", fmt.Sprintf("%s\n%s", current.Name, current.Description))
	return b.String()
}

// pace waits the configured inter-unit delay, honoring cancellation.
func (r *Runner) pace(ctx context.Context) error {
	if r.cfg.Pacing <= 0 {
		return nil
	}
	timer := time.NewTimer(r.cfg.Pacing)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
