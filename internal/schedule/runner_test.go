package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/epartner/engine/internal/domain"
	"github.com/epartner/engine/internal/events"
)

// recordingGenerator records completion order and fails configured items.
type recordingGenerator struct {
	mu    sync.Mutex
	order []string
	fail  map[string]error
}

func (g *recordingGenerator) Generate(ctx context.Context, item *domain.WorkItem, prior string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.fail[item.ID]; ok {
		return "", err
	}
	g.order = append(g.order, item.ID)
	return "content for " + item.ID, nil
}

func newTestRunner(batch *Batch, gen Generator) *Runner {
	return NewRunner(RunnerConfig{
		Project: domain.Project{Name: "Test Project"},
		PhaseID: "phase-1",
	}, batch, gen, nil, events.NewBus())
}

func TestRunnerTopologicalOrder(t *testing.T) {
	// a -> b -> d, a -> c -> d
	batch, err := NewBatch(items(
		[2]any{"a", []string{}},
		[2]any{"b", []string{"a"}},
		[2]any{"c", []string{"a"}},
		[2]any{"d", []string{"b", "c"}},
	))
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	gen := &recordingGenerator{}
	report, err := newTestRunner(batch, gen).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Completed) != 4 || len(report.Failed) != 0 {
		t.Fatalf("report = %+v, want 4 completed", report)
	}

	pos := map[string]int{}
	for i, id := range gen.order {
		pos[id] = i
	}
	for _, item := range batch.Items() {
		for _, dep := range item.DependsOn {
			if pos[dep] >= pos[item.ID] {
				t.Errorf("item %s ran before its dependency %s (order %v)", item.ID, dep, gen.order)
			}
		}
		if item.Status != domain.ItemCompleted {
			t.Errorf("item %s status = %v, want completed", item.ID, item.Status)
		}
		if len(item.Outputs) != 1 || item.Outputs[0].Version != 1 {
			t.Errorf("item %s outputs = %+v, want one v1 output", item.ID, item.Outputs)
		}
	}
}

func TestRunnerPartialFailureIsolation(t *testing.T) {
	// a fails, b independent, c depends on a.
	batch, err := NewBatch(items(
		[2]any{"a", []string{}},
		[2]any{"b", []string{}},
		[2]any{"c", []string{"a"}},
	))
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	gen := &recordingGenerator{fail: map[string]error{"a": errors.New("provider exploded")}}
	report, err := newTestRunner(batch, gen).Run(context.Background())

	var stall *StallError
	if !errors.As(err, &stall) {
		t.Fatalf("expected *StallError, got %v", err)
	}
	if len(stall.Stuck) != 1 || stall.Stuck[0] != "c" {
		t.Errorf("stall stuck = %v, want [c]", stall.Stuck)
	}

	a, _ := batch.Item("a")
	b, _ := batch.Item("b")
	c, _ := batch.Item("c")
	if a.Status != domain.ItemFailed {
		t.Errorf("a status = %v, want failed", a.Status)
	}
	if b.Status != domain.ItemCompleted {
		t.Errorf("b status = %v, want completed (independent branch)", b.Status)
	}
	if c.Status != domain.ItemNotStarted || len(c.Outputs) != 0 {
		t.Errorf("c must never be attempted, status = %v", c.Status)
	}
	if len(report.Completed) != 1 || report.Completed[0] != "b" {
		t.Errorf("report completed = %v, want [b]", report.Completed)
	}
}

func TestRunnerFailureWithoutDependentsFinishes(t *testing.T) {
	batch, err := NewBatch(items(
		[2]any{"a", []string{}},
		[2]any{"b", []string{}},
	))
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	gen := &recordingGenerator{fail: map[string]error{"a": errors.New("boom")}}
	report, err := newTestRunner(batch, gen).Run(context.Background())
	if err != nil {
		t.Fatalf("a failure with no dependents must not fail the run: %v", err)
	}
	if len(report.Completed) != 1 || len(report.Failed) != 1 {
		t.Errorf("report = %+v, want 1 completed / 1 failed", report)
	}
}

func TestRunnerAppendOnlyAcrossRuns(t *testing.T) {
	batch, err := NewBatch(items([2]any{"a", []string{}}))
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	gen := &recordingGenerator{}
	if _, err := newTestRunner(batch, gen).Run(context.Background()); err != nil {
		t.Fatalf("first run error = %v", err)
	}

	// Reset status and run again: the first output must survive.
	a, _ := batch.Item("a")
	a.Status = domain.ItemNotStarted
	if _, err := newTestRunner(batch, gen).Run(context.Background()); err != nil {
		t.Fatalf("second run error = %v", err)
	}

	if len(a.Outputs) != 2 {
		t.Fatalf("outputs length = %d, want 2", len(a.Outputs))
	}
	if a.Outputs[1].Version != a.Outputs[0].Version+1 {
		t.Errorf("versions = %d, %d; want consecutive", a.Outputs[0].Version, a.Outputs[1].Version)
	}
}

func TestRunnerCancellation(t *testing.T) {
	batch, err := NewBatch(items(
		[2]any{"a", []string{}},
		[2]any{"b", []string{"a"}},
	))
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	gen := GeneratorFunc(func(ctx context.Context, item *domain.WorkItem, prior string) (string, error) {
		if item.ID == "a" {
			cancel() // Cancel mid-run; b must never start.
			return "a content", nil
		}
		return "", fmt.Errorf("b should not run")
	})

	report, err := newTestRunner(batch, gen).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected wrapped context.Canceled, got %v", err)
	}
	if !strings.Contains(err.Error(), "cancelled") {
		t.Errorf("cancellation must be distinguishable from failure: %v", err)
	}

	a, _ := batch.Item("a")
	b, _ := batch.Item("b")
	if a.Status != domain.ItemCompleted || len(a.Outputs) != 1 {
		t.Errorf("completed work must survive cancellation, a = %v", a.Status)
	}
	if b.Status != domain.ItemNotStarted {
		t.Errorf("b status = %v, want not-started (not failed)", b.Status)
	}
	if len(report.Completed) != 1 {
		t.Errorf("report completed = %v, want [a]", report.Completed)
	}
}

func TestRunnerAppliesPersistence(t *testing.T) {
	batch, err := NewBatch(items([2]any{"a", []string{}}))
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	var applied []string
	apply := ApplierFunc(func(ctx context.Context, phaseID string, item *domain.WorkItem) error {
		applied = append(applied, fmt.Sprintf("%s/%s:%s", phaseID, item.ID, item.Status))
		return nil
	})

	runner := NewRunner(RunnerConfig{PhaseID: "ph"}, batch, &recordingGenerator{}, apply, events.NewBus())
	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(applied) != 1 || applied[0] != "ph/a:completed" {
		t.Errorf("applied = %v", applied)
	}
}

func TestRunnerPersistFailureMarksItemFailed(t *testing.T) {
	batch, err := NewBatch(items([2]any{"a", []string{}}))
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	apply := ApplierFunc(func(ctx context.Context, phaseID string, item *domain.WorkItem) error {
		if item.Status == domain.ItemCompleted {
			return errors.New("disk full")
		}
		return nil
	})

	runner := NewRunner(RunnerConfig{PhaseID: "ph"}, batch, &recordingGenerator{}, apply, events.NewBus())
	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	a, _ := batch.Item("a")
	if a.Status != domain.ItemFailed {
		t.Errorf("a status = %v, want failed when persistence fails", a.Status)
	}
	if len(a.Outputs) != 0 {
		t.Errorf("unpersisted output must be rolled back, outputs = %+v", a.Outputs)
	}
	if len(report.Failed) != 1 {
		t.Errorf("report = %+v", report)
	}
}
