// Package pipeline implements the three-role agent collaboration pattern:
// an orchestrator decides what to do, a doer produces the artifact, and a QA
// step validates it against a rubric. The pattern serves change-impact
// editing, tool-specific export, and iterative discovery.
package pipeline

import (
	"context"
	"fmt"

	"github.com/epartner/engine/internal/domain"
	"github.com/epartner/engine/internal/provider"
)

// Stage tracks a pipeline run's progress.
type Stage int

const (
	StageIdle Stage = iota
	StageOrchestrating
	StageDoing
	StageValidating
	StageComplete
	StageError
)

// String returns the stage name used in events.
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageOrchestrating:
		return "orchestrating"
	case StageDoing:
		return "doing"
	case StageValidating:
		return "validating"
	case StageComplete:
		return "complete"
	case StageError:
		return "error"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// DocStatus tracks one impacted document through the change pipeline.
type DocStatus int

const (
	DocPending DocStatus = iota
	DocEditing
	DocValidating
	DocComplete
	DocFailed
)

// String returns the status name.
func (s DocStatus) String() string {
	switch s {
	case DocPending:
		return "pending"
	case DocEditing:
		return "editing"
	case DocValidating:
		return "validating"
	case DocComplete:
		return "complete"
	case DocFailed:
		return "failed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// ImpactedDocument is the ephemeral per-document state of a change run. It is
// discarded at the end of the run; only the appended versioned outputs
// survive.
type ImpactedDocument struct {
	ID         string
	Name       string
	Status     DocStatus
	Original   string // Content snapshot before editing
	NewContent string // Full replacement produced by the doer
	Feedback   string // QA feedback, populated on rejection
}

// Verdict is the QA stage's structured answer. Feedback is mandatory when
// Approved is false.
type Verdict struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
}

// verdictSchema validates the QA verdict payload.
func verdictSchema() *provider.Schema {
	return provider.Object(
		provider.Field{Name: "approved", Type: provider.TypeBool},
		provider.Field{Name: "feedback", Type: provider.TypeString},
	)
}

// RejectedError reports that QA declined approval for a unit of work. It
// carries the QA feedback verbatim for display and logging.
type RejectedError struct {
	Unit     string
	Feedback string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("qa rejected %q: %s", e.Unit, e.Feedback)
}

// Model is the slice of the invocation layer the pipelines use.
// *provider.Client satisfies it.
type Model interface {
	Generate(ctx context.Context, req provider.Request) (provider.Response, error)
	GenerateJSON(ctx context.Context, req provider.Request, v any) error
}

// Applier persists approved results into the owning phase or work item.
type Applier interface {
	ApplyPhase(ctx context.Context, phase *domain.Phase) error
	ApplyItem(ctx context.Context, phaseID string, item *domain.WorkItem) error
}
