package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/epartner/engine/internal/catalog"
	"github.com/epartner/engine/internal/domain"
	"github.com/epartner/engine/internal/events"
	"github.com/epartner/engine/internal/promptctx"
	"github.com/epartner/engine/internal/provider"
)

// Artifact is the product of an export run: a complete file body ready to be
// written out under the derived filename.
type Artifact struct {
	Filename string
	Body     string
}

// ExportResult summarizes a finished export run.
type ExportResult struct {
	RunID    string
	Stage    Stage
	Plan     string // The orchestrator's extraction plan
	Artifact Artifact
	Feedback string // QA feedback on rejection
}

// ExportRunner produces a tool-specific artifact from the project's phase
// content: the orchestrator plans the extraction, the doer emits the literal
// artifact body, and QA checks it against the target's acceptance criteria.
type ExportRunner struct {
	project domain.Project
	model   Model
	bus     *events.Bus
}

// NewExportRunner creates an export runner. bus may be nil.
func NewExportRunner(project domain.Project, model Model, bus *events.Bus) *ExportRunner {
	if bus == nil {
		bus = events.NewBus()
	}
	return &ExportRunner{project: project, model: model, bus: bus}
}

// Run executes the export pipeline for one target over the given phases.
func (r *ExportRunner) Run(ctx context.Context, target catalog.Target, phases []*domain.Phase) (ExportResult, error) {
	result := ExportResult{RunID: uuid.NewString(), Stage: StageIdle}

	content := promptctx.NewBuilder().AddProject(r.project)
	for _, phase := range phases {
		content.AddPhase(phase)
	}
	if content.Empty() {
		result.Stage = StageError
		return result, fmt.Errorf("nothing to export: no phase content available")
	}

	r.setStage(&result, StageOrchestrating, target.ToolID)
	plan, err := r.plan(ctx, target, content.String())
	if err != nil {
		result.Stage = StageError
		return result, fmt.Errorf("orchestrator step: %w", err)
	}
	result.Plan = plan

	r.setStage(&result, StageDoing, target.ToolID)
	body, err := r.produce(ctx, target, content.String(), plan)
	if err != nil {
		result.Stage = StageError
		return result, fmt.Errorf("doer step: %w", err)
	}

	r.setStage(&result, StageValidating, target.ToolID)
	verdict, err := r.validate(ctx, target, body)
	if err != nil {
		// A malformed QA payload is never treated as approval.
		result.Stage = StageError
		return result, fmt.Errorf("qa step: %w", err)
	}
	if !verdict.Approved {
		result.Stage = StageError
		result.Feedback = verdict.Feedback
		rejection := &RejectedError{Unit: target.Name, Feedback: verdict.Feedback}
		r.bus.Notify(fmt.Sprintf("Export to %s rejected: %s", target.Name, verdict.Feedback), events.LevelError)
		return result, rejection
	}

	result.Artifact = Artifact{
		Filename: target.Filename(r.project.Name),
		Body:     body,
	}
	r.setStage(&result, StageComplete, result.Artifact.Filename)
	r.bus.Notify(fmt.Sprintf("Export to %s complete: %s", target.Name, result.Artifact.Filename), events.LevelSuccess)
	return result, nil
}

// plan asks the orchestrator for a step-by-step extraction plan.
func (r *ExportRunner) plan(ctx context.Context, target catalog.Target, content string) (string, error) {
	prompt := fmt.Sprintf(`%s

=== EXPORT TARGET ===
Tool: %s (%s)
Required output format: %s
%s

Write a concise step-by-step plan for extracting the relevant project content
and formatting it for this tool. Number each step.`,
		content, target.Name, target.Category, target.OutputFormat, target.FormatDescription)

	resp, err := r.model.Generate(ctx, provider.Request{
		Tier:   provider.TierQuality,
		System: "You are an export planner for engineering project data.",
		Prompt: prompt,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// produce asks the doer for the literal artifact body.
func (r *ExportRunner) produce(ctx context.Context, target catalog.Target, content, plan string) (string, error) {
	prompt := fmt.Sprintf(`%s

=== EXTRACTION PLAN ===
%s

=== FORMAT CONTRACT ===
%s

Follow the plan and produce the %s artifact now. Output only the raw file
body. No commentary, no code fences, no explanation.`,
		content, plan, target.FormatDescription, target.OutputFormat)

	resp, err := r.model.Generate(ctx, provider.Request{
		Tier:   provider.TierQuality,
		System: "You produce machine-readable export files. Your entire output is written to disk verbatim.",
		Prompt: prompt,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// validate asks QA for a structured verdict against the target's acceptance
// criteria.
func (r *ExportRunner) validate(ctx context.Context, target catalog.Target, body string) (Verdict, error) {
	prompt := fmt.Sprintf(`=== ACCEPTANCE CRITERIA ===
%s

=== FORMAT CONTRACT ===
%s

=== CANDIDATE ARTIFACT ===
%s

Does the candidate satisfy the acceptance criteria and the format contract?
Respond with JSON {"approved": bool, "feedback": string}. Feedback is required when not approved.`,
		target.AcceptanceCriteria, target.FormatDescription, body)

	var verdict Verdict
	err := r.model.GenerateJSON(ctx, provider.Request{
		Tier:   provider.TierQuality,
		System: "You are an exacting format reviewer.",
		Prompt: prompt,
		Schema: verdictSchema(),
	}, &verdict)
	if err != nil {
		return Verdict{}, err
	}
	if !verdict.Approved && verdict.Feedback == "" {
		return Verdict{}, &provider.FormatError{Detail: "qa rejection without feedback"}
	}
	return verdict, nil
}

func (r *ExportRunner) setStage(result *ExportResult, stage Stage, detail string) {
	result.Stage = stage
	r.bus.Publish(events.TopicRun, events.StageChangedEvent{
		RunID: result.RunID, Stage: stage.String(), Detail: detail, Timestamp: time.Now(),
	})
}
