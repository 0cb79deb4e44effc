package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/epartner/engine/internal/domain"
	"github.com/epartner/engine/internal/events"
	"github.com/epartner/engine/internal/promptctx"
	"github.com/epartner/engine/internal/provider"
)

// ChangeConfig parameterizes a change-impact run.
type ChangeConfig struct {
	Project     domain.Project
	Request     string // The user's change request text, recorded as the output reason
	Standards   string // Compliance rubric handed to QA
	DoerRetries int    // Extra doer attempts after a QA rejection; 0 fails the unit on first rejection
}

// ChangeResult summarizes a finished change run.
type ChangeResult struct {
	RunID     string
	Stage     Stage
	Documents []*ImpactedDocument
}

// ChangeRunner edits every document the orchestrator judges impacted by a
// change request. Documents are processed one at a time: later documents'
// prompts assume earlier approved edits are already in the shared context,
// so the run stops on the first failure.
type ChangeRunner struct {
	cfg   ChangeConfig
	model Model
	apply Applier
	bus   *events.Bus
}

// NewChangeRunner creates a change runner. apply and bus may be nil.
func NewChangeRunner(cfg ChangeConfig, model Model, apply Applier, bus *events.Bus) *ChangeRunner {
	if bus == nil {
		bus = events.NewBus()
	}
	return &ChangeRunner{cfg: cfg, model: model, apply: apply, bus: bus}
}

// impactSchema validates the orchestrator's impacted-document list.
func impactSchema() *provider.Schema {
	return provider.Array(provider.Object(
		provider.Field{Name: "name", Type: provider.TypeString},
	))
}

// Run walks the phase's documents through orchestrate -> edit -> validate.
// On the first QA rejection or doer error the run ends with StageError and
// the remaining documents stay pending.
func (r *ChangeRunner) Run(ctx context.Context, phase *domain.Phase) (ChangeResult, error) {
	result := ChangeResult{RunID: uuid.NewString(), Stage: StageIdle}

	r.setStage(&result, StageOrchestrating, "identifying impacted documents")
	impacted, err := r.orchestrate(ctx, phase)
	if err != nil {
		result.Stage = StageError
		return result, fmt.Errorf("orchestrator step: %w", err)
	}
	result.Documents = impacted
	if len(impacted) == 0 {
		r.setStage(&result, StageComplete, "no documents impacted")
		r.bus.Notify("Change request impacts no documents", events.LevelInfo)
		return result, nil
	}

	approvedContext := promptctx.NewBuilder().AddProject(r.cfg.Project).AddPhase(phase)

	for _, doc := range result.Documents {
		if err := ctx.Err(); err != nil {
			result.Stage = StageError
			return result, fmt.Errorf("change run cancelled: %w", err)
		}

		if err := r.processDocument(ctx, &result, phase, doc, approvedContext); err != nil {
			result.Stage = StageError
			r.bus.Publish(events.TopicUnit, events.UnitFailedEvent{
				ID: doc.ID, Name: doc.Name, Err: err, Feedback: doc.Feedback, Timestamp: time.Now(),
			})
			r.bus.Notify(fmt.Sprintf("Change run stopped at %q: %v", doc.Name, err), events.LevelError)
			return result, err
		}

		// Later documents see this approved edit.
		approvedContext.Add(fmt.Sprintf("UPDATED %s", doc.Name), doc.NewContent)
	}

	r.setStage(&result, StageComplete, "all impacted documents updated")
	r.bus.Notify(fmt.Sprintf("Change applied to %d document(s)", len(result.Documents)), events.LevelSuccess)
	return result, nil
}

// orchestrate asks the model which documents the change request touches and
// resolves the names against the phase's documents.
func (r *ChangeRunner) orchestrate(ctx context.Context, phase *domain.Phase) ([]*ImpactedDocument, error) {
	catalogue := promptctx.NewBuilder().AddProject(r.cfg.Project).AddPhase(phase)

	prompt := fmt.Sprintf(`%s

=== CHANGE REQUEST ===
%s

List the documents above that must be edited to honor this change request.
Respond with a JSON array of objects, each {"name": "<document name>"}.
Only list documents that actually need edits.`, catalogue.String(), r.cfg.Request)

	var names []struct {
		Name string `json:"name"`
	}
	err := r.model.GenerateJSON(ctx, provider.Request{
		Tier:   provider.TierQuality,
		System: "You are a change-impact analyst for engineering documentation.",
		Prompt: prompt,
		Schema: impactSchema(),
	}, &names)
	if err != nil {
		return nil, err
	}

	var docs []*ImpactedDocument
	for _, n := range names {
		original, ok := lookupDocument(phase, n.Name)
		if !ok {
			r.bus.Notify(fmt.Sprintf("Orchestrator named unknown document %q, skipping", n.Name), events.LevelWarning)
			continue
		}
		docs = append(docs, &ImpactedDocument{
			ID:       uuid.NewString(),
			Name:     n.Name,
			Status:   DocPending,
			Original: original,
		})
	}
	return docs, nil
}

// processDocument runs doer and QA for one document, honoring the configured
// rejection-retry budget, and appends the approved edit to its owner.
func (r *ChangeRunner) processDocument(ctx context.Context, result *ChangeResult, phase *domain.Phase, doc *ImpactedDocument, approved *promptctx.Builder) error {
	feedback := ""

	for attempt := 0; attempt <= r.cfg.DoerRetries; attempt++ {
		doc.Status = DocEditing
		r.setStage(result, StageDoing, doc.Name)
		r.bus.Publish(events.TopicUnit, events.UnitStartedEvent{ID: doc.ID, Name: doc.Name, Timestamp: time.Now()})

		newContent, err := r.edit(ctx, doc, approved, feedback)
		if err != nil {
			doc.Status = DocFailed
			doc.Feedback = feedback
			return fmt.Errorf("doer step for %q: %w", doc.Name, err)
		}
		doc.NewContent = newContent

		doc.Status = DocValidating
		r.setStage(result, StageValidating, doc.Name)

		verdict, err := r.validate(ctx, doc)
		if err != nil {
			doc.Status = DocFailed
			return fmt.Errorf("qa step for %q: %w", doc.Name, err)
		}
		if verdict.Approved {
			doc.Status = DocComplete
			return r.record(ctx, phase, doc)
		}

		feedback = verdict.Feedback
		doc.Feedback = verdict.Feedback
	}

	doc.Status = DocFailed
	return &RejectedError{Unit: doc.Name, Feedback: doc.Feedback}
}

// edit asks the doer for the complete replacement content. The output is the
// literal document body; commentary would corrupt downstream consumers.
func (r *ChangeRunner) edit(ctx context.Context, doc *ImpactedDocument, approved *promptctx.Builder, feedback string) (string, error) {
	prompt := fmt.Sprintf(`%s

=== CHANGE REQUEST ===
%s

=== ORIGINAL %s ===
%s

Produce the complete updated text of %q with the change request applied.
Output only the document body. Do not add commentary, preamble, or diff markers.`,
		approved.String(), r.cfg.Request, doc.Name, doc.Original, doc.Name)

	if feedback != "" {
		prompt += fmt.Sprintf("\n\nA previous attempt was rejected by review with this feedback, address it:\n%s", feedback)
	}

	resp, err := r.model.Generate(ctx, provider.Request{
		Tier:   provider.TierQuality,
		System: "You are a technical writer updating engineering documents.",
		Prompt: prompt,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// validate asks QA for a structured verdict against the compliance rubric.
func (r *ChangeRunner) validate(ctx context.Context, doc *ImpactedDocument) (Verdict, error) {
	prompt := fmt.Sprintf(`=== RUBRIC ===
%s

=== CHANGE REQUEST ===
%s

=== ORIGINAL %s ===
%s

=== PROPOSED %s ===
%s

Does the proposed text correctly apply the change request and satisfy the rubric?
Respond with JSON {"approved": bool, "feedback": string}. Feedback is required when not approved.`,
		r.cfg.Standards, r.cfg.Request, doc.Name, doc.Original, doc.Name, doc.NewContent)

	var verdict Verdict
	err := r.model.GenerateJSON(ctx, provider.Request{
		Tier:   provider.TierQuality,
		System: "You are a quality reviewer for engineering documentation.",
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

// record appends the approved edit to the owning phase or work item. The
// reason field preserves the originating change request.
func (r *ChangeRunner) record(ctx context.Context, phase *domain.Phase, doc *ImpactedDocument) error {
	reason := fmt.Sprintf("change request: %s", r.cfg.Request)

	if phase.Name == doc.Name {
		out := phase.AppendOutput(doc.NewContent, reason)
		r.publishCompleted(doc, out.Version)
		if r.apply != nil {
			return r.apply.ApplyPhase(ctx, phase)
		}
		return nil
	}

	for _, item := range phase.WorkItems {
		if item.Name == doc.Name {
			out := item.AppendOutput(doc.NewContent, reason)
			r.publishCompleted(doc, out.Version)
			if r.apply != nil {
				return r.apply.ApplyItem(ctx, phase.ID, item)
			}
			return nil
		}
	}
	return fmt.Errorf("document %q no longer present in phase", doc.Name)
}

func (r *ChangeRunner) publishCompleted(doc *ImpactedDocument, version int) {
	r.bus.Publish(events.TopicUnit, events.UnitCompletedEvent{
		ID: doc.ID, Name: doc.Name, Version: version, Timestamp: time.Now(),
	})
}

func (r *ChangeRunner) setStage(result *ChangeResult, stage Stage, detail string) {
	result.Stage = stage
	r.bus.Publish(events.TopicRun, events.StageChangedEvent{
		RunID: result.RunID, Stage: stage.String(), Detail: detail, Timestamp: time.Now(),
	})
}

// lookupDocument resolves a document name to its current content: the phase
// document itself or any work item's latest output.
func lookupDocument(phase *domain.Phase, name string) (string, bool) {
	if phase.Name == name {
		return phase.CurrentContent(), true
	}
	for _, item := range phase.WorkItems {
		if item.Name == name {
			return item.CurrentContent(), true
		}
	}
	return "", false
}
