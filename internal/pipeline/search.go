package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/epartner/engine/internal/domain"
	"github.com/epartner/engine/internal/events"
	"github.com/epartner/engine/internal/promptctx"
	"github.com/epartner/engine/internal/provider"
)

// DefaultSearchIterations bounds the discovery loop when the config does not.
const DefaultSearchIterations = 25

// Finding is one discovered item: a risk, a required resource, or similar.
type Finding struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Severity    int    `json:"severity"`
	Description string `json:"description"`
	Remediation string `json:"remediation"`
}

// searchVerdict extends the QA verdict with the loop-termination signal.
type searchVerdict struct {
	Approved   bool   `json:"approved"`
	Feedback   string `json:"feedback"`
	ShouldStop bool   `json:"should_stop"`
}

func searchVerdictSchema() *provider.Schema {
	return provider.Object(
		provider.Field{Name: "approved", Type: provider.TypeBool},
		provider.Field{Name: "feedback", Type: provider.TypeString},
		provider.Field{Name: "should_stop", Type: provider.TypeBool},
	)
}

// Attempt records one iteration of the search for the audit log, approved or
// not.
type Attempt struct {
	Iteration int
	Topic     string
	Finding   Finding
	Approved  bool
	Feedback  string
}

// SearchConfig parameterizes a discovery run.
type SearchConfig struct {
	Project       domain.Project
	Context       string   // Accumulated project/phase content
	Subject       string   // What is being discovered, e.g. "risk" or "resource"
	Categories    []string // Closed category set enforced by schema
	MaxIterations int      // Defaults to DefaultSearchIterations
}

// SearchResult carries the approved findings and the full audit log. The log
// records every attempted candidate with its QA feedback.
type SearchResult struct {
	RunID      string
	Findings   []Finding
	Log        []Attempt
	Iterations int
	Stopped    string // "qa", "budget"
}

// Searcher runs the degenerate orchestrator -> doer -> QA loop that grows a
// collection one approved item at a time.
type Searcher struct {
	cfg   SearchConfig
	model Model
	bus   *events.Bus
}

// NewSearcher creates a searcher. bus may be nil.
func NewSearcher(cfg SearchConfig, model Model, bus *events.Bus) *Searcher {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultSearchIterations
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Searcher{cfg: cfg, model: model, bus: bus}
}

// Run iterates until QA signals stop, the budget is exhausted, or a hard
// agent error occurs. Hard errors abort the whole search with no partial
// result; partial results are returned only on budget or QA termination.
func (s *Searcher) Run(ctx context.Context) (SearchResult, error) {
	result := SearchResult{RunID: uuid.NewString()}

	for i := 1; i <= s.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return SearchResult{}, fmt.Errorf("search cancelled: %w", err)
		}
		result.Iterations = i

		topic, err := s.nextTopic(ctx, result.Findings)
		if err != nil {
			return SearchResult{}, fmt.Errorf("orchestrator step (iteration %d): %w", i, err)
		}

		candidate, err := s.investigate(ctx, topic)
		if err != nil {
			return SearchResult{}, fmt.Errorf("doer step (iteration %d): %w", i, err)
		}
		candidate.ID = uuid.NewString()

		verdict, err := s.review(ctx, candidate, i)
		if err != nil {
			return SearchResult{}, fmt.Errorf("qa step (iteration %d): %w", i, err)
		}

		attempt := Attempt{
			Iteration: i,
			Topic:     topic,
			Finding:   candidate,
			Approved:  verdict.Approved,
			Feedback:  verdict.Feedback,
		}
		result.Log = append(result.Log, attempt)

		if verdict.Approved {
			result.Findings = append(result.Findings, candidate)
			s.bus.Publish(events.TopicUnit, events.UnitCompletedEvent{
				ID: candidate.ID, Name: candidate.Title, Timestamp: time.Now(),
			})
			s.bus.Notify(fmt.Sprintf("Found %s: %s", s.cfg.Subject, candidate.Title), events.LevelInfo)
		} else {
			s.bus.Notify(fmt.Sprintf("Candidate %s rejected: %s", s.cfg.Subject, verdict.Feedback), events.LevelWarning)
		}

		if verdict.ShouldStop {
			result.Stopped = "qa"
			s.bus.Notify(fmt.Sprintf("%s search finished after %d iteration(s): %d found", s.cfg.Subject, i, len(result.Findings)), events.LevelSuccess)
			return result, nil
		}
	}

	result.Stopped = "budget"
	s.bus.Notify(fmt.Sprintf("%s search hit iteration budget: %d found", s.cfg.Subject, len(result.Findings)), events.LevelSuccess)
	return result, nil
}

// nextTopic asks the orchestrator what to investigate next, informed by what
// has already been found.
func (s *Searcher) nextTopic(ctx context.Context, found []Finding) (string, error) {
	var sb strings.Builder
	for _, f := range found {
		fmt.Fprintf(&sb, "- [%s] %s\n", f.Category, f.Title)
	}
	prior := sb.String()
	if prior == "" {
		prior = "(none yet)"
	}

	prompt := fmt.Sprintf(`%s

=== ALREADY FOUND ===
%s

Name the single most valuable unexplored %s area to investigate next.
Answer with one short topic phrase, nothing else.`,
		s.searchContext(), prior, s.cfg.Subject)

	resp, err := s.model.Generate(ctx, provider.Request{
		Tier:   provider.TierQuality,
		System: fmt.Sprintf("You direct a systematic %s discovery effort.", s.cfg.Subject),
		Prompt: prompt,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// investigate asks the doer for one structured candidate on the topic.
func (s *Searcher) investigate(ctx context.Context, topic string) (Finding, error) {
	schema := provider.Object(
		provider.Field{Name: "title", Type: provider.TypeString},
		provider.Field{Name: "category", Type: provider.TypeString, Enum: s.cfg.Categories},
		provider.Field{Name: "severity", Type: provider.TypeInt},
		provider.Field{Name: "description", Type: provider.TypeString},
		provider.Field{Name: "remediation", Type: provider.TypeString},
	)

	prompt := fmt.Sprintf(`%s

=== INVESTIGATION TOPIC ===
%s

Identify exactly one %s in this area. Respond with JSON:
{"title", "category" (one of %s), "severity" (1-5), "description", "remediation"}.`,
		s.searchContext(), topic, s.cfg.Subject, strings.Join(s.cfg.Categories, ", "))

	var finding Finding
	err := s.model.GenerateJSON(ctx, provider.Request{
		Tier:   provider.TierQuality,
		System: fmt.Sprintf("You are a %s analyst producing structured findings.", s.cfg.Subject),
		Prompt: prompt,
		Schema: schema,
	}, &finding)
	return finding, err
}

// review asks QA to approve or reject the candidate and to decide whether
// the search should continue.
func (s *Searcher) review(ctx context.Context, candidate Finding, iteration int) (searchVerdict, error) {
	prompt := fmt.Sprintf(`=== CANDIDATE %s ===
Title: %s
Category: %s
Severity: %d
Description: %s
Remediation: %s

Iteration %d of at most %d.

Approve the candidate only if it is concrete, relevant, and not a duplicate.
Set should_stop when returns are diminishing, the budget is nearly spent, or
severity has dropped to the trivial range.
Respond with JSON {"approved": bool, "feedback": string, "should_stop": bool}.`,
		strings.ToUpper(s.cfg.Subject), candidate.Title, candidate.Category, candidate.Severity,
		candidate.Description, candidate.Remediation, iteration, s.cfg.MaxIterations)

	var verdict searchVerdict
	err := s.model.GenerateJSON(ctx, provider.Request{
		Tier:   provider.TierQuality,
		System: "You are a quality reviewer gating a discovery process.",
		Prompt: prompt,
		Schema: searchVerdictSchema(),
	}, &verdict)
	if err != nil {
		return searchVerdict{}, err
	}
	if !verdict.Approved && verdict.Feedback == "" {
		return searchVerdict{}, &provider.FormatError{Detail: "qa rejection without feedback"}
	}
	return verdict, nil
}

func (s *Searcher) searchContext() string {
	return promptctx.NewBuilder().
		AddProject(s.cfg.Project).
		Add("PROJECT CONTENT", s.cfg.Context).
		String()
}

// RenderLog produces the human-readable running log document for the audit
// trail: every attempt, approved or rejected, with its feedback.
func (r SearchResult) RenderLog(subject string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s discovery log\n\n", subject)
	fmt.Fprintf(&sb, "Iterations: %d, approved: %d, stopped by: %s\n\n", r.Iterations, len(r.Findings), r.Stopped)
	for _, a := range r.Log {
		status := "APPROVED"
		if !a.Approved {
			status = "REJECTED"
		}
		fmt.Fprintf(&sb, "## Iteration %d: %s\n", a.Iteration, status)
		fmt.Fprintf(&sb, "Topic: %s\n", a.Topic)
		fmt.Fprintf(&sb, "Candidate: [%s] %s (severity %d)\n", a.Finding.Category, a.Finding.Title, a.Finding.Severity)
		if a.Feedback != "" {
			fmt.Fprintf(&sb, "Feedback: %s\n", a.Feedback)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
