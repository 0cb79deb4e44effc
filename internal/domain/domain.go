// Package domain holds the project aggregate: phases, work items, and their
// append-only versioned outputs.
package domain

import (
	"fmt"
	"time"
)

// ItemStatus represents the current state of a work item.
type ItemStatus int

const (
	ItemNotStarted ItemStatus = iota // Waiting for dependencies
	ItemInProgress                   // Currently generating
	ItemCompleted                    // Finished successfully
	ItemFailed                       // Finished with error
)

// String returns the status name used in events and persistence.
func (s ItemStatus) String() string {
	switch s {
	case ItemNotStarted:
		return "not-started"
	case ItemInProgress:
		return "in-progress"
	case ItemCompleted:
		return "completed"
	case ItemFailed:
		return "failed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// PhaseStatus represents the current state of a phase.
type PhaseStatus int

const (
	PhaseNotStarted PhaseStatus = iota
	PhaseInProgress
	PhaseInReview
	PhaseCompleted
)

// String returns the status name used in events and persistence.
func (s PhaseStatus) String() string {
	switch s {
	case PhaseNotStarted:
		return "not-started"
	case PhaseInProgress:
		return "in-progress"
	case PhaseInReview:
		return "in-review"
	case PhaseCompleted:
		return "completed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// VersionedOutput is an immutable snapshot of generated content. Outputs are
// append-only: new content always creates a new version, existing entries are
// never mutated.
type VersionedOutput struct {
	Version   int       // Monotonic per parent, strictly increasing
	Content   string    // Full document text
	Reason    string    // Why this version was produced
	CreatedAt time.Time
}

// WorkItem is a schedulable unit of content generation with declared
// prerequisites.
type WorkItem struct {
	ID          string
	Name        string
	Description string
	Status      ItemStatus
	DependsOn   []string // Work item IDs that must complete first
	Outputs     []VersionedOutput
	Error       error // Populated when Status == ItemFailed
}

// CurrentContent returns the latest output's content, or empty if none.
func (w *WorkItem) CurrentContent() string {
	if len(w.Outputs) == 0 {
		return ""
	}
	return w.Outputs[len(w.Outputs)-1].Content
}

// AppendOutput appends a new versioned output with the next version number.
func (w *WorkItem) AppendOutput(content, reason string) VersionedOutput {
	out := nextOutput(w.Outputs, content, reason)
	w.Outputs = append(w.Outputs, out)
	return out
}

// Phase is a container of work items representing one stage of the overall
// engineering workflow. A phase owns its work items.
type Phase struct {
	ID        string
	Name      string
	Status    PhaseStatus
	WorkItems []*WorkItem
	Outputs   []VersionedOutput
	Tuning    map[string]any // Free-form tuning parameters
}

// CurrentContent returns the latest phase-level output's content.
func (p *Phase) CurrentContent() string {
	if len(p.Outputs) == 0 {
		return ""
	}
	return p.Outputs[len(p.Outputs)-1].Content
}

// AppendOutput appends a new versioned output with the next version number.
func (p *Phase) AppendOutput(content, reason string) VersionedOutput {
	out := nextOutput(p.Outputs, content, reason)
	p.Outputs = append(p.Outputs, out)
	return out
}

// Item returns the work item with the given ID.
func (p *Phase) Item(id string) (*WorkItem, bool) {
	for _, w := range p.WorkItems {
		if w.ID == id {
			return w, true
		}
	}
	return nil, false
}

func nextOutput(existing []VersionedOutput, content, reason string) VersionedOutput {
	version := 1
	if n := len(existing); n > 0 {
		version = existing[n-1].Version + 1
	}
	return VersionedOutput{
		Version:   version,
		Content:   content,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
}

// Project is the static snapshot of project-level facts used to seed prompt
// context. It is supplied by the caller, never read from the environment.
type Project struct {
	ID           string
	Name         string
	Disciplines  []string
	Requirements string
	Constraints  string
	Mode         string // Development mode, e.g. "hardware", "software", "mixed"
}
