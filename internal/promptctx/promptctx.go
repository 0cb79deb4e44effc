// Package promptctx assembles the prompt context handed to the model: static
// project facts plus accumulated prior-phase and prior-item content. Nothing
// here is persisted; context is rebuilt per invocation from the snapshot the
// caller provides.
package promptctx

import (
	"fmt"
	"strings"

	"github.com/epartner/engine/internal/domain"
)

// MaxSectionRunes caps any single document section so one oversized output
// cannot crowd out the rest of the context window.
const MaxSectionRunes = 24000

// Builder accumulates labeled sections and renders them as one context string.
type Builder struct {
	sections []section
}

type section struct {
	label string
	body  string
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a labeled section. Empty bodies are skipped.
func (b *Builder) Add(label, body string) *Builder {
	body = strings.TrimSpace(body)
	if body == "" {
		return b
	}
	b.sections = append(b.sections, section{label: label, body: truncate(body, MaxSectionRunes)})
	return b
}

// AddProject appends the static project facts.
func (b *Builder) AddProject(p domain.Project) *Builder {
	var sb strings.Builder
	if p.Name != "" {
		fmt.Fprintf(&sb, "Name: %s\n", p.Name)
	}
	if len(p.Disciplines) > 0 {
		fmt.Fprintf(&sb, "Disciplines: %s\n", strings.Join(p.Disciplines, ", "))
	}
	if p.Mode != "" {
		fmt.Fprintf(&sb, "Development mode: %s\n", p.Mode)
	}
	if p.Requirements != "" {
		fmt.Fprintf(&sb, "Requirements:\n%s\n", p.Requirements)
	}
	if p.Constraints != "" {
		fmt.Fprintf(&sb, "Constraints:\n%s\n", p.Constraints)
	}
	return b.Add("PROJECT", sb.String())
}

// AddPhase appends a phase's current document plus every completed work
// item's current content, in declaration order.
func (b *Builder) AddPhase(p *domain.Phase) *Builder {
	if content := p.CurrentContent(); content != "" {
		b.Add(fmt.Sprintf("PHASE %s", p.Name), content)
	}
	for _, item := range p.WorkItems {
		if item.Status != domain.ItemCompleted {
			continue
		}
		if content := item.CurrentContent(); content != "" {
			b.Add(fmt.Sprintf("DOCUMENT %s", item.Name), content)
		}
	}
	return b
}

// AddCompletedItems appends the current content of the given items, used by
// the scheduler so each unit sees its prerequisites' freshly produced output.
func (b *Builder) AddCompletedItems(items []*domain.WorkItem) *Builder {
	for _, item := range items {
		if item.Status != domain.ItemCompleted {
			continue
		}
		if content := item.CurrentContent(); content != "" {
			b.Add(fmt.Sprintf("DOCUMENT %s", item.Name), content)
		}
	}
	return b
}

// String renders the accumulated sections.
func (b *Builder) String() string {
	var sb strings.Builder
	for i, s := range b.sections {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "=== %s ===\n%s", s.label, s.body)
	}
	return sb.String()
}

// Empty reports whether nothing was added.
func (b *Builder) Empty() bool {
	return len(b.sections) == 0
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "\n[... truncated ...]"
}
