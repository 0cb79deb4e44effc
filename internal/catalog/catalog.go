// Package catalog holds the static table of external export targets. The
// table is injected read-only into the export pipeline; it parameterizes the
// doer and QA prompts and picks the artifact's file extension.
package catalog

import (
	"fmt"
	"strings"
)

// Target describes one external tool the engine can export to.
type Target struct {
	ToolID             string
	Name               string
	Category           string // e.g. "requirements", "cad", "project-management"
	OutputFormat       string // e.g. "csv", "json", "reqif"
	FormatDescription  string // Precise format contract handed to the doer
	AcceptanceCriteria string // Rubric handed to QA
	FileExt            string // Extension for the produced artifact, without dot
}

// Catalog is a read-only lookup of export targets.
type Catalog struct {
	targets map[string]Target
	order   []string
}

// New builds a catalog from the given targets. Duplicate tool IDs are
// rejected.
func New(targets []Target) (*Catalog, error) {
	c := &Catalog{targets: make(map[string]Target, len(targets))}
	for _, t := range targets {
		if t.ToolID == "" {
			return nil, fmt.Errorf("export target %q has no tool ID", t.Name)
		}
		if _, exists := c.targets[t.ToolID]; exists {
			return nil, fmt.Errorf("duplicate export target %q", t.ToolID)
		}
		if t.FileExt == "" {
			t.FileExt = "txt"
		}
		c.targets[t.ToolID] = t
		c.order = append(c.order, t.ToolID)
	}
	return c, nil
}

// Get returns the target with the given tool ID.
func (c *Catalog) Get(toolID string) (Target, bool) {
	t, ok := c.targets[toolID]
	return t, ok
}

// Targets returns all targets in registration order.
func (c *Catalog) Targets() []Target {
	out := make([]Target, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.targets[id])
	}
	return out
}

// Filename derives an artifact filename for this target from a base name.
func (t Target) Filename(base string) string {
	slug := strings.ToLower(strings.TrimSpace(base))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '-'
		}
		return -1
	}, slug)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "export"
	}
	return fmt.Sprintf("%s-%s.%s", slug, t.ToolID, t.FileExt)
}

// Defaults returns the built-in export targets.
func Defaults() []Target {
	return []Target{
		{
			ToolID:             "jira",
			Name:               "Jira",
			Category:           "project-management",
			OutputFormat:       "csv",
			FormatDescription:  "CSV with header row: Summary,Description,Issue Type,Priority,Labels. One row per work item. Fields containing commas must be double-quoted.",
			AcceptanceCriteria: "Every work item appears exactly once. The header row matches the required columns. No markdown, no commentary, valid CSV quoting throughout.",
			FileExt:            "csv",
		},
		{
			ToolID:             "doors",
			Name:               "IBM DOORS",
			Category:           "requirements",
			OutputFormat:       "csv",
			FormatDescription:  "CSV with header row: ID,Object Text,Priority,Verification Method. Requirement IDs follow the pattern REQ-NNN, numbered sequentially.",
			AcceptanceCriteria: "Each requirement is atomic and testable, IDs are sequential with no gaps, verification method is one of Test, Analysis, Inspection, Demonstration.",
			FileExt:            "csv",
		},
		{
			ToolID:             "simulink",
			Name:               "MATLAB Simulink",
			Category:           "modeling",
			OutputFormat:       "json",
			FormatDescription:  "JSON object with keys blocks (array of {name, type, parameters}) and connections (array of {from, to}). Block types restricted to standard Simulink library names.",
			AcceptanceCriteria: "The JSON parses, every connection references declared block names, and block parameters are numeric or string literals only.",
			FileExt:            "json",
		},
		{
			ToolID:             "confluence",
			Name:               "Confluence",
			Category:           "documentation",
			OutputFormat:       "markdown",
			FormatDescription:  "A single Markdown document with a top-level title, one section per phase document, and tables rendered as GitHub-flavored Markdown.",
			AcceptanceCriteria: "All phase content is represented, heading levels nest correctly, and no raw HTML appears.",
			FileExt:            "md",
		},
	}
}
