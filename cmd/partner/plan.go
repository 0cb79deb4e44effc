package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/epartner/engine/internal/domain"
)

// planFile is the on-disk project plan: static project facts plus one phase
// with its work items and dependency declarations.
type planFile struct {
	Project planProject `json:"project"`
	Phase   *planPhase  `json:"phase,omitempty"`
}

type planProject struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Disciplines  []string `json:"disciplines,omitempty"`
	Requirements string   `json:"requirements,omitempty"`
	Constraints  string   `json:"constraints,omitempty"`
	Mode         string   `json:"mode,omitempty"`
}

type planPhase struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Items []planItem `json:"items"`
}

type planItem struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// loadPlan reads a plan file. The phase section is optional; commands that
// only need project facts tolerate its absence.
func loadPlan(path string) (domain.Project, *domain.Phase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Project{}, nil, fmt.Errorf("reading plan: %w", err)
	}

	var plan planFile
	if err := json.Unmarshal(data, &plan); err != nil {
		return domain.Project{}, nil, fmt.Errorf("parsing plan %s: %w", path, err)
	}

	project := domain.Project{
		ID:           plan.Project.ID,
		Name:         plan.Project.Name,
		Disciplines:  plan.Project.Disciplines,
		Requirements: plan.Project.Requirements,
		Constraints:  plan.Project.Constraints,
		Mode:         plan.Project.Mode,
	}

	if plan.Phase == nil {
		return project, nil, nil
	}
	if plan.Phase.ID == "" {
		return domain.Project{}, nil, fmt.Errorf("plan phase needs an id")
	}

	phase := &domain.Phase{
		ID:     plan.Phase.ID,
		Name:   plan.Phase.Name,
		Status: domain.PhaseNotStarted,
	}
	for _, it := range plan.Phase.Items {
		if it.ID == "" {
			return domain.Project{}, nil, fmt.Errorf("plan item needs an id")
		}
		phase.WorkItems = append(phase.WorkItems, &domain.WorkItem{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			DependsOn:   it.DependsOn,
		})
	}
	return project, phase, nil
}

// loadProjectFacts returns the project section of a plan file, or a zero
// project when no path is given.
func loadProjectFacts(path string) (domain.Project, error) {
	if path == "" {
		return domain.Project{}, nil
	}
	project, _, err := loadPlan(path)
	return project, err
}
