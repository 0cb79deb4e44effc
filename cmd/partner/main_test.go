package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/epartner/engine/internal/events"
)

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing plan: %v", err)
	}
	return path
}

func TestLoadPlanFull(t *testing.T) {
	path := writePlan(t, `{
		"project": {"id": "p1", "name": "Orbital Lander", "disciplines": ["mechanical", "software"], "mode": "mixed"},
		"phase": {
			"id": "concept",
			"name": "Concept",
			"items": [
				{"id": "reqs", "name": "Requirements"},
				{"id": "arch", "name": "Architecture", "depends_on": ["reqs"]}
			]
		}
	}`)

	project, phase, err := loadPlan(path)
	if err != nil {
		t.Fatalf("loadPlan() error = %v", err)
	}
	if project.Name != "Orbital Lander" || len(project.Disciplines) != 2 {
		t.Errorf("project = %+v", project)
	}
	if phase == nil || phase.ID != "concept" || len(phase.WorkItems) != 2 {
		t.Fatalf("phase = %+v", phase)
	}
	if got := phase.WorkItems[1].DependsOn; len(got) != 1 || got[0] != "reqs" {
		t.Errorf("dependencies = %v", got)
	}
}

func TestLoadPlanProjectOnly(t *testing.T) {
	path := writePlan(t, `{"project": {"id": "p1", "name": "Rover"}}`)

	project, phase, err := loadPlan(path)
	if err != nil {
		t.Fatalf("loadPlan() error = %v", err)
	}
	if phase != nil {
		t.Errorf("phase = %+v, want nil", phase)
	}
	if project.Name != "Rover" {
		t.Errorf("project name = %q", project.Name)
	}
}

func TestLoadPlanRejectsItemWithoutID(t *testing.T) {
	path := writePlan(t, `{
		"project": {"id": "p1"},
		"phase": {"id": "ph", "items": [{"name": "anonymous"}]}
	}`)

	if _, _, err := loadPlan(path); err == nil {
		t.Fatal("expected error for item without id")
	}
}

func TestLoadProjectFactsEmptyPath(t *testing.T) {
	project, err := loadProjectFacts("")
	if err != nil {
		t.Fatalf("loadProjectFacts() error = %v", err)
	}
	if project.Name != "" {
		t.Errorf("project = %+v, want zero value", project)
	}
}

func TestRenderNotificationCarriesMessageAndLevel(t *testing.T) {
	line := renderNotification(events.NotificationEvent{
		Message: "Requirements generated (v1)",
		Level:   events.LevelSuccess,
	})
	if !strings.Contains(line, "Requirements generated (v1)") {
		t.Errorf("message missing from %q", line)
	}
	if !strings.Contains(line, "SUCCESS") {
		t.Errorf("level tag missing from %q", line)
	}
}
