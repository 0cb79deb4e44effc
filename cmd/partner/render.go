package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/epartner/engine/internal/domain"
	"github.com/epartner/engine/internal/events"
	"github.com/epartner/engine/internal/pipeline"
)

var levelStyles = map[events.Level]lipgloss.Style{
	events.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	events.LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	events.LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	events.LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
}

// renderNotification formats one user-facing progress line.
func renderNotification(n events.NotificationEvent) string {
	style, ok := levelStyles[n.Level]
	if !ok {
		style = levelStyles[events.LevelInfo]
	}
	tag := strings.ToUpper(string(n.Level))
	return style.Render(fmt.Sprintf("[%s] %s", tag, n.Message))
}

// consumeNotifications prints notification events until the bus closes.
func consumeNotifications(ch <-chan events.Event) {
	for ev := range ch {
		if n, ok := ev.(events.NotificationEvent); ok {
			fmt.Println(renderNotification(n))
		}
	}
}

// printItemTable renders the end-of-run work item summary.
func printItemTable(items []*domain.WorkItem) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Status", "Version", "Error"})
	for _, item := range items {
		errText := ""
		if item.Error != nil {
			errText = item.Error.Error()
		}
		version := ""
		if n := len(item.Outputs); n > 0 {
			version = fmt.Sprintf("v%d", item.Outputs[n-1].Version)
		}
		tw.AppendRow(table.Row{item.ID, item.Name, item.Status.String(), version, errText})
	}
	tw.Render()
}

// printDocumentTable renders the change-pipeline document summary.
func printDocumentTable(docs []*pipeline.ImpactedDocument) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Document", "Status", "Feedback"})
	for _, doc := range docs {
		tw.AppendRow(table.Row{doc.Name, doc.Status.String(), doc.Feedback})
	}
	tw.Render()
}

// printFindingsTable renders approved discovery findings.
func printFindingsTable(findings []pipeline.Finding) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Title", "Category", "Severity", "Remediation"})
	for _, f := range findings {
		tw.AppendRow(table.Row{f.Title, f.Category, f.Severity, f.Remediation})
	}
	tw.Render()
}
