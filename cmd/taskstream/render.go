package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
	"github.com/yungbote/taskstream-backend/internal/orchestrator"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("212")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		MarginTop(1)

	lineStyle = lipgloss.NewStyle().
		Padding(0, 2)

	metaStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("243"))

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")).
		Bold(true)

	contentStyle = lipgloss.NewStyle().
		Padding(0, 2).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240"))
)

func renderSnapshot(w io.Writer, snap orchestrator.Snapshot) error {
	if snap.Message == nil {
		_, err := fmt.Fprintln(w, metaStyle.Render("no task recorded"))
		return err
	}
	msg := snap.Message

	var b strings.Builder
	b.WriteString(titleStyle.Render(msg.Title))
	b.WriteString("\n")
	b.WriteString(metaStyle.Render(fmt.Sprintf("task %s · %s", msg.ID, status(msg))))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Progress"))
	b.WriteString("\n")
	for _, line := range msg.ProgressLines {
		b.WriteString(lineStyle.Render(line))
		b.WriteString("\n")
	}

	if len(snap.Steps) > 0 {
		b.WriteString(sectionStyle.Render(fmt.Sprintf("Steps (%d)", len(snap.Steps))))
		b.WriteString("\n")
		for _, s := range snap.Steps {
			b.WriteString(lineStyle.Render(fmt.Sprintf("%d. [%s] %s", s.StepNumber, s.Status, s.DisplayText)))
			b.WriteString("\n")
		}
	}

	if len(snap.Resources) > 0 {
		b.WriteString(sectionStyle.Render(fmt.Sprintf("Resources (%d)", len(snap.Resources))))
		b.WriteString("\n")
		for _, r := range snap.Resources {
			b.WriteString(lineStyle.Render(fmt.Sprintf("%s: %s", r.Type, r.Title)))
			b.WriteString("\n")
		}
	}

	if msg.Error != "" {
		b.WriteString(errorStyle.Render("Error: " + msg.Error))
		b.WriteString("\n")
	}
	if strings.TrimSpace(msg.Content) != "" {
		b.WriteString(sectionStyle.Render("Result"))
		b.WriteString("\n")
		b.WriteString(contentStyle.Render(msg.Content))
		b.WriteString("\n")
	}
	if snap.ReportLocation != "" {
		b.WriteString(metaStyle.Render("report: " + snap.ReportLocation))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func status(m *task.TaskMessage) string {
	switch {
	case m.Cancelled:
		return "cancelled"
	case m.Error != "":
		return "failed"
	case m.IsComplete:
		return "complete"
	case m.IsStreaming:
		return "streaming"
	default:
		return "pending"
	}
}
