package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"pixconv/models"
)

func TestModelCountsUpdates(t *testing.T) {
	updates := make(chan Update)
	var m tea.Model = NewModel(4, updates)

	m, _ = m.Update(updateMsg{FileName: "a.png", Status: models.StatusCompleted, Mode: models.ModeEdge})
	m, _ = m.Update(updateMsg{FileName: "b.png", Status: models.StatusError, Error: "boom"})
	model := m.(Model)
	if model.completed != 1 || model.failed != 1 || model.edge != 1 {
		t.Fatalf("counts = %+v", model)
	}
	if model.Ratio() != 0.5 {
		t.Errorf("ratio = %v", model.Ratio())
	}
	view := model.View()
	if !strings.Contains(view, "Files: 2/4") || !strings.Contains(view, "b.png: boom") {
		t.Errorf("view = %q", view)
	}

	m, cmd := m.Update(doneMsg{})
	if cmd == nil || m.View() != "" {
		t.Error("done should quit and clear the view")
	}
}

func TestListenForUpdatesClosedChannel(t *testing.T) {
	updates := make(chan Update)
	close(updates)
	if _, ok := listenForUpdates(updates)().(doneMsg); !ok {
		t.Error("closed channel should produce doneMsg")
	}
}
