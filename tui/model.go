package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pixconv/models"
)

// Update reports one job reaching a terminal state.
type Update struct {
	FileName string
	Status   models.Status
	Mode     models.Mode
	Error    string
}

// Model renders live batch progress from a stream of job updates. The
// program quits when the update channel is closed.
type Model struct {
	updates   <-chan Update
	bar       progress.Model
	started   time.Time
	total     int
	completed int
	failed    int
	edge      int
	last      string
	quitting  bool
}

type doneMsg struct{}

type updateMsg Update

func NewModel(total int, updates <-chan Update) Model {
	return Model{
		updates: updates,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		started: time.Now(),
		total:   total,
	}
}

func (m Model) Init() tea.Cmd {
	return listenForUpdates(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		switch msg.Status {
		case models.StatusCompleted:
			m.completed++
			if msg.Mode == models.ModeEdge {
				m.edge++
			}
			m.last = msg.FileName
		case models.StatusError:
			m.failed++
			m.last = msg.FileName + ": " + msg.Error
		}
		return m, listenForUpdates(m.updates)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.bar.Width = max(20, min(60, msg.Width-10))
		return m, nil
	default:
		return m, nil
	}
}

// Ratio is the share of jobs that reached a terminal state.
func (m Model) Ratio() float64 {
	if m.total == 0 {
		return 0
	}
	return min(1, float64(m.completed+m.failed)/float64(m.total))
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	elapsed := time.Since(m.started).Round(time.Millisecond)
	lines := []string{
		titleStyle.Render("pixconv"),
		labelStyle.Render(fmt.Sprintf("Files: %d/%d", m.completed+m.failed, m.total)) +
			dimStyle.Render(fmt.Sprintf("  errors:%d  edge:%d", m.failed, m.edge)),
		m.bar.ViewAs(m.Ratio()),
		dimStyle.Render(fmt.Sprintf("Elapsed: %s", elapsed)),
	}
	if m.last != "" {
		lines = append(lines, dimStyle.Render(m.last))
	}
	return strings.Join(lines, "\n")
}

func listenForUpdates(updates <-chan Update) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return updateMsg(update)
	}
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
