package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/immersive/internal/logtail"
)

const logLines = 200

type logsMsg struct {
	entries []logtail.Entry
	err     error
}

type logTickMsg time.Time

func loadLogsCmd(path string) tea.Cmd {
	return func() tea.Msg {
		if path == "" {
			return logsMsg{}
		}
		entries, err := logtail.Tail(path, logLines)
		return logsMsg{entries: entries, err: err}
	}
}

func logTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return logTickMsg(t)
	})
}

// logHeight is the inner height of the log pane.
func (m Model) logHeight() int {
	return max(m.height/3, 3)
}

func (m *Model) resizeLogs() {
	if m.width == 0 {
		return
	}
	w, h := max(m.width-2, 10), m.logHeight()
	if m.logViewport.Width == 0 {
		m.logViewport = viewport.New(w, h)
		return
	}
	m.logViewport.Width = w
	m.logViewport.Height = h
}

func (m *Model) handleLogs(msg logsMsg) {
	if msg.err != nil {
		m.setError("read log: " + msg.err.Error())
		return
	}
	follow := m.logViewport.AtBottom() || m.logViewport.TotalLineCount() == 0
	m.logViewport.SetContent(m.formatLogs(msg.entries))
	if follow {
		m.logViewport.GotoBottom()
	}
}

func (m Model) formatLogs(entries []logtail.Entry) string {
	styles := m.theme.Styles()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		var b strings.Builder
		if !e.Time.IsZero() {
			b.WriteString(styles.FaintText.Render(e.Time.Local().Format("15:04:05")))
			b.WriteString(" ")
		}
		if e.Level != "" {
			b.WriteString(styles.LevelStyle(e.Level).Render(e.Level))
			b.WriteString(" ")
		}
		b.WriteString(styles.Text.Render(e.Msg))
		for _, a := range e.Attrs {
			b.WriteString(" ")
			b.WriteString(styles.MutedText.Render(a.Key + "=" + a.Value))
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderLogs() string {
	return m.theme.Styles().Pane.Render(m.logViewport.View())
}
