package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/immersive/internal/tasks"
)

// renderMain renders the header, the list, the edit line and the footer.
func (m Model) renderMain() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderList())

	if m.editing {
		b.WriteString("\n")
		b.WriteString(m.theme.Styles().Input.Width(m.width).Render(m.input.View()))
	}
	if m.prefs.ShowLogs {
		b.WriteString("\n")
		b.WriteString(m.renderLogs())
	}
	if m.message != "" {
		b.WriteString("\n")
		b.WriteString(m.renderMessage())
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	committed := tasks.State{Tasks: m.committed.Value()}
	open, done := committed.Counts()
	status := m.local.Status().String()

	parts := []string{
		styles.Logo.Render("immersive"),
		styles.StatusStyle("open").Render(fmt.Sprintf("%d open", open)),
		styles.StatusStyle("done").Render(fmt.Sprintf("%d done", done)),
		styles.StatusStyle(status).Render(status),
		styles.FaintText.Render(fmt.Sprintf("v%d", m.provider.Version())),
	}
	if m.prefs.HideDone {
		parts = append(parts, styles.MutedText.Render("done hidden"))
	}
	return styles.Header.Width(m.width).Render(strings.Join(parts, " "))
}

// listHeight is how many rows the list may use.
func (m Model) listHeight() int {
	h := m.height - 2 // header and footer
	if m.editing {
		h--
	}
	if m.message != "" {
		h--
	}
	if m.prefs.ShowLogs {
		h -= m.logHeight() + 2
	}
	return max(h, 1)
}

func (m Model) renderList() string {
	styles := m.theme.Styles()
	visible := m.visible()
	if len(visible) == 0 {
		return styles.MutedText.Render("  no tasks, press a to add one")
	}

	height := m.listHeight()
	start := 0
	if m.selected >= height {
		start = m.selected - height + 1
	}
	end := min(start+height, len(visible))

	lines := make([]string, 0, end-start)
	for row := start; row < end; row++ {
		idx := visible[row]
		t := m.tasks[idx]
		box := "[ ]"
		text := styles.Text.Render(t.Task)
		if t.Done {
			box = "[x]"
			text = styles.FaintText.Strikethrough(true).Render(t.Task)
		}
		if m.editing && idx == m.editIndex {
			text = styles.WarningText.Render(t.Task)
		}
		line := fmt.Sprintf(" %s %s", box, text)
		if row == m.selected {
			line = styles.Selected.Width(m.width).Render(fmt.Sprintf(" %s %s", box, t.Task))
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderMessage() string {
	styles := m.theme.Styles()
	if m.messageErr {
		return styles.DangerText.Render(m.message)
	}
	return styles.SuccessText.Render(m.message)
}

func (m Model) renderFooter() string {
	bindings := m.keys.ShortHelp()
	if m.editing {
		bindings = m.keys.editKeys()
	}
	return m.theme.Styles().Footer.Width(m.width).Render(m.help.ShortHelpView(bindings))
}
