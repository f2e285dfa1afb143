package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/immersive/channel"
	"github.com/five82/immersive/internal/prefs"
	"github.com/five82/immersive/internal/tasks"
	"github.com/five82/immersive/state"
)

// Options configures the UI.
type Options struct {
	// Context must carry a Provider of Tasks.
	Context   context.Context
	Tasks     *state.Context[tasks.State, tasks.Actions]
	Save      func(tasks.State) error
	LogPath   string
	Prefs     prefs.Prefs
	PrefsPath string
	LogTick   time.Duration
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx       context.Context
	provider  *state.Provider[tasks.State, tasks.Actions]
	save      func(tasks.State) error
	logPath   string
	prefs     prefs.Prefs
	prefsPath string
	logTick   time.Duration

	// Shared state
	actions   tasks.Actions
	local     *state.Local[tasks.State, tasks.Actions]
	edits     tasks.Actions
	committed *channel.Selector[tasks.State, []tasks.Task]
	staged    *channel.Selector[tasks.State, []tasks.Task]
	changes   chan struct{}

	// UI state
	keys   keyMap
	help   help.Model
	theme  Theme
	width  int
	height int
	ready  bool

	// List state
	tasks    []tasks.Task
	selected int

	// Edit line
	editing   bool
	editIndex int
	editOrig  string
	input     textinput.Model

	showHelp    bool
	logViewport viewport.Model
	message     string
	messageErr  bool
}

// New creates the task list model. It mounts its selectors and local overlay
// on the Provider found in opts.Context.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	logTick := opts.LogTick
	if logTick <= 0 {
		logTick = time.Second
	}
	save := opts.Save
	if save == nil {
		save = func(tasks.State) error { return nil }
	}

	changes := make(chan struct{}, 1)
	notify := func([]tasks.Task) {
		select {
		case changes <- struct{}{}:
		default:
		}
	}
	project := func(s tasks.State) []tasks.Task { return s.Tasks }

	local := opts.Tasks.UseLocalUpdates(ctx)
	input := textinput.New()
	input.Prompt = "rename: "

	m := Model{
		ctx:       ctx,
		provider:  opts.Tasks.UseContext(ctx),
		save:      save,
		logPath:   opts.LogPath,
		prefs:     opts.Prefs,
		prefsPath: prefsPath,
		logTick:   logTick,
		actions:   opts.Tasks.UseActions(ctx),
		local:     local,
		edits:     local.Actions(),
		committed: state.UseSelectState(ctx, opts.Tasks, project, channel.WithOnChange(notify)),
		staged:    state.UseLocalState(local, project, channel.WithOnChange(notify)),
		changes:   changes,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		theme:     GetTheme(opts.Prefs.Theme),
		input:     input,
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnterAltScreen,
		waitForChange(m.changes),
	}
	if m.prefs.ShowLogs {
		cmds = append(cmds, loadLogsCmd(m.logPath), logTickCmd(m.logTick))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing {
			return m.handleEditKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.input.Width = max(msg.Width-len(m.input.Prompt)-4, 10)
		m.resizeLogs()
		m.ready = true
		return m, nil

	case changeMsg:
		m.refresh()
		return m, tea.Batch(waitForChange(m.changes), m.watchStatus())

	case statusMsg:
		return m, m.watchStatus()

	case savedMsg:
		if msg.err != nil {
			m.setError(fmt.Sprintf("save failed: %v", msg.err))
		} else {
			m.setMessage(fmt.Sprintf("saved %d tasks", msg.count))
		}
		return m, nil

	case logTickMsg:
		if !m.prefs.ShowLogs {
			return m, nil
		}
		return m, tea.Batch(loadLogsCmd(m.logPath), logTickCmd(m.logTick))

	case logsMsg:
		m.handleLogs(msg)
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// handleKey processes keyboard input while the list has focus.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	visible := m.visible()
	current, hasCurrent := m.current(visible)

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.prefs.Theme = m.theme.Name
		m.savePrefs()

	case key.Matches(msg, m.keys.ToggleLogs):
		m.prefs.ShowLogs = !m.prefs.ShowLogs
		m.savePrefs()
		m.resizeLogs()
		if m.prefs.ShowLogs {
			return m, tea.Batch(loadLogsCmd(m.logPath), logTickCmd(m.logTick))
		}

	case key.Matches(msg, m.keys.HideDone):
		m.prefs.HideDone = !m.prefs.HideDone
		m.savePrefs()
		m.clampSelection()

	case key.Matches(msg, m.keys.Save):
		return m, saveCmd(m.save, m.provider.Snapshot())

	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, m.keys.Down):
		if m.selected < len(visible)-1 {
			m.selected++
		}
	case key.Matches(msg, m.keys.Top):
		m.selected = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selected = max(len(visible)-1, 0)

	case key.Matches(msg, m.keys.Add):
		m.actions.AddTask("")
		m.refresh()
		visible = m.visible()
		m.selected = max(len(visible)-1, 0)
		if idx, ok := m.current(visible); ok {
			return m, m.startEdit(idx)
		}

	case key.Matches(msg, m.keys.Delete):
		if hasCurrent {
			m.actions.RemoveTask(current)
			m.refresh()
		}

	case key.Matches(msg, m.keys.Toggle):
		if hasCurrent {
			m.actions.ToggleTask(current)
			m.refresh()
		}

	case key.Matches(msg, m.keys.Rename):
		if hasCurrent {
			return m, m.startEdit(current)
		}

	case key.Matches(msg, m.keys.ClearDone):
		_, done := tasks.State{Tasks: m.tasks}.Counts()
		m.actions.ClearDone()
		m.refresh()
		if done > 0 {
			m.setMessage(fmt.Sprintf("cleared %d done", done))
		}
	}

	return m, nil
}

// handleEditKey processes keyboard input while the edit line is open.
// Keystrokes are staged on the local overlay and reach the shared list when
// it flushes.
func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		name := m.input.Value()
		if m.local.Status() != state.Synced {
			// Commit now so a following list action cannot discard the
			// staged rename.
			m.actions.RenameTask(m.editIndex, name)
		}
		m.stopEdit()
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		m.edits.RenameTask(m.editIndex, m.editOrig)
		m.stopEdit()
		m.refresh()
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.edits.RenameTask(m.editIndex, after)
		m.refresh()
	}
	return m, tea.Batch(cmd, m.watchStatus())
}

func (m *Model) startEdit(index int) tea.Cmd {
	if index < 0 || index >= len(m.tasks) {
		return nil
	}
	m.editing = true
	m.editIndex = index
	m.editOrig = m.tasks[index].Task
	m.input.SetValue(m.editOrig)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) stopEdit() {
	m.editing = false
	m.input.Blur()
	m.input.SetValue("")
}

// refresh re-reads the staged list and keeps the selection in range.
func (m *Model) refresh() {
	m.tasks = m.staged.Value()
	m.clampSelection()
}

func (m *Model) clampSelection() {
	n := len(m.visible())
	if m.selected >= n {
		m.selected = n - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// visible returns the indexes of the tasks the list shows.
func (m Model) visible() []int {
	out := make([]int, 0, len(m.tasks))
	for i, t := range m.tasks {
		if m.prefs.HideDone && t.Done {
			continue
		}
		out = append(out, i)
	}
	return out
}

func (m Model) current(visible []int) (int, bool) {
	if m.selected < 0 || m.selected >= len(visible) {
		return 0, false
	}
	return visible[m.selected], true
}

// watchStatus polls the overlay status until it settles, so the status
// badge follows flushes that publish nothing the list shows.
func (m Model) watchStatus() tea.Cmd {
	if m.local.Status() == state.Synced {
		return nil
	}
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg { return statusMsg{} })
}

func (m *Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	if err := prefs.Save(m.prefsPath, m.prefs); err != nil {
		m.setError(fmt.Sprintf("save prefs: %v", err))
	}
}

func (m *Model) setMessage(text string) {
	m.message = text
	m.messageErr = false
}

func (m *Model) setError(text string) {
	m.message = text
	m.messageErr = true
}

// Messages

type changeMsg struct{}

type statusMsg struct{}

type savedMsg struct {
	count int
	err   error
}

// Commands

func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-changes
		return changeMsg{}
	}
}

func saveCmd(save func(tasks.State) error, snapshot tasks.State) tea.Cmd {
	return func() tea.Msg {
		return savedMsg{count: len(snapshot.Tasks), err: save(snapshot)}
	}
}

// Run starts the Bubble Tea program and blocks until it exits or ctx is
// cancelled.
func Run(ctx context.Context, opts Options) error {
	if opts.Context == nil {
		opts.Context = ctx
	}
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
