package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/tatianab/casefile/internal/game"
	"github.com/tatianab/casefile/internal/models"
	"github.com/tatianab/casefile/internal/orchestrator"
	"github.com/tatianab/casefile/internal/storage"
	"github.com/tatianab/casefile/internal/story"
)

type screen int

const (
	screenSetup screen = iota
	screenLoading
	screenPlaying
	screenEnding
	screenHistory
	screenError
)

// Archive lists past cases and their turns for the history screen.
type Archive interface {
	ListCases(ctx context.Context, limit int) ([]storage.CaseSummary, error)
	CaseTurns(ctx context.Context, id string) ([]models.TurnRecord, error)
}

// Narration is the settings toggle for reading outcomes aloud.
type Narration interface {
	NarrationEnabled() bool
	SetNarration(on bool)
	Save(path string) error
}

// Options wires the optional collaborators of the UI.
type Options struct {
	// SaveDir receives the "current" save after every change.
	SaveDir string
	Archive Archive
	// Narration and SettingsPath enable the narration toggle.
	Narration    Narration
	SettingsPath string
	Logger       *zap.Logger
}

const historyLimit = 20

var fieldNames = [4]string{"Detective name", "Threat", "Location", "Objective"}

type model struct {
	screen screen
	// back is where history returns to.
	back screen

	orch   *orchestrator.Orchestrator
	opts   Options
	logger *zap.Logger

	inputs   [4]textinput.Model
	focus    int
	viewport viewport.Model
	spinner  spinner.Model

	snap    game.Snapshot
	history []storage.CaseSummary
	// opened is the history entry whose turns are shown, or -1.
	opened int
	turns  []models.TurnRecord
	// heading is the momentum the choice being resolved leads to.
	heading story.Momentum
	err     error
	notice  string
	width   int
	height  int
}

type doneMsg struct {
	err error
}

type historyMsg struct {
	cases []storage.CaseSummary
	err   error
}

type turnsMsg struct {
	index int
	turns []models.TurnRecord
	err   error
}

// NewModel builds the UI over orch. A session restored before the UI starts
// is picked up where it left off.
func NewModel(orch *orchestrator.Orchestrator, opts Options) model {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := model{
		orch:     orch,
		opts:     opts,
		logger:   logger,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		viewport: viewport.New(80, 20),
		snap:     orch.Snapshot(),
		opened:   -1,
	}
	for i := range m.inputs {
		ti := textinput.New()
		ti.Placeholder = fieldNames[i]
		ti.CharLimit = 120
		ti.Width = 50
		m.inputs[i] = ti
	}
	m.inputs[0].Focus()
	m.screen = m.screenFor(m.snap)
	if m.needsRequest() {
		m.screen = screenLoading
	}
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.screen == screenLoading {
		cmds = append(cmds, m.run(m.orch.RequestTurn))
	}
	return tea.Batch(cmds...)
}

// needsRequest reports whether the restored session is missing a scene or an ending.
func (m model) needsRequest() bool {
	switch {
	case m.snap.Status == models.StatusPlaying:
		return m.snap.Current == nil
	case m.snap.Status.Terminal():
		return m.snap.Ending == nil
	}
	return false
}

func (m model) screenFor(snap game.Snapshot) screen {
	switch {
	case snap.Status == models.StatusSetup:
		return screenSetup
	case snap.Status.Terminal():
		return screenEnding
	}
	return screenPlaying
}

func (m model) run(op func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: op(context.Background())}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.orch.Cancel()
			return m, tea.Quit
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.logWidth()
		m.viewport.Height = max(msg.Height-8, 5)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case doneMsg:
		return m.finish(msg.err), nil

	case historyMsg:
		if msg.err != nil {
			m.logger.Warn("Failed to list cases", zap.Error(msg.err))
			m.notice = "Case history is unavailable."
			return m, nil
		}
		m.history = msg.cases
		return m, nil

	case turnsMsg:
		if msg.err != nil {
			m.logger.Warn("Failed to load case turns", zap.Error(msg.err))
			m.notice = "That case could not be opened."
			return m, nil
		}
		m.opened = msg.index
		m.turns = msg.turns
		return m, nil
	}

	if m.screen == screenSetup {
		return m.updateInputs(msg)
	}
	return m, nil
}

// finish settles the UI after an orchestrator operation returns.
func (m model) finish(err error) model {
	m.snap = m.orch.Snapshot()
	m.save()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, models.ErrStaleResponse):
		m.logger.Debug("Operation discarded", zap.Error(err))
		if m.orch.IsBusy() {
			// A newer operation owns the screen.
			return m
		}
	case errors.Is(err, models.ErrBusy):
		m.notice = models.UserMessage(err)
		return m
	default:
		m.logger.Error("Operation failed", zap.Error(err))
		m.err = err
		m.screen = screenError
		return m
	}

	m.err = nil
	if m.screen == screenHistory {
		m.back = m.screenFor(m.snap)
		return m
	}
	m.screen = m.screenFor(m.snap)
	m.refresh()
	return m
}

func (m model) save() {
	if m.opts.SaveDir == "" || m.snap.Status == models.StatusSetup {
		return
	}
	if err := game.SaveSnapshot(m.opts.SaveDir, "current", m.snap); err != nil {
		m.logger.Warn("Failed to save case", zap.Error(err))
	}
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+r" && m.screen != screenSetup {
		return m.reset(), nil
	}

	switch m.screen {
	case screenSetup:
		return m.handleSetupKey(msg)

	case screenLoading:
		if key == "x" {
			m.orch.Cancel()
			m.snap = m.orch.Snapshot()
			m.screen = m.screenFor(m.snap)
			m.notice = "Generation cancelled. Press r to try again."
			m.refresh()
		}
		return m, nil

	case screenPlaying:
		switch key {
		case "a", "b", "c", "d", "e":
			if m.snap.Current == nil {
				return m, nil
			}
			label := strings.ToUpper(key)
			choice, ok := m.snap.Current.Choice(label)
			if !ok {
				return m, nil
			}
			m.heading = m.snap.Log.MomentumWith(choice.Points)
			m.notice = ""
			m.screen = screenLoading
			return m, tea.Batch(m.spinner.Tick, m.run(func(ctx context.Context) error {
				return m.orch.SelectChoice(ctx, label)
			}))
		case "r":
			return m.retry()
		case "v":
			return m.toggleNarration(), nil
		case "h":
			return m.openHistory()
		case "esc":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case screenEnding:
		switch key {
		case "enter":
			return m.reset(), nil
		case "r":
			return m.retry()
		case "h":
			return m.openHistory()
		case "q", "esc":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case screenHistory:
		switch key {
		case "esc", "h":
			if m.opened >= 0 {
				m.opened = -1
				m.turns = nil
				return m, nil
			}
			m.screen = m.back
			m.refresh()
		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			return m.openCase(int(key[0] - '1'))
		}
		return m, nil

	case screenError:
		switch key {
		case "r":
			return m.retry()
		case "esc":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) handleSetupKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "ctrl+l":
		return m.openHistory()
	case "tab", "down":
		m.focusField(m.focus + 1)
		return m, textinput.Blink
	case "shift+tab", "up":
		m.focusField(m.focus - 1)
		return m, textinput.Blink
	case "enter":
		if m.focus < len(m.inputs)-1 {
			m.focusField(m.focus + 1)
			return m, textinput.Blink
		}
		c := models.CaseFile{
			Detective: strings.TrimSpace(m.inputs[0].Value()),
			Threat:    strings.TrimSpace(m.inputs[1].Value()),
			Location:  strings.TrimSpace(m.inputs[2].Value()),
			Objective: strings.TrimSpace(m.inputs[3].Value()),
		}
		if err := m.orch.Configure(c); err != nil {
			m.notice = err.Error()
			return m, nil
		}
		m.notice = ""
		m.screen = screenLoading
		return m, tea.Batch(m.spinner.Tick, m.run(m.orch.Start))
	}
	return m.updateInputs(msg)
}

func (m *model) focusField(i int) {
	n := len(m.inputs)
	m.focus = (i%n + n) % n
	for j := range m.inputs {
		if j == m.focus {
			m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
}

func (m model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmds := make([]tea.Cmd, len(m.inputs))
	for i := range m.inputs {
		m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
	}
	return m, tea.Batch(cmds...)
}

// retry asks the orchestrator for whatever the session is missing.
func (m model) retry() (tea.Model, tea.Cmd) {
	if !m.needsRequest() {
		if m.screen == screenError {
			m.err = nil
			m.screen = m.screenFor(m.snap)
			m.refresh()
		}
		return m, nil
	}
	m.err = nil
	m.notice = ""
	m.screen = screenLoading
	return m, tea.Batch(m.spinner.Tick, m.run(m.orch.RequestTurn))
}

func (m model) reset() model {
	m.orch.Reset()
	m.snap = m.orch.Snapshot()
	if m.opts.SaveDir != "" {
		if err := game.RemoveSnapshot(m.opts.SaveDir, "current"); err != nil {
			m.logger.Warn("Failed to remove saved case", zap.Error(err))
		}
	}
	m.err = nil
	m.notice = ""
	m.screen = screenSetup
	for i := range m.inputs {
		m.inputs[i].Reset()
	}
	m.focusField(0)
	return m
}

func (m model) toggleNarration() model {
	n := m.opts.Narration
	if n == nil {
		m.notice = "Narration is not available."
		return m
	}
	n.SetNarration(!n.NarrationEnabled())
	if m.opts.SettingsPath != "" {
		if err := n.Save(m.opts.SettingsPath); err != nil {
			m.logger.Warn("Failed to save settings", zap.Error(err))
		}
	}
	if n.NarrationEnabled() {
		m.notice = "Narration on."
	} else {
		m.notice = "Narration off."
	}
	return m
}

func (m model) openHistory() (tea.Model, tea.Cmd) {
	m.back = m.screen
	m.screen = screenHistory
	m.history = nil
	m.opened = -1
	m.turns = nil
	archive := m.opts.Archive
	if archive == nil {
		return m, nil
	}
	return m, func() tea.Msg {
		cases, err := archive.ListCases(context.Background(), historyLimit)
		return historyMsg{cases: cases, err: err}
	}
}

// openCase loads the turns of the i-th listed case.
func (m model) openCase(i int) (tea.Model, tea.Cmd) {
	archive := m.opts.Archive
	if archive == nil || i >= len(m.history) {
		return m, nil
	}
	id := m.history[i].ID
	return m, func() tea.Msg {
		turns, err := archive.CaseTurns(context.Background(), id)
		return turnsMsg{index: i, turns: turns, err: err}
	}
}

// Run starts the UI and blocks until the player quits.
func Run(orch *orchestrator.Orchestrator, opts Options) error {
	p := tea.NewProgram(NewModel(orch, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
