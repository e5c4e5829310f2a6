package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/casefile/internal/game"
	"github.com/tatianab/casefile/internal/mocks"
	"github.com/tatianab/casefile/internal/models"
	"github.com/tatianab/casefile/internal/orchestrator"
	"github.com/tatianab/casefile/internal/storage"
	"github.com/tatianab/casefile/internal/story"
)

type creds bool

func (c creds) HasValidCredentials() bool { return bool(c) }

const scene = `{"narrative": "Candles gutter in the nave.", "choices": [
	{"text": "Examine the font", "points": 2, "result": "Salt water, still warm."},
	{"text": "Listen at the crypt", "points": 1, "result": "A hymn, half drowned."},
	{"text": "Wait", "points": 0, "result": "Nothing stirs."},
	{"text": "Shout", "points": -1, "result": "The echo answers wrongly."},
	{"text": "Wade into the flooded aisle", "points": -2, "result": "The cold takes your breath."}]}`

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "ctrl+r":
		return tea.KeyMsg{Type: tea.KeyCtrlR}
	case "ctrl+l":
		return tea.KeyMsg{Type: tea.KeyCtrlL}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// drain runs cmd and feeds the orchestrator results back into m.
func drain(m tea.Model, cmd tea.Cmd) tea.Model {
	if cmd == nil {
		return m
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			m = drain(m, c)
		}
	case doneMsg, historyMsg, turnsMsg:
		m, _ = m.Update(msg)
	}
	return m
}

func press(m tea.Model, s string) tea.Model {
	m, cmd := m.Update(key(s))
	return drain(m, cmd)
}

func newTestModel(t *testing.T) (model, *mocks.Generator, string) {
	t.Helper()
	gen := mocks.NewGenerator(t)
	orch := orchestrator.New(game.NewSession(creds(true)), gen, nil)
	dir := t.TempDir()
	return NewModel(orch, Options{SaveDir: dir}), gen, dir
}

func fill(m model) model {
	for i, v := range []string{"Kane", "drowned choir", "Saltmarsh Abbey", "recover the reliquary"} {
		m.inputs[i].SetValue(v)
	}
	m.focusField(len(m.inputs) - 1)
	return m
}

func TestSetupStartsCase(t *testing.T) {
	m, gen, dir := newTestModel(t)
	assert.Equal(t, screenSetup, m.screen)
	gen.On("RequestTurn", mock.Anything, mock.Anything).Return(scene, nil).Once()

	got := press(fill(m), "enter").(model)

	assert.Equal(t, screenPlaying, got.screen)
	require.NotNil(t, got.snap.Current)
	assert.Contains(t, got.View(), "Examine the font")

	saves, err := game.ListSaves(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"current"}, saves)
}

func TestSetupRejectsBlankFields(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.focusField(len(m.inputs) - 1)

	got := press(m, "enter").(model)
	assert.Equal(t, screenSetup, got.screen)
	assert.Contains(t, got.notice, "detective name")
}

func TestChoiceKeyAdvances(t *testing.T) {
	m, gen, _ := newTestModel(t)
	gen.On("RequestTurn", mock.Anything, mock.Anything).Return(scene, nil).Twice()

	var tm tea.Model = press(fill(m), "enter")
	tm = press(tm, "b")

	got := tm.(model)
	assert.Equal(t, screenPlaying, got.screen)
	assert.Equal(t, 1, got.snap.Score)
	assert.Len(t, got.snap.Log, 1)
}

func TestErrorScreenAndRetry(t *testing.T) {
	m, gen, _ := newTestModel(t)
	gen.On("RequestTurn", mock.Anything, mock.Anything).Return("", fmt.Errorf("%w: revoked", models.ErrAuthentication)).Once()

	got := press(fill(m), "enter").(model)
	assert.Equal(t, screenError, got.screen)
	assert.True(t, strings.Contains(got.View(), "rejected the API key"))

	gen.On("RequestTurn", mock.Anything, mock.Anything).Return(scene, nil).Once()
	got = press(got, "r").(model)
	assert.Equal(t, screenPlaying, got.screen)
	require.NotNil(t, got.snap.Current)
}

func TestResetKey(t *testing.T) {
	m, gen, dir := newTestModel(t)
	gen.On("RequestTurn", mock.Anything, mock.Anything).Return(scene, nil).Once()

	started := press(fill(m), "enter")
	saves, err := game.ListSaves(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"current"}, saves)

	got := press(started, "ctrl+r").(model)
	assert.Equal(t, screenSetup, got.screen)
	assert.Equal(t, models.StatusSetup, got.snap.Status)
	assert.Empty(t, got.inputs[0].Value())

	saves, err = game.ListSaves(dir)
	require.NoError(t, err)
	assert.Empty(t, saves, "a discarded case must not be resumable")
}

func TestLosingChoiceShowsEnding(t *testing.T) {
	m, gen, _ := newTestModel(t)
	gen.On("RequestTurn", mock.Anything, mock.Anything).Return(scene, nil).Once()
	gen.On("RequestEnding", mock.Anything, mock.Anything).Return("The abbey floods at dawn.", nil).Once()

	got := press(press(fill(m), "enter"), "e").(model)
	assert.Equal(t, screenEnding, got.screen)
	assert.Equal(t, models.StatusLost, got.snap.Status)
	assert.Contains(t, got.View(), "CASE LOST")
}

func TestRestoredCaseFetchesMissingScene(t *testing.T) {
	gen := mocks.NewGenerator(t)
	gen.On("RequestTurn", mock.Anything, mock.Anything).Return(scene, nil).Once()

	session := game.NewSession(creds(true))
	require.NoError(t, session.Configure(models.CaseFile{Detective: "Kane", Threat: "choir", Location: "abbey", Objective: "reliquary"}))
	require.NoError(t, session.Start())
	orch := orchestrator.New(session, gen, nil)

	m := NewModel(orch, Options{})
	assert.Equal(t, screenLoading, m.screen)

	got := drain(m, m.Init()).(model)
	assert.Equal(t, screenPlaying, got.screen)
	require.NotNil(t, got.snap.Current)
}

func TestChoiceShowsMomentumHeading(t *testing.T) {
	m, gen, _ := newTestModel(t)
	gen.On("RequestTurn", mock.Anything, mock.Anything).Return(scene, nil).Once()

	playing := press(fill(m), "enter")
	loading, _ := playing.Update(key("a"))

	got := loading.(model)
	assert.Equal(t, screenLoading, got.screen)
	assert.Equal(t, story.Positive, got.heading)
	assert.Contains(t, got.View(), story.Positive.Describe())
}

func TestHistoryOpensCaseTurns(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	store, err := storage.New(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	at := time.Date(2024, 10, 31, 22, 0, 0, 0, time.UTC)
	c := models.CaseFile{Detective: "Kane", Threat: "drowned choir", Location: "Saltmarsh Abbey", Objective: "recover the reliquary"}
	require.NoError(t, store.OpenCase(ctx, "case-1", c, 8, at))
	require.NoError(t, store.AppendTurn(ctx, "case-1", models.TurnRecord{
		Index:      1,
		Narrative:  "Candles gutter in the nave.",
		Choice:     models.Choice{Label: "A", Text: "Examine the font", Points: 2, Outcome: "Salt water, still warm."},
		ScoreAfter: 2,
		At:         at.Add(time.Minute),
	}))

	orch := orchestrator.New(game.NewSession(creds(true)), mocks.NewGenerator(t), nil)
	var m tea.Model = NewModel(orch, Options{Archive: store})

	m = press(m, "ctrl+l")
	got := m.(model)
	assert.Equal(t, screenHistory, got.screen)
	require.Len(t, got.history, 1)
	assert.Contains(t, got.View(), "1. ")

	got = press(got, "1").(model)
	assert.Equal(t, 0, got.opened)
	require.Len(t, got.turns, 1)
	assert.Contains(t, got.View(), "Salt water, still warm.")

	got = press(got, "esc").(model)
	assert.Equal(t, screenHistory, got.screen)
	assert.Equal(t, -1, got.opened)

	got = press(got, "esc").(model)
	assert.Equal(t, screenSetup, got.screen)
}
