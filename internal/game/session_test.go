package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/casefile/internal/models"
)

type creds bool

func (c creds) HasValidCredentials() bool { return bool(c) }

var kane = models.CaseFile{
	Detective: "Kane",
	Threat:    "drowned choir",
	Location:  "Saltmarsh Abbey",
	Objective: "recover the reliquary",
}

// turnWith builds a valid turn whose choice A carries the given points.
func turnWith(first int) models.Turn {
	points := []int{first}
	for _, p := range models.PointSpread {
		if p != first {
			points = append(points, p)
		}
	}
	t := models.Turn{Narrative: "Rain hammers the abbey roof."}
	for i, p := range points {
		t.Choices = append(t.Choices, models.Choice{
			Text:    "option " + models.Labels[i],
			Points:  p,
			Outcome: "outcome " + models.Labels[i],
		})
	}
	return t
}

func started(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s := NewSession(creds(true), opts...)
	require.NoError(t, s.Configure(kane))
	require.NoError(t, s.Start())
	return s
}

// play applies a choice worth points and returns the record.
func play(t *testing.T, s *Session, points int) models.TurnRecord {
	t.Helper()
	require.NoError(t, s.SetCurrentTurn(turnWith(points)))
	rec, err := s.ApplyChoice("a")
	require.NoError(t, err)
	return rec
}

func TestConfigure(t *testing.T) {
	s := NewSession(nil)
	err := s.Configure(models.CaseFile{Detective: "Kane", Location: "  "})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.ErrorContains(t, err, "threat, location, objective")

	require.NoError(t, s.Configure(kane))
	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Configure(kane), models.ErrIllegalStateTransition)
}

func TestStart(t *testing.T) {
	s := NewSession(creds(true))
	assert.ErrorIs(t, s.Start(), models.ErrValidation, "unconfigured")

	require.NoError(t, s.Configure(kane))
	require.NoError(t, s.Start())
	snap := s.Snapshot()
	assert.Equal(t, models.StatusPlaying, snap.Status)
	assert.Equal(t, 0, snap.Score)
	assert.Equal(t, 1, snap.Turn)

	stamp := s.Stamp()
	require.NoError(t, s.Start(), "start while playing is a no-op")
	assert.Equal(t, stamp, s.Stamp())
}

func TestStartRequiresCredentials(t *testing.T) {
	s := NewSession(creds(false))
	require.NoError(t, s.Configure(kane))
	assert.ErrorIs(t, s.Start(), models.ErrMissingCredentials)
	assert.Equal(t, models.StatusSetup, s.Status())
}

func TestScenarioA(t *testing.T) {
	s := started(t)
	rec := play(t, s, 2)

	assert.Equal(t, 0, rec.ScoreBefore)
	assert.Equal(t, 2, rec.ScoreAfter)
	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Score)
	assert.Equal(t, models.StatusPlaying, snap.Status)
	assert.Equal(t, 2, snap.Turn)
	assert.Nil(t, snap.Current)
	require.Len(t, snap.Log, 1)
	assert.Equal(t, "Rain hammers the abbey roof.", snap.Log[0].Narrative)
}

func TestScenarioB(t *testing.T) {
	s := started(t)
	play(t, s, 1)
	rec := play(t, s, -2)

	assert.Equal(t, 0, rec.ScoreAfter)
	assert.Equal(t, models.StatusLost, s.Status())
}

func TestScenarioC(t *testing.T) {
	s := started(t)
	for range 3 {
		play(t, s, 2)
	}
	play(t, s, 1)
	require.Equal(t, 7, s.Snapshot().Score)

	rec := play(t, s, 2)
	assert.Equal(t, 8, rec.ScoreAfter)
	assert.Equal(t, models.StatusWon, s.Status())
}

func TestNeutralChoiceAtZeroLoses(t *testing.T) {
	s := started(t)
	rec := play(t, s, 0)
	assert.Equal(t, 0, rec.ScoreAfter)
	assert.Equal(t, models.StatusLost, s.Status())
}

func TestScoreStaysClamped(t *testing.T) {
	s := started(t, WithMaxScore(3))
	seq := []int{2, -1, 2, 2}
	for _, p := range seq {
		if s.Status() != models.StatusPlaying {
			break
		}
		rec := play(t, s, p)
		assert.GreaterOrEqual(t, rec.ScoreAfter, 0)
		assert.LessOrEqual(t, rec.ScoreAfter, 3)
		assert.Equal(t, models.Clamp(rec.ScoreBefore+p, 3), rec.ScoreAfter)
	}
	assert.Equal(t, models.StatusWon, s.Status())
	assert.Equal(t, 3, s.Snapshot().Score)
}

func TestTerminalStateIsFinal(t *testing.T) {
	s := started(t)
	play(t, s, -2)
	require.Equal(t, models.StatusLost, s.Status())

	assert.ErrorIs(t, s.SetCurrentTurn(turnWith(0)), models.ErrIllegalStateTransition)
	_, err := s.ApplyChoice("A")
	assert.ErrorIs(t, err, models.ErrIllegalStateTransition)
	assert.ErrorIs(t, s.Start(), models.ErrIllegalStateTransition)
	assert.Equal(t, models.StatusLost, s.Status())
}

func TestApplyChoiceGuards(t *testing.T) {
	s := NewSession(nil)
	_, err := s.ApplyChoice("A")
	assert.ErrorIs(t, err, models.ErrIllegalStateTransition)

	s = started(t)
	_, err = s.ApplyChoice("A")
	assert.ErrorIs(t, err, models.ErrNoPendingTurn)

	require.NoError(t, s.SetCurrentTurn(turnWith(1)))
	_, err = s.ApplyChoice("F")
	assert.ErrorIs(t, err, models.ErrUnknownChoice)
	assert.NotNil(t, s.Snapshot().Current, "a bad label leaves the turn pending")
}

func TestSetCurrentTurnValidates(t *testing.T) {
	s := started(t)

	short := turnWith(0)
	short.Choices = short.Choices[:4]
	assert.ErrorIs(t, s.SetCurrentTurn(short), models.ErrValidation)

	dup := turnWith(0)
	dup.Choices[0].Points = 1
	err := s.SetCurrentTurn(dup)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.ErrorIs(t, err, models.ErrInvalidPointDistribution)
	assert.Nil(t, s.Snapshot().Current)

	require.NoError(t, s.SetCurrentTurn(turnWith(0)))
	current := s.Snapshot().Current
	require.NotNil(t, current)
	assert.Equal(t, 1, current.Number)
	assert.Equal(t, "E", current.Choices[4].Label)
}

func TestCommitTurnRejectsStale(t *testing.T) {
	s := started(t)
	stamp := s.Stamp()

	s.Reset()
	require.NoError(t, s.Configure(kane))
	require.NoError(t, s.Start())

	assert.ErrorIs(t, s.CommitTurn(stamp, turnWith(1)), models.ErrStaleResponse)
	assert.Nil(t, s.Snapshot().Current)

	fresh := s.Stamp()
	require.NoError(t, s.CommitTurn(fresh, turnWith(1)))
	_, err := s.ApplyChoice("A")
	require.NoError(t, err)
	assert.ErrorIs(t, s.CommitTurn(fresh, turnWith(1)), models.ErrStaleResponse, "turn has moved on")
}

func TestSetEndingFirstWriteWins(t *testing.T) {
	s := started(t)
	_, err := s.SetEnding(models.Ending{Text: "too early"})
	assert.ErrorIs(t, err, models.ErrIllegalStateTransition)

	play(t, s, -2)
	wrote, err := s.SetEnding(models.Ending{Text: "first", Victory: true})
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = s.SetEnding(models.Ending{Text: "second"})
	require.NoError(t, err)
	assert.False(t, wrote)

	ending := s.Snapshot().Ending
	require.NotNil(t, ending)
	assert.Equal(t, "first", ending.Text)
	assert.False(t, ending.Victory, "victory follows the status")
}

func TestCommitEndingRejectsOtherEpoch(t *testing.T) {
	s := started(t)
	play(t, s, -2)
	_, err := s.CommitEnding(Stamp{Epoch: "old"}, models.Ending{Text: "late"})
	assert.ErrorIs(t, err, models.ErrStaleResponse)
	assert.False(t, s.HasEnding())
}

func TestReset(t *testing.T) {
	c := creds(true)
	for name, setup := range map[string]func(*testing.T, *Session){
		"setup":   func(*testing.T, *Session) {},
		"playing": func(t *testing.T, s *Session) { play(t, s, 2) },
		"won": func(t *testing.T, s *Session) {
			for s.Status() == models.StatusPlaying {
				play(t, s, 2)
			}
			_, _ = s.SetEnding(models.Ending{Text: "done"})
		},
	} {
		t.Run(name, func(t *testing.T) {
			s := NewSession(c)
			if name != "setup" {
				require.NoError(t, s.Configure(kane))
				require.NoError(t, s.Start())
			}
			setup(t, s)
			before := s.Stamp()

			s.Reset()
			snap := s.Snapshot()
			assert.Equal(t, models.StatusSetup, snap.Status)
			assert.Equal(t, 0, snap.Score)
			assert.Equal(t, 0, snap.Turn)
			assert.Empty(t, snap.Log)
			assert.Nil(t, snap.Current)
			assert.Nil(t, snap.Ending)
			assert.Equal(t, models.CaseFile{}, snap.Case)
			assert.NotEqual(t, before.Epoch, snap.ID)
			assert.True(t, c.HasValidCredentials(), "settings survive reset")

			require.NoError(t, s.Configure(kane))
			require.NoError(t, s.Start())
		})
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := started(t)
	play(t, s, 1)
	require.NoError(t, s.SetCurrentTurn(turnWith(0)))

	snap := s.Snapshot()
	snap.Log[0].Choice.Text = "changed"
	snap.Current.Choices[0].Text = "changed"

	again := s.Snapshot()
	assert.Equal(t, "option A", again.Log[0].Choice.Text)
	assert.Equal(t, "option A", again.Current.Choices[0].Text)
}

func TestRecordTimestamp(t *testing.T) {
	at := time.Date(2024, 10, 31, 23, 0, 0, 0, time.UTC)
	s := started(t, WithClock(func() time.Time { return at }))
	rec := play(t, s, 1)
	assert.Equal(t, at, rec.At)
}
