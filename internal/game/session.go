// Package game holds the session state machine: setup, play and the two
// terminal states, with the clamped score and the story log.
package game

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tatianab/casefile/internal/models"
	"github.com/tatianab/casefile/internal/story"
)

// Credentials is the part of the settings collaborator the session consults.
type Credentials interface {
	HasValidCredentials() bool
}

// Option configures a Session.
type Option func(*Session)

// WithMaxScore sets the winning score. Values below 1 are ignored.
func WithMaxScore(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxScore = n
		}
	}
}

// WithClock overrides the clock used to stamp turn records.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// Session is the single live game. All methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	creds    Credentials
	maxScore int
	now      func() time.Time

	id         string
	caseFile   models.CaseFile
	configured bool
	score      int
	turn       int
	status     models.Status
	current    *models.Turn
	log        story.Log
	ending     *models.Ending
}

// NewSession returns a session in setup. creds may be nil, in which case
// Start does not check credentials.
func NewSession(creds Credentials, opts ...Option) *Session {
	s := &Session{
		creds:    creds,
		maxScore: models.DefaultMaxScore,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clear()
	return s
}

// clear returns the session to setup under a fresh epoch. Caller holds mu.
func (s *Session) clear() {
	s.id = uuid.NewString()
	s.caseFile = models.CaseFile{}
	s.configured = false
	s.score = 0
	s.turn = 0
	s.status = models.StatusSetup
	s.current = nil
	s.log = nil
	s.ending = nil
}

// MaxScore returns the winning score.
func (s *Session) MaxScore() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxScore
}

// Status returns the lifecycle state.
func (s *Session) Status() models.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// HasEnding reports whether the ending has been written.
func (s *Session) HasEnding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ending != nil
}

// Stamp identifies the current epoch and turn so a response can be matched
// back to the state that requested it.
func (s *Session) Stamp() Stamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stamp{Epoch: s.id, Turn: s.turn}
}

// Configure records the setup fields.
func (s *Session) Configure(c models.CaseFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != models.StatusSetup {
		return fmt.Errorf("%w: configure while %s", models.ErrIllegalStateTransition, s.status)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	s.caseFile = c
	s.configured = true
	return nil
}

// Start moves a configured session from setup to playing. It is a no-op
// when the session is already playing.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case models.StatusPlaying:
		return nil
	case models.StatusSetup:
	default:
		return fmt.Errorf("%w: start while %s, reset first", models.ErrIllegalStateTransition, s.status)
	}
	if !s.configured {
		return fmt.Errorf("%w: case is not configured", models.ErrValidation)
	}
	if s.creds != nil && !s.creds.HasValidCredentials() {
		return models.ErrMissingCredentials
	}

	s.id = uuid.NewString()
	s.score = 0
	s.turn = 1
	s.log = nil
	s.current = nil
	s.ending = nil
	s.status = models.StatusPlaying
	return nil
}

// SetCurrentTurn replaces the turn awaiting a decision.
func (s *Session) SetCurrentTurn(t models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setCurrentTurn(t)
}

// CommitTurn is SetCurrentTurn for a reply requested at stamp. A reply from
// another epoch or turn is rejected with ErrStaleResponse.
func (s *Session) CommitTurn(stamp Stamp, t models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stamp.Epoch != s.id || stamp.Turn != s.turn {
		return fmt.Errorf("%w: turn %d of %s, session at turn %d", models.ErrStaleResponse, stamp.Turn, stamp.Epoch, s.turn)
	}
	return s.setCurrentTurn(t)
}

func (s *Session) setCurrentTurn(t models.Turn) error {
	if s.status != models.StatusPlaying {
		return fmt.Errorf("%w: set turn while %s", models.ErrIllegalStateTransition, s.status)
	}
	if err := checkTurn(t); err != nil {
		return err
	}

	turn := cloneTurn(t)
	turn.Number = s.turn
	for i := range turn.Choices {
		turn.Choices[i].Label = models.Labels[i]
	}
	s.current = &turn
	return nil
}

func checkTurn(t models.Turn) error {
	if len(t.Choices) != models.ChoicesPerTurn {
		return fmt.Errorf("%w: turn has %d choices, want %d", models.ErrValidation, len(t.Choices), models.ChoicesPerTurn)
	}
	if err := models.CheckPointSpread(t.Points()); err != nil {
		return fmt.Errorf("%w: %w", models.ErrValidation, err)
	}
	return nil
}

// ApplyChoice resolves the pending turn with the choice labelled label.
func (s *Session) ApplyChoice(label string) (models.TurnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != models.StatusPlaying {
		return models.TurnRecord{}, fmt.Errorf("%w: choose while %s", models.ErrIllegalStateTransition, s.status)
	}
	if s.current == nil {
		return models.TurnRecord{}, models.ErrNoPendingTurn
	}
	choice, ok := s.current.Choice(label)
	if !ok {
		return models.TurnRecord{}, fmt.Errorf("%w: %q", models.ErrUnknownChoice, label)
	}

	rec := models.TurnRecord{
		Index:        s.turn,
		Narrative:    s.current.Narrative,
		Illustration: s.current.Illustration,
		Choice:       choice,
		ScoreBefore:  s.score,
		ScoreAfter:   models.Clamp(s.score+choice.Points, s.maxScore),
		At:           s.now(),
	}
	if err := s.log.Append(rec); err != nil {
		return models.TurnRecord{}, err
	}

	s.score = rec.ScoreAfter
	s.turn++
	s.current = nil
	switch {
	case s.score >= s.maxScore:
		s.status = models.StatusWon
	case s.score <= 0:
		s.status = models.StatusLost
	}
	return rec, nil
}

// SetEnding writes the ending of a finished case. Only the first call has
// any effect; it reports whether this call wrote the ending.
func (s *Session) SetEnding(e models.Ending) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setEnding(e)
}

// CommitEnding is SetEnding for an ending requested at stamp.
func (s *Session) CommitEnding(stamp Stamp, e models.Ending) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stamp.Epoch != s.id {
		return false, fmt.Errorf("%w: ending for %s", models.ErrStaleResponse, stamp.Epoch)
	}
	return s.setEnding(e)
}

func (s *Session) setEnding(e models.Ending) (bool, error) {
	if !s.status.Terminal() {
		return false, fmt.Errorf("%w: ending while %s", models.ErrIllegalStateTransition, s.status)
	}
	if s.ending != nil {
		return false, nil
	}
	e.Victory = s.status == models.StatusWon
	s.ending = &e
	return true, nil
}

// Reset discards the case and returns to setup. Settings held by the
// credentials collaborator are untouched.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:       s.id,
		Case:     s.caseFile,
		Score:    s.score,
		MaxScore: s.maxScore,
		Turn:     s.turn,
		Status:   s.status,
		Log:      s.log.Clone(),
	}
	if s.current != nil {
		t := cloneTurn(*s.current)
		snap.Current = &t
	}
	if s.ending != nil {
		e := *s.ending
		snap.Ending = &e
	}
	return snap
}

// Restore adopts a saved snapshot under a fresh epoch. The session must be
// in setup, and the snapshot must satisfy every invariant of a live session.
func (s *Session) Restore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != models.StatusSetup {
		return fmt.Errorf("%w: restore while %s", models.ErrIllegalStateTransition, s.status)
	}
	if s.creds != nil && !s.creds.HasValidCredentials() {
		return models.ErrMissingCredentials
	}
	maxScore := snap.MaxScore
	if maxScore <= 0 {
		maxScore = s.maxScore
	}
	if err := snap.check(maxScore); err != nil {
		return err
	}

	s.id = uuid.NewString()
	s.maxScore = maxScore
	s.caseFile = snap.Case
	s.configured = true
	s.score = snap.Score
	s.turn = snap.Turn
	s.status = snap.Status
	s.log = snap.Log.Clone()
	s.current = nil
	if snap.Current != nil {
		t := cloneTurn(*snap.Current)
		t.Number = snap.Turn
		s.current = &t
	}
	s.ending = nil
	if snap.Ending != nil {
		e := *snap.Ending
		s.ending = &e
	}
	return nil
}

func cloneTurn(t models.Turn) models.Turn {
	t.Choices = slices.Clone(t.Choices)
	return t
}
