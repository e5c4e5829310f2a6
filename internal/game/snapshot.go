package game

import (
	"fmt"

	"github.com/tatianab/casefile/internal/models"
	"github.com/tatianab/casefile/internal/story"
)

// Stamp identifies the session epoch and turn a request was issued for.
type Stamp struct {
	Epoch string
	Turn  int
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID       string          `yaml:"id"`
	Case     models.CaseFile `yaml:"case"`
	Score    int             `yaml:"score"`
	MaxScore int             `yaml:"max_score"`
	Turn     int             `yaml:"turn"`
	Status   models.Status   `yaml:"status"`
	Current  *models.Turn    `yaml:"current,omitempty"`
	Log      story.Log       `yaml:"log,omitempty"`
	Ending   *models.Ending  `yaml:"ending,omitempty"`
}

// Progress is the score as a fraction of the winning score.
func (s Snapshot) Progress() float64 {
	if s.MaxScore <= 0 {
		return 0
	}
	return float64(s.Score) / float64(s.MaxScore)
}

// Context builds the continuity summary for the next request.
func (s Snapshot) Context() story.Context {
	return story.BuildContext(s.Log, s.Turn, s.Score, s.MaxScore)
}

// check verifies a snapshot describes a reachable in-progress or finished case.
func (s Snapshot) check(maxScore int) error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: saved case: %s", models.ErrValidation, fmt.Sprintf(format, args...))
	}

	if err := s.Case.Validate(); err != nil {
		return err
	}
	switch s.Status {
	case models.StatusPlaying, models.StatusWon, models.StatusLost:
	default:
		return bad("status %q cannot be restored", s.Status)
	}
	if s.Score < 0 || s.Score > maxScore {
		return bad("score %d outside [0, %d]", s.Score, maxScore)
	}

	score := 0
	for i, rec := range s.Log {
		if rec.Index != i+1 {
			return bad("record %d has turn %d", i+1, rec.Index)
		}
		if rec.ScoreBefore != score {
			return bad("turn %d starts at %d, previous ended at %d", rec.Index, rec.ScoreBefore, score)
		}
		if want := models.Clamp(rec.ScoreBefore+rec.Choice.Points, maxScore); rec.ScoreAfter != want {
			return bad("turn %d ends at %d, want %d", rec.Index, rec.ScoreAfter, want)
		}
		score = rec.ScoreAfter
		if i < len(s.Log)-1 && (score >= maxScore || score <= 0) {
			return bad("play continued after turn %d ended the case", rec.Index)
		}
	}
	if score != s.Score {
		return bad("score %d does not match log total %d", s.Score, score)
	}
	if s.Turn != len(s.Log)+1 {
		return bad("turn %d after %d records", s.Turn, len(s.Log))
	}

	want := models.StatusPlaying
	if len(s.Log) > 0 {
		switch {
		case score >= maxScore:
			want = models.StatusWon
		case score <= 0:
			want = models.StatusLost
		}
	}
	if s.Status != want {
		return bad("status %s, log implies %s", s.Status, want)
	}

	if s.Current != nil {
		if s.Status != models.StatusPlaying {
			return bad("pending turn in a finished case")
		}
		if err := checkTurn(*s.Current); err != nil {
			return err
		}
	}
	if s.Ending != nil && !s.Status.Terminal() {
		return bad("ending in an unfinished case")
	}
	return nil
}
