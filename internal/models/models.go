package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// DefaultMaxScore is the investigation score that wins a case.
const DefaultMaxScore = 8

// ChoicesPerTurn is the number of options offered on every turn.
const ChoicesPerTurn = 5

// Labels are assigned to choices by position.
var Labels = [ChoicesPerTurn]string{"A", "B", "C", "D", "E"}

// PointSpread is the exact multiset of points the five choices of a turn must carry.
var PointSpread = [ChoicesPerTurn]int{-2, -1, 0, 1, 2}

// CaseFile holds the setup fields of a case. They are fixed once the game starts.
type CaseFile struct {
	Detective string `yaml:"detective_name"`
	Threat    string `yaml:"threat_element"`
	Location  string `yaml:"location"`
	Objective string `yaml:"objective"`
}

// Validate reports every blank field.
func (c CaseFile) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Detective) == "" {
		missing = append(missing, "detective name")
	}
	if strings.TrimSpace(c.Threat) == "" {
		missing = append(missing, "threat")
	}
	if strings.TrimSpace(c.Location) == "" {
		missing = append(missing, "location")
	}
	if strings.TrimSpace(c.Objective) == "" {
		missing = append(missing, "objective")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// Status is the lifecycle state of a session.
type Status string

const (
	StatusSetup   Status = "setup"
	StatusPlaying Status = "playing"
	StatusWon     Status = "won"
	StatusLost    Status = "lost"
)

// Terminal reports whether no further turns are accepted.
func (s Status) Terminal() bool {
	return s == StatusWon || s == StatusLost
}

// Choice is one of the five options offered on a turn.
type Choice struct {
	Label   string `yaml:"label"`
	Text    string `yaml:"text"`
	Points  int    `yaml:"points"`
	Outcome string `yaml:"outcome"`
}

// Turn is the scene currently awaiting a decision.
type Turn struct {
	Number       int      `yaml:"number"`
	Narrative    string   `yaml:"narrative"`
	Choices      []Choice `yaml:"choices"`
	Illustration string   `yaml:"illustration,omitempty"`
}

// Choice looks up an offered choice by label, case-insensitively.
func (t Turn) Choice(label string) (Choice, bool) {
	label = strings.ToUpper(strings.TrimSpace(label))
	for _, c := range t.Choices {
		if c.Label == label {
			return c, true
		}
	}
	return Choice{}, false
}

// Points returns the point values of the offered choices in order.
func (t Turn) Points() []int {
	points := make([]int, len(t.Choices))
	for i, c := range t.Choices {
		points[i] = c.Points
	}
	return points
}

// TurnRecord is one completed turn in the story log.
type TurnRecord struct {
	Index        int       `yaml:"turn"`
	Narrative    string    `yaml:"narrative"`
	Illustration string    `yaml:"illustration,omitempty"`
	Choice       Choice    `yaml:"choice"`
	ScoreBefore  int       `yaml:"score_before"`
	ScoreAfter   int       `yaml:"score_after"`
	At           time.Time `yaml:"at"`
}

// Ending is the closing narrative of a finished case.
type Ending struct {
	Text         string `yaml:"text"`
	Illustration string `yaml:"illustration,omitempty"`
	Victory      bool   `yaml:"victory"`
	Fallback     bool   `yaml:"fallback,omitempty"`
}

// CheckPointSpread verifies points is exactly one each of -2, -1, 0, 1 and 2.
func CheckPointSpread(points []int) error {
	if len(points) != ChoicesPerTurn {
		return fmt.Errorf("%w: got %d choices, want %d", ErrInvalidPointDistribution, len(points), ChoicesPerTurn)
	}
	sorted := slices.Clone(points)
	slices.Sort(sorted)
	if !slices.Equal(sorted, PointSpread[:]) {
		return fmt.Errorf("%w: got %v, want one each of %v", ErrInvalidPointDistribution, points, PointSpread)
	}
	return nil
}

// Clamp bounds score to [0, maxScore].
func Clamp(score, maxScore int) int {
	return min(maxScore, max(0, score))
}
