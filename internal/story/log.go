// Package story keeps the ordered record of completed turns and derives the
// continuity summaries fed back to the generation service.
package story

import (
	"fmt"
	"strings"

	"github.com/tatianab/casefile/internal/models"
)

// MomentumWindow is how many recent turns feed the momentum signal.
const MomentumWindow = 3

// ContextWindow caps how many recent turns are replayed to the generator.
const ContextWindow = 3

// Log is the append-only story log. It is not safe for concurrent use; the
// owning session serialises access.
type Log []models.TurnRecord

// Append adds rec, which must carry the next turn index.
func (l *Log) Append(rec models.TurnRecord) error {
	want := 1
	if last, ok := l.Last(); ok {
		want = last.Index + 1
	}
	if rec.Index != want {
		return fmt.Errorf("%w: got turn %d, want %d", models.ErrOutOfOrder, rec.Index, want)
	}
	*l = append(*l, rec)
	return nil
}

// Last returns the most recent record.
func (l Log) Last() (models.TurnRecord, bool) {
	if len(l) == 0 {
		return models.TurnRecord{}, false
	}
	return l[len(l)-1], true
}

// Clone returns a copy that shares no backing array with l.
func (l Log) Clone() Log {
	if l == nil {
		return nil
	}
	return append(Log(nil), l...)
}

// RecentWindow returns the last n records in chronological order.
func (l Log) RecentWindow(n int) []models.TurnRecord {
	if n <= 0 {
		return nil
	}
	start := max(0, len(l)-n)
	return append([]models.TurnRecord(nil), l[start:]...)
}

// SignificantEvents returns the turning points: turns worth two points either way.
func (l Log) SignificantEvents() []models.TurnRecord {
	var out []models.TurnRecord
	for _, rec := range l {
		if rec.Choice.Points >= 2 || rec.Choice.Points <= -2 {
			out = append(out, rec)
		}
	}
	return out
}

// Momentum buckets the point sum of the last MomentumWindow turns.
func (l Log) Momentum() Momentum {
	return MomentumOf(l.recentPoints(MomentumWindow))
}

// MomentumWith evaluates momentum as if the pending choice had already been
// committed; it takes one of the MomentumWindow slots.
func (l Log) MomentumWith(pending int) Momentum {
	return MomentumOf(l.recentPoints(MomentumWindow-1) + pending)
}

func (l Log) recentPoints(n int) int {
	sum := 0
	for _, rec := range l.RecentWindow(n) {
		sum += rec.Choice.Points
	}
	return sum
}

// Tally counts breakthroughs (+2) and blunders (-2) among the significant events.
func (l Log) Tally() (breakthroughs, blunders int) {
	for _, rec := range l.SignificantEvents() {
		if rec.Choice.Points > 0 {
			breakthroughs++
		} else {
			blunders++
		}
	}
	return breakthroughs, blunders
}

// Theme is a recurring approach the detective keeps taking.
type Theme string

const (
	ThemeInvestigation Theme = "thorough_investigation"
	ThemeDirectAction  Theme = "direct_action"
	ThemeCaution       Theme = "cautious_approach"
	ThemeProtective    Theme = "protective_instinct"
)

var themeKeywords = []struct {
	theme    Theme
	keywords []string
}{
	{ThemeInvestigation, []string{"investigate", "examine"}},
	{ThemeDirectAction, []string{"confront", "attack"}},
	{ThemeCaution, []string{"avoid", "retreat"}},
	{ThemeProtective, []string{"help", "save"}},
}

// Themes lists the approaches found in the chosen options, in a fixed order.
func (l Log) Themes() []Theme {
	var themes []Theme
	for _, tk := range themeKeywords {
	records:
		for _, rec := range l {
			text := strings.ToLower(rec.Choice.Text)
			for _, kw := range tk.keywords {
				if strings.Contains(text, kw) {
					themes = append(themes, tk.theme)
					break records
				}
			}
		}
	}
	return themes
}
