package story

import (
	"fmt"
	"strings"

	"github.com/tatianab/casefile/internal/models"
)

// Context is the bounded continuity summary handed to the generation service.
// It never carries more than ContextWindow turns no matter how long the case runs.
type Context struct {
	Turn          int
	Score         int
	MaxScore      int
	Recent        []models.TurnRecord
	Decisions     int
	Breakthroughs int
	Blunders      int
	Momentum      Momentum
	Themes        []Theme
	State         string
}

// BuildContext summarises log for the next generation request.
func BuildContext(log Log, turn, score, maxScore int) Context {
	breakthroughs, blunders := log.Tally()
	return Context{
		Turn:          turn,
		Score:         score,
		MaxScore:      maxScore,
		Recent:        log.RecentWindow(ContextWindow),
		Decisions:     len(log),
		Breakthroughs: breakthroughs,
		Blunders:      blunders,
		Momentum:      log.Momentum(),
		Themes:        log.Themes(),
		State:         DetectiveState(score, maxScore),
	}
}

// Empty reports whether there is no history to carry forward.
func (c Context) Empty() bool {
	return c.Decisions == 0
}

// String renders the continuity block used in prompts. An empty context renders as "".
func (c Context) String() string {
	if c.Empty() {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INVESTIGATION PROGRESS: Turn %d, Score %d/%d\n", c.Turn, c.Score, c.MaxScore)

	b.WriteString("\nRECENT STORY FLOW:\n")
	for _, rec := range c.Recent {
		fmt.Fprintf(&b, "Turn %d: %q\n", rec.Index, rec.Choice.Text)
		fmt.Fprintf(&b, "-> Outcome: %s\n", rec.Choice.Outcome)
		fmt.Fprintf(&b, "-> Impact: %s\n", ImpactText(rec.Choice.Points))
	}

	var effects []string
	if c.Breakthroughs > 0 {
		effects = append(effects, fmt.Sprintf("- Detective has made %d excellent decision(s), building confidence and supernatural insight", c.Breakthroughs))
	}
	if c.Blunders > 0 {
		effects = append(effects, fmt.Sprintf("- Detective has made %d terrible mistake(s), facing increased danger and supernatural opposition", c.Blunders))
	}
	if c.Momentum != Neutral {
		effects = append(effects, "- "+c.Momentum.Describe())
	}
	if len(c.Themes) > 0 {
		names := make([]string, len(c.Themes))
		for i, t := range c.Themes {
			names[i] = strings.ReplaceAll(string(t), "_", " ")
		}
		effects = append(effects, "- Recurring approach: "+strings.Join(names, ", "))
	}
	if len(effects) > 0 {
		b.WriteString("\nCUMULATIVE STORY EFFECTS:\n")
		b.WriteString(strings.Join(effects, "\n"))
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nDETECTIVE'S CURRENT STATE: %s", c.State)
	return b.String()
}

// ImpactText describes what a choice's points did to the investigation.
func ImpactText(points int) string {
	switch points {
	case 2:
		return "Major breakthrough, supernatural advantage gained"
	case 1:
		return "Positive progress, investigation advancing"
	case 0:
		return "Neutral outcome, situation unchanged"
	case -1:
		return "Minor setback, supernatural pressure increased"
	case -2:
		return "Serious mistake, supernatural forces strengthened"
	}
	return "Unknown impact"
}

// DetectiveState describes the detective's condition from case progress.
func DetectiveState(score, maxScore int) string {
	progress := 0.0
	if maxScore > 0 {
		progress = float64(score) / float64(maxScore)
	}
	switch {
	case progress >= 0.8:
		return "Confident and determined, close to solving the case, supernatural threats are weakening"
	case progress >= 0.6:
		return "Experienced and capable, making good progress, supernatural resistance is noticeable"
	case progress >= 0.4:
		return "Cautious but persistent, facing significant challenges, supernatural forces are testing them"
	case progress >= 0.2:
		return "Struggling against mounting supernatural pressure, mistakes are taking their toll"
	}
	return "Desperate and overwhelmed, supernatural forces are dominating, danger is imminent"
}
