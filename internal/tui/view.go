package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tatianab/casefile/internal/models"
	"github.com/tatianab/casefile/internal/storage"
	"github.com/tatianab/casefile/internal/story"
)

var (
	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1).
			PaddingRight(1)

	gameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD75F"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F")).
			Bold(true)

	sideStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)

	filledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F"))
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#3C3C3C"))
)

func (m model) logWidth() int {
	if m.width == 0 {
		return 80
	}
	return int(float64(m.width) * 0.72)
}

// refresh re-renders the scrollable story pane from the snapshot.
func (m *model) refresh() {
	switch m.screen {
	case screenPlaying:
		m.viewport.SetContent(m.renderScene())
		m.viewport.GotoBottom()
	case screenEnding:
		m.viewport.SetContent(m.renderEnding())
		m.viewport.GotoTop()
	}
}

func (m model) View() string {
	var s string

	switch m.screen {
	case screenSetup:
		s = m.renderSetup()

	case screenLoading:
		s = fmt.Sprintf("\n  %s The case unfolds... (x to cancel)\n", m.spinner.View())
		if m.heading != "" {
			s += "\n  " + helpStyle.Render(m.heading.Describe()) + "\n"
		}

	case screenPlaying:
		help := "a-e choose · r request scene · v narration · h history · ctrl+r new case · esc quit"
		s = m.withSide(help)

	case screenEnding:
		help := "enter new case · h history · q quit"
		if m.snap.Ending == nil {
			help = "r write the ending · " + help
		}
		s = m.withSide(help)

	case screenHistory:
		s = m.renderHistory()

	case screenError:
		s = fmt.Sprintf("\n  %s\n\n  %s\n\n%s",
			errorStyle.Render("The case stalled."),
			models.UserMessage(m.err),
			helpStyle.Render("  r retry · ctrl+r new case · esc quit"))
	}

	if m.notice != "" {
		s += "\n" + noticeStyle.Render(m.notice)
	}
	return "\n" + s + "\n"
}

func (m model) withSide(help string) string {
	main := lipgloss.JoinHorizontal(lipgloss.Top, m.viewport.View(), m.renderSide())
	return lipgloss.JoinVertical(lipgloss.Left, main, "\n"+helpStyle.Render(help))
}

func (m model) renderSetup() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("A NEW CASE") + "\n\n")
	for i, in := range m.inputs {
		fmt.Fprintf(&b, "%s\n%s\n\n", fieldNames[i], in.View())
	}
	b.WriteString(helpStyle.Render("tab next field · enter start · ctrl+l past cases · esc quit"))
	return b.String()
}

func (m model) renderScene() string {
	width := m.logWidth()
	var b strings.Builder

	for _, rec := range m.snap.Log {
		b.WriteString(gameStyle.Width(width).Render(rec.Narrative) + "\n\n")
		b.WriteString(choiceStyle.Render(fmt.Sprintf("> %s. %s", rec.Choice.Label, rec.Choice.Text)) + "\n\n")
		b.WriteString(gameStyle.Width(width).Italic(true).Render(rec.Choice.Outcome) + "\n\n")
	}

	cur := m.snap.Current
	if cur == nil {
		b.WriteString(helpStyle.Render("The next scene has not arrived. Press r to request it."))
		return b.String()
	}
	b.WriteString(gameStyle.Width(width).Render(cur.Narrative) + "\n")
	if cur.Illustration != "" {
		b.WriteString(helpStyle.Render("Illustration: "+cur.Illustration) + "\n")
	}
	b.WriteString("\n")
	for _, c := range cur.Choices {
		fmt.Fprintf(&b, "  [%s] %s\n", strings.ToLower(c.Label), gameStyle.Width(width-6).Render(c.Text))
	}
	return b.String()
}

func (m model) renderEnding() string {
	width := m.logWidth()
	var b strings.Builder

	if m.snap.Status == models.StatusWon {
		b.WriteString(titleStyle.Render("CASE SOLVED") + "\n\n")
	} else {
		b.WriteString(titleStyle.Render("CASE LOST") + "\n\n")
	}

	e := m.snap.Ending
	if e == nil {
		b.WriteString(helpStyle.Render("The ending is still being written."))
		return b.String()
	}
	b.WriteString(gameStyle.Width(width).Render(e.Text) + "\n\n")
	if e.Illustration != "" {
		b.WriteString(helpStyle.Render("Illustration: "+e.Illustration) + "\n")
	}
	fmt.Fprintf(&b, "Decisions made: %d\n", len(m.snap.Log))
	return b.String()
}

func (m model) renderSide() string {
	snap := m.snap
	cc := snap.Context()

	var b strings.Builder
	b.WriteString(titleStyle.Render("CASE") + "\n")
	fmt.Fprintf(&b, "%s\n%s\n%s\n\n", snap.Case.Detective, snap.Case.Location, snap.Case.Threat)

	b.WriteString(titleStyle.Render("INVESTIGATION") + "\n")
	fmt.Fprintf(&b, "%s %d/%d\n", scoreBar(snap.Score, snap.MaxScore, 16), snap.Score, snap.MaxScore)
	fmt.Fprintf(&b, "Turn %d\n\n", snap.Turn)

	if !cc.Empty() {
		b.WriteString(titleStyle.Render("MOMENTUM") + "\n")
		b.WriteString(cc.Momentum.Describe() + "\n\n")
		if len(cc.Themes) > 0 {
			b.WriteString(titleStyle.Render("APPROACH") + "\n")
			for _, th := range cc.Themes {
				b.WriteString("- " + themeLabel(th) + "\n")
			}
			b.WriteString("\n")
		}
	}
	b.WriteString(titleStyle.Render("STATE") + "\n" + cc.State + "\n")

	width := max(m.width-m.logWidth()-4, 20)
	return sideStyle.Width(width).Height(m.viewport.Height).Render(b.String())
}

func (m model) renderHistory() string {
	if m.opened >= 0 && m.opened < len(m.history) {
		return m.renderCaseTurns(m.history[m.opened])
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("PAST CASES") + "\n\n")
	if m.opts.Archive == nil {
		b.WriteString("No case archive is configured (set DB_PATH).\n")
	} else if len(m.history) == 0 {
		b.WriteString("No cases yet.\n")
	}
	for i, c := range m.history {
		fmt.Fprintf(&b, "%d. %s  %-8s %2d/%-2d  %2d turns  %s vs the %s at %s\n",
			i+1, c.StartedAt.Local().Format("2006-01-02 15:04"), c.Status, c.Score, c.MaxScore, c.Turns,
			c.Case.Detective, c.Case.Threat, c.Case.Location)
	}
	b.WriteString("\n" + helpStyle.Render("1-9 open a case · esc back"))
	return b.String()
}

func (m model) renderCaseTurns(c storage.CaseSummary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s VS THE %s", strings.ToUpper(c.Case.Detective), strings.ToUpper(c.Case.Threat))) + "\n\n")
	if len(m.turns) == 0 {
		b.WriteString("No turns were recorded.\n")
	}
	for _, rec := range m.turns {
		fmt.Fprintf(&b, "Turn %d  %s. %s  (%+d, %d/%d)\n", rec.Index, rec.Choice.Label, rec.Choice.Text,
			rec.Choice.Points, rec.ScoreAfter, c.MaxScore)
		b.WriteString(helpStyle.Render("  "+rec.Choice.Outcome) + "\n")
	}
	if c.Ending != "" {
		b.WriteString("\n" + gameStyle.Width(m.logWidth()).Render(c.Ending) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("esc back to the list"))
	return b.String()
}

func scoreBar(score, maxScore, width int) string {
	if maxScore <= 0 {
		return ""
	}
	filled := models.Clamp(score, maxScore) * width / maxScore
	return filledStyle.Render(strings.Repeat("█", filled)) + emptyStyle.Render(strings.Repeat("░", width-filled))
}

func themeLabel(t story.Theme) string {
	return strings.ReplaceAll(string(t), "_", " ")
}
