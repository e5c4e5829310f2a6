package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"

	"github.com/tatianab/casefile/internal/config"
	"github.com/tatianab/casefile/internal/engine"
	"github.com/tatianab/casefile/internal/game"
	"github.com/tatianab/casefile/internal/logger"
	"github.com/tatianab/casefile/internal/models"
	"github.com/tatianab/casefile/internal/orchestrator"
)

const maxTurns = 20

func main() {
	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	zl, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: "console"})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	// The game master tells the story through the orchestrator.
	gm, err := engine.NewGemini(ctx, engine.Options{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel}, zl)
	if err != nil {
		log.Fatalf("Failed to create GM engine: %v", err)
	}
	defer gm.Close()

	// The player is a second model choosing letters.
	playerClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		log.Fatalf("Failed to create player client: %v", err)
	}
	defer playerClient.Close()
	player := playerClient.GenerativeModel(cfg.GeminiModel)

	fmt.Println("--- Step 1: The player invents a case ---")
	c := inventCase(ctx, player, zl)
	fmt.Printf("Detective %s faces the %s at %s and must %s.\n\n", c.Detective, c.Threat, c.Location, c.Objective)

	settings := &config.Settings{Provider: config.ProviderGemini, GeminiAPIKey: cfg.GeminiAPIKey}
	session := game.NewSession(settings, game.WithMaxScore(cfg.MaxScore))
	orch := orchestrator.New(session, gm, settings, orchestrator.WithLogger(zl.Named("orchestrator")))
	if err := orch.Configure(c); err != nil {
		log.Fatalf("Invalid case: %v", err)
	}

	fmt.Println("--- Step 2: Opening scene ---")
	if err := orch.Start(ctx); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	for i := 0; i < maxTurns; i++ {
		snap := orch.Snapshot()
		if snap.Status.Terminal() || snap.Current == nil {
			break
		}
		fmt.Printf("--- Turn %d (score %d/%d) ---\n%s\n", snap.Turn, snap.Score, snap.MaxScore, snap.Current.Narrative)
		for _, ch := range snap.Current.Choices {
			fmt.Printf("  %s. %s (%+d)\n", ch.Label, ch.Text, ch.Points)
		}

		label := pickChoice(ctx, player, snap)
		fmt.Printf("Player chooses: %s\n", label)
		if err := orch.SelectChoice(ctx, label); err != nil {
			fmt.Printf("Error processing choice: %v\n", err)
			break
		}
		if last, ok := orch.Snapshot().Log.Last(); ok {
			fmt.Printf("Outcome: %s\n\n", last.Choice.Outcome)
		}
	}

	snap := orch.Snapshot()
	switch snap.Status {
	case models.StatusWon:
		fmt.Println("Case ended: solved!")
	case models.StatusLost:
		fmt.Println("Case ended: lost.")
	default:
		fmt.Printf("Stopped after %d turns without a verdict.\n", len(snap.Log))
	}
	if snap.Ending != nil {
		fmt.Printf("\n%s\n", snap.Ending.Text)
		if snap.Ending.Fallback {
			fmt.Println("(templated ending)")
		}
	}
}

func inventCase(ctx context.Context, model *genai.GenerativeModel, zl *zap.Logger) models.CaseFile {
	fallback := models.CaseFile{
		Detective: "Mara Voss",
		Threat:    "drowned choir",
		Location:  "Saltmarsh Abbey",
		Objective: "recover the stolen reliquary",
	}

	prompt := `You are about to play a supernatural detective game. Invent a case.
Reply with YAML only, using exactly these keys:
detective_name: <the detective's name>
threat_element: <the supernatural threat>
location: <where the case takes place>
objective: <what the detective must achieve>`

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		zl.Warn("Player failed to invent a case", zap.Error(err))
		return fallback
	}
	text := strings.TrimSpace(engine.Text(resp))
	text = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(text, "```yaml"), "```"), "```")

	var c models.CaseFile
	if err := yaml.Unmarshal([]byte(text), &c); err != nil || c.Validate() != nil {
		return fallback
	}
	return c
}

func pickChoice(ctx context.Context, model *genai.GenerativeModel, snap game.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are Detective %s investigating the %s at %s. Your goal: %s.\n\n",
		snap.Case.Detective, snap.Case.Threat, snap.Case.Location, snap.Case.Objective)
	if cc := snap.Context(); !cc.Empty() {
		b.WriteString(cc.String() + "\n")
	}
	fmt.Fprintf(&b, "Current scene:\n%s\n\nOptions:\n", snap.Current.Narrative)
	for _, ch := range snap.Current.Choices {
		fmt.Fprintf(&b, "%s. %s\n", ch.Label, ch.Text)
	}
	b.WriteString("\nWhich option do you take? Reply with the letter only.")

	resp, err := model.GenerateContent(ctx, genai.Text(b.String()))
	if err != nil {
		return "A"
	}
	answer := strings.ToUpper(strings.TrimSpace(engine.Text(resp)))
	for _, l := range models.Labels {
		if strings.HasPrefix(answer, l) {
			return l
		}
	}
	return "A"
}
