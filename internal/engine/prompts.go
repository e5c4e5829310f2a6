package engine

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/tatianab/casefile/internal/story"
)

//go:embed prompts/turn_system.txt
var turnSystemPrompt string

//go:embed prompts/turn_opening.txt
var turnOpeningPrompt string

//go:embed prompts/turn_continue.txt
var turnContinuePrompt string

//go:embed prompts/ending_system.txt
var endingSystemPrompt string

//go:embed prompts/ending_user.txt
var endingUserPrompt string

//go:embed prompts/illustration.txt
var illustrationPrompt string

var prompts = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"impact": story.ImpactText,
}).Parse(""))

func init() {
	for name, text := range map[string]string{
		"turn_system":   turnSystemPrompt,
		"turn_opening":  turnOpeningPrompt,
		"turn_continue": turnContinuePrompt,
		"ending_system": endingSystemPrompt,
		"ending_user":   endingUserPrompt,
		"illustration":  illustrationPrompt,
	} {
		template.Must(prompts.New(name).Parse(text))
	}
}

// Prompt is a rendered system instruction and user message.
type Prompt struct {
	System string
	User   string
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// TurnPrompt renders the prompt for the next scene.
func TurnPrompt(req TurnRequest) (Prompt, error) {
	data := struct {
		TurnRequest
		Continuity string
	}{
		TurnRequest: req,
		Continuity:  req.Context.String(),
	}

	system, err := render("turn_system", data)
	if err != nil {
		return Prompt{}, err
	}
	name := "turn_continue"
	if req.Opening {
		name = "turn_opening"
	}
	user, err := render(name, data)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: user}, nil
}

// EndingPrompt renders the prompt for the closing narrative.
func EndingPrompt(req EndingRequest) (Prompt, error) {
	system, err := render("ending_system", req)
	if err != nil {
		return Prompt{}, err
	}
	user, err := render("ending_user", req)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: user}, nil
}

// IllustrationPrompt renders the image prompt for a scene.
func IllustrationPrompt(req IllustrationRequest) (string, error) {
	return render("illustration", req)
}
