// Package response validates and normalises replies from the generation service.
//
// Upstream models are unreliable about framing: they wrap the requested object
// in markdown fences or explanatory prose. ParseTurn therefore falls back to the
// first balanced {...} block that decodes when the whole payload does not. That
// leniency is intentional; everything inside the block is still checked strictly.
package response

import (
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tatianab/casefile/internal/models"
)

type rawChoice struct {
	Text    string `yaml:"text"`
	Points  any    `yaml:"points"`
	Result  string `yaml:"result"`
	Outcome string `yaml:"outcome"`
}

type rawTurn struct {
	Narrative string       `yaml:"narrative"`
	Choices   []*rawChoice `yaml:"choices"`
}

// ParseTurn decodes a turn reply into a narrative and five labelled choices.
func ParseTurn(raw string) (models.Turn, error) {
	var rt rawTurn
	if err := decode(raw, &rt); err != nil {
		return models.Turn{}, err
	}

	narrative := strings.TrimSpace(rt.Narrative)
	if narrative == "" {
		return models.Turn{}, fmt.Errorf("%w: narrative is missing", models.ErrMalformedResponse)
	}
	if len(rt.Choices) != models.ChoicesPerTurn {
		return models.Turn{}, fmt.Errorf("%w: got %d choices, want %d", models.ErrMalformedResponse, len(rt.Choices), models.ChoicesPerTurn)
	}

	choices := make([]models.Choice, 0, models.ChoicesPerTurn)
	points := make([]int, 0, models.ChoicesPerTurn)
	for i, rc := range rt.Choices {
		if rc == nil {
			return models.Turn{}, fmt.Errorf("%w: choice %s is empty", models.ErrMalformedResponse, models.Labels[i])
		}
		text := strings.TrimSpace(rc.Text)
		if text == "" {
			return models.Turn{}, fmt.Errorf("%w: choice %s has no text", models.ErrMalformedResponse, models.Labels[i])
		}
		p, ok := asInt(rc.Points)
		if !ok {
			return models.Turn{}, fmt.Errorf("%w: choice %s has non-numeric points %v", models.ErrMalformedResponse, models.Labels[i], rc.Points)
		}
		outcome := strings.TrimSpace(rc.Result)
		if outcome == "" {
			outcome = strings.TrimSpace(rc.Outcome)
		}
		if outcome == "" {
			return models.Turn{}, fmt.Errorf("%w: choice %s has no outcome", models.ErrMalformedResponse, models.Labels[i])
		}
		choices = append(choices, models.Choice{
			Label:   models.Labels[i],
			Text:    text,
			Points:  p,
			Outcome: outcome,
		})
		points = append(points, p)
	}

	if err := models.CheckPointSpread(points); err != nil {
		return models.Turn{}, err
	}

	return models.Turn{Narrative: narrative, Choices: choices}, nil
}

// ParseEnding trims an ending reply down to its prose.
func ParseEnding(raw string) (string, error) {
	text := strings.TrimSpace(stripFences(raw))
	if text == "" {
		return "", fmt.Errorf("%w: ending is empty", models.ErrMalformedResponse)
	}
	return text, nil
}

// decode tries the whole payload first and then the embedded blocks.
func decode(raw string, out *rawTurn) error {
	clean := stripFences(raw)
	if clean == "" {
		return fmt.Errorf("%w: empty reply", models.ErrMalformedResponse)
	}
	if decodeMapping(clean, out) == nil && out.structured() {
		return nil
	}
	for _, block := range Blocks(clean) {
		*out = rawTurn{}
		if decodeMapping(block, out) == nil && out.structured() {
			return nil
		}
	}
	return fmt.Errorf("%w: no structured block found", models.ErrMalformedResponse)
}

func (rt *rawTurn) structured() bool {
	return rt.Narrative != "" || len(rt.Choices) > 0
}

func decodeMapping(text string, out *rawTurn) error {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		return err
	}
	if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("not a mapping")
	}
	return node.Content[0].Decode(out)
}

// stripFences removes a surrounding markdown code fence.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Blocks returns the balanced top-level {...} spans of s in order of appearance.
// Braces inside quoted strings are ignored.
func Blocks(s string) []string {
	var (
		blocks  []string
		depth   int
		start   = -1
		quote   byte
		escaped bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				quote = c
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				blocks = append(blocks, s[start:i+1])
			}
		}
	}
	return blocks
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
