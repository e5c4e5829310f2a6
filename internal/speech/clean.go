package speech

import (
	"regexp"
	"strings"
)

var (
	emoji    = regexp.MustCompile(`[\x{1F300}-\x{1F9FF}\x{1F600}-\x{1F64F}\x{1F680}-\x{1F6FF}\x{2600}-\x{26FF}\x{2700}-\x{27BF}\x{FE00}-\x{FE0F}\x{200D}]`)
	bold     = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italic   = regexp.MustCompile(`\*(.*?)\*`)
	headings = regexp.MustCompile(`#{1,6}\s`)
	spaces   = regexp.MustCompile(`\s+`)
)

// CleanText strips emoji and markdown so only speakable prose remains.
func CleanText(text string) string {
	text = emoji.ReplaceAllString(text, "")
	text = bold.ReplaceAllString(text, "$1")
	text = italic.ReplaceAllString(text, "$1")
	text = headings.ReplaceAllString(text, "")
	text = spaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
