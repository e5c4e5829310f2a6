package story

import (
	"fmt"

	"github.com/tatianab/casefile/internal/models"
)

// FallbackEnding is the templated ending used when the generator cannot
// produce one. It is deterministic for a given case, decision count and outcome.
func FallbackEnding(c models.CaseFile, decisions int, victory bool) models.Ending {
	lead := ""
	if decisions > 0 {
		lead = fmt.Sprintf("Through %d critical decisions, each choice shaping the final outcome, ", decisions)
	}

	var text string
	if victory {
		text = fmt.Sprintf("%sDetective %s stands triumphant in %s. The %s has been defeated through careful investigation and brave choices. "+
			"Every decision, every risk taken, led to this moment of victory. The objective (%s) has been achieved, and the threat that once seemed insurmountable has been banished.",
			lead, c.Detective, c.Location, c.Threat, c.Objective)
	} else {
		text = fmt.Sprintf("%sThe darkness claims Detective %s in %s. Despite their best efforts, the cumulative weight of mistakes and the overwhelming power of the %s proved too much. "+
			"The objective (%s) remains forever unfulfilled, and the place is consumed by the very evil the detective sought to stop.",
			lead, c.Detective, c.Location, c.Threat, c.Objective)
	}

	return models.Ending{Text: text, Victory: victory, Fallback: true}
}
