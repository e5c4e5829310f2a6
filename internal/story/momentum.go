package story

// Momentum is the five-level ordinal summary of the recent score trend.
type Momentum string

const (
	StronglyNegative Momentum = "strongly_negative"
	Negative         Momentum = "negative"
	Neutral          Momentum = "neutral"
	Positive         Momentum = "positive"
	StronglyPositive Momentum = "strongly_positive"
)

// MomentumOf buckets a recent point sum. The thresholds are part of the
// prompt contract and must not drift.
func MomentumOf(sum int) Momentum {
	switch {
	case sum >= 4:
		return StronglyPositive
	case sum >= 2:
		return Positive
	case sum >= -1:
		return Neutral
	case sum >= -3:
		return Negative
	default:
		return StronglyNegative
	}
}

// Describe renders momentum as a line of narrative guidance.
func (m Momentum) Describe() string {
	switch m {
	case StronglyPositive:
		return "Investigation momentum is strong, supernatural forces are being pushed back"
	case Positive:
		return "The investigation is gaining ground"
	case Negative:
		return "The investigation is slipping, the threat is pressing harder"
	case StronglyNegative:
		return "Investigation is faltering, supernatural forces are gaining power"
	}
	return "The investigation is holding steady"
}
