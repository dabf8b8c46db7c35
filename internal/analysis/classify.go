package analysis

// IsBlurred applies the decision threshold. A score exactly at the threshold
// counts as sharp.
func IsBlurred(score, threshold float64) bool {
	return score > threshold
}

// QualityDescription maps a blur score to a human readable label.
func QualityDescription(score float64) string {
	switch {
	case score < 0.2:
		return "Very sharp"
	case score < 0.4:
		return "Sharp"
	case score < 0.6:
		return "Somewhat blurry"
	case score < 0.8:
		return "Blurry"
	default:
		return "Very blurry"
	}
}
