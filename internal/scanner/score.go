package scanner

// MaxScore is the score of a response with no findings.
const MaxScore = 100

// Aggregate subtracts every finding's points from MaxScore, flooring at zero.
func Aggregate(findings []Finding) int {
	score := MaxScore
	for _, f := range findings {
		score -= f.Points
	}
	if score < 0 {
		return 0
	}
	return score
}

// CalculateGrade converts a score to a letter grade
func CalculateGrade(score int) string {
	percentage := float64(score) / float64(MaxScore) * 100

	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	case percentage >= 50:
		return "E"
	default:
		return "F"
	}
}
