package services

// Engagement policy thresholds. scoring_test.go pins the resulting scores.
const (
	attentionBase              = 50
	attentionRatioMin          = 0.8
	attentionRatioMax          = 1.5
	attentionRatioBonus        = 25
	attentionRatioFloor        = 0.3
	attentionRatioPenalty      = 30
	attentionCompletionHigh    = 90
	attentionCompletionBonus   = 20
	attentionCompletionLow     = 20
	attentionCompletionPenalty = 25

	cheatingVeryShortMinutes     = 2
	cheatingVeryShortPenalty     = 60
	cheatingShortMinutes         = 5
	cheatingShortPenalty         = 30
	cheatingHeavySkips           = 15
	cheatingHeavySkipPenalty     = 40
	cheatingModerateSkips        = 8
	cheatingModerateSkipPenalty  = 20
	cheatingLowEfficiency        = 0.2
	cheatingEfficiencyCompletion = 70
	cheatingEfficiencyPenalty    = 50

	suspiciousShortMinutes         = 2
	suspiciousShortCompletion      = 50
	suspiciousSkips                = 20
	suspiciousLowEfficiency        = 0.15
	suspiciousEfficiencyCompletion = 80

	scoreMin = 0
	scoreMax = 100
)

// EngagementInput is what the scoring engine sees of a finalized session.
type EngagementInput struct {
	DurationMinutes         float64
	SkipCount               int
	CompletionPercentage    float64
	ExpectedDurationMinutes float64
}

type EngagementScores struct {
	Attention  int
	Cheating   int
	Suspicious bool
}

// ScoreEngagement computes the three trust outputs. The suspicious flag is
// evaluated on its own rules, not from the two scores.
func ScoreEngagement(in EngagementInput) EngagementScores {
	return EngagementScores{
		Attention:  AttentionScore(in),
		Cheating:   CheatingScore(in),
		Suspicious: IsSuspicious(in),
	}
}

// AttentionScore is 0-100, higher means more engaged.
func AttentionScore(in EngagementInput) int {
	score := attentionBase

	if in.ExpectedDurationMinutes > 0 {
		ratio := in.DurationMinutes / in.ExpectedDurationMinutes
		if ratio >= attentionRatioMin && ratio <= attentionRatioMax {
			score += attentionRatioBonus
		} else if ratio < attentionRatioFloor {
			score -= attentionRatioPenalty
		}
	}

	if in.CompletionPercentage >= attentionCompletionHigh {
		score += attentionCompletionBonus
	} else if in.CompletionPercentage < attentionCompletionLow {
		score -= attentionCompletionPenalty
	}

	return clampScore(score)
}

// CheatingScore is 0-100, higher means more suspicious.
func CheatingScore(in EngagementInput) int {
	score := 0

	if in.DurationMinutes > 0 && in.DurationMinutes < cheatingVeryShortMinutes {
		score += cheatingVeryShortPenalty
	} else if in.DurationMinutes < cheatingShortMinutes {
		score += cheatingShortPenalty
	}

	if in.SkipCount > cheatingHeavySkips {
		score += cheatingHeavySkipPenalty
	} else if in.SkipCount > cheatingModerateSkips {
		score += cheatingModerateSkipPenalty
	}

	if efficiency, ok := efficiencyOf(in); ok {
		if efficiency < cheatingLowEfficiency && in.CompletionPercentage > cheatingEfficiencyCompletion {
			score += cheatingEfficiencyPenalty
		}
	}

	return clampScore(score)
}

func IsSuspicious(in EngagementInput) bool {
	if in.DurationMinutes < suspiciousShortMinutes && in.CompletionPercentage > suspiciousShortCompletion {
		return true
	}
	if in.SkipCount > suspiciousSkips {
		return true
	}
	if efficiency, ok := efficiencyOf(in); ok {
		if efficiency < suspiciousLowEfficiency && in.CompletionPercentage > suspiciousEfficiencyCompletion {
			return true
		}
	}
	return false
}

// efficiencyOf reports elapsed/expected time, only when both are positive.
func efficiencyOf(in EngagementInput) (float64, bool) {
	if in.ExpectedDurationMinutes <= 0 || in.DurationMinutes <= 0 {
		return 0, false
	}
	return in.DurationMinutes / in.ExpectedDurationMinutes, true
}

func clampScore(score int) int {
	if score < scoreMin {
		return scoreMin
	}
	if score > scoreMax {
		return scoreMax
	}
	return score
}
