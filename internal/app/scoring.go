package app

import "guild-quiz-service/internal/domain"

// ApplyAnswer returns the score record that results from answering once.
// A nil prior starts from all-zero counters; owner fields are carried over.
func ApplyAnswer(prior *domain.ScoreRecord, correct bool) domain.ScoreRecord {
	var next domain.ScoreRecord
	if prior != nil {
		next = *prior
	}

	next.TotalAnswers++
	if correct {
		next.CorrectAnswers++
		next.TotalScore++
		next.CurrentStreak++
	} else {
		next.CurrentStreak = 0
	}
	if next.CurrentStreak > next.BestStreak {
		next.BestStreak = next.CurrentStreak
	}
	return next
}
