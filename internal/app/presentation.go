package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"guild-quiz-service/internal/domain"
)

const (
	colorQuiz    = "#0099ff"
	colorResults = "#ffd700"
	colorCorrect = "#00ff00"
	colorWrong   = "#ff0000"
)

// optionLetter maps an option index to its control label: 0 -> "A".
func optionLetter(i int) string {
	return string(rune('A' + i))
}

// RenderQuiz builds the question embed and its answer controls.
func RenderQuiz(quiz domain.Quiz, now time.Time) domain.Presentation {
	p := domain.Presentation{
		Title:       "📚 Daily Quiz",
		Description: quiz.Question,
		Color:       colorQuiz,
		Fields: []domain.Field{
			{Name: "Category", Value: quiz.Category, Inline: true},
			{Name: "Difficulty", Value: quiz.Difficulty, Inline: true},
		},
		Footer:    fmt.Sprintf("Quiz ID: %s • Click a button to answer!", quiz.ID),
		Timestamp: now,
	}

	switch quiz.Type {
	case domain.QuizTypeYesNo:
		p.Controls = []domain.Control{
			{Token: domain.ControlPrefix + "yes", Label: "Yes", Style: domain.StyleSuccess},
			{Token: domain.ControlPrefix + "no", Label: "No", Style: domain.StyleDanger},
		}
	case domain.QuizTypeMultipleChoice:
		if len(quiz.Options) == 0 {
			break
		}
		lines := make([]string, 0, len(quiz.Options))
		for i, option := range quiz.Options {
			letter := optionLetter(i)
			lines = append(lines, letter+". "+option)
			p.Controls = append(p.Controls, domain.Control{
				Token: domain.ControlPrefix + strings.ToLower(letter),
				Label: letter,
				Style: domain.StylePrimary,
			})
		}
		p.Fields = append(p.Fields, domain.Field{Name: "Options", Value: strings.Join(lines, "\n")})
	}
	return p
}

// AnswerToken strips the control prefix from an incoming control token.
func AnswerToken(control string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(control)), domain.ControlPrefix)
}

// RenderResults builds the summary posted once a session closes.
func RenderResults(quiz domain.Quiz, total, correct int, now time.Time) domain.Presentation {
	p := domain.Presentation{
		Title:       "📊 Quiz Results",
		Description: "**Question:** " + quiz.Question,
		Color:       colorResults,
		Fields: []domain.Field{
			{Name: "✅ Correct Answer", Value: correctAnswerLabel(quiz), Inline: true},
			{Name: "👥 Total Responses", Value: strconv.Itoa(total), Inline: true},
			{Name: "🎯 Correct Responses", Value: strconv.Itoa(correct), Inline: true},
		},
		Timestamp: now,
	}
	if quiz.Explanation != "" {
		p.Fields = append(p.Fields, domain.Field{Name: "💡 Explanation", Value: quiz.Explanation})
	}
	return p
}

func correctAnswerLabel(quiz domain.Quiz) string {
	if quiz.Type != domain.QuizTypeMultipleChoice {
		return quiz.CorrectAnswer
	}
	for i, option := range quiz.Options {
		letter := optionLetter(i)
		if strings.EqualFold(letter, quiz.CorrectAnswer) {
			return letter + ". " + option
		}
	}
	return quiz.CorrectAnswer
}

// RenderAnswerFeedback is the ephemeral reply for a recorded answer.
func RenderAnswerFeedback(correct bool) domain.Presentation {
	p := domain.Presentation{
		Color:       colorWrong,
		Description: "❌ Incorrect!",
		Footer:      "The quiz will end automatically or when everyone has answered.",
	}
	if correct {
		p.Color = colorCorrect
		p.Description = "✅ Correct!"
	}
	return p
}

// RenderStats builds the personal statistics card.
func RenderStats(displayName string, rec domain.ScoreRecord, now time.Time) domain.Presentation {
	return domain.Presentation{
		Title: fmt.Sprintf("📊 %s's Quiz Stats", displayName),
		Color: colorQuiz,
		Fields: []domain.Field{
			{Name: "🎯 Total Score", Value: strconv.Itoa(rec.TotalScore), Inline: true},
			{Name: "✅ Correct Answers", Value: strconv.Itoa(rec.CorrectAnswers), Inline: true},
			{Name: "📝 Total Answers", Value: strconv.Itoa(rec.TotalAnswers), Inline: true},
			{Name: "🎯 Accuracy", Value: rec.Accuracy().StringFixed(1) + "%", Inline: true},
			{Name: "🔥 Current Streak", Value: strconv.Itoa(rec.CurrentStreak), Inline: true},
			{Name: "🏆 Best Streak", Value: strconv.Itoa(rec.BestStreak), Inline: true},
		},
		Footer:    "Keep participating to improve your stats!",
		Timestamp: now,
	}
}

// RenderLeaderboard builds the guild leaderboard card. names resolves user
// IDs to display names; unknown users render as "Unknown User".
func RenderLeaderboard(entries []domain.ScoreRecord, names func(userID string) string, now time.Time) domain.Presentation {
	var b strings.Builder
	for i, rec := range entries {
		rank := i + 1
		name := ""
		if names != nil {
			name = names(rec.UserID)
		}
		if name == "" {
			name = "Unknown User"
		}
		fmt.Fprintf(&b, "%s **%d.** %s\n", medal(rank), rank, name)
		fmt.Fprintf(&b, "   Score: %d | Accuracy: %s%% | Streak: %d (Best: %d)\n\n",
			rec.TotalScore, rec.Accuracy().StringFixed(1), rec.CurrentStreak, rec.BestStreak)
	}
	return domain.Presentation{
		Title:       "🏆 Quiz Leaderboard",
		Description: b.String(),
		Color:       colorResults,
		Footer:      fmt.Sprintf("Showing top %d users", len(entries)),
		Timestamp:   now,
	}
}

func medal(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return "🏅"
	}
}
