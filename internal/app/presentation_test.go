package app_test

import (
	"testing"
	"time"

	"guild-quiz-service/internal/app"
	"guild-quiz-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderQuizMultipleChoiceControls(t *testing.T) {
	quiz := domain.Quiz{
		ID:            "q-1",
		Question:      "Capital of France?",
		Type:          domain.QuizTypeMultipleChoice,
		Options:       []string{"Paris", "Lyon", "Nice"},
		CorrectAnswer: "A",
		Difficulty:    "easy",
		Category:      "Geography",
	}

	p := app.RenderQuiz(quiz, time.Unix(0, 0))

	require.Len(t, p.Controls, 3)
	labels := []string{p.Controls[0].Label, p.Controls[1].Label, p.Controls[2].Label}
	assert.Equal(t, []string{"A", "B", "C"}, labels)
	assert.Equal(t, "quiz_a", p.Controls[0].Token)

	// Selecting the "Paris" control is the correct answer.
	assert.True(t, quiz.IsCorrect(app.AnswerToken(p.Controls[0].Token)))
	assert.False(t, quiz.IsCorrect(app.AnswerToken(p.Controls[1].Token)))

	require.Len(t, p.Fields, 3)
	assert.Equal(t, "A. Paris\nB. Lyon\nC. Nice", p.Fields[2].Value)
}

func TestRenderQuizYesNoControls(t *testing.T) {
	p := app.RenderQuiz(domain.Quiz{ID: "q-2", Type: domain.QuizTypeYesNo, CorrectAnswer: "yes"}, time.Now())

	require.Len(t, p.Controls, 2)
	assert.Equal(t, "quiz_yes", p.Controls[0].Token)
	assert.Equal(t, "quiz_no", p.Controls[1].Token)
	assert.Len(t, p.Fields, 2, "yes/no quizzes carry no options field")
}

func TestRenderResultsIncludesExplanation(t *testing.T) {
	quiz := domain.Quiz{
		Question:      "Capital of France?",
		Type:          domain.QuizTypeMultipleChoice,
		Options:       []string{"Paris", "Lyon"},
		CorrectAnswer: "A",
		Explanation:   "Paris has been the capital since 987.",
	}

	p := app.RenderResults(quiz, 4, 3, time.Now())

	require.Len(t, p.Fields, 4)
	assert.Equal(t, "A. Paris", p.Fields[0].Value)
	assert.Equal(t, "4", p.Fields[1].Value)
	assert.Equal(t, "3", p.Fields[2].Value)
	assert.Equal(t, "💡 Explanation", p.Fields[3].Name)
}

func TestRenderLeaderboardMedals(t *testing.T) {
	entries := []domain.ScoreRecord{
		{UserID: "u1", TotalScore: 9, CorrectAnswers: 9, TotalAnswers: 10},
		{UserID: "u2", TotalScore: 5},
		{UserID: "u3", TotalScore: 4},
		{UserID: "u4", TotalScore: 1},
	}
	names := map[string]string{"u1": "Alice"}

	p := app.RenderLeaderboard(entries, func(id string) string { return names[id] }, time.Now())

	assert.Contains(t, p.Description, "🥇 **1.** Alice")
	assert.Contains(t, p.Description, "Accuracy: 90.0%")
	assert.Contains(t, p.Description, "🥈 **2.** Unknown User")
	assert.Contains(t, p.Description, "🏅 **4.**")
	assert.Equal(t, "Showing top 4 users", p.Footer)
}
