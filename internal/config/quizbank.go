package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"guild-quiz-service/internal/domain"
)

type quizBankFile struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

// LoadQuizBank reads a YAML quiz bank used by the seed command.
func LoadQuizBank(path string) ([]domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file quizBankFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, quiz := range file.Quizzes {
		if err := checkQuiz(quiz); err != nil {
			return nil, fmt.Errorf("%s: quiz %d: %w", path, i+1, err)
		}
	}
	return file.Quizzes, nil
}

func checkQuiz(q domain.Quiz) error {
	if q.Question == "" {
		return fmt.Errorf("question is empty")
	}
	switch q.Type {
	case domain.QuizTypeYesNo:
		if !q.IsCorrect("yes") && !q.IsCorrect("no") {
			return fmt.Errorf("yes_no answer %q must be yes or no", q.CorrectAnswer)
		}
	case domain.QuizTypeMultipleChoice:
		if len(q.Options) < 2 || len(q.Options) > 26 {
			return fmt.Errorf("multiple_choice needs 2 to 26 options, got %d", len(q.Options))
		}
		if len(q.CorrectAnswer) != 1 {
			return fmt.Errorf("multiple_choice answer %q must be a single letter", q.CorrectAnswer)
		}
		idx := int(q.CorrectAnswer[0]|0x20) - 'a'
		if idx < 0 || idx >= len(q.Options) {
			return fmt.Errorf("answer %q is outside the %d options", q.CorrectAnswer, len(q.Options))
		}
	default:
		return fmt.Errorf("unknown quiz type %q", q.Type)
	}
	return nil
}
