package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// QuizType distinguishes how answers are offered to participants.
type QuizType string

const (
	QuizTypeMultipleChoice QuizType = "multiple_choice"
	QuizTypeYesNo          QuizType = "yes_no"
)

// Quiz is a single question from the quiz bank. It is never mutated once loaded.
type Quiz struct {
	ID            string    `json:"id" yaml:"id"`
	Question      string    `json:"question" yaml:"question"`
	Type          QuizType  `json:"type" yaml:"type"`
	Options       []string  `json:"options,omitempty" yaml:"options,omitempty"` // multiple_choice only
	CorrectAnswer string    `json:"correct_answer" yaml:"correct_answer"`
	Explanation   string    `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Difficulty    string    `json:"difficulty" yaml:"difficulty"`
	Category      string    `json:"category" yaml:"category"`
	CreatedAt     time.Time `json:"created_at" yaml:"-"`
}

// IsCorrect reports whether an answer token matches the quiz's correct answer.
// Tokens are compared case-insensitively so the control token "a" matches "A".
func (q Quiz) IsCorrect(token string) bool {
	return strings.EqualFold(strings.TrimSpace(token), strings.TrimSpace(q.CorrectAnswer))
}

// QuizResponse is one persisted answer row.
type QuizResponse struct {
	ID           string        `json:"id"`
	QuizID       string        `json:"quizId"`
	UserID       string        `json:"userId"`
	GuildID      string        `json:"guildId"`
	Answer       string        `json:"answer"`
	IsCorrect    bool          `json:"isCorrect"`
	ResponseTime time.Duration `json:"responseTime"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// ScoreRecord holds per-user, per-guild aggregate statistics.
type ScoreRecord struct {
	UserID         string    `json:"userId"`
	GuildID        string    `json:"guildId"`
	TotalScore     int       `json:"totalScore"`
	CorrectAnswers int       `json:"correctAnswers"`
	TotalAnswers   int       `json:"totalAnswers"`
	CurrentStreak  int       `json:"currentStreak"`
	BestStreak     int       `json:"bestStreak"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Accuracy returns the percentage of correct answers rounded to one decimal place.
func (r ScoreRecord) Accuracy() decimal.Decimal {
	if r.TotalAnswers == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(r.CorrectAnswers)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(r.TotalAnswers)), 1)
}

// GuildScheduleConfig is the per-guild automatic dispatch configuration.
type GuildScheduleConfig struct {
	GuildID    string    `json:"guildId"`
	ChannelID  string    `json:"channelId,omitempty"` // empty when disabled
	Timezone   string    `json:"timezone"`
	FireHour   int       `json:"fireHour"`
	FireMinute int       `json:"fireMinute"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Schedulable reports whether the config should be considered by the schedule matcher.
func (c GuildScheduleConfig) Schedulable() bool {
	return c.Active && c.ChannelID != ""
}

// Target identifies a channel inside a guild.
type Target struct {
	GuildID   string `json:"guildId"`
	ChannelID string `json:"channelId"`
}

// MessageHandle identifies a message posted by the messaging collaborator.
type MessageHandle struct {
	Target    Target `json:"target"`
	MessageID string `json:"messageId"`
}

// SessionKey derives from the posting scope and the posted message identity.
type SessionKey struct {
	ScopeID   string `json:"scopeId"`
	MessageID string `json:"messageId"`
}

func (k SessionKey) String() string {
	return k.ScopeID + "-" + k.MessageID
}

// SessionStatus is OPEN until the session is closed; CLOSED is absorbing.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "OPEN"
	SessionClosed SessionStatus = "CLOSED"
)

// Session is a point-in-time snapshot of an open question instance.
type Session struct {
	Key          SessionKey    `json:"key"`
	Target       Target        `json:"target"`
	Quiz         Quiz          `json:"quiz"`
	Participants []string      `json:"participants"`
	CreatedAt    time.Time     `json:"createdAt"`
	Deadline     time.Time     `json:"deadline"`
	Status       SessionStatus `json:"status"`
}
