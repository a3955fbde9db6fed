package app

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"guild-quiz-service/internal/domain"
	"guild-quiz-service/internal/metrics"
)

// AnswerEvent is an incoming control press on a posted quiz.
type AnswerEvent struct {
	ScopeID      string
	MessageID    string
	UserID       string
	ControlToken string
}

// AnswerStatus classifies how an answer event was handled.
type AnswerStatus string

const (
	AnswerRecorded        AnswerStatus = "recorded"
	AnswerAlreadyGiven    AnswerStatus = "already_answered"
	AnswerSessionInactive AnswerStatus = "session_inactive"
)

// AnswerOutcome is the result of HandleAnswer.
type AnswerOutcome struct {
	Status  AnswerStatus
	Correct bool
	Score   domain.ScoreRecord
}

// Notice is the short ephemeral message shown to the answering user.
func (o AnswerOutcome) Notice() string {
	switch o.Status {
	case AnswerSessionInactive:
		return "❌ This quiz is no longer active."
	case AnswerAlreadyGiven:
		return "❌ You have already answered this quiz!"
	}
	if o.Correct {
		return "✅ Correct!"
	}
	return "❌ Incorrect!"
}

// AnswerStore is the persistence a ResponseHandler needs.
type AnswerStore interface {
	ResponseStore
	ScoreStore
}

// SessionCloser ends a session once its expected responses are exhausted.
type SessionCloser interface {
	CloseExhausted(ctx context.Context, key domain.SessionKey) error
}

// ResponseHandlerOptions tunes a ResponseHandler.
type ResponseHandlerOptions struct {
	// MaxResponses closes a session once that many participants answered; 0 disables.
	MaxResponses int
	Closer       SessionCloser
	Now          func() time.Time
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// ResponseHandler validates answers against open sessions and updates scores.
type ResponseHandler struct {
	registry     SessionRegistry
	store        AnswerStore
	closer       SessionCloser
	maxResponses int
	now          func() time.Time
	log          *slog.Logger
	metrics      *metrics.Metrics

	// scoreLocks serializes score read-modify-write per (user, guild).
	scoreLocks [64]sync.Mutex
}

func NewResponseHandler(registry SessionRegistry, store AnswerStore, opts ResponseHandlerOptions) *ResponseHandler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ResponseHandler{
		registry:     registry,
		store:        store,
		closer:       opts.Closer,
		maxResponses: opts.MaxResponses,
		now:          opts.Now,
		log:          opts.Logger.With("component", "responses"),
		metrics:      opts.Metrics,
	}
}

// HandleAnswer records at most one answer per user per session.
// Store failures are returned after the participant has been marked as
// answered; that mark is never rolled back.
func (h *ResponseHandler) HandleAnswer(ctx context.Context, ev AnswerEvent) (AnswerOutcome, error) {
	started := h.now()
	outcome, err := h.handle(ctx, ev)
	label := string(outcome.Status)
	if err != nil {
		label = "error"
	}
	h.metrics.Answer(label, h.now().Sub(started).Seconds())
	return outcome, err
}

func (h *ResponseHandler) handle(ctx context.Context, ev AnswerEvent) (AnswerOutcome, error) {
	key := domain.SessionKey{ScopeID: ev.ScopeID, MessageID: ev.MessageID}

	session, ok, err := h.registry.Get(ctx, key)
	if err != nil {
		return AnswerOutcome{}, fmt.Errorf("lookup session %s: %w", key, err)
	}
	if !ok || session.Status != domain.SessionOpen {
		return AnswerOutcome{Status: AnswerSessionInactive}, nil
	}

	already, count, err := h.registry.RecordParticipant(ctx, key, ev.UserID)
	if errors.Is(err, domain.ErrSessionNotOpen) {
		return AnswerOutcome{Status: AnswerSessionInactive}, nil
	}
	if err != nil {
		return AnswerOutcome{}, fmt.Errorf("record participant: %w", err)
	}
	if already {
		return AnswerOutcome{Status: AnswerAlreadyGiven}, nil
	}

	answer := AnswerToken(ev.ControlToken)
	outcome := AnswerOutcome{Status: AnswerRecorded, Correct: session.Quiz.IsCorrect(answer)}
	now := h.now()

	_, err = h.store.RecordResponse(ctx, domain.QuizResponse{
		ID:           uuid.NewString(),
		QuizID:       session.Quiz.ID,
		UserID:       ev.UserID,
		GuildID:      ev.ScopeID,
		Answer:       answer,
		IsCorrect:    outcome.Correct,
		ResponseTime: now.Sub(session.CreatedAt),
		CreatedAt:    now,
	})
	if err != nil {
		return outcome, fmt.Errorf("record response: %w: %w", domain.ErrStoreUnavailable, err)
	}

	score, err := h.updateScore(ctx, ev.UserID, ev.ScopeID, outcome.Correct, now)
	if err != nil {
		return outcome, err
	}
	outcome.Score = score

	h.log.Debug("answer recorded",
		"session", key.String(),
		"user", ev.UserID,
		"correct", outcome.Correct,
		"participants", count,
	)

	if h.maxResponses > 0 && count >= h.maxResponses && h.closer != nil {
		if err := h.closer.CloseExhausted(ctx, key); err != nil {
			h.log.Error("close exhausted session", "session", key.String(), "error", err)
		}
	}
	return outcome, nil
}

func (h *ResponseHandler) updateScore(ctx context.Context, userID, guildID string, correct bool, now time.Time) (domain.ScoreRecord, error) {
	lock := h.scoreLock(userID, guildID)
	lock.Lock()
	defer lock.Unlock()

	prior, found, err := h.store.UserScore(ctx, userID, guildID)
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("load score: %w: %w", domain.ErrStoreUnavailable, err)
	}
	var base *domain.ScoreRecord
	if found {
		base = &prior
	}

	next := ApplyAnswer(base, correct)
	next.UserID = userID
	next.GuildID = guildID
	next.UpdatedAt = now
	if err := h.store.UpsertScore(ctx, next); err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("save score: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return next, nil
}

func (h *ResponseHandler) scoreLock(userID, guildID string) *sync.Mutex {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(guildID))
	_, _ = hash.Write([]byte{0})
	_, _ = hash.Write([]byte(userID))
	return &h.scoreLocks[hash.Sum32()%uint32(len(h.scoreLocks))]
}
