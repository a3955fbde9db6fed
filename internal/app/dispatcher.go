package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"guild-quiz-service/internal/domain"
	"guild-quiz-service/internal/metrics"
)

// DefaultQuizTimeout is how long a session stays open when not configured.
const DefaultQuizTimeout = 5 * time.Minute

// Trigger labels what caused a dispatch or a close.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"

	closeTimer     = "timer"
	closeManual    = "manual"
	closeExhausted = "exhausted"
	closeShutdown  = "shutdown"
)

// DispatcherOptions tunes a Dispatcher; zero values fall back to defaults.
type DispatcherOptions struct {
	Timeout time.Duration
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Dispatcher posts quizzes into channels and closes their sessions.
type Dispatcher struct {
	registry  SessionRegistry
	quizzes   QuizBank
	responses ResponseStore
	messenger Messenger
	timeout   time.Duration
	now       func() time.Time
	log       *slog.Logger
	metrics   *metrics.Metrics

	mu     sync.Mutex
	timers map[domain.SessionKey]*time.Timer
}

func NewDispatcher(registry SessionRegistry, quizzes QuizBank, responses ResponseStore, messenger Messenger, opts DispatcherOptions) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultQuizTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		registry:  registry,
		quizzes:   quizzes,
		responses: responses,
		messenger: messenger,
		timeout:   opts.Timeout,
		now:       opts.Now,
		log:       opts.Logger.With("component", "dispatcher"),
		metrics:   opts.Metrics,
		timers:    make(map[domain.SessionKey]*time.Timer),
	}
}

// StartSession posts a random quiz to target, opens its session and arms the deadline timer.
// ErrNoQuizAvailable is reported to the channel and returned to the caller.
func (d *Dispatcher) StartSession(ctx context.Context, target domain.Target) (domain.Session, error) {
	session, err := d.startSession(ctx, target)
	if err != nil {
		if noticeErr := d.messenger.PostNotice(ctx, target, domain.Notice(err)); noticeErr != nil {
			d.log.Warn("post dispatch failure notice", "guild", target.GuildID, "channel", target.ChannelID, "error", noticeErr)
		}
		return domain.Session{}, err
	}
	return session, nil
}

func (d *Dispatcher) startSession(ctx context.Context, target domain.Target) (domain.Session, error) {
	quiz, err := d.quizzes.RandomQuiz(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoQuizAvailable) {
			return domain.Session{}, err
		}
		return domain.Session{}, fmt.Errorf("fetch quiz: %w: %w", domain.ErrStoreUnavailable, err)
	}

	now := d.now()
	handle, err := d.messenger.PostPresentation(ctx, target, RenderQuiz(quiz, now))
	if err != nil {
		return domain.Session{}, fmt.Errorf("post quiz: %w", err)
	}

	key := domain.SessionKey{ScopeID: target.GuildID, MessageID: handle.MessageID}
	session, err := d.registry.Open(ctx, key, target, quiz, now.Add(d.timeout))
	if err != nil {
		return domain.Session{}, fmt.Errorf("open session %s: %w", key, err)
	}
	d.metrics.SessionOpened()
	d.arm(key)

	d.log.Info("quiz session started",
		"session", key.String(),
		"quiz", quiz.ID,
		"channel", target.ChannelID,
		"deadline", session.Deadline,
	)
	return session, nil
}

func (d *Dispatcher) arm(key domain.SessionKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timers[key] = time.AfterFunc(d.timeout, func() {
		d.release(key)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := d.finish(ctx, key, closeTimer); err != nil {
			d.log.Error("end session on deadline", "session", key.String(), "error", err)
		}
	})
}

// release drops the deadline timer armed for key, if this dispatcher owns one.
// The active gauge only moves on the instance that opened the session.
func (d *Dispatcher) release(key domain.SessionKey) {
	d.mu.Lock()
	timer, ok := d.timers[key]
	if ok {
		timer.Stop()
		delete(d.timers, key)
	}
	d.mu.Unlock()
	if ok {
		d.metrics.SessionReleased()
	}
}

func alreadyEnded(err error) bool {
	return errors.Is(err, domain.ErrAlreadyClosed) || errors.Is(err, domain.ErrSessionNotFound)
}

// EndSession closes the session and posts its results. Closing a session
// that another caller already closed is a no-op, so the deadline timer and a
// manual end may race freely.
func (d *Dispatcher) EndSession(ctx context.Context, key domain.SessionKey) error {
	return d.finish(ctx, key, closeManual)
}

// EndActive is EndSession for callers that must know whether they closed the
// session. It returns ErrAlreadyClosed or ErrSessionNotFound when they did not.
func (d *Dispatcher) EndActive(ctx context.Context, key domain.SessionKey) error {
	return d.endSession(ctx, key, closeManual)
}

func (d *Dispatcher) finish(ctx context.Context, key domain.SessionKey, reason string) error {
	err := d.endSession(ctx, key, reason)
	if alreadyEnded(err) {
		d.log.Debug("session already ended", "session", key.String(), "reason", reason)
		return nil
	}
	return err
}

func (d *Dispatcher) endSession(ctx context.Context, key domain.SessionKey, reason string) error {
	session, err := d.registry.Close(ctx, key)
	if err != nil {
		if alreadyEnded(err) {
			d.release(key)
		}
		return fmt.Errorf("close session %s: %w", key, err)
	}

	d.release(key)
	d.metrics.SessionClosed(reason)
	defer func() {
		if err := d.registry.Evict(ctx, key); err != nil {
			d.log.Error("evict session", "session", key.String(), "error", err)
		}
	}()

	responses, err := d.responses.QuizResponses(ctx, session.Quiz.ID, key.ScopeID)
	if err != nil {
		return fmt.Errorf("load responses for %s: %w: %w", key, domain.ErrStoreUnavailable, err)
	}
	correct := 0
	for _, r := range responses {
		if r.IsCorrect {
			correct++
		}
	}

	results := RenderResults(session.Quiz, len(responses), correct, d.now())
	if _, err := d.messenger.PostPresentation(ctx, session.Target, results); err != nil {
		return fmt.Errorf("post results for %s: %w", key, err)
	}

	d.log.Info("quiz session ended",
		"session", key.String(),
		"reason", reason,
		"responses", len(responses),
		"correct", correct,
		"participants", len(session.Participants),
	)
	return nil
}

// Shutdown stops pending deadline timers and ends their sessions immediately.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.mu.Lock()
	keys := make([]domain.SessionKey, 0, len(d.timers))
	for key := range d.timers {
		keys = append(keys, key)
	}
	d.mu.Unlock()

	for _, key := range keys {
		d.release(key)
		if err := d.finish(ctx, key, closeShutdown); err != nil {
			d.log.Warn("end session on shutdown", "session", key.String(), "error", err)
		}
	}
}

// Pending returns the number of sessions with an armed deadline timer.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// CloseExhausted ends a session early because every expected participant answered.
func (d *Dispatcher) CloseExhausted(ctx context.Context, key domain.SessionKey) error {
	return d.finish(ctx, key, closeExhausted)
}
