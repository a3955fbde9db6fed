package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"guild-quiz-service/internal/app"
	"guild-quiz-service/internal/app/apptest"
	"guild-quiz-service/internal/domain"
	"guild-quiz-service/internal/infra/memory"
)

type postedMessage struct {
	Target       domain.Target
	MessageID    string
	Presentation domain.Presentation
}

type fakeMessenger struct {
	mu      sync.Mutex
	seq     int
	posts   []postedMessage
	notices []string
	failErr error
}

func (m *fakeMessenger) PostPresentation(_ context.Context, target domain.Target, p domain.Presentation) (domain.MessageHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return domain.MessageHandle{}, m.failErr
	}
	m.seq++
	id := fmt.Sprintf("msg-%d", m.seq)
	m.posts = append(m.posts, postedMessage{Target: target, MessageID: id, Presentation: p})
	return domain.MessageHandle{Target: target, MessageID: id}, nil
}

func (m *fakeMessenger) PostNotice(_ context.Context, _ domain.Target, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, text)
	return nil
}

func (m *fakeMessenger) titled(title string) []postedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []postedMessage
	for _, p := range m.posts {
		if p.Presentation.Title == title {
			out = append(out, p)
		}
	}
	return out
}

func (m *fakeMessenger) noticeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notices)
}

const (
	quizTitle    = "📚 Daily Quiz"
	resultsTitle = "📊 Quiz Results"
)

// failingStore fails answer persistence while still serving quizzes.
type failingStore struct {
	*memory.Store
}

var errStoreDown = errors.New("connection refused")

func (s failingStore) RecordResponse(context.Context, domain.QuizResponse) (domain.QuizResponse, error) {
	return domain.QuizResponse{}, errStoreDown
}

type harness struct {
	store      *memory.Store
	registry   *memory.SessionRegistry
	messenger  *fakeMessenger
	dispatcher *app.Dispatcher
	handler    *app.ResponseHandler
}

func newHarness(timeout time.Duration, maxResponses int) *harness {
	store := memory.NewStore(apptest.SampleQuiz())
	registry := memory.NewSessionRegistry()
	messenger := &fakeMessenger{}
	dispatcher := app.NewDispatcher(registry, store, store, messenger, app.DispatcherOptions{Timeout: timeout})
	handler := app.NewResponseHandler(registry, store, app.ResponseHandlerOptions{
		MaxResponses: maxResponses,
		Closer:       dispatcher,
	})
	return &harness{
		store:      store,
		registry:   registry,
		messenger:  messenger,
		dispatcher: dispatcher,
		handler:    handler,
	}
}

var testTarget = domain.Target{GuildID: "g1", ChannelID: "c1"}

func answer(s domain.Session, userID, control string) app.AnswerEvent {
	return app.AnswerEvent{
		ScopeID:      s.Key.ScopeID,
		MessageID:    s.Key.MessageID,
		UserID:       userID,
		ControlToken: control,
	}
}
