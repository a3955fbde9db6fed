package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"guild-quiz-service/internal/app"
	"guild-quiz-service/internal/domain"
)

const adminTokenHeader = "X-Admin-Token"

type RouterDeps struct {
	WS         *WSHandler
	Admin      AdminService
	Health     func(ctx context.Context) error
	Gatherer   prometheus.Gatherer
	AdminToken string
	Logger     *slog.Logger
}

type adminAPI struct {
	admin      AdminService
	adminToken string
	log        *slog.Logger
}

// NewRouter mounts health, metrics, the websocket gateway and the REST admin API.
func NewRouter(deps RouterDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.AllowAll().Handler)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health(r.Context()); err != nil {
				deps.Logger.Warn("health check failed", "err", err)
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	if deps.WS != nil {
		mux.Get("/ws", deps.WS.ServeWS)
	}

	api := &adminAPI{admin: deps.Admin, adminToken: deps.AdminToken, log: deps.Logger.With("component", "admin-api")}
	mux.Route("/api/guilds/{guildID}", func(r chi.Router) {
		r.Get("/leaderboard", api.leaderboard)
		r.Get("/users/{userID}/stats", api.stats)
		r.Put("/schedule", api.register)
		r.Delete("/schedule", api.unregister)
		r.Post("/channels/{channelID}/quizzes", api.startQuiz)
		r.Delete("/sessions/{messageID}", api.endQuiz)
	})
	return mux
}

func (a *adminAPI) elevated(r *http.Request) bool {
	return a.adminToken != "" && r.Header.Get(adminTokenHeader) == a.adminToken
}

type scoreView struct {
	domain.ScoreRecord
	Accuracy string `json:"accuracy"`
}

func viewScore(rec domain.ScoreRecord) scoreView {
	return scoreView{ScoreRecord: rec, Accuracy: rec.Accuracy().StringFixed(1)}
}

func (a *adminAPI) leaderboard(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := a.admin.Leaderboard(r.Context(), guildID, limit)
	if err != nil {
		a.log.Error("leaderboard failed", "guild", guildID, "err", err)
		writeError(w, err)
		return
	}
	views := make([]scoreView, 0, len(entries))
	for _, rec := range entries {
		views = append(views, viewScore(rec))
	}
	writeJSON(w, http.StatusOK, views, "get leaderboard successfully")
}

func (a *adminAPI) stats(w http.ResponseWriter, r *http.Request) {
	guildID, userID := chi.URLParam(r, "guildID"), chi.URLParam(r, "userID")
	rec, ok, err := a.admin.Stats(r.Context(), userID, guildID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, nil, "user has not answered any quizzes")
		return
	}
	writeJSON(w, http.StatusOK, viewScore(rec), "get stats successfully")
}

type scheduleRequest struct {
	ChannelID string `json:"channelId"`
	Timezone  string `json:"timezone"`
	Hour      *int   `json:"hour"`
	Minute    *int   `json:"minute"`
}

func (a *adminAPI) register(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	cfg, err := a.admin.Register(r.Context(), app.RegisterRequest{
		GuildID:   chi.URLParam(r, "guildID"),
		ChannelID: req.ChannelID,
		Timezone:  req.Timezone,
		Hour:      req.Hour,
		Minute:    req.Minute,
		Elevated:  a.elevated(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg, app.RegistrationNotice(cfg))
}

func (a *adminAPI) unregister(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.admin.Unregister(r.Context(), chi.URLParam(r, "guildID"), a.elevated(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg, "daily quizzes disabled")
}

type sessionView struct {
	MessageID string    `json:"messageId"`
	QuizID    string    `json:"quizId"`
	Deadline  time.Time `json:"deadline"`
}

func (a *adminAPI) startQuiz(w http.ResponseWriter, r *http.Request) {
	target := domain.Target{GuildID: chi.URLParam(r, "guildID"), ChannelID: chi.URLParam(r, "channelID")}
	session, err := a.admin.StartNow(r.Context(), target)
	if err != nil {
		a.log.Warn("start quiz failed", "guild", target.GuildID, "channel", target.ChannelID, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionView{
		MessageID: session.Key.MessageID,
		QuizID:    session.Quiz.ID,
		Deadline:  session.Deadline,
	}, "quiz started")
}

func (a *adminAPI) endQuiz(w http.ResponseWriter, r *http.Request) {
	key := domain.SessionKey{ScopeID: chi.URLParam(r, "guildID"), MessageID: chi.URLParam(r, "messageID")}
	if err := a.admin.EndNow(r.Context(), key, a.elevated(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil, "quiz ended")
}
