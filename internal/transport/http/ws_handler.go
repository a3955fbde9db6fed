package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"guild-quiz-service/internal/app"
	"guild-quiz-service/internal/domain"
)

// AnswerHandler receives answer control events.
type AnswerHandler interface {
	HandleAnswer(ctx context.Context, ev app.AnswerEvent) (app.AnswerOutcome, error)
}

// AdminService serves chat commands and the REST admin surface.
type AdminService interface {
	Register(ctx context.Context, req app.RegisterRequest) (domain.GuildScheduleConfig, error)
	Unregister(ctx context.Context, guildID string, elevated bool) (domain.GuildScheduleConfig, error)
	StartNow(ctx context.Context, target domain.Target) (domain.Session, error)
	EndNow(ctx context.Context, key domain.SessionKey, elevated bool) error
	Stats(ctx context.Context, userID, guildID string) (domain.ScoreRecord, bool, error)
	Leaderboard(ctx context.Context, guildID string, limit int) ([]domain.ScoreRecord, error)
}

// WSHandler is the chat gateway: clients join a guild channel, receive its
// posts and send answer and command events.
type WSHandler struct {
	hub        *Hub
	answers    AnswerHandler
	admin      AdminService
	adminToken string
	now        func() time.Time
	log        *slog.Logger
	upgrader   websocket.Upgrader
}

type WSOptions struct {
	// AdminToken grants elevated commands to clients presenting it; empty disables them.
	AdminToken string
	Now        func() time.Time
	Logger     *slog.Logger
}

func NewWSHandler(hub *Hub, answers AnswerHandler, admin AdminService, opts WSOptions) *WSHandler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &WSHandler{
		hub:        hub,
		answers:    answers,
		admin:      admin,
		adminToken: opts.AdminToken,
		now:        opts.Now,
		log:        opts.Logger.With("component", "gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	MessageID string `json:"messageId"`
	Control   string `json:"control"`
}

type commandPayload struct {
	Name      string `json:"name"`
	MessageID string `json:"messageId,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	Hour      *int   `json:"hour,omitempty"`
	Minute    *int   `json:"minute,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// ephemeralPayload is only delivered to the client that triggered it.
type ephemeralPayload struct {
	Text         string               `json:"text,omitempty"`
	Presentation *domain.Presentation `json:"presentation,omitempty"`
}

// ServeWS upgrades HTTP requests to websockets and joins the caller to a channel.
// guildName, name and token are optional query parameters.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := domain.Target{GuildID: q.Get("guildId"), ChannelID: q.Get("channelId")}
	userID := q.Get("userId")
	if target.GuildID == "" || target.ChannelID == "" || userID == "" {
		http.Error(w, "missing guildId, channelId, or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(64 << 10)

	c := &client{
		userID:   userID,
		name:     q.Get("name"),
		target:   target,
		elevated: h.adminToken != "" && q.Get("token") == h.adminToken,
		send:     make(chan outboundMessage[any], sendBuffer),
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", "user", userID, "err", err)
				// drain until leave closes send
				for range c.send {
				}
				return
			}
		}
	}()

	if h.hub.join(c) {
		_ = h.hub.PostNotice(r.Context(), target, app.WelcomeNotice(guildName(q.Get("guildName"))))
	}
	h.log.Info("client joined", "guild", target.GuildID, "channel", target.ChannelID, "user", userID, "elevated", c.elevated)

	reply := func(p ephemeralPayload) {
		select {
		case c.send <- outboundMessage[any]{Type: "ephemeral", Payload: p}:
		case <-writerDone:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.MessageID == "" {
				reply(ephemeralPayload{Text: "❌ Invalid answer payload."})
				continue
			}
			reply(h.answer(r.Context(), c, payload))
		case "command":
			var payload commandPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(ephemeralPayload{Text: "❌ Invalid command payload."})
				continue
			}
			reply(h.command(r.Context(), c, payload))
		default:
			reply(ephemeralPayload{Text: "❌ Unsupported message type."})
		}
	}

	h.hub.leave(c)
	<-writerDone
	h.log.Info("client left", "guild", target.GuildID, "user", userID)
}

func (h *WSHandler) answer(ctx context.Context, c *client, p answerPayload) ephemeralPayload {
	outcome, err := h.answers.HandleAnswer(ctx, app.AnswerEvent{
		ScopeID:      c.target.GuildID,
		MessageID:    p.MessageID,
		UserID:       c.userID,
		ControlToken: p.Control,
	})
	if err != nil {
		h.log.Error("answer failed", "guild", c.target.GuildID, "message", p.MessageID, "user", c.userID, "err", err)
		return ephemeralPayload{Text: domain.Notice(err)}
	}
	if outcome.Status != app.AnswerRecorded {
		return ephemeralPayload{Text: outcome.Notice()}
	}
	feedback := app.RenderAnswerFeedback(outcome.Correct)
	return ephemeralPayload{Text: outcome.Notice(), Presentation: &feedback}
}

func (h *WSHandler) command(ctx context.Context, c *client, p commandPayload) ephemeralPayload {
	guildID := c.target.GuildID
	switch p.Name {
	case "startquiz":
		if _, err := h.admin.StartNow(ctx, c.target); err != nil {
			return h.failed(p.Name, c, err)
		}
		return ephemeralPayload{Text: "✅ Quiz started! Check the messages above to participate."}

	case "endquiz":
		if p.MessageID == "" {
			return ephemeralPayload{Text: "❌ endquiz needs the quiz messageId."}
		}
		key := domain.SessionKey{ScopeID: guildID, MessageID: p.MessageID}
		if err := h.admin.EndNow(ctx, key, c.elevated); err != nil {
			return h.failed(p.Name, c, err)
		}
		return ephemeralPayload{Text: "✅ Quiz ended."}

	case "mystats":
		rec, ok, err := h.admin.Stats(ctx, c.userID, guildID)
		if err != nil {
			return h.failed(p.Name, c, err)
		}
		if !ok {
			return ephemeralPayload{Text: "📊 You haven't answered any quizzes yet! Start participating to see your stats."}
		}
		name := c.name
		if name == "" {
			name = c.userID
		}
		stats := app.RenderStats(name, rec, h.now())
		return ephemeralPayload{Presentation: &stats}

	case "leaderboard":
		entries, err := h.admin.Leaderboard(ctx, guildID, p.Limit)
		if err != nil {
			return h.failed(p.Name, c, err)
		}
		if len(entries) == 0 {
			return ephemeralPayload{Text: "📊 No quiz data found for this server yet. Start answering quizzes to appear on the leaderboard!"}
		}
		board := app.RenderLeaderboard(entries, h.hub.DisplayName, h.now())
		return ephemeralPayload{Presentation: &board}

	case "registerchannel":
		channelID := p.ChannelID
		if channelID == "" {
			channelID = c.target.ChannelID
		}
		cfg, err := h.admin.Register(ctx, app.RegisterRequest{
			GuildID:   guildID,
			ChannelID: channelID,
			Timezone:  p.Timezone,
			Hour:      p.Hour,
			Minute:    p.Minute,
			Elevated:  c.elevated,
		})
		if err != nil {
			return h.failed(p.Name, c, err)
		}
		return ephemeralPayload{Text: app.RegistrationNotice(cfg)}

	case "unregisterchannel":
		if _, err := h.admin.Unregister(ctx, guildID, c.elevated); err != nil {
			return h.failed(p.Name, c, err)
		}
		return ephemeralPayload{Text: "✅ Successfully disabled daily quizzes for this server. You can re-enable them using `/registerchannel`."}
	}
	return ephemeralPayload{Text: "❌ Unknown command."}
}

func guildName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "this server"
}

func (h *WSHandler) failed(command string, c *client, err error) ephemeralPayload {
	h.log.Warn("command failed", "command", command, "guild", c.target.GuildID, "user", c.userID, "err", err)
	return ephemeralPayload{Text: domain.Notice(err)}
}
