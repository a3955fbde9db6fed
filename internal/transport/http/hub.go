package http

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"guild-quiz-service/internal/app"
	"guild-quiz-service/internal/domain"
)

const sendBuffer = 16

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type presentationPayload struct {
	MessageID    string              `json:"messageId"`
	GuildID      string              `json:"guildId"`
	ChannelID    string              `json:"channelId"`
	Presentation domain.Presentation `json:"presentation"`
}

type noticePayload struct {
	GuildID   string `json:"guildId"`
	ChannelID string `json:"channelId"`
	Text      string `json:"text"`
}

type client struct {
	userID   string
	name     string
	target   domain.Target
	elevated bool
	send     chan outboundMessage[any]
}

// Hub fans channel messages out to the websocket clients joined to that
// channel. It is the app.Messenger of the chat gateway.
type Hub struct {
	log *slog.Logger

	mu       sync.RWMutex
	channels map[domain.Target]map[*client]struct{}
	names    map[string]string
	guilds   map[string]struct{}
}

var _ app.Messenger = (*Hub)(nil)

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:      logger.With("component", "hub"),
		channels: make(map[domain.Target]map[*client]struct{}),
		names:    make(map[string]string),
		guilds:   make(map[string]struct{}),
	}
}

// join adds c to its channel; firstInGuild is true the first time the guild is seen.
func (h *Hub) join(c *client) (firstInGuild bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.channels[c.target]
	if !ok {
		members = make(map[*client]struct{})
		h.channels[c.target] = members
	}
	members[c] = struct{}{}
	if c.name != "" {
		h.names[c.userID] = c.name
	}
	if _, seen := h.guilds[c.target.GuildID]; !seen {
		h.guilds[c.target.GuildID] = struct{}{}
		return true
	}
	return false
}

// leave removes c and closes its send channel; broadcasts hold the read lock
// so nothing can write to it afterwards.
func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.channels[c.target]; ok {
		if _, ok := members[c]; !ok {
			return
		}
		delete(members, c)
		if len(members) == 0 {
			delete(h.channels, c.target)
		}
		close(c.send)
	}
}

func (h *Hub) broadcast(target domain.Target, msg outboundMessage[any]) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.channels[target] {
		select {
		case c.send <- msg:
			delivered++
		default:
			h.log.Warn("dropping message for slow client", "guild", target.GuildID, "user", c.userID, "type", msg.Type)
		}
	}
	return delivered
}

// PostPresentation assigns a message ID and delivers p to the channel.
func (h *Hub) PostPresentation(_ context.Context, target domain.Target, p domain.Presentation) (domain.MessageHandle, error) {
	handle := domain.MessageHandle{Target: target, MessageID: uuid.NewString()}
	n := h.broadcast(target, outboundMessage[any]{Type: "presentation", Payload: presentationPayload{
		MessageID:    handle.MessageID,
		GuildID:      target.GuildID,
		ChannelID:    target.ChannelID,
		Presentation: p,
	}})
	h.log.Debug("presentation posted", "guild", target.GuildID, "channel", target.ChannelID, "message", handle.MessageID, "clients", n)
	return handle, nil
}

func (h *Hub) PostNotice(_ context.Context, target domain.Target, text string) error {
	h.broadcast(target, outboundMessage[any]{Type: "notice", Payload: noticePayload{
		GuildID:   target.GuildID,
		ChannelID: target.ChannelID,
		Text:      text,
	}})
	return nil
}

// DisplayName resolves a user to the last name they connected with.
func (h *Hub) DisplayName(userID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.names[userID]
}

// Clients counts connections joined to target.
func (h *Hub) Clients(target domain.Target) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[target])
}
