package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"guild-quiz-service/internal/domain"
)

// SessionRegistry is a Redis-backed app.SessionRegistry shared by every
// service instance. Each session is a hash holding its status and payload
// plus a set of participant IDs; state transitions run as Lua scripts so
// check-and-set is atomic on the server.
//
// Keys (hash-tagged so both live on one cluster slot):
//
//	quiz:session:{scope-message}               status, data
//	quiz:session:{scope-message}:participants  user IDs
type SessionRegistry struct {
	client *redis.Client
	grace  time.Duration
	now    func() time.Time
}

// NewSessionRegistry keeps session keys for grace past their deadline so a
// crashed instance cannot leak them forever.
func NewSessionRegistry(client *redis.Client, grace time.Duration) *SessionRegistry {
	return &SessionRegistry{client: client, grace: grace, now: time.Now}
}

type sessionData struct {
	Target    domain.Target `json:"target"`
	Quiz      domain.Quiz   `json:"quiz"`
	CreatedAt time.Time     `json:"createdAt"`
	Deadline  time.Time     `json:"deadline"`
}

var openScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') == 'OPEN' then
  return 0
end
redis.call('DEL', KEYS[1], KEYS[2])
redis.call('HSET', KEYS[1], 'status', 'OPEN', 'data', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

var recordScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'OPEN' then
  return {-1, 0}
end
local added = redis.call('SADD', KEYS[2], ARGV[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[2], ttl)
end
return {added, redis.call('SCARD', KEYS[2])}
`)

var closeScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return 'missing'
end
if status == 'CLOSED' then
  return 'closed'
end
redis.call('HSET', KEYS[1], 'status', 'CLOSED')
return 'ok'
`)

var evictScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') == 'OPEN' then
  return 0
end
redis.call('DEL', KEYS[1], KEYS[2])
return 1
`)

func (r *SessionRegistry) Open(ctx context.Context, key domain.SessionKey, target domain.Target, quiz domain.Quiz, deadline time.Time) (domain.Session, error) {
	now := r.now()
	data := sessionData{Target: target, Quiz: quiz, CreatedAt: now, Deadline: deadline}
	raw, err := json.Marshal(data)
	if err != nil {
		return domain.Session{}, fmt.Errorf("marshal session: %w", err)
	}

	ttl := deadline.Sub(now) + r.grace
	if ttl < time.Second {
		ttl = time.Second
	}
	opened, err := openScript.Run(ctx, r.client, r.keys(key), string(raw), ttl.Milliseconds()).Int()
	if err != nil {
		return domain.Session{}, fmt.Errorf("open session: %w", err)
	}
	if opened == 0 {
		return domain.Session{}, domain.ErrDuplicateSession
	}
	return data.session(key, nil, domain.SessionOpen), nil
}

func (r *SessionRegistry) Get(ctx context.Context, key domain.SessionKey) (domain.Session, bool, error) {
	session, err := r.snapshot(ctx, key)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, err
	}
	return session, true, nil
}

func (r *SessionRegistry) RecordParticipant(ctx context.Context, key domain.SessionKey, userID string) (bool, int, error) {
	res, err := recordScript.Run(ctx, r.client, r.keys(key), userID).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("record participant: %w", err)
	}
	if len(res) != 2 || res[0] < 0 {
		return false, 0, domain.ErrSessionNotOpen
	}
	return res[0] == 0, int(res[1]), nil
}

func (r *SessionRegistry) Close(ctx context.Context, key domain.SessionKey) (domain.Session, error) {
	res, err := closeScript.Run(ctx, r.client, r.keys(key)).Text()
	if err != nil {
		return domain.Session{}, fmt.Errorf("close session: %w", err)
	}
	switch res {
	case "missing":
		return domain.Session{}, domain.ErrSessionNotFound
	case "closed":
		return domain.Session{}, domain.ErrAlreadyClosed
	}
	return r.snapshot(ctx, key)
}

func (r *SessionRegistry) Evict(ctx context.Context, key domain.SessionKey) error {
	evicted, err := evictScript.Run(ctx, r.client, r.keys(key)).Int()
	if err != nil {
		return fmt.Errorf("evict session: %w", err)
	}
	if evicted == 0 {
		return domain.ErrSessionStillOpen
	}
	return nil
}

func (r *SessionRegistry) snapshot(ctx context.Context, key domain.SessionKey) (domain.Session, error) {
	keys := r.keys(key)
	pipe := r.client.Pipeline()
	fields := pipe.HGetAll(ctx, keys[0])
	members := pipe.SMembers(ctx, keys[1])
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}

	hash := fields.Val()
	if len(hash) == 0 {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	var data sessionData
	if err := json.Unmarshal([]byte(hash["data"]), &data); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	participants := members.Val()
	sort.Strings(participants)
	return data.session(key, participants, domain.SessionStatus(hash["status"])), nil
}

func (d sessionData) session(key domain.SessionKey, participants []string, status domain.SessionStatus) domain.Session {
	if participants == nil {
		participants = []string{}
	}
	return domain.Session{
		Key:          key,
		Target:       d.Target,
		Quiz:         d.Quiz,
		Participants: participants,
		CreatedAt:    d.CreatedAt,
		Deadline:     d.Deadline,
		Status:       status,
	}
}

func (r *SessionRegistry) keys(key domain.SessionKey) []string {
	base := "quiz:session:{" + key.String() + "}"
	return []string{base, base + ":participants"}
}
