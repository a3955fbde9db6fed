package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"guild-quiz-service/internal/domain"
	"guild-quiz-service/internal/metrics"
)

// SlotLayout formats a guild-local fire slot for the FireMarker.
const SlotLayout = "2006-01-02T15:04"

// SessionStarter begins a quiz session in a channel.
type SessionStarter interface {
	StartSession(ctx context.Context, target domain.Target) (domain.Session, error)
}

// GuildConfigLister lists the configs the matcher evaluates.
type GuildConfigLister interface {
	ActiveGuildConfigs(ctx context.Context) ([]domain.GuildScheduleConfig, error)
}

// ScheduleMatcherOptions tunes a ScheduleMatcher.
type ScheduleMatcherOptions struct {
	// Marker, when set, lets each guild slot fire at most once.
	Marker      FireMarker
	Interval    time.Duration
	Concurrency int
	Now         func() time.Time
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// ScheduleMatcher fires a dispatch for every config whose local time equals its fire time.
type ScheduleMatcher struct {
	configs     GuildConfigLister
	starter     SessionStarter
	marker      FireMarker
	interval    time.Duration
	concurrency int
	now         func() time.Time
	log         *slog.Logger
	metrics     *metrics.Metrics
	ticks       singleflight.Group
}

func NewScheduleMatcher(configs GuildConfigLister, starter SessionStarter, opts ScheduleMatcherOptions) *ScheduleMatcher {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ScheduleMatcher{
		configs:     configs,
		starter:     starter,
		marker:      opts.Marker,
		interval:    opts.Interval,
		concurrency: opts.Concurrency,
		now:         opts.Now,
		log:         opts.Logger.With("component", "scheduler"),
		metrics:     opts.Metrics,
	}
}

// Run ticks on every interval boundary until ctx is done.
func (m *ScheduleMatcher) Run(ctx context.Context) error {
	m.log.Info("quiz scheduler started", "interval", m.interval)

	// Align the first tick to the next boundary so minute matches are not skipped.
	wait := m.now().Truncate(m.interval).Add(m.interval).Sub(m.now())
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if _, err := m.Tick(ctx); err != nil {
			m.log.Error("scheduled quiz check failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick evaluates every active config once and returns the number of dispatches started.
// Concurrent ticks within the same UTC minute share one evaluation.
func (m *ScheduleMatcher) Tick(ctx context.Context) (int, error) {
	now := m.now()
	minute := now.UTC().Truncate(time.Minute).Format(SlotLayout)
	v, err, _ := m.ticks.Do(minute, func() (interface{}, error) {
		return m.tick(ctx, now)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (m *ScheduleMatcher) tick(ctx context.Context, now time.Time) (int, error) {
	m.metrics.Tick()

	configs, err := m.configs.ActiveGuildConfigs(ctx)
	if err != nil {
		return 0, fmt.Errorf("load active guilds: %w: %w", domain.ErrStoreUnavailable, err)
	}

	var fired atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, cfg := range configs {
		if !cfg.Schedulable() {
			continue
		}
		slot, ok := m.due(cfg, now)
		if !ok {
			continue
		}
		g.Go(func() error {
			if m.fire(gctx, cfg, slot) {
				fired.Add(1)
			}
			// One guild failing must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()
	return int(fired.Load()), nil
}

// due reports whether now, in the config's timezone, equals its fire time.
func (m *ScheduleMatcher) due(cfg domain.GuildScheduleConfig, now time.Time) (string, bool) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		m.log.Warn("skipping guild with invalid timezone", "guild", cfg.GuildID, "timezone", cfg.Timezone)
		return "", false
	}
	local := now.In(loc)
	if local.Hour() != cfg.FireHour || local.Minute() != cfg.FireMinute {
		return "", false
	}
	return local.Format(SlotLayout), true
}

func (m *ScheduleMatcher) fire(ctx context.Context, cfg domain.GuildScheduleConfig, slot string) bool {
	if m.marker != nil {
		first, err := m.marker.MarkFired(ctx, cfg.GuildID, slot)
		if err != nil {
			m.log.Error("mark schedule slot", "guild", cfg.GuildID, "slot", slot, "error", err)
			return false
		}
		if !first {
			m.log.Debug("schedule slot already fired", "guild", cfg.GuildID, "slot", slot)
			return false
		}
	}

	target := domain.Target{GuildID: cfg.GuildID, ChannelID: cfg.ChannelID}
	if _, err := m.starter.StartSession(ctx, target); err != nil {
		m.metrics.Dispatch(TriggerSchedule, "error")
		m.log.Error("send scheduled quiz", "guild", cfg.GuildID, "channel", cfg.ChannelID, "error", err)
		return false
	}
	m.metrics.Dispatch(TriggerSchedule, "ok")
	m.log.Info("daily quiz sent", "guild", cfg.GuildID, "channel", cfg.ChannelID, "slot", slot)
	return true
}
