package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"guild-quiz-service/internal/app"
	"guild-quiz-service/internal/config"
	"guild-quiz-service/internal/lib/slogcustom"
	"guild-quiz-service/internal/metrics"
	transport "guild-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gateway, REST admin API and quiz scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slogcustom.New(os.Stdout, cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(logger)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store unavailable", "driver", cfg.Store.Driver, "err", err)
		return err
	}
	defer store.Close()

	redisClient, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	infra := buildSessionInfra(cfg, store, redisClient)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := transport.NewHub(logger)
	dispatcher := app.NewDispatcher(infra.registry, infra.quizzes, store, hub, app.DispatcherOptions{
		Timeout: cfg.QuizTimeout(),
		Logger:  logger,
		Metrics: m,
	})
	answers := app.NewResponseHandler(infra.registry, store, app.ResponseHandlerOptions{
		MaxResponses: cfg.Quiz.MaxResponses,
		Closer:       dispatcher,
		Logger:       logger,
		Metrics:      m,
	})
	admin := app.NewAdmin(store, dispatcher, app.AdminOptions{
		Defaults: app.ScheduleDefaults{
			Hour:     cfg.Schedule.DefaultHour,
			Minute:   cfg.Schedule.DefaultMinute,
			Timezone: cfg.Schedule.DefaultTimezone,
		},
		LeaderboardLimit: cfg.Leaderboard.Limit,
		Logger:           logger,
		Metrics:          m,
	})
	matcher := app.NewScheduleMatcher(store, dispatcher, app.ScheduleMatcherOptions{
		Marker:   infra.marker,
		Interval: config.TTLDuration(cfg.Schedule.Tick, time.Minute),
		Logger:   logger,
		Metrics:  m,
	})

	ws := transport.NewWSHandler(hub, answers, admin, transport.WSOptions{
		AdminToken: cfg.Server.AdminToken,
		Logger:     logger,
	})
	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(transport.RouterDeps{
			WS:         ws,
			Admin:      admin,
			Health:     store.Ping,
			Gatherer:   reg,
			AdminToken: cfg.Server.AdminToken,
			Logger:     logger,
		}),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz service", "port", finalPort, "store", cfg.Store.Driver, "shared_sessions", redisClient != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := matcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down quiz service", "pending_sessions", dispatcher.Pending())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		dispatcher.Shutdown(shutdownCtx)
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
