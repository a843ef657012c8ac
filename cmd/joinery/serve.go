package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/p-blackswan/joinery-agent/internal/api"
	"github.com/p-blackswan/joinery-agent/internal/session"
)

const (
	shutdownGrace  = 10 * time.Second
	turnLogMaxAge  = 90 * 24 * time.Hour
	turnLogPruneAt = 6 * time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the voice webhook and dashboard API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		logger.Info().
			Str("environment", cfg.Environment).
			Str("addr", cfg.ListenAddr).
			Str("llm_provider", cfg.LLMProvider).
			Str("session_backend", cfg.SessionBackend).
			Bool("slack_enabled", cfg.SlackEnabled()).
			Bool("twilio_validation", cfg.TwilioValidationEnabled()).
			Msg("starting joinery agent")

		handlers := api.NewHandlers(a.assistant, a.store, a.sessions, a.checker, logger)
		srv := api.NewServer(api.ServerConfig{
			ListenAddr: cfg.ListenAddr,
			AuthConfig: api.AuthConfig{
				Mode:      cfg.APIAuthMode,
				APIKey:    cfg.APIKey,
				JWTSecret: cfg.JWTSecret,
			},
			RateLimit: api.RateLimitConfig{
				RPS:   cfg.APIRateLimitRPS,
				Burst: cfg.APIRateLimitBurst,
			},
			CORSOrigins:     cfg.CORSOrigins,
			TwilioAuthToken: cfg.TwilioAuthToken,
			PublicBaseURL:   cfg.PublicBaseURL,
		}, handlers, a.checker, a.metrics, logger)

		sweeper := session.NewSweeper(a.sessions, cfg.SessionSweepInterval, cfg.SessionTTL, logger,
			session.WithEvictHook(func(n int) {
				a.metrics.AddEvictions(n)
				if active, err := a.sessions.Len(ctx); err == nil {
					a.metrics.SetActiveSessions(active)
				}
			}),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(gctx, shutdownGrace) })
		g.Go(func() error { return sweeper.Run(gctx) })
		g.Go(func() error { return pruneTurns(gctx, a) })

		err = g.Wait()
		logger.Info().Msg("joinery agent stopped")
		return err
	},
}

// pruneTurns trims the persisted turn log periodically.
func pruneTurns(ctx context.Context, a *app) error {
	ticker := time.NewTicker(turnLogPruneAt)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cutoff := time.Now().Add(-turnLogMaxAge).UnixMilli()
			n, err := a.store.PruneTurns(ctx, cutoff)
			if err != nil {
				a.logger.Warn().Err(err).Msg("turn log prune failed")
				continue
			}
			if n > 0 {
				a.logger.Info().Int64("removed", n).Msg("pruned turn log")
			}
		}
	}
}
