package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/joinery-agent/internal/api"
	"github.com/p-blackswan/joinery-agent/internal/config"
	"github.com/p-blackswan/joinery-agent/internal/health"
	"github.com/p-blackswan/joinery-agent/internal/llm"
	"github.com/p-blackswan/joinery-agent/internal/metrics"
	"github.com/p-blackswan/joinery-agent/internal/notify"
	"github.com/p-blackswan/joinery-agent/internal/retry"
	"github.com/p-blackswan/joinery-agent/internal/session"
	"github.com/p-blackswan/joinery-agent/internal/store"
	"github.com/p-blackswan/joinery-agent/internal/voice"
)

// app is everything a running process needs, built once from config.
type app struct {
	cfg       *config.Config
	store     *store.Store
	sessions  api.SessionStore
	assistant *voice.Assistant
	checker   *health.Checker
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	closers   []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
}

func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		checker: health.NewChecker(logger),
		metrics: metrics.New(),
		logger:  logger,
	}

	profile, err := config.LoadProfile(cfg.AssistantProfile)
	if err != nil {
		return nil, err
	}

	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)
	a.checker.Register("database", health.PingCheck(st.Ping, false))

	if cfg.RedisEnabled() {
		rs, err := session.NewRedisStore(ctx, cfg.RedisURL, cfg.RedisKeyPrefix, cfg.SessionTTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.sessions = rs
		a.closers = append(a.closers, rs.Close)
		a.checker.Register("sessions", health.PingCheck(rs.Ping, false))
		logger.Info().Str("prefix", cfg.RedisKeyPrefix).Msg("sessions kept in Redis")
	} else {
		a.sessions = session.NewMemoryStore()
	}

	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.checker.Register("provider", func(context.Context) health.Status {
		if providerKey(cfg) == "" {
			return health.StatusDegraded
		}
		return health.StatusOK
	})

	var dispatchOpts []voice.DispatcherOption
	if cfg.SlackEnabled() {
		sl := notify.NewSlack(cfg.SlackBotToken, cfg.SlackChannel, logger)
		dispatchOpts = append(dispatchOpts, voice.WithNotifier(sl))
		a.checker.Register("slack", health.PingCheck(sl.Ping, true))
		logger.Info().Str("channel", cfg.SlackChannel).Msg("slack project announcements enabled")
	}
	dispatcher := voice.NewDispatcher(st, logger, dispatchOpts...)
	a.closers = append(a.closers, func() error {
		dispatcher.Wait()
		return nil
	})

	historyLimit := cfg.SessionHistoryLimit
	if profile.HistoryLimit > 0 {
		historyLimit = profile.HistoryLimit
	}
	a.assistant = voice.NewAssistant(voice.Config{
		Greeting:     profile.Greeting,
		Goodbye:      profile.Goodbye,
		SystemPrompt: profile.SystemPrompt,
		HistoryLimit: historyLimit,
		Timeout:      cfg.LLMTimeout,
		Model:        cfg.LLMModel,
		MaxTokens:    cfg.LLMMaxTokens,
		Temperature:  cfg.LLMTemperature,
		Retry:        retry.DefaultConfig(),
	}, a.sessions, provider, dispatcher, logger,
		voice.WithTurnRecorder(st),
		voice.WithMetrics(a.metrics),
	)
	return a, nil
}

func providerKey(cfg *config.Config) string {
	if strings.EqualFold(cfg.LLMProvider, "anthropic") {
		return cfg.AnthropicAPIKey
	}
	return cfg.OpenAIAPIKey
}

func newProvider(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (llm.Provider, error) {
	switch strings.ToLower(cfg.LLMProvider) {
	case "anthropic":
		return llm.NewAnthropicProvider(cfg.AnthropicAPIKey,
			llm.WithModel(cfg.LLMModel),
			llm.WithMaxTokens(cfg.LLMMaxTokens),
			llm.WithLogger(logger),
		), nil
	case "openai":
		return llm.NewOpenAIProvider(ctx, llm.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
		}, logger)
	}
	return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
}
