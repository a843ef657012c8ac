package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/joinery-agent/internal/llm"
	"github.com/p-blackswan/joinery-agent/internal/metrics"
	"github.com/p-blackswan/joinery-agent/internal/retry"
	"github.com/p-blackswan/joinery-agent/internal/session"
	"github.com/p-blackswan/joinery-agent/internal/store"
)

// Fixed replies.
const (
	DefaultGreeting = "Hello! I am your joinery project assistant. I can help you create projects, add tasks, check status, and manage materials. How can I help you today?"
	DefaultGoodbye  = "Thank you for calling. Goodbye!"

	providerFailureReply = "Sorry, I encountered an error processing your request. Please try again."
	emptyModelReply      = "Sorry, I had trouble understanding that. Could you please repeat?"
	dispatchFailureReply = "Sorry, I had trouble completing that action. Please try again."
)

// Turn outcomes beyond the dispatcher's own.
const (
	OutcomeGreeting      Outcome = "greeting"
	OutcomeProviderError Outcome = "provider_error"
	OutcomeEmptyReply    Outcome = "empty_reply"
	OutcomeParseFailure  Outcome = "parse_failure"
	OutcomeSessionError  Outcome = "session_error"
)

// TurnRecorder persists finished turns.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, t *store.VoiceTurn) error
}

// Config tunes an Assistant. Zero values take defaults.
type Config struct {
	Greeting     string
	Goodbye      string
	SystemPrompt string
	HistoryLimit int
	Timeout      time.Duration
	Model        string
	MaxTokens    int
	Temperature  float64
	Retry        retry.Config
}

func (c *Config) applyDefaults() {
	if c.Greeting == "" {
		c.Greeting = DefaultGreeting
	}
	if c.Goodbye == "" {
		c.Goodbye = DefaultGoodbye
	}
	if c.HistoryLimit < 1 {
		c.HistoryLimit = session.DefaultHistoryLimit
	}
	if c.Timeout <= 0 {
		c.Timeout = 12 * time.Second
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.DefaultConfig()
	}
}

// Assistant runs one conversational turn at a time per call session.
type Assistant struct {
	cfg        Config
	sessions   session.Store
	provider   llm.Provider
	dispatcher *Dispatcher
	turns      TurnRecorder
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithTurnRecorder persists each finished turn.
func WithTurnRecorder(r TurnRecorder) Option {
	return func(a *Assistant) { a.turns = r }
}

// WithMetrics records turn and provider metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Assistant) { a.metrics = m }
}

// NewAssistant wires the orchestrator.
func NewAssistant(cfg Config, sessions session.Store, provider llm.Provider, dispatcher *Dispatcher, logger zerolog.Logger, opts ...Option) *Assistant {
	cfg.applyDefaults()
	a := &Assistant{
		cfg:        cfg,
		sessions:   sessions,
		provider:   provider,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "assistant").Logger(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Greeting is spoken when a call connects without speech.
func (a *Assistant) Greeting() string { return a.cfg.Greeting }

// Goodbye is spoken when the caller stops responding.
func (a *Assistant) Goodbye() string { return a.cfg.Goodbye }

// turn collects what happened for logging, metrics and the turn log.
type turn struct {
	key       string
	utterance string
	action    Action
	outcome   Outcome
	reply     string
	started   time.Time
}

// Process handles one utterance for sessionKey and returns the reply to
// speak. It never fails: every error becomes a spoken apology and the
// session carries on.
func (a *Assistant) Process(ctx context.Context, sessionKey, utterance string) string {
	t := &turn{
		key:       session.NormalizeKey(sessionKey),
		utterance: strings.TrimSpace(utterance),
		started:   time.Now(),
	}
	t.reply, t.outcome = a.process(ctx, t)
	a.finish(ctx, t)
	return t.reply
}

func (a *Assistant) process(ctx context.Context, t *turn) (string, Outcome) {
	log := a.logger.With().Str("session", t.key).Logger()

	if t.utterance == "" {
		if _, err := a.sessions.GetOrCreate(ctx, t.key); err != nil {
			log.Warn().Err(err).Msg("failed to open session")
		}
		return a.cfg.Greeting, OutcomeGreeting
	}
	log.Debug().Str("speech", t.utterance).Msg("processing utterance")

	sess, err := a.sessions.Update(ctx, t.key, func(s *session.Session) error {
		session.AppendTurn(s, session.RoleUser, t.utterance, a.cfg.HistoryLimit)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to append user turn")
		return providerFailureReply, OutcomeSessionError
	}

	text, err := a.complete(ctx, sess)
	if err != nil {
		log.Error().Err(err).Msg("language model call failed")
		return providerFailureReply, OutcomeProviderError
	}
	if text == "" {
		return emptyModelReply, OutcomeEmptyReply
	}
	log.Debug().Str("model_reply", text).Msg("model replied")

	intent, err := ParseIntent(text)
	if err != nil {
		reply := text
		if errors.Is(err, ErrMalformedJSON) {
			// Broken JSON is not read aloud.
			reply = emptyModelReply
		}
		log.Warn().Err(err).Msg("model reply is not an intent")
		a.appendAssistant(ctx, t.key, reply, log)
		return reply, OutcomeParseFailure
	}
	t.action = intent.Action

	var params map[string]string
	_, err = a.sessions.Update(ctx, t.key, func(s *session.Session) error {
		params = MergeContext(s.Context, intent.ContextUpdate, intent.Parameters)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to merge context")
		return dispatchFailureReply, OutcomeSessionError
	}
	log.Debug().Str("action", intent.Action.String()).Strs("params", contextKeys(params)).Msg("dispatching")

	res := a.dispatch(ctx, intent, params, log)
	a.appendAssistant(ctx, t.key, res.Reply, log)
	return res.Reply, res.Outcome
}

// dispatch shields the turn from a panicking handler.
func (a *Assistant) dispatch(ctx context.Context, intent Intent, params map[string]string, log zerolog.Logger) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("action", intent.Action.String()).Msg("dispatch panicked")
			res = Result{Reply: dispatchFailureReply, Outcome: OutcomeStoreError}
		}
	}()
	return a.dispatcher.Run(ctx, intent, params)
}

func (a *Assistant) appendAssistant(ctx context.Context, key, reply string, log zerolog.Logger) {
	_, err := a.sessions.Update(ctx, key, func(s *session.Session) error {
		session.AppendTurn(s, session.RoleAssistant, reply, a.cfg.HistoryLimit)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to append assistant turn")
	}
}

// complete calls the provider inside the turn's time budget, retrying
// transient failures while budget remains.
func (a *Assistant) complete(ctx context.Context, sess *session.Session) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt(a.cfg.SystemPrompt, sess.Context),
		Messages:     historyMessages(sess.History),
		MaxTokens:    a.cfg.MaxTokens,
		Temperature:  a.cfg.Temperature,
		Model:        a.cfg.Model,
	}

	var resp *llm.CompletionResponse
	start := time.Now()
	err := retry.Do(ctx, a.cfg.Retry, func(ctx context.Context) error {
		var err error
		resp, err = a.provider.Complete(ctx, req)
		return err
	})
	if a.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		a.metrics.ObserveProvider(a.provider.ModelID(), result, time.Since(start))
	}
	if err != nil {
		return "", fmt.Errorf("completion via %s: %w", a.provider.ModelID(), err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (a *Assistant) finish(ctx context.Context, t *turn) {
	action := t.action.String()
	if a.metrics != nil {
		a.metrics.RecordTurn(action, string(t.outcome), time.Since(t.started))
		if n, err := a.sessions.Len(ctx); err == nil {
			a.metrics.SetActiveSessions(n)
		}
		switch t.outcome {
		case OutcomeStoreError, OutcomeProviderError, OutcomeSessionError:
			a.metrics.RecordError("voice", string(t.outcome))
		}
	}
	if a.turns == nil {
		return
	}
	// The turn log outlives a hung-up caller's request context.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	err := a.turns.RecordTurn(rctx, &store.VoiceTurn{
		SessionKey: t.key,
		Utterance:  t.utterance,
		Action:     action,
		Outcome:    string(t.outcome),
		Reply:      t.reply,
	})
	if err != nil {
		a.logger.Warn().Err(err).Str("session", t.key).Msg("failed to record turn")
		if a.metrics != nil {
			a.metrics.RecordError("store", "turn_log")
		}
	}
}
