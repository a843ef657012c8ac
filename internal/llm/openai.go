package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	jerrors "github.com/p-blackswan/joinery-agent/internal/errors"
)

const defaultOpenAIModel = "gpt-4o-mini"

// statusCodeRe pulls the HTTP status out of go-openai style error strings
// ("error, status code: 429, status: ...").
var statusCodeRe = regexp.MustCompile(`status code: (\d{3})`)

// generator is the slice of the eino ChatModel surface the provider needs.
type generator interface {
	Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// OpenAIConfig configures an OpenAI-compatible chat completion backend.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // empty for api.openai.com; set for OpenRouter or a local gateway
	Model       string
	MaxTokens   int
	Temperature float64
}

// OpenAIProvider implements Provider on top of the eino OpenAI chat model.
type OpenAIProvider struct {
	model  string
	gen    generator
	logger zerolog.Logger
}

// NewOpenAIProvider builds the eino chat model and wraps it.
func NewOpenAIProvider(ctx context.Context, cfg OpenAIConfig, logger zerolog.Logger) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	maxTokens := cfg.MaxTokens
	temperature := float32(cfg.Temperature)

	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat model: %w", err)
	}
	return newOpenAIProvider(cfg.Model, chat, logger), nil
}

func newOpenAIProvider(modelID string, gen generator, logger zerolog.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		model:  modelID,
		gen:    gen,
		logger: logger.With().Str("component", "llm.openai").Logger(),
	}
}

func (p *OpenAIProvider) ModelID() string { return p.model }

// Complete sends the system prompt followed by the conversation and returns
// the assistant text.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	msgs := make([]*schema.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		case RoleSystem:
			msgs = append(msgs, schema.SystemMessage(m.Content))
		default:
			msgs = append(msgs, schema.UserMessage(m.Content))
		}
	}

	var opts []model.Option
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(req.Temperature)))
	}

	out, err := p.gen.Generate(ctx, msgs, opts...)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	resp := &CompletionResponse{Text: out.Content}
	if meta := out.ResponseMeta; meta != nil {
		resp.StopReason = meta.FinishReason
		if meta.Usage != nil {
			resp.InputTokens = meta.Usage.PromptTokens
			resp.OutputTokens = meta.Usage.CompletionTokens
		}
	}

	p.logger.Debug().
		Str("model", p.model).
		Str("stop_reason", resp.StopReason).
		Int("in_tokens", resp.InputTokens).
		Int("out_tokens", resp.OutputTokens).
		Msg("openai complete")
	return resp, nil
}

func classifyOpenAIError(err error) error {
	if m := statusCodeRe.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return &jerrors.APIError{Service: "openai", StatusCode: code, Message: "chat completion failed", Err: err}
	}
	return fmt.Errorf("openai generate: %w", err)
}
