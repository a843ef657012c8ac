package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jerrors "github.com/p-blackswan/joinery-agent/internal/errors"
)

func TestAnthropicProvider_Complete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"action\":\"unknown\"}"}],"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":5}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", WithBaseURL(srv.URL), WithModel("claude-test"))
	resp, err := p.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "be brief",
		Messages:     []Message{UserMessage("hello"), AssistantMessage("hi"), UserMessage("status")},
		Temperature:  0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"action":"unknown"}`, resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 12, resp.InputTokens)
	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, "be brief", got.System)
	assert.Len(t, got.Messages, 3)
	assert.Equal(t, "claude-test", p.ModelID())
}

func TestAnthropicProvider_DropsLeadingAssistantTurns(t *testing.T) {
	p := NewAnthropicProvider("k")
	ar := p.buildRequest(CompletionRequest{Messages: []Message{
		AssistantMessage("Which project?"),
		AssistantMessage("Still there?"),
		UserMessage("the Smith kitchen"),
		AssistantMessage("Got it."),
		UserMessage("status"),
	}})
	require.Len(t, ar.Messages, 3)
	assert.Equal(t, RoleUser, ar.Messages[0].Role)
	assert.Equal(t, "the Smith kitchen", ar.Messages[0].Content)
	assert.Equal(t, RoleAssistant, ar.Messages[1].Role)

	ar = p.buildRequest(CompletionRequest{Messages: []Message{AssistantMessage("only me")}})
	assert.Empty(t, ar.Messages)
}

func TestAnthropicProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", WithBaseURL(srv.URL))
	_, err := p.Complete(context.Background(), CompletionRequest{Messages: []Message{UserMessage("x")}})
	require.Error(t, err)

	var apiErr *jerrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.True(t, jerrors.IsRetryable(err))
}

type fakeGenerator struct {
	in   []*schema.Message
	out  *schema.Message
	err  error
	opts int
}

func (f *fakeGenerator) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.in = in
	f.opts = len(opts)
	return f.out, f.err
}

func TestOpenAIProvider_Complete(t *testing.T) {
	gen := &fakeGenerator{out: &schema.Message{
		Role:    schema.Assistant,
		Content: "reply",
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: "stop",
			Usage:        &schema.TokenUsage{PromptTokens: 30, CompletionTokens: 4},
		},
	}}
	p := newOpenAIProvider("gpt-test", gen, zerolog.Nop())

	resp, err := p.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "system",
		Messages:     []Message{UserMessage("one"), AssistantMessage("two")},
		Temperature:  0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "reply", resp.Text)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, 30, resp.InputTokens)

	require.Len(t, gen.in, 3)
	assert.Equal(t, schema.System, gen.in[0].Role)
	assert.Equal(t, schema.User, gen.in[1].Role)
	assert.Equal(t, schema.Assistant, gen.in[2].Role)
	assert.Equal(t, 1, gen.opts)
}

func TestOpenAIProvider_ClassifiesStatusErrors(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("error, status code: 503, status: 503 Service Unavailable, message: overloaded")}
	p := newOpenAIProvider("gpt-test", gen, zerolog.Nop())

	_, err := p.Complete(context.Background(), CompletionRequest{Messages: []Message{UserMessage("x")}})
	require.Error(t, err)
	assert.True(t, jerrors.IsRetryable(err))

	gen.err = errors.New("dial tcp: connection refused")
	_, err = p.Complete(context.Background(), CompletionRequest{Messages: []Message{UserMessage("x")}})
	require.Error(t, err)
	assert.False(t, jerrors.IsRetryable(err))
}
