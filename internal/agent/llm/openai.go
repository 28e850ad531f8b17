package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	logx "github.com/taxi-assistant/server/pkg/logger"
	"github.com/taxi-assistant/server/pkg/metrics"
)

// ErrRateLimited is returned once every retry was answered with HTTP 429.
var ErrRateLimited = errors.New("llm rate limit exceeded")

// OpenAIChatModel adapts an OpenAI compatible chat completions endpoint to
// eino. Calls are paced by limiter and only HTTP 429 answers are retried.
type OpenAIChatModel struct {
	name        string
	provider    string
	client      openai.Client
	model       string
	temperature float32
	maxTokens   int
	attempts    int
	retryBase   time.Duration
	limiter     *rate.Limiter
}

type openAIEndpoint struct {
	name     string
	provider string
	baseURL  string
	apiKey   string
	model    string
	headers  map[string]string
	// rps <= 0 disables pacing.
	rps      float64
	attempts int
}

func newOpenAIChatModel(cfg Config, ep openAIEndpoint) *OpenAIChatModel {
	opts := []option.RequestOption{
		option.WithBaseURL(ep.baseURL),
		option.WithAPIKey(ep.apiKey),
		// retries are owned by Generate so the 429 schedule stays ours
		option.WithMaxRetries(0),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	for k, v := range ep.headers {
		opts = append(opts, option.WithHeader(k, v))
	}

	limit := rate.Inf
	if ep.rps > 0 {
		limit = rate.Limit(ep.rps)
	}
	attempts := ep.attempts
	if attempts < 1 {
		attempts = 1
	}
	return &OpenAIChatModel{
		name:        ep.name,
		provider:    ep.provider,
		client:      openai.NewClient(opts...),
		model:       ep.model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		attempts:    attempts,
		retryBase:   cfg.RetryBase,
		limiter:     rate.NewLimiter(limit, 1),
	}
}

func (m *OpenAIChatModel) GetType() string { return m.name }

func (m *OpenAIChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{
		Temperature: &m.temperature,
		MaxTokens:   &m.maxTokens,
		Model:       &m.model,
	}, opts...)

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(*options.Model),
		Messages:    toOpenAIMessages(input),
		Temperature: openai.Float(float64(*options.Temperature)),
		MaxTokens:   openai.Int(int64(*options.MaxTokens)),
	}

	attempt := 0
	content, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		if err := m.limiter.Wait(ctx); err != nil {
			return "", backoff.Permanent(err)
		}
		return m.complete(ctx, params, attempt)
	},
		backoff.WithBackOff(&rateLimitBackOff{base: m.retryBase}),
		backoff.WithMaxTries(uint(m.attempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			metrics.RecordLLMRetry(m.provider)
			logx.Warn().Str("provider", m.provider).Dur("wait", wait).Int("attempt", attempt).Int("max_attempts", m.attempts).Msg("llm rate limited")
		}),
	)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(content, nil), nil
}

func (m *OpenAIChatModel) complete(ctx context.Context, params openai.ChatCompletionNewParams, attempt int) (string, error) {
	start := time.Now()
	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			logx.Debug().Str("provider", m.provider).Int("attempt", attempt).Dur("elapsed", time.Since(start)).Msg("llm 429")
			return "", ErrRateLimited
		}
		return "", backoff.Permanent(fmt.Errorf("%s call: %w", m.provider, err))
	}
	if len(completion.Choices) == 0 {
		return "", nil
	}
	return completion.Choices[0].Message.Content, nil
}

func (m *OpenAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func toOpenAIMessages(input []*schema.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			out = append(out, openai.SystemMessage(msg.Content))
		case schema.Assistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// rateLimitBackOff waits (3^n + 2) * base before retry n (0-based):
// 3s, 5s, 11s, 29s with a one second base.
type rateLimitBackOff struct {
	base    time.Duration
	attempt int
}

func (b *rateLimitBackOff) NextBackOff() time.Duration {
	pow := 1
	for i := 0; i < b.attempt; i++ {
		pow *= 3
	}
	b.attempt++
	return time.Duration(pow+2) * b.base
}

func (b *rateLimitBackOff) Reset() { b.attempt = 0 }
