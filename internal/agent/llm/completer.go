package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/taxi-assistant/server/internal/agent/observers"
	errx "github.com/taxi-assistant/server/internal/core/error"
	logx "github.com/taxi-assistant/server/pkg/logger"
	"github.com/taxi-assistant/server/pkg/metrics"
)

const (
	NodePromptConverter = "prompt_converter"
	NodeChatModel       = "chat_model"

	slowCallThreshold = 2 * time.Second
)

// Completer turns a rendered prompt into a completion through a compiled
// graph: prompt converter lambda, then the provider chat model.
type Completer struct {
	provider string
	timeout  time.Duration
	runnable compose.Runnable[string, *schema.Message]
}

// New builds the chat model selected by cfg and wraps it in a Completer.
func New(ctx context.Context, cfg Config) (*Completer, error) {
	provider := cfg.ResolvedProvider()
	if provider != cfg.Provider {
		logx.Warn().Str("requested", cfg.Provider).Str("provider", provider).Msg("llm provider fallback")
	}

	var chatModel model.BaseChatModel
	switch provider {
	case ProviderOpenRouter:
		chatModel = NewOpenRouterChatModel(cfg)
	case ProviderGemini:
		cm, err := NewGeminiChatModel(ctx, cfg)
		if err != nil {
			return nil, err
		}
		chatModel = cm
	default:
		chatModel = NewOllamaChatModel(cfg)
	}
	return NewCompleter(ctx, provider, chatModel, cfg.Timeout)
}

// NewCompleter compiles the completion graph around an existing chat model.
func NewCompleter(ctx context.Context, provider string, chatModel model.BaseChatModel, timeout time.Duration) (*Completer, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is nil")
	}

	g := compose.NewGraph[string, *schema.Message]()
	if err := g.AddLambdaNode(NodePromptConverter, compose.InvokableLambda(toMessages)); err != nil {
		return nil, fmt.Errorf("error adding prompt converter: %w", err)
	}
	if err := g.AddChatModelNode(NodeChatModel, chatModel); err != nil {
		return nil, fmt.Errorf("error adding chat model: %w", err)
	}
	edges := [][2]string{
		{compose.START, NodePromptConverter},
		{NodePromptConverter, NodeChatModel},
		{NodeChatModel, compose.END},
	}
	for _, edge := range edges {
		if err := g.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}

	runnable, err := g.Compile(ctx, compose.WithGraphName("completion"))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling completion graph")
		return nil, fmt.Errorf("error compiling completion graph: %w", err)
	}

	logx.Debug().Str("provider", provider).Msg("Completion graph compiled successfully")
	return &Completer{provider: provider, timeout: timeout, runnable: runnable}, nil
}

// Provider names the backing provider.
func (c *Completer) Provider() string {
	return c.provider
}

// Complete returns the raw completion text. Failures are wrapped as LLM errors.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := c.runnable.Invoke(ctx, prompt, compose.WithCallbacks(observers.NewAllCallbacks()))
	elapsed := time.Since(start)
	metrics.RecordLLMCall(c.provider, elapsed, err)

	if elapsed > slowCallThreshold {
		logx.Warn().Str("provider", c.provider).Dur("elapsed", elapsed).Msg("slow llm call")
	} else {
		logx.Debug().Str("provider", c.provider).Dur("elapsed", elapsed).Msg("llm call")
	}

	if err != nil {
		return "", errx.WrapLLM(err)
	}
	if out == nil {
		return "", nil
	}
	return strings.TrimSpace(out.Content), nil
}

func toMessages(ctx context.Context, prompt string) ([]*schema.Message, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("prompt is empty")
	}
	return []*schema.Message{schema.UserMessage(prompt)}, nil
}
