package llm

import "strings"

const (
	openRouterReferer = "http://localhost:8000"
	openRouterTitle   = "Taxi Backend"
)

// NewOpenRouterChatModel builds an OpenRouter chat model from cfg with
// request pacing and the 429 retry schedule.
func NewOpenRouterChatModel(cfg Config) *OpenAIChatModel {
	return newOpenAIChatModel(cfg, openAIEndpoint{
		name:     "OpenRouter",
		provider: ProviderOpenRouter,
		baseURL:  strings.TrimRight(cfg.OpenRouterBaseURL, "/"),
		apiKey:   cfg.OpenRouterAPIKey,
		model:    cfg.OpenRouterModel,
		headers: map[string]string{
			"HTTP-Referer": openRouterReferer,
			"X-Title":      openRouterTitle,
		},
		rps:      cfg.RequestsPerSecond,
		attempts: cfg.RetryAttempts,
	})
}
