package llm

import "time"

const (
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Config selects and tunes the completion provider.
type Config struct {
	Provider    string        `envconfig:"LLM_PROVIDER" default:"ollama"`
	Timeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`
	Temperature float32       `envconfig:"LLM_TEMPERATURE" default:"0.3"`
	MaxTokens   int           `envconfig:"LLM_MAX_TOKENS" default:"200"`

	OllamaBaseURL string `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
	OllamaModel   string `envconfig:"OLLAMA_MODEL" default:"llama3.1:8b"`

	OpenRouterBaseURL string  `envconfig:"OPENROUTER_BASE_URL" default:"https://openrouter.ai/api/v1"`
	OpenRouterModel   string  `envconfig:"OPENROUTER_MODEL" default:"google/gemini-2.0-flash-exp:free"`
	OpenRouterAPIKey  string  `envconfig:"OPENROUTER_API_KEY"`
	RequestsPerSecond float64 `envconfig:"OPENROUTER_REQUESTS_PER_SECOND" default:"2"`

	// RetryAttempts bounds the tries on HTTP 429; RetryBase scales the 3^n+2 schedule.
	RetryAttempts int           `envconfig:"LLM_RETRY_ATTEMPTS" default:"5"`
	RetryBase     time.Duration `envconfig:"LLM_RETRY_BASE" default:"1s"`

	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL string `envconfig:"GEMINI_BASE_URL"`
	GeminiModel   string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
}

// ResolvedProvider applies the fallback rule: OpenRouter without a key runs on Ollama.
func (c Config) ResolvedProvider() string {
	switch c.Provider {
	case ProviderOpenRouter:
		if c.OpenRouterAPIKey == "" {
			return ProviderOllama
		}
		return ProviderOpenRouter
	case ProviderGemini:
		return ProviderGemini
	default:
		return ProviderOllama
	}
}
