package llm

import "strings"

// ollamaAPIKey fills the bearer header; Ollama ignores its value.
const ollamaAPIKey = "ollama"

// NewOllamaChatModel builds a chat model on the OpenAI compatible /v1 API of
// a local Ollama server. Calls are neither paced nor retried.
func NewOllamaChatModel(cfg Config) *OpenAIChatModel {
	return newOpenAIChatModel(cfg, openAIEndpoint{
		name:     "Ollama",
		provider: ProviderOllama,
		baseURL:  strings.TrimRight(cfg.OllamaBaseURL, "/") + "/v1",
		apiKey:   ollamaAPIKey,
		model:    cfg.OllamaModel,
		attempts: 1,
	})
}
