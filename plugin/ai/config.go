package ai

import (
	"errors"
	"time"

	"github.com/hrygo/intellichat/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Enabled bool

	Embedding EmbeddingConfig
	LLM       LLMConfig
	RAG       RAGConfig
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string // local, siliconflow, openai
	Model      string // text-embedding-3-small
	Dimensions int    // 384
	APIKey     string
	BaseURL    string
}

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Provider     string // gemini, deepseek, openai
	Model        string // gemini-2.0-flash
	APIKey       string
	BaseURL      string
	MaxTokens    int     // default: 2048
	Temperature  float32 // default: 0.7
	SystemPrompt string
}

// RAGConfig controls history retrieval.
type RAGConfig struct {
	TopK                  int
	MaxContextChars       int
	MaxHistoryMessages    int
	IndexAssistantReplies bool
	GenerationTimeout     time.Duration
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled: p.AIEnabled,
		RAG: RAGConfig{
			TopK:                  p.RAGTopK,
			MaxContextChars:       p.RAGMaxContextChars,
			MaxHistoryMessages:    p.RAGMaxHistory,
			IndexAssistantReplies: p.RAGIndexAssistant,
			GenerationTimeout:     p.GenerationTimeout,
		},
	}

	// Embeddings are always configured: the local provider needs no key and
	// keeps retrieval working while generation is disabled.
	cfg.Embedding = EmbeddingConfig{
		Provider:   p.AIEmbeddingProvider,
		Model:      p.AIEmbeddingModel,
		Dimensions: p.AIEmbeddingDims,
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "local"
	}

	switch cfg.Embedding.Provider {
	case "siliconflow":
		cfg.Embedding.APIKey = p.AISiliconFlowAPIKey
		cfg.Embedding.BaseURL = p.AISiliconFlowURL
	case "openai":
		cfg.Embedding.APIKey = p.AIOpenAIAPIKey
		cfg.Embedding.BaseURL = p.AIOpenAIBaseURL
	case "local":
		cfg.Embedding.Model = LocalEmbeddingModel
	}

	if !cfg.Enabled {
		return cfg
	}

	// LLM configuration
	cfg.LLM = LLMConfig{
		Provider:     p.AILLMProvider,
		Model:        p.AILLMModel,
		MaxTokens:    2048,
		Temperature:  0.7,
		SystemPrompt: p.AISystemPrompt,
	}

	switch p.AILLMProvider {
	case "gemini":
		cfg.LLM.APIKey = p.AIGeminiAPIKey
		cfg.LLM.BaseURL = p.AIGeminiBaseURL
	case "deepseek":
		cfg.LLM.APIKey = p.AIDeepSeekAPIKey
		cfg.LLM.BaseURL = p.AIDeepSeekBaseURL
	case "openai":
		cfg.LLM.APIKey = p.AIOpenAIAPIKey
		cfg.LLM.BaseURL = p.AIOpenAIBaseURL
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Embedding.Provider == "" {
		return errors.New("embedding provider is required")
	}

	if c.Embedding.Provider != "local" && c.Embedding.APIKey == "" {
		return errors.New("embedding API key is required")
	}

	if c.Embedding.Dimensions <= 0 {
		return errors.New("embedding dimensions must be positive")
	}

	if !c.Enabled {
		return nil
	}

	if c.LLM.Provider == "" {
		return errors.New("LLM provider is required")
	}

	if c.LLM.APIKey == "" {
		return errors.New("LLM API key is required")
	}

	return nil
}
