package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/intellichat/internal/profile"
)

// TestNewConfigFromProfile_Gemini tests the default hosted provider.
func TestNewConfigFromProfile_Gemini(t *testing.T) {
	prof := &profile.Profile{
		AIEnabled:           true,
		AIEmbeddingProvider: "siliconflow",
		AIEmbeddingModel:    "BAAI/bge-m3",
		AIEmbeddingDims:     1024,
		AISiliconFlowAPIKey: "sf-key",
		AISiliconFlowURL:    "https://api.siliconflow.cn/v1",
		AILLMProvider:       "gemini",
		AILLMModel:          "gemini-2.0-flash",
		AIGeminiAPIKey:      "gemini-key",
		AIGeminiBaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai/",
		AISystemPrompt:      "be kind",
		RAGTopK:             7,
		RAGMaxContextChars:  4000,
		RAGMaxHistory:       10,
		RAGIndexAssistant:   true,
		GenerationTimeout:   30 * time.Second,
	}

	cfg := NewConfigFromProfile(prof)

	if !cfg.Enabled {
		t.Errorf("Expected Enabled=true, got false")
	}
	if cfg.Embedding.Provider != "siliconflow" {
		t.Errorf("Expected Embedding.Provider=siliconflow, got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.APIKey != "sf-key" {
		t.Errorf("Expected Embedding.APIKey=sf-key, got %s", cfg.Embedding.APIKey)
	}
	if cfg.Embedding.Dimensions != 1024 {
		t.Errorf("Expected Embedding.Dimensions=1024, got %d", cfg.Embedding.Dimensions)
	}

	// LLM config
	if cfg.LLM.Provider != "gemini" {
		t.Errorf("Expected LLM.Provider=gemini, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey != "gemini-key" {
		t.Errorf("Expected LLM.APIKey=gemini-key, got %s", cfg.LLM.APIKey)
	}
	if cfg.LLM.MaxTokens != 2048 {
		t.Errorf("Expected LLM.MaxTokens=2048, got %d", cfg.LLM.MaxTokens)
	}
	assert.Equal(t, "be kind", cfg.LLM.SystemPrompt)

	assert.Equal(t, RAGConfig{
		TopK:                  7,
		MaxContextChars:       4000,
		MaxHistoryMessages:    10,
		IndexAssistantReplies: true,
		GenerationTimeout:     30 * time.Second,
	}, cfg.RAG)

	assert.NoError(t, cfg.Validate())
}

func TestNewConfigFromProfile_DeepSeekWithOpenAIEmbeddings(t *testing.T) {
	prof := &profile.Profile{
		AIEnabled:           true,
		AIEmbeddingProvider: "openai",
		AIEmbeddingModel:    "text-embedding-3-small",
		AIEmbeddingDims:     1536,
		AIOpenAIAPIKey:      "openai-key",
		AIOpenAIBaseURL:     "https://api.openai.com/v1",
		AILLMProvider:       "deepseek",
		AILLMModel:          "deepseek-chat",
		AIDeepSeekAPIKey:    "deepseek-key",
		AIDeepSeekBaseURL:   "https://api.deepseek.com",
	}

	cfg := NewConfigFromProfile(prof)

	assert.Equal(t, "openai-key", cfg.Embedding.APIKey)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedding.BaseURL)
	assert.Equal(t, "deepseek-key", cfg.LLM.APIKey)
	assert.Equal(t, "https://api.deepseek.com", cfg.LLM.BaseURL)
	assert.NoError(t, cfg.Validate())
}

// TestNewConfigFromProfile_Disabled keeps embeddings usable without an LLM.
func TestNewConfigFromProfile_Disabled(t *testing.T) {
	prof := &profile.Profile{
		AIEnabled:       false,
		AIEmbeddingDims: 384,
	}

	cfg := NewConfigFromProfile(prof)

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, LocalEmbeddingModel, cfg.Embedding.Model)
	assert.Empty(t, cfg.LLM.Provider)
	assert.NoError(t, cfg.Validate())
}

// TestConfigValidate tests configuration validation.
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *Config
		expectError bool
	}{
		{
			name: "local embeddings, AI disabled",
			cfg: &Config{
				Embedding: EmbeddingConfig{Provider: "local", Dimensions: 384},
			},
		},
		{
			name: "missing embedding provider",
			cfg: &Config{
				Embedding: EmbeddingConfig{Dimensions: 384},
			},
			expectError: true,
		},
		{
			name: "hosted embeddings without key",
			cfg: &Config{
				Embedding: EmbeddingConfig{Provider: "openai", Dimensions: 1536},
			},
			expectError: true,
		},
		{
			name: "zero dimensions",
			cfg: &Config{
				Embedding: EmbeddingConfig{Provider: "local"},
			},
			expectError: true,
		},
		{
			name: "enabled without LLM provider",
			cfg: &Config{
				Enabled:   true,
				Embedding: EmbeddingConfig{Provider: "local", Dimensions: 384},
			},
			expectError: true,
		},
		{
			name: "enabled without LLM key",
			cfg: &Config{
				Enabled:   true,
				Embedding: EmbeddingConfig{Provider: "local", Dimensions: 384},
				LLM:       LLMConfig{Provider: "gemini"},
			},
			expectError: true,
		},
		{
			name: "valid enabled config",
			cfg: &Config{
				Enabled:   true,
				Embedding: EmbeddingConfig{Provider: "local", Dimensions: 384},
				LLM:       LLMConfig{Provider: "gemini", APIKey: "k"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.expectError {
				t.Errorf("Validate() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}
