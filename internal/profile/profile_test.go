package profile

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAIProfileDefaults checks the values used when nothing is configured.
func TestAIProfileDefaults(t *testing.T) {
	clearAIEnvVars(t)

	profile := &Profile{}
	profile.FromEnv()

	tests := []struct {
		name     string
		expected string
		actual   string
	}{
		{"AIEnabled should be false by default", "false", boolToString(profile.AIEnabled)},
		{"AIEmbeddingProvider default", "local", profile.AIEmbeddingProvider},
		{"AILLMProvider default", "gemini", profile.AILLMProvider},
		{"AILLMModel default", "gemini-2.0-flash", profile.AILLMModel},
		{"AISiliconFlowURL default", "https://api.siliconflow.cn/v1", profile.AISiliconFlowURL},
		{"AIDeepSeekBaseURL default", "https://api.deepseek.com", profile.AIDeepSeekBaseURL},
		{"AIOpenAIBaseURL default", "https://api.openai.com/v1", profile.AIOpenAIBaseURL},
		{"AIEmbeddingModel default", "text-embedding-3-small", profile.AIEmbeddingModel},
		{"VectorIndex default", "store", profile.VectorIndex},
		{"RAGIndexAssistant default", "true", boolToString(profile.RAGIndexAssistant)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, tt.actual)
			}
		})
	}

	assert.Equal(t, 384, profile.AIEmbeddingDims)
	assert.Equal(t, 5, profile.RAGTopK)
	assert.Equal(t, 6000, profile.RAGMaxContextChars)
	assert.Equal(t, 20, profile.RAGMaxHistory)
	assert.Equal(t, 60*time.Second, profile.GenerationTimeout)
}

func TestAIProfileFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		field    func(*Profile) string
		expected string
	}{
		{
			name:     "INTELLICHAT_AI_ENABLED=true",
			envVar:   "INTELLICHAT_AI_ENABLED",
			envValue: "true",
			field:    func(p *Profile) string { return boolToString(p.AIEnabled) },
			expected: "true",
		},
		{
			name:     "INTELLICHAT_AI_EMBEDDING_PROVIDER",
			envVar:   "INTELLICHAT_AI_EMBEDDING_PROVIDER",
			envValue: "openai",
			field:    func(p *Profile) string { return p.AIEmbeddingProvider },
			expected: "openai",
		},
		{
			name:     "INTELLICHAT_AI_LLM_PROVIDER",
			envVar:   "INTELLICHAT_AI_LLM_PROVIDER",
			envValue: "deepseek",
			field:    func(p *Profile) string { return p.AILLMProvider },
			expected: "deepseek",
		},
		{
			name:     "legacy GOOGLE_API_KEY",
			envVar:   "GOOGLE_API_KEY",
			envValue: "legacy-key",
			field:    func(p *Profile) string { return p.AIGeminiAPIKey },
			expected: "legacy-key",
		},
		{
			name:     "INTELLICHAT_RAG_INDEX_ASSISTANT=false",
			envVar:   "INTELLICHAT_RAG_INDEX_ASSISTANT",
			envValue: "false",
			field:    func(p *Profile) string { return boolToString(p.RAGIndexAssistant) },
			expected: "false",
		},
		{
			name:     "INTELLICHAT_VECTOR_INDEX",
			envVar:   "INTELLICHAT_VECTOR_INDEX",
			envValue: "memory",
			field:    func(p *Profile) string { return p.VectorIndex },
			expected: "memory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearAIEnvVars(t)
			t.Setenv(tt.envVar, tt.envValue)

			profile := &Profile{}
			profile.FromEnv()

			assert.Equal(t, tt.expected, tt.field(profile))
		})
	}
}

func TestAIProfileNumericEnv(t *testing.T) {
	clearAIEnvVars(t)
	t.Setenv("INTELLICHAT_RAG_TOP_K", "8")
	t.Setenv("INTELLICHAT_RAG_MAX_CONTEXT_CHARS", "not-a-number")
	t.Setenv("INTELLICHAT_GENERATION_TIMEOUT", "15s")

	profile := &Profile{}
	profile.FromEnv()

	assert.Equal(t, 8, profile.RAGTopK)
	assert.Equal(t, 6000, profile.RAGMaxContextChars, "invalid values fall back to the default")
	assert.Equal(t, 15*time.Second, profile.GenerationTimeout)
}

func TestGeminiKeyPrefersNewVariable(t *testing.T) {
	clearAIEnvVars(t)
	t.Setenv("INTELLICHAT_AI_GEMINI_API_KEY", "new-key")
	t.Setenv("GOOGLE_API_KEY", "legacy-key")

	profile := &Profile{}
	profile.FromEnv()

	assert.Equal(t, "new-key", profile.AIGeminiAPIKey)
}

func TestIsAIEnabled(t *testing.T) {
	tests := []struct {
		name     string
		profile  Profile
		expected bool
	}{
		{"disabled", Profile{AIEnabled: false, AIGeminiAPIKey: "k"}, false},
		{"enabled without keys", Profile{AIEnabled: true}, false},
		{"enabled with gemini", Profile{AIEnabled: true, AIGeminiAPIKey: "k"}, true},
		{"enabled with deepseek", Profile{AIEnabled: true, AIDeepSeekAPIKey: "k"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.profile.IsAIEnabled())
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("derives sqlite dsn", func(t *testing.T) {
		dir := t.TempDir()
		p := &Profile{Mode: "dev", Data: dir, Driver: "sqlite", VectorIndex: "store"}
		require.NoError(t, p.Validate())
		assert.Contains(t, p.DSN, "intellichat_dev.db")
	})

	t.Run("unknown mode becomes demo", func(t *testing.T) {
		p := &Profile{Mode: "staging", Data: t.TempDir(), Driver: "sqlite", VectorIndex: "memory"}
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
	})

	t.Run("rejects unknown vector index", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "sqlite", VectorIndex: "faiss"}
		assert.Error(t, p.Validate())
	})

	t.Run("missing data dir", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: "/definitely/not/here", Driver: "sqlite", VectorIndex: "store"}
		assert.Error(t, p.Validate())
	})
}

func clearAIEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"INTELLICHAT_AI_ENABLED",
		"INTELLICHAT_AI_EMBEDDING_PROVIDER",
		"INTELLICHAT_AI_EMBEDDING_MODEL",
		"INTELLICHAT_AI_EMBEDDING_DIMENSIONS",
		"INTELLICHAT_AI_LLM_PROVIDER",
		"INTELLICHAT_AI_LLM_MODEL",
		"INTELLICHAT_AI_OPENAI_API_KEY",
		"INTELLICHAT_AI_OPENAI_BASE_URL",
		"INTELLICHAT_AI_GEMINI_API_KEY",
		"INTELLICHAT_AI_GEMINI_BASE_URL",
		"GOOGLE_API_KEY",
		"INTELLICHAT_AI_DEEPSEEK_API_KEY",
		"INTELLICHAT_AI_DEEPSEEK_BASE_URL",
		"INTELLICHAT_AI_SILICONFLOW_API_KEY",
		"INTELLICHAT_AI_SILICONFLOW_BASE_URL",
		"INTELLICHAT_AI_SYSTEM_PROMPT",
		"INTELLICHAT_RAG_TOP_K",
		"INTELLICHAT_RAG_MAX_CONTEXT_CHARS",
		"INTELLICHAT_RAG_INDEX_ASSISTANT",
		"INTELLICHAT_RAG_MAX_HISTORY",
		"INTELLICHAT_VECTOR_INDEX",
		"INTELLICHAT_GENERATION_TIMEOUT",
	}
	for _, v := range vars {
		// t.Setenv restores the previous value when the test ends.
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}

func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
