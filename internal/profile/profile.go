package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where intellichat stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// AI Configuration
	AIEnabled           bool   // INTELLICHAT_AI_ENABLED
	AIEmbeddingProvider string // INTELLICHAT_AI_EMBEDDING_PROVIDER (default: local)
	AIEmbeddingModel    string // INTELLICHAT_AI_EMBEDDING_MODEL (default: text-embedding-3-small)
	AIEmbeddingDims     int    // INTELLICHAT_AI_EMBEDDING_DIMENSIONS (default: 384)
	AILLMProvider       string // INTELLICHAT_AI_LLM_PROVIDER (default: gemini)
	AILLMModel          string // INTELLICHAT_AI_LLM_MODEL (default: gemini-2.0-flash)
	AIOpenAIAPIKey      string // INTELLICHAT_AI_OPENAI_API_KEY
	AIOpenAIBaseURL     string // INTELLICHAT_AI_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	AIGeminiAPIKey      string // INTELLICHAT_AI_GEMINI_API_KEY (legacy: GOOGLE_API_KEY)
	AIGeminiBaseURL     string // INTELLICHAT_AI_GEMINI_BASE_URL
	AIDeepSeekAPIKey    string // INTELLICHAT_AI_DEEPSEEK_API_KEY
	AIDeepSeekBaseURL   string // INTELLICHAT_AI_DEEPSEEK_BASE_URL (default: https://api.deepseek.com)
	AISiliconFlowAPIKey string // INTELLICHAT_AI_SILICONFLOW_API_KEY
	AISiliconFlowURL    string // INTELLICHAT_AI_SILICONFLOW_BASE_URL (default: https://api.siliconflow.cn/v1)
	AISystemPrompt      string // INTELLICHAT_AI_SYSTEM_PROMPT

	// Retrieval Configuration
	RAGTopK            int           // INTELLICHAT_RAG_TOP_K (default: 5)
	RAGMaxContextChars int           // INTELLICHAT_RAG_MAX_CONTEXT_CHARS (default: 6000)
	RAGIndexAssistant  bool          // INTELLICHAT_RAG_INDEX_ASSISTANT (default: true)
	RAGMaxHistory      int           // INTELLICHAT_RAG_MAX_HISTORY (default: 20)
	VectorIndex        string        // INTELLICHAT_VECTOR_INDEX (store or memory, default: store)
	GenerationTimeout  time.Duration // INTELLICHAT_GENERATION_TIMEOUT (default: 60s)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if AI is enabled and the LLM provider has a key to talk with.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && (p.AIOpenAIAPIKey != "" || p.AIGeminiAPIKey != "" || p.AIDeepSeekAPIKey != "")
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer environment variable, using default", slog.String("key", key), slog.String("value", value))
		return defaultValue
	}
	return n
}

func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration environment variable, using default", slog.String("key", key), slog.String("value", value))
		return defaultValue
	}
	return d
}

// FromEnv loads AI and retrieval configuration from environment variables.
func (p *Profile) FromEnv() {
	// Skips empty values to allow the legacy key to take effect.
	getEnvWithFallback := func(newKey, legacyKey string) string {
		if val := os.Getenv(newKey); val != "" {
			return val
		}
		return os.Getenv(legacyKey)
	}

	p.AIEnabled = os.Getenv("INTELLICHAT_AI_ENABLED") == "true"
	p.AIEmbeddingProvider = getEnvOrDefault("INTELLICHAT_AI_EMBEDDING_PROVIDER", "local")
	p.AIEmbeddingModel = getEnvOrDefault("INTELLICHAT_AI_EMBEDDING_MODEL", "text-embedding-3-small")
	p.AIEmbeddingDims = getIntEnvOrDefault("INTELLICHAT_AI_EMBEDDING_DIMENSIONS", 384)
	p.AILLMProvider = getEnvOrDefault("INTELLICHAT_AI_LLM_PROVIDER", "gemini")
	p.AILLMModel = getEnvOrDefault("INTELLICHAT_AI_LLM_MODEL", "gemini-2.0-flash")
	p.AIOpenAIAPIKey = os.Getenv("INTELLICHAT_AI_OPENAI_API_KEY")
	p.AIOpenAIBaseURL = getEnvOrDefault("INTELLICHAT_AI_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.AIGeminiAPIKey = getEnvWithFallback("INTELLICHAT_AI_GEMINI_API_KEY", "GOOGLE_API_KEY")
	p.AIGeminiBaseURL = getEnvOrDefault("INTELLICHAT_AI_GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/")
	p.AIDeepSeekAPIKey = os.Getenv("INTELLICHAT_AI_DEEPSEEK_API_KEY")
	p.AIDeepSeekBaseURL = getEnvOrDefault("INTELLICHAT_AI_DEEPSEEK_BASE_URL", "https://api.deepseek.com")
	p.AISiliconFlowAPIKey = os.Getenv("INTELLICHAT_AI_SILICONFLOW_API_KEY")
	p.AISiliconFlowURL = getEnvOrDefault("INTELLICHAT_AI_SILICONFLOW_BASE_URL", "https://api.siliconflow.cn/v1")
	p.AISystemPrompt = os.Getenv("INTELLICHAT_AI_SYSTEM_PROMPT")

	p.RAGTopK = getIntEnvOrDefault("INTELLICHAT_RAG_TOP_K", 5)
	p.RAGMaxContextChars = getIntEnvOrDefault("INTELLICHAT_RAG_MAX_CONTEXT_CHARS", 6000)
	p.RAGIndexAssistant = getEnvOrDefault("INTELLICHAT_RAG_INDEX_ASSISTANT", "true") == "true"
	p.RAGMaxHistory = getIntEnvOrDefault("INTELLICHAT_RAG_MAX_HISTORY", 20)
	p.VectorIndex = getEnvOrDefault("INTELLICHAT_VECTOR_INDEX", "store")
	p.GenerationTimeout = getDurationEnvOrDefault("INTELLICHAT_GENERATION_TIMEOUT", 60*time.Second)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "intellichat")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/intellichat"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("intellichat_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.VectorIndex != "store" && p.VectorIndex != "memory" {
		return errors.Errorf("unknown vector index %q: only 'store' and 'memory' are supported", p.VectorIndex)
	}

	return nil
}
