package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all engine configuration. Retrieval weights and the decay
// constant are deliberately configuration, not constants: the ranking formula
// is tuned per deployment.
type Config struct {
	// App
	Port string
	Env  string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// LLM / capability endpoints (OpenAI-compatible)
	LLMBaseURL     string
	LLMAPIKey      string
	GeneratorModel string
	ExtractorModel string
	EmbeddingModel string

	// Encoder
	EmbeddingDim   int
	EncoderVersion string

	// Retrieval scoring
	SemanticWeight   float64
	EntityWeight     float64
	RecencyWeight    float64
	ImportanceWeight float64
	RecencyLambda    float64 // decay rate per hour since last access
	MinScore         float64
	VectorTopK       int
	MaxContextNodes  int
	StalePenalty     float64 // multiplier applied to stale node scores

	// Feedback
	FeedbackEta float64 // reinforcement rate for cited nodes
	UnusedDecay float64 // decay rate for retrieved-but-unused nodes
	StaleFloor  float64 // importance below which a decayed node goes stale

	// Pruning
	NodeCap        int
	PruneFloor     float64 // combined recency+importance floor for active nodes
	PruneInterval  time.Duration
	PurgeRetention time.Duration

	// Store
	UpdateRetries int // bounded retries on version conflicts

	// Capability timeouts
	EncoderTimeout   time.Duration
	ExtractorTimeout time.Duration
	GeneratorTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		Neo4jURI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:     getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase: getEnv("NEO4J_DATABASE", "neo4j"),

		LLMBaseURL:     getEnv("LLM_BASE_URL", "http://localhost:4000"),
		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		GeneratorModel: getEnv("GENERATOR_MODEL", "openrouter/anthropic/claude-3.5-sonnet"),
		ExtractorModel: getEnv("EXTRACTOR_MODEL", ""),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),

		EmbeddingDim:   getEnvInt("EMBEDDING_DIM", 1536),
		EncoderVersion: getEnv("ENCODER_VERSION", "v1"),

		SemanticWeight:   getEnvFloat("RETRIEVAL_SEMANTIC_WEIGHT", 0.45),
		EntityWeight:     getEnvFloat("RETRIEVAL_ENTITY_WEIGHT", 0.25),
		RecencyWeight:    getEnvFloat("RETRIEVAL_RECENCY_WEIGHT", 0.15),
		ImportanceWeight: getEnvFloat("RETRIEVAL_IMPORTANCE_WEIGHT", 0.15),
		RecencyLambda:    getEnvFloat("RETRIEVAL_RECENCY_LAMBDA", 0.01),
		MinScore:         getEnvFloat("RETRIEVAL_MIN_SCORE", 0.1),
		VectorTopK:       getEnvInt("RETRIEVAL_VECTOR_TOP_K", 20),
		MaxContextNodes:  getEnvInt("RETRIEVAL_MAX_CONTEXT_NODES", 8),
		StalePenalty:     getEnvFloat("RETRIEVAL_STALE_PENALTY", 0.5),

		FeedbackEta: getEnvFloat("FEEDBACK_ETA", 0.2),
		UnusedDecay: getEnvFloat("FEEDBACK_UNUSED_DECAY", 0.05),
		StaleFloor:  getEnvFloat("FEEDBACK_STALE_FLOOR", 0.05),

		NodeCap:        getEnvInt("PRUNE_NODE_CAP", 100000),
		PruneFloor:     getEnvFloat("PRUNE_FLOOR", 0.1),
		PruneInterval:  getEnvDuration("PRUNE_INTERVAL", 10*time.Minute),
		PurgeRetention: getEnvDuration("PURGE_RETENTION", 30*24*time.Hour),

		UpdateRetries: getEnvInt("STORE_UPDATE_RETRIES", 3),

		EncoderTimeout:   getEnvDuration("ENCODER_TIMEOUT", 10*time.Second),
		ExtractorTimeout: getEnvDuration("EXTRACTOR_TIMEOUT", 15*time.Second),
		GeneratorTimeout: getEnvDuration("GENERATOR_TIMEOUT", 120*time.Second),
	}

	if cfg.ExtractorModel == "" {
		cfg.ExtractorModel = cfg.GeneratorModel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and coherent
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return fmt.Errorf("NEO4J_URI is required")
	}
	if c.Neo4jUser == "" {
		return fmt.Errorf("NEO4J_USER is required")
	}
	if c.Neo4jPassword == "" {
		return fmt.Errorf("NEO4J_PASSWORD is required")
	}
	if c.LLMBaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL is required")
	}
	if c.GeneratorModel == "" {
		return fmt.Errorf("GENERATOR_MODEL is required")
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("EMBEDDING_MODEL is required")
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive")
	}
	if c.SemanticWeight < 0 || c.EntityWeight < 0 || c.RecencyWeight < 0 || c.ImportanceWeight < 0 {
		return fmt.Errorf("retrieval weights must be non-negative")
	}
	if c.SemanticWeight+c.EntityWeight+c.RecencyWeight+c.ImportanceWeight == 0 {
		return fmt.Errorf("at least one retrieval weight must be positive")
	}
	if c.FeedbackEta <= 0 || c.FeedbackEta > 1 {
		return fmt.Errorf("FEEDBACK_ETA must be in (0, 1]")
	}
	if c.UnusedDecay < 0 || c.UnusedDecay > 1 {
		return fmt.Errorf("FEEDBACK_UNUSED_DECAY must be in [0, 1]")
	}
	if c.NodeCap <= 0 {
		return fmt.Errorf("PRUNE_NODE_CAP must be positive")
	}
	if c.UpdateRetries < 1 {
		return fmt.Errorf("STORE_UPDATE_RETRIES must be at least 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
