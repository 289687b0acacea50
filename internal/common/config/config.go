// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	APIs     APIsConfig     `mapstructure:"apis"`
	Search   SearchConfig   `mapstructure:"search"`
	Stages   StagesConfig   `mapstructure:"stages"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds; must cover the full stream
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
	HealthPort      int    `mapstructure:"health_port"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// APIsConfig holds settings for the external model services.
type APIsConfig struct {
	LLM struct {
		BaseURL     string  `mapstructure:"base_url"`
		APIKey      string  `mapstructure:"api_key"`
		Model       string  `mapstructure:"model"`
		Temperature float64 `mapstructure:"temperature"`
		Timeout     int     `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"llm"`

	Embedding struct {
		BaseURL    string `mapstructure:"base_url"`
		APIKey     string `mapstructure:"api_key"`
		SmallModel string `mapstructure:"small_model"`
		LargeModel string `mapstructure:"large_model"`
		Timeout    int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"embedding"`

	Rerank struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Model   string `mapstructure:"model"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"rerank"`
}

// SearchConfig holds the ranking and retrieval tuning knobs.
type SearchConfig struct {
	Alpha                 float64 `mapstructure:"alpha"`                   // vector channel weight in fusion
	MatchCountMultiplier  int     `mapstructure:"match_count_multiplier"`  // over-fetch factor for the store call
	DefaultCount          int     `mapstructure:"default_count"`
	MaxCount              int     `mapstructure:"max_count"`
	RecallTopK            int     `mapstructure:"recall_top_k"`      // first-pass size in two-stage mode
	RerankTopN            int     `mapstructure:"rerank_top_n"`      // rows sent to the cross-encoder
	RecallThreshold       float64 `mapstructure:"recall_threshold"`  // loose similarity floor, first pass
	RescoreThreshold      float64 `mapstructure:"rescore_threshold"` // strict similarity floor, second pass
	ChunkSize             int     `mapstructure:"chunk_size"`
	NormalizeLLMThreshold int     `mapstructure:"normalize_llm_threshold"` // rune count above which the LLM pass runs
	NormalizeCache        string  `mapstructure:"normalize_cache"`         // "memory" or "redis"
	NormalizeCacheTTL     int     `mapstructure:"normalize_cache_ttl"`     // seconds
}

// StagesConfig holds per-stage timeout budgets.
type StagesConfig struct {
	UnderstandTimeout int `mapstructure:"understand_timeout"` // milliseconds
	NormalizeTimeout  int `mapstructure:"normalize_timeout"`  // milliseconds
	EmbedTimeout      int `mapstructure:"embed_timeout"`      // milliseconds
	RetrieveTimeout   int `mapstructure:"retrieve_timeout"`   // milliseconds
	RerankTimeout     int `mapstructure:"rerank_timeout"`     // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
