// Package config loads the gateway's single validated configuration value
// at boot. Every component receives only the slice of Config it needs;
// nothing below main() reads an environment variable directly (see
// SPEC_FULL.md §9 "Configuration sprawl").
//
// Usage:
//
//	cfg, err := config.NewLoader().WithConfigPath("config.yaml").Load()
//
// Priority: defaults -> YAML file -> environment overrides -> Validate().
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Config is the gateway's complete, validated configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Providers ProvidersConfig `yaml:"providers"`
	Datastore DatastoreConfig `yaml:"datastore"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig controls the HTTP listener and request-level budgets.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBytes int64         `yaml:"max_request_bytes"`
	WorkerPoolSize  int           `yaml:"worker_pool_size"`

	RateLimitRPM     int           `yaml:"rate_limit_rpm"`
	RateLimitBurst   int           `yaml:"rate_limit_burst"`
	RateLimitBlockFor time.Duration `yaml:"rate_limit_block_for"`

	SSEHeartbeatInterval time.Duration `yaml:"sse_heartbeat_interval"`
	SSEDurationCap       time.Duration `yaml:"sse_duration_cap"`

	// TrustedHosts gates the Gateway's outermost middleware stage (§4.10
	// "trusted-host check"). Empty means no restriction, matching local
	// development; production deployments set this explicitly.
	TrustedHosts []string `yaml:"trusted_hosts"`
	// CORSAllowedOrigins configures the Gateway's CORS middleware, reusing
	// cmd/agentflow/middleware.go's CORS secure-by-default behavior: empty
	// means no cross-origin requests are permitted.
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// CatalogConfig points at the boot-time provider/model catalog file.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// RetrievalConfig carries every deadline and toggle the Lane Orchestrator,
// lanes, and Guided-Prompt Engine need (spec §6 env keys).
type RetrievalConfig struct {
	TotalTimeout    time.Duration `yaml:"retrieval_timeout_ms"`
	FusionTimeout   time.Duration `yaml:"fusion_timeout_ms"`
	WebTimeout      time.Duration `yaml:"web_timeout_ms"`
	VectorTimeout   time.Duration `yaml:"vector_timeout_ms"`
	KGTimeout       time.Duration `yaml:"kg_timeout_ms"`
	LLMTimeout      time.Duration `yaml:"llm_timeout_seconds"`
	TopK            int           `yaml:"retrieval_top_k"`
	EnableVector    bool          `yaml:"enable_vector_search"`
	EnableKG        bool          `yaml:"enable_knowledge_graph"`
	EnableWeb       bool          `yaml:"enable_web_search"`
}

// ProvidersConfig carries LLM/datastore credentials and endpoints.
type ProvidersConfig struct {
	EnablePaidAPI     bool   `yaml:"enable_paid_api"`
	OllamaBaseURL     string `yaml:"ollama_base_url"`
	HuggingFaceAPIKey string `yaml:"huggingface_api_key"`
	OpenAIAPIKey      string `yaml:"openai_api_key"`
	OpenAIBaseURL     string `yaml:"openai_base_url"`
	AnthropicAPIKey   string `yaml:"anthropic_api_key"`
	GPURemoteURL      string `yaml:"gpu_remote_url"`

	// GeminiAPIKey is a supplemental provider credential beyond spec.md
	// §6's enumerated list, added to give google.golang.org/genai (a
	// teacher go.mod dependency otherwise unused by this gateway) a
	// concrete home.
	GeminiAPIKey string `yaml:"gemini_api_key"`
}

// DatastoreConfig carries retrieval-lane backend endpoints.
type DatastoreConfig struct {
	VectorDBURL         string `yaml:"vector_db_url"`
	VectorDBAPIKey      string `yaml:"vector_db_api_key"`
	ArangoDBURL         string `yaml:"arangodb_url"`
	ArangoDBUsername    string `yaml:"arangodb_username"`
	ArangoDBPassword    string `yaml:"arangodb_password"`
	ArangoDBDatabase    string `yaml:"arangodb_database"`
	MeilisearchURL      string `yaml:"meilisearch_url"`
	MeilisearchMasterKey string `yaml:"meilisearch_master_key"`

	// HistoryDSN, when non-empty, enables the opt-in query-history store
	// (see DESIGN.md Open Question: no raw storage by default).
	HistoryDSN string `yaml:"history_dsn"`

	// RedisCacheAddr, when non-empty, backs the web lane's result cache
	// with Redis instead of the in-process TTL map, so repeated queries
	// are served from cache across gateway restarts and replicas.
	RedisCacheAddr string `yaml:"redis_cache_addr"`
}

// AuthConfig gates JWT middleware; only required if auth is enabled.
type AuthConfig struct {
	Enabled      bool   `yaml:"enabled"`
	JWTSecretKey string `yaml:"jwt_secret_key"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig configures OpenTelemetry tracing export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// DefaultConfig returns the budgets named in spec.md §5/§6.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                 ":8080",
			ReadTimeout:          30 * time.Second,
			WriteTimeout:         70 * time.Second,
			ShutdownTimeout:      30 * time.Second,
			MaxRequestBytes:      10 << 20,
			WorkerPoolSize:       0, // 0 => 2x NumCPU, resolved by internal/pool
			RateLimitRPM:         60,
			RateLimitBurst:       10,
			RateLimitBlockFor:    5 * time.Minute,
			SSEHeartbeatInterval: 5 * time.Second,
			SSEDurationCap:       60 * time.Second,
		},
		Catalog: CatalogConfig{Path: "./catalog.yaml"},
		Retrieval: RetrievalConfig{
			TotalTimeout:  3000 * time.Millisecond,
			FusionTimeout: 200 * time.Millisecond,
			WebTimeout:    1500 * time.Millisecond,
			VectorTimeout: 2000 * time.Millisecond,
			KGTimeout:     1500 * time.Millisecond,
			LLMTimeout:    15 * time.Second,
			TopK:          10,
			EnableVector:  true,
			EnableKG:      true,
			EnableWeb:     true,
		},
		Log:       LogConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{ServiceName: "retrieval-gateway", SampleRate: 0.1},
	}
}

// Loader loads Config from defaults, an optional YAML file, then the
// literal environment variable names enumerated in spec.md §6.
type Loader struct {
	configPath string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithValidator registers an additional validator run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the final Config.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := loadFromFile(cfg, l.configPath); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// loadFromEnv overrides cfg with the literal env var names spec.md §6
// enumerates. Unlike a reflection-prefix scheme, these names are fixed by
// the external contract and must not be renamed.
func loadFromEnv(cfg *Config) {
	envDuration(&cfg.Retrieval.LLMTimeout, "LLM_TIMEOUT_SECONDS", time.Second)
	envDuration(&cfg.Retrieval.VectorTimeout, "VECTOR_TIMEOUT_MS", time.Millisecond)
	envDuration(&cfg.Retrieval.KGTimeout, "KG_TIMEOUT_MS", time.Millisecond)
	envDuration(&cfg.Retrieval.WebTimeout, "WEB_TIMEOUT_MS", time.Millisecond)
	envDuration(&cfg.Retrieval.FusionTimeout, "FUSION_TIMEOUT_MS", time.Millisecond)
	envDuration(&cfg.Retrieval.TotalTimeout, "RETRIEVAL_TIMEOUT_MS", time.Millisecond)
	envInt(&cfg.Retrieval.TopK, "RETRIEVAL_TOP_K")
	envBool(&cfg.Retrieval.EnableVector, "ENABLE_VECTOR_SEARCH")
	envBool(&cfg.Retrieval.EnableKG, "ENABLE_KNOWLEDGE_GRAPH")
	envBool(&cfg.Retrieval.EnableWeb, "ENABLE_WEB_SEARCH")
	envBool(&cfg.Providers.EnablePaidAPI, "ENABLE_PAID_API")
	envString(&cfg.Providers.OllamaBaseURL, "OLLAMA_BASE_URL")
	envString(&cfg.Providers.HuggingFaceAPIKey, "HUGGINGFACE_API_KEY")
	envString(&cfg.Providers.OpenAIAPIKey, "OPENAI_API_KEY")
	envString(&cfg.Providers.OpenAIBaseURL, "OPENAI_BASE_URL")
	envString(&cfg.Providers.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envString(&cfg.Providers.GeminiAPIKey, "GEMINI_API_KEY")
	envString(&cfg.Providers.GPURemoteURL, "GPU_REMOTE_URL")
	envString(&cfg.Datastore.VectorDBURL, "VECTOR_DB_URL")
	envString(&cfg.Datastore.VectorDBAPIKey, "VECTOR_DB_API_KEY")
	envString(&cfg.Datastore.ArangoDBURL, "ARANGODB_URL")
	envString(&cfg.Datastore.ArangoDBUsername, "ARANGODB_USERNAME")
	envString(&cfg.Datastore.ArangoDBPassword, "ARANGODB_PASSWORD")
	envString(&cfg.Datastore.ArangoDBDatabase, "ARANGODB_DATABASE")
	envString(&cfg.Datastore.MeilisearchURL, "MEILISEARCH_URL")
	envString(&cfg.Datastore.MeilisearchMasterKey, "MEILISEARCH_MASTER_KEY")
	envString(&cfg.Datastore.RedisCacheAddr, "REDIS_CACHE_ADDR")
	envString(&cfg.Auth.JWTSecretKey, "JWT_SECRET_KEY")
	if cfg.Auth.JWTSecretKey != "" {
		cfg.Auth.Enabled = true
	}
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(dst *time.Duration, key string, unit time.Duration) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(i) * unit
		}
	}
}

// MustLoad loads configuration, panicking on failure. Intended for use
// only from cmd/gatewayd's main().
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate fails fast on missing or out-of-range required configuration.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Server.Addr == "" {
		result = multierror.Append(result, fmt.Errorf("server.addr must not be empty"))
	}
	if c.Retrieval.TopK <= 0 {
		result = multierror.Append(result, fmt.Errorf("retrieval.top_k must be positive"))
	}
	if c.Auth.Enabled && c.Auth.JWTSecretKey == "" {
		result = multierror.Append(result, fmt.Errorf("auth.jwt_secret_key is required when auth is enabled"))
	}

	return result.ErrorOrNil()
}
