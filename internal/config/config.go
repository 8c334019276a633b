// Package config loads runtime configuration from an optional config file
// and the environment. Environment names follow the conventions of the
// deployed platform (OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, GOOGLE_API_KEY
// and friends), so the binary drops into an existing .env unchanged.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Validation errors.
var (
	ErrInvalidEmbedder = errors.New("embedding.provider must be gemini, openai, or hash")
	ErrInvalidTopK     = errors.New("index.top_k must be positive")
	ErrInvalidRetries  = errors.New("provider.max_retries must not be negative")
	ErrInvalidLogLevel = errors.New("log.level must be debug, info, warn, or error")
)

// Config is the root configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Index     IndexConfig     `mapstructure:"index"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Vertex    VertexConfig    `mapstructure:"vertex"`
	Azure     AzureConfig     `mapstructure:"azure"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Local     LocalConfig     `mapstructure:"local"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Rate      RateConfig      `mapstructure:"rate"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// IndexConfig locates the index scopes and sets retrieval depth.
type IndexConfig struct {
	ProjectDir string `mapstructure:"project_dir"`
	UserDir    string `mapstructure:"user_dir"`
	TopK       int    `mapstructure:"top_k"`
	Neighbors  int    `mapstructure:"neighbors"`
}

// EmbeddingConfig selects and sizes the embedding backend.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
}

// GeminiConfig holds hosted Gemini API credentials.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// VertexConfig holds Vertex AI settings; credentials come from application
// default credentials.
type VertexConfig struct {
	Project  string `mapstructure:"project"`
	Location string `mapstructure:"location"`
	Model    string `mapstructure:"model"`
}

// AzureConfig holds Azure OpenAI deployment settings.
type AzureConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	Deployment string `mapstructure:"deployment"`
	APIVersion string `mapstructure:"api_version"`
}

// OpenAIConfig holds OpenAI (or compatible endpoint) settings.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// LocalConfig points at the local fallback model server.
type LocalConfig struct {
	Host      string `mapstructure:"host"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// ProviderConfig tunes outbound request behavior shared by all providers.
type ProviderConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
}

// RateConfig throttles outbound calls.
type RateConfig struct {
	RPM         int           `mapstructure:"rpm"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	WindowPath  string        `mapstructure:"window_path"`
	WindowLimit int           `mapstructure:"window_limit"`
}

// Load reads aicore.yaml (if present) and the environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvVariables(v)

	v.SetConfigName("aicore")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/aicore")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("index.project_dir", "instance/ai")
	v.SetDefault("index.user_dir", "instance/ai_user")
	v.SetDefault("index.top_k", 6)
	v.SetDefault("index.neighbors", 8)

	v.SetDefault("embedding.provider", "gemini")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimension", 0)

	v.SetDefault("vertex.location", "us-central1")
	v.SetDefault("local.host", "http://localhost:11434")
	v.SetDefault("local.model", "tinyllama")
	v.SetDefault("local.max_tokens", 256)

	v.SetDefault("provider.timeout", 60*time.Second)
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("provider.backoff_base", time.Second)
	v.SetDefault("provider.temperature", 0.2)
	v.SetDefault("provider.max_tokens", 1024)

	v.SetDefault("rate.rpm", 0)
	v.SetDefault("rate.min_interval", 0)
	v.SetDefault("rate.window_path", "")
	v.SetDefault("rate.window_limit", 0)
}

func bindEnvVariables(v *viper.Viper) {
	mustBind(v, "log.level", "AICORE_LOG_LEVEL")

	mustBind(v, "index.project_dir", "AICORE_INDEX_DIR")
	mustBind(v, "index.user_dir", "AICORE_USER_INDEX_DIR")
	mustBind(v, "index.top_k", "AICORE_TOP_K")

	mustBind(v, "embedding.provider", "AICORE_EMBED_PROVIDER")
	mustBind(v, "embedding.model", "AICORE_EMBED_MODEL")
	mustBind(v, "embedding.dimension", "AICORE_EMBED_DIMENSION")

	mustBind(v, "gemini.api_key", "GOOGLE_API_KEY", "GEMINI_API_KEY")
	mustBind(v, "gemini.model", "GEMINI_MODEL")

	mustBind(v, "vertex.project", "VERTEX_PROJECT_ID")
	mustBind(v, "vertex.location", "VERTEX_LOCATION")
	mustBind(v, "vertex.model", "VERTEX_MODEL")

	mustBind(v, "azure.endpoint", "AZURE_OPENAI_ENDPOINT")
	mustBind(v, "azure.api_key", "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_KEY")
	mustBind(v, "azure.deployment", "AZURE_OPENAI_DEPLOYMENT")
	mustBind(v, "azure.api_version", "AZURE_OPENAI_API_VERSION")

	mustBind(v, "openai.api_key", "OPENAI_API_KEY")
	mustBind(v, "openai.base_url", "OPENAI_BASE_URL")
	mustBind(v, "openai.model", "OPENAI_MODEL")

	mustBind(v, "local.host", "OLLAMA_HOST")
	mustBind(v, "local.model", "LOCAL_MODEL_ID")
	mustBind(v, "local.max_tokens", "LOCAL_MAX_NEW_TOKENS")

	mustBind(v, "provider.timeout", "OPENAI_TIMEOUT")
	mustBind(v, "provider.max_retries", "OPENAI_MAX_RETRIES")
	mustBind(v, "provider.backoff_base", "OPENAI_BACKOFF_BASE")

	mustBind(v, "rate.rpm", "OPENAI_RPM")
	mustBind(v, "rate.min_interval", "OPENAI_MIN_INTERVAL")
	mustBind(v, "rate.window_path", "AICORE_RATE_WINDOW_PATH")
	mustBind(v, "rate.window_limit", "AICORE_RATE_WINDOW_LIMIT")
}

// mustBind panics on registration failure, which only happens on programmer
// error (empty key).
func mustBind(v *viper.Viper, key string, envs ...string) {
	input := append([]string{key}, envs...)
	if err := v.BindEnv(input...); err != nil {
		panic(fmt.Sprintf("bind env for %s: %v", key, err))
	}
}

// Validate fails fast on settings that would only surface mid-request.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "gemini", "openai", "hash":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidEmbedder, c.Embedding.Provider)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidLogLevel, c.Log.Level)
	}
	if c.Index.TopK <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTopK, c.Index.TopK)
	}
	if c.Provider.MaxRetries < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidRetries, c.Provider.MaxRetries)
	}
	return nil
}

// PacerInterval resolves the local pacing interval: an explicit minimum
// interval wins over one derived from the RPM budget.
func (c *Config) PacerInterval() time.Duration {
	if c.Rate.MinInterval > 0 {
		return c.Rate.MinInterval
	}
	if c.Rate.RPM > 0 {
		return time.Minute / time.Duration(c.Rate.RPM)
	}
	return 0
}

// MaskSecret hides all but a short prefix of a credential for logging.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "***"
	}
	return s[:4] + "***"
}
