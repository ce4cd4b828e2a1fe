package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the medialens worker.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	AI            AIConfig            `yaml:"ai"`
	Media         MediaConfig         `yaml:"media"`
	Worker        WorkerConfig        `yaml:"worker"`
	Prompt        PromptConfig        `yaml:"prompt"`
	Observability ObservabilityConfig `yaml:"observability"`
	Log           LogConfig           `yaml:"log"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Env  string `yaml:"env"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig is optional; an empty URL disables caching and API rate limiting.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AIConfig selects one provider per media kind. An empty selection leaves the
// kind unconfigured and its jobs fail permanently.
type AIConfig struct {
	ImageProvider    string          `yaml:"image_provider"`
	VideoProvider    string          `yaml:"video_provider"`
	AudioProvider    string          `yaml:"audio_provider"`
	InferenceTimeout time.Duration   `yaml:"inference_timeout"`
	MaxTokens        int             `yaml:"max_tokens"`
	OpenAI           OpenAIConfig    `yaml:"openai"`
	Anthropic        AnthropicConfig `yaml:"anthropic"`
	Ollama           OllamaConfig    `yaml:"ollama"`
	VLLM             VLLMConfig      `yaml:"vllm"`
	Bedrock          BedrockConfig   `yaml:"bedrock"`
}

type OpenAIConfig struct {
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	TranscribeModel string `yaml:"transcribe_model"`
	BaseURL         string `yaml:"base_url"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type VLLMConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type BedrockConfig struct {
	Region           string        `yaml:"region"`
	Model            string        `yaml:"model"`
	MaxVideoDuration time.Duration `yaml:"max_video_duration"`
}

// MediaConfig configures the Matrix homeserver media source.
type MediaConfig struct {
	HomeserverURL     string        `yaml:"homeserver_url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	DeviceID          string        `yaml:"device_id"`
	MaxBytes          ByteSize      `yaml:"max_bytes"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	NotFoundDelay     time.Duration `yaml:"not_found_delay"`
	AuthBackoff       time.Duration `yaml:"auth_backoff"`
}

type WorkerConfig struct {
	Enabled            bool          `yaml:"enabled"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	Concurrency        int           `yaml:"concurrency"`
	MaxAttempts        int           `yaml:"max_attempts"`
	RetryBackoffBase   time.Duration `yaml:"retry_backoff_base"`
	RetryBackoffMax    time.Duration `yaml:"retry_backoff_max"`
	LeaseTimeout       time.Duration `yaml:"lease_timeout"`
	LeaseSweepInterval time.Duration `yaml:"lease_sweep_interval"`
	MaxVideoDuration   time.Duration `yaml:"max_video_duration"`
	MaxContentBytes    int           `yaml:"max_content_bytes"`
	// DrainTimeout bounds how long shutdown waits for in-flight jobs.
	// Zero waits indefinitely.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

type PromptConfig struct {
	Source      string        `yaml:"source"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	SupabaseURL string        `yaml:"supabase_url"`
	SupabaseKey string        `yaml:"supabase_key"`
}

type ObservabilityConfig struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

const (
	PromptSourcePostgres = "postgres"
	PromptSourceSupabase = "supabase"
)

var validProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"ollama":    true,
	"vllm":      true,
	"bedrock":   true,
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, Env: "development"},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		AI: AIConfig{
			InferenceTimeout: 120 * time.Second,
			MaxTokens:        1024,
			OpenAI: OpenAIConfig{
				Model:           "gpt-4o",
				TranscribeModel: "whisper-1",
				BaseURL:         "https://api.openai.com/v1",
			},
			Anthropic: AnthropicConfig{Model: "claude-sonnet-4-5-20250929"},
			Ollama:    OllamaConfig{BaseURL: "http://localhost:11434", Model: "llava"},
			VLLM:      VLLMConfig{BaseURL: "http://localhost:8000/v1"},
			Bedrock: BedrockConfig{
				Region:           "us-east-1",
				Model:            "us.amazon.nova-pro-v1:0",
				MaxVideoDuration: 0,
			},
		},
		Media: MediaConfig{
			DeviceID:          "medialens",
			MaxBytes:          100 * MB,
			TokenTTL:          time.Hour,
			RequestsPerSecond: 5,
			Timeout:           60 * time.Second,
			RetryDelay:        5 * time.Second,
			NotFoundDelay:     2 * time.Second,
			AuthBackoff:       10 * time.Second,
		},
		Worker: WorkerConfig{
			Enabled:            true,
			PollInterval:       5 * time.Second,
			Concurrency:        1,
			MaxAttempts:        3,
			RetryBackoffBase:   30 * time.Second,
			RetryBackoffMax:    30 * time.Minute,
			LeaseTimeout:       30 * time.Minute,
			LeaseSweepInterval: time.Minute,
			MaxVideoDuration:   300 * time.Second,
			MaxContentBytes:    64 * 1024,
			DrainTimeout:       5 * time.Minute,
		},
		Prompt: PromptConfig{
			Source:   PromptSourcePostgres,
			CacheTTL: 60 * time.Second,
		},
		Observability: ObservabilityConfig{ServiceName: "medialens"},
		Log:           LogConfig{Level: "info"},
	}
}

// Load reads configuration from an optional YAML file (MEDIALENS_CONFIG) and
// then environment variables, which take precedence. The result is validated.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("MEDIALENS_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = envInt("MEDIALENS_PORT", cfg.Server.Port)
	cfg.Server.Env = envString("MEDIALENS_ENV", cfg.Server.Env)

	cfg.Database.URL = envString("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = envDuration("DATABASE_CONN_MAX_LIFETIME", cfg.Database.ConnMaxLifetime)

	cfg.Redis.URL = envString("REDIS_URL", cfg.Redis.URL)

	ai := &cfg.AI
	ai.ImageProvider = envString("PROVIDER_IMAGE", ai.ImageProvider)
	ai.VideoProvider = envString("PROVIDER_VIDEO", ai.VideoProvider)
	ai.AudioProvider = envString("PROVIDER_AUDIO", ai.AudioProvider)
	ai.InferenceTimeout = envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", ai.InferenceTimeout)
	ai.MaxTokens = envInt("AI_MAX_TOKENS", ai.MaxTokens)
	ai.OpenAI.APIKey = envString("OPENAI_API_KEY", ai.OpenAI.APIKey)
	ai.OpenAI.Model = envString("OPENAI_MODEL", ai.OpenAI.Model)
	ai.OpenAI.TranscribeModel = envString("OPENAI_TRANSCRIBE_MODEL", ai.OpenAI.TranscribeModel)
	ai.OpenAI.BaseURL = envString("OPENAI_BASE_URL", ai.OpenAI.BaseURL)
	ai.Anthropic.APIKey = envString("ANTHROPIC_API_KEY", ai.Anthropic.APIKey)
	ai.Anthropic.Model = envString("ANTHROPIC_MODEL", ai.Anthropic.Model)
	ai.Ollama.BaseURL = envString("OLLAMA_BASE_URL", ai.Ollama.BaseURL)
	ai.Ollama.Model = envString("OLLAMA_MODEL", ai.Ollama.Model)
	ai.VLLM.BaseURL = envString("VLLM_BASE_URL", ai.VLLM.BaseURL)
	ai.VLLM.Model = envString("VLLM_MODEL", ai.VLLM.Model)
	ai.Bedrock.Region = envString("BEDROCK_REGION", ai.Bedrock.Region)
	ai.Bedrock.Model = envString("BEDROCK_MODEL", ai.Bedrock.Model)
	ai.Bedrock.MaxVideoDuration = envDurationSecs("BEDROCK_MAX_VIDEO_SECS", ai.Bedrock.MaxVideoDuration)

	m := &cfg.Media
	m.HomeserverURL = envString("MATRIX_HOMESERVER_URL", m.HomeserverURL)
	m.Username = envString("MATRIX_USERNAME", m.Username)
	m.Password = envString("MATRIX_PASSWORD", m.Password)
	m.DeviceID = envString("MATRIX_DEVICE_ID", m.DeviceID)
	m.MaxBytes = envByteSize("MEDIA_MAX_BYTES", m.MaxBytes)
	m.TokenTTL = envDuration("MEDIA_TOKEN_TTL", m.TokenTTL)
	m.RequestsPerSecond = envFloat("MEDIA_REQUESTS_PER_SECOND", m.RequestsPerSecond)
	m.Timeout = envDuration("MEDIA_TIMEOUT", m.Timeout)
	m.RetryDelay = envDuration("MEDIA_RETRY_DELAY", m.RetryDelay)
	m.NotFoundDelay = envDuration("MEDIA_NOT_FOUND_DELAY", m.NotFoundDelay)
	m.AuthBackoff = envDuration("MEDIA_AUTH_BACKOFF", m.AuthBackoff)

	w := &cfg.Worker
	w.Enabled = envBool("ANALYSIS_ENABLED", w.Enabled)
	w.PollInterval = envDuration("WORKER_POLL_INTERVAL", w.PollInterval)
	w.Concurrency = envInt("WORKER_CONCURRENCY", w.Concurrency)
	w.MaxAttempts = envInt("WORKER_MAX_ATTEMPTS", w.MaxAttempts)
	w.RetryBackoffBase = envDuration("WORKER_RETRY_BACKOFF_BASE", w.RetryBackoffBase)
	w.RetryBackoffMax = envDuration("WORKER_RETRY_BACKOFF_MAX", w.RetryBackoffMax)
	w.LeaseTimeout = envDuration("WORKER_LEASE_TIMEOUT", w.LeaseTimeout)
	w.LeaseSweepInterval = envDuration("WORKER_LEASE_SWEEP_INTERVAL", w.LeaseSweepInterval)
	w.MaxVideoDuration = envDurationSecs("MAX_VIDEO_DURATION_SECS", w.MaxVideoDuration)
	w.MaxContentBytes = envInt("RESULT_MAX_CONTENT_BYTES", w.MaxContentBytes)
	w.DrainTimeout = envDuration("WORKER_DRAIN_TIMEOUT", w.DrainTimeout)

	cfg.Prompt.Source = envString("PROMPT_SOURCE", cfg.Prompt.Source)
	cfg.Prompt.CacheTTL = envDuration("PROMPT_CACHE_TTL", cfg.Prompt.CacheTTL)
	cfg.Prompt.SupabaseURL = envString("SUPABASE_URL", cfg.Prompt.SupabaseURL)
	cfg.Prompt.SupabaseKey = envString("SUPABASE_SERVICE_ROLE_KEY", cfg.Prompt.SupabaseKey)

	cfg.Observability.ServiceName = envString("OTEL_SERVICE_NAME", cfg.Observability.ServiceName)
	cfg.Observability.OTLPEndpoint = envString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Observability.OTLPEndpoint)

	cfg.Log.Level = envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = envString("LOG_FILE", cfg.Log.File)
}

// ProviderFor returns the provider name selected for a media kind.
func (c AIConfig) ProviderFor(kind string) string {
	switch kind {
	case "image":
		return c.ImageProvider
	case "video":
		return c.VideoProvider
	case "audio":
		return c.AudioProvider
	}
	return ""
}

// SelectedProviders returns the distinct provider names in use.
func (c AIConfig) SelectedProviders() []string {
	seen := map[string]bool{}
	var names []string
	for _, name := range []string{c.ImageProvider, c.VideoProvider, c.AudioProvider} {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if err := c.AI.validate(); err != nil {
		return err
	}

	if c.Worker.Enabled {
		if err := c.Media.validate(); err != nil {
			return err
		}
	}

	if err := c.Worker.validate(); err != nil {
		return err
	}

	switch c.Prompt.Source {
	case PromptSourcePostgres:
	case PromptSourceSupabase:
		if c.Prompt.SupabaseURL == "" || c.Prompt.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required when PROMPT_SOURCE is supabase")
		}
	default:
		return fmt.Errorf("PROMPT_SOURCE must be one of postgres, supabase; got %q", c.Prompt.Source)
	}

	return nil
}

func (c AIConfig) validate() error {
	for _, kind := range []string{"image", "video", "audio"} {
		name := c.ProviderFor(kind)
		if name == "" {
			continue
		}
		if !validProviders[name] {
			return fmt.Errorf("PROVIDER_%s must be one of openai, anthropic, ollama, vllm, bedrock; got %q",
				strings.ToUpper(kind), name)
		}
	}

	for _, name := range c.SelectedProviders() {
		switch name {
		case "openai":
			if c.OpenAI.APIKey == "" {
				return fmt.Errorf("OPENAI_API_KEY is required when a kind uses openai")
			}
		case "anthropic":
			if c.Anthropic.APIKey == "" {
				return fmt.Errorf("ANTHROPIC_API_KEY is required when a kind uses anthropic")
			}
		case "vllm":
			if c.VLLM.Model == "" {
				return fmt.Errorf("VLLM_MODEL is required when a kind uses vllm")
			}
		case "bedrock":
			if c.Bedrock.Region == "" {
				return fmt.Errorf("BEDROCK_REGION is required when a kind uses bedrock")
			}
		}
	}

	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("AI_INFERENCE_TIMEOUT_SECS must be positive")
	}
	return nil
}

func (m MediaConfig) validate() error {
	if m.HomeserverURL == "" {
		return fmt.Errorf("MATRIX_HOMESERVER_URL is required")
	}
	if !strings.HasPrefix(m.HomeserverURL, "http://") && !strings.HasPrefix(m.HomeserverURL, "https://") {
		return fmt.Errorf("MATRIX_HOMESERVER_URL must start with http:// or https://, got %q", m.HomeserverURL)
	}
	if m.Username == "" || m.Password == "" {
		return fmt.Errorf("MATRIX_USERNAME and MATRIX_PASSWORD are required")
	}
	if m.MaxBytes <= 0 {
		return fmt.Errorf("MEDIA_MAX_BYTES must be positive")
	}
	return nil
}

func (w WorkerConfig) validate() error {
	if w.PollInterval <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL must be positive")
	}
	if w.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", w.Concurrency)
	}
	if w.MaxAttempts < 1 {
		return fmt.Errorf("WORKER_MAX_ATTEMPTS must be at least 1, got %d", w.MaxAttempts)
	}
	if w.RetryBackoffBase <= 0 {
		return fmt.Errorf("WORKER_RETRY_BACKOFF_BASE must be positive")
	}
	if w.RetryBackoffMax < w.RetryBackoffBase {
		return fmt.Errorf("WORKER_RETRY_BACKOFF_MAX must not be below WORKER_RETRY_BACKOFF_BASE")
	}
	if w.LeaseTimeout < 0 {
		return fmt.Errorf("WORKER_LEASE_TIMEOUT must not be negative")
	}
	if w.LeaseTimeout > 0 && w.LeaseSweepInterval <= 0 {
		return fmt.Errorf("WORKER_LEASE_SWEEP_INTERVAL must be positive when the lease timeout is set")
	}
	if w.MaxVideoDuration < 0 {
		return fmt.Errorf("MAX_VIDEO_DURATION_SECS must not be negative")
	}
	if w.DrainTimeout < 0 {
		return fmt.Errorf("WORKER_DRAIN_TIMEOUT must not be negative")
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

func envByteSize(key string, defaultVal ByteSize) ByteSize {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := ParseByteSize(v)
	if err != nil {
		return defaultVal
	}
	return b
}
