package am

// Config represents the PTX configuration
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	LLM            LLMConfig            `mapstructure:"llm"`
	OpenAI         ProviderConfig       `mapstructure:"openai"`
	OpenRouter     ProviderConfig       `mapstructure:"openrouter"`
	Anthropic      ProviderConfig       `mapstructure:"anthropic"`
	LocalInference LocalInferenceConfig `mapstructure:"local_inference"`
	Jobs           JobsConfig           `mapstructure:"jobs"`
	Sink           SinkConfig           `mapstructure:"sink"`
	Import         ImportConfig         `mapstructure:"import"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Port                *int     `mapstructure:"port"` // nil = DefaultServerPort, 0 is invalid
	AllowedOrigins      []string `mapstructure:"allowed_origins"`
	ReadTimeoutSeconds  int      `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `mapstructure:"write_timeout_seconds"`
}

// DefaultServerPort is used when server.port is not configured
const DefaultServerPort = 8787

// DatabaseConfig configures the SQLite database holding templates and datasets
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LLMConfig holds the model defaults applied when a run request omits them
type LLMConfig struct {
	Provider       string  `mapstructure:"provider"` // openai, openrouter, anthropic, local
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxCallsPerMin int     `mapstructure:"max_calls_per_minute"` // 0 = unlimited
}

// ProviderConfig configures a hosted model API
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// LocalInferenceConfig configures local model inference (Ollama, LocalAI, etc.)
type LocalInferenceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"` // e.g., "http://localhost:11434" for Ollama
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	ContextSize    *int   `mapstructure:"context_size"` // nil = model default
}

// JobsConfig configures batch job execution and retention
type JobsConfig struct {
	Workers              int `mapstructure:"workers"`                // concurrent batch jobs
	QueueSize            int `mapstructure:"queue_size"`             // backlog that triggers a warning; submissions never block
	TTLSeconds           int `mapstructure:"ttl_seconds"`            // terminal jobs older than this are evicted (0 = keep)
	Capacity             int `mapstructure:"capacity"`               // max jobs retained (0 = unbounded)
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"` // how often eviction runs
	MaxTransformSteps    int `mapstructure:"max_transform_steps"`    // starlark step budget per parse call
}

// SinkConfig selects where saved job results go
type SinkConfig struct {
	Type  string          `mapstructure:"type"` // file, minio, redis
	Dir   string          `mapstructure:"dir"`  // for type=file
	MinIO MinIOSinkConfig `mapstructure:"minio"`
	Redis RedisSinkConfig `mapstructure:"redis"`
}

// MinIOSinkConfig configures the S3-compatible result sink
type MinIOSinkConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// RedisSinkConfig configures the Redis result sink
type RedisSinkConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// ImportConfig configures dataset import from URLs
type ImportConfig struct {
	TimeoutSeconds int   `mapstructure:"timeout_seconds"`
	MaxBytes       int64 `mapstructure:"max_bytes"`
	AllowPrivate   bool  `mapstructure:"allow_private"` // permit loopback/private hosts (local development)
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
