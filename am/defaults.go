package am

import (
	"fmt"

	"github.com/spf13/viper"
)

var defaultAllowedOrigins = []string{
	"http://localhost",
	"https://localhost",
	"http://127.0.0.1",
	"https://127.0.0.1",
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "ptx.db")

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", defaultAllowedOrigins)
	v.SetDefault("server.read_timeout_seconds", 30)
	v.SetDefault("server.write_timeout_seconds", 300) // solo runs wait on the model

	// Model defaults applied when a request leaves them unset
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("llm.max_calls_per_minute", 0)

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("anthropic.base_url", "https://api.anthropic.com/v1")

	v.SetDefault("local_inference.enabled", false)
	v.SetDefault("local_inference.base_url", "http://localhost:11434")
	v.SetDefault("local_inference.timeout_seconds", 600)

	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queue_size", 64)
	v.SetDefault("jobs.ttl_seconds", 86400)
	v.SetDefault("jobs.capacity", 1000)
	v.SetDefault("jobs.sweep_interval_seconds", 60)
	v.SetDefault("jobs.max_transform_steps", 1_000_000)

	v.SetDefault("sink.type", "file")
	v.SetDefault("sink.dir", "results")
	v.SetDefault("sink.minio.bucket", "ptx-results")
	v.SetDefault("sink.minio.prefix", "results/")
	v.SetDefault("sink.redis.addr", "localhost:6379")
	v.SetDefault("sink.redis.prefix", "ptx:results:")

	v.SetDefault("import.timeout_seconds", 60)
	v.SetDefault("import.max_bytes", 64<<20)
	v.SetDefault("import.allow_private", false)
}

// BindSensitiveEnvVars binds secrets to the environment variable names users
// already have set for other tools.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("openai.api_key", "PTX_OPENAI_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("openrouter.api_key", "PTX_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	v.BindEnv("anthropic.api_key", "PTX_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")

	v.BindEnv("database.path", "PTX_DATABASE_PATH")

	v.BindEnv("sink.minio.endpoint", "PTX_SINK_MINIO_ENDPOINT", "MINIO_ENDPOINT")
	v.BindEnv("sink.minio.access_key", "PTX_SINK_MINIO_ACCESS_KEY", "MINIO_ACCESS_KEY")
	v.BindEnv("sink.minio.secret_key", "PTX_SINK_MINIO_SECRET_KEY", "MINIO_SECRET_KEY")
	v.BindEnv("sink.redis.addr", "PTX_SINK_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("sink.redis.password", "PTX_SINK_REDIS_PASSWORD", "REDIS_PASSWORD")
}

// GetServerPort returns the configured port or DefaultServerPort
func (c *Config) GetServerPort() int {
	if c.Server.Port == nil {
		return DefaultServerPort
	}
	return *c.Server.Port
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "ptx.db"
	}
	return c.Database.Path
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return defaultAllowedOrigins
	}
	return c.Server.AllowedOrigins
}

// String returns a short representation without secrets
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, LLM: {%s %s}, Jobs: {Workers: %d}, Sink: %s}",
		c.Database.Path, c.LLM.Provider, c.LLM.Model, c.Jobs.Workers, c.Sink.Type)
}
