package am

import "github.com/teranos/PTX/errors"

var validProviders = map[string]bool{
	"openai":     true,
	"openrouter": true,
	"anthropic":  true,
	"local":      true,
}

var validSinks = map[string]bool{
	"file":  true,
	"minio": true,
	"redis": true,
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port != nil && *c.Server.Port <= 0 {
		return errors.Newf("server.port must be positive, got %d (omit for default %d)", *c.Server.Port, DefaultServerPort)
	}

	if !validProviders[c.LLM.Provider] {
		return errors.WithHint(
			errors.Newf("llm.provider %q is not supported", c.LLM.Provider),
			"use one of: openai, openrouter, anthropic, local")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.Newf("llm.temperature must be between 0 and 2, got %g", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens < 0 {
		return errors.Newf("llm.max_tokens must be >= 0, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.MaxCallsPerMin < 0 {
		return errors.Newf("llm.max_calls_per_minute must be >= 0, got %d", c.LLM.MaxCallsPerMin)
	}
	if c.LLM.Provider == "local" && !c.LocalInference.Enabled {
		return errors.WithHint(
			errors.New("llm.provider is local but local_inference is disabled"),
			"set local_inference.enabled = true")
	}
	if c.LocalInference.Enabled && c.LocalInference.BaseURL == "" {
		return errors.New("local_inference.base_url cannot be empty when enabled")
	}

	// Jobs: 0 workers would leave submitted batches pending forever
	if c.Jobs.Workers < 1 {
		return errors.Newf("jobs.workers must be >= 1, got %d", c.Jobs.Workers)
	}
	if c.Jobs.QueueSize < 0 {
		return errors.Newf("jobs.queue_size must be >= 0, got %d", c.Jobs.QueueSize)
	}
	if c.Jobs.TTLSeconds < 0 {
		return errors.Newf("jobs.ttl_seconds must be >= 0, got %d", c.Jobs.TTLSeconds)
	}
	if c.Jobs.Capacity < 0 {
		return errors.Newf("jobs.capacity must be >= 0, got %d", c.Jobs.Capacity)
	}
	if (c.Jobs.TTLSeconds > 0 || c.Jobs.Capacity > 0) && c.Jobs.SweepIntervalSeconds <= 0 {
		return errors.Newf("jobs.sweep_interval_seconds must be > 0 when eviction is enabled, got %d", c.Jobs.SweepIntervalSeconds)
	}
	if c.Jobs.MaxTransformSteps < 0 {
		return errors.Newf("jobs.max_transform_steps must be >= 0, got %d", c.Jobs.MaxTransformSteps)
	}

	if !validSinks[c.Sink.Type] {
		return errors.Newf("sink.type %q is not supported (file, minio, redis)", c.Sink.Type)
	}
	switch c.Sink.Type {
	case "file":
		if c.Sink.Dir == "" {
			return errors.New("sink.dir cannot be empty for the file sink")
		}
	case "minio":
		if c.Sink.MinIO.Endpoint == "" || c.Sink.MinIO.Bucket == "" {
			return errors.New("sink.minio.endpoint and sink.minio.bucket are required for the minio sink")
		}
	case "redis":
		if c.Sink.Redis.Addr == "" {
			return errors.New("sink.redis.addr is required for the redis sink")
		}
	}

	if c.Import.MaxBytes < 0 {
		return errors.Newf("import.max_bytes must be >= 0, got %d", c.Import.MaxBytes)
	}

	return nil
}
