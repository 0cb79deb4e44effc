package config

// ModelsConfig names the model for each invocation tier.
type ModelsConfig struct {
	Fast    string `json:"fast,omitempty"`    // Drafting, topic selection
	Quality string `json:"quality,omitempty"` // Document generation, QA review
}

// ProviderConfig defines the generation backend. Type selects the transport:
// "http" posts to Endpoint, "command" shells out to Command. The API key
// itself never lives in config files; APIKeyEnv names the environment
// variable to read it from at startup.
type ProviderConfig struct {
	Type           string       `json:"type,omitempty"` // "http" (default) or "command"
	Endpoint       string       `json:"endpoint,omitempty"`
	APIKeyEnv      string       `json:"api_key_env,omitempty"`
	Command        string       `json:"command,omitempty"`
	Args           []string     `json:"args,omitempty"`
	TimeoutSeconds int          `json:"timeout_seconds,omitempty"`
	Models         ModelsConfig `json:"models,omitempty"`
}

// RetryConfig tunes the invocation retry policy. The long backoff applies
// after rate-limit responses, the short one after everything else retryable.
type RetryConfig struct {
	MaxAttempts         int `json:"max_attempts,omitempty"`
	ShortBackoffSeconds int `json:"short_backoff_seconds,omitempty"`
	LongBackoffSeconds  int `json:"long_backoff_seconds,omitempty"`
}

// ScheduleConfig tunes the dependency scheduler.
type ScheduleConfig struct {
	PacingSeconds int `json:"pacing_seconds,omitempty"` // Delay between generation units
}

// PipelineConfig tunes the change-management pipeline.
type PipelineConfig struct {
	DoerRetries int `json:"doer_retries,omitempty"` // Re-edit attempts after QA feedback
}

// SearchConfig tunes the iterative discovery loop.
type SearchConfig struct {
	MaxIterations int `json:"max_iterations,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	DatabasePath string         `json:"database_path,omitempty"`
	Provider     ProviderConfig `json:"provider,omitempty"`
	Retry        RetryConfig    `json:"retry,omitempty"`
	Schedule     ScheduleConfig `json:"schedule,omitempty"`
	Pipeline     PipelineConfig `json:"pipeline,omitempty"`
	Search       SearchConfig   `json:"search,omitempty"`
}
