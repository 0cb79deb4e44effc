package config

// DefaultConfig returns the built-in configuration. Every field can be
// overridden by the global or project config file.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath: ".partner/partner.db",
		Provider: ProviderConfig{
			Type:           "http",
			Endpoint:       "http://localhost:8080/v1/generate",
			APIKeyEnv:      "PARTNER_API_KEY",
			TimeoutSeconds: 120,
			Models: ModelsConfig{
				Fast:    "fast-mini",
				Quality: "quality-large",
			},
		},
		Retry: RetryConfig{
			MaxAttempts:         3,
			ShortBackoffSeconds: 2,
			LongBackoffSeconds:  45,
		},
		Schedule: ScheduleConfig{
			PacingSeconds: 0,
		},
		Pipeline: PipelineConfig{
			DoerRetries: 0,
		},
		Search: SearchConfig{
			MaxIterations: 25,
		},
	}
}
