package config

import (
	"os"
	"time"
)

// GeminiModels defines which Gemini models to use for different tasks
type GeminiModels struct {
	// Initial opens an unseeded interview
	Initial string `json:"initial"`

	// Next is on the critical path after every answer (needs to be fast)
	Next string `json:"next"`

	// Emergency localises the emergency screening question
	Emergency string `json:"emergency"`

	// Options fills in choices for generated_* questions
	Options string `json:"options"`
}

// AIConfig holds all AI-related configuration
type AIConfig struct {
	APIKey    string       `json:"-"` // Never serialize
	BaseURL   string       `json:"baseUrl"`
	Models    GeminiModels `json:"models"`
	TimeoutMS int          `json:"timeoutMs"`

	// Fallback serves built-in questions when a call fails instead of
	// surfacing the failure
	Fallback bool `json:"fallback"`
}

// DefaultAIConfig returns the default AI configuration
func DefaultAIConfig() *AIConfig {
	return &AIConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		BaseURL: getEnvOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/models"),
		Models: GeminiModels{
			Initial:   getEnvOrDefault("GEMINI_MODEL_INITIAL", "gemini-2.0-flash"),
			Next:      getEnvOrDefault("GEMINI_MODEL_NEXT", "gemini-2.5-flash"),
			Emergency: getEnvOrDefault("GEMINI_MODEL_EMERGENCY", "gemini-2.0-flash"),
			Options:   getEnvOrDefault("GEMINI_MODEL_OPTIONS", "gemini-2.0-flash"),
		},
		TimeoutMS: getEnvInt("AI_TIMEOUT_MS", 15000),
		Fallback:  getEnvOrDefault("AI_FALLBACK", "true") == "true",
	}
}

// IsEnabled returns true if the AI API is configured
func (c *AIConfig) IsEnabled() bool {
	return c.APIKey != ""
}

// ModelEndpoint returns the full endpoint for a given model
func (c *AIConfig) ModelEndpoint(model string) string {
	return c.BaseURL + "/" + model + ":generateContent"
}

// Timeout is the per-call HTTP timeout
func (c *AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
