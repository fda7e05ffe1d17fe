package models

import (
	"os"
	"strconv"
	"time"
)

// AIConfig holds the model endpoint settings shared by every stream stage
type AIConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	AppTag      string // appended to the bearer token as <token>:<AppTag>
	Timeout     time.Duration
	PromptsDir  string // Directory for external prompt files
}

// DefaultAIConfig returns sensible defaults for AI configuration
func DefaultAIConfig() *AIConfig {
	config := &AIConfig{
		BaseURL:     "https://llmfoundry.straive.com/openai/v1",
		Model:       "gpt-4o-mini",
		Temperature: 0,
		AppTag:      "hypoforge",
		Timeout:     3 * time.Minute,
		PromptsDir:  "./prompts",
	}

	if model := os.Getenv("LLM_MODEL"); model != "" {
		config.Model = model
	}

	// Parse Temperature from environment
	if tempStr := os.Getenv("TEMPERATURE"); tempStr != "" {
		if temp, err := strconv.ParseFloat(tempStr, 64); err == nil {
			config.Temperature = temp
		}
	}

	return config
}
