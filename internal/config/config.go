// Package config provides configuration loading and path utilities.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/quibble-sh/quibble/internal/llm"
	"github.com/quibble-sh/quibble/internal/match"
	"github.com/quibble-sh/quibble/internal/resilience"
)

// Settings is the application configuration assembled from config file,
// environment and flags. Every matching and resilience default from the
// design is a tunable here.
type Settings struct {
	DBPath     string
	LLM        llm.Config
	Match      match.Config
	Resilience resilience.Options
	SessionTTL time.Duration
	TurnBudget int
}

// SetDefaults registers the design-default values on the viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.db_path", "~/.local/share/quibble/quibble.db")

	v.SetDefault("match.amount_tolerance_percent", 10.0)
	v.SetDefault("match.date_tolerance_days", 3)
	v.SetDefault("match.threshold", 0.5)
	v.SetDefault("match.epsilon", 0.05)
	v.SetDefault("match.max_candidates", 5)
	v.SetDefault("match.weights.amount", 0.10)
	v.SetDefault("match.weights.date", 0.30)
	v.SetDefault("match.weights.merchant", 0.60)

	v.SetDefault("session.ttl", "5m")
	v.SetDefault("session.turn_budget", 1)

	v.SetDefault("resilience.rate_limit_rpm", 60)
	v.SetDefault("resilience.max_admission_wait", "10s")
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.open_duration", "60s")
	v.SetDefault("resilience.max_retries", 3)
	v.SetDefault("resilience.retry_base_delay", "500ms")
	v.SetDefault("resilience.retry_max_delay", "30s")

	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 200)
}

// Load assembles Settings from the viper instance.
func Load(v *viper.Viper) Settings {
	return Settings{
		DBPath: ExpandPath(v.GetString("storage.db_path")),
		Match: match.Config{
			AmountTolerancePercent: v.GetFloat64("match.amount_tolerance_percent"),
			DateToleranceDays:      v.GetInt("match.date_tolerance_days"),
			Threshold:              v.GetFloat64("match.threshold"),
			Epsilon:                v.GetFloat64("match.epsilon"),
			MaxCandidates:          v.GetInt("match.max_candidates"),
			Weights: match.Weights{
				Amount:   v.GetFloat64("match.weights.amount"),
				Date:     v.GetFloat64("match.weights.date"),
				Merchant: v.GetFloat64("match.weights.merchant"),
			},
		},
		SessionTTL: v.GetDuration("session.ttl"),
		TurnBudget: v.GetInt("session.turn_budget"),
		Resilience: resilience.Options{
			RequestsPerMin:   v.GetInt("resilience.rate_limit_rpm"),
			MaxAdmissionWait: v.GetDuration("resilience.max_admission_wait"),
			FailureThreshold: v.GetInt("resilience.failure_threshold"),
			OpenDuration:     v.GetDuration("resilience.open_duration"),
			Retry: resilience.RetryOptions{
				MaxAttempts: v.GetInt("resilience.max_retries"),
				BaseDelay:   v.GetDuration("resilience.retry_base_delay"),
				MaxDelay:    v.GetDuration("resilience.retry_max_delay"),
			},
		},
		LLM: llm.Config{
			Provider:    v.GetString("llm.provider"),
			APIKey:      v.GetString("llm.api_key"),
			Model:       v.GetString("llm.model"),
			BaseURL:     v.GetString("llm.base_url"),
			Temperature: v.GetFloat64("llm.temperature"),
			MaxTokens:   v.GetInt("llm.max_tokens"),
		},
	}
}

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}
