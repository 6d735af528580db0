// Package config provides configuration utilities for the application.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/common"
)

// AnalysisConfig configures the expense analysis client.
type AnalysisConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxRetries  int
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// CaptureConfig configures the audio capture session.
type CaptureConfig struct {
	SampleRate   int
	StopGrace    time.Duration
	SaveAudioDir string
}

// RecognizerConfig configures the external speech recognizer.
type RecognizerConfig struct {
	Command         string
	ModelPath       string
	Language        string
	PartialInterval time.Duration
}

// PermissionsConfig records which capture permissions the user granted.
type PermissionsConfig struct {
	Microphone bool
	Speech     bool
}

// PreferencesConfig biases analysis toward the user's habits.
type PreferencesConfig struct {
	DefaultCurrency     string
	PreferredCategories []string
	FrequentMerchants   []string
}

// Config is the full application configuration.
type Config struct {
	Analysis    AnalysisConfig
	Capture     CaptureConfig
	Recognizer  RecognizerConfig
	Permissions PermissionsConfig
	Preferences PreferencesConfig
	DBPath      string
}

// Load reads configuration from Viper. Precedence follows Viper's usual
// order: flags, then AUDEXP_ environment variables, then the config file,
// then the defaults set here.
func Load() (*Config, error) {
	viper.SetDefault("analysis.base_url", "https://api.openai.com")
	viper.SetDefault("analysis.model", "gpt-4o-mini")
	viper.SetDefault("analysis.max_retries", 3)
	viper.SetDefault("analysis.max_tokens", 500)
	viper.SetDefault("analysis.temperature", 0.2)
	viper.SetDefault("analysis.timeout", "30s")
	viper.SetDefault("capture.sample_rate", 16000)
	viper.SetDefault("capture.stop_grace", "300ms")
	viper.SetDefault("recognizer.command", "whisper-cli")
	viper.SetDefault("recognizer.language", "zh")
	viper.SetDefault("recognizer.partial_interval", "1s")
	viper.SetDefault("permissions.microphone", true)
	viper.SetDefault("permissions.speech", true)
	viper.SetDefault("preferences.default_currency", "CNY")
	viper.SetDefault("db_path", "~/.local/share/audexp/expenses.db")

	cfg := &Config{
		Analysis: AnalysisConfig{
			BaseURL:     viper.GetString("analysis.base_url"),
			APIKey:      viper.GetString("analysis.api_key"),
			Model:       viper.GetString("analysis.model"),
			MaxRetries:  viper.GetInt("analysis.max_retries"),
			MaxTokens:   viper.GetInt("analysis.max_tokens"),
			Temperature: viper.GetFloat64("analysis.temperature"),
			Timeout:     viper.GetDuration("analysis.timeout"),
		},
		Capture: CaptureConfig{
			SampleRate:   viper.GetInt("capture.sample_rate"),
			StopGrace:    viper.GetDuration("capture.stop_grace"),
			SaveAudioDir: ExpandPath(viper.GetString("capture.save_audio_dir")),
		},
		Recognizer: RecognizerConfig{
			Command:         viper.GetString("recognizer.command"),
			ModelPath:       ExpandPath(viper.GetString("recognizer.model_path")),
			Language:        viper.GetString("recognizer.language"),
			PartialInterval: viper.GetDuration("recognizer.partial_interval"),
		},
		Permissions: PermissionsConfig{
			Microphone: viper.GetBool("permissions.microphone"),
			Speech:     viper.GetBool("permissions.speech"),
		},
		Preferences: PreferencesConfig{
			DefaultCurrency:     viper.GetString("preferences.default_currency"),
			PreferredCategories: viper.GetStringSlice("preferences.preferred_categories"),
			FrequentMerchants:   viper.GetStringSlice("preferences.frequent_merchants"),
		},
		DBPath: ExpandPath(viper.GetString("db_path")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that would fail later in
// a less obvious place.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path is empty", common.ErrInvalidConfig)
	}
	if c.Capture.SampleRate <= 0 {
		return fmt.Errorf("%w: capture.sample_rate must be positive", common.ErrInvalidConfig)
	}
	if c.Capture.StopGrace < 0 {
		return fmt.Errorf("%w: capture.stop_grace must not be negative", common.ErrInvalidConfig)
	}
	if c.Analysis.MaxRetries < 1 {
		return fmt.Errorf("%w: analysis.max_retries must be at least 1", common.ErrInvalidConfig)
	}
	if c.Recognizer.Command == "" {
		return fmt.Errorf("%w: recognizer.command is empty", common.ErrInvalidConfig)
	}
	return nil
}
