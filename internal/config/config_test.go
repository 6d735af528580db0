package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/common"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.openai.com", cfg.Analysis.BaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.Analysis.Model)
	assert.Equal(t, 3, cfg.Analysis.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, 16000, cfg.Capture.SampleRate)
	assert.Equal(t, 300*time.Millisecond, cfg.Capture.StopGrace)
	assert.Equal(t, "whisper-cli", cfg.Recognizer.Command)
	assert.Equal(t, "zh", cfg.Recognizer.Language)
	assert.True(t, cfg.Permissions.Microphone)
	assert.True(t, cfg.Permissions.Speech)
	assert.Equal(t, "CNY", cfg.Preferences.DefaultCurrency)
	assert.NotEmpty(t, cfg.DBPath)
	assert.NotContains(t, cfg.DBPath, "~")
}

func TestLoadOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("analysis.api_key", "sk-test")
	viper.Set("analysis.model", "qwen-turbo")
	viper.Set("capture.sample_rate", 44100)
	viper.Set("capture.stop_grace", "150ms")
	viper.Set("preferences.preferred_categories", []string{"food", "transport"})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Analysis.APIKey)
	assert.Equal(t, "qwen-turbo", cfg.Analysis.Model)
	assert.Equal(t, 44100, cfg.Capture.SampleRate)
	assert.Equal(t, 150*time.Millisecond, cfg.Capture.StopGrace)
	assert.Equal(t, []string{"food", "transport"}, cfg.Preferences.PreferredCategories)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"empty db path", "db_path", ""},
		{"zero sample rate", "capture.sample_rate", 0},
		{"negative stop grace", "capture.stop_grace", "-1s"},
		{"zero retries", "analysis.max_retries", 0},
		{"empty recognizer command", "recognizer.command", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			viper.Set(tt.key, tt.value)

			_, err := Load()
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("AUDEXP_TEST_DIR", "/tmp/audexp")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "/var/db/expenses.db", "/var/db/expenses.db"},
		{"tilde slash", "~/data/expenses.db", filepath.Join(home, "data/expenses.db")},
		{"bare tilde", "~", home},
		{"env var", "$AUDEXP_TEST_DIR/expenses.db", "/tmp/audexp/expenses.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}
