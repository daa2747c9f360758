package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 20, cfg.Session.MaxIterations)
	assert.Equal(t, 10*time.Minute, cfg.Session.Budget)
	assert.Equal(t, 3, cfg.Session.HistoryWindow)
	assert.Equal(t, 3, cfg.Session.PlannerFailureBudget)
	assert.Equal(t, 20, cfg.Filter.Budget)
	assert.False(t, cfg.Filter.Strict)
	assert.Equal(t, 0.05, cfg.Perception.BoxThreshold)
	assert.Equal(t, 0.1, cfg.Perception.IoUThreshold)
	assert.Equal(t, 30, cfg.Input.RatePerMinute)
	assert.Equal(t, 5*time.Second, cfg.Input.MaxQueueWait)
	assert.Contains(t, cfg.Safety.SensitiveKeywords, "powershell")
	assert.Contains(t, cfg.Safety.SensitiveKinds, "launch_app")
	assert.False(t, cfg.Safety.AutoApprove)
	assert.Equal(t, "powerful", cfg.Agent.LLM.DefaultPowerfulModel)
	assert.Equal(t, "gemini-2.5-pro", cfg.Agent.LLM.Models["powerful"].Model)
	assert.Equal(t, ProviderGemini, cfg.Agent.LLM.Models["fast"].Provider)
	assert.False(t, cfg.Archive.Enabled)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	cfg := NewDefaultConfig()

	// Test Case: Valid Config
	err := cfg.Validate()
	assert.NoError(t, err, "A valid config should not produce a validation error")

	// Test Case: Invalid Iteration Budget
	cfgInvalidIterations := *cfg
	cfgInvalidIterations.Session.MaxIterations = 0
	err = cfgInvalidIterations.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "session.max_iterations must be a positive integer")

	// Test Case: Invalid Wall-Clock Budget
	cfgInvalidBudget := *cfg
	cfgInvalidBudget.Session.Budget = -1 * time.Second
	err = cfgInvalidBudget.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "session.budget must be a positive duration")

	// Test Case: Invalid Filter Budget
	cfgInvalidFilter := *cfg
	cfgInvalidFilter.Filter.Budget = 0
	err = cfgInvalidFilter.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "filter.budget must be a positive integer")

	// Test Case: Invalid Action Rate
	cfgInvalidRate := *cfg
	cfgInvalidRate.Input.RatePerMinute = 0
	err = cfgInvalidRate.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "input.rate_per_minute must be a positive integer")

	// Test Case: Archive enabled without a URL
	cfgInvalidArchive := *cfg
	cfgInvalidArchive.Archive.Enabled = true
	cfgInvalidArchive.Archive.URL = ""
	err = cfgInvalidArchive.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "archive.url is required when archive.enabled is set")
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
session:
  max_iterations: 8
  budget: 2m
filter:
  budget: 12
  strict: true
input:
  rate_per_minute: 10
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		err := v.ReadConfig(bytes.NewBuffer(yamlBytes))
		require.NoError(t, err)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 8, cfg.Session.MaxIterations)
		assert.Equal(t, 2*time.Minute, cfg.Session.Budget)
		assert.Equal(t, 12, cfg.Filter.Budget)
		assert.True(t, cfg.Filter.Strict)
		assert.Equal(t, 10, cfg.Input.RatePerMinute)
		// Check a default value was also loaded.
		assert.Equal(t, "info", cfg.Logger.Level)
		assert.Equal(t, 3, cfg.Session.StallThreshold)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("session.max_iterations", 0) // Intentionally invalid

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "session.max_iterations must be a positive integer")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		t.Setenv("WA_PERCEPTION_ENDPOINT", "http://10.0.0.5:8000/parse")
		t.Setenv("WA_LLM_API_KEY", "test-key-from-env")

		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "http://10.0.0.5:8000/parse", cfg.Perception.Endpoint)
		assert.Equal(t, "test-key-from-env", cfg.Agent.LLM.Models["fast"].APIKey)
		assert.Equal(t, "test-key-from-env", cfg.Agent.LLM.Models["powerful"].APIKey)
	})
}
