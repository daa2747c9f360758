package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/TomBraudo/windows-assistant/api/schemas"
	"github.com/TomBraudo/windows-assistant/internal/config"
)

// NewClient builds the provider client for one model config.
func NewClient(cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}

// NewRouterFromConfig builds the tiered router from the agent configuration,
// resolving the default fast and powerful model names against the model map.
func NewRouterFromConfig(cfg config.AgentConfig, logger *zap.Logger) (*LLMRouter, error) {
	fastCfg, ok := cfg.LLM.Models[cfg.LLM.DefaultFastModel]
	if !ok {
		return nil, fmt.Errorf("fast model %q not present in models map", cfg.LLM.DefaultFastModel)
	}
	powerfulCfg, ok := cfg.LLM.Models[cfg.LLM.DefaultPowerfulModel]
	if !ok {
		return nil, fmt.Errorf("powerful model %q not present in models map", cfg.LLM.DefaultPowerfulModel)
	}

	fast, err := NewClient(fastCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build fast tier client: %w", err)
	}
	powerful, err := NewClient(powerfulCfg, logger)
	if err != nil {
		fast.Close()
		return nil, fmt.Errorf("build powerful tier client: %w", err)
	}

	return NewLLMRouter(logger, fast, powerful)
}
