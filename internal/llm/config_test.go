package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, ProviderGemini, config.Provider)
	assert.Equal(t, "gemini-2.5-flash-lite", config.GetModel(TierLite))
	assert.Equal(t, "gemini-2.5-flash", config.GetModel(TierStandard))
	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierAdvanced))
}

func TestGetModel_Fallback(t *testing.T) {
	config := &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite: "fallback-model",
		},
	}

	// Unknown tier should fallback to TierStandard, then TierLite
	assert.Equal(t, "fallback-model", config.GetModel("unknown"))
}

func TestGetModel_EmptyConfig(t *testing.T) {
	config := &Config{
		Provider: ProviderGemini,
		Models:   map[ModelTier]string{},
	}

	assert.Equal(t, "", config.GetModel(TierAdvanced))
}

func TestWithModel(t *testing.T) {
	config := DefaultConfig()
	newConfig := config.WithModel(TierAdvanced, "custom-model")

	// Original should be unchanged
	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierAdvanced))
	assert.Equal(t, "custom-model", newConfig.GetModel(TierAdvanced))
	assert.Equal(t, "gemini-2.5-flash-lite", newConfig.GetModel(TierLite))
}

func TestWithAllModels(t *testing.T) {
	config := DefaultAnthropicConfig().WithAllModels("claude-x")

	assert.Equal(t, ProviderAnthropic, config.Provider)
	assert.Equal(t, "claude-x", config.GetModel(TierLite))
	assert.Equal(t, "claude-x", config.GetModel(TierStandard))
	assert.Equal(t, "claude-x", config.GetModel(TierAdvanced))
}

func TestConfigFor(t *testing.T) {
	tests := []struct {
		provider Provider
		want     Provider
	}{
		{"", ProviderGemini},
		{ProviderGemini, ProviderGemini},
		{ProviderAnthropic, ProviderAnthropic},
		{ProviderOpenAI, ProviderOpenAI},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			config, err := ConfigFor(tt.provider)
			require.NoError(t, err)
			assert.Equal(t, tt.want, config.Provider)
			assert.NotEmpty(t, config.GetModel(TierStandard))
		})
	}

	_, err := ConfigFor("mistral")
	assert.Error(t, err)
}

func TestProviderAPIKeyEnv(t *testing.T) {
	assert.Equal(t, "GEMINI_API_KEY", ProviderGemini.APIKeyEnv())
	assert.Equal(t, "ANTHROPIC_API_KEY", ProviderAnthropic.APIKeyEnv())
	assert.Equal(t, "OPENAI_API_KEY", ProviderOpenAI.APIKeyEnv())
}

func TestModelTierConstants(t *testing.T) {
	assert.Equal(t, ModelTier("lite"), TierLite)
	assert.Equal(t, ModelTier("standard"), TierStandard)
	assert.Equal(t, ModelTier("advanced"), TierAdvanced)
}
