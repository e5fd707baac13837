package llmgateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveModelName_OverrideWinsOverEnvAndDefault(t *testing.T) {
	run := RunConfig{ModelOverrides: map[LLMTask]string{TaskPlanner: "custom-model"}}
	got := ResolveModelName(ProviderAnthropic, TaskPlanner, run)
	require.Equal(t, "custom-model", got)
}

func TestResolveModelName_EnvWinsOverDefault(t *testing.T) {
	t.Setenv("ANTHROPIC_PLANNER_MODEL", "env-model")
	got := ResolveModelName(ProviderAnthropic, TaskPlanner, RunConfig{})
	require.Equal(t, "env-model", got)
}

func TestResolveModelName_FallsBackToDefault(t *testing.T) {
	got := ResolveModelName(ProviderAnthropic, TaskReviewer, RunConfig{})
	require.Equal(t, "claude-sonnet-4-5", got)
}

func TestIsThinkingModel(t *testing.T) {
	require.True(t, IsThinkingModel("o3-mini"))
	require.True(t, IsThinkingModel("extended-thinking:claude-opus-4-5"))
	require.False(t, IsThinkingModel("claude-sonnet-4-5"))
}

func TestResolveTemperature_ThinkingModelOmitsTemperature(t *testing.T) {
	require.Nil(t, ResolveTemperature("o4-mini", nil))
}

func TestResolveTemperature_LockedFamilyUsesOne(t *testing.T) {
	got := ResolveTemperature("gpt-5", nil)
	require.NotNil(t, got)
	require.Equal(t, 1.0, *got)
}

func TestResolveTemperature_DefaultsToZero(t *testing.T) {
	got := ResolveTemperature("claude-sonnet-4-5", nil)
	require.NotNil(t, got)
	require.Equal(t, 0.0, *got)
}

func TestBuildLoadConfig_ThinkingModelRaisesMaxTokens(t *testing.T) {
	cfg := BuildLoadConfig(ProviderOpenAI, TaskRouter, RunConfig{}, 1000, nil)
	require.True(t, cfg.ThinkingModel)
	require.Equal(t, defaultThinkingBudget*4, cfg.MaxTokens)
	require.Nil(t, cfg.Temperature)
}

func TestValidateThoughtSignature_TakesLastOfConcatenated(t *testing.T) {
	got, err := ValidateThoughtSignature("c2lnQQ==c2lnQg==c2lnQw==")
	require.NoError(t, err)
	require.Equal(t, "c2lnQw==", got, "a provider-concatenated value must resolve to the last signature, not be rejected")
}

func TestValidateThoughtSignature_SingleTrailingPaddingIsNotConcatenation(t *testing.T) {
	got, err := ValidateThoughtSignature("c2lnbmF0dXJl==")
	require.NoError(t, err)
	require.Equal(t, "c2lnbmF0dXJl==", got, "a single token's own trailing base64 padding must not be mistaken for a concatenation boundary")
}

func TestValidateThoughtSignature_AcceptsSingleToken(t *testing.T) {
	got, err := ValidateThoughtSignature("  c2lnbmF0dXJl  ")
	require.NoError(t, err)
	require.Equal(t, "c2lnbmF0dXJl", got)
}

func TestValidateThoughtSignature_EmptyIsNotAnError(t *testing.T) {
	got, err := ValidateThoughtSignature("")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestBuildThinking_NilWhenNotThinkingModel(t *testing.T) {
	require.Nil(t, BuildThinking(ModelLoadConfig{ThinkingModel: false}))
}

func TestBuildThinking_DefaultsBudget(t *testing.T) {
	got := BuildThinking(ModelLoadConfig{ThinkingModel: true})
	require.NotNil(t, got)
	require.Equal(t, defaultThinkingBudget, got.BudgetTokens)
}
