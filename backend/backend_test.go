package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentgate/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Providers(t *testing.T) {
	ctx := context.Background()
	temp := 0.2

	tests := []struct {
		name     string
		cfg      Config
		provider string
	}{
		{"default is openai", Config{Model: "gpt-4o-mini", APIKey: "sk-test"}, ProviderOpenAI},
		{"openai", Config{Provider: "OpenAI", Model: "gpt-4o", APIKey: "sk-test", BaseURL: "http://localhost:1/v1", Temperature: &temp}, ProviderOpenAI},
		{"anthropic", Config{Provider: ProviderAnthropic, Model: "claude-3-5-haiku-latest", APIKey: "test"}, ProviderAnthropic},
		{"mock", Config{Provider: ProviderMock, Model: "mock-1"}, ProviderMock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(ctx, tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, b.Default())
			assert.Equal(t, tt.provider, b.Default().Info().Provider)
			assert.Equal(t, tt.provider, b.Config().Provider)
			require.NoError(t, b.Close())
		})
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestBackend_ForModelCaches(t *testing.T) {
	ctx := context.Background()
	b, err := New(ctx, Config{Provider: ProviderMock, Model: "base"})
	require.NoError(t, err)

	def, err := b.ForModel(ctx, "")
	require.NoError(t, err)
	assert.Same(t, b.Default(), def)

	same, err := b.ForModel(ctx, "base")
	require.NoError(t, err)
	assert.Same(t, b.Default(), same)

	other, err := b.ForModel(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, "other", other.Info().Name)

	again, err := b.ForModel(ctx, "other")
	require.NoError(t, err)
	assert.Same(t, other, again)

	assert.Equal(t, []string{"base", "other"}, b.Models())
}

func TestBackend_OpenAIInfoOverride(t *testing.T) {
	ctx := context.Background()
	info := &model.Info{Name: "local-llama", Provider: ProviderOpenAI, SupportsTools: false}
	b, err := New(ctx, Config{Provider: ProviderOpenAI, Model: "local-llama", APIKey: "x", Info: info})
	require.NoError(t, err)

	assert.False(t, b.Default().Info().SupportsTools)
	assert.Equal(t, "local-llama", b.Default().Info().Name)
}

func TestInstalled(t *testing.T) {
	prev := Install(nil)
	t.Cleanup(func() { Install(prev) })

	_, err := Default()
	assert.True(t, errors.Is(err, ErrNotInstalled))
	_, err = ForModel(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrNotInstalled))
	require.NoError(t, Close())

	b, err := New(context.Background(), Config{Provider: ProviderMock, Model: "m"})
	require.NoError(t, err)
	Install(b)

	m, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "m", m.Info().Name)

	m2, err := ForModel(context.Background(), "m2")
	require.NoError(t, err)
	assert.Equal(t, "m2", m2.Info().Name)

	require.NoError(t, Close())
	_, err = Installed()
	assert.True(t, errors.Is(err, ErrNotInstalled))
}
