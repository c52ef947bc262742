package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/adguardian/internal/domain/ai"
	"github.com/bryanwahyu/adguardian/internal/infra/ai/gemini"
	"github.com/bryanwahyu/adguardian/internal/infra/ai/openai"
)

func TestNew(t *testing.T) {
	c, err := New(ai.Settings{APIKey: "k"}, Options{})
	require.NoError(t, err)
	assert.IsType(t, &gemini.Client{}, c)
	assert.True(t, ai.HasCredential(c))

	c, err = New(ai.Settings{Provider: "OpenAI"}, Options{})
	require.NoError(t, err)
	assert.IsType(t, &openai.Client{}, c)
	assert.False(t, ai.HasCredential(c))

	_, err = New(ai.Settings{Provider: "claude"}, Options{})
	assert.Error(t, err)
}
