package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettingsMerge(t *testing.T) {
	defaults := Settings{Provider: "gemini", APIKey: "server-key", BaseURL: "https://proxy.example.com", Model: "gemini-2.5-flash"}

	cases := []struct {
		name    string
		in      Settings
		wantKey string
		wantURL string
	}{
		{"empty inherits everything", Settings{}, "server-key", "https://proxy.example.com"},
		{"model override keeps key", Settings{Model: "gemini-2.5-pro"}, "server-key", "https://proxy.example.com"},
		{"same endpoint modulo slash and case", Settings{Provider: "Gemini", BaseURL: "https://PROXY.example.com/"}, "server-key", "https://PROXY.example.com/"},
		{"own key wins", Settings{APIKey: "mine"}, "mine", "https://proxy.example.com"},
		{"foreign base url gets no server key", Settings{BaseURL: "https://attacker.example"}, "", "https://attacker.example"},
		{"foreign base url with own key", Settings{BaseURL: "https://attacker.example", APIKey: "mine"}, "mine", "https://attacker.example"},
		{"other provider gets no server key", Settings{Provider: "openai"}, "", "https://proxy.example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.in.Merge(defaults)
			assert.Equal(t, tc.wantKey, got.APIKey)
			assert.Equal(t, tc.wantURL, got.BaseURL)
			assert.NotEmpty(t, got.Provider)
			assert.NotEmpty(t, got.Model)
		})
	}
}
