package ai

import (
	"context"
	"strings"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is either a text segment or an inline image (Data + MIMEType).
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

func (p Part) IsImage() bool { return len(p.Data) > 0 }

type Message struct {
	Role  Role
	Parts []Part
}

// TextMessage is a shortcut for a single text part message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Parts: []Part{{Text: text}}}
}

// Request is everything a single model call needs.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature float32
	// JSON asks for application/json output; Schema is attached when the provider supports it.
	JSON   bool
	Schema map[string]any
	// Search enables grounded web search; structured output is dropped when set.
	Search bool
}

type Candidate struct {
	Text         string
	FinishReason string
}

// Citation is a grounding source attached to a search-augmented answer.
type Citation struct {
	Title string
	URI   string
}

type Response struct {
	Text        string
	Candidates  []Candidate
	Citations   []Citation
	BlockReason string
}

// FirstText returns the primary text, falling back to the first non-empty candidate.
func (r *Response) FirstText() string {
	if r == nil {
		return ""
	}
	if strings.TrimSpace(r.Text) != "" {
		return r.Text
	}
	for _, c := range r.Candidates {
		if strings.TrimSpace(c.Text) != "" {
			return c.Text
		}
	}
	return ""
}

// Client performs exactly one model call per Generate. No retries at this layer.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Credentialed is implemented by clients that can tell whether a credential is configured.
type Credentialed interface {
	HasCredential() bool
}

// HasCredential reports false only when the client says so.
func HasCredential(c Client) bool {
	if cc, ok := c.(Credentialed); ok {
		return cc.HasCredential()
	}
	return true
}

// Settings is the per-session model configuration.
type Settings struct {
	Provider string `json:"provider,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	BaseURL  string `json:"baseUrl,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Merge fills empty fields from defaults. The default API key is only inherited when
// the session still targets the default provider and endpoint, so a caller-chosen
// base url never receives the server's credential.
func (s Settings) Merge(defaults Settings) Settings {
	inheritKey := sameProvider(s.Provider, defaults.Provider) && sameEndpoint(s.BaseURL, defaults.BaseURL)
	if s.Provider == "" {
		s.Provider = defaults.Provider
	}
	if s.APIKey == "" && inheritKey {
		s.APIKey = defaults.APIKey
	}
	if s.BaseURL == "" {
		s.BaseURL = defaults.BaseURL
	}
	if s.Model == "" {
		s.Model = defaults.Model
	}
	return s
}

func sameProvider(p, def string) bool {
	p = strings.TrimSpace(p)
	return p == "" || strings.EqualFold(p, strings.TrimSpace(def))
}

func sameEndpoint(u, def string) bool {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	return u == "" || strings.EqualFold(u, strings.TrimRight(strings.TrimSpace(def), "/"))
}
