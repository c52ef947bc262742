package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/bryanwahyu/adguardian/internal/domain/ai"
)

const (
	maxTokens    = 2048
	DefaultModel = "gpt-4o-mini"
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Limiter *rate.Limiter
}

// Client talks to any OpenAI-compatible chat completions endpoint.
type Client struct {
	*openai.Client
	Model   string
	apiKey  string
	limiter *rate.Limiter
}

var _ ai.Client = (*Client)(nil)

func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		oc.BaseURL = base
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		Client:  openai.NewClientWithConfig(oc),
		Model:   model,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		limiter: cfg.Limiter,
	}
}

func (c *Client) HasCredential() bool { return c.apiKey != "" }

func (c *Client) Generate(ctx context.Context, in *ai.Request) (*ai.Response, error) {
	if !c.HasCredential() {
		return nil, ai.ErrMissingCredential
	}
	model := in.Model
	if model == "" {
		model = c.Model
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: in.Temperature,
		Messages:    buildMessages(in),
	}
	if in.JSON && !in.Search {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
		req.Temperature = 0
	} else {
		req.MaxTokens = maxTokens
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, ai.NewError(ai.KindNetwork, 0, "rate limiter wait", err)
		}
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classify(err)
	}

	out := &ai.Response{}
	for i, ch := range resp.Choices {
		out.Candidates = append(out.Candidates, ai.Candidate{Text: ch.Message.Content, FinishReason: string(ch.FinishReason)})
		if i == 0 {
			out.Text = ch.Message.Content
		}
	}
	if strings.TrimSpace(out.FirstText()) == "" {
		reason := "no choices"
		if len(resp.Choices) > 0 {
			reason = string(resp.Choices[0].FinishReason)
		}
		return nil, ai.NewError(ai.KindBlocked, http.StatusOK, "empty or filtered response: "+reason, ai.ErrEmptyResponse)
	}
	return out, nil
}

func buildMessages(in *ai.Request) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(in.Messages)+1)
	if in.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: in.System})
	}
	for _, m := range in.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == ai.RoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		if !hasImage(m.Parts) {
			var sb strings.Builder
			for _, p := range m.Parts {
				sb.WriteString(p.Text)
			}
			msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: sb.String()})
			continue
		}
		parts := make([]openai.ChatMessagePart, 0, len(m.Parts))
		for _, p := range m.Parts {
			if p.IsImage() {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data),
						Detail: openai.ImageURLDetailAuto,
					},
				})
				continue
			}
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, MultiContent: parts})
	}
	return msgs
}

func hasImage(parts []ai.Part) bool {
	for _, p := range parts {
		if p.IsImage() {
			return true
		}
	}
	return false
}

// classify maps go-openai errors onto ai kinds.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ai.NewError(ai.KindForStatus(apiErr.HTTPStatusCode), apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ai.NewError(ai.KindForStatus(reqErr.HTTPStatusCode), reqErr.HTTPStatusCode, "chat completion failed", err)
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return ai.NewError(ai.KindNetwork, 0, "chat completion request failed", err)
	}
	return ai.NewError(ai.KindOther, 0, "chat completion failed", err)
}
