package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bryanwahyu/adguardian/internal/domain/ai"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.5-flash"
	apiVersion     = "v1beta"
	defaultTimeout = 90 * time.Second
	maxErrorBody   = 4 << 10
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// Limiter paces outbound calls when set.
	Limiter    *rate.Limiter
	HTTPClient *http.Client
}

// Client calls the Gemini generateContent REST endpoint. One request per Generate.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	limiter    *rate.Limiter
	httpClient *http.Client
}

var _ ai.Client = (*Client)(nil)

func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    base,
		model:      model,
		limiter:    cfg.Limiter,
		httpClient: hc,
	}
}

func (c *Client) HasCredential() bool { return c.apiKey != "" }

func (c *Client) endpoint(model string) string {
	base := c.baseURL
	// a proxy base may already carry the version segment
	if !strings.HasSuffix(base, "/"+apiVersion) {
		base += "/" + apiVersion
	}
	return fmt.Sprintf("%s/models/%s:generateContent", base, model)
}

func (c *Client) Generate(ctx context.Context, req *ai.Request) (*ai.Response, error) {
	if !c.HasCredential() {
		return nil, ai.ErrMissingCredential
	}
	model := req.Model
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, ai.NewError(ai.KindNetwork, 0, "rate limiter wait", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(model), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, ai.NewError(ai.KindNetwork, 0, "gemini request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, ai.NewError(ai.KindOther, resp.StatusCode, "decode gemini response", err)
	}
	return convertResponse(&gr)
}

func buildRequest(req *ai.Request) *generateRequest {
	gr := &generateRequest{
		GenerationConfig: generationConfig{Temperature: req.Temperature},
		SafetySettings:   relaxedSafety,
	}
	if req.System != "" {
		gr.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		c := content{Role: string(m.Role)}
		if c.Role == "" {
			c.Role = string(ai.RoleUser)
		}
		for _, p := range m.Parts {
			if p.IsImage() {
				c.Parts = append(c.Parts, part{InlineData: &inlineData{
					MimeType: p.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(p.Data),
				}})
				continue
			}
			c.Parts = append(c.Parts, part{Text: p.Text})
		}
		gr.Contents = append(gr.Contents, c)
	}
	if req.Search {
		// structured output is not accepted together with the search tool
		gr.Tools = []tool{{GoogleSearch: &struct{}{}}}
	} else if req.JSON {
		gr.GenerationConfig.ResponseMimeType = "application/json"
		gr.GenerationConfig.ResponseSchema = req.Schema
	}
	return gr
}

func convertResponse(gr *generateResponse) (*ai.Response, error) {
	out := &ai.Response{}
	if gr.PromptFeedback != nil {
		out.BlockReason = gr.PromptFeedback.BlockReason
	}
	for i, cand := range gr.Candidates {
		var sb strings.Builder
		if cand.Content != nil {
			for _, p := range cand.Content.Parts {
				sb.WriteString(p.Text)
			}
		}
		out.Candidates = append(out.Candidates, ai.Candidate{Text: sb.String(), FinishReason: cand.FinishReason})
		if i == 0 {
			out.Text = sb.String()
			if cand.GroundingMetadata != nil {
				for _, ch := range cand.GroundingMetadata.GroundingChunks {
					if ch.Web != nil && ch.Web.URI != "" {
						out.Citations = append(out.Citations, ai.Citation{Title: ch.Web.Title, URI: ch.Web.URI})
					}
				}
			}
		}
	}

	if strings.TrimSpace(out.FirstText()) == "" && len(out.Citations) == 0 {
		reason := out.BlockReason
		if reason == "" && len(out.Candidates) > 0 {
			reason = out.Candidates[0].FinishReason
		}
		if reason == "" {
			reason = "no candidates"
		}
		return nil, ai.NewError(ai.KindBlocked, http.StatusOK, "empty or blocked response: "+reason, ai.ErrEmptyResponse)
	}
	return out, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	kind := ai.KindForStatus(resp.StatusCode)
	msg := strings.TrimSpace(string(raw))

	var ae apiError
	if json.Unmarshal(raw, &ae) == nil && ae.Error.Message != "" {
		msg = ae.Error.Message
		// Gemini reports a bad key as 400 INVALID_ARGUMENT with reason API_KEY_INVALID
		for _, d := range ae.Error.Details {
			if d.Reason == "API_KEY_INVALID" {
				kind = ai.KindAuth
			}
		}
		if ae.Error.Status == "RESOURCE_EXHAUSTED" {
			kind = ai.KindRateLimited
		}
	}
	return ai.NewError(kind, resp.StatusCode, msg, nil)
}
