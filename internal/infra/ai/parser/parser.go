package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bryanwahyu/adguardian/internal/domain/audit"
)

var (
	ErrNoJSON       = errors.New("no json object in model output")
	ErrMalformed    = errors.New("malformed json in model output")
	ErrMissingField = errors.New("required field missing in model output")
)

const maxFenceLayers = 2

// raw mirrors AnalysisResult with pointers so absent fields can be told apart from zero values.
type raw struct {
	IsAd            *bool             `json:"isAd"`
	ProductName     *string           `json:"productName"`
	Violations      []audit.Violation `json:"violations"`
	Summary         *string           `json:"summary"`
	PublicationDate *string           `json:"publicationDate"`
	IsOldArticle    *bool             `json:"isOldArticle"`
}

// Parse turns model text into an AnalysisResult. It never panics; every failure is an error
// the caller can feed into its fallback chain.
func Parse(text string) (*audit.AnalysisResult, error) {
	payload, err := Extract(text)
	if err != nil {
		return nil, err
	}

	var r raw
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch {
	case r.IsAd == nil:
		return nil, fmt.Errorf("%w: isAd", ErrMissingField)
	case r.ProductName == nil:
		return nil, fmt.Errorf("%w: productName", ErrMissingField)
	case r.Summary == nil:
		return nil, fmt.Errorf("%w: summary", ErrMissingField)
	}

	out := &audit.AnalysisResult{
		IsAd:         *r.IsAd,
		ProductName:  strings.TrimSpace(*r.ProductName),
		Violations:   r.Violations,
		Summary:      strings.TrimSpace(*r.Summary),
		IsOldArticle: r.IsOldArticle,
	}
	if out.Violations == nil {
		out.Violations = []audit.Violation{}
	}
	if r.PublicationDate != nil {
		out.PublicationDate = strings.TrimSpace(*r.PublicationDate)
	}
	return out, nil
}

// Extract strips code fences and returns the span from the first '{' to the last '}'.
func Extract(text string) (string, error) {
	s := strings.TrimSpace(text)
	for i := 0; i < maxFenceLayers; i++ {
		unfenced, ok := stripFence(s)
		if !ok {
			break
		}
		s = unfenced
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}

// stripFence removes one leading ```lang line and one trailing ``` if present.
func stripFence(s string) (string, bool) {
	changed := false
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// drop the language tag, e.g. "json"
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.Contains(s[:nl], "{") {
			s = s[nl+1:]
		} else {
			s = strings.TrimLeft(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
		}
		changed = true
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		changed = true
	}
	return strings.TrimSpace(s), changed
}
