package audit

import (
	"errors"
	"strings"
)

// Mode selects the framing of the user prompt.
type Mode string

const (
	ModeText Mode = "TEXT"
	ModeURL  Mode = "URL"
)

// MaxImages caps screenshots per request.
const MaxImages = 15

// FailureProductName marks a graceful-failure result. Such results are never stored in history.
const FailureProductName = "分析未完成（需人工复核）"

// UnknownDate is the sentinel the model uses when no publication date is visible.
const UnknownDate = "未知"

var (
	ErrEmptyRequest     = errors.New("request needs text or images (TEXT) or a source url (URL)")
	ErrTooManyImages    = errors.New("too many images")
	ErrInvalidMode      = errors.New("invalid mode")
	ErrEmptyName        = errors.New("name cannot be empty")
	ErrComplaineeExists = errors.New("complainee already in library")
	ErrEmptyMessage     = errors.New("message cannot be empty")
)

// AnalysisRequest is built per call at the API boundary. Images are base64 (raw or data URL).
type AnalysisRequest struct {
	Mode      Mode     `json:"mode"`
	Text      string   `json:"text"`
	Images    []string `json:"images"`
	SourceURL string   `json:"sourceUrl"`
}

// Validate rejects requests that must never reach the model.
func (r *AnalysisRequest) Validate() error {
	if r.Mode == "" {
		r.Mode = ModeText
	}
	if len(r.Images) > MaxImages {
		return ErrTooManyImages
	}
	switch r.Mode {
	case ModeText:
		if strings.TrimSpace(r.Text) == "" && len(r.Images) == 0 {
			return ErrEmptyRequest
		}
	case ModeURL:
		if strings.TrimSpace(r.SourceURL) == "" {
			return ErrEmptyRequest
		}
	default:
		return ErrInvalidMode
	}
	return nil
}

type Violation struct {
	Type         string `json:"type"`
	Law          string `json:"law"`
	Explanation  string `json:"explanation"`
	OriginalText string `json:"originalText"`
}

// AnalysisResult is the wire contract shared with the front end and persisted verbatim in history.
type AnalysisResult struct {
	IsAd            bool        `json:"isAd"`
	ProductName     string      `json:"productName"`
	Violations      []Violation `json:"violations"`
	Summary         string      `json:"summary"`
	PublicationDate string      `json:"publicationDate,omitempty"`
	IsOldArticle    *bool       `json:"isOldArticle,omitempty"`
	IsDuplicate     *bool       `json:"isDuplicate,omitempty"`
}

// IsFailure reports whether r is the graceful-failure sentinel.
func (r *AnalysisResult) IsFailure() bool {
	return r != nil && r.ProductName == FailureProductName
}

// Clone returns a deep copy.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Violations = append([]Violation(nil), r.Violations...)
	if r.IsOldArticle != nil {
		v := *r.IsOldArticle
		c.IsOldArticle = &v
	}
	if r.IsDuplicate != nil {
		v := *r.IsDuplicate
		c.IsDuplicate = &v
	}
	return &c
}

// FailureResult builds the graceful-failure result, with cause shown to the reviewer.
func FailureResult(cause string) *AnalysisResult {
	if strings.TrimSpace(cause) == "" {
		cause = "未知错误"
	}
	old := false
	return &AnalysisResult{
		IsAd:        true,
		ProductName: FailureProductName,
		Violations: []Violation{{
			Type:         "系统错误",
			Law:          "无",
			Explanation:  "自动审核未能完成: " + cause,
			OriginalText: "无",
		}},
		Summary:         "系统未能自动生成合规报告，请人工复核原始材料。\n原因: " + cause + "\n建议: 检查材料是否清晰完整后重新提交，或直接人工撰写举报文案。",
		PublicationDate: UnknownDate,
		IsOldArticle:    &old,
	}
}

// HistoryItem wraps a result for the bounded history list.
type HistoryItem struct {
	ID          string          `json:"id"`
	Timestamp   int64           `json:"timestamp"`
	ProductName string          `json:"productName"`
	Summary     string          `json:"summary"`
	Result      *AnalysisResult `json:"result"`
	Evidence    []string        `json:"evidence,omitempty"`
}

type ChatRole string

const (
	ChatUser  ChatRole = "user"
	ChatModel ChatRole = "model"
)

type ChatMessage struct {
	Role      ChatRole `json:"role"`
	Text      string   `json:"text"`
	Timestamp int64    `json:"timestamp"`
}

// Complainee is an entity the user already filed against.
type Complainee struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	AddedAt int64  `json:"addedAt"`
	Note    string `json:"note,omitempty"`
}

// DiscoveryItem is a lead taken from search citations.
type DiscoveryItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Source  string `json:"source"`
	Snippet string `json:"snippet,omitempty"`
}

// Category keys for discovery.
const (
	CategoryMedical = "MEDICAL"
	CategoryBeauty  = "BEAUTY"
	CategoryFood    = "FOOD"
	CategoryGeneral = "GENERAL"
)
