package audit

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Summary length band, counted in non-space characters.
const (
	SummaryMinChars = 350
	SummaryMaxChars = 400
)

// Sections every complaint document carries, in order.
var Sections = []string{"违法事实", "法律依据", "数据证据", "投诉请求"}

// Quality flags formatting defects in a summary. It is advisory only.
type Quality struct {
	Chars           int      `json:"chars"`
	WithinBand      bool     `json:"withinBand"`
	MissingSections []string `json:"missingSections,omitempty"`
	ClosingRequests bool     `json:"closingRequests"`
}

// OK is true when nothing needs a warning.
func (q Quality) OK() bool {
	return q.WithinBand && len(q.MissingSections) == 0 && q.ClosingRequests
}

// Inspect measures summary against the complaint template.
func Inspect(summary string) Quality {
	q := Quality{Chars: CountChars(summary)}
	q.WithinBand = q.Chars >= SummaryMinChars && q.Chars <= SummaryMaxChars
	for _, s := range Sections {
		if !strings.Contains(summary, s) {
			q.MissingSections = append(q.MissingSections, s)
		}
	}
	q.ClosingRequests = hasClosingRequests(summary)
	return q
}

// CountChars counts runes that are not whitespace.
func CountChars(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func hasClosingRequests(summary string) bool {
	idx := strings.Index(summary, "投诉请求")
	if idx < 0 {
		return false
	}
	tail := summary[idx:]
	for i := 1; i <= 3; i++ {
		n := strconv.Itoa(i)
		if !strings.Contains(tail, n+".") && !strings.Contains(tail, n+"、") {
			return false
		}
	}
	return true
}

var dateLayouts = []string{
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
	"2006年1月2日",
	"2006-1",
	"2006/1",
	"2006年1月",
}

// ParseDate accepts the date shapes the model tends to emit.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == UnknownDate {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsStale reports whether publicationDate is more than six months before now.
// ok is false when the date cannot be parsed.
func IsStale(publicationDate string, now time.Time) (stale bool, ok bool) {
	t, ok := ParseDate(publicationDate)
	if !ok {
		return false, false
	}
	return t.AddDate(0, 6, 0).Before(now), true
}
