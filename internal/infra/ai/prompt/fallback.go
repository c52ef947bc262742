package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/adguardian/internal/domain/audit"
)

var extractionInstruction = fmt.Sprintf(`You are a text extraction tool. Read the supplied text and images and copy what is visibly there into one JSON object.
Do not give opinions. Fill the fields as follows:
- isAd: true if the material promotes a product or service for sale.
- productName: the product, shop or company name as written.
- violations: one entry per promotional claim you can quote, with "type" = "待人工复核", "law" = "待人工复核", "explanation" = a neutral description, "originalText" = the exact quote ("图片内容" if it is only in an image).
- summary: a plain neutral description of the material, no markdown.
- publicationDate: the visible date, or "%s".
- isOldArticle: false unless a visible date is older than six months.
Output only the JSON object, no code fences:
%s`, audit.UnknownDate, ResultShape)

// ExtractionInstruction is the degraded prompt used after the auditor prompt was refused or unparseable.
func ExtractionInstruction() string { return extractionInstruction }

// ExtractionMessage is the user text paired with ExtractionInstruction.
func ExtractionMessage(req audit.AnalysisRequest, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: Extract fields (Date: %s)\n", now.Format("2006/1/2"))
	if src := strings.TrimSpace(req.SourceURL); src != "" {
		fmt.Fprintf(&b, "[Source URL]: %s\n", src)
	}
	if text := strings.TrimSpace(req.Text); text != "" {
		fmt.Fprintf(&b, "[Text]:\n%s\n", text)
	} else {
		b.WriteString("[Text]: (read the images)\n")
	}
	return b.String()
}

// BuildExtraction renders the degraded prompt with the same images.
func BuildExtraction(req audit.AnalysisRequest, now time.Time) (*Prompt, error) {
	parts, err := UserParts(ExtractionMessage(req, now), req.Images)
	if err != nil {
		return nil, err
	}
	return &Prompt{System: ExtractionInstruction(), Parts: parts}, nil
}
