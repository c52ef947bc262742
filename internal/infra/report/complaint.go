package report

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	domain "github.com/bryanwahyu/adguardian/internal/domain/audit"
)

// FontEnv overrides the CJK font lookup.
const FontEnv = "ADGUARD_PDF_FONT"

// Renderer writes a stored audit as a printable complaint PDF.
type Renderer struct {
	// FontPath is tried before FontEnv and the system font locations.
	FontPath string
	Now      func() time.Time
}

func NewRenderer(fontPath string) *Renderer {
	return &Renderer{FontPath: fontPath, Now: time.Now}
}

// Render implements audit.ComplaintRenderer.
func (r *Renderer) Render(item *domain.HistoryItem) ([]byte, error) {
	if item == nil || item.Result == nil {
		return nil, fmt.Errorf("history item has no result")
	}
	res := item.Result
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(16, 16, 16)
	pdf.SetAutoPageBreak(true, 16)
	pdf.SetTitle("Complaint - "+item.ID, false)

	family, utf8OK := r.loadFont(pdf)
	pdf.AddPage()

	pdf.SetFont(family, "B", 16)
	pdf.CellFormat(0, 10, safeText("广告违法线索举报材料", utf8OK), "", 1, "C", false, 0, "")
	pdf.SetFont(family, "", 9)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 5, fmt.Sprintf("ID: %s  |  %s", item.ID, fmtMillis(item.Timestamp)), "", 1, "C", false, 0, "")
	pdf.Ln(3)

	sectionTitle(pdf, family, safeText("基本信息", utf8OK))
	kv(pdf, family, utf8OK, "被举报对象", res.ProductName)
	kv(pdf, family, utf8OK, "是否广告", yesNo(res.IsAd))
	kv(pdf, family, utf8OK, "发布日期", res.PublicationDate)
	if res.IsOldArticle != nil && *res.IsOldArticle {
		kv(pdf, family, utf8OK, "时效提示", "发布时间超过六个月")
	}
	if res.IsDuplicate != nil && *res.IsDuplicate {
		kv(pdf, family, utf8OK, "重复提示", "该主体已在举报库中")
	}
	pdf.Ln(2)

	sectionTitle(pdf, family, safeText("违规明细", utf8OK))
	if len(res.Violations) == 0 {
		kv(pdf, family, utf8OK, "违规项", "无")
	}
	for i, v := range res.Violations {
		pdf.SetFont(family, "B", 10)
		pdf.SetTextColor(0, 0, 0)
		pdf.MultiCell(0, 5.5, safeText(fmt.Sprintf("%d. %s", i+1, v.Type), utf8OK), "", "L", false)
		kv(pdf, family, utf8OK, "法律依据", v.Law)
		kv(pdf, family, utf8OK, "说明", v.Explanation)
		kv(pdf, family, utf8OK, "原文", v.OriginalText)
		pdf.Ln(1)
	}
	pdf.Ln(2)

	sectionTitle(pdf, family, safeText("举报正文", utf8OK))
	pdf.SetFont(family, "", 10.5)
	pdf.SetTextColor(20, 20, 20)
	for _, para := range strings.Split(res.Summary, "\n") {
		if strings.TrimSpace(para) == "" {
			pdf.Ln(2)
			continue
		}
		pdf.MultiCell(0, 6, safeText(para, utf8OK), "", "L", false)
	}

	if len(item.Evidence) > 0 {
		pdf.Ln(2)
		sectionTitle(pdf, family, safeText("证据截图", utf8OK))
		pdf.SetFont(family, "", 9)
		for _, u := range item.Evidence {
			pdf.MultiCell(0, 5, safeText(u, utf8OK), "", "L", false)
		}
	}

	pdf.SetY(-20)
	pdf.SetFont(family, "", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s", now().Format("2006-01-02 15:04:05")), "", 0, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func sectionTitle(pdf *gofpdf.Fpdf, family, title string) {
	pdf.SetFont(family, "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(pdf.GetX(), pdf.GetY(), 194, pdf.GetY())
	pdf.Ln(2)
}

func kv(pdf *gofpdf.Fpdf, family string, utf8OK bool, key, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	pdf.SetFont(family, "B", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(28, 5.5, safeText(key, utf8OK)+":", "", 0, "L", false, 0, "")
	pdf.SetFont(family, "", 10)
	pdf.SetTextColor(20, 20, 20)
	pdf.MultiCell(0, 5.5, safeText(value, utf8OK), "", "L", false)
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}

func fmtMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

// safeText flattens whitespace and, without a UTF-8 font, replaces non-ASCII runes with '?'
// so the core Helvetica font can still render the page.
func safeText(s string, utf8OK bool) string {
	s = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(s)
	s = strings.TrimSpace(s)
	if utf8OK {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r <= 126 {
			b.WriteRune(r)
		} else {
			b.WriteRune('?')
		}
	}
	return b.String()
}

// loadFont registers the first usable CJK TrueType font, else falls back to Helvetica.
func (r *Renderer) loadFont(pdf *gofpdf.Fpdf) (family string, utf8OK bool) {
	const familyName = "cjk"
	var candidates []string
	if p := strings.TrimSpace(r.FontPath); p != "" {
		candidates = append(candidates, p)
	}
	if v := strings.TrimSpace(os.Getenv(FontEnv)); v != "" {
		candidates = append(candidates, v)
	}
	switch runtime.GOOS {
	case "darwin":
		candidates = append(candidates,
			"/System/Library/Fonts/Supplemental/Arial Unicode.ttf",
			"/Library/Fonts/Arial Unicode.ttf",
		)
	case "windows":
		candidates = append(candidates,
			`C:\Windows\Fonts\simhei.ttf`,
			`C:\Windows\Fonts\arialuni.ttf`,
		)
	default:
		candidates = append(candidates,
			"/usr/share/fonts/truetype/wqy/wqy-microhei.ttf",
			"/usr/share/fonts/truetype/droid/DroidSansFallbackFull.ttf",
			"/usr/share/fonts/truetype/arphic/uming.ttf",
		)
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		pdf.AddUTF8Font(familyName, "", p)
		if pdf.Err() {
			pdf.ClearError()
			continue
		}
		pdf.AddUTF8Font(familyName, "B", p)
		if pdf.Err() {
			pdf.ClearError()
		}
		return familyName, true
	}
	return "Helvetica", false
}
