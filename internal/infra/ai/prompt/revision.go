package prompt

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/adguardian/internal/domain/audit"
)

// RevisionInstruction anchors a correction dialogue on a previous finding.
func RevisionInstruction(anchor *audit.AnalysisResult) string {
	var b strings.Builder
	b.WriteString("你是“中国广告合规校验专家”，正在与用户复核一份已生成的合规监测报告。\n\n")
	b.WriteString("【原始结论】\n")
	if anchor == nil {
		b.WriteString("（无原始结论，请根据用户提供的材料重新撰写）\n")
	} else {
		fmt.Fprintf(&b, "商品/主体：%s\n", anchor.ProductName)
		fmt.Fprintf(&b, "是否广告：%t\n", anchor.IsAd)
		if len(anchor.Violations) == 0 {
			b.WriteString("违规项：无\n")
		}
		for i, v := range anchor.Violations {
			fmt.Fprintf(&b, "违规项%d：%s｜%s｜%s｜原文：%s\n", i+1, v.Type, v.Law, v.Explanation, v.OriginalText)
		}
		fmt.Fprintf(&b, "原报告：\n%s\n", anchor.Summary)
	}

	fmt.Fprintf(&b, `
【复核规则】
1. 用户可能指出错误或补充新证据。采纳有依据的更正，对没有依据的质疑说明理由。
2. 每次回复必须给出一份完整的修订版报告，而不是修改说明或差异列表。
3. 修订版报告严格套用以下模板，投诉请求三个条款原文保留：
%s
4. 报告字数控制在 %d 至 %d 字之间。
5. 纯文本输出，禁止 Markdown 修饰。禁止使用“经查”“已核实”“监测发现”等措辞。
`, Template, audit.SummaryMinChars, audit.SummaryMaxChars)
	return b.String()
}
