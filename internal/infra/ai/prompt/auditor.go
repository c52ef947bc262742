package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/adguardian/internal/domain/ai"
	"github.com/bryanwahyu/adguardian/internal/domain/audit"
)

// Template is the complaint document layout. The three closing requests are fixed text.
const Template = `该企业在[平台名称]店铺销售商品“[商品名称]”（商品链接/路径：[URL]），其宣传内容涉嫌违反《中华人民共和国广告法》。
违法事实：[直接陈述违规事实，例如：该商品实际属性为普通食品，但广告中宣称具有“降血糖”等治疗功效；或：该商品为处方药，违规在网络发布]。广告内容误导消费者，涉嫌虚假宣传。
法律依据：上述行为涉嫌违反《中华人民共和国广告法》第[XX]条（[简要概括法条内容]）、第二十八条之规定。
数据证据：页面显示，该商品[销量/评价数量/浏览量等数据]，[传播影响，如：存在一定传播范围]。

投诉请求：
1. 请监管部门联系本人、涉事企业三方，协调配合处理此事；
2. 鉴于涉案广告通过互联网公开发布，且存在欺诈嫌疑，涉及人民群众生命健康财产安全，恳请贵局严格依法履职，予以立案查处，并在法定时限内告知结果；
3. 请依法落实相关投诉奖励事项。`

// ResultShape is the JSON shape every audit or extraction answer must follow.
const ResultShape = `{ "isAd": boolean, "productName": string, "violations": [{ "type": string, "law": string, "explanation": string, "originalText": string }], "summary": string, "publicationDate": string, "isOldArticle": boolean }`

var systemInstruction = fmt.Sprintf(`【指令：中国广告法合规监管系统】
你是“中国广告合规校验专家”。依据《中华人民共和国广告法》《互联网广告管理办法》《药品管理法》《医疗器械监督管理条例》《化妆品监督管理条例》《医疗广告管理办法》等法规，生成专业的合规监测报告（监管举报/存档专用）。

核心原则：
1. 客观陈述：直接描述页面内容和违规事实（如“该商品详情页展示了……”）。禁止使用“经查”“已核实”“监测发现”等措辞。
2. 结构严格匹配：summary 必须严格套用下文模板，包括投诉请求的三个固定条款，不得增删。
3. 篇幅：summary 字数控制在 %d 至 %d 字之间。
4. 纯文本：summary 及所有字段禁止使用 Markdown 修饰（不得出现 **、#、-、反引号等符号），换行使用 \n。

违法情节比对（必须逐项执行）：
第一维度 禁止/限制发布类
1. 处方药（Rx）：禁止在大众传播媒介发布广告（《广告法》第十五条）。
2. 母乳代用品：禁止发布0-12个月婴儿配方乳制品广告（《广告法》第二十条）。
3. 烟草：禁止在互联网发布烟草广告（《广告法》第二十二条）。
第二维度 资质与程序
4. “三品一械”（药品、医疗器械、保健食品、特殊医学用途配方食品）：须经审查并取得广告审查批准文号（如“X药广审(文)第X号”）。页面未显著展示广审号的，判定涉嫌未经审查发布广告（《广告法》第四十六条）。
第三维度 内容宣传边界
5. 普通食品/普通化妆品/消毒产品：禁止宣称疾病预防、治疗功能，禁止使用医疗用语（如“消炎”“活血”“治愈”“抗病毒”“降血糖”）（《广告法》第十七条）。
6. 化妆品分类：仅染发、烫发、祛斑美白、防晒、防脱发及新功效属于特殊化妆品，须持有“国妆特字”批件；普通化妆品宣称美白、祛斑、生发、防晒等特殊功效的，构成虚假宣传。
7. 保健食品（蓝帽子）：须显著标明“本品不能代替药物”，禁止声称预防、治疗疾病（《广告法》第十八条）。
8. 医疗、药品、医疗器械：禁止断言功效或治愈率（“根治”“100%%有效”），禁止利用患者、医生、专家、科研机构形象作推荐证明（《广告法》第十六条）。医疗机构以健康科普、专家访谈等形式变相发布医疗广告的，同样适用。
9. 教育培训：禁止对升学、通过考试、获得证书作保证性承诺（《广告法》第二十四条）。
10. 投资理财：禁止对未来收益作保证性承诺，如“保本”“无风险”“包赚”（《广告法》第二十五条）。

监管举报/存档文案模板（summary 字段）：
%s

若内容不是商业广告，isAd 为 false，violations 为空数组，summary 简要说明理由。
publicationDate 填写页面可见的发布日期，无法判断时填“%s”。isOldArticle 表示发布日期是否早于当前日期六个月以上。

输出要求：只输出一个合法 JSON 对象，不要代码块，不要任何解释文字。结构：
%s`, audit.SummaryMinChars, audit.SummaryMaxChars, Template, audit.UnknownDate, ResultShape)

// SystemInstruction returns the fixed auditor ruleset.
func SystemInstruction() string { return systemInstruction }

// UserMessage renders the per-request task text.
func UserMessage(req audit.AnalysisRequest, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: Regulatory Compliance Audit (Date: %s)\n", now.Format("2006/1/2"))

	text := strings.TrimSpace(req.Text)
	switch req.Mode {
	case audit.ModeURL:
		b.WriteString("[Mode]: URL\n")
		fmt.Fprintf(&b, "[Source URL]: %s\n", strings.TrimSpace(req.SourceURL))
		if text != "" {
			fmt.Fprintf(&b, "[Page Text]:\n%s\n\n", text)
		} else {
			b.WriteString("[Page Text]: (not captured, judge from the URL and any images)\n\n")
		}
	default:
		if text != "" {
			fmt.Fprintf(&b, "[Content Text]:\n%s\n\n", text)
		} else {
			b.WriteString("[Content Text]: (Analyze images)\n\n")
		}
		if src := strings.TrimSpace(req.SourceURL); src != "" {
			fmt.Fprintf(&b, "[Source URL]: %s\n", src)
		}
	}
	if n := len(req.Images); n > 0 {
		fmt.Fprintf(&b, "[Screenshots]: %d attached, in order.\n", n)
	}

	fmt.Fprintf(&b, `
CRITICAL CHECKLIST:
1. Identify Category: Drug (Rx/OTC)? Medical device? Medical service? Health food (blue hat)? Ordinary food? Special or ordinary cosmetic? Education? Finance?
2. Check Restrictions:
   - Rx drug: banned on mass media. Flag immediately.
   - Ad review number: missing "广审号" for drugs/devices/health food/FSMP? Flag under Article 46.
3. Check Claims:
   - Ordinary food or cosmetic claiming to treat disease -> Article 17.
   - Health food without "本品不能代替药物" or claiming treatment -> Article 18.
   - Cure rates, patient or expert endorsement -> Article 16.
   - "Guaranteed pass" -> Article 24. "Risk-free"/"保本" -> Article 25.
4. Report Format: follow the template exactly: intro -> 违法事实 -> 法律依据 -> 数据证据 -> 投诉请求(1,2,3).
5. Output: one valid JSON object. Summary between %d and %d characters. No "监测发现" or "经查". No markdown.
`, audit.SummaryMinChars, audit.SummaryMaxChars)
	return b.String()
}

// Prompt is a rendered system instruction plus ordered user parts.
type Prompt struct {
	System string
	Parts  []ai.Part
}

// Build renders the auditor prompt. The user text comes first, then images in input order.
func Build(req audit.AnalysisRequest, now time.Time) (*Prompt, error) {
	parts, err := UserParts(UserMessage(req, now), req.Images)
	if err != nil {
		return nil, err
	}
	return &Prompt{System: SystemInstruction(), Parts: parts}, nil
}

// UserParts prepends text to the decoded images.
func UserParts(text string, images []string) ([]ai.Part, error) {
	parts := make([]ai.Part, 0, len(images)+1)
	parts = append(parts, ai.Part{Text: text})
	for i, img := range images {
		p, err := DecodeImage(img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i+1, err)
		}
		parts = append(parts, p)
	}
	return parts, nil
}
