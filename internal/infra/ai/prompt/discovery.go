package prompt

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/adguardian/internal/domain/audit"
)

// Picker chooses an index in [0, n). *rand.Rand satisfies it.
type Picker interface {
	Intn(n int) int
}

var discoveryQueries = map[string][]string{
	audit.CategoryMedical: {
		`site:mp.weixin.qq.com "糖尿病" "彻底根治" after:2024-01-01`,
		`site:mp.weixin.qq.com "男性" "壮阳" "延时" after:2024-01-01`,
		`site:mp.weixin.qq.com "专家推荐" "治愈率" after:2024-01-01`,
	},
	audit.CategoryBeauty: {
		`site:mp.weixin.qq.com "医美" "0风险" after:2024-01-01`,
		`site:mp.weixin.qq.com "减肥" "不运动" "月瘦" after:2024-01-01`,
		`site:mp.weixin.qq.com "美白" "祛斑" "普通化妆品" after:2024-01-01`,
	},
	audit.CategoryFood: {
		`site:mp.weixin.qq.com "保健食品" "治疗" after:2024-01-01`,
		`site:mp.weixin.qq.com "长高" "增高" after:2024-01-01`,
		`site:mp.weixin.qq.com "降血糖" "食品" after:2024-01-01`,
	},
	audit.CategoryGeneral: {
		`site:mp.weixin.qq.com "销量第一" "唯一" after:2024-01-01`,
		`site:mp.weixin.qq.com "投资" "包赚" after:2024-01-01`,
		`site:mp.weixin.qq.com "保过" "包过" "培训" after:2024-01-01`,
	},
}

// Categories lists the supported discovery categories.
func Categories() []string {
	return []string{audit.CategoryMedical, audit.CategoryBeauty, audit.CategoryFood, audit.CategoryGeneral}
}

// DiscoveryQuery picks one search template for category. Unknown categories use GENERAL.
func DiscoveryQuery(category string, pick Picker) string {
	queries, ok := discoveryQueries[strings.ToUpper(strings.TrimSpace(category))]
	if !ok {
		queries = discoveryQueries[audit.CategoryGeneral]
	}
	i := 0
	if pick != nil && len(queries) > 1 {
		i = pick.Intn(len(queries))
	}
	return queries[i]
}

// DiscoveryMessage is the user text for a grounded search call.
func DiscoveryMessage(query string) string {
	return fmt.Sprintf("Use Google Search to find 5 recent WeChat articles for: %s. Focus on illegal ad claims.", query)
}
