package prompt

// ResponseSchema is the structured-output schema for AnalysisResult (OpenAPI subset).
func ResponseSchema() map[string]any {
	str := map[string]any{"type": "STRING"}
	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"isAd":        map[string]any{"type": "BOOLEAN"},
			"productName": str,
			"violations": map[string]any{
				"type": "ARRAY",
				"items": map[string]any{
					"type": "OBJECT",
					"properties": map[string]any{
						"type":         str,
						"law":          str,
						"explanation":  str,
						"originalText": str,
					},
					"required": []string{"type", "law", "explanation", "originalText"},
				},
			},
			"summary":         str,
			"publicationDate": str,
			"isOldArticle":    map[string]any{"type": "BOOLEAN"},
		},
		"required": []string{"isAd", "productName", "violations", "summary"},
	}
}
