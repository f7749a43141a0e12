package analyzer

import (
	"regexp"
	"strings"
)

var (
	hangulRE        = regexp.MustCompile(`[가-힣]`)
	sentenceSplitRE = regexp.MustCompile(`[.!?\n]`)
)

// ContainsHangul reports whether s has at least one Hangul syllable.
func ContainsHangul(s string) bool {
	return hangulRE.MatchString(s)
}

const fallbackTechCategory = "기타"

type categoryRule struct {
	category string
	keywords []string
}

// Ordered: the first rule with a keyword hit wins.
var techCategoryRules = []categoryRule{
	{"AI", []string{"ai", "llm", "agent", "model", "인공지능", "생성형", "gemini", "gpt"}},
	{"반도체", []string{"반도체", "chip", "gpu", "npu", "hbm", "fab", "wafer"}},
	{"모바일", []string{"mobile", "모바일", "smartphone", "스마트폰", "android", "ios", "app"}},
	{"클라우드", []string{"cloud", "클라우드", "aws", "azure", "gcp", "saas"}},
	{"네트워크", []string{"network", "네트워크", "5g", "통신", "telecom"}},
}

// fallbackCategory classifies text by keyword when no model answer is
// available.
func fallbackCategory(text string) string {
	lowered := strings.ToLower(text)
	for _, rule := range techCategoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return rule.category
			}
		}
	}
	return fallbackTechCategory
}

// fallbackSummary builds a crude extract from the first few sentences.
func fallbackSummary(text string) string {
	var chunks []string
	for _, chunk := range sentenceSplitRE.Split(text, -1) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		chunks = append(chunks, chunk)
		if len(chunks) == 3 {
			break
		}
	}
	if len(chunks) == 0 {
		return "내용 없음"
	}
	joined := strings.Join(chunks, " / ")
	if runes := []rune(joined); len(runes) > 500 {
		return string(runes[:500])
	}
	return joined
}
