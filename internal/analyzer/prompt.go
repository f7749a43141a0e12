package analyzer

import (
	"fmt"
	"strings"
)

// buildSummaryPrompt asks for a Korean briefing of one post as strict JSON.
func buildSummaryPrompt(text string) string {
	var sb strings.Builder

	sb.WriteString("다음 SNS 게시글을 분석하세요. 반드시 모든 필드는 한국어로 작성하세요.\\n")
	sb.WriteString("1) headline: 핵심 제목 1문장(한국어)\\n")
	sb.WriteString("2) detail: 근거/맥락 1문장(한국어)\\n")
	sb.WriteString("3) summary: headline과 detail을 합친 요약(한국어)\\n")
	sb.WriteString("4) tech_category: 다음 중 1개 선택 (AI, 반도체, 모바일, 클라우드, 네트워크, 기타)\\n")
	sb.WriteString("JSON만 반환하세요. 스키마: ")
	sb.WriteString(`{"headline":"...","detail":"...","summary":"...","tech_category":"..."}`)
	sb.WriteString("\\n\\n")
	sb.WriteString(fmt.Sprintf("[원문]\\n%s", text))

	return sb.String()
}

// buildTranslatePrompt asks for a bare one-sentence Korean translation.
func buildTranslatePrompt(text string) string {
	return fmt.Sprintf(
		"다음 문장을 자연스러운 한국어 한 문장으로 번역하세요. 설명 없이 번역문만 출력하세요.\\n문장: %s",
		text,
	)
}
