// Package pipeline implements the four-stage evaluation flow: mask a case
// document, generate law-reasoning questions, answer each question with
// the candidate model, and score each answer against the judge decision.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/caseval/caseval/internal/domain"
)

// Prompts follow the original Chinese legal-case rubric. Monetary amounts
// survive masking because they are the substance of most judgments.

const maskingSystemPrompt = "你是一位法律数据脱敏专家，擅长在保留案件逻辑结构的前提下隐藏个人敏感信息。"

func buildMaskingPrompt(text string) string {
	return fmt.Sprintf(`请对以下法律案例文本进行脱敏处理，要求：
1. 将所有真实人名替换为"某"或"某男"/"某女"（保留性别信息），并用某男1、某男2区分不同的人
2. 将所有地名（省、市、县、街道、具体地址）替换为"某省"、"某市"、"某县"、"某路"、"某地址"等
3. 将所有时间（年份、日期、具体时间）替换为"某年"、"某月"、"某日"等
4. 将所有案件编号和文档编号替换为"（某年）某号"、"某字〔某年〕某号"
5. 将身份证号、电话号码等敏感信息替换为"XXX"，网址直接删除
6. 金额、财产数额、赔偿金额、抚养费、诉讼费等数字金额必须完整保留
7. 尽最大可能保留法律术语和案件逻辑结构不变
8. 只输出脱敏后的文本，不要添加任何说明或注释

原始文本：
%s

脱敏后的文本：`, text)
}

// cleanMaskedText strips the label echoes some models prepend or append
// despite the output-only instruction.
func cleanMaskedText(content string) string {
	if idx := strings.Index(content, "脱敏后的文本："); idx >= 0 {
		content = content[idx+len("脱敏后的文本："):]
	}
	if idx := strings.Index(content, "原始文本"); idx >= 0 {
		content = content[:idx]
	}
	return strings.TrimSpace(content)
}

const questionSystemPrompt = "你是一位法律教育专家，擅长基于案例生成侧重法律分析和价值判断的法律争议问题。"

func buildQuestionsPrompt(maskedText string, numQuestions int) string {
	return fmt.Sprintf(`请根据本案文本中的争议焦点、裁判理由与法律法条原理，提炼并输出%d个可供法律AI回答的法律争议问题，偏向法律分析和价值判断，不要事实问题。

案例内容：
%s

请生成%d个问题，每个问题一行。只输出问题，不要编号或其他说明。`, numQuestions, maskedText, numQuestions)
}

// parseQuestions splits model output into at most limit questions, one per
// line, stripping the numbering prefixes models add despite instructions.
func parseQuestions(caseID, content string, limit int) []domain.Question {
	questions := make([]domain.Question, 0, limit)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = stripNumbering(line)
		if line == "" {
			continue
		}
		questions = append(questions, domain.Question{
			CaseID: caseID,
			Index:  len(questions) + 1,
			Text:   line,
		})
		if len(questions) == limit {
			break
		}
	}
	return questions
}

// stripNumbering removes leading list markers like "1. ", "1、", "3)".
func stripNumbering(line string) string {
	trimmed := strings.TrimLeft(line, "0123456789")
	if trimmed == line {
		return line
	}
	trimmed = strings.TrimLeft(trimmed, ".、)）: ")
	return strings.TrimSpace(trimmed)
}

const answerSystemPrompt = "你是一位法律专家，擅长基于案例事实进行法律分析并给出裁判建议。"

func buildAnswerPrompt(maskedText, question string) string {
	return fmt.Sprintf(`请作为法律专家分析以下案例，并回答相关问题。

案例内容：
%s

问题：%s

请提供详细的法律分析，包括：
1. 案件事实梳理
2. 法律适用分析
3. 判决建议
4. 法律依据

请用中文回答。`, maskedText, question)
}

const scoringSystemPrompt = "你是一位资深法律评审专家，负责按照固定评分规则对AI的法律分析进行严格评估，并只输出JSON。"

func buildScoringPrompt(maskedText, question, answer, judgeDecision string) string {
	return fmt.Sprintf(`请根据案例、法官判决和评分规则，评估AI对问题的回答质量。

案例内容：
%s

问题：%s

AI回答：
%s

法官判决：
%s

评分规则：从以下五个维度分别打分，每个维度0到4分：
- normative_basis：规范依据相关性
- subsumption_alignment：涵摄链条对齐度
- value_empathy：价值衡量与同理心对齐度
- fact_coverage：关键事实与争点覆盖度
- remedy_consistency：裁判结论与救济配置一致性

同时列出回答中的错误，severity取值为minor、moderate或major。

只输出如下格式的JSON，不要其他内容：
{"dimension_scores": {"normative_basis": 0, "subsumption_alignment": 0, "value_empathy": 0, "fact_coverage": 0, "remedy_consistency": 0}, "findings": [{"severity": "minor", "description": "..."}], "rationale": "..."}`,
		maskedText, question, answer, judgeDecision)
}
