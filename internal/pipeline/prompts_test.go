package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuestions_StripsNumbering(t *testing.T) {
	content := "1. 合同是否有效？\n2、违约责任如何认定？\n3) 赔偿范围如何确定？"
	questions := parseQuestions("case-1", content, 5)

	require.Len(t, questions, 3)
	assert.Equal(t, "合同是否有效？", questions[0].Text)
	assert.Equal(t, "违约责任如何认定？", questions[1].Text)
	assert.Equal(t, "赔偿范围如何确定？", questions[2].Text)

	for i, q := range questions {
		assert.Equal(t, "case-1", q.CaseID)
		assert.Equal(t, i+1, q.Index)
	}
}

func TestParseQuestions_EnforcesLimit(t *testing.T) {
	content := "q1\nq2\nq3\nq4\nq5\nq6\nq7"
	questions := parseQuestions("case-1", content, 5)
	require.Len(t, questions, 5)
	assert.Equal(t, 5, questions[4].Index)
}

func TestParseQuestions_SkipsBlankLines(t *testing.T) {
	content := "\n第一个问题\n\n   \n第二个问题\n"
	questions := parseQuestions("case-1", content, 5)
	require.Len(t, questions, 2)
	// Indices stay contiguous despite the gaps in the raw output.
	assert.Equal(t, 1, questions[0].Index)
	assert.Equal(t, 2, questions[1].Index)
}

func TestParseQuestions_EmptyContent(t *testing.T) {
	assert.Empty(t, parseQuestions("case-1", "", 5))
	assert.Empty(t, parseQuestions("case-1", "  \n\n  ", 5))
}

func TestStripNumbering(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1. question", "question"},
		{"12、问题", "问题"},
		{"3) question", "question"},
		{"4） 问题", "问题"},
		{"5: question", "question"},
		{"no numbering", "no numbering"},
		{"第1个问题", "第1个问题"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripNumbering(tt.in), "input %q", tt.in)
	}
}

func TestCleanMaskedText(t *testing.T) {
	t.Run("strips_label_prefix", func(t *testing.T) {
		got := cleanMaskedText("好的，脱敏后的文本：\n某男1与某女1于某年结婚。")
		assert.Equal(t, "某男1与某女1于某年结婚。", got)
	})

	t.Run("strips_original_echo", func(t *testing.T) {
		got := cleanMaskedText("某男1起诉某女1。\n\n原始文本：张三起诉李四。")
		assert.Equal(t, "某男1起诉某女1。", got)
	})

	t.Run("plain_passthrough", func(t *testing.T) {
		got := cleanMaskedText("  某市某区人民法院判决如下。  ")
		assert.Equal(t, "某市某区人民法院判决如下。", got)
	})
}
