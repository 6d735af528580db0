package analysis

import (
	"fmt"
	"strings"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/model"
)

// buildPrompt embeds the transcript and a strict output-schema description
// into a single instruction, optionally biased by user preferences.
func buildPrompt(request model.AnalysisRequest) string {
	var categories strings.Builder
	for _, cat := range model.Categories() {
		fmt.Fprintf(&categories, "- %s（%s）\n", cat, cat.Label())
	}

	var b strings.Builder
	b.WriteString(`你是一个记账助手。从用户的语音内容中提取消费信息，只返回一个合法的 JSON 对象，不要包含任何解释、markdown 或其他文字。

输出格式：
{
  "expenses": [
    {
      "amount": <数字，不带货币符号>,
      "category": "<下列类别之一>",
      "title": "<简短标题>",
      "description": "<补充说明，可为空字符串>",
      "confidence": <0.0-1.0>,
      "tags": ["<标签>", ...]
    }
  ]
}

规则：
- amount 必须是正数，保留两位小数
- 如果一句话里包含多笔消费（例如"买午餐花了25然后打车花了15"），按顺序列出每一笔
- category 必须从下列类别中精确选择，不确定时用 other
- title 用消费内容本身命名，例如"午餐"、"打车"
- confidence 表示你对提取结果的把握

可用类别：
`)
	b.WriteString(categories.String())

	if prefs := request.Preferences; prefs != nil {
		if len(prefs.PreferredCategories) > 0 {
			names := make([]string, len(prefs.PreferredCategories))
			for i, cat := range prefs.PreferredCategories {
				names[i] = string(cat)
			}
			fmt.Fprintf(&b, "\n用户常用类别（优先考虑）：%s\n", strings.Join(names, ", "))
		}
		if len(prefs.FrequentMerchants) > 0 {
			fmt.Fprintf(&b, "用户常去商家：%s\n", strings.Join(prefs.FrequentMerchants, ", "))
		}
		if prefs.DefaultCurrency != "" {
			fmt.Fprintf(&b, "默认货币：%s\n", prefs.DefaultCurrency)
		}
	}

	if request.Context != "" {
		fmt.Fprintf(&b, "\n上下文：%s\n", request.Context)
	}

	fmt.Fprintf(&b, "\n用户语音内容：%s\n", request.VoiceText)
	return b.String()
}
