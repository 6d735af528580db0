package analysis

import (
	"github.com/BufaXiwang/AudioExpenseTracker/internal/model"
)

// fallbackConfidence marks the result as a guess. The missing amount is
// what routes it to manual entry downstream.
const fallbackConfidence = 0.5

// fallbackResult is the deterministic answer when the completion content
// cannot be parsed: no amount, category other, and a title guessed from
// the time of day of the request.
func fallbackResult(request model.AnalysisRequest) model.AnalysisResult {
	title := "待补全支出"
	description := "语音内容未能解析，请手动补全这笔支出"

	switch hour := request.Timestamp.Hour(); {
	case hour >= 6 && hour < 10:
		title = "早餐"
		description = "语音内容未能解析，按时间推测为早餐，请补全金额"
	case hour >= 11 && hour < 14:
		title = "午餐"
		description = "语音内容未能解析，按时间推测为午餐，请补全金额"
	case hour >= 17 && hour < 21:
		title = "晚餐"
		description = "语音内容未能解析，按时间推测为晚餐，请补全金额"
	}

	return model.AnalysisResult{
		OriginalText: request.VoiceText,
		Category:     model.CategoryOther,
		Title:        title,
		Description:  description,
		Confidence:   fallbackConfidence,
		Timestamp:    request.Timestamp,
	}
}
