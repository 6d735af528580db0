package workflow

import (
	"errors"
	"net/http"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/analysis"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/common"
)

// Progress labels shown while analyzing. Purely cosmetic checkpoints;
// only their order matters.
const (
	labelConnecting   = "正在连接分析服务"
	labelInterpreting = "正在理解语音内容"
	labelExtracting   = "正在提取金额"
)

// User-facing messages. Transport-specific messages are distinguished
// from extraction failures so the user knows whether retrying now can help.
const (
	msgInvalidResult     = "未能识别出有效的消费信息，请重试并说得更清楚一些"
	msgMissingAPIKey     = "未配置 API 密钥，请在设置中填写后重试"
	msgInvalidBaseURL    = "分析服务地址无效，请检查设置"
	msgAuthFailed        = "API 密钥无效或没有权限"
	msgRateLimited       = "请求过于频繁，请稍后再试"
	msgInvalidResponse   = "分析服务返回了无效响应，请稍后再试"
	msgServerError       = "分析服务暂时不可用，请稍后再试"
	msgNetworkError      = "网络请求失败，请检查网络后重试"
	msgPermissionDenied  = "需要麦克风和语音识别两项权限才能录音"
	msgRecognizerDown    = "语音识别服务当前不可用，请稍后再试"
	msgRecordingFailed   = "录音失败，请重试"
	msgCandidateInvalid  = "这笔支出未通过校验"
	msgStorageFailed     = "保存支出记录失败"
	msgRecognitionFailed = "语音识别出错，请重试"
)

// analysisErrorMessage maps an analysis failure to a user-facing message.
func analysisErrorMessage(err error) string {
	switch {
	case errors.Is(err, common.ErrMissingAPIKey):
		return msgMissingAPIKey
	case errors.Is(err, common.ErrInvalidBaseURL):
		return msgInvalidBaseURL
	case analysis.IsAuthError(err):
		return msgAuthFailed
	case errors.Is(err, common.ErrRateLimit):
		return msgRateLimited
	case errors.Is(err, analysis.ErrInvalidResponse):
		return msgInvalidResponse
	default:
		if status, ok := analysis.StatusCode(err); ok && status >= http.StatusInternalServerError {
			return msgServerError
		}
		return msgNetworkError
	}
}

// captureErrorMessage maps a capture failure to a user-facing message.
func captureErrorMessage(err error) string {
	switch {
	case errors.Is(err, common.ErrPermissionDenied):
		return msgPermissionDenied
	case errors.Is(err, common.ErrRecognizerUnavailable):
		return msgRecognizerDown
	default:
		return msgRecordingFailed
	}
}
