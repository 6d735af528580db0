package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/model"
)

func testRequest() model.AnalysisRequest {
	return model.NewAnalysisRequest("我今天花了25元买午餐", nil)
}

func TestParseContentExpenseList(t *testing.T) {
	content := `{"expenses":[
		{"amount":25,"category":"餐饮","title":"午餐","description":"工作日午餐","confidence":0.95,"tags":["午餐","工作日"]},
		{"amount":15,"category":"交通","title":"打车","confidence":0.9}
	]}`

	result, ok := parseContent(content, testRequest())
	require.True(t, ok)

	require.NotNil(t, result.ExtractedAmount)
	assert.Equal(t, "25", result.ExtractedAmount.String())
	assert.Equal(t, model.CategoryFood, result.Category)
	assert.Equal(t, "午餐", result.Title)
	assert.Equal(t, "工作日午餐", result.Description)
	assert.InDelta(t, 0.95, result.Confidence, 0.001)
	assert.Equal(t, []string{"午餐", "工作日"}, result.Tags)
	assert.Equal(t, "我今天花了25元买午餐", result.OriginalText)

	require.Len(t, result.Alternatives, 1)
	alt := result.Alternatives[0]
	require.NotNil(t, alt.Amount)
	assert.Equal(t, "15", alt.Amount.String())
	assert.Equal(t, model.CategoryTransport, alt.Category)
	assert.Equal(t, "打车", alt.Title)
	assert.InDelta(t, 0.9, alt.Confidence, 0.001)
}

func TestParseContentFlatShape(t *testing.T) {
	content := `{"amount":"38.50","category":"shopping","title":"超市购物"}`

	result, ok := parseContent(content, testRequest())
	require.True(t, ok)
	require.NotNil(t, result.ExtractedAmount)
	assert.Equal(t, "38.5", result.ExtractedAmount.String())
	assert.Equal(t, model.CategoryShopping, result.Category)
	assert.InDelta(t, defaultConfidence, result.Confidence, 0.001)
	assert.Empty(t, result.Alternatives)
}

func TestParseContentMarkdownFence(t *testing.T) {
	content := "```json\n{\"expenses\":[{\"amount\":12,\"category\":\"food\",\"title\":\"早餐\"}]}\n```"

	result, ok := parseContent(content, testRequest())
	require.True(t, ok)
	require.NotNil(t, result.ExtractedAmount)
	assert.Equal(t, "12", result.ExtractedAmount.String())
}

func TestParseContentFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "抱歉，我无法识别这段话的含义。"},
		{"empty string", ""},
		{"primary amount missing", `{"expenses":[{"category":"food","title":"午餐"}]}`},
		{"primary amount null", `{"amount":null,"title":"午餐"}`},
		{"primary amount unparseable", `{"amount":"二十五","title":"午餐"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := parseContent(tt.content, testRequest())
			assert.False(t, ok)
		})
	}
}

func TestParseContentUnknownCategoryCollapses(t *testing.T) {
	content := `{"amount":10,"category":"零食","title":"零食"}`

	result, ok := parseContent(content, testRequest())
	require.True(t, ok)
	assert.Equal(t, model.CategoryOther, result.Category)
}

func TestDedupeTags(t *testing.T) {
	assert.Nil(t, dedupeTags(nil))
	assert.Nil(t, dedupeTags([]string{"", "  "}))
	assert.Equal(t, []string{"午餐", "工作日"}, dedupeTags([]string{"午餐", "工作日", "午餐", ""}))
}

func TestFallbackResultTimeOfDay(t *testing.T) {
	tests := []struct {
		hour  int
		title string
	}{
		{7, "早餐"},
		{9, "早餐"},
		{10, "待补全支出"},
		{12, "午餐"},
		{13, "午餐"},
		{15, "待补全支出"},
		{18, "晚餐"},
		{20, "晚餐"},
		{23, "待补全支出"},
		{3, "待补全支出"},
	}

	for _, tt := range tests {
		request := testRequest()
		request.Timestamp = time.Date(2026, 8, 30, tt.hour, 0, 0, 0, time.Local)

		result := fallbackResult(request)
		assert.Equal(t, tt.title, result.Title, "hour %d", tt.hour)
		assert.Nil(t, result.ExtractedAmount)
		assert.Equal(t, model.CategoryOther, result.Category)
		assert.InDelta(t, fallbackConfidence, result.Confidence, 0.001)
		assert.False(t, result.IsValid())
	}
}
