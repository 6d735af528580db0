package analysis

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/model"
)

// defaultConfidence is used when the completion omits a confidence value.
const defaultConfidence = 0.8

// flexAmount tolerates amounts arriving as numbers or numeric strings.
type flexAmount struct {
	value *decimal.Decimal
}

func (a *flexAmount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		// An unparseable amount degrades to "no amount" rather than
		// failing the whole payload.
		return nil
	}
	a.value = &d
	return nil
}

// expenseItem is one extracted expense in either response shape.
type expenseItem struct {
	Confidence  *float64   `json:"confidence"`
	Amount      flexAmount `json:"amount"`
	Category    string     `json:"category"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Tags        []string   `json:"tags"`
}

func (e expenseItem) confidenceOrDefault() float64 {
	if e.Confidence != nil {
		return *e.Confidence
	}
	return defaultConfidence
}

// parseContent parses the completion text. Two shapes are supported: an
// "expenses" list whose first element is the primary result (the rest
// become alternative interpretations), and a flat single-object legacy
// shape. Returns ok=false when the text is not valid JSON or yields no
// amount, in which case the caller substitutes the fallback.
func parseContent(content string, request model.AnalysisRequest) (model.AnalysisResult, bool) {
	content = stripMarkdownFence(content)

	var listShape struct {
		Expenses []expenseItem `json:"expenses"`
	}
	var items []expenseItem
	if err := json.Unmarshal([]byte(content), &listShape); err == nil && len(listShape.Expenses) > 0 {
		items = listShape.Expenses
	} else {
		var flat expenseItem
		if err := json.Unmarshal([]byte(content), &flat); err != nil {
			return model.AnalysisResult{}, false
		}
		items = []expenseItem{flat}
	}

	primary := items[0]
	if primary.Amount.value == nil {
		return model.AnalysisResult{}, false
	}

	result := model.AnalysisResult{
		OriginalText:    request.VoiceText,
		ExtractedAmount: primary.Amount.value,
		Category:        model.ParseCategory(primary.Category),
		Title:           strings.TrimSpace(primary.Title),
		Description:     strings.TrimSpace(primary.Description),
		Confidence:      primary.confidenceOrDefault(),
		Tags:            dedupeTags(primary.Tags),
		Timestamp:       request.Timestamp,
	}

	for _, item := range items[1:] {
		result.Alternatives = append(result.Alternatives, model.AlternativeInterpretation{
			Amount:     item.Amount.value,
			Category:   model.ParseCategory(item.Category),
			Title:      strings.TrimSpace(item.Title),
			Confidence: item.confidenceOrDefault(),
		})
	}
	return result, true
}

// stripMarkdownFence removes a ```json ... ``` wrapper some models insist
// on adding.
func stripMarkdownFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// dedupeTags keeps the first occurrence of each non-empty tag.
func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	var out []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
