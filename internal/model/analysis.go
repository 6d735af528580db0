package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserPreferences biases categorization toward the user's habits. All
// fields are optional.
type UserPreferences struct {
	DefaultCurrency     string
	PreferredCategories []Category
	FrequentMerchants   []string
}

// AnalysisRequest is one logical analysis attempt. The RequestID stays
// stable across retries so a superseded session can discard late results.
type AnalysisRequest struct {
	Timestamp   time.Time
	VoiceText   string
	Context     string
	Preferences *UserPreferences
	RequestID   uuid.UUID
}

// NewAnalysisRequest creates a request for the given transcript.
func NewAnalysisRequest(voiceText string, prefs *UserPreferences) AnalysisRequest {
	return AnalysisRequest{
		VoiceText:   voiceText,
		Preferences: prefs,
		RequestID:   uuid.New(),
		Timestamp:   time.Now(),
	}
}

// AlternativeInterpretation is a secondary expense extracted from the same
// utterance ("lunch for 25 then a taxi for 15").
type AlternativeInterpretation struct {
	Amount     *decimal.Decimal
	Category   Category
	Title      string
	Confidence float64
}

// AnalysisResult is the structured interpretation of one transcript. It is
// always produced, even for garbage input; IsValid decides whether it can
// become an expense candidate.
type AnalysisResult struct {
	Timestamp       time.Time
	ExtractedAmount *decimal.Decimal
	OriginalText    string
	Title           string
	Description     string
	Category        Category
	Tags            []string
	Alternatives    []AlternativeInterpretation
	Confidence      float64
	ProcessingTime  time.Duration
}

// minimumConfidence is the floor below which a result routes to manual entry.
const minimumConfidence = 0.3

// IsValid reports whether the result carries enough structure to build an
// expense candidate from it.
func (r AnalysisResult) IsValid() bool {
	return r.ExtractedAmount != nil &&
		r.ExtractedAmount.IsPositive() &&
		r.Title != "" &&
		r.Confidence > minimumConfidence
}
