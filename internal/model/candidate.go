package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidCandidate is the sentinel wrapped by all candidate validation
// failures.
var ErrInvalidCandidate = errors.New("invalid expense candidate")

var (
	minAmount = decimal.RequireFromString("0.01")
	maxAmount = decimal.RequireFromString("999999.99")
)

const maxTitleLength = 100

// ExpenseCandidate is an expense record not yet accepted by the user.
// Candidates are built only from a valid AnalysisResult or one of its
// alternative interpretations, and re-validated before persistence.
type ExpenseCandidate struct {
	Date              time.Time
	Title             string
	Description       string
	OriginalVoiceText string
	Tags              []string
	ID                uuid.UUID
	Amount            decimal.Decimal
	Category          Category
	Confidence        float64
}

// NewCandidateFromResult builds the primary candidate from a valid result.
func NewCandidateFromResult(r AnalysisResult) (ExpenseCandidate, error) {
	if !r.IsValid() {
		return ExpenseCandidate{}, fmt.Errorf("%w: analysis result is not valid", ErrInvalidCandidate)
	}
	c := ExpenseCandidate{
		ID:                uuid.New(),
		Amount:            *r.ExtractedAmount,
		Category:          r.Category,
		Title:             r.Title,
		Description:       r.Description,
		OriginalVoiceText: r.OriginalText,
		Confidence:        r.Confidence,
		Tags:              append([]string(nil), r.Tags...),
		Date:              r.Timestamp,
	}
	if c.Date.IsZero() {
		c.Date = time.Now()
	}
	if err := c.Validate(); err != nil {
		return ExpenseCandidate{}, err
	}
	return c, nil
}

// NewCandidateFromAlternative builds a candidate from a secondary
// interpretation of the same utterance.
func NewCandidateFromAlternative(r AnalysisResult, alt AlternativeInterpretation) (ExpenseCandidate, error) {
	if alt.Amount == nil {
		return ExpenseCandidate{}, fmt.Errorf("%w: alternative has no amount", ErrInvalidCandidate)
	}
	c := ExpenseCandidate{
		ID:                uuid.New(),
		Amount:            *alt.Amount,
		Category:          alt.Category,
		Title:             alt.Title,
		OriginalVoiceText: r.OriginalText,
		Confidence:        alt.Confidence,
		Date:              r.Timestamp,
	}
	if c.Date.IsZero() {
		c.Date = time.Now()
	}
	if err := c.Validate(); err != nil {
		return ExpenseCandidate{}, err
	}
	return c, nil
}

// Validate checks the amount, title, and date invariants. Every failure
// wraps ErrInvalidCandidate.
func (c ExpenseCandidate) Validate() error {
	if err := validateAmount(c.Amount); err != nil {
		return err
	}
	if err := validateTitle(c.Title); err != nil {
		return err
	}
	if !c.Category.IsValid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidCandidate, c.Category)
	}
	now := time.Now()
	if c.Date.Before(now.AddDate(-1, 0, 0)) || c.Date.After(now.AddDate(1, 0, 0)) {
		return fmt.Errorf("%w: date %s outside one year of now", ErrInvalidCandidate, c.Date.Format("2006-01-02"))
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if amount.LessThan(minAmount) || amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: amount %s outside [%s, %s]", ErrInvalidCandidate, amount, minAmount, maxAmount)
	}
	// Amounts must round-trip at two decimal places.
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: amount %s has more than 2 fractional digits", ErrInvalidCandidate, amount)
	}
	return nil
}

// titleForbidden holds characters that would break file paths or exports.
const titleForbidden = `/\:*?"<>|`

func validateTitle(title string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return fmt.Errorf("%w: title is empty", ErrInvalidCandidate)
	}
	if utf8.RuneCountInString(trimmed) > maxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidCandidate, maxTitleLength)
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) || strings.ContainsRune(titleForbidden, r) {
			return fmt.Errorf("%w: title contains forbidden character %q", ErrInvalidCandidate, r)
		}
	}
	return nil
}
