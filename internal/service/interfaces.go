// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/model"
)

// ExpenseFilter defines filtering options for expense queries.
type ExpenseFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// Storage defines the contract for the expense persistence collaborator.
// The workflow hands over candidates only after they pass validation, and
// treats any storage error as terminal for that candidate.
type Storage interface {
	Save(ctx context.Context, candidate model.ExpenseCandidate) error
	Update(ctx context.Context, candidate model.ExpenseCandidate) error
	Delete(ctx context.Context, id uuid.UUID) error
	FetchAll(ctx context.Context, filter ExpenseFilter) ([]model.ExpenseCandidate, error)
	FetchRange(ctx context.Context, start, end time.Time) ([]model.ExpenseCandidate, error)
	Search(ctx context.Context, query string) ([]model.ExpenseCandidate, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Analyzer converts a transcript into a structured expense interpretation.
type Analyzer interface {
	Analyze(ctx context.Context, request model.AnalysisRequest) (model.AnalysisResult, error)
}

// Permissions reports the two independently grantable capture permissions.
type Permissions interface {
	MicrophoneGranted() bool
	SpeechGranted() bool
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
