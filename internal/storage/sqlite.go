// Package storage persists confirmed expense records in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/common"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/model"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/service"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

var _ service.Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("%w: database path is empty", common.ErrInvalidConfig)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS expenses (
	id TEXT PRIMARY KEY,
	amount TEXT NOT NULL,
	category TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	voice_text TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0,
	tags TEXT NOT NULL DEFAULT '[]',
	date TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(date);
CREATE INDEX IF NOT EXISTS idx_expenses_category ON expenses(category);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Save inserts a validated candidate as an expense record.
func (s *SQLiteStorage) Save(ctx context.Context, candidate model.ExpenseCandidate) error {
	if err := candidate.Validate(); err != nil {
		return err
	}
	tags, err := json.Marshal(candidate.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, amount, category, title, description, voice_text, confidence, tags, date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		candidate.ID.String(),
		candidate.Amount.StringFixed(2),
		string(candidate.Category),
		candidate.Title,
		candidate.Description,
		candidate.OriginalVoiceText,
		candidate.Confidence,
		string(tags),
		candidate.Date.UTC(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%w: expense %s", common.ErrDuplicateEntry, candidate.ID)
		}
		return fmt.Errorf("failed to save expense: %w", err)
	}
	return nil
}

// Update replaces an existing expense record.
func (s *SQLiteStorage) Update(ctx context.Context, candidate model.ExpenseCandidate) error {
	if err := candidate.Validate(); err != nil {
		return err
	}
	tags, err := json.Marshal(candidate.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET amount = ?, category = ?, title = ?, description = ?, voice_text = ?, confidence = ?, tags = ?, date = ?
		WHERE id = ?`,
		candidate.Amount.StringFixed(2),
		string(candidate.Category),
		candidate.Title,
		candidate.Description,
		candidate.OriginalVoiceText,
		candidate.Confidence,
		string(tags),
		candidate.Date.UTC(),
		candidate.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	return s.requireRow(res)
}

// Delete removes an expense record.
func (s *SQLiteStorage) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return s.requireRow(res)
}

func (s *SQLiteStorage) requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// FetchAll returns expenses matching the filter, newest first.
func (s *SQLiteStorage) FetchAll(ctx context.Context, filter service.ExpenseFilter) ([]model.ExpenseCandidate, error) {
	query := `SELECT id, amount, category, title, description, voice_text, confidence, tags, date FROM expenses`
	var args []any
	var clauses []string

	if filter.StartDate != nil {
		clauses = append(clauses, "date >= ?")
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		clauses = append(clauses, "date <= ?")
		args = append(args, filter.EndDate.UTC())
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY date DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	return s.queryExpenses(ctx, query, args...)
}

// FetchRange returns expenses with dates in [start, end].
func (s *SQLiteStorage) FetchRange(ctx context.Context, start, end time.Time) ([]model.ExpenseCandidate, error) {
	return s.FetchAll(ctx, service.ExpenseFilter{StartDate: &start, EndDate: &end})
}

// Search matches the query against title, description, and the original
// voice text.
func (s *SQLiteStorage) Search(ctx context.Context, query string) ([]model.ExpenseCandidate, error) {
	pattern := "%" + query + "%"
	return s.queryExpenses(ctx, `
		SELECT id, amount, category, title, description, voice_text, confidence, tags, date
		FROM expenses
		WHERE title LIKE ? OR description LIKE ? OR voice_text LIKE ?
		ORDER BY date DESC`,
		pattern, pattern, pattern)
}

func (s *SQLiteStorage) queryExpenses(ctx context.Context, query string, args ...any) ([]model.ExpenseCandidate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var expenses []model.ExpenseCandidate
	for rows.Next() {
		candidate, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}
	return expenses, nil
}

func scanExpense(rows *sql.Rows) (model.ExpenseCandidate, error) {
	var (
		idStr     string
		amountStr string
		category  string
		tagsJSON  string
		candidate model.ExpenseCandidate
	)
	if err := rows.Scan(&idStr, &amountStr, &category, &candidate.Title, &candidate.Description,
		&candidate.OriginalVoiceText, &candidate.Confidence, &tagsJSON, &candidate.Date); err != nil {
		return model.ExpenseCandidate{}, fmt.Errorf("failed to scan expense: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return model.ExpenseCandidate{}, fmt.Errorf("failed to parse expense id %q: %w", idStr, err)
	}
	candidate.ID = id

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return model.ExpenseCandidate{}, fmt.Errorf("failed to parse expense amount %q: %w", amountStr, err)
	}
	candidate.Amount = amount
	candidate.Category = model.Category(category)

	// Tags are best-effort metadata; a malformed column loses the tags,
	// not the record.
	if err := json.Unmarshal([]byte(tagsJSON), &candidate.Tags); err != nil {
		candidate.Tags = nil
	}
	return candidate, nil
}
