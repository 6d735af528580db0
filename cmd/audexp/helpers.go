package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/config"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/model"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/storage"
)

// initStorage opens the configured database and runs migrations.
func initStorage(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	slog.Debug("storage ready", "path", cfg.DBPath)
	return store, nil
}

func userPreferences(cfg *config.Config) *model.UserPreferences {
	prefs := &model.UserPreferences{
		DefaultCurrency:   cfg.Preferences.DefaultCurrency,
		FrequentMerchants: cfg.Preferences.FrequentMerchants,
	}
	for _, raw := range cfg.Preferences.PreferredCategories {
		prefs.PreferredCategories = append(prefs.PreferredCategories, model.ParseCategory(raw))
	}
	return prefs
}
