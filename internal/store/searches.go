package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/erazemk/najdeno/internal/model"
)

// CreateSavedSearch stores a named filter set for later re-running.
func CreateSavedSearch(ctx context.Context, db *sql.DB, ownerID int64, name string, query json.RawMessage) (*model.SavedSearch, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: search name is required", ErrInvalid)
	}
	if len(query) == 0 || !json.Valid(query) {
		return nil, fmt.Errorf("%w: search query must be valid JSON", ErrInvalid)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO saved_searches (owner_id, name, query) VALUES (?, ?, ?)`,
		ownerID, name, string(query))
	if err != nil {
		return nil, fmt.Errorf("creating saved search: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting saved search id: %w", err)
	}
	return GetSavedSearch(ctx, db, id)
}

// GetSavedSearch returns a saved search by id, or (nil, nil).
func GetSavedSearch(ctx context.Context, db *sql.DB, id int64) (*model.SavedSearch, error) {
	var s model.SavedSearch
	var query string
	err := db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, query, created_at, updated_at
		 FROM saved_searches WHERE id = ?`, id,
	).Scan(&s.ID, &s.OwnerID, &s.Name, &query, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting saved search: %w", err)
	}
	s.Query = json.RawMessage(query)
	return &s, nil
}

// ListSavedSearches returns all of a user's saved searches, newest first.
func ListSavedSearches(ctx context.Context, db *sql.DB, ownerID int64) ([]model.SavedSearch, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, owner_id, name, query, created_at, updated_at
		 FROM saved_searches WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing saved searches: %w", err)
	}
	defer rows.Close()

	var searches []model.SavedSearch
	for rows.Next() {
		var s model.SavedSearch
		var query string
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Name, &query, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning saved search: %w", err)
		}
		s.Query = json.RawMessage(query)
		searches = append(searches, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading saved searches: %w", err)
	}
	return searches, nil
}

// DeleteSavedSearch removes a saved search.
func DeleteSavedSearch(ctx context.Context, db *sql.DB, id int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM saved_searches WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting saved search: %w", err)
	}
	return nil
}
