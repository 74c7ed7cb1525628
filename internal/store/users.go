package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/najdeno/internal/model"
)

// CreateUser creates a new account. The email is case-folded before
// storage; a duplicate returns ErrConflict.
func CreateUser(ctx context.Context, db *sql.DB, email, passwordHash, name, phone, location string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, name, phone, location) VALUES (?, ?, ?, ?, ?)`,
		email, passwordHash, name, phone, location,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID, or (nil, nil) when absent.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u := &model.User{}
	err := db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, name, phone, location, avatar, is_active, created_at
		 FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Phone, &u.Location, &u.Avatar, &u.IsActive, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns a user by case-folded email, or (nil, nil).
func GetUserByEmail(ctx context.Context, db *sql.DB, email string) (*model.User, error) {
	u := &model.User{}
	err := db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, name, phone, location, avatar, is_active, created_at
		 FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)),
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Phone, &u.Location, &u.Avatar, &u.IsActive, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// UpdateUserProfile updates the mutable profile fields.
func UpdateUserProfile(ctx context.Context, db *sql.DB, id int64, name, phone, location, avatar string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET name = ?, phone = ?, location = ?, avatar = ? WHERE id = ?`,
		name, phone, location, avatar, id,
	)
	if err != nil {
		return fmt.Errorf("updating user profile: %w", err)
	}
	return nil
}
