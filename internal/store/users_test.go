package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/model"
)

func mustCreateUser(t *testing.T, sdb *sql.DB, email string) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), sdb, email, "hash", "Test User", "", "")
	if err != nil {
		t.Fatalf("creating user %s: %v", email, err)
	}
	return u
}

func mustCreateItem(t *testing.T, sdb *sql.DB, ownerID int64, kind, title string, loc model.Location) *model.Item {
	t.Helper()
	now := time.Now().UTC()
	item := &model.Item{
		Kind:        kind,
		Title:       title,
		Description: "description of " + title,
		OwnerID:     ownerID,
		Location:    loc,
	}
	if kind == model.KindLost {
		item.DateLost = &now
	} else {
		item.DateFound = &now
	}
	created, err := CreateItem(context.Background(), sdb, item)
	if err != nil {
		t.Fatalf("creating item %s: %v", title, err)
	}
	return created
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	sdb := db.NewTestDB(t)
	ctx := context.Background()

	if _, err := CreateUser(ctx, sdb, "a@example.com", "hash", "A", "", ""); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	_, err := CreateUser(ctx, sdb, "A@Example.com", "hash", "A2", "", "")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate email, got %v", err)
	}
}

func TestGetUserByEmailCaseInsensitive(t *testing.T) {
	sdb := db.NewTestDB(t)
	ctx := context.Background()

	created := mustCreateUser(t, sdb, "who@example.com")

	u, err := GetUserByEmail(ctx, sdb, "WHO@example.com")
	if err != nil {
		t.Fatalf("getting user: %v", err)
	}
	if u == nil || u.ID != created.ID {
		t.Errorf("expected user %d, got %+v", created.ID, u)
	}

	missing, err := GetUserByEmail(ctx, sdb, "nobody@example.com")
	if err != nil {
		t.Fatalf("getting missing user: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing user, got %+v", missing)
	}
}

func TestUpdateUserProfile(t *testing.T) {
	sdb := db.NewTestDB(t)
	ctx := context.Background()

	u := mustCreateUser(t, sdb, "profile@example.com")

	err := UpdateUserProfile(ctx, sdb, u.ID, "New Name", "+386 40 123 456", "Ljubljana", "avatar.png")
	if err != nil {
		t.Fatalf("updating profile: %v", err)
	}
	updated, err := GetUser(ctx, sdb, u.ID)
	if err != nil {
		t.Fatalf("getting user: %v", err)
	}
	if updated.Name != "New Name" || updated.Phone != "+386 40 123 456" {
		t.Errorf("profile not updated: %+v", updated)
	}
	if updated.Location != "Ljubljana" {
		t.Errorf("location not updated: %q", updated.Location)
	}
	if updated.Email != "profile@example.com" {
		t.Errorf("email must not change, got %s", updated.Email)
	}
}

func TestTokenRevocation(t *testing.T) {
	sdb := db.NewTestDB(t)
	ctx := context.Background()

	revoked, err := IsTokenRevoked(ctx, sdb, "some-jti")
	if err != nil {
		t.Fatalf("checking revocation: %v", err)
	}
	if revoked {
		t.Error("fresh jti reported revoked")
	}

	if err := RevokeToken(ctx, sdb, "some-jti", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("revoking token: %v", err)
	}

	revoked, err = IsTokenRevoked(ctx, sdb, "some-jti")
	if err != nil {
		t.Fatalf("checking revocation: %v", err)
	}
	if !revoked {
		t.Error("revoked jti not reported revoked")
	}
}

func TestGetJWTSecretStable(t *testing.T) {
	sdb := db.NewTestDB(t)
	ctx := context.Background()

	first, err := GetJWTSecret(ctx, sdb)
	if err != nil {
		t.Fatalf("getting secret: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first))
	}
	second, err := GetJWTSecret(ctx, sdb)
	if err != nil {
		t.Fatalf("getting secret again: %v", err)
	}
	if first != second {
		t.Error("secret changed between calls")
	}
}
