package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/model"
)

func TestCreateItemKindDateInvariant(t *testing.T) {
	sdb := db.NewTestDB(t)
	ctx := context.Background()
	owner := mustCreateUser(t, sdb, "owner@example.com")
	now := time.Now().UTC()

	// Lost item without dateLost.
	_, err := CreateItem(ctx, sdb, &model.Item{
		Kind: model.KindLost, Title: "wallet", OwnerID: owner.ID,
	})
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("lost item without dateLost: expected ErrInvalid, got %v", err)
	}

	// Lost item with dateFound.
	_, err = CreateItem(ctx, sdb, &model.Item{
		Kind: model.KindLost, Title: "wallet", OwnerID: owner.ID,
		DateLost: &now, DateFound: &now,
	})
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("lost item with dateFound: expected ErrInvalid, got %v", err)
	}

	// Found item with only dateFound is fine.
	item, err := CreateItem(ctx, sdb, &model.Item{
		Kind: model.KindFound, Title: "umbrella", OwnerID: owner.ID, DateFound: &now,
	})
	if err != nil {
		t.Fatalf("creating found item: %v", err)
	}
	if item.Category != model.DefaultCategory {
		t.Errorf("expected default category, got %s", item.Category)
	}
	if item.Owner == nil || item.Owner.ID != owner.ID {
		t.Errorf("owner not resolved: %+v", item.Owner)
	}
}

func TestCreateItemFieldLengths(t *testing.T) {
	sdb := db.NewTestDB(t)
	ctx := context.Background()
	owner := mustCreateUser(t, sdb, "owner@example.com")
	now := time.Now().UTC()

	cases := []struct {
		name string
		item model.Item
	}{
		{"title", model.Item{Title: strings.Repeat("x", MaxTitleLength+1)}},
		{"description", model.Item{Title: "wallet", Description: strings.Repeat("x", MaxDescriptionLength+1)}},
		{"locationNote", model.Item{Title: "wallet", LocationNote: strings.Repeat("x", MaxLocationNoteLength+1)}},
	}
	for _, tc := range cases {
		tc.item.Kind = model.KindLost
		tc.item.OwnerID = owner.ID
		tc.item.DateLost = &now
		if _, err := CreateItem(ctx, sdb, &tc.item); !errors.Is(err, ErrInvalid) {
			t.Errorf("overlong %s: expected ErrInvalid, got %v", tc.name, err)
		}
	}

	// The limits count characters, not bytes.
	item, err := CreateItem(ctx, sdb, &model.Item{
		Kind: model.KindLost, Title: strings.Repeat("č", MaxTitleLength),
		OwnerID: owner.ID, DateLost: &now,
	})
	if err != nil {
		t.Fatalf("multibyte title at the limit: %v", err)
	}

	// Updates are held to the same limits.
	long := strings.Repeat("x", MaxDescriptionLength+1)
	if _, err := UpdateItem(ctx, sdb, item.ID, ItemPatch{Description: &long}); !errors.Is(err, ErrInvalid) {
		t.Errorf("overlong description patch: expected ErrInvalid, got %v", err)
	}
}

func TestListItemsPagination(t *testing.T) {
	sdb := db.NewTestDB(t)
	ctx := context.Background()
	owner := mustCreateUser(t, sdb, "owner@example.com")

	for i := 0; i < 25; i++ {
		mustCreateItem(t, sdb, owner.ID, model.KindLost, "item", model.Location{})
	}

	items, total, err := ListItems(ctx, sdb, ItemFilter{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("listing items: %v", err)
	}
	if total != 25 {
		t.Errorf("expected total 25, got %d", total)
	}
	if len(items) != 10 {
		t.Errorf("expected 10 items on page 1, got %d", len(items))
	}

	items, _, err = ListItems(ctx, sdb, ItemFilter{Page: 3, Limit: 10})
	if err != nil {
		t.Fatalf("listing page 3: %v", err)
	}
	if len(items) != 5 {
		t.Errorf("expected 5 items on page 3, got %d", len(items))
	}

	items, _, err = ListItems(ctx, sdb, ItemFilter{Page: 4, Limit: 10})
	if err != nil {
		t.Fatalf("listing page 4: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected empty page 4, got %d items", len(items))
	}
}

func TestListItemsGeoFilter(t *testing.T) {
	sdb := db.NewTestDB(t)
	ctx := context.Background()
	owner := mustCreateUser(t, sdb, "owner@example.com")

	// Ljubljana, ~25 km away (Kranj), and ~100 km away (Maribor is ~104 km,
	// use Celje at ~60 km).
	mustCreateItem(t, sdb, owner.ID, model.KindLost, "near", model.Location{Lat: 46.0569, Lng: 14.5058})
	mustCreateItem(t, sdb, owner.ID, model.KindLost, "mid", model.Location{Lat: 46.2389, Lng: 14.3556})
	mustCreateItem(t, sdb, owner.ID, model.KindLost, "far", model.Location{Lat: 46.2311, Lng: 15.2603})
	// No coordinates at all; must never match a geo query.
	mustCreateItem(t, sdb, owner.ID, model.KindLost, "nowhere", model.Location{})

	lat, lng := 46.0569, 14.5058

	items, total, err := ListItems(ctx, sdb, ItemFilter{Lat: &lat, Lng: &lng, RadiusKm: 50})
	if err != nil {
		t.Fatalf("listing with 50km radius: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 items within 50km, got %d", total)
	}
	for i := 1; i < len(items); i++ {
		if *items[i-1].DistanceKm > *items[i].DistanceKm {
			t.Errorf("items not ordered by distance: %v then %v",
				*items[i-1].DistanceKm, *items[i].DistanceKm)
		}
	}

	_, total, err = ListItems(ctx, sdb, ItemFilter{Lat: &lat, Lng: &lng, RadiusKm: 100})
	if err != nil {
		t.Fatalf("listing with 100km radius: %v", err)
	}
	if total != 3 {
		t.Errorf("expected 3 items within 100km, got %d", total)
	}
}

func TestListItemsTextSearch(t *testing.T) {
	sdb := db.NewTestDB(t)
	ctx := context.Background()
	owner := mustCreateUser(t, sdb, "owner@example.com")

	mustCreateItem(t, sdb, owner.ID, model.KindLost, "black leather wallet", model.Location{})
	mustCreateItem(t, sdb, owner.ID, model.KindLost, "blue umbrella", model.Location{})

	items, total, err := ListItems(ctx, sdb, ItemFilter{Search: "wallet"})
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected exactly one wallet, got total=%d len=%d", total, len(items))
	}
	if items[0].Title != "black leather wallet" {
		t.Errorf("wrong item matched: %s", items[0].Title)
	}

	// Any-term match across title and description.
	_, total, err = ListItems(ctx, sdb, ItemFilter{Search: "umbrella wallet"})
	if err != nil {
		t.Fatalf("searching two terms: %v", err)
	}
	if total != 2 {
		t.Errorf("expected both items for OR search, got %d", total)
	}
}

func TestUpdateItem(t *testing.T) {
	sdb := db.NewTestDB(t)
	ctx := context.Background()
	owner := mustCreateUser(t, sdb, "owner@example.com")
	item := mustCreateItem(t, sdb, owner.ID, model.KindLost, "wallet", model.Location{})

	title := "brown wallet"
	category := "accessories"
	updated, err := UpdateItem(ctx, sdb, item.ID, ItemPatch{Title: &title, Category: &category})
	if err != nil {
		t.Fatalf("updating item: %v", err)
	}
	if updated.Title != "brown wallet" || updated.Category != "accessories" {
		t.Errorf("patch not applied: %+v", updated)
	}
	if updated.Kind != model.KindLost || updated.Status != model.ItemStatusActive {
		t.Errorf("immutable fields changed: %+v", updated)
	}

	// dateFound is not allowed on a lost item.
	now := time.Now().UTC()
	_, err = UpdateItem(ctx, sdb, item.ID, ItemPatch{DateFound: &now})
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for dateFound on lost item, got %v", err)
	}

	_, err = UpdateItem(ctx, sdb, item.ID+100, ItemPatch{Title: &title})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestItemImageReconciliation(t *testing.T) {
	sdb := db.NewTestDB(t)
	ctx := context.Background()
	owner := mustCreateUser(t, sdb, "owner@example.com")

	now := time.Now().UTC()
	item, err := CreateItem(ctx, sdb, &model.Item{
		Kind: model.KindLost, Title: "camera", OwnerID: owner.ID, DateLost: &now,
		Images: []string{"https://example.com/a.jpg", "https://example.com/b.jpg"},
	})
	if err != nil {
		t.Fatalf("creating item: %v", err)
	}
	if len(item.Images) != 2 {
		t.Fatalf("expected 2 images, got %v", item.Images)
	}

	// Keep b, drop a, add c; order follows the new list.
	images := []string{"https://example.com/b.jpg", "https://example.com/c.jpg"}
	updated, err := UpdateItem(ctx, sdb, item.ID, ItemPatch{Images: &images})
	if err != nil {
		t.Fatalf("updating images: %v", err)
	}
	if len(updated.Images) != 2 ||
		updated.Images[0] != "https://example.com/b.jpg" ||
		updated.Images[1] != "https://example.com/c.jpg" {
		t.Errorf("images not reconciled: %v", updated.Images)
	}
}

func TestDeleteItemCascades(t *testing.T) {
	sdb := db.NewTestDB(t)
	ctx := context.Background()
	loser := mustCreateUser(t, sdb, "loser@example.com")
	finder := mustCreateUser(t, sdb, "finder@example.com")

	lost := mustCreateItem(t, sdb, loser.ID, model.KindLost, "wallet", model.Location{})
	found := mustCreateItem(t, sdb, finder.ID, model.KindFound, "wallet", model.Location{})

	match, err := CreateMatch(ctx, sdb, loser.ID, lost.ID, found.ID, 0.8,
		[]string{model.ReasonTextSimilarity}, model.MatchMetadata{})
	if err != nil {
		t.Fatalf("creating match: %v", err)
	}
	if _, err := CreateMessage(ctx, sdb, match.ID, loser.ID, "is this mine?", "", model.MessageMetadata{}); err != nil {
		t.Fatalf("creating message: %v", err)
	}

	if err := DeleteItem(ctx, sdb, lost.ID); err != nil {
		t.Fatalf("deleting item: %v", err)
	}

	gone, err := GetMatch(ctx, sdb, match.ID)
	if err != nil {
		t.Fatalf("getting match: %v", err)
	}
	if gone != nil {
		t.Error("match survived item deletion")
	}

	var messages int
	if err := sdb.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE match_id = ?`, match.ID).Scan(&messages); err != nil {
		t.Fatalf("counting messages: %v", err)
	}
	if messages != 0 {
		t.Errorf("expected 0 messages after cascade, got %d", messages)
	}

	// The other item is untouched.
	still, err := GetItem(ctx, sdb, found.ID)
	if err != nil || still == nil {
		t.Errorf("found item affected by cascade: %v, %v", still, err)
	}
}

func TestListItemsByOwnerVisibility(t *testing.T) {
	sdb := db.NewTestDB(t)
	ctx := context.Background()
	owner := mustCreateUser(t, sdb, "owner@example.com")
	other := mustCreateUser(t, sdb, "other@example.com")

	active := mustCreateItem(t, sdb, owner.ID, model.KindLost, "active item", model.Location{})
	resolved := mustCreateItem(t, sdb, owner.ID, model.KindLost, "resolved item", model.Location{})
	if _, err := sdb.ExecContext(ctx,
		`UPDATE items SET status = ? WHERE id = ?`, model.ItemStatusResolved, resolved.ID); err != nil {
		t.Fatalf("resolving item: %v", err)
	}

	// Anonymous viewers see active only, whatever they ask for.
	items, total, err := ListItemsByOwner(ctx, sdb, owner.ID, nil, model.ItemStatusResolved, 1, 10)
	if err != nil {
		t.Fatalf("listing as anonymous: %v", err)
	}
	if total != 1 || items[0].ID != active.ID {
		t.Errorf("anonymous viewer saw non-active items: total=%d", total)
	}

	// So do other authenticated users.
	_, total, err = ListItemsByOwner(ctx, sdb, owner.ID, other, "", 1, 10)
	if err != nil {
		t.Fatalf("listing as other user: %v", err)
	}
	if total != 1 {
		t.Errorf("other user saw non-active items: total=%d", total)
	}

	// The owner sees everything, and can filter by status.
	_, total, err = ListItemsByOwner(ctx, sdb, owner.ID, owner, "", 1, 10)
	if err != nil {
		t.Fatalf("listing as owner: %v", err)
	}
	if total != 2 {
		t.Errorf("owner expected 2 items, got %d", total)
	}
	items, total, err = ListItemsByOwner(ctx, sdb, owner.ID, owner, model.ItemStatusResolved, 1, 10)
	if err != nil {
		t.Fatalf("listing resolved as owner: %v", err)
	}
	if total != 1 || items[0].ID != resolved.ID {
		t.Errorf("owner status filter broken: total=%d", total)
	}
}
