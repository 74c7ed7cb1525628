package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/erazemk/najdeno/internal/geo"
	"github.com/erazemk/najdeno/internal/model"
)

// DefaultRadiusKm is the geo filter radius used when lat/lng are given
// without an explicit radius.
const DefaultRadiusKm = 50.0

// Field length caps, counted in characters.
const (
	MaxTitleLength        = 100
	MaxDescriptionLength  = 1000
	MaxLocationNoteLength = 200
)

// validateItemLengths enforces the field caps shared by create and update.
func validateItemLengths(title, description, locationNote string) error {
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalid, MaxTitleLength)
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalid, MaxDescriptionLength)
	}
	if utf8.RuneCountInString(locationNote) > MaxLocationNoteLength {
		return fmt.Errorf("%w: location note exceeds %d characters", ErrInvalid, MaxLocationNoteLength)
	}
	return nil
}

// itemCols returns the select list for an item joined with its owner,
// using the given table aliases.
func itemCols(i, u string) string {
	return fmt.Sprintf(`%[1]s.id, %[1]s.kind, %[1]s.title, %[1]s.description, %[1]s.category,
		%[1]s.lat, %[1]s.lng, %[1]s.address, %[1]s.city, %[1]s.state, %[1]s.country,
		%[1]s.location_note, %[1]s.date_lost, %[1]s.date_found, %[1]s.owner_id,
		%[1]s.status, %[1]s.tags, %[1]s.contact_phone, %[1]s.contact_email,
		%[1]s.created_at, %[1]s.updated_at, %[2]s.name, %[2]s.email, %[2]s.phone`, i, u)
}

// itemScan is a scratch row target for itemCols.
type itemScan struct {
	item      model.Item
	dateLost  sql.NullTime
	dateFound sql.NullTime
	tags      string
	owner     model.UserSummary
}

func (s *itemScan) dests() []any {
	return []any{
		&s.item.ID, &s.item.Kind, &s.item.Title, &s.item.Description, &s.item.Category,
		&s.item.Location.Lat, &s.item.Location.Lng, &s.item.Location.Address,
		&s.item.Location.City, &s.item.Location.State, &s.item.Location.Country,
		&s.item.LocationNote, &s.dateLost, &s.dateFound, &s.item.OwnerID,
		&s.item.Status, &s.tags, &s.item.ContactInfo.Phone, &s.item.ContactInfo.Email,
		&s.item.CreatedAt, &s.item.UpdatedAt, &s.owner.Name, &s.owner.Email, &s.owner.Phone,
	}
}

func (s *itemScan) finish() *model.Item {
	item := s.item
	item.DateLost = timePtr(s.dateLost)
	item.DateFound = timePtr(s.dateFound)
	item.Tags = decodeStrings(s.tags)
	item.Images = []string{}
	owner := s.owner
	owner.ID = item.OwnerID
	item.Owner = &owner
	return &item
}

// itemSortColumns is the allow-list of sortable fields.
var itemSortColumns = map[string]string{
	"createdAt": "i.created_at",
	"updatedAt": "i.updated_at",
	"title":     "i.title",
	"category":  "i.category",
	"status":    "i.status",
	"kind":      "i.kind",
	"dateLost":  "i.date_lost",
	"dateFound": "i.date_found",
}

// ItemFilter holds the conjunctive optional filters for item listings.
type ItemFilter struct {
	Kind     string
	Category string
	Status   string // defaults to active when empty
	City     string // case-insensitive substring
	State    string // case-insensitive substring
	Search   string // full-text over title+description

	DateFrom *time.Time // matches either dateLost or dateFound
	DateTo   *time.Time

	Lat      *float64
	Lng      *float64
	RadiusKm float64 // DefaultRadiusKm when <= 0

	SortBy    string // allow-listed, default createdAt
	SortOrder string // asc|desc, default desc
	Page      int
	Limit     int
}

// ListItems returns one page of items matching the filter plus the total
// match count. Owners are resolved via join. When lat/lng are set, results
// are restricted to the radius and ordered by ascending distance before
// the requested sort key, with the distance attached per result.
//
// The geo path prefilters rows with a bounding box in SQL, then computes
// exact haversine distances, filters, sorts, and paginates in memory:
// SQLite has no 2dsphere equivalent, and the box keeps the candidate set
// proportional to the search area.
func ListItems(ctx context.Context, db *sql.DB, f ItemFilter) ([]model.Item, int, error) {
	page, limit := clampPage(f.Page, f.Limit)

	where, args := itemFilterClauses(f)

	sortCol, ok := itemSortColumns[f.SortBy]
	if !ok {
		sortCol = "i.created_at"
	}
	dir := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		dir = "ASC"
	}
	orderBy := fmt.Sprintf("%s %s, i.id %s", sortCol, dir, dir)

	base := "FROM items i JOIN users u ON u.id = i.owner_id WHERE " + strings.Join(where, " AND ")

	if f.Lat == nil || f.Lng == nil {
		var total int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) "+base, args...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("counting items: %w", err)
		}

		query := "SELECT " + itemCols("i", "u") + " " + base +
			" ORDER BY " + orderBy + " LIMIT ? OFFSET ?"
		rows, err := db.QueryContext(ctx, query, append(args, limit, (page-1)*limit)...)
		if err != nil {
			return nil, 0, fmt.Errorf("listing items: %w", err)
		}
		items, err := collectItems(rows)
		if err != nil {
			return nil, 0, err
		}
		if err := attachImages(ctx, db, items); err != nil {
			return nil, 0, err
		}
		return items, total, nil
	}

	// Geo path: fetch all bounding-box candidates in the requested order,
	// so that a stable distance sort keeps that order as the tie-break.
	radius := f.RadiusKm
	if radius <= 0 {
		radius = DefaultRadiusKm
	}

	rows, err := db.QueryContext(ctx, "SELECT "+itemCols("i", "u")+" "+base+" ORDER BY "+orderBy, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing items: %w", err)
	}
	candidates, err := collectItems(rows)
	if err != nil {
		return nil, 0, err
	}

	kept := candidates[:0]
	for i := range candidates {
		it := &candidates[i]
		d := geo.DistanceKm(*f.Lat, *f.Lng, it.Location.Lat, it.Location.Lng)
		if d > radius {
			continue
		}
		dist := d
		it.DistanceKm = &dist
		kept = append(kept, *it)
	}
	sort.SliceStable(kept, func(a, b int) bool {
		return *kept[a].DistanceKm < *kept[b].DistanceKm
	})

	total := len(kept)
	lo := (page - 1) * limit
	if lo > total {
		lo = total
	}
	hi := lo + limit
	if hi > total {
		hi = total
	}
	pageItems := kept[lo:hi]
	if err := attachImages(ctx, db, pageItems); err != nil {
		return nil, 0, err
	}
	return pageItems, total, nil
}

// itemFilterClauses translates the filter into WHERE clauses and args.
func itemFilterClauses(f ItemFilter) ([]string, []any) {
	status := f.Status
	if status == "" {
		status = model.ItemStatusActive
	}
	where := []string{"i.status = ?"}
	args := []any{status}

	if f.Kind == model.KindLost || f.Kind == model.KindFound {
		where = append(where, "i.kind = ?")
		args = append(args, f.Kind)
	}
	if f.Category != "" {
		where = append(where, "i.category = ?")
		args = append(args, f.Category)
	}
	if f.City != "" {
		where = append(where, "i.city LIKE ?")
		args = append(args, "%"+f.City+"%")
	}
	if f.State != "" {
		where = append(where, "i.state LIKE ?")
		args = append(args, "%"+f.State+"%")
	}
	if f.DateFrom != nil || f.DateTo != nil {
		from := time.Unix(0, 0).UTC()
		to := time.Now().UTC()
		if f.DateFrom != nil {
			from = *f.DateFrom
		}
		if f.DateTo != nil {
			to = *f.DateTo
		}
		where = append(where,
			"((i.date_lost >= ? AND i.date_lost <= ?) OR (i.date_found >= ? AND i.date_found <= ?))")
		args = append(args, from, to, from, to)
	}
	if f.Search != "" {
		if q := ftsQuery(f.Search); q != "" {
			where = append(where, "i.id IN (SELECT rowid FROM items_fts WHERE items_fts MATCH ?)")
			args = append(args, q)
		}
	}
	if f.Lat != nil && f.Lng != nil {
		radius := f.RadiusKm
		if radius <= 0 {
			radius = DefaultRadiusKm
		}
		minLat, maxLat, minLng, maxLng := geo.BoundingBox(*f.Lat, *f.Lng, radius)
		// (0, 0) means no coordinates were provided; never match it.
		where = append(where,
			"(i.lat != 0 OR i.lng != 0)",
			"i.lat BETWEEN ? AND ?",
			"i.lng BETWEEN ? AND ?")
		args = append(args, minLat, maxLat, minLng, maxLng)
	}
	return where, args
}

// ftsQuery turns free text into an FTS5 MATCH expression: terms quoted to
// neutralize operator syntax, OR-joined so any term can match.
func ftsQuery(s string) string {
	var terms []string
	for _, tok := range strings.Fields(s) {
		tok = strings.ReplaceAll(tok, `"`, "")
		if tok == "" {
			continue
		}
		terms = append(terms, `"`+tok+`"`)
	}
	return strings.Join(terms, " OR ")
}

func collectItems(rows *sql.Rows) ([]model.Item, error) {
	defer rows.Close()
	var items []model.Item
	for rows.Next() {
		var s itemScan
		if err := rows.Scan(s.dests()...); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *s.finish())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading items: %w", err)
	}
	return items, nil
}

// attachImages fills the ordered image URL lists for the given items.
func attachImages(ctx context.Context, db *sql.DB, items []model.Item) error {
	if len(items) == 0 {
		return nil
	}
	index := make(map[int64]*model.Item, len(items))
	placeholders := make([]string, 0, len(items))
	args := make([]any, 0, len(items))
	for i := range items {
		index[items[i].ID] = &items[i]
		placeholders = append(placeholders, "?")
		args = append(args, items[i].ID)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT item_id, url FROM item_images
		 WHERE item_id IN (`+strings.Join(placeholders, ",")+`)
		 ORDER BY item_id, position`, args...)
	if err != nil {
		return fmt.Errorf("loading item images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var itemID int64
		var url string
		if err := rows.Scan(&itemID, &url); err != nil {
			return fmt.Errorf("scanning item image: %w", err)
		}
		if it := index[itemID]; it != nil {
			it.Images = append(it.Images, url)
		}
	}
	return rows.Err()
}

// GetItem returns an item with owner summary and images, or (nil, nil).
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	var s itemScan
	err := db.QueryRowContext(ctx,
		"SELECT "+itemCols("i", "u")+" FROM items i JOIN users u ON u.id = i.owner_id WHERE i.id = ?",
		id,
	).Scan(s.dests()...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	item := s.finish()

	single := []model.Item{*item}
	if err := attachImages(ctx, db, single); err != nil {
		return nil, err
	}
	return &single[0], nil
}

// CreateItem validates the kind/date invariant and persists a new item
// with its image URLs.
func CreateItem(ctx context.Context, db *sql.DB, item *model.Item) (*model.Item, error) {
	switch item.Kind {
	case model.KindLost:
		if item.DateLost == nil {
			return nil, fmt.Errorf("%w: dateLost required for lost items", ErrInvalid)
		}
		if item.DateFound != nil {
			return nil, fmt.Errorf("%w: dateFound not allowed on lost items", ErrInvalid)
		}
	case model.KindFound:
		if item.DateFound == nil {
			return nil, fmt.Errorf("%w: dateFound required for found items", ErrInvalid)
		}
		if item.DateLost != nil {
			return nil, fmt.Errorf("%w: dateLost not allowed on found items", ErrInvalid)
		}
	default:
		return nil, fmt.Errorf("%w: kind must be lost or found", ErrInvalid)
	}

	if err := validateItemLengths(item.Title, item.Description, item.LocationNote); err != nil {
		return nil, err
	}

	category := item.Category
	if category == "" {
		category = model.DefaultCategory
	}
	if !model.ValidCategory(category) {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalid, category)
	}

	var dateLost, dateFound any
	if item.DateLost != nil {
		dateLost = item.DateLost.UTC()
	}
	if item.DateFound != nil {
		dateFound = item.DateFound.UTC()
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO items (kind, title, description, category, lat, lng, address, city,
		                    state, country, location_note, date_lost, date_found,
		                    owner_id, tags, contact_phone, contact_email)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Kind, item.Title, item.Description, category,
		item.Location.Lat, item.Location.Lng, item.Location.Address, item.Location.City,
		item.Location.State, item.Location.Country, item.LocationNote, dateLost, dateFound,
		item.OwnerID, encodeStrings(lowerAll(item.Tags)), item.ContactInfo.Phone, item.ContactInfo.Email,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	if err := replaceItemImages(ctx, db, id, item.Images); err != nil {
		return nil, err
	}

	return GetItem(ctx, db, id)
}

func lowerAll(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ItemPatch carries the allow-listed updatable fields. Nil means
// "leave unchanged". Owner, kind, and status are immutable here.
type ItemPatch struct {
	Title        *string
	Description  *string
	Category     *string
	Images       *[]string
	Location     *model.Location
	LocationNote *string
	DateLost     *time.Time
	DateFound    *time.Time
	Tags         *[]string
	ContactInfo  *model.ContactInfo
}

// UpdateItem applies the patch to an existing item. Date updates must
// match the item's kind so the kind/date invariant survives edits.
func UpdateItem(ctx context.Context, db *sql.DB, id int64, patch ItemPatch) (*model.Item, error) {
	current, err := GetItem(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: item %d", ErrNotFound, id)
	}

	if patch.DateLost != nil && current.Kind != model.KindLost {
		return nil, fmt.Errorf("%w: dateLost not allowed on found items", ErrInvalid)
	}
	if patch.DateFound != nil && current.Kind != model.KindFound {
		return nil, fmt.Errorf("%w: dateFound not allowed on lost items", ErrInvalid)
	}

	title, description, note := current.Title, current.Description, current.LocationNote
	if patch.Title != nil {
		title = *patch.Title
	}
	if patch.Description != nil {
		description = *patch.Description
	}
	if patch.LocationNote != nil {
		note = *patch.LocationNote
	}
	if err := validateItemLengths(title, description, note); err != nil {
		return nil, err
	}

	set := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []any{}
	add := func(clause string, v any) {
		set = append(set, clause)
		args = append(args, v)
	}

	if patch.Title != nil {
		add("title = ?", *patch.Title)
	}
	if patch.Description != nil {
		add("description = ?", *patch.Description)
	}
	if patch.Category != nil {
		if !model.ValidCategory(*patch.Category) {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalid, *patch.Category)
		}
		add("category = ?", *patch.Category)
	}
	if patch.Location != nil {
		add("lat = ?", patch.Location.Lat)
		add("lng = ?", patch.Location.Lng)
		add("address = ?", patch.Location.Address)
		add("city = ?", patch.Location.City)
		add("state = ?", patch.Location.State)
		add("country = ?", patch.Location.Country)
	}
	if patch.LocationNote != nil {
		add("location_note = ?", *patch.LocationNote)
	}
	if patch.DateLost != nil {
		add("date_lost = ?", patch.DateLost.UTC())
	}
	if patch.DateFound != nil {
		add("date_found = ?", patch.DateFound.UTC())
	}
	if patch.Tags != nil {
		add("tags = ?", encodeStrings(lowerAll(*patch.Tags)))
	}
	if patch.ContactInfo != nil {
		add("contact_phone = ?", patch.ContactInfo.Phone)
		add("contact_email = ?", patch.ContactInfo.Email)
	}

	args = append(args, id)
	_, err = db.ExecContext(ctx,
		"UPDATE items SET "+strings.Join(set, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}

	if patch.Images != nil {
		if err := replaceItemImages(ctx, db, id, *patch.Images); err != nil {
			return nil, err
		}
	}

	return GetItem(ctx, db, id)
}

// replaceItemImages reconciles the stored image rows with urls. Rows whose
// URL survives keep their row (and any uploaded blob); the rest go away.
func replaceItemImages(ctx context.Context, db *sql.DB, itemID int64, urls []string) error {
	rows, err := db.QueryContext(ctx,
		`SELECT id, url FROM item_images WHERE item_id = ?`, itemID)
	if err != nil {
		return fmt.Errorf("loading item images: %w", err)
	}
	existing := make(map[string]int64)
	for rows.Next() {
		var id int64
		var url string
		if err := rows.Scan(&id, &url); err != nil {
			rows.Close()
			return fmt.Errorf("scanning item image: %w", err)
		}
		existing[url] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading item images: %w", err)
	}

	kept := make(map[int64]bool)
	for pos, url := range urls {
		if id, ok := existing[url]; ok {
			kept[id] = true
			if _, err := db.ExecContext(ctx,
				`UPDATE item_images SET position = ? WHERE id = ?`, pos, id); err != nil {
				return fmt.Errorf("reordering item image: %w", err)
			}
			continue
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO item_images (item_id, position, url) VALUES (?, ?, ?)`,
			itemID, pos, url); err != nil {
			return fmt.Errorf("adding item image: %w", err)
		}
	}

	for url, id := range existing {
		if !kept[id] {
			if _, err := db.ExecContext(ctx,
				`DELETE FROM item_images WHERE id = ?`, id); err != nil {
				return fmt.Errorf("removing item image %q: %w", url, err)
			}
		}
	}
	return nil
}

// AddItemImage stores an uploaded, processed photo blob for an item and
// returns the image row id. The serving URL is appended to the item's
// image list by the caller once the id is known.
func AddItemImage(ctx context.Context, db *sql.DB, itemID int64, url string, data []byte, mime string) (int64, error) {
	var next int
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM item_images WHERE item_id = ?`, itemID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("finding image position: %w", err)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO item_images (item_id, position, url, data, mime) VALUES (?, ?, ?, ?, ?)`,
		itemID, next, url, data, mime,
	)
	if err != nil {
		return 0, fmt.Errorf("storing item image: %w", err)
	}
	return result.LastInsertId()
}

// SetItemImageURL fixes up the serving URL of a stored image row.
func SetItemImageURL(ctx context.Context, db *sql.DB, imageID int64, url string) error {
	if _, err := db.ExecContext(ctx,
		`UPDATE item_images SET url = ? WHERE id = ?`, url, imageID); err != nil {
		return fmt.Errorf("setting item image url: %w", err)
	}
	return nil
}

// GetItemImage returns an uploaded image blob and MIME type, or nil data
// when the row is absent or URL-only.
func GetItemImage(ctx context.Context, db *sql.DB, itemID, imageID int64) ([]byte, string, error) {
	var data []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT data, mime FROM item_images WHERE id = ? AND item_id = ?`, imageID, itemID,
	).Scan(&data, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return data, mime.String, nil
}

// DeleteItem removes an item together with its images, its matches, and
// their messages, in one transaction. Matches share the item but messages
// belong to matches, so children go first.
func DeleteItem(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting item delete: %w", err)
	}
	defer tx.Rollback()

	steps := []string{
		`DELETE FROM messages WHERE match_id IN
		   (SELECT id FROM matches WHERE lost_item_id = ? OR found_item_id = ?)`,
		`DELETE FROM matches WHERE lost_item_id = ? OR found_item_id = ?`,
		`DELETE FROM item_images WHERE item_id = ?`,
		`DELETE FROM items WHERE id = ?`,
	}
	argn := []int{2, 2, 1, 1}
	for i, q := range steps {
		args := make([]any, argn[i])
		for j := range args {
			args[j] = id
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("deleting item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing item delete: %w", err)
	}
	return nil
}

// ListItemsByOwner returns one page of an owner's items. Anyone other than
// the owner (including anonymous viewers) only ever sees active items,
// regardless of the requested status.
func ListItemsByOwner(ctx context.Context, db *sql.DB, ownerID int64, viewer *model.User, status string, page, limit int) ([]model.Item, int, error) {
	page, limit = clampPage(page, limit)

	where := []string{"i.owner_id = ?"}
	args := []any{ownerID}

	if viewer == nil || viewer.ID != ownerID {
		where = append(where, "i.status = ?")
		args = append(args, model.ItemStatusActive)
	} else if status != "" {
		where = append(where, "i.status = ?")
		args = append(args, status)
	}

	base := "FROM items i JOIN users u ON u.id = i.owner_id WHERE " + strings.Join(where, " AND ")

	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) "+base, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting owner items: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		"SELECT "+itemCols("i", "u")+" "+base+" ORDER BY i.created_at DESC, i.id DESC LIMIT ? OFFSET ?",
		append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing owner items: %w", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := attachImages(ctx, db, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
