package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/erazemk/najdeno/internal/geo"
	"github.com/erazemk/najdeno/internal/model"
)

// matchCols is the select list for a match row alone; the joined item and
// owner columns follow it in matchQuery.
const matchCols = `m.id, m.lost_item_id, m.found_item_id, m.confidence, m.status,
	m.match_reasons, m.text_similarity, m.location_distance_m, m.category_match,
	m.date_difference_d, m.image_similarity,
	m.contacted_at, m.confirmed_at, m.rejected_at, m.created_at, m.updated_at`

// matchQuery joins a match with both items and both owners in one row.
func matchQuery(where string) string {
	return "SELECT " + matchCols + ", " + itemCols("li", "lu") + ", " + itemCols("fi", "fu") + `
		FROM matches m
		JOIN items li ON li.id = m.lost_item_id
		JOIN users lu ON lu.id = li.owner_id
		JOIN items fi ON fi.id = m.found_item_id
		JOIN users fu ON fu.id = fi.owner_id
		` + where
}

type matchScan struct {
	match       model.Match
	reasons     string
	textSim     sql.NullFloat64
	locDist     sql.NullFloat64
	catMatch    sql.NullBool
	dateDiff    sql.NullFloat64
	imageSim    sql.NullFloat64
	contactedAt sql.NullTime
	confirmedAt sql.NullTime
	rejectedAt  sql.NullTime
	lost        itemScan
	found       itemScan
}

func (s *matchScan) dests() []any {
	dests := []any{
		&s.match.ID, &s.match.LostItemID, &s.match.FoundItemID, &s.match.Confidence,
		&s.match.Status, &s.reasons, &s.textSim, &s.locDist, &s.catMatch,
		&s.dateDiff, &s.imageSim,
		&s.contactedAt, &s.confirmedAt, &s.rejectedAt,
		&s.match.CreatedAt, &s.match.UpdatedAt,
	}
	dests = append(dests, s.lost.dests()...)
	return append(dests, s.found.dests()...)
}

func (s *matchScan) finish() *model.Match {
	m := s.match
	m.Reasons = decodeStrings(s.reasons)
	m.Metadata = model.MatchMetadata{CategoryMatch: s.catMatch.Bool}
	if s.textSim.Valid {
		m.Metadata.TextSimilarity = &s.textSim.Float64
	}
	if s.locDist.Valid {
		m.Metadata.LocationDistanceMeters = &s.locDist.Float64
	}
	if s.dateDiff.Valid {
		m.Metadata.DateDifferenceDays = &s.dateDiff.Float64
	}
	if s.imageSim.Valid {
		m.Metadata.ImageSimilarity = &s.imageSim.Float64
	}
	m.ContactedAt = timePtr(s.contactedAt)
	m.ConfirmedAt = timePtr(s.confirmedAt)
	m.RejectedAt = timePtr(s.rejectedAt)
	m.LostItem = s.lost.finish()
	m.FoundItem = s.found.finish()
	return &m
}

// GetMatch returns a match with both items and owners resolved, or (nil, nil).
func GetMatch(ctx context.Context, db *sql.DB, id int64) (*model.Match, error) {
	var s matchScan
	err := db.QueryRowContext(ctx, matchQuery("WHERE m.id = ?"), id).Scan(s.dests()...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting match: %w", err)
	}
	m := s.finish()

	pair := []model.Item{*m.LostItem, *m.FoundItem}
	if err := attachImages(ctx, db, pair); err != nil {
		return nil, err
	}
	m.LostItem, m.FoundItem = &pair[0], &pair[1]
	return m, nil
}

// CreateMatch links a lost item to a found item on behalf of creatorID,
// who must own one of the two items. Both items must exist and have the
// expected kinds, the confidence must lie in [0, 1], and every reason must
// be a known reason code. A second match over the same pair reports
// ErrConflict.
func CreateMatch(ctx context.Context, db *sql.DB, creatorID, lostItemID, foundItemID int64, confidence float64, reasons []string, meta model.MatchMetadata) (*model.Match, error) {
	lost, err := GetItem(ctx, db, lostItemID)
	if err != nil {
		return nil, err
	}
	if lost == nil {
		return nil, fmt.Errorf("%w: lost item %d", ErrNotFound, lostItemID)
	}
	found, err := GetItem(ctx, db, foundItemID)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: found item %d", ErrNotFound, foundItemID)
	}

	if !lost.OwnedBy(creatorID) && !found.OwnedBy(creatorID) {
		return nil, fmt.Errorf("%w: you must own one of the matched items", ErrForbidden)
	}

	if lost.Kind != model.KindLost {
		return nil, fmt.Errorf("%w: item %d is not a lost item", ErrInvalid, lostItemID)
	}
	if found.Kind != model.KindFound {
		return nil, fmt.Errorf("%w: item %d is not a found item", ErrInvalid, foundItemID)
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalid)
	}
	for _, r := range reasons {
		if !model.ValidMatchReason(r) {
			return nil, fmt.Errorf("%w: unknown match reason %q", ErrInvalid, r)
		}
	}

	var textSim, locDist, dateDiff, imageSim any
	if meta.TextSimilarity != nil {
		textSim = *meta.TextSimilarity
	}
	if meta.LocationDistanceMeters != nil {
		locDist = *meta.LocationDistanceMeters
	}
	if meta.DateDifferenceDays != nil {
		dateDiff = *meta.DateDifferenceDays
	}
	if meta.ImageSimilarity != nil {
		imageSim = *meta.ImageSimilarity
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO matches (lost_item_id, found_item_id, confidence, match_reasons,
		                      text_similarity, location_distance_m, category_match,
		                      date_difference_d, image_similarity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lostItemID, foundItemID, confidence, encodeStrings(reasons),
		textSim, locDist, meta.CategoryMatch, dateDiff, imageSim,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: match between items %d and %d already exists",
				ErrConflict, lostItemID, foundItemID)
		}
		return nil, fmt.Errorf("creating match: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting match id: %w", err)
	}
	return GetMatch(ctx, db, id)
}

// matchSortColumns is the allow-list of sortable match fields.
var matchSortColumns = map[string]string{
	"createdAt":  "m.created_at",
	"updatedAt":  "m.updated_at",
	"confidence": "m.confidence",
	"status":     "m.status",
}

// ListMatches returns one page of the matches whose items belong to
// viewerID, newest or as requested, plus the total count.
func ListMatches(ctx context.Context, db *sql.DB, viewerID int64, status, sortBy, sortOrder string, page, limit int) ([]model.Match, int, error) {
	page, limit = clampPage(page, limit)

	where := []string{"(li.owner_id = ? OR fi.owner_id = ?)"}
	args := []any{viewerID, viewerID}
	if status != "" {
		if !model.ValidMatchStatus(status) {
			return nil, 0, fmt.Errorf("%w: unknown match status %q", ErrInvalid, status)
		}
		where = append(where, "m.status = ?")
		args = append(args, status)
	}
	clause := "WHERE " + strings.Join(where, " AND ")

	var total int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM matches m
		 JOIN items li ON li.id = m.lost_item_id
		 JOIN items fi ON fi.id = m.found_item_id `+clause, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting matches: %w", err)
	}

	sortCol, ok := matchSortColumns[sortBy]
	if !ok {
		sortCol = "m.created_at"
	}
	dir := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		dir = "ASC"
	}

	rows, err := db.QueryContext(ctx,
		matchQuery(clause)+fmt.Sprintf(" ORDER BY %s %s, m.id %s LIMIT ? OFFSET ?", sortCol, dir, dir),
		append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		var s matchScan
		if err := rows.Scan(s.dests()...); err != nil {
			return nil, 0, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, *s.finish())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading matches: %w", err)
	}
	return matches, total, nil
}

// UpdateMatchStatus moves a match to the given status. The first entry
// into contacted, confirmed, or rejected stamps the matching timestamp;
// re-entering a status later leaves the original stamp alone.
func UpdateMatchStatus(ctx context.Context, db *sql.DB, id int64, status string) (*model.Match, error) {
	if !model.ValidMatchStatus(status) {
		return nil, fmt.Errorf("%w: unknown match status %q", ErrInvalid, status)
	}

	result, err := db.ExecContext(ctx,
		`UPDATE matches SET
		   status = ?,
		   contacted_at = CASE WHEN ? = 'contacted' THEN COALESCE(contacted_at, CURRENT_TIMESTAMP) ELSE contacted_at END,
		   confirmed_at = CASE WHEN ? = 'confirmed' THEN COALESCE(confirmed_at, CURRENT_TIMESTAMP) ELSE confirmed_at END,
		   rejected_at  = CASE WHEN ? = 'rejected'  THEN COALESCE(rejected_at,  CURRENT_TIMESTAMP) ELSE rejected_at  END,
		   updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		status, status, status, status, id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating match status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("updating match status: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: match %d", ErrNotFound, id)
	}
	return GetMatch(ctx, db, id)
}

// DeleteMatch removes a match and its conversation in one transaction.
func DeleteMatch(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting match delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE match_id = ?`, id); err != nil {
		return fmt.Errorf("deleting match messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM matches WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting match: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing match delete: %w", err)
	}
	return nil
}

// Candidate scoring weights and cutoffs. A candidate needs at least one
// reason to appear at all.
const (
	candidateLimit      = 20
	candidateMaxKm      = 25.0
	candidateMaxDays    = 30.0
	weightText          = 0.35
	weightLocation      = 0.25
	weightCategory      = 0.2
	weightDate          = 0.2
	minTokenLen         = 3
	minTextSimForReason = 0.1
)

// FindCandidates scores active counterpart-kind items from other owners
// against the given item and returns the most plausible matches, best
// first. Scores combine text similarity over title and description,
// proximity, category equality, and reference-date closeness.
func FindCandidates(ctx context.Context, db *sql.DB, item *model.Item) ([]model.MatchCandidate, error) {
	otherKind := model.KindFound
	if item.Kind == model.KindFound {
		otherKind = model.KindLost
	}

	rows, err := db.QueryContext(ctx,
		"SELECT "+itemCols("i", "u")+` FROM items i JOIN users u ON u.id = i.owner_id
		 WHERE i.kind = ? AND i.status = ? AND i.owner_id != ?`,
		otherKind, model.ItemStatusActive, item.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("listing candidate items: %w", err)
	}
	others, err := collectItems(rows)
	if err != nil {
		return nil, err
	}

	itemTokens := tokenize(item.Title + " " + item.Description)
	var candidates []model.MatchCandidate
	for i := range others {
		other := &others[i]

		var reasons []string
		var meta model.MatchMetadata

		textSim := jaccard(itemTokens, tokenize(other.Title+" "+other.Description))
		meta.TextSimilarity = &textSim
		if textSim >= minTextSimForReason {
			reasons = append(reasons, model.ReasonTextSimilarity)
		}

		locScore := 0.0
		if item.Location.HasCoordinates() && other.Location.HasCoordinates() {
			km := geo.DistanceKm(item.Location.Lat, item.Location.Lng,
				other.Location.Lat, other.Location.Lng)
			meters := km * 1000
			meta.LocationDistanceMeters = &meters
			if km <= candidateMaxKm {
				reasons = append(reasons, model.ReasonLocationProximity)
				locScore = 1 - km/candidateMaxKm
			}
		}

		catScore := 0.0
		if item.Category == other.Category {
			meta.CategoryMatch = true
			reasons = append(reasons, model.ReasonCategoryMatch)
			catScore = 1
		}

		dateScore := 0.0
		if d1, d2 := item.ReferenceDate(), other.ReferenceDate(); d1 != nil && d2 != nil {
			days := math.Abs(d1.Sub(*d2).Hours() / 24)
			meta.DateDifferenceDays = &days
			if days <= candidateMaxDays {
				reasons = append(reasons, model.ReasonDateCorrelation)
				dateScore = 1 - days/candidateMaxDays
			}
		}

		if len(reasons) == 0 {
			continue
		}

		confidence := weightText*textSim + weightLocation*locScore +
			weightCategory*catScore + weightDate*dateScore
		if confidence > 1 {
			confidence = 1
		}

		candidates = append(candidates, model.MatchCandidate{
			Item:       other,
			Confidence: confidence,
			Reasons:    reasons,
			Metadata:   meta,
		})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].Confidence != candidates[b].Confidence {
			return candidates[a].Confidence > candidates[b].Confidence
		}
		return candidates[a].Item.ID < candidates[b].Item.ID
	})
	if len(candidates) > candidateLimit {
		candidates = candidates[:candidateLimit]
	}

	items := make([]model.Item, len(candidates))
	for i := range candidates {
		items[i] = *candidates[i].Item
	}
	if err := attachImages(ctx, db, items); err != nil {
		return nil, err
	}
	for i := range candidates {
		candidates[i].Item = &items[i]
	}
	return candidates, nil
}

// tokenize lowercases text and keeps alphanumeric words of at least
// minTokenLen runes.
func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r > 127)
	}) {
		if len([]rune(word)) >= minTokenLen {
			tokens[word] = true
		}
	}
	return tokens
}

// jaccard is intersection over union of two token sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
