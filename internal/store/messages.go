package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/erazemk/najdeno/internal/model"
)

// MaxMessageLength caps message content, counted in characters.
const MaxMessageLength = 1000

// MessagesDefaultLimit is the page size for message listings.
const MessagesDefaultLimit = 50

const messageCols = `ms.id, ms.match_id, ms.sender_id, ms.receiver_id, ms.content,
	ms.kind, ms.image_url, ms.system_subtype, ms.read, ms.read_at, ms.created_at,
	su.name, su.email, su.phone, ru.name, ru.email, ru.phone`

const messageQuery = `SELECT ` + messageCols + `
	FROM messages ms
	JOIN users su ON su.id = ms.sender_id
	JOIN users ru ON ru.id = ms.receiver_id`

func scanMessage(s scanner) (*model.Message, error) {
	var m model.Message
	var imageURL, subtype sql.NullString
	var readAt sql.NullTime
	var sender, receiver model.UserSummary
	err := s.Scan(
		&m.ID, &m.MatchID, &m.SenderID, &m.ReceiverID, &m.Content,
		&m.Kind, &imageURL, &subtype, &m.Read, &readAt, &m.CreatedAt,
		&sender.Name, &sender.Email, &sender.Phone,
		&receiver.Name, &receiver.Email, &receiver.Phone,
	)
	if err != nil {
		return nil, err
	}
	m.Metadata.ImageURL = imageURL.String
	m.Metadata.SystemSubtype = subtype.String
	m.ReadAt = timePtr(readAt)
	sender.ID = m.SenderID
	receiver.ID = m.ReceiverID
	m.Sender = &sender
	m.Receiver = &receiver
	return &m, nil
}

// CreateMessage appends a message to a match's conversation. The sender
// must own one of the matched items; the receiver is always the owner of
// the other side.
func CreateMessage(ctx context.Context, db *sql.DB, matchID, senderID int64, content, kind string, meta model.MessageMetadata) (*model.Message, error) {
	match, err := GetMatch(ctx, db, matchID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, fmt.Errorf("%w: match %d", ErrNotFound, matchID)
	}

	receiverID, ok := match.CounterpartOwner(senderID)
	if !ok {
		return nil, fmt.Errorf("%w: not a participant of match %d", ErrForbidden, matchID)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message content is required", ErrInvalid)
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message content exceeds %d characters", ErrInvalid, MaxMessageLength)
	}
	if kind == "" {
		kind = model.MessageKindText
	}
	if !model.ValidMessageKind(kind) {
		return nil, fmt.Errorf("%w: unknown message kind %q", ErrInvalid, kind)
	}
	if kind == model.MessageKindSystem && meta.SystemSubtype != "" && !model.ValidSystemSubtype(meta.SystemSubtype) {
		return nil, fmt.Errorf("%w: unknown system subtype %q", ErrInvalid, meta.SystemSubtype)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO messages (match_id, sender_id, receiver_id, content, kind, image_url, system_subtype)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		matchID, senderID, receiverID, content, kind, meta.ImageURL, meta.SystemSubtype,
	)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting message id: %w", err)
	}

	// Conversations sort by the match's last activity.
	if _, err := db.ExecContext(ctx,
		`UPDATE matches SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, matchID); err != nil {
		return nil, fmt.Errorf("touching match: %w", err)
	}

	msg, err := scanMessage(db.QueryRowContext(ctx, messageQuery+" WHERE ms.id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("loading message: %w", err)
	}
	return msg, nil
}

// ListMessages returns one page of a match's messages, oldest first, and
// then marks the viewer's unread messages in that match as read. The page
// reflects the read flags as they stood before the call.
func ListMessages(ctx context.Context, db *sql.DB, matchID, viewerID int64, page, limit int) ([]model.Message, int, error) {
	match, err := GetMatch(ctx, db, matchID)
	if err != nil {
		return nil, 0, err
	}
	if match == nil {
		return nil, 0, fmt.Errorf("%w: match %d", ErrNotFound, matchID)
	}
	if !match.HasParticipant(viewerID) {
		return nil, 0, fmt.Errorf("%w: not a participant of match %d", ErrForbidden, matchID)
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = MessagesDefaultLimit
	}

	var total int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE match_id = ?`, matchID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting messages: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		messageQuery+` WHERE ms.match_id = ?
		 ORDER BY ms.created_at ASC, ms.id ASC LIMIT ? OFFSET ?`,
		matchID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading messages: %w", err)
	}

	if _, err := MarkMessagesRead(ctx, db, matchID, viewerID); err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// MarkMessagesRead marks the viewer's unread messages in a match as read
// and reports how many changed. read_at is stamped once per message.
func MarkMessagesRead(ctx context.Context, db *sql.DB, matchID, viewerID int64) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE messages SET read = 1, read_at = COALESCE(read_at, CURRENT_TIMESTAMP)
		 WHERE match_id = ? AND receiver_id = ? AND read = 0`,
		matchID, viewerID)
	if err != nil {
		return 0, fmt.Errorf("marking messages read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("marking messages read: %w", err)
	}
	return n, nil
}

// CountUnread returns the viewer's total unread message count.
func CountUnread(ctx context.Context, db *sql.DB, viewerID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND read = 0`, viewerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}
	return n, nil
}

// ListConversations returns one page of the viewer's conversations, most
// recently active match first, each with its latest message and the
// viewer's unread count. Only matches with at least one message count as
// conversations; the total counts those, independent of participation in
// the current page.
func ListConversations(ctx context.Context, db *sql.DB, viewerID int64, page, limit int) ([]model.Conversation, int, error) {
	page, limit = clampPage(page, limit)

	var total int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT match_id) FROM messages WHERE sender_id = ? OR receiver_id = ?`,
		viewerID, viewerID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting conversations: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT m.id FROM matches m
		 JOIN items li ON li.id = m.lost_item_id
		 JOIN items fi ON fi.id = m.found_item_id
		 WHERE (li.owner_id = ? OR fi.owner_id = ?)
		   AND m.id IN (SELECT DISTINCT match_id FROM messages WHERE sender_id = ? OR receiver_id = ?)
		 ORDER BY m.updated_at DESC, m.id DESC LIMIT ? OFFSET ?`,
		viewerID, viewerID, viewerID, viewerID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("listing conversations: %w", err)
	}
	var matchIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scanning conversation: %w", err)
		}
		matchIDs = append(matchIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading conversations: %w", err)
	}

	conversations := make([]model.Conversation, 0, len(matchIDs))
	for _, matchID := range matchIDs {
		match, err := GetMatch(ctx, db, matchID)
		if err != nil {
			return nil, 0, err
		}
		if match == nil {
			continue
		}

		latest, err := scanMessage(db.QueryRowContext(ctx,
			messageQuery+` WHERE ms.match_id = ? ORDER BY ms.created_at DESC, ms.id DESC LIMIT 1`,
			matchID))
		if err == sql.ErrNoRows {
			latest = nil
		} else if err != nil {
			return nil, 0, fmt.Errorf("loading latest message: %w", err)
		}

		var unread int
		err = db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM messages WHERE match_id = ? AND receiver_id = ? AND read = 0`,
			matchID, viewerID).Scan(&unread)
		if err != nil {
			return nil, 0, fmt.Errorf("counting unread messages: %w", err)
		}

		conversations = append(conversations, model.Conversation{
			Match:         match,
			LatestMessage: latest,
			UnreadCount:   unread,
		})
	}
	return conversations, total, nil
}
