package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    email         TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    name          TEXT NOT NULL,
    phone         TEXT NOT NULL DEFAULT '',
    location      TEXT NOT NULL DEFAULT '',
    avatar        TEXT NOT NULL DEFAULT '',
    is_active     INTEGER NOT NULL DEFAULT 1,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);

CREATE TABLE IF NOT EXISTS items (
    id            INTEGER PRIMARY KEY,
    kind          TEXT NOT NULL CHECK (kind IN ('lost', 'found')),
    title         TEXT NOT NULL,
    description   TEXT NOT NULL,
    category      TEXT NOT NULL DEFAULT 'other'
                  CHECK (category IN ('electronics', 'clothing', 'accessories',
                                      'documents', 'keys', 'bags', 'pets', 'other')),
    lat           REAL NOT NULL DEFAULT 0,
    lng           REAL NOT NULL DEFAULT 0,
    address       TEXT NOT NULL DEFAULT '',
    city          TEXT NOT NULL DEFAULT '',
    state         TEXT NOT NULL DEFAULT '',
    country       TEXT NOT NULL DEFAULT '',
    location_note TEXT NOT NULL DEFAULT '',
    date_lost     DATETIME,
    date_found    DATETIME,
    owner_id      INTEGER NOT NULL REFERENCES users(id),
    status        TEXT NOT NULL DEFAULT 'active'
                  CHECK (status IN ('active', 'resolved', 'expired')),
    tags          TEXT NOT NULL DEFAULT '[]',
    contact_phone TEXT NOT NULL DEFAULT '',
    contact_email TEXT NOT NULL DEFAULT '',
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_items_kind     ON items(kind);
CREATE INDEX IF NOT EXISTS idx_items_category ON items(category);
CREATE INDEX IF NOT EXISTS idx_items_status   ON items(status);
CREATE INDEX IF NOT EXISTS idx_items_owner    ON items(owner_id);
CREATE INDEX IF NOT EXISTS idx_items_geo      ON items(lat, lng);

CREATE TABLE IF NOT EXISTS item_images (
    id       INTEGER PRIMARY KEY,
    item_id  INTEGER NOT NULL REFERENCES items(id),
    position INTEGER NOT NULL DEFAULT 0,
    url      TEXT NOT NULL,
    data     BLOB,
    mime     TEXT
);

CREATE INDEX IF NOT EXISTS idx_item_images_item ON item_images(item_id, position);

CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
    title, description,
    content='items', content_rowid='id',
    tokenize='unicode61'
);

CREATE TRIGGER IF NOT EXISTS items_fts_insert AFTER INSERT ON items BEGIN
    INSERT INTO items_fts(rowid, title, description)
    VALUES (new.id, new.title, new.description);
END;

CREATE TRIGGER IF NOT EXISTS items_fts_delete AFTER DELETE ON items BEGIN
    INSERT INTO items_fts(items_fts, rowid, title, description)
    VALUES ('delete', old.id, old.title, old.description);
END;

CREATE TRIGGER IF NOT EXISTS items_fts_update AFTER UPDATE OF title, description ON items BEGIN
    INSERT INTO items_fts(items_fts, rowid, title, description)
    VALUES ('delete', old.id, old.title, old.description);
    INSERT INTO items_fts(rowid, title, description)
    VALUES (new.id, new.title, new.description);
END;

CREATE TABLE IF NOT EXISTS matches (
    id                  INTEGER PRIMARY KEY,
    lost_item_id        INTEGER NOT NULL REFERENCES items(id),
    found_item_id       INTEGER NOT NULL REFERENCES items(id),
    confidence          REAL NOT NULL DEFAULT 0 CHECK (confidence >= 0 AND confidence <= 1),
    status              TEXT NOT NULL DEFAULT 'suggested'
                        CHECK (status IN ('suggested', 'contacted', 'confirmed', 'rejected')),
    match_reasons       TEXT NOT NULL DEFAULT '[]',
    text_similarity     REAL,
    location_distance_m REAL,
    category_match      INTEGER NOT NULL DEFAULT 0,
    date_difference_d   REAL,
    image_similarity    REAL,
    contacted_at        DATETIME,
    confirmed_at        DATETIME,
    rejected_at         DATETIME,
    created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_pair ON matches(lost_item_id, found_item_id);
CREATE INDEX IF NOT EXISTS idx_matches_status     ON matches(status);
CREATE INDEX IF NOT EXISTS idx_matches_confidence ON matches(confidence DESC);

CREATE TABLE IF NOT EXISTS messages (
    id             INTEGER PRIMARY KEY,
    match_id       INTEGER NOT NULL REFERENCES matches(id),
    sender_id      INTEGER NOT NULL REFERENCES users(id),
    receiver_id    INTEGER NOT NULL REFERENCES users(id),
    content        TEXT NOT NULL,
    kind           TEXT NOT NULL DEFAULT 'text' CHECK (kind IN ('text', 'image', 'system')),
    read           INTEGER NOT NULL DEFAULT 0,
    read_at        DATETIME,
    image_url      TEXT NOT NULL DEFAULT '',
    system_subtype TEXT NOT NULL DEFAULT ''
                   CHECK (system_subtype IN ('', 'match_suggested', 'item_claimed', 'item_returned')),
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_match    ON messages(match_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id, read);

CREATE TABLE IF NOT EXISTS saved_searches (
    id         INTEGER PRIMARY KEY,
    owner_id   INTEGER NOT NULL REFERENCES users(id),
    name       TEXT NOT NULL,
    query      TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_saved_searches_owner ON saved_searches(owner_id);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables, indexes, and triggers if they don't
// already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
