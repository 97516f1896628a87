// Package sqlite implements the durable message store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chanmem/chanmem/memory"
)

// maxTextLen bounds the stored message body.
const maxTextLen = 4096

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	channel   TEXT NOT NULL,
	author    TEXT NOT NULL,
	role      TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
	text      TEXT NOT NULL,
	timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_channel_ts ON messages(channel, timestamp);
`

// Store is the SQLite-backed memory.MessageStore.
type Store struct {
	db *sql.DB
}

var _ memory.MessageStore = (*Store)(nil)

// New opens (or creates) the message database at dbPath and ensures the
// schema exists. Schema creation is idempotent and safe to run
// concurrently with in-flight queries. If dbPath is empty, defaults to
// "./data/messages.db".
func New(ctx context.Context, dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = "./data/messages.db"
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Append inserts a new message and returns its id. Ids are strictly
// increasing across all channels (AUTOINCREMENT). Text beyond the
// bounded length is truncated.
func (s *Store) Append(ctx context.Context, channel, author, text string, role memory.Role) (int64, error) {
	if !role.Valid() {
		return -1, fmt.Errorf("sqlite: invalid role %q", role)
	}
	if len(text) > maxTextLen {
		text = text[:maxTextLen]
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (channel, author, role, text, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, channel, author, string(role), text, time.Now().UTC())
	if err != nil {
		return -1, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return -1, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit most recent messages for the channel,
// oldest to newest. The scan runs newest-first on (channel, timestamp)
// and the result is reversed so it reads chronologically.
func (s *Store) Recent(ctx context.Context, channel string, limit int) ([]memory.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, author, role, text, timestamp
		FROM messages
		WHERE channel = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Resolve loads messages by id; missing ids are absent from the map.
func (s *Store) Resolve(ctx context.Context, ids []int64) (map[int64]memory.Message, error) {
	result := make(map[int64]memory.Message, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, author, role, text, timestamp
		FROM messages
		WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query by id: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		result[msg.ID] = msg
	}
	return result, nil
}

// Stats returns total and per-channel message counts.
func (s *Store) Stats(ctx context.Context) (memory.Stats, error) {
	stats := memory.Stats{PerChannel: make(map[string]int64)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT channel, COUNT(*) FROM messages GROUP BY channel
	`)
	if err != nil {
		return stats, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var channel string
		var count int64
		if err := rows.Scan(&channel, &count); err != nil {
			return stats, fmt.Errorf("scan stats: %w", err)
		}
		stats.PerChannel[channel] = count
		stats.TotalCount += count
	}
	return stats, rows.Err()
}

// ListOlderThan returns refs for all messages older than cutoff.
func (s *Store) ListOlderThan(ctx context.Context, cutoff time.Time) ([]memory.Ref, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel FROM messages WHERE timestamp < ?
	`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("query expired: %w", err)
	}
	defer rows.Close()

	var refs []memory.Ref
	for rows.Next() {
		var ref memory.Ref
		if err := rows.Scan(&ref.ID, &ref.Channel); err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// PurgeOlderThan deletes all messages older than cutoff across all
// channels. Idempotent; a no-op when no rows qualify.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM messages WHERE timestamp < ?
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanMessages(rows *sql.Rows) ([]memory.Message, error) {
	var msgs []memory.Message
	for rows.Next() {
		var msg memory.Message
		var role string
		if err := rows.Scan(&msg.ID, &msg.Channel, &msg.Author, &role, &msg.Text, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = memory.Role(role)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
