package draft

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fpang/litter-report/internal/report"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS drafts (
	key        TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS drafts_expires_at ON drafts (expires_at);
`

// SQLite stores drafts as JSON rows in a local database file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Backend = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the draft database at path and
// removes rows whose retention has lapsed.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite %s: %w", path, err)
	}
	s := &SQLite{db: db, now: time.Now}
	if n, err := s.PurgeExpired(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to purge expired drafts")
	} else if n > 0 {
		log.Info().Int64("removed", n).Msg("Purged expired drafts")
	}
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// PurgeExpired deletes every row past its retention and returns the count.
func (s *SQLite) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE expires_at < ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge expired drafts: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) GetDraft(ctx context.Context, key string) (*report.Draft, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM drafts WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select draft key=%s: %w", key, err)
	}
	var d report.Draft
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return nil, fmt.Errorf("decode draft key=%s: %w", key, err)
	}
	return &d, nil
}

func (s *SQLite) PutDraft(ctx context.Context, key string, d *report.Draft) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft key=%s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (key, body, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, expires_at = excluded.expires_at`,
		key, string(body), d.CreatedAt.Add(Retention).Unix())
	if err != nil {
		return fmt.Errorf("upsert draft key=%s: %w", key, err)
	}
	return nil
}

func (s *SQLite) DeleteDraft(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete draft key=%s: %w", key, err)
	}
	return nil
}
