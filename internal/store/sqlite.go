package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jefe-johann/grab-otp/internal/model"

	"golang.org/x/oauth2"
	_ "modernc.org/sqlite"
)

const (
	keyLastOutcome = "last_outcome"
	keyAutoFill    = "auto_fill"
	keyBadge       = "badge"
	keyCredential  = "credential"
)

// SQLiteStore is the local persisted storage: a single-slot outcome record,
// the auto-fill preference, the badge and an optional cached credential.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given path and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// The popup and a one-shot fetch may hold the file at the same time.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveOutcome overwrites the single outcome slot.
func (s *SQLiteStore) SaveOutcome(ctx context.Context, o model.RetrievalOutcome) error {
	return s.setJSON(ctx, keyLastOutcome, o)
}

// LoadOutcome returns the last outcome, if any. Staleness is the caller's call.
func (s *SQLiteStore) LoadOutcome(ctx context.Context) (model.RetrievalOutcome, bool, error) {
	var o model.RetrievalOutcome
	ok, err := s.getJSON(ctx, keyLastOutcome, &o)
	return o, ok, err
}

// ClearOutcome empties the outcome slot after it has been shown.
func (s *SQLiteStore) ClearOutcome(ctx context.Context) error {
	return s.deleteValue(ctx, keyLastOutcome)
}

// AutoFill returns the auto-fill preference. It defaults to enabled.
func (s *SQLiteStore) AutoFill(ctx context.Context) (bool, error) {
	val, ok, err := s.getValue(ctx, keyAutoFill)
	if err != nil || !ok {
		return true, err
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return true, nil
	}
	return b, nil
}

func (s *SQLiteStore) SetAutoFill(ctx context.Context, enabled bool) error {
	return s.setValue(ctx, keyAutoFill, strconv.FormatBool(enabled))
}

// SetBadge records the toolbar indicator.
func (s *SQLiteStore) SetBadge(ctx context.Context, b model.BadgeState) error {
	return s.setJSON(ctx, keyBadge, b)
}

func (s *SQLiteStore) Badge(ctx context.Context) (model.BadgeState, bool, error) {
	var b model.BadgeState
	ok, err := s.getJSON(ctx, keyBadge, &b)
	return b, ok, err
}

func (s *SQLiteStore) ClearBadge(ctx context.Context) error {
	return s.deleteValue(ctx, keyBadge)
}

// SaveCredential caches a bearer token with its expiry.
func (s *SQLiteStore) SaveCredential(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("nil token")
	}
	return s.setJSON(ctx, keyCredential, tok)
}

// LoadCredential returns the cached token, or nil when none is cached.
func (s *SQLiteStore) LoadCredential(ctx context.Context) (*oauth2.Token, error) {
	var tok oauth2.Token
	ok, err := s.getJSON(ctx, keyCredential, &tok)
	if err != nil || !ok {
		return nil, err
	}
	return &tok, nil
}

func (s *SQLiteStore) PurgeCredential(ctx context.Context) error {
	return s.deleteValue(ctx, keyCredential)
}

func (s *SQLiteStore) getValue(ctx context.Context, key string) (string, bool, error) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&val)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *SQLiteStore) setValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (s *SQLiteStore) deleteValue(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM metadata WHERE key = ?", key)
	return err
}

func (s *SQLiteStore) setJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.setValue(ctx, key, string(b))
}

func (s *SQLiteStore) getJSON(ctx context.Context, key string, v any) (bool, error) {
	val, ok, err := s.getValue(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), v); err != nil {
		// A corrupt record is treated as absent and dropped.
		_ = s.deleteValue(ctx, key)
		return false, nil
	}
	return true, nil
}
