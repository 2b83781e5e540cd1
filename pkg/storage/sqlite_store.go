package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/small-frappuccino/rolebuttons/pkg/buttons"
	"github.com/small-frappuccino/rolebuttons/pkg/log"

	_ "modernc.org/sqlite"
)

// ErrRowCountMismatch is returned when a batched delete touched a number
// of rows other than one; the whole batch has been rolled back.
var ErrRowCountMismatch = errors.New("delete affected unexpected row count")

var errNotInitialized = errors.New("store not initialized")

// Store wraps an embedded SQLite database holding persisted button records
// and runtime markers. It uses modernc.org/sqlite for CGO-less builds.
type Store struct {
	dbPath string
	db     *sql.DB
}

// NewStore creates a new Store pointing to dbPath. Call Init() before using it.
func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

// Init opens the SQLite database, configures pragmas, and ensures the schema exists.
func (s *Store) Init() error {
	if s.db != nil {
		return nil
	}
	if s.dbPath == "" {
		return fmt.Errorf("db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []struct{ stmt, what string }{
		{`PRAGMA journal_mode=WAL;`, "set WAL"},
		{`PRAGMA foreign_keys=ON;`, "enable FKs"},
		{`PRAGMA busy_timeout=5000;`, "set busy_timeout"},
		{`PRAGMA synchronous=NORMAL;`, "set synchronous"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("%s: %w", p.what, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	log.DatabaseLogger().Debug("Button store ready", "path", s.dbPath)
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// InsertButtons stores the records of one deployed message. Either all rows
// are written or none are.
func (s *Store) InsertButtons(recs []buttons.Record) error {
	if s.db == nil {
		return errNotInitialized
	}
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.Prepare(
		`INSERT INTO buttons (button_id, role, action, silent, guild_id, channel_id, message_id)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.Exec(r.ID, r.RoleID, int(r.Action), boolToInt(r.Silent), r.GuildID, r.ChannelID, r.MessageID); err != nil {
			return fmt.Errorf("insert button %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// GetButton returns the record for id, or nil if there is none.
func (s *Store) GetButton(id string) (*buttons.Record, error) {
	if s.db == nil {
		return nil, errNotInitialized
	}
	row := s.db.QueryRow(
		`SELECT button_id, role, action, silent, guild_id, channel_id, message_id
         FROM buttons WHERE button_id=?`,
		id,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// ListButtons returns the records of one guild, or of all guilds when
// guildID is empty.
func (s *Store) ListButtons(guildID string) ([]buttons.Record, error) {
	if s.db == nil {
		return nil, errNotInitialized
	}
	const cols = `SELECT button_id, role, action, silent, guild_id, channel_id, message_id FROM buttons`
	var (
		rows *sql.Rows
		err  error
	)
	if guildID == "" {
		rows, err = s.db.Query(cols + ` ORDER BY guild_id, channel_id, message_id`)
	} else {
		rows, err = s.db.Query(cols+` WHERE guild_id=? ORDER BY channel_id, message_id`, guildID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []buttons.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// CountButtons counts records of one guild, or all records when guildID is empty.
func (s *Store) CountButtons(guildID string) (int, error) {
	if s.db == nil {
		return 0, errNotInitialized
	}
	var n int
	var err error
	if guildID == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM buttons`).Scan(&n)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM buttons WHERE guild_id=?`, guildID).Scan(&n)
	}
	return n, err
}

// DeleteButtons removes the given records in one transaction. Each row is
// matched by button id and guild id and must delete exactly one row;
// otherwise nothing is deleted and (-1, ErrRowCountMismatch) is returned.
func (s *Store) DeleteButtons(recs []buttons.Record) (int, error) {
	if s.db == nil {
		return -1, errNotInitialized
	}
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return -1, fmt.Errorf("begin delete: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.Prepare(`DELETE FROM buttons WHERE button_id=? AND guild_id=?`)
	if err != nil {
		return -1, fmt.Errorf("prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		res, err := stmt.Exec(r.ID, r.GuildID)
		if err != nil {
			return -1, fmt.Errorf("delete button %s: %w", r.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return -1, fmt.Errorf("rows affected for %s: %w", r.ID, err)
		}
		if n != 1 {
			log.DatabaseLogger().Warn("Button delete touched unexpected row count; rolling back",
				"buttonID", r.ID, "guildID", r.GuildID, "rows", n)
			return -1, fmt.Errorf("%w: button %s affected %d rows", ErrRowCountMismatch, r.ID, n)
		}
	}
	if err := tx.Commit(); err != nil {
		return -1, fmt.Errorf("commit delete: %w", err)
	}
	return len(recs), nil
}

// SetMetaTime stores a named timestamp in runtime_meta.
func (s *Store) SetMetaTime(key string, t time.Time) error {
	if s.db == nil {
		return errNotInitialized
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO runtime_meta (key, ts) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET ts=excluded.ts`,
		key, t.UTC(),
	)
	return err
}

// GetMetaTime returns a named timestamp, if recorded.
func (s *Store) GetMetaTime(key string) (time.Time, bool, error) {
	if s.db == nil {
		return time.Time{}, false, errNotInitialized
	}
	var ts time.Time
	if err := s.db.QueryRow(`SELECT ts FROM runtime_meta WHERE key=?`, key).Scan(&ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return ts, true, nil
}

// SetHeartbeat records the last-known "bot is running" timestamp.
func (s *Store) SetHeartbeat(t time.Time) error {
	return s.SetMetaTime("heartbeat", t)
}

// GetHeartbeat returns the last recorded heartbeat timestamp, if any.
func (s *Store) GetHeartbeat() (time.Time, bool, error) {
	return s.GetMetaTime("heartbeat")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*buttons.Record, error) {
	var (
		rec    buttons.Record
		action int
		silent int
	)
	if err := row.Scan(&rec.ID, &rec.RoleID, &action, &silent, &rec.GuildID, &rec.ChannelID, &rec.MessageID); err != nil {
		return nil, err
	}
	rec.Action = buttons.Action(action)
	rec.Silent = silent != 0
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func ensureSchema(db *sql.DB) error {
	const createButtons = `
CREATE TABLE IF NOT EXISTS buttons (
  button_id  TEXT PRIMARY KEY,
  role       TEXT NOT NULL,
  action     INTEGER NOT NULL,
  silent     INTEGER NOT NULL,
  guild_id   TEXT NOT NULL,
  channel_id TEXT NOT NULL,
  message_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_buttons_guild ON buttons(guild_id);
CREATE INDEX IF NOT EXISTS idx_buttons_message ON buttons(channel_id, message_id);`

	const createRuntimeMeta = `
CREATE TABLE IF NOT EXISTS runtime_meta (
  key TEXT PRIMARY KEY,
  ts  TIMESTAMP NOT NULL
);`

	stmts := []string{
		createButtons,
		createRuntimeMeta,
	}
	for _, sqlText := range stmts {
		if _, err := db.Exec(sqlText); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
