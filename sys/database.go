package sys

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/mattn/go-sqlite3"
)

const (
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgDatabaseNotReady    = "database is not initialized"
	MsgDBParseGuildIDFail  = "failed to parse guild ID '%s' in play history: %w"
)

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	_ = sqlite3.SQLiteDriver{}

	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS play_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			url TEXT NOT NULL,
			title TEXT NOT NULL,
			played_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_play_history_guild ON play_history(guild_id, played_at)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		_ = DB.Close()
		DB = nil
	}
}

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	if DB == nil {
		return "", fmt.Errorf(MsgDatabaseNotReady)
	}
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	if DB == nil {
		return fmt.Errorf(MsgDatabaseNotReady)
	}
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// PlayRecord is one row of play_history.
type PlayRecord struct {
	GuildID  snowflake.ID
	URL      string
	Title    string
	PlayedAt time.Time
}

// HistoryStore records which tracks reached playback. Only finished
// history is stored; queues are never persisted.
type HistoryStore struct {
	db *sql.DB
}

func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (h *HistoryStore) RecordPlay(ctx context.Context, guildID snowflake.ID, url, title string) error {
	_, err := h.db.ExecContext(ctx,
		"INSERT INTO play_history (guild_id, url, title, played_at) VALUES (?, ?, ?, ?)",
		guildID.String(), url, title, time.Now().UnixNano())
	return err
}

// RecentPlays returns the latest distinct urls played in a guild, newest first.
func (h *HistoryStore) RecentPlays(ctx context.Context, guildID snowflake.ID, limit int) ([]PlayRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT guild_id, url, title, MAX(played_at) AS last_played
		FROM play_history
		WHERE guild_id = ?
		GROUP BY url
		ORDER BY last_played DESC, MAX(id) DESC
		LIMIT ?
	`, guildID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PlayRecord
	for rows.Next() {
		var gid, url, title string
		var playedAt int64
		if err := rows.Scan(&gid, &url, &title, &playedAt); err != nil {
			return nil, err
		}
		id, err := snowflake.Parse(gid)
		if err != nil {
			return nil, fmt.Errorf(MsgDBParseGuildIDFail, gid, err)
		}
		records = append(records, PlayRecord{GuildID: id, URL: url, Title: title, PlayedAt: time.Unix(0, playedAt)})
	}
	return records, rows.Err()
}
