package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. This is the default backend
// when no DB_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) the SQLite database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL keeps concurrent readers from blocking on writes.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS conversation (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS flow (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		json_flow TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_prompt TEXT NOT NULL,
		bot_answer TEXT NOT NULL,
		flow_step_taken TEXT,
		conversation_id INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversation(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chat_conversation ON chat(conversation_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation (created_at) VALUES (?)`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("conversation id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) AppendChatLog(ctx context.Context, userPrompt, botAnswer, stepID string, conversationID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chat (user_prompt, bot_answer, flow_step_taken, conversation_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		userPrompt, botAnswer, stepID, conversationID, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("insert chat entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("chat entry id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) GetFlowDocument(ctx context.Context) (string, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT json_flow FROM flow ORDER BY id DESC LIMIT 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select flow document: %w", err)
	}
	return raw, true, nil
}

// ReplaceFlowDocument enforces the singleton flow invariant: any existing
// document is deleted and the new one inserted in one transaction.
func (s *SQLiteStore) ReplaceFlowDocument(ctx context.Context, jsonFlow string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin flow replacement: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM flow`); err != nil {
		return 0, fmt.Errorf("delete current flow: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO flow (json_flow) VALUES (?)`, jsonFlow)
	if err != nil {
		return 0, fmt.Errorf("insert flow: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("flow id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit flow replacement: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at FROM conversation ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var createdAt int64
		if err := rows.Scan(&c.ID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		c.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListChats(ctx context.Context) ([]ChatEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_prompt, bot_answer, flow_step_taken, conversation_id, created_at
		FROM chat ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select chat entries: %w", err)
	}
	defer rows.Close()

	var out []ChatEntry
	for rows.Next() {
		var e ChatEntry
		var stepTaken sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.UserPrompt, &e.BotAnswer, &stepTaken, &e.ConversationID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat row: %w", err)
		}
		e.FlowStepTaken = stepTaken.String
		e.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
