package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL, selected when DB_URL is
// configured.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres connects to PostgreSQL using the provided connection string.
func NewPostgres(connectionString string) (*PostgresStore, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("database connection string is required")
	}

	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		// Retry with SSL disabled when the connection string does not pin a
		// mode; local setups rarely run TLS.
		if !strings.Contains(strings.ToLower(connectionString), "sslmode") {
			slog.Info("retrying database connection with SSL disabled")
			db.Close()
			sep := "?"
			if strings.Contains(connectionString, "?") {
				sep = "&"
			}
			db, err = sql.Open("postgres", connectionString+sep+"sslmode=disable")
			if err != nil {
				return nil, fmt.Errorf("open database: %w", err)
			}
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("ping database: %w", err)
		}
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS conversation (
		id BIGSERIAL PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS flow (
		id BIGSERIAL PRIMARY KEY,
		json_flow TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat (
		id BIGSERIAL PRIMARY KEY,
		user_prompt TEXT NOT NULL,
		bot_answer TEXT NOT NULL,
		flow_step_taken TEXT,
		conversation_id BIGINT NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_chat_conversation ON chat(conversation_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO conversation DEFAULT VALUES RETURNING id`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert conversation: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) AppendChatLog(ctx context.Context, userPrompt, botAnswer, stepID string, conversationID int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chat (user_prompt, bot_answer, flow_step_taken, conversation_id)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		userPrompt, botAnswer, stepID, conversationID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert chat entry: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetFlowDocument(ctx context.Context) (string, bool, error) {
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

func (s *PostgresStore) ReplaceFlowDocument(ctx context.Context, jsonFlow string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin flow replacement: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM flow`); err != nil {
		return 0, fmt.Errorf("delete current flow: %w", err)
	}
	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO flow (json_flow) VALUES ($1) RETURNING id`, jsonFlow).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert flow: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit flow replacement: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at FROM conversation ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListChats(ctx context.Context) ([]ChatEntry, error) {
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
		if err := rows.Scan(&e.ID, &e.UserPrompt, &e.BotAnswer, &stepTaken, &e.ConversationID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat row: %w", err)
		}
		e.FlowStepTaken = stepTaken.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
