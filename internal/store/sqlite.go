// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_name TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_session
			ON conversations(session_id, updated_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			cards_json TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveConversation inserts a conversation or bumps its updated_at.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv *Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, session_id, user_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at
	`, conv.ID, conv.SessionID, conv.UserName, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	return nil
}

// SaveMessage appends one transcript entry.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, cards_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CardsJSON, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving message: %w", err)
	}
	return nil
}

// GetConversation returns a conversation by ID
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, user_name, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id).Scan(&conv.ID, &conv.SessionID, &conv.UserName, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns a session's conversations, newest first
func (s *SQLiteStore) ListConversations(ctx context.Context, sessionID string) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_name, created_at, updated_at
		FROM conversations WHERE session_id = ?
		ORDER BY updated_at DESC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.SessionID, &conv.UserName, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, &conv)
	}
	return convs, rows.Err()
}

// GetMessages returns a conversation's transcript in chronological order
func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, cards_json, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("getting messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CardsJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
