// ABOUTME: Store interface and shared types for conversation transcript persistence
// ABOUTME: Transcripts are written best-effort; the chat works without a store

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Conversation is one persisted chat conversation.
type Conversation struct {
	ID        string
	SessionID string
	UserName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one persisted transcript entry.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CardsJSON      string
	CreatedAt      time.Time
}

// Store persists conversations and their transcripts.
type Store interface {
	// SaveConversation inserts or refreshes a conversation record.
	SaveConversation(ctx context.Context, conv *Conversation) error

	// SaveMessage appends one message to a conversation's transcript.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetConversation returns a conversation by ID.
	// Returns ErrNotFound if it does not exist.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns conversations for a session, newest first.
	ListConversations(ctx context.Context, sessionID string) ([]*Conversation, error)

	// GetMessages returns a conversation's transcript in chronological order.
	GetMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// Close releases the underlying database.
	Close() error
}
