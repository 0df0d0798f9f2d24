// ABOUTME: Browser session state: message history and the conversation handle
// ABOUTME: Manager keyed by secure cookie ID with periodic stale-session cleanup

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/copilot-chat/internal/copilot"
	"github.com/2389/copilot-chat/internal/metrics"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrBusy is returned when a send is attempted while another send is in
// flight for the same session.
var ErrBusy = errors.New("a message is already being processed for this session")

// Message is one entry of the chat transcript. Messages are append-only and
// never mutated after being added to the history.
type Message struct {
	ID        string            `json:"id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Cards     []json.RawMessage `json:"cards,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Session holds the state of one browser session: the transcript, the
// conversation client, and the user's identity from sign-in. All access goes
// through the session's methods; the mutex serializes the single-request-at-
// a-time model.
type Session struct {
	ID string

	mu        sync.Mutex
	messages  []Message
	client    *copilot.Client
	userName  string
	token     string
	tokenExp  time.Time
	busy      bool
	createdAt time.Time
	lastUsed  time.Time
}

// Append adds a message to the history and returns it with ID and timestamp
// filled in.
func (s *Session) Append(role, content string, cards []json.RawMessage) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Cards:     cards,
		CreatedAt: time.Now(),
	}
	s.messages = append(s.messages, msg)
	s.lastUsed = time.Now()
	return msg
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Client returns the conversation client, or nil before the first send.
func (s *Session) Client() *copilot.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// SetClient installs the conversation client after StartConversation.
func (s *Session) SetClient(c *copilot.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Close()
	}
	s.client = c
}

// Reset discards the conversation handle and clears the history. The next
// send starts a fresh conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	s.lastUsed = time.Now()
}

// SetIdentity stores the signed-in user's display name and access token.
func (s *Session) SetIdentity(name, token string, expiry time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userName = name
	s.token = token
	s.tokenExp = expiry
}

// Identity returns the signed-in user's display name and access token.
// The token is "" when the user is not signed in or the token has expired.
func (s *Session) Identity() (name, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tokenExp.IsZero() && time.Now().After(s.tokenExp) {
		return s.userName, ""
	}
	return s.userName, s.token
}

// Acquire claims the session for one send. Callers must Release when the
// send completes. Returns ErrBusy if a send is already in flight.
func (s *Session) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.busy = true
	s.lastUsed = time.Now()
	return nil
}

// Release ends the in-flight send.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}

// Manager tracks active sessions keyed by their cookie ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
}

// NewManager creates a manager whose sessions go stale after ttl of
// inactivity. A background goroutine removes stale sessions every minute.
func NewManager(ttl time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		logger:   logger.With("component", "session"),
		cancel:   cancel,
	}
	go m.cleanupLoop(ctx)
	return m
}

// NewSession creates and registers a session with a fresh random ID.
func (m *Manager) NewSession() (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s := &Session{ID: id, createdAt: now, lastUsed: now}

	m.mu.Lock()
	m.sessions[id] = s
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	m.logger.Debug("session created", "session_id", id)
	return s, nil
}

// Get returns the session for the given ID, refreshing its idle timer.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.mu.Lock()
		s.lastUsed = time.Now()
		s.mu.Unlock()
	}
	return s, ok
}

// Remove deletes a session and releases its conversation client.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()
	if ok {
		s.Reset()
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the cleanup goroutine and drops all sessions, releasing their
// conversation clients.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		s.Reset()
	}
	m.sessions = make(map[string]*Session)
}

func (m *Manager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.removeStale()
		}
	}
}

func (m *Manager) removeStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastUsed)
		busy := s.busy
		s.mu.Unlock()

		if idle > m.ttl && !busy {
			delete(m.sessions, id)
			s.Reset()
			m.logger.Debug("stale session removed", "session_id", id, "idle", idle)
		}
	}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
}

// newSessionID returns a 32-byte hex session identifier.
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
