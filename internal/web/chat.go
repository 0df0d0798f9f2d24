// ABOUTME: Chat page, transcript history, and new-conversation handlers
// ABOUTME: History is rendered server-side; the page streams new replies over SSE

package web

import (
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/2389/copilot-chat/internal/cards"
	"github.com/2389/copilot-chat/internal/session"
)

// messageView is one transcript entry prepared for the UI
type messageView struct {
	ID      string          `json:"id"`
	Role    string          `json:"role"`
	Content string          `json:"content"`
	HTML    template.HTML   `json:"html"`
	Cards   []template.HTML `json:"cards,omitempty"`
}

// chatPageData holds data for the chat page
type chatPageData struct {
	Title    string
	UserName string
	SignedIn bool
	Messages []messageView
}

func toMessageViews(msgs []session.Message) []messageView {
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		view := messageView{
			ID:      m.ID,
			Role:    m.Role,
			Content: m.Content,
			HTML:    renderMarkdown(m.Content),
		}
		for _, raw := range m.Cards {
			view.Cards = append(view.Cards, cards.RenderHTML(raw))
		}
		views = append(views, view)
	}
	return views
}

// handleChatPage renders the main chat page
func (s *Server) handleChatPage(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	name, token := sess.Identity()

	data := chatPageData{
		Title:    "Copilot Chat",
		UserName: name,
		SignedIn: token != "",
		Messages: toMessageViews(sess.Messages()),
	}
	s.renderPage(w, "chat.html", data)
}

// handleHistory returns the session transcript as JSON
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toMessageViews(sess.Messages())); err != nil {
		s.logger.Error("failed to encode history", "error", err)
	}
}

// handleNewConversation discards the current conversation and history.
// The next send starts a fresh conversation with the agent.
func (s *Server) handleNewConversation(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.Acquire(); err != nil {
		http.Error(w, "A message is still being processed", http.StatusConflict)
		return
	}
	defer sess.Release()

	sess.Reset()
	s.logger.Info("conversation reset", "session_id", sess.ID)
	w.WriteHeader(http.StatusNoContent)
}
