// ABOUTME: Message send handler: forwards to the agent and streams events as SSE
// ABOUTME: Agent failures become inline assistant messages; history is never lost

package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/2389/copilot-chat/internal/cards"
	"github.com/2389/copilot-chat/internal/copilot"
	"github.com/2389/copilot-chat/internal/metrics"
	"github.com/2389/copilot-chat/internal/session"
	"github.com/2389/copilot-chat/internal/store"
	"github.com/2389/copilot-chat/internal/stream"
)

// finalPayload is the terminal SSE event of a send
type finalPayload struct {
	MessageID   string          `json:"message_id"`
	HTML        template.HTML   `json:"html"`
	Suggestions []string        `json:"suggestions,omitempty"`
	Cards       []template.HTML `json:"cards,omitempty"`
}

// handleChatSend forwards one user message to the agent and streams the
// response as SSE events until the agent signals completion.
func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	text := strings.TrimSpace(messageText(r))
	if text == "" {
		http.Error(w, "Message required", http.StatusBadRequest)
		return
	}

	if err := sess.Acquire(); err != nil {
		http.Error(w, "A message is already being processed", http.StatusConflict)
		return
	}
	defer sess.Release()

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Copilot.ResponseTimeout)
	defer cancel()

	client, err := s.ensureConversation(ctx, w, flusher, sess)
	if err != nil {
		s.streamError(w, flusher, sess, err)
		return
	}

	userMsg := sess.Append(session.RoleUser, text, nil)
	s.persistMessage(sess, client, userMsg)

	start := time.Now()
	metrics.MessagesSent.Inc()

	events, err := client.SendMessage(ctx, text)
	if err != nil {
		s.streamError(w, flusher, sess, err)
		return
	}

	agg := stream.New()
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			s.streamError(w, flusher, sess, ctx.Err())
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case ev, ok := <-events:
			if !ok {
				s.finishSend(w, flusher, sess, client, agg, start)
				return
			}

			agg.Apply(ev)
			metrics.ActivitiesReceived.WithLabelValues(ev.Kind.String()).Inc()
			s.forwardEvent(w, flusher, agg, ev)

			if agg.Done() {
				s.finishSend(w, flusher, sess, client, agg, start)
				return
			}
		}
	}
}

// ensureConversation returns the session's conversation client, starting a
// new conversation on first send. A greeting from the agent becomes the
// first assistant message.
func (s *Server) ensureConversation(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sess *session.Session) (*copilot.Client, error) {
	if client := sess.Client(); client != nil {
		return client, nil
	}

	_, token := sess.Identity()
	client, err := s.newClient(token)
	if err != nil {
		return nil, fmt.Errorf("creating agent client: %w", err)
	}

	greeting, err := client.StartConversation(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting conversation: %w", err)
	}
	sess.SetClient(client)
	metrics.ConversationsStarted.Inc()
	s.logger.Info("conversation started",
		"session_id", sess.ID, "conversation_id", client.ConversationID())

	s.persistConversation(sess, client)

	if greeting != "" {
		msg := sess.Append(session.RoleAssistant, greeting, nil)
		s.persistMessage(sess, client, msg)
		writeSSEEvent(w, flusher, "greeting", finalPayload{
			MessageID: msg.ID,
			HTML:      renderMarkdown(greeting),
		})
	}
	return client, nil
}

// forwardEvent translates one agent event into an SSE frame for the browser.
func (s *Server) forwardEvent(w http.ResponseWriter, flusher http.Flusher, agg *stream.Aggregator, ev *copilot.Event) {
	switch ev.Kind {
	case copilot.EventStatus:
		writeSSEEvent(w, flusher, "status", map[string]string{"text": ev.Text})
	case copilot.EventThought:
		writeSSEEvent(w, flusher, "thought", map[string]string{
			"task": ev.Thought.Task,
			"text": ev.Thought.Text,
		})
	case copilot.EventSearchResult:
		writeSSEEvent(w, flusher, "search_result", ev.SearchResult)
	case copilot.EventContentDelta:
		// Citation markers can span deltas, so the browser gets the
		// accumulated stripped text rather than the raw chunk.
		writeSSEEvent(w, flusher, "delta", map[string]string{"text": agg.StreamingText()})
	}
}

// finishSend resolves citations, emits the final event, and records the
// assistant message in the transcript.
func (s *Server) finishSend(w http.ResponseWriter, flusher http.Flusher, sess *session.Session, client *copilot.Client, agg *stream.Aggregator, start time.Time) {
	metrics.ResponseDuration.Observe(time.Since(start).Seconds())

	if msg := agg.Err(); msg != "" {
		s.streamError(w, flusher, sess, errors.New(msg))
		return
	}

	result := agg.Finalize()

	msg := sess.Append(session.RoleAssistant, result.Text, result.Cards)
	s.persistMessage(sess, client, msg)

	payload := finalPayload{
		MessageID:   msg.ID,
		HTML:        renderMarkdown(result.Text),
		Suggestions: result.Suggestions,
	}
	for _, raw := range result.Cards {
		payload.Cards = append(payload.Cards, cards.RenderHTML(raw))
	}
	writeSSEEvent(w, flusher, "final", payload)
}

// streamError reports a failure both as an SSE event and as an inline
// assistant message, so the transcript shows what happened.
func (s *Server) streamError(w http.ResponseWriter, flusher http.Flusher, sess *session.Session, err error) {
	metrics.SendErrors.Inc()
	s.logger.Error("send failed", "session_id", sess.ID, "error", err)

	text := errorMessage(err)
	msg := sess.Append(session.RoleAssistant, text, nil)

	writeSSEEvent(w, flusher, "error", finalPayload{
		MessageID: msg.ID,
		HTML:      renderMarkdown(text),
	})
}

// errorMessage maps failures to the message shown in the transcript.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, copilot.ErrUnauthorized):
		return "⚠️ Your sign-in has expired or does not grant access to this agent. Please sign in again."
	case errors.Is(err, context.DeadlineExceeded):
		return "⚠️ The agent took too long to respond. Please try again."
	default:
		return fmt.Sprintf("⚠️ Something went wrong while talking to the agent: %v", err)
	}
}

// persistConversation records the conversation best-effort.
func (s *Server) persistConversation(sess *session.Session, client *copilot.Client) {
	if s.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	name, _ := sess.Identity()
	now := time.Now().UTC()
	err := s.store.SaveConversation(ctx, &store.Conversation{
		ID:        client.ConversationID(),
		SessionID: sess.ID,
		UserName:  name,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		s.logger.Error("failed to persist conversation", "error", err)
	}
}

// persistMessage records a transcript entry best-effort.
func (s *Server) persistMessage(sess *session.Session, client *copilot.Client, msg session.Message) {
	if s.store == nil || client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var cardsJSON string
	if len(msg.Cards) > 0 {
		if data, err := json.Marshal(msg.Cards); err == nil {
			cardsJSON = string(data)
		}
	}

	err := s.store.SaveMessage(ctx, &store.Message{
		ID:             msg.ID,
		ConversationID: client.ConversationID(),
		Role:           msg.Role,
		Content:        msg.Content,
		CardsJSON:      cardsJSON,
		CreatedAt:      msg.CreatedAt,
	})
	if err != nil {
		s.logger.Error("failed to persist message", "error", err)
	}
}

// messageText extracts the message from a JSON or form body.
func messageText(r *http.Request) string {
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return ""
		}
		return req.Message
	}
	if err := r.ParseForm(); err != nil {
		return ""
	}
	return r.FormValue("message")
}

// writeSSEEvent writes a single SSE frame and flushes it.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
