// ABOUTME: Sign-in handlers wiring the OAuth2 code flow into browser sessions
// ABOUTME: Identity lives on the session; logout clears it but keeps the session

package web

import (
	"net/http"
	"time"

	"github.com/2389/copilot-chat/internal/metrics"
	"github.com/2389/copilot-chat/internal/session"
)

// handleAuthLogin redirects the browser to the Entra ID authorization page
func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	loginURL, err := s.auth.BeginLogin()
	if err != nil {
		s.logger.Error("failed to begin login", "error", err)
		http.Error(w, "Sign-in unavailable", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, loginURL, http.StatusFound)
}

// handleAuthCallback completes the code flow and stores the identity
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		s.logger.Warn("sign-in denied", "error", errCode, "description", q.Get("error_description"))
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		http.Error(w, "Missing state or code", http.StatusBadRequest)
		return
	}

	id, err := s.auth.Complete(r.Context(), state, code)
	if err != nil {
		s.logger.Error("sign-in failed", "error", err)
		http.Error(w, "Sign-in failed", http.StatusBadRequest)
		return
	}

	sess.SetIdentity(id.Name, id.AccessToken, id.Expiry)
	metrics.SignIns.Inc()
	s.logger.Info("user signed in", "session_id", sess.ID, "user", id.Username)

	http.Redirect(w, r, "/", http.StatusFound)
}

// handleLogout drops the identity and the conversation
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	sess.SetIdentity("", "", time.Time{})
	sess.Reset()
	http.Redirect(w, r, "/", http.StatusFound)
}
