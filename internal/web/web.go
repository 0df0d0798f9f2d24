// ABOUTME: HTTP surface of the chat app: routes, session cookies, middleware
// ABOUTME: Copilot conversations are created lazily on the first send of a session

package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/copilot-chat/internal/auth"
	"github.com/2389/copilot-chat/internal/config"
	"github.com/2389/copilot-chat/internal/copilot"
	"github.com/2389/copilot-chat/internal/debuglog"
	"github.com/2389/copilot-chat/internal/session"
	"github.com/2389/copilot-chat/internal/store"
)

// SessionCookieName is the name of the browser session cookie
const SessionCookieName = "copilot_chat_session"

// Server handles all chat app routes
type Server struct {
	cfg      *config.Config
	sessions *session.Manager
	auth     *auth.Authenticator
	store    store.Store
	recorder *debuglog.Recorder
	logger   *slog.Logger

	// newClient builds a conversation client for a signed-in user's token.
	// Swapped out in tests to point at a fake agent backend.
	newClient func(token string) (*copilot.Client, error)
}

// New creates a new Server
func New(cfg *config.Config, sessions *session.Manager, authn *auth.Authenticator, st store.Store, recorder *debuglog.Recorder) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		auth:     authn,
		store:    st,
		recorder: recorder,
		logger:   slog.Default().With("component", "web"),
	}
	s.newClient = func(token string) (*copilot.Client, error) {
		opts := copilot.Options{
			EnvironmentID:   cfg.Copilot.EnvironmentID,
			AgentIdentifier: cfg.Copilot.AgentIdentifier,
			Token:           token,
			ConnectTimeout:  cfg.Copilot.ConnectTimeout,
		}
		if recorder != nil {
			opts.Recorder = recorder
		}
		return copilot.New(opts)
	}
	return s
}

// RegisterRoutes registers all chat app routes on the given mux
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.withSession(s.handleChatPage))
	mux.HandleFunc("GET /chat/history", s.withSession(s.handleHistory))
	mux.HandleFunc("POST /chat/send", s.withSession(s.requireAuth(s.handleChatSend)))
	mux.HandleFunc("POST /chat/new", s.withSession(s.requireAuth(s.handleNewConversation)))

	mux.HandleFunc("GET /auth/login", s.withSession(s.handleAuthLogin))
	mux.HandleFunc("GET /auth/callback", s.withSession(s.handleAuthCallback))
	mux.HandleFunc("POST /auth/logout", s.withSession(s.handleLogout))

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	if s.cfg.Metrics.Enabled {
		mux.Handle("GET "+s.cfg.Metrics.Path, promhttp.Handler())
	}
}

// withSession resolves the browser session from the cookie, creating a new
// session and cookie when absent or expired.
func (s *Server) withSession(next func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(SessionCookieName); err == nil {
			if sess, ok := s.sessions.Get(cookie.Value); ok {
				next(w, r, sess)
				return
			}
		}

		sess, err := s.sessions.NewSession()
		if err != nil {
			s.logger.Error("failed to create session", "error", err)
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(s.cfg.Session.TTL / time.Second),
		})
		next(w, r, sess)
	}
}

// requireAuth rejects requests from sessions without a valid access token.
func (s *Server) requireAuth(next func(http.ResponseWriter, *http.Request, *session.Session)) func(http.ResponseWriter, *http.Request, *session.Session) {
	return func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		if _, token := sess.Identity(); token == "" {
			http.Error(w, "Sign in required", http.StatusUnauthorized)
			return
		}
		next(w, r, sess)
	}
}

// handleHealthz reports liveness
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
