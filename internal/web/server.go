package web

import (
	"context"
	"crypto/rand"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mtzanidakis/ghostgate/internal/config"
	"github.com/mtzanidakis/ghostgate/internal/feedback"
	"github.com/mtzanidakis/ghostgate/internal/gate"
	"github.com/mtzanidakis/ghostgate/internal/lockdown"
	"github.com/mtzanidakis/ghostgate/internal/natsbus"
	"github.com/mtzanidakis/ghostgate/internal/vault"
	"github.com/nats-io/nats.go"
)

//go:embed static
var staticFiles embed.FS

const (
	sessionCookieName = "session"
	sessionMaxAge     = 24 * time.Hour
)

type Server struct {
	session    *vault.Session
	scratchpad *vault.Scratchpad
	gate       *gate.Gate
	lockdown   *lockdown.Controller
	mixer      *feedback.Mixer
	bus        *natsbus.Bus
	nats       *natsbus.Client
	hub        *Hub
	cfg        config.WebConfig
	password   *passwordVerifier
	version    string
	startedAt  time.Time

	sessionMu sync.Mutex
	sessions  map[string]time.Time // token → expiry
}

// Components groups the controllers the API drives.
type Components struct {
	Session    *vault.Session
	Scratchpad *vault.Scratchpad
	Gate       *gate.Gate
	Lockdown   *lockdown.Controller
	Mixer      *feedback.Mixer
	Bus        *natsbus.Bus
}

func NewServer(c Components, cfg config.WebConfig, version string) (*Server, error) {
	s := &Server{
		session:    c.Session,
		scratchpad: c.Scratchpad,
		gate:       c.Gate,
		lockdown:   c.Lockdown,
		mixer:      c.Mixer,
		bus:        c.Bus,
		hub:        NewHub(),
		cfg:        cfg,
		version:    version,
		startedAt:  time.Now(),
		sessions:   make(map[string]time.Time),
	}
	if cfg.Auth != "" {
		pv, err := newPasswordVerifier(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("password verifier: %w", err)
		}
		s.password = pv
	}
	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	// Subscribe to NATS events and broadcast to WebSocket
	s.subscribeEvents()
	defer func() {
		if s.nats != nil {
			s.nats.Close()
		}
	}()

	handler, err := s.Handler()
	if err != nil {
		return err
	}
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	server := &http.Server{Addr: addr, Handler: handler}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	slog.Info("web server listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler builds the full route table with middleware applied.
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	// Auth endpoints (public)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/check", s.handleAuthCheck)

	s.registerAPI(mux)

	mux.HandleFunc("/api/ws", s.handleWebSocket)

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("static fs: %w", err)
	}
	fileServer := http.FileServer(http.FS(staticFS))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/decoy.html" {
			http.NotFound(w, r)
			return
		}
		if !strings.Contains(r.URL.Path, ".") && r.URL.Path != "/" {
			r.URL.Path = "/"
		}
		fileServer.ServeHTTP(w, r)
	})

	decoy, err := fs.ReadFile(staticFS, "decoy.html")
	if err != nil {
		return nil, fmt.Errorf("read decoy page: %w", err)
	}
	return s.withMiddleware(mux, decoy), nil
}

func (s *Server) withMiddleware(next http.Handler, decoy []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		isAPI := strings.HasPrefix(r.URL.Path, "/api/")

		// While panicking every page load shows the decoy, whoever asks.
		if !isAPI && s.lockdown.Panicked() {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			w.Write(decoy)
			return
		}

		// The API plays dead too, apart from what the decoy and lockdown
		// controls need.
		if isAPI && !panicAllowed(r.URL.Path) && s.lockdown.Panicked() {
			http.NotFound(w, r)
			return
		}

		if isAPI && s.password != nil {
			if r.URL.Path == "/api/login" || r.URL.Path == "/api/auth/check" {
				next.ServeHTTP(w, r)
				return
			}
			if !s.checkAuth(w, r) {
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// panicAllowed lists the API paths that keep answering in panic mode.
func panicAllowed(path string) bool {
	switch path {
	case "/api/login", "/api/logout", "/api/auth/check",
		"/api/lockdown", "/api/panic", "/api/_/restore", "/api/feedback/mute":
		return true
	}
	return false
}

// checkAuth validates session cookie or Basic Auth. Returns true if authenticated.
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if s.validSession(w, r) {
		return true
	}

	// Fall back to Basic Auth (for programmatic API access)
	if _, pass, ok := r.BasicAuth(); ok && s.password.Verify(pass) {
		return true
	}

	http.Error(w, "Unauthorized", http.StatusUnauthorized)
	return false
}

// validSession checks the session cookie and refreshes its expiry.
func (s *Server) validSession(w http.ResponseWriter, r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return false
	}

	s.sessionMu.Lock()
	expiry, ok := s.sessions[cookie.Value]
	if ok && time.Now().Before(expiry) {
		s.sessions[cookie.Value] = time.Now().Add(sessionMaxAge)
		s.sessionMu.Unlock()
		s.setSessionCookie(w, cookie.Value)
		return true
	}
	// Expired or unknown — clean up
	if ok {
		delete(s.sessions, cookie.Value)
	}
	s.sessionMu.Unlock()
	return false
}

func (s *Server) createSession() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)

	s.sessionMu.Lock()
	s.sessions[token] = time.Now().Add(sessionMaxAge)
	s.sessionMu.Unlock()

	return token, nil
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.password == nil {
		jsonResponse(w, map[string]string{"status": "ok"})
		return
	}

	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if !s.password.Verify(body.Password) {
		jsonError(w, "invalid password", http.StatusUnauthorized)
		return
	}

	token, err := s.createSession()
	if err != nil {
		jsonError(w, "session creation failed", http.StatusInternalServerError)
		return
	}

	s.setSessionCookie(w, token)
	jsonResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		s.sessionMu.Lock()
		delete(s.sessions, cookie.Value)
		s.sessionMu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	jsonResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	// No auth configured — tell the UI to skip login
	if s.password == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if s.validSession(w, r) {
		jsonResponse(w, map[string]string{"status": "ok"})
		return
	}
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

func (s *Server) subscribeEvents() {
	if s.bus == nil {
		return
	}
	client, err := natsbus.NewClient(s.bus)
	if err != nil {
		slog.Error("web server nats client failed", "error", err)
		return
	}
	s.nats = client

	// Forward all event topics to WebSocket as raw JSON
	_, _ = client.Subscribe(natsbus.TopicEventsAll, func(msg *nats.Msg) {
		var event natsbus.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("invalid NATS event payload", "error", err)
			return
		}
		s.hub.Broadcast(event)
	})
}
