// Package devserver is a small PlayPalace session server for local
// testing of the client. It accepts WebSocket connections, authorizes
// users, answers pings, relays chat between connected users and honors
// a handful of slash commands. Every packet it reads or writes is
// checked against the packet schemas.
package devserver

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/chrisnestrud/PlayPalace11/internal/clock"
	"github.com/chrisnestrud/PlayPalace11/packet"
)

// ServerVersion is reported in authorize_success.
const ServerVersion = "11.0.0-dev"

// DefaultRetryAfter is the retry_after sent by the /restart command, in seconds.
const DefaultRetryAfter = 3

// Server holds the connected clients and the optional account table.
type Server struct {
	validator *packet.Validator
	upgrader  websocket.Upgrader
	clock     clock.Clock
	logger    *slog.Logger
	audit     *auditLogger
	limiter   *loginRateLimiter
	accounts  map[string]string
	motd      string

	mu      sync.Mutex
	clients map[*client]struct{}
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithAccounts restricts logins to the given username/password pairs.
// Without it any username is accepted.
func WithAccounts(accounts map[string]string) Option {
	return func(s *Server) { s.accounts = accounts }
}

// WithMOTD sets the text spoken to each user after login.
func WithMOTD(motd string) Option {
	return func(s *Server) { s.motd = motd }
}

// WithClock sets the clock used by the login rate limiter.
func WithClock(clk clock.Clock) Option {
	return func(s *Server) { s.clock = clk }
}

// New creates a Server.
func New(opts ...Option) *Server {
	s := &Server{
		validator: packet.NewValidator(),
		clock:     clock.Real(),
		logger:    slog.New(slog.DiscardHandler),
		motd:      "Welcome to the PlayPalace development server.",
		clients:   make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	s.audit = newAuditLogger(s.logger, s.clock)
	s.limiter = newLoginRateLimiter(s.clock)
	return s
}

// Router returns the HTTP routes: /health and the WebSocket endpoint at
// / and /ws.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Get("/", s.serveWS)
	r.Get("/ws", s.serveWS)
	return r
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	c := newClient(s, conn, r.RemoteAddr)
	c.serve(r.Context())
}

// Online returns the usernames of authorized clients, sorted.
func (s *Server) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for c := range s.clients {
		names = append(names, c.username)
	}
	slices.Sort(names)
	return names
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.sendDisconnect(packet.Packet{
			"type":        "disconnect",
			"message":     "Server shutting down.",
			"reconnect":   true,
			"retry_after": DefaultRetryAfter,
		})
	}
}

func (s *Server) join(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) leave(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// broadcast sends p to every authorized client except skip.
func (s *Server) broadcast(p packet.Packet, skip *client) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		if c != skip {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()
	for _, c := range targets {
		c.send(p)
	}
}

// checkPassword reports whether username may log in with password.
func (s *Server) checkPassword(username, password string) bool {
	if s.accounts == nil {
		return true
	}
	want, ok := s.accounts[username]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(password)) == 1
}
