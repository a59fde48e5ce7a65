package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/park285/dame-server/internal/ai"
	"github.com/park285/dame-server/internal/auth"
	"github.com/park285/dame-server/internal/match"
	"github.com/park285/dame-server/internal/msgcat"
	"github.com/park285/dame-server/internal/obslog"
	"github.com/park285/dame-server/internal/presence"
	"github.com/park285/dame-server/internal/repository"
	"go.uber.org/zap"
)

const (
	maxJSONBodyBytes int64 = 1 << 20
	maxFrameBytes    int64 = 64 << 10
)

// Config collects the collaborators the HTTP layer dispatches to. Repo and AI
// are optional.
type Config struct {
	Auth     *auth.Authenticator
	Presence *presence.Registry
	Matches  *match.Manager
	Repo     repository.Repository
	AI       *ai.Pool
	Catalog  *msgcat.Catalog

	// AllowedOrigins feeds websocket.AcceptOptions.OriginPatterns and the
	// REST CORS check. Empty means same origin only.
	AllowedOrigins []string
}

// Server serves the socket endpoint and the REST API.
type Server struct {
	cfg Config
	mux *http.ServeMux

	srvMu sync.Mutex
	srv   *http.Server
}

func New(cfg Config) *Server {
	s := &Server{cfg: cfg, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)

	s.mux.HandleFunc("POST /api/auth/session", s.handleSession)
	s.mux.HandleFunc("POST /api/ai/move", s.requireAuth(s.handleAIMove))
	s.mux.HandleFunc("GET /api/games/{id}", s.requireAuth(s.handleGame))
	s.mux.HandleFunc("GET /api/games/{id}/board.png", s.handleBoardPNG)
	s.mux.HandleFunc("GET /api/players/online", s.requireAuth(s.handleOnline))
	s.mux.HandleFunc("GET /api/players/{id}/games", s.requireAuth(s.handlePlayerGames))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.cors(w, r) {
		return
	}
	s.mux.ServeHTTP(w, r)
}

// Listen blocks until the server stops. Shutdown returns nil.
func (s *Server) Listen(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	s.srvMu.Lock()
	s.srv = srv
	s.srvMu.Unlock()

	obslog.L().Info("http_listen", zap.String("addr", addr))
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections. Hijacked sockets are not tracked by
// http.Server, so the caller closes the match manager separately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.srvMu.Lock()
	srv := s.srv
	s.srvMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// cors answers preflight requests and reports whether to continue.
func (s *Server) cors(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || !s.originAllowed(origin) {
		return true
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Add("Vary", "Origin")
	if r.Method == http.MethodOptions {
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		h.Set("Access-Control-Max-Age", "600")
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	return true
}

func (s *Server) originAllowed(origin string) bool {
	host := origin
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	for _, p := range s.cfg.AllowedOrigins {
		if p == "*" || strings.EqualFold(p, host) || strings.EqualFold(p, origin) {
			return true
		}
	}
	return false
}

// bearer reads the session token from the Authorization header or, for
// browser sockets that cannot set headers, the token query parameter.
func bearer(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		return h
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func (s *Server) identify(r *http.Request) (auth.Identity, error) {
	tok := bearer(r)
	if tok == "" {
		return auth.Identity{}, auth.ErrUnauthenticated
	}
	return s.cfg.Auth.Verify(tok)
}

type identityKey struct{}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.identify(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	}
}

func identityFrom(ctx context.Context) auth.Identity {
	id, _ := ctx.Value(identityKey{}).(auth.Identity)
	return id
}

// player builds the seat for an authenticated identity, taking the rating
// from the archive when one exists.
func (s *Server) player(ctx context.Context, id auth.Identity) match.Player {
	p := match.Player{
		ID:          id.ID,
		DisplayName: id.Username,
		AvatarURL:   id.PhotoURL,
		Rating:      match.DefaultRating,
	}
	if s.cfg.Repo == nil {
		return p
	}
	prof, err := s.cfg.Repo.GetProfile(ctx, id.ID)
	if err != nil {
		obslog.L().Warn("profile_lookup_failed", zap.String("player_id", id.ID), zap.Error(err))
		return p
	}
	if prof != nil && prof.Rating > 0 {
		p.Rating = prof.Rating
	}
	return p
}
