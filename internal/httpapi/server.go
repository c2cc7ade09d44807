// Package httpapi is the operator surface: job inspection, manual retry and
// exception resolution, queue depths, and a live transition event stream.
package httpapi

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/userdra99/ncb-OCR-sub001/internal/store"
)

// BasicAuth holds operator credentials. Empty credentials disable auth.
type BasicAuth struct {
	Username string
	Password string
}

// Server handles operator HTTP requests.
type Server struct {
	store  store.Store
	auth   BasicAuth
	stream *Stream
	logger *slog.Logger
	mux    *http.ServeMux
}

func NewServer(st store.Store, auth BasicAuth, stream *Stream, logger *slog.Logger) *Server {
	s := &Server{
		store:  st,
		auth:   auth,
		stream: stream,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /v1/jobs/{id}/history", s.requireAuth(s.handleJobHistory))
	s.mux.HandleFunc("POST /v1/jobs/{id}/retry", s.requireAuth(s.handleRetryJob))
	s.mux.HandleFunc("GET /v1/jobs/{id}", s.requireAuth(s.handleGetJob))
	s.mux.HandleFunc("POST /v1/exceptions/{id}/resolve", s.requireAuth(s.handleResolveException))
	s.mux.HandleFunc("GET /v1/exceptions", s.requireAuth(s.handleListExceptions))
	s.mux.HandleFunc("GET /v1/queues", s.requireAuth(s.handleQueueDepths))
	s.mux.HandleFunc("GET /v1/ws", s.requireAuth(s.handleWS))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

func (s *Server) authenticate(r *http.Request) bool {
	if s.auth.Username == "" && s.auth.Password == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.auth.Username && credentials[1] == s.auth.Password
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="claims operator"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
