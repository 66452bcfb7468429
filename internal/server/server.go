// Package server exposes a labelling session over a local JSON API so a
// browser-based reviewer can read records and commit labels. Validation is
// shared with the terminal loop; the server never bypasses commit guards.
package server

import (
	"net/http"
	"sync"

	"github.com/midas-in/midas-oral-cancer-labelling-app/internal/utils"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/session"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/storage"
)

type Server struct {
	Session  *session.Session
	DB       *storage.DB
	Username string
	Password string

	// The session object is single-threaded; the mux serves each request
	// on its own goroutine, so every handler takes mu before touching it.
	mu sync.Mutex
}

func New(s *session.Session, db *storage.DB, user, pass string) *Server {
	return &Server{
		Session:  s,
		DB:       db,
		Username: user,
		Password: pass,
	}
}

func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/session", s.basicAuth(s.handleSession))
	mux.HandleFunc("GET /api/records", s.basicAuth(s.handleRecords))
	mux.HandleFunc("GET /api/labels", s.basicAuth(s.handleLabels))
	mux.HandleFunc("POST /api/labels", s.basicAuth(s.handleCommit))
	mux.HandleFunc("GET /api/summary", s.basicAuth(s.handleSummary))

	utils.Log.Infof("Starting review server on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
