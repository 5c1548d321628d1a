package viewer

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brensch/agarenv/store"
)

type EpisodesResponse struct {
	Total    int64                  `json:"total"`
	Episodes []store.EpisodeSummary `json:"episodes"`
}

// Server holds shared state for the HTTP handlers.
type Server struct {
	roots   []string
	dbCache *DBCache
	hub     *Hub
}

// NewServer serves episodes recorded under roots. hub may be nil, in which
// case /ws is not registered.
func NewServer(roots []string, hub *Hub) *Server {
	return &Server{
		roots:   roots,
		dbCache: NewDBCache(roots, 30*time.Second),
		hub:     hub,
	}
}

func (s *Server) Close() error { return s.dbCache.Close() }

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/episodes", s.handleEpisodes)
	mux.HandleFunc("/api/episodes/", s.handleEpisodeSteps)
	if s.hub != nil {
		mux.HandleFunc("/ws", s.hub.ServeWS)
	}
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	episodes, err := s.dbCache.Episodes(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	limit := parseIntQuery(r, "limit", 1000)
	offset := parseIntQuery(r, "offset", 0)
	sortKey := strings.TrimSpace(r.URL.Query().Get("sort"))
	sortDir := strings.TrimSpace(r.URL.Query().Get("dir"))

	page := paginateEpisodes(episodes, limit, offset, sortKey, sortDir)
	writeJSON(w, EpisodesResponse{Total: int64(len(episodes)), Episodes: page})
}

// handleEpisodeSteps serves /api/episodes/{id}/steps.
func (s *Server) handleEpisodeSteps(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/episodes/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "steps" {
		http.NotFound(w, r)
		return
	}
	episodeID, err := url.PathUnescape(parts[0])
	if err != nil {
		http.Error(w, "bad episode id", http.StatusBadRequest)
		return
	}

	var steps []StepRecord
	err = s.dbCache.Query(func(db *sql.DB) error {
		var err error
		steps, err = queryEpisodeSteps(r.Context(), db, episodeID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNoData) || errors.Is(err, sql.ErrNoRows) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, steps)
}

func withCORS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
