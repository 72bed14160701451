package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/blackmichael/engagement-bench/internal/config"
	"github.com/blackmichael/engagement-bench/internal/domain"
	"github.com/blackmichael/engagement-bench/internal/metrics"
)

// Store serves the read side of the API.
type Store interface {
	Ping(ctx context.Context) error
	ListAccounts(ctx context.Context, platform domain.Platform, accountType domain.AccountType) ([]domain.Account, error)
	LatestScoreSnapshot(ctx context.Context, platform domain.Platform, accountID string) (*domain.ScoreSnapshot, error)
	ListPostTypeSnapshots(ctx context.Context, platform domain.Platform) ([]domain.PostTypeScoreSnapshot, error)
	GetComposite(ctx context.Context, entityID string) (*domain.CompositeScore, error)
	GetPost(ctx context.Context, platform domain.Platform, postID string) (*domain.Post, error)
}

// Server exposes scores, metrics and the live update stream over HTTP.
type Server struct {
	store      Store
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates the HTTP server. stream may be nil to disable the
// websocket endpoint.
func NewServer(cfg *config.Config, store Store, stream http.Handler, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		store:  store,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /v1/accounts/{platform}", s.handleListAccounts)
	mux.HandleFunc("GET /v1/scores/{platform}/{accountID}", s.handleGetScore)
	mux.HandleFunc("GET /v1/posts/{platform}/{postID}", s.handleGetPost)
	mux.HandleFunc("GET /v1/post-types/{platform}", s.handleListPostTypes)
	mux.HandleFunc("GET /v1/composites/{entityID}", s.handleGetComposite)
	if stream != nil {
		mux.Handle("GET /v1/stream", stream)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler, including request logging.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	platform, ok := s.platform(w, r)
	if !ok {
		return
	}

	accountType := domain.AccountType(r.URL.Query().Get("type"))
	switch accountType {
	case "", domain.AccountOfficial, domain.AccountInfluencer:
	default:
		writeError(w, http.StatusBadRequest, "InvalidRequest", "type must be official or influencer")
		return
	}

	accounts, err := s.store.ListAccounts(r.Context(), platform, accountType)
	if err != nil {
		s.logger.Error("failed to list accounts", "platform", platform, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to list accounts")
		return
	}

	resp := make([]map[string]any, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, map[string]any{
			"account_id":     a.ExternalID,
			"display_name":   a.DisplayName,
			"follower_count": a.FollowerCount,
			"account_type":   a.AccountType,
			"entity_id":      a.EntityID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": resp})
}

func (s *Server) handleGetScore(w http.ResponseWriter, r *http.Request) {
	platform, ok := s.platform(w, r)
	if !ok {
		return
	}
	accountID := r.PathValue("accountID")

	snapshot, err := s.store.LatestScoreSnapshot(r.Context(), platform, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "no score for account")
		return
	}
	if err != nil {
		s.logger.Error("failed to get score", "platform", platform, "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to get score")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	platform, ok := s.platform(w, r)
	if !ok {
		return
	}
	postID := r.PathValue("postID")

	post, err := s.store.GetPost(r.Context(), platform, postID)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "no such post")
		return
	}
	if err != nil {
		s.logger.Error("failed to get post", "platform", platform, "post_id", postID, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to get post")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"post_id":       post.PostID,
		"account_id":    post.AccountID,
		"post_type":     post.PostType,
		"created_at":    post.CreatedAt,
		"message":       post.Message,
		"like_count":    post.LikeCount,
		"comment_count": post.CommentCount,
		"reshare_count": post.ReshareCount,
		"breakdown":     post.Breakdown,
	})
}

func (s *Server) handleListPostTypes(w http.ResponseWriter, r *http.Request) {
	platform, ok := s.platform(w, r)
	if !ok {
		return
	}

	snapshots, err := s.store.ListPostTypeSnapshots(r.Context(), platform)
	if err != nil {
		s.logger.Error("failed to list post types", "platform", platform, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to list post types")
		return
	}
	if snapshots == nil {
		snapshots = []domain.PostTypeScoreSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"post_types": snapshots})
}

func (s *Server) handleGetComposite(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("entityID")

	score, err := s.store.GetComposite(r.Context(), entityID)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "no composite for entity")
		return
	}
	if err != nil {
		s.logger.Error("failed to get composite", "entity_id", entityID, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to get composite")
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (s *Server) platform(w http.ResponseWriter, r *http.Request) (domain.Platform, bool) {
	p, err := domain.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return "", false
	}
	return p, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
