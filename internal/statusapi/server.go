package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"channel_migrator/internal/logger"
	"channel_migrator/internal/migration"
	"channel_migrator/internal/models"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

// SnapshotSource 实时状态来源（引擎）
type SnapshotSource interface {
	Snapshot() migration.Snapshot
}

// SessionStore 查询活跃会话
type SessionStore interface {
	GetActiveSession(ctx context.Context) (*models.Session, error)
}

// Server 只读状态 HTTP 服务
type Server struct {
	addr   string
	source SnapshotSource
	store  SessionStore
	router chi.Router
}

// New 创建状态服务
func New(addr string, source SnapshotSource, store SessionStore) *Server {
	s := &Server{addr: addr, source: source, store: store}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(15 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/sessions/active", s.handleActiveSession)

	s.router = r
	return s
}

// Handler 路由（测试使用）
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 监听并阻塞，ctx 取消后优雅关闭
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定 listener 上提供服务
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Infof("Status API listening on %s", ln.Addr())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("status api: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown status api: %w", err)
	}
	logger.L().Info("Status API shut down")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, s.source.Snapshot())
}

func (s *Server) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.GetActiveSession(r.Context())
	if err != nil {
		logger.L().Errorf("Status API: failed to load active session: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to load active session")
		return
	}
	if session == nil {
		respondWithError(w, http.StatusNotFound, "no active session")
		return
	}
	respondWithJSON(w, http.StatusOK, session)
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.L().Errorf("Failed to write JSON response: %v", err)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
