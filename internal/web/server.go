// Package web is the read-only status surface and the websocket
// endpoint behind the push channel. It observes the pipeline through
// value snapshots and never blocks the detection loop.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"skywarden/internal/config"
	"skywarden/internal/orchestrator"
	"skywarden/internal/snapshot"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server hosts /healthz, /status, /snapshot and /ws.
type Server struct {
	cfg          config.WebConfig
	hub          *Hub
	orch         *orchestrator.Orchestrator
	snapshotPath string
	httpServer   *http.Server
}

// NewServer builds the HTTP surface. The hub must be running before
// clients connect.
func NewServer(cfg config.WebConfig, hub *Hub, orch *orchestrator.Orchestrator, snapshotPath string) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:          cfg,
		hub:          hub,
		orch:         orch,
		snapshotPath: snapshotPath,
	}

	router.GET("/healthz", s.handleHealthz)
	router.GET("/status", s.handleStatus)
	router.GET("/snapshot", s.handleSnapshot)
	router.GET("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("status server listening", "addr", s.cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// handleHealthz is a bare liveness probe.
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// handleStatus reports the orchestrator snapshot plus the number of
// connected push clients.
func (s *Server) handleStatus(c *gin.Context) {
	status := s.orch.Status()
	c.JSON(http.StatusOK, gin.H{
		"orchestrator": status,
		"push_clients": s.hub.ClientCount(),
	})
}

// handleSnapshot reports the current snapshot record and whether it is
// stale against the 10s contract.
func (s *Server) handleSnapshot(c *gin.Context) {
	record, err := snapshot.ReadRecord(s.snapshotPath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot published yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"record": record,
		"stale":  record.Stale(time.Now(), config.SnapshotStaleAfter),
	})
}

// handleWS upgrades the connection and parks it on the hub; the read
// loop exists only to notice disconnects.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.hub.Register(conn)
	go func() {
		defer s.hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
