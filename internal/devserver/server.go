// Package devserver is a local stand-in for the chat backend: the REST
// history store and the WebSocket relay, backed by SQLite.
package devserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/pchat/internal/store"
	"go.uber.org/zap"
)

// Server bundles the router and the relay hub.
type Server struct {
	hub    *Hub
	router *gin.Engine
	logger *zap.Logger
}

// New builds the routes. auth may be nil to disable bearer checks.
func New(db *store.DB, auth *Auth, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{hub: NewHub(), router: gin.New(), logger: logger}
	a := &api{db: db, logger: logger}

	s.router.Use(gin.Recovery(), logMiddleware(logger))
	s.router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	authed := s.router.Group("/", authMiddleware(auth, logger))
	authed.POST("/checkRoom", a.checkRoom)
	authed.GET("/getMessages/:room", a.getMessages)
	authed.POST("/addMessage", a.addMessage)
	authed.POST("/markMessagesAsRead/:room", a.markMessagesAsRead)
	authed.POST("/takeUserData", a.takeUserData)
	authed.GET("/ws", gin.WrapH(&wsHandler{hub: s.hub, logger: logger}))
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the relay hub; it must be running for /ws to work.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe runs the hub and the HTTP server until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("dev server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
