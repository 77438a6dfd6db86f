// Package api exposes the dispatcher over HTTP with gin.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shineum/maildispatch/internal/provider"
)

const shutdownTimeout = 30 * time.Second

// Config configures the HTTP API.
type Config struct {
	ListenAddr string
	// JWTSecret enables bearer authentication on /api/v1 when set.
	JWTSecret    string
	JWTIssuer    string
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// NewRouter builds the gin engine. attachments may be nil, in which case
// requests that reference stored attachments are rejected.
func NewRouter(cfg Config, d *provider.Dispatcher, attachments AttachmentSource) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 32 << 20
	}

	h := &handler{dispatcher: d, attachments: attachments, logger: cfg.Logger}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Logger))

	router.GET("/health", h.health)

	v1 := router.Group("/api/v1")
	if cfg.JWTSecret != "" {
		v1.Use(JWTAuth([]byte(cfg.JWTSecret), cfg.JWTIssuer))
	}
	v1.GET("/providers", h.providers)

	mail := v1.Group("/mail", MaxBodyBytes(cfg.MaxBodyBytes))
	mail.POST("/send", h.send)
	mail.POST("/send/batch", h.sendBatch)

	return router
}

// Server serves the API until its context is cancelled.
type Server struct {
	cfg    Config
	server *http.Server
}

func NewServer(cfg Config, d *provider.Dispatcher, attachments AttachmentSource) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		cfg: cfg,
		server: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           NewRouter(cfg, d, attachments),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe blocks until ctx is cancelled, then drains in-flight
// requests for up to 30 seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.cfg.Logger.Info("HTTP API listening",
		"addr", ln.Addr().String(),
		"auth_enabled", s.cfg.JWTSecret != "",
	)

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.cfg.Logger.Info("shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.cfg.Logger.Warn("API shutdown timeout reached, forcing close", "error", err)
		s.server.Close()
	}
	<-errCh
	return nil
}
