// Package server exposes word coordinates over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wordmap/internal/domain"
	"wordmap/internal/projection"
	"wordmap/internal/service"
)

// Embeddings is the part of the embeddings service the HTTP layer drives.
type Embeddings interface {
	Warmup(ctx context.Context) error
	Model(ctx context.Context, forceRetrain bool) (*projection.Model, error)
	Status() service.Status
}

// Server wires the gin router to the embeddings service and word mapper.
type Server struct {
	emb    Embeddings
	mapper domain.WordMapper
	log    *slog.Logger
	router *gin.Engine
}

func New(emb Embeddings, mapper domain.WordMapper, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{emb: emb, mapper: mapper, log: log}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(s.log))

	r.POST("/word-to-coordinates", s.wordToCoordinates)
	r.GET("/healthz", s.health)
	r.POST("/admin/retrain", s.retrain)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.log.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
