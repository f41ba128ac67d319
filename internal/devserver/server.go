package devserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"momofeed/internal/config"
)

type HTTPServer struct {
	engine *gin.Engine
	server *http.Server
	log    zerolog.Logger
}

// NewHTTPServer wires the emulator routes. When the memory backend is
// in use, the storage endpoints its presigned URLs point at are
// registered on the same engine.
func NewHTTPServer(cfg *config.AppConfig, log zerolog.Logger, handlers HandlerSet, mem *MemoryBackend) *HTTPServer {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		requestID(),
		requestLogger(log),
		recovery(log),
		cors(cfg.AllowCORSOrigins),
	)

	engine.GET("/healthz", handlers.Health)
	handlers.Register(engine.Group("/api"))

	if mem != nil {
		engine.PUT("/dev-upload/:key", mem.HandlePut)
		engine.GET("/dev-images/:key", mem.HandleGet)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &HTTPServer{
		engine: engine,
		server: srv,
		log:    log,
	}
}

// Engine exposes the router for httptest-driven tests.
func (s *HTTPServer) Engine() *gin.Engine {
	return s.engine
}

func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("devserver starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("devserver shutting down")
	return s.server.Shutdown(ctx)
}
