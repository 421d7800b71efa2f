// Package server assembles the gin.Engine the process serves, adapted
// from the teacher's internal/infra/server/http.go shape (gin.New() +
// Recovery() + Logger() + grouped routes + graceful shutdown) but with
// the teacher's multi-tenant workspace/tenant/admin groups replaced by
// this service's flat /generate + /worker/* surface, since multi-tenancy
// beyond the record store is an explicit non-goal here.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/docgen/docgen-sub000/internal/adapters/primary/http/controller"
	"github.com/docgen/docgen-sub000/internal/adapters/primary/http/middleware"
	"github.com/docgen/docgen-sub000/internal/infra/config"
)

// HTTPServer wraps the configured gin.Engine and the server-section
// config it was built from.
type HTTPServer struct {
	engine *gin.Engine
	config *config.ServerConfig
}

// New builds the full HTTP surface: global middleware, auth, and every
// route §4.12 names.
func New(
	cfg *config.Config,
	bearerAuth gin.HandlerFunc,
	generateController *controller.GenerateController,
	workerController *controller.WorkerController,
	healthController *controller.HealthController,
) *HTTPServer {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(maxBodyMiddleware(cfg.Server.MaxBodyBytes))
	engine.Use(middleware.Correlation())

	healthController.RegisterRoutes(engine)

	if cfg.Server.SwaggerUI {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := engine.Group("/")
	api.Use(middleware.RequestTimeout(cfg.Server.RequestTimeoutDuration()))
	api.Use(bearerAuth)
	{
		generateController.RegisterRoutes(api)
		workerController.RegisterRoutes(api)
	}

	return &HTTPServer{engine: engine, config: &cfg.Server}
}

// maxBodyMiddleware caps request body size per §4.12's "body size limits
// apply", rejecting oversized bodies before they reach binding.
func maxBodyMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// Start runs the HTTP server until ctx is canceled, then shuts it down
// within the configured grace window.
func (s *HTTPServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%s", s.config.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeoutDuration(),
		WriteTimeout: s.config.WriteTimeoutDuration(),
	}

	errChan := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "starting HTTP server", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeoutDuration())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		slog.InfoContext(shutdownCtx, "HTTP server stopped gracefully")
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Engine returns the underlying gin.Engine, for tests.
func (s *HTTPServer) Engine() *gin.Engine {
	return s.engine
}
