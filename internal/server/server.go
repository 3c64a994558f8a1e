// Пакет server — HTTP-сервер Storage Server с graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dolphin-storage/storage-server/internal/api/handlers"
	"github.com/dolphin-storage/storage-server/internal/api/middleware"
	"github.com/dolphin-storage/storage-server/internal/config"
)

// Handlers — все обработчики, монтируемые на роутер.
type Handlers struct {
	Files       *handlers.FilesHandler
	Health      *handlers.HealthHandler
	Maintenance *handlers.MaintenanceHandler
	Settings    *handlers.SettingsHandler
	System      *handlers.SystemHandler
}

// Server — HTTP-сервер Storage Server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, h *Handlers) *Server {
	router := chi.NewRouter()

	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Публичные endpoints: без API-ключа
	router.Get("/health", h.Health.Health)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Все остальные endpoints требуют API-ключ
	auth := middleware.NewAPIKeyAuth(cfg.APIKey)
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware())

		r.Post("/upload", h.Files.Upload)
		r.Get("/download/{job_id}", h.Files.Download)
		r.Delete("/delete/{job_id}", h.Files.Delete)
		r.Get("/check/{job_id}", h.Files.Check)
		r.Get("/list", h.Files.List)

		r.Post("/cleanup", h.Maintenance.Cleanup)
		r.Get("/settings", h.Settings.Get)
		r.Put("/settings", h.Settings.Update)
		r.Get("/stats", h.System.Stats)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и блокируется до сигнала завершения
// (SIGINT/SIGTERM) или фатальной ошибки listener'а.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
