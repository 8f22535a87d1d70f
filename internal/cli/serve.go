package cli

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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/orogen/orogen/internal/api"
	apimiddleware "github.com/orogen/orogen/internal/api/middleware"
	"github.com/orogen/orogen/internal/config"
	"github.com/orogen/orogen/internal/erosion"
	"github.com/orogen/orogen/internal/exec"
	"github.com/orogen/orogen/internal/platform/logger"
	"github.com/orogen/orogen/internal/task"
	"github.com/orogen/orogen/internal/terrain"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the task-submission HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// newRegistry builds the registry with every built-in task category.
func newRegistry() *task.Registry {
	registry := task.NewRegistry()
	terrain.Register(registry)
	erosion.Register(registry)
	return registry
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Server.LogLevel)
	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"pool_size", cfg.Pool.Size,
		"pool_max_pending", cfg.Pool.MaxPending)

	registry := newRegistry()
	pool, err := exec.NewPool(ctx, func(index int) (*exec.Unit, error) {
		return exec.NewUnit(registry, log), nil
	}, cfg.Pool.Size, log)
	if err != nil {
		return fmt.Errorf("failed to build execution pool: %w", err)
	}
	defer pool.Close()

	if err := pool.SetMaxPending(cfg.Pool.MaxPending); err != nil {
		return fmt.Errorf("failed to apply max pending: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: setupRouter(pool, log),
	}

	// Graceful shutdown on SIGINT/SIGTERM or context cancellation.
	serverCtx, cancelServer := context.WithCancel(ctx)
	defer cancelServer()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			cancelServer()
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutting down server...")
	case <-serverCtx.Done():
		log.Info("server context canceled, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("server shutdown completed")
	return nil
}

// setupRouter creates and configures the application router with all
// routes and middleware.
func setupRouter(pool *exec.Pool, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.NewTraceMiddleware(log))

	taskHandler := api.NewTaskHandler(pool, log)

	r.Route("/api", func(r chi.Router) {
		r.Post("/tasks", taskHandler.SubmitTask)
		r.Get("/pool", taskHandler.PoolStats)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
