package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tomlord1122/todo-graphql/internal/config"
	"github.com/Tomlord1122/todo-graphql/internal/dashboard"
	"github.com/Tomlord1122/todo-graphql/internal/database"
	"github.com/Tomlord1122/todo-graphql/internal/graph"
	"github.com/Tomlord1122/todo-graphql/internal/logging"
	"github.com/Tomlord1122/todo-graphql/internal/repository"
	"github.com/Tomlord1122/todo-graphql/internal/server"
	"github.com/Tomlord1122/todo-graphql/internal/service"
)

func gracefulShutdown(apiServer *http.Server, dbService database.Service, logger *slog.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	logger.Info("shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// The server has 5 seconds to finish the requests it is currently handling.
	ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctxTimeout); err != nil {
		logger.Error("server forced to shutdown", "err", err)
	}

	if dbService != nil {
		if err := dbService.Close(); err != nil {
			logger.Error("closing database connection pool", "err", err)
		} else {
			logger.Info("database connection pool closed")
		}
	}

	logger.Info("server exiting")
	done <- true
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "todo-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	// 1. Initialize the store
	var (
		dbService database.Service
		todoRepo  repository.TodoRepository
		opts      []server.Option
	)
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory todo store, data is lost on restart")
		todoRepo = repository.NewMemoryTodoRepository()
	default:
		if cfg.Database.RunMigrations {
			if err := database.Migrate(cfg.Database.DSN(), logger); err != nil {
				return err
			}
		}
		dbService, err = database.New(cfg.Database, logger)
		if err != nil {
			return err
		}
		todoRepo = repository.NewGormTodoRepository(dbService.GetDB())
		opts = append(opts, server.WithHealthChecker(dbService))
	}

	// 2. Initialize Services
	todoService := service.NewTodoService(todoRepo, logger)

	// 3. Transport adapters
	gqlHandler, err := graph.NewHandler(todoService, cfg.GraphiQL)
	if err != nil {
		return fmt.Errorf("build graphql schema: %w", err)
	}
	opts = append(opts, server.WithGraphQL(gqlHandler))

	if cfg.Superset.Enabled() {
		opts = append(opts, server.WithGuestTokens(dashboard.NewSupersetClient(cfg.Superset)))
		logger.Info("dashboard guest tokens enabled", "superset_url", cfg.Superset.URL)
	}

	apiServer := server.NewServer(cfg, todoService, logger, opts...)

	done := make(chan bool, 1)
	go gracefulShutdown(apiServer, dbService, logger, done)

	logger.Info("starting server", "addr", apiServer.Addr, "store", cfg.Store)
	err = apiServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}

	// Wait for the graceful shutdown to complete
	<-done
	logger.Info("graceful shutdown complete")
	return nil
}
