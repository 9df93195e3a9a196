package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"

	mysqlqueue "github.com/seanpm2001/mysql-queue"
	"github.com/seanpm2001/mysql-queue/internal/api"
	"github.com/seanpm2001/mysql-queue/internal/metrics"
	"github.com/seanpm2001/mysql-queue/internal/server"
)

const version = "0.3.0"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// Local development convenience; absent .env files are fine.
	_ = godotenv.Load()

	cfg := server.LoadConfig()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		slog.Error("failed to open MySQL", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := mysqlqueue.Initialize(db); err != nil {
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to MySQL")

	metrics.Init(version)

	schedule := func(ctx context.Context, name, status string, params any, dueAt time.Time) (int64, error) {
		return mysqlqueue.Schedule(ctx, db, name, status, params, dueAt)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(schedule, db),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		slog.Info("queue server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
