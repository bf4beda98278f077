package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/agentworkforce/rowsync/internal/db"
	"github.com/agentworkforce/rowsync/internal/httpapi"
	"github.com/agentworkforce/rowsync/internal/monitor"
	"github.com/agentworkforce/rowsync/internal/poke"
	"github.com/agentworkforce/rowsync/internal/rowsync"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	lg := newLogger()

	addr := os.Getenv("ROWSYNC_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	dsn := requireEnv(lg, "ROWSYNC_POSTGRES_DSN")

	database, err := db.Open(dsn)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.EnsureSchema(context.Background(), database); err != nil {
		return err
	}

	hub := poke.NewHub(lg)
	mon := monitor.New(lg)
	mon.Start()
	defer mon.Stop()

	svc, err := rowsync.NewService(rowsync.Options{
		DB:             database,
		Poker:          hub,
		Logger:         lg,
		Monitor:        mon,
		CVRCacheSize:   intEnv(lg, "ROWSYNC_CVR_CACHE_SIZE", 0),
		ResetThreshold: intEnv(lg, "ROWSYNC_RESET_THRESHOLD", 0),
	})
	if err != nil {
		return err
	}

	server, err := httpapi.NewServerWithConfig(svc, hub, lg, httpapi.ServerConfig{
		JWTSecret:       os.Getenv("ROWSYNC_JWT_SECRET"),
		MaxBodyBytes:    int64Env(lg, "ROWSYNC_MAX_BODY_BYTES", 0),
		RateLimitMax:    intEnv(lg, "ROWSYNC_RATE_LIMIT_MAX", 0),
		RateLimitWindow: durationEnv(lg, "ROWSYNC_RATE_LIMIT_WINDOW", time.Minute),
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // poke websockets stay open indefinitely
	}

	errCh := make(chan error, 1)
	go func() {
		level.Info(lg).Log("msg", "listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		level.Info(lg).Log("msg", "shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctx)
	}
}
